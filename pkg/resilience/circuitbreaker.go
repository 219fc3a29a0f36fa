// Package resilience guards calls to Kafka, Redis and PostgreSQL: a circuit
// breaker for the ingest publisher, jittered exponential retry and a
// deadline helper that reports apperrors.ErrTimeout.
package resilience

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

var ErrCircuitOpen = errors.New("circuit breaker is open")

type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	}
	return "unknown"
}

type CircuitBreakerConfig struct {
	// FailureThreshold consecutive failures open the circuit.
	FailureThreshold int

	// Cooldown is how long an open circuit rejects calls before letting
	// TrialCalls through.
	Cooldown   time.Duration
	TrialCalls int
}

// CircuitBreaker fails fast while a dependency keeps failing. Failures
// marked with Permanent do not count: they describe the request, not the
// dependency.
type CircuitBreaker struct {
	name   string
	cfg    CircuitBreakerConfig
	now    func() time.Time
	logger *slog.Logger

	mu       sync.Mutex
	state    State
	failures int
	openedAt time.Time
	inFlight int
}

func NewCircuitBreaker(name string, cfg CircuitBreakerConfig) *CircuitBreaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 30 * time.Second
	}
	if cfg.TrialCalls <= 0 {
		cfg.TrialCalls = 1
	}
	return &CircuitBreaker{
		name:   name,
		cfg:    cfg,
		now:    time.Now,
		logger: slog.Default().With("component", "circuit-breaker", "name", name),
	}
}

// Execute runs fn unless the circuit rejects it, then records the outcome.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	if err := cb.admit(); err != nil {
		return err
	}
	err := fn()
	cb.record(err)
	return err
}

func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

func (cb *CircuitBreaker) admit() error {
	cb.mu.Lock()
	switch cb.state {
	case StateOpen:
		wait := cb.cfg.Cooldown - cb.now().Sub(cb.openedAt)
		if wait > 0 {
			cb.mu.Unlock()
			return fmt.Errorf("%w: %s, retry in %v", ErrCircuitOpen, cb.name, wait.Round(time.Millisecond))
		}
		cb.state, cb.inFlight = StateHalfOpen, 1
		cb.mu.Unlock()
		cb.changed(StateOpen, StateHalfOpen)
		return nil
	case StateHalfOpen:
		defer cb.mu.Unlock()
		if cb.inFlight >= cb.cfg.TrialCalls {
			return fmt.Errorf("%w: %s, trial call in flight", ErrCircuitOpen, cb.name)
		}
		cb.inFlight++
		return nil
	}
	cb.mu.Unlock()
	return nil
}

func (cb *CircuitBreaker) record(err error) {
	cb.mu.Lock()
	from := cb.state
	switch {
	case err == nil || IsPermanent(err):
		cb.failures = 0
		if from == StateHalfOpen {
			cb.state, cb.inFlight = StateClosed, 0
		}
	case from == StateHalfOpen:
		cb.state, cb.openedAt, cb.inFlight = StateOpen, cb.now(), 0
	default:
		cb.failures++
		if cb.failures >= cb.cfg.FailureThreshold {
			cb.state, cb.openedAt = StateOpen, cb.now()
		}
	}
	to := cb.state
	failures := cb.failures
	cb.mu.Unlock()

	if to == StateOpen && from != StateOpen {
		cb.logger.Warn("circuit opened", "consecutive_failures", failures, "error", err)
	}
	cb.changed(from, to)
}

func (cb *CircuitBreaker) changed(from, to State) {
	if from == to {
		return
	}
	cb.logger.Info("circuit state changed", "from", from.String(), "to", to.String())
}
