// Package publisher validates raw collections and ships them to Kafka for
// asynchronous indexing. Sends are retried with backoff behind a circuit
// breaker so a dead broker fails fast.
package publisher

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/inverted-index/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/inverted-index/internal/ingestion/validator"
	apperrors "github.com/Adithya-Monish-Kumar-K/inverted-index/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/inverted-index/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/inverted-index/pkg/resilience"
)

// EventWriter is satisfied by *kafka.Producer.
type EventWriter interface {
	Publish(ctx context.Context, event kafka.Event) error
}

// Receipt acknowledges an accepted collection.
type Receipt struct {
	Collection  string    `json:"collection"`
	Documents   int       `json:"documents"`
	Status      string    `json:"status"`
	PublishedAt time.Time `json:"published_at"`
}

type Publisher struct {
	writer  EventWriter
	retry   resilience.RetryConfig
	breaker *resilience.CircuitBreaker
	now     func() time.Time
	logger  *slog.Logger
}

func New(writer EventWriter, retry resilience.RetryConfig) *Publisher {
	return &Publisher{
		writer:  writer,
		retry:   retry,
		breaker: resilience.NewCircuitBreaker("kafka-publish", resilience.CircuitBreakerConfig{}),
		now:     time.Now,
		logger:  slog.Default().With("component", "publisher"),
	}
}

// Publish validates raw and, when it is a well-formed collection, sends it
// keyed by name. Invalid content is rejected before anything is sent, with
// the same errors CreateIndex would return.
func (p *Publisher) Publish(ctx context.Context, name string, raw []byte) (*Receipt, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: collection name is required", apperrors.ErrInvalidInput)
	}
	docs, err := validator.ParseCollection(raw)
	if err != nil {
		return nil, fmt.Errorf("publishing %s: %w", name, err)
	}
	publishedAt := p.now().UTC()
	event := kafka.Event{
		Key: name,
		Value: ingestion.IngestEvent{
			Collection:  name,
			Content:     string(raw),
			PublishedAt: publishedAt,
		},
	}
	err = resilience.Retry(ctx, "kafka-publish", p.retry, func() error {
		return p.breaker.Execute(func() error {
			return p.writer.Publish(ctx, event)
		})
	})
	if err != nil {
		p.logger.Error("failed to publish collection", "collection", name, "error", err)
		return nil, fmt.Errorf("publishing %s: %w", name, err)
	}
	p.logger.Info("collection published", "collection", name, "documents", len(docs))
	return &Receipt{
		Collection:  name,
		Documents:   len(docs),
		Status:      "PENDING",
		PublishedAt: publishedAt,
	}, nil
}

// BreakerState reports whether sends are currently failing fast.
func (p *Publisher) BreakerState() resilience.State {
	return p.breaker.State()
}
