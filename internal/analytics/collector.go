package analytics

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
)

const defaultBuffer = 10000

// Sink receives events drained by a Collector.
type Sink interface {
	Record(event any)
}

// Collector moves events from request handlers to a Sink on a single
// goroutine. Track never blocks: when the buffer is full, or the collector
// has been closed, the event is counted as dropped.
type Collector struct {
	sink    Sink
	events  chan any
	logger  *slog.Logger
	stopped chan struct{}

	mu      sync.RWMutex
	closed  bool
	started atomic.Bool
	dropped atomic.Int64
}

func NewCollector(sink Sink, bufferSize int) *Collector {
	if bufferSize <= 0 {
		bufferSize = defaultBuffer
	}
	return &Collector{
		sink:    sink,
		events:  make(chan any, bufferSize),
		logger:  slog.Default().With("component", "analytics"),
		stopped: make(chan struct{}),
	}
}

// Start runs the drain loop until Close is called or ctx ends. Buffered
// events are delivered before the loop exits in both cases.
func (c *Collector) Start(ctx context.Context) {
	c.started.Store(true)
	go func() {
		defer close(c.stopped)
		for {
			select {
			case ev, ok := <-c.events:
				if !ok {
					return
				}
				c.sink.Record(ev)
			case <-ctx.Done():
				for {
					select {
					case ev, ok := <-c.events:
						if !ok {
							return
						}
						c.sink.Record(ev)
					default:
						return
					}
				}
			}
		}
	}()
	c.logger.Debug("collector running", "buffer", cap(c.events))
}

// Track enqueues event. It is a no-op on a nil Collector.
func (c *Collector) Track(event any) {
	if c == nil {
		return
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		c.dropped.Add(1)
		return
	}
	select {
	case c.events <- event:
	default:
		// Log on powers of two so a saturated buffer does not flood the log.
		if n := c.dropped.Add(1); n&(n-1) == 0 {
			c.logger.Warn("analytics buffer full, dropping events", "dropped", n)
		}
	}
}

// Dropped returns how many events Track has discarded.
func (c *Collector) Dropped() int64 {
	return c.dropped.Load()
}

// Close stops accepting events and waits for the drain loop to finish.
// It is safe to call more than once, and returns at once if Start never ran.
func (c *Collector) Close() {
	c.mu.Lock()
	if !c.closed {
		c.closed = true
		close(c.events)
	}
	c.mu.Unlock()
	if c.started.Load() {
		<-c.stopped
	}
	if n := c.dropped.Load(); n > 0 {
		c.logger.Info("collector closed", "dropped", n)
	}
}
