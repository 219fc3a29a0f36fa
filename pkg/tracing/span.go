// Package tracing records timed span trees in the request context and
// writes them to slog when the root span finishes. The trace ID is the
// request ID from pkg/logger so spans line up with request logs.
package tracing

import (
	"context"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Adithya-Monish-Kumar-K/inverted-index/pkg/logger"
)

type contextKey struct{}

type Span struct {
	Name      string
	TraceID   string
	StartTime time.Time
	Duration  time.Duration

	mu       sync.Mutex
	children []*Span
	attrs    map[string]any
	ended    bool
}

// Record is one flattened span, as produced by Span.Records.
type Record struct {
	Name     string
	TraceID  string
	Depth    int
	Duration time.Duration
	Attrs    map[string]any
}

// StartSpan opens a span under the span already in ctx, or a new root span
// when there is none.
func StartSpan(ctx context.Context, name string) (context.Context, *Span) {
	span := &Span{
		Name:      name,
		StartTime: time.Now(),
		attrs:     make(map[string]any),
	}
	if parent := FromContext(ctx); parent != nil {
		span.TraceID = parent.TraceID
		parent.mu.Lock()
		parent.children = append(parent.children, span)
		parent.mu.Unlock()
	} else {
		span.TraceID = logger.RequestID(ctx)
		if span.TraceID == "" {
			span.TraceID = uuid.NewString()
		}
	}
	return context.WithValue(ctx, contextKey{}, span), span
}

// FromContext returns the current span, or nil.
func FromContext(ctx context.Context) *Span {
	span, _ := ctx.Value(contextKey{}).(*Span)
	return span
}

// End fixes the span duration. Later calls are ignored.
func (s *Span) End() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return
	}
	s.ended = true
	s.Duration = time.Since(s.StartTime)
}

func (s *Span) SetAttr(key string, value any) {
	s.mu.Lock()
	s.attrs[key] = value
	s.mu.Unlock()
}

// Records flattens the tree depth first.
func (s *Span) Records() []Record {
	var out []Record
	s.collect(0, &out)
	return out
}

func (s *Span) collect(depth int, out *[]Record) {
	s.mu.Lock()
	rec := Record{
		Name:     s.Name,
		TraceID:  s.TraceID,
		Depth:    depth,
		Duration: s.Duration,
		Attrs:    maps.Clone(s.attrs),
	}
	children := slices.Clone(s.children)
	s.mu.Unlock()

	*out = append(*out, rec)
	for _, child := range children {
		child.collect(depth+1, out)
	}
}

// Log writes one debug line per span in the tree.
func (s *Span) Log(ctx context.Context, l *slog.Logger) {
	if !l.Enabled(ctx, slog.LevelDebug) {
		return
	}
	for _, rec := range s.Records() {
		attrs := []any{
			"trace_id", rec.TraceID,
			"span", rec.Name,
			"duration_us", rec.Duration.Microseconds(),
			"depth", rec.Depth,
		}
		for _, k := range slices.Sorted(maps.Keys(rec.Attrs)) {
			attrs = append(attrs, k, rec.Attrs[k])
		}
		l.DebugContext(ctx, "span", attrs...)
	}
}
