package middleware

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/inverted-index/pkg/logger"
)

const timeoutBody = `{"error":"request timeout"}`

// Timeout gives each request a deadline. If it passes before the handler
// has written anything, the client gets 504 and whatever the handler
// writes afterwards is dropped. Handlers see the deadline through ctx.
func Timeout(timeout time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), timeout)
			defer cancel()

			gw := &guardedWriter{ResponseWriter: w}
			done := make(chan struct{})
			go func() {
				defer close(done)
				next.ServeHTTP(gw, r.WithContext(ctx))
			}()

			select {
			case <-done:
			case <-ctx.Done():
				if gw.expire() {
					logger.FromContext(ctx).Warn("request timed out",
						"method", r.Method, "path", r.URL.Path, "timeout", timeout)
				}
			}
		})
	}
}

// guardedWriter serialises the handler's writes against the timeout
// response so exactly one of them reaches the client first.
type guardedWriter struct {
	http.ResponseWriter
	mu      sync.Mutex
	started bool
	expired bool
}

// expire writes the 504 unless the handler has already started its
// response. It reports whether the 504 was sent.
func (g *guardedWriter) expire() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.started {
		return false
	}
	g.expired = true
	g.ResponseWriter.Header().Set("Content-Type", "application/json")
	g.ResponseWriter.WriteHeader(http.StatusGatewayTimeout)
	g.ResponseWriter.Write([]byte(timeoutBody))
	return true
}

func (g *guardedWriter) WriteHeader(code int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.expired {
		return
	}
	g.started = true
	g.ResponseWriter.WriteHeader(code)
}

func (g *guardedWriter) Write(b []byte) (int, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.expired {
		return 0, http.ErrHandlerTimeout
	}
	g.started = true
	return g.ResponseWriter.Write(b)
}
