// Package rpc is a small JSON-over-TCP RPC layer: newline-delimited JSON
// requests and responses over a persistent connection. Handler errors are
// sent with their pkg/errors wire code so that clients get back errors that
// still match the sentinels.
//
//	s := rpc.NewServer()
//	s.Register("Index.Search", func(ctx context.Context, params json.RawMessage) (any, error) { ... })
//	go s.ListenAndServe(":9100")
//	defer s.Stop()
package rpc

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"

	apperrors "github.com/Adithya-Monish-Kumar-K/inverted-index/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/inverted-index/pkg/logger"
)

// HandlerFunc processes the params of one call.
type HandlerFunc func(ctx context.Context, params json.RawMessage) (any, error)

type Request struct {
	Method string          `json:"method"`
	ID     string          `json:"id"`
	Params json.RawMessage `json:"params"`
}

type Response struct {
	ID    string          `json:"id"`
	Data  json.RawMessage `json:"data,omitempty"`
	Error string          `json:"error,omitempty"`
	Code  string          `json:"code,omitempty"`
}

// DefaultMaxFrameBytes caps one request line when no WithMaxFrameBytes
// option is given.
const DefaultMaxFrameBytes = 8 << 20

var errFrameTooLarge = errors.New("request frame too large")

// Option configures a Server.
type Option func(*Server)

// WithMaxFrameBytes caps the size of one request line. A connection that
// sends a longer line gets an INVALID_INPUT response and is closed.
func WithMaxFrameBytes(n int64) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxFrame = n
		}
	}
}

type Server struct {
	maxFrame int64
	handlers map[string]HandlerFunc
	logger   *slog.Logger
	mu       sync.RWMutex
	wg       sync.WaitGroup

	lnMu     sync.Mutex
	listener net.Listener
	conns    map[net.Conn]struct{}
	ctx      context.Context
	cancel   context.CancelFunc
}

func NewServer(opts ...Option) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		maxFrame: DefaultMaxFrameBytes,
		handlers: make(map[string]HandlerFunc),
		logger:   slog.Default().With("component", "rpc-server"),
		conns:    make(map[net.Conn]struct{}),
		ctx:      ctx,
		cancel:   cancel,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register adds a handler. Method names follow "Service.Method".
func (s *Server) Register(method string, handler HandlerFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[method] = handler
	s.logger.Debug("method registered", "method", method)
}

// MethodCount returns the number of registered methods.
func (s *Server) MethodCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.handlers)
}

func (s *Server) ListenAndServe(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}
	return s.Serve(ln)
}

// Serve accepts connections on ln until Stop is called, then returns nil.
func (s *Server) Serve(ln net.Listener) error {
	s.lnMu.Lock()
	if s.ctx.Err() != nil {
		s.lnMu.Unlock()
		ln.Close()
		return nil
	}
	s.listener = ln
	s.lnMu.Unlock()
	s.logger.Info("rpc server listening", "addr", ln.Addr().String())

	for {
		conn, err := ln.Accept()
		if err != nil {
			if s.ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				return err
			}
			s.logger.Error("accept error", "error", err)
			continue
		}
		s.lnMu.Lock()
		if s.ctx.Err() != nil {
			s.lnMu.Unlock()
			conn.Close()
			return nil
		}
		s.conns[conn] = struct{}{}
		s.wg.Add(1)
		s.lnMu.Unlock()
		go s.handleConn(conn)
	}
}

func (s *Server) handleConn(conn net.Conn) {
	defer s.wg.Done()
	defer func() {
		s.lnMu.Lock()
		delete(s.conns, conn)
		s.lnMu.Unlock()
		conn.Close()
	}()

	reader := bufio.NewReader(conn)
	encoder := json.NewEncoder(conn)
	for {
		line, err := readFrame(reader, s.maxFrame)
		if errors.Is(err, errFrameTooLarge) {
			s.logger.Warn("closing connection", "remote", conn.RemoteAddr().String(), "error", err)
			encoder.Encode(Response{
				Error: fmt.Sprintf("%s: limit is %d bytes", err, s.maxFrame),
				Code:  apperrors.CodeInvalidInput,
			})
			return
		}
		if err != nil {
			return
		}
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		var req Request
		if err := json.Unmarshal(line, &req); err != nil {
			if err := encoder.Encode(Response{Error: "malformed request: " + err.Error(), Code: apperrors.CodeInvalidInput}); err != nil {
				return
			}
			continue
		}
		resp := s.dispatch(req)
		if err := encoder.Encode(resp); err != nil {
			s.logger.Error("write error", "method", req.Method, "error", err)
			return
		}
	}
}

func (s *Server) dispatch(req Request) Response {
	resp := Response{ID: req.ID}
	s.mu.RLock()
	handler, ok := s.handlers[req.Method]
	s.mu.RUnlock()
	if !ok {
		resp.Error = fmt.Sprintf("unknown method: %s", req.Method)
		resp.Code = apperrors.CodeInvalidInput
		return resp
	}

	ctx := logger.WithRequestID(s.ctx, req.ID)
	data, err := handler(ctx, req.Params)
	if err == nil {
		encoded, err := json.Marshal(data)
		if err == nil {
			resp.Data = encoded
			return resp
		}
		s.logger.Error("encoding result failed", "method", req.Method, "error", err)
		resp.Error = err.Error()
		resp.Code = apperrors.CodeInternal
		return resp
	}
	logger.FromContext(ctx).Debug("rpc call failed", "method", req.Method, "error", err)
	resp.Error = err.Error()
	resp.Code = apperrors.Code(err)
	return resp
}

// readFrame returns the next newline-terminated line without its newline.
// A final unterminated line is returned before io.EOF.
func readFrame(r *bufio.Reader, limit int64) ([]byte, error) {
	var frame []byte
	for {
		chunk, err := r.ReadSlice('\n')
		if int64(len(frame)+len(chunk)) > limit {
			return nil, errFrameTooLarge
		}
		frame = append(frame, chunk...)
		switch {
		case err == nil:
			return frame[:len(frame)-1], nil
		case errors.Is(err, bufio.ErrBufferFull):
			continue
		case errors.Is(err, io.EOF) && len(frame) > 0:
			return frame, nil
		default:
			return nil, err
		}
	}
}

// Stop closes the listener and every open connection, then waits for the
// connection goroutines to finish.
func (s *Server) Stop() {
	s.cancel()
	s.lnMu.Lock()
	if s.listener != nil {
		s.listener.Close()
	}
	for conn := range s.conns {
		conn.Close()
	}
	s.lnMu.Unlock()
	s.wg.Wait()
	s.logger.Info("rpc server stopped")
}
