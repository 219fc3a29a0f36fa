package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/Adithya-Monish-Kumar-K/inverted-index/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/inverted-index/pkg/logger"
)

// Client holds one connection. Calls are serialised on it.
type Client struct {
	conn    net.Conn
	encoder *json.Encoder
	decoder *json.Decoder
	mu      sync.Mutex
}

func Dial(ctx context.Context, addr string) (*Client, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", addr, err)
	}
	return &Client{
		conn:    conn,
		encoder: json.NewEncoder(conn),
		decoder: json.NewDecoder(conn),
	}, nil
}

// Call invokes method and decodes the result into result, which may be nil.
// The request ID is taken from ctx when it carries one. Errors returned by
// the handler come back matching their pkg/errors sentinel.
func (c *Client) Call(ctx context.Context, method string, params any, result any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	raw, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("marshaling params: %w", err)
	}
	id := logger.RequestID(ctx)
	if id == "" {
		id = uuid.NewString()
	}

	deadline, _ := ctx.Deadline()
	if err := c.conn.SetDeadline(deadline); err != nil {
		return err
	}
	stop := context.AfterFunc(ctx, func() {
		c.conn.SetDeadline(time.Now())
	})
	defer stop()

	if err := c.encoder.Encode(Request{Method: method, ID: id, Params: raw}); err != nil {
		return c.ioError(ctx, "sending request", err)
	}
	var resp Response
	if err := c.decoder.Decode(&resp); err != nil {
		return c.ioError(ctx, "reading response", err)
	}
	if resp.ID != id {
		return fmt.Errorf("%w: response id %q does not match request %q", apperrors.ErrInternal, resp.ID, id)
	}
	if resp.Error != "" || resp.Code != "" {
		return fmt.Errorf("%s: %w", method, apperrors.FromCode(resp.Code, resp.Error))
	}
	if result != nil && len(resp.Data) > 0 {
		if err := json.Unmarshal(resp.Data, result); err != nil {
			return fmt.Errorf("unmarshaling into result: %w", err)
		}
	}
	return nil
}

func (c *Client) ioError(ctx context.Context, op string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%s: %w", op, ctxErr)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%s: %w", op, apperrors.ErrTimeout)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func (c *Client) Close() error {
	return c.conn.Close()
}
