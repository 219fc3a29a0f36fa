package rpcapi

import (
	"context"
	"encoding/json"

	"github.com/Adithya-Monish-Kumar-K/inverted-index/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/inverted-index/pkg/rpc"
)

// Client is a typed wrapper over an rpc.Client. APIKey is sent with
// CreateIndex.
type Client struct {
	conn   *rpc.Client
	APIKey string
}

func Dial(ctx context.Context, addr string) (*Client, error) {
	conn, err := rpc.Dial(ctx, addr)
	if err != nil {
		return nil, err
	}
	return &Client{conn: conn}, nil
}

func (c *Client) CreateIndex(ctx context.Context, name string, raw []byte) (indexer.CollectionInfo, error) {
	var resp CreateIndexResponse
	err := c.conn.Call(ctx, MethodCreateIndex, CreateIndexRequest{Name: name, APIKey: c.APIKey, Content: string(raw)}, &resp)
	return resp.CollectionInfo, err
}

func (c *Client) GetIndex(ctx context.Context, name string) (*GetIndexResponse, error) {
	var resp GetIndexResponse
	if err := c.conn.Call(ctx, MethodGetIndex, GetIndexRequest{Name: name}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) List(ctx context.Context) (*ListResponse, error) {
	var resp ListResponse
	if err := c.conn.Call(ctx, MethodList, struct{}{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Search sends terms and target as given. A nil target lets the server
// fall back to its last searched or newest collection.
func (c *Client) Search(ctx context.Context, terms, target json.RawMessage) (*indexer.SearchResult, error) {
	var resp SearchResponse
	if err := c.conn.Call(ctx, MethodSearch, SearchRequest{Terms: terms, Target: target}, &resp); err != nil {
		return nil, err
	}
	return &resp.SearchResult, nil
}

func (c *Client) Close() error {
	return c.conn.Close()
}
