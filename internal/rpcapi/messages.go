// Package rpcapi exposes the index engine over pkg/rpc. It carries the
// message types, the server-side registration and a typed client.
package rpcapi

import (
	"encoding/json"

	"github.com/Adithya-Monish-Kumar-K/inverted-index/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/inverted-index/internal/indexer/index"
)

const (
	MethodCreateIndex = "Index.Create"
	MethodGetIndex    = "Index.Get"
	MethodList        = "Index.List"
	MethodSearch      = "Index.Search"
)

type CreateIndexRequest struct {
	Name string `json:"name"`

	// APIKey is checked when the server runs with auth enabled.
	APIKey string `json:"api_key,omitempty"`

	// Content is the raw collection, a JSON array of documents. It is sent
	// as a string so that invalid JSON still reaches the validator.
	Content string `json:"content"`
}

type CreateIndexResponse struct {
	indexer.CollectionInfo
}

type GetIndexRequest struct {
	Name string `json:"name"`
}

type GetIndexResponse struct {
	indexer.CollectionInfo
	Index index.Index `json:"index"`
}

type ListResponse struct {
	Collections  []indexer.CollectionInfo `json:"collections"`
	LastSearched string                   `json:"last_searched,omitempty"`
}

// SearchRequest mirrors the HTTP search body: Terms is a JSON string or a
// nested array of strings, Target an optional JSON string.
type SearchRequest struct {
	Terms  json.RawMessage `json:"terms"`
	Target json.RawMessage `json:"target,omitempty"`
}

type SearchResponse struct {
	indexer.SearchResult
}
