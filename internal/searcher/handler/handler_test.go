package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/inverted-index/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/inverted-index/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/inverted-index/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/inverted-index/pkg/metrics"
)

const (
	books = `[{"title":"Alice in Wonderland","text":"Down the rabbit hole"},{"title":"The Lord of the Rings","text":"One ring to rule them all"}]`
	pages = `[{"title":"a page"},{"title":"another page"}]`
)

type memStore struct {
	mu   sync.Mutex
	data map[string]string
}

func (s *memStore) Get(_ context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.data[key]
	if !ok {
		return "", redis.Nil
	}
	return v, nil
}

func (s *memStore) Set(_ context.Context, key string, value any, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = string(value.([]byte))
	return nil
}

func (s *memStore) FlushByPattern(_ context.Context, pattern string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for key := range s.data {
		if ok, _ := path.Match(pattern, key); ok {
			delete(s.data, key)
			n++
		}
	}
	return n, nil
}

type server struct {
	t      *testing.T
	mux    *http.ServeMux
	engine *indexer.Engine
}

func newServer(t *testing.T, opts Options) *server {
	t.Helper()
	engine := indexer.NewEngine(opts.Metrics)
	mux := http.NewServeMux()
	New(engine, opts).Register(mux)
	return &server{t: t, mux: mux, engine: engine}
}

func (s *server) do(method, target, body string) *httptest.ResponseRecorder {
	s.t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	s.mux.ServeHTTP(rec, req)
	return rec
}

type searchBody struct {
	Collection string   `json:"collection"`
	Terms      []string `json:"terms"`
	Postings   [][]int  `json:"postings"`
	CacheHit   bool     `json:"cache_hit"`
}

func decodeSearch(t *testing.T, rec *httptest.ResponseRecorder) searchBody {
	t.Helper()
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var body searchBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestCreateIndexStatus(t *testing.T) {
	s := newServer(t, Options{})
	rec := s.do(http.MethodPut, "/api/v1/collections/books.json", books)
	assert.Equal(t, http.StatusCreated, rec.Code)

	var info indexer.CollectionInfo
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &info))
	assert.Equal(t, "books.json", info.Name)
	assert.Equal(t, 2, info.Documents)

	rec = s.do(http.MethodPut, "/api/v1/collections/books.json", books)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCreateIndexErrors(t *testing.T) {
	s := newServer(t, Options{MaxBodyBytes: 64})
	cases := []struct {
		body string
		code int
		msg  string
	}{
		{"   ", http.StatusBadRequest, "collection has no content"},
		{`{"title":"x"}`, http.StatusBadRequest, "not a valid json array of documents"},
		{`[{"title":"x"}, 1]`, http.StatusBadRequest, "not a valid json array of documents"},
		{"[" + strings.Repeat(`{"title":"x"},`, 10) + "{}]", http.StatusRequestEntityTooLarge, "body exceeds 64 bytes"},
	}
	for _, tc := range cases {
		rec := s.do(http.MethodPut, "/api/v1/collections/bad.json", tc.body)
		assert.Equal(t, tc.code, rec.Code, tc.body)
		assert.Contains(t, rec.Body.String(), tc.msg)
	}
	assert.Empty(t, s.engine.Collections())
}

func TestGetIndex(t *testing.T) {
	s := newServer(t, Options{})
	s.do(http.MethodPut, "/api/v1/collections/pages.json", pages)

	rec := s.do(http.MethodGet, "/api/v1/collections/pages.json", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Name  string           `json:"name"`
		Index map[string][]int `json:"index"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "pages.json", body.Name)
	assert.Equal(t, []int{0, 1}, body.Index["page"])
	assert.Equal(t, []int{0}, body.Index["a"])

	rec = s.do(http.MethodGet, "/api/v1/collections/missing.json", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListCollections(t *testing.T) {
	s := newServer(t, Options{})
	s.do(http.MethodPut, "/api/v1/collections/pages.json", pages)
	s.do(http.MethodPut, "/api/v1/collections/books.json", books)

	rec := s.do(http.MethodGet, "/api/v1/collections", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Collections []indexer.CollectionInfo `json:"collections"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Collections, 2)
	assert.Equal(t, "pages.json", body.Collections[0].Name)
	assert.Equal(t, "books.json", body.Collections[1].Name)
}

func TestSearchPositionalAlignment(t *testing.T) {
	s := newServer(t, Options{})
	s.do(http.MethodPut, "/api/v1/collections/books.json", books)

	body := decodeSearch(t, s.do(http.MethodPost, "/api/v1/search",
		`{"terms":["Alice", ["zebra", "rabbit hole"]], "target":"books.json"}`))
	assert.Equal(t, "books.json", body.Collection)
	assert.Equal(t, []string{"alice", "zebra", "rabbit", "hole"}, body.Terms)
	assert.Equal(t, [][]int{{0}, {}, {0}, {0}}, body.Postings)
}

func TestSearchFallback(t *testing.T) {
	s := newServer(t, Options{})

	rec := s.do(http.MethodPost, "/api/v1/search", `{"terms":"alice"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	s.do(http.MethodPut, "/api/v1/collections/books.json", books)
	s.do(http.MethodPut, "/api/v1/collections/pages.json", pages)

	body := decodeSearch(t, s.do(http.MethodGet, "/api/v1/search?q=page", ""))
	assert.Equal(t, "pages.json", body.Collection)

	body = decodeSearch(t, s.do(http.MethodGet, "/api/v1/search?q=ring&target=books.json", ""))
	assert.Equal(t, "books.json", body.Collection)
	assert.Equal(t, [][]int{{1}}, body.Postings)

	body = decodeSearch(t, s.do(http.MethodGet, "/api/v1/search?q=alice&q=ring", ""))
	assert.Equal(t, "books.json", body.Collection)
	assert.Equal(t, [][]int{{0}, {1}}, body.Postings)
}

func TestSearchErrors(t *testing.T) {
	s := newServer(t, Options{MaxTerms: 3})
	s.do(http.MethodPut, "/api/v1/collections/books.json", books)

	cases := []struct {
		method, target, body string
		code                 int
	}{
		{http.MethodPost, "/api/v1/search", `{"terms":42}`, http.StatusBadRequest},
		{http.MethodPost, "/api/v1/search", `{"terms":["a", 1]}`, http.StatusBadRequest},
		{http.MethodPost, "/api/v1/search", `{}`, http.StatusBadRequest},
		{http.MethodPost, "/api/v1/search", `{"terms":"a","target":7}`, http.StatusBadRequest},
		{http.MethodPost, "/api/v1/search", `{"terms":"a","target":"nope.json"}`, http.StatusBadRequest},
		{http.MethodPost, "/api/v1/search", `{"terms":"a b c d"}`, http.StatusBadRequest},
		{http.MethodPost, "/api/v1/search", `not json`, http.StatusBadRequest},
		{http.MethodGet, "/api/v1/search", "", http.StatusBadRequest},
	}
	for _, tc := range cases {
		rec := s.do(tc.method, tc.target, tc.body)
		assert.Equal(t, tc.code, rec.Code, tc.body)
	}
	assert.Equal(t, "", s.engine.LastSearched())
}

func TestBlankSearch(t *testing.T) {
	s := newServer(t, Options{})
	body := decodeSearch(t, s.do(http.MethodPost, "/api/v1/search", `{"terms":[],"target":42}`))
	assert.Empty(t, body.Terms)
	assert.Empty(t, body.Postings)
	assert.Equal(t, "", s.engine.LastSearched())
}

func TestCachedSearch(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	store := &memStore{data: make(map[string]string)}
	agg := analytics.NewAggregator()
	collector := analytics.NewCollector(agg, 16)
	collector.Start(context.Background())
	s := newServer(t, Options{
		Cache:     cache.New(store, time.Minute, m),
		Collector: collector,
		Metrics:   m,
	})
	s.do(http.MethodPut, "/api/v1/collections/books.json", books)
	s.do(http.MethodPut, "/api/v1/collections/pages.json", pages)

	first := decodeSearch(t, s.do(http.MethodGet, "/api/v1/search?q=ring&target=books.json", ""))
	assert.False(t, first.CacheHit)
	second := decodeSearch(t, s.do(http.MethodGet, "/api/v1/search?q=ring", ""))
	assert.True(t, second.CacheHit)
	assert.Equal(t, "books.json", second.Collection)
	assert.Equal(t, first.Postings, second.Postings)
	assert.Equal(t, "books.json", s.engine.LastSearched())

	s.do(http.MethodPut, "/api/v1/collections/books.json", `[{"title":"ring"}]`)
	third := decodeSearch(t, s.do(http.MethodGet, "/api/v1/search?q=ring", ""))
	assert.False(t, third.CacheHit)
	assert.Equal(t, [][]int{{0}}, third.Postings)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.CacheHitsTotal))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.CacheMissesTotal))

	rec := s.do(http.MethodGet, "/api/v1/cache/stats", "")
	assert.Contains(t, rec.Body.String(), `"hits":1`)
	rec = s.do(http.MethodPost, "/api/v1/cache/invalidate", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	collector.Close()
	stats := agg.Stats()
	assert.Equal(t, int64(3), stats.TotalSearches)
	assert.Equal(t, int64(3), stats.CollectionsIndexed)
}

func TestDisabledFeatures(t *testing.T) {
	s := newServer(t, Options{})
	assert.Equal(t, http.StatusServiceUnavailable, s.do(http.MethodGet, "/api/v1/ledger", "").Code)
	assert.Equal(t, http.StatusServiceUnavailable, s.do(http.MethodPost, "/api/v1/cache/invalidate", "").Code)
	assert.JSONEq(t, `{"status":"disabled"}`, s.do(http.MethodGet, "/api/v1/cache/stats", "").Body.String())
}
