// Package integration wires the HTTP surfaces, the ingest pipeline, the
// query cache, the RPC service and analytics together in process. Kafka and
// Redis are replaced by in-memory stand-ins; PostgreSQL stays disabled.
package integration

import (
	"context"
	"encoding/json"
	"io"
	"net"
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
	"github.com/Adithya-Monish-Kumar-K/inverted-index/internal/indexer/consumer"
	ingesthandler "github.com/Adithya-Monish-Kumar-K/inverted-index/internal/ingestion/handler"
	"github.com/Adithya-Monish-Kumar-K/inverted-index/internal/ingestion/publisher"
	"github.com/Adithya-Monish-Kumar-K/inverted-index/internal/ledger"
	"github.com/Adithya-Monish-Kumar-K/inverted-index/internal/rpcapi"
	"github.com/Adithya-Monish-Kumar-K/inverted-index/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/inverted-index/internal/searcher/handler"
	apperrors "github.com/Adithya-Monish-Kumar-K/inverted-index/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/inverted-index/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/inverted-index/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/inverted-index/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/inverted-index/pkg/resilience"
	"github.com/Adithya-Monish-Kumar-K/inverted-index/pkg/rpc"
)

const (
	books = `[{"title":"Alice in Wonderland","text":"Alice falls into a rabbit hole."},{"title":"The Lord of the Rings","text":"A powerful ring."}]`
	pages = `[{"title":"Welcome to the Jungle"},{"title":"Desert Nights","text":"The stars fill the sky."}]`
)

// loopback delivers published events straight to a consumer handler, the
// way the ingest topic would.
type loopback struct {
	handle kafka.MessageHandler
}

func (l loopback) Publish(ctx context.Context, event kafka.Event) error {
	value, err := json.Marshal(event.Value)
	if err != nil {
		return err
	}
	return l.handle(ctx, []byte(event.Key), value)
}

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

type stack struct {
	engine *indexer.Engine
	agg    *analytics.Aggregator
	m      *metrics.Metrics
	http   *httptest.Server
	rpc    *rpcapi.Client
}

func newStack(t *testing.T) *stack {
	t.Helper()
	m := metrics.New(prometheus.NewRegistry())
	engine := indexer.NewEngine(m)
	agg := analytics.NewAggregator()
	collector := analytics.NewCollector(agg, 256)
	collector.Start(context.Background())
	t.Cleanup(collector.Close)
	queryCache := cache.New(&memStore{data: make(map[string]string)}, time.Minute, m)

	onIndexed := func(ctx context.Context, info indexer.CollectionInfo) {
		assert.NoError(t, queryCache.Invalidate(ctx, info.Name))
		collector.Track(analytics.IndexEvent{Collection: info.Name, Documents: info.Documents, Source: "test", Timestamp: time.Now()})
	}
	handle := consumer.HandleMessage(engine, ledger.New(nil), m, onIndexed)

	mux := http.NewServeMux()
	handler.New(engine, handler.Options{Cache: queryCache, Collector: collector, Metrics: m, MaxTerms: 64}).Register(mux)
	ingesthandler.New(publisher.New(loopback{handle: handle}, resilience.RetryConfig{MaxAttempts: 1}), 1<<20).Register(mux)
	mux.HandleFunc("GET /api/v1/analytics", analytics.NewHandler(agg).Stats)
	srv := httptest.NewServer(middleware.RequestID(middleware.Metrics(m)(mux)))
	t.Cleanup(srv.Close)

	rpcServer := rpc.NewServer()
	svc := rpcapi.NewService(engine)
	svc.OnIndexed = onIndexed
	svc.Register(rpcServer)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go rpcServer.Serve(ln)
	t.Cleanup(rpcServer.Stop)
	client, err := rpcapi.Dial(context.Background(), ln.Addr().String())
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	return &stack{engine: engine, agg: agg, m: m, http: srv, rpc: client}
}

func (s *stack) do(t *testing.T, method, target, body string) (int, string) {
	t.Helper()
	req, err := http.NewRequest(method, s.http.URL+target, strings.NewReader(body))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(raw)
}

type searchBody struct {
	Collection string  `json:"collection"`
	Postings   [][]int `json:"postings"`
	CacheHit   bool    `json:"cache_hit"`
}

func (s *stack) search(t *testing.T, query string) searchBody {
	t.Helper()
	code, body := s.do(t, http.MethodGet, "/api/v1/search?"+query, "")
	require.Equal(t, http.StatusOK, code, body)
	var out searchBody
	require.NoError(t, json.Unmarshal([]byte(body), &out))
	return out
}

func TestIngestThenSearch(t *testing.T) {
	s := newStack(t)

	code, body := s.do(t, http.MethodPost, "/api/v1/ingest/books.json", books)
	require.Equal(t, http.StatusAccepted, code, body)
	assert.Contains(t, body, `"status":"PENDING"`)

	got := s.search(t, "q=alice&q=ring")
	assert.Equal(t, "books.json", got.Collection)
	assert.Equal(t, [][]int{{0}, {1}}, got.Postings)
	assert.False(t, got.CacheHit)
	assert.True(t, s.search(t, "q=alice&q=ring").CacheHit)

	code, _ = s.do(t, http.MethodPost, "/api/v1/ingest/bad.json", `{"title":"x"}`)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, float64(1), testutil.ToFloat64(s.m.IngestMessagesTotal.WithLabelValues("indexed")))
}

func TestReplacementInvalidatesCache(t *testing.T) {
	s := newStack(t)
	code, _ := s.do(t, http.MethodPut, "/api/v1/collections/books.json", books)
	require.Equal(t, http.StatusCreated, code)

	assert.Equal(t, [][]int{{0}}, s.search(t, "q=alice").Postings)
	assert.True(t, s.search(t, "q=alice").CacheHit)

	_, err := s.rpc.CreateIndex(context.Background(), "books.json", []byte(`[{"title":"nobody"},{"title":"alice again"}]`))
	require.NoError(t, err)
	got := s.search(t, "q=alice")
	assert.False(t, got.CacheHit)
	assert.Equal(t, [][]int{{1}}, got.Postings)
}

func TestFallbackAcrossSurfaces(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()

	_, err := s.rpc.Search(ctx, json.RawMessage(`"alice"`), nil)
	assert.ErrorIs(t, err, apperrors.ErrNoIndexAvailable)

	s.do(t, http.MethodPut, "/api/v1/collections/books.json", books)
	_, err = s.rpc.CreateIndex(ctx, "pages.json", []byte(pages))
	require.NoError(t, err)

	// newest collection first
	assert.Equal(t, "pages.json", s.search(t, "q=the").Collection)

	// an explicit target over RPC moves the fallback for HTTP as well
	result, err := s.rpc.Search(ctx, json.RawMessage(`["rabbit"]`), json.RawMessage(`"books.json"`))
	require.NoError(t, err)
	assert.Equal(t, "books.json", result.Collection)
	assert.Equal(t, "books.json", s.search(t, "q=the").Collection)

	code, _ := s.do(t, http.MethodGet, "/api/v1/search?q=the&target=nope.json", "")
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "books.json", s.engine.LastSearched())
}

func TestAnalyticsSeesAllSurfaces(t *testing.T) {
	s := newStack(t)
	s.do(t, http.MethodPut, "/api/v1/collections/books.json", books)
	s.do(t, http.MethodPost, "/api/v1/ingest/pages.json", pages)
	s.search(t, "q=zebra")
	s.search(t, "q=alice&target=books.json")

	require.Eventually(t, func() bool {
		return s.agg.Stats().TotalSearches == 2
	}, time.Second, 10*time.Millisecond)

	code, body := s.do(t, http.MethodGet, "/api/v1/analytics", "")
	require.Equal(t, http.StatusOK, code)
	var stats analytics.AggregatedStats
	require.NoError(t, json.Unmarshal([]byte(body), &stats))
	assert.Equal(t, int64(2), stats.TotalSearches)
	assert.GreaterOrEqual(t, stats.CollectionsIndexed, int64(1))
	require.NotEmpty(t, stats.ZeroHitTerms)
	assert.Equal(t, "zebra", stats.ZeroHitTerms[0].Term)
}
