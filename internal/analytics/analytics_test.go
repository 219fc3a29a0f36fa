package analytics

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAggregator(t *testing.T) {
	a := NewAggregator()
	a.Record(IndexEvent{Collection: "books.json", Documents: 2})
	a.Record(SearchEvent{Collection: "books.json", Terms: []string{"alice", "zebra"}, EmptyTerms: []string{"zebra"}, LatencyMs: 4})
	a.Record(SearchEvent{Collection: "books.json", Terms: []string{"alice"}, LatencyMs: 2, CacheHit: true})
	a.Record(SearchEvent{Collection: "pages.json", Terms: []string{"a"}, LatencyMs: 6})
	a.Record("ignored")

	stats := a.Stats()
	assert.Equal(t, int64(3), stats.TotalSearches)
	assert.Equal(t, int64(1), stats.CollectionsIndexed)
	assert.Equal(t, int64(2), stats.DocsIndexed)
	assert.Equal(t, int64(1), stats.CacheHits)
	assert.Equal(t, int64(2), stats.CacheMisses)
	assert.Equal(t, map[string]int64{"books.json": 2, "pages.json": 1}, stats.SearchesByCollection)
	assert.Equal(t, []TermCount{{"alice", 2}, {"a", 1}, {"zebra", 1}}, stats.TopTerms)
	assert.Equal(t, []TermCount{{"zebra", 1}}, stats.ZeroHitTerms)
	assert.InDelta(t, 4.0, stats.AvgLatencyMs, 0.001)
	assert.Equal(t, int64(4), stats.P50LatencyMs)
	assert.Equal(t, int64(6), stats.P99LatencyMs)
}

func TestCollectorDrainsOnClose(t *testing.T) {
	a := NewAggregator()
	c := NewCollector(a, 16)
	c.Start(context.Background())
	for range 5 {
		c.Track(SearchEvent{Collection: "books.json", Terms: []string{"hobbit"}})
	}
	c.Close()
	assert.Equal(t, int64(5), a.Stats().TotalSearches)

	c.Track(SearchEvent{Collection: "books.json"})
	c.Close()
	assert.Equal(t, int64(1), c.Dropped())
	assert.Equal(t, int64(5), a.Stats().TotalSearches)

	var nilCollector *Collector
	nilCollector.Track(SearchEvent{})
}

func TestCollectorCloseWithoutStart(t *testing.T) {
	c := NewCollector(NewAggregator(), 4)
	closed := make(chan struct{})
	go func() {
		c.Close()
		close(closed)
	}()
	select {
	case <-closed:
	case <-time.After(time.Second):
		t.Fatal("Close blocked on a collector that was never started")
	}
	c.Track(SearchEvent{})
	assert.Equal(t, int64(1), c.Dropped())
}

type blockingSink struct{ release chan struct{} }

func (b blockingSink) Record(any) { <-b.release }

func TestCollectorDropsWhenFull(t *testing.T) {
	sink := blockingSink{release: make(chan struct{})}
	c := NewCollector(sink, 1)
	c.Start(context.Background())
	for range 10 {
		c.Track(SearchEvent{})
	}
	assert.GreaterOrEqual(t, c.Dropped(), int64(8))
	close(sink.release)
	c.Close()
}

func TestHandlerStats(t *testing.T) {
	a := NewAggregator()
	a.Record(SearchEvent{Collection: "books.json", Terms: []string{"alice"}})
	rec := httptest.NewRecorder()
	NewHandler(a).Stats(rec, httptest.NewRequest(http.MethodGet, "/api/v1/analytics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var stats AggregatedStats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, int64(1), stats.TotalSearches)
}

func TestHandlerQueryParameters(t *testing.T) {
	a := NewAggregator()
	a.Record(SearchEvent{Collection: "books.json", Terms: []string{"alice", "rabbit", "hole"}})
	a.Record(SearchEvent{Collection: "pages.json", Terms: []string{"alice"}})
	h := NewHandler(a)

	get := func(target string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		h.Stats(rec, httptest.NewRequest(http.MethodGet, target, nil))
		return rec
	}

	rec := get("/api/v1/analytics?top=1&collection=pages.json")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
	var stats AggregatedStats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, []TermCount{{"alice", 2}}, stats.TopTerms)
	assert.Equal(t, map[string]int64{"pages.json": 1}, stats.SearchesByCollection)

	for _, bad := range []string{"0", "101", "many"} {
		assert.Equal(t, http.StatusBadRequest, get("/api/v1/analytics?top="+bad).Code, bad)
	}
}
