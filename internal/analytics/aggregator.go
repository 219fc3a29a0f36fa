package analytics

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// maxLatencySamples caps the latency window used for percentiles.
const maxLatencySamples = 10000

const defaultTopTerms = 10

type AggregatedStats struct {
	TotalSearches        int64            `json:"total_searches"`
	CollectionsIndexed   int64            `json:"collections_indexed"`
	DocsIndexed          int64            `json:"docs_indexed"`
	CacheHits            int64            `json:"cache_hits"`
	CacheMisses          int64            `json:"cache_misses"`
	AvgLatencyMs         float64          `json:"avg_latency_ms"`
	P50LatencyMs         int64            `json:"p50_latency_ms"`
	P95LatencyMs         int64            `json:"p95_latency_ms"`
	P99LatencyMs         int64            `json:"p99_latency_ms"`
	SearchesByCollection map[string]int64 `json:"searches_by_collection"`
	TopTerms             []TermCount      `json:"top_terms"`
	ZeroHitTerms         []TermCount      `json:"zero_hit_terms"`
	QueriesPerMinute     float64          `json:"queries_per_minute"`
}

type TermCount struct {
	Term  string `json:"term"`
	Count int64  `json:"count"`
}

// Aggregator keeps running search and indexing statistics in memory.
type Aggregator struct {
	mu                 sync.Mutex
	totalSearches      int64
	collectionsIndexed int64
	docsIndexed        int64
	cacheHits          int64
	cacheMisses        int64
	latencies          []int64
	byCollection       map[string]int64
	termCounts         map[string]int64
	zeroHitTerms       map[string]int64
	startTime          time.Time
	logger             *slog.Logger
}

func NewAggregator() *Aggregator {
	return &Aggregator{
		latencies:    make([]int64, 0, 1024),
		byCollection: make(map[string]int64),
		termCounts:   make(map[string]int64),
		zeroHitTerms: make(map[string]int64),
		startTime:    time.Now(),
		logger:       slog.Default().With("component", "analytics-aggregator"),
	}
}

// Record folds one event into the running stats. Unknown event types are
// ignored.
func (a *Aggregator) Record(event any) {
	switch e := event.(type) {
	case SearchEvent:
		a.recordSearch(e)
	case IndexEvent:
		a.recordIndex(e)
	default:
		a.logger.Warn("ignoring unknown analytics event", "type", fmt.Sprintf("%T", event))
	}
}

func (a *Aggregator) recordSearch(e SearchEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.totalSearches++
	if e.CacheHit {
		a.cacheHits++
	} else {
		a.cacheMisses++
	}
	if len(a.latencies) == maxLatencySamples {
		copy(a.latencies, a.latencies[1:])
		a.latencies = a.latencies[:maxLatencySamples-1]
	}
	a.latencies = append(a.latencies, e.LatencyMs)
	a.byCollection[e.Collection]++
	for _, term := range e.Terms {
		a.termCounts[term]++
	}
	for _, term := range e.EmptyTerms {
		a.zeroHitTerms[term]++
	}
}

func (a *Aggregator) recordIndex(e IndexEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.collectionsIndexed++
	a.docsIndexed += int64(e.Documents)
}

// Stats is StatsTop with the default term list length.
func (a *Aggregator) Stats() AggregatedStats {
	return a.StatsTop(defaultTopTerms)
}

// StatsTop returns a snapshot whose TopTerms and ZeroHitTerms hold at most
// n entries each.
func (a *Aggregator) StatsTop(n int) AggregatedStats {
	a.mu.Lock()
	defer a.mu.Unlock()

	stats := AggregatedStats{
		TotalSearches:        a.totalSearches,
		CollectionsIndexed:   a.collectionsIndexed,
		DocsIndexed:          a.docsIndexed,
		CacheHits:            a.cacheHits,
		CacheMisses:          a.cacheMisses,
		SearchesByCollection: make(map[string]int64, len(a.byCollection)),
	}
	for name, n := range a.byCollection {
		stats.SearchesByCollection[name] = n
	}
	if len(a.latencies) > 0 {
		sorted := make([]int64, len(a.latencies))
		copy(sorted, a.latencies)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
		var sum int64
		for _, l := range sorted {
			sum += l
		}
		stats.AvgLatencyMs = float64(sum) / float64(len(sorted))
		stats.P50LatencyMs = percentile(sorted, 50)
		stats.P95LatencyMs = percentile(sorted, 95)
		stats.P99LatencyMs = percentile(sorted, 99)
	}
	stats.TopTerms = topN(a.termCounts, n)
	stats.ZeroHitTerms = topN(a.zeroHitTerms, n)
	if elapsed := time.Since(a.startTime).Minutes(); elapsed > 0 {
		stats.QueriesPerMinute = float64(stats.TotalSearches) / elapsed
	}
	return stats
}

func percentile(sorted []int64, pct int) int64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := (pct * len(sorted)) / 100
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

// topN orders by count descending, then term ascending.
func topN(counts map[string]int64, n int) []TermCount {
	result := make([]TermCount, 0, len(counts))
	for term, count := range counts {
		result = append(result, TermCount{Term: term, Count: count})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Count != result[j].Count {
			return result[i].Count > result[j].Count
		}
		return result[i].Term < result[j].Term
	})
	if len(result) > n {
		result = result[:n]
	}
	return result
}
