// Package loadtest drives concurrent GET /api/v1/search traffic at a running
// server and summarises latency, status codes and cache hits.
package loadtest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"maps"
	"math"
	"net/http"
	"net/url"
	"slices"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultQueries are used when no queries are configured.
var DefaultQueries = []string{
	"alice",
	"rabbit hole",
	"ring",
	"wonderland",
	"the",
	"lord of the rings",
	"page",
	"zebra",
}

type Config struct {
	BaseURL     string
	Concurrency int
	Duration    time.Duration
	Queries     []string

	// Target is sent as the target parameter when non-empty.
	Target string
}

type Stats struct {
	totalRequests atomic.Int64
	successCount  atomic.Int64
	errorCount    atomic.Int64
	cacheHits     atomic.Int64
	latencies     []time.Duration
	latenciesMu   sync.Mutex
	statusCodes   map[int]*atomic.Int64
	statusCodesMu sync.Mutex
}

func NewStats() *Stats {
	return &Stats{
		latencies:   make([]time.Duration, 0, 100000),
		statusCodes: make(map[int]*atomic.Int64),
	}
}

func (s *Stats) RecordRequest(duration time.Duration, statusCode int, cacheHit bool, err error) {
	s.totalRequests.Add(1)

	if err != nil {
		s.errorCount.Add(1)
		return
	}

	if statusCode >= 200 && statusCode < 300 {
		s.successCount.Add(1)
	} else {
		s.errorCount.Add(1)
	}
	if cacheHit {
		s.cacheHits.Add(1)
	}

	s.latenciesMu.Lock()
	s.latencies = append(s.latencies, duration)
	s.latenciesMu.Unlock()

	s.statusCodesMu.Lock()
	if _, ok := s.statusCodes[statusCode]; !ok {
		s.statusCodes[statusCode] = &atomic.Int64{}
	}
	s.statusCodes[statusCode].Add(1)
	s.statusCodesMu.Unlock()
}

func (s *Stats) Total() int64     { return s.totalRequests.Load() }
func (s *Stats) Successes() int64 { return s.successCount.Load() }
func (s *Stats) Errors() int64    { return s.errorCount.Load() }
func (s *Stats) CacheHits() int64 { return s.cacheHits.Load() }

// StatusCount returns how many responses carried code.
func (s *Stats) StatusCount(code int) int64 {
	s.statusCodesMu.Lock()
	defer s.statusCodesMu.Unlock()
	if c, ok := s.statusCodes[code]; ok {
		return c.Load()
	}
	return 0
}

// StatusCodes returns the distinct response codes seen, ascending.
func (s *Stats) StatusCodes() []int {
	s.statusCodesMu.Lock()
	defer s.statusCodesMu.Unlock()
	return slices.Sorted(maps.Keys(s.statusCodes))
}

// SearchURL builds the GET search URL for one query. Each whitespace
// separated word becomes its own flattened term on the server.
func SearchURL(baseURL, query, target string) string {
	v := url.Values{}
	v.Set("q", query)
	if target != "" {
		v.Set("target", target)
	}
	return baseURL + "/api/v1/search?" + v.Encode()
}

// Run issues requests from cfg.Concurrency workers until cfg.Duration
// elapses or ctx is cancelled. progress receives a dot every five seconds
// and may be nil.
func Run(ctx context.Context, cfg Config, progress io.Writer) *Stats {
	if len(cfg.Queries) == 0 {
		cfg.Queries = DefaultQueries
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if progress == nil {
		progress = io.Discard
	}
	stats := NewStats()
	client := &http.Client{
		Timeout: 10 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        cfg.Concurrency * 2,
			MaxIdleConnsPerHost: cfg.Concurrency * 2,
			IdleConnTimeout:     90 * time.Second,
		},
	}
	defer client.CloseIdleConnections()

	ctx, cancel := context.WithTimeout(ctx, cfg.Duration)
	defer cancel()

	var wg sync.WaitGroup
	fmt.Fprint(progress, "Running")

	for w := 0; w < cfg.Concurrency; w++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			queryIdx := workerID

			for ctx.Err() == nil {
				query := cfg.Queries[queryIdx%len(cfg.Queries)]
				queryIdx++

				start := time.Now()
				status, hit, err := doSearch(ctx, client, SearchURL(cfg.BaseURL, query, cfg.Target))
				duration := time.Since(start)
				if err != nil && ctx.Err() != nil {
					return
				}
				stats.RecordRequest(duration, status, hit, err)
			}
		}(w)
	}

	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				fmt.Fprint(progress, ".")
			}
		}
	}()

	wg.Wait()
	close(done)
	fmt.Fprintln(progress, " done!")
	fmt.Fprintln(progress)
	return stats
}

func doSearch(ctx context.Context, client *http.Client, rawURL string) (int, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return 0, false, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return 0, false, err
	}
	defer resp.Body.Close()

	var body struct {
		CacheHit bool `json:"cache_hit"`
	}
	if resp.StatusCode == http.StatusOK {
		_ = json.NewDecoder(resp.Body).Decode(&body)
	}
	io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, body.CacheHit, nil
}

// ErrNoRequests is returned by Report when nothing completed.
var ErrNoRequests = errors.New("no requests completed, is the service running?")

// Report writes the summary to out.
func Report(out io.Writer, stats *Stats, duration time.Duration) error {
	total := stats.Total()
	success := stats.Successes()
	failed := stats.Errors()

	fmt.Fprintln(out, "=== Results ===")
	fmt.Fprintf(out, "Total Requests:  %d\n", total)
	fmt.Fprintf(out, "Successful:      %d\n", success)
	fmt.Fprintf(out, "Errors:          %d\n", failed)
	fmt.Fprintf(out, "Cache Hits:      %d\n", stats.CacheHits())

	if total > 0 {
		fmt.Fprintf(out, "Error Rate:      %.2f%%\n", float64(failed)/float64(total)*100)
		fmt.Fprintf(out, "Requests/sec:    %.2f\n", float64(total)/duration.Seconds())
	}

	stats.latenciesMu.Lock()
	latencies := slices.Clone(stats.latencies)
	stats.latenciesMu.Unlock()

	if len(latencies) > 0 {
		slices.Sort(latencies)

		var sum time.Duration
		for _, l := range latencies {
			sum += l
		}
		avg := sum / time.Duration(len(latencies))

		fmt.Fprintln(out)
		fmt.Fprintln(out, "=== Latency ===")
		fmt.Fprintf(out, "Min:    %s\n", latencies[0])
		fmt.Fprintf(out, "Avg:    %s\n", avg)
		fmt.Fprintf(out, "P50:    %s\n", Percentile(latencies, 50))
		fmt.Fprintf(out, "P90:    %s\n", Percentile(latencies, 90))
		fmt.Fprintf(out, "P95:    %s\n", Percentile(latencies, 95))
		fmt.Fprintf(out, "P99:    %s\n", Percentile(latencies, 99))
		fmt.Fprintf(out, "Max:    %s\n", latencies[len(latencies)-1])

		var sumSquared float64
		avgFloat := float64(avg)
		for _, l := range latencies {
			diff := float64(l) - avgFloat
			sumSquared += diff * diff
		}
		fmt.Fprintf(out, "StdDev: %s\n", time.Duration(math.Sqrt(sumSquared/float64(len(latencies)))))
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, "=== Status Codes ===")
	for _, code := range stats.StatusCodes() {
		fmt.Fprintf(out, "  %d: %d\n", code, stats.StatusCount(code))
	}

	if total == 0 {
		return ErrNoRequests
	}
	return nil
}

// Percentile expects sorted input.
func Percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(p/100*float64(len(sorted)))) - 1
	idx = max(0, min(idx, len(sorted)-1))
	return sorted[idx]
}
