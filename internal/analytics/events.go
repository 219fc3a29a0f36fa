package analytics

import "time"

// SearchEvent describes one resolved, non-blank search.
type SearchEvent struct {
	Collection string    `json:"collection"`
	Terms      []string  `json:"terms"`
	EmptyTerms []string  `json:"empty_terms"`
	LatencyMs  int64     `json:"latency_ms"`
	CacheHit   bool      `json:"cache_hit"`
	Timestamp  time.Time `json:"timestamp"`
	RequestID  string    `json:"request_id"`
}

// IndexEvent describes one successful CreateIndex.
type IndexEvent struct {
	Collection string    `json:"collection"`
	Documents  int       `json:"documents"`
	Terms      int       `json:"terms"`
	Source     string    `json:"source"`
	Timestamp  time.Time `json:"timestamp"`
}
