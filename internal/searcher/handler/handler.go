// Package handler serves the collection and search HTTP API over an
// indexer.Engine, with an optional Redis query cache in front of lookups.
package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/Adithya-Monish-Kumar-K/inverted-index/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/inverted-index/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/inverted-index/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/inverted-index/internal/ledger"
	"github.com/Adithya-Monish-Kumar-K/inverted-index/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/inverted-index/internal/searcher/parser"
	apperrors "github.com/Adithya-Monish-Kumar-K/inverted-index/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/inverted-index/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/inverted-index/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/inverted-index/pkg/tracing"
)

const sourceHTTP = "http"

// Options carries the optional collaborators of a Handler. Nil fields
// disable the feature.
type Options struct {
	Cache        *cache.QueryCache
	Collector    *analytics.Collector
	Ledger       *ledger.Ledger
	Metrics      *metrics.Metrics
	MaxBodyBytes int64
	MaxTerms     int
}

type Handler struct {
	engine *indexer.Engine
	opts   Options
	logger *slog.Logger
}

func New(engine *indexer.Engine, opts Options) *Handler {
	return &Handler{
		engine: engine,
		opts:   opts,
		logger: slog.Default().With("component", "search-handler"),
	}
}

// Register mounts every route on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("PUT /api/v1/collections/{name}", h.CreateIndex)
	mux.HandleFunc("GET /api/v1/collections", h.ListCollections)
	mux.HandleFunc("GET /api/v1/collections/{name}", h.GetIndex)
	mux.HandleFunc("POST /api/v1/search", h.Search)
	mux.HandleFunc("GET /api/v1/search", h.SearchQuery)
	mux.HandleFunc("GET /api/v1/ledger", h.Ledger)
	mux.HandleFunc("GET /api/v1/cache/stats", h.CacheStats)
	mux.HandleFunc("POST /api/v1/cache/invalidate", h.CacheInvalidate)
}

func (h *Handler) CreateIndex(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromContext(ctx)
	name := r.PathValue("name")

	raw, err := h.readBody(w, r)
	if err != nil {
		h.writeBodyError(w, err)
		return
	}
	info, err := h.engine.CreateIndex(name, raw)
	if err != nil {
		if lerr := h.opts.Ledger.RecordFailed(ctx, name, sourceHTTP, err); lerr != nil {
			log.Error("ledger update failed", "collection", name, "error", lerr)
		}
		h.writeAppError(w, err)
		return
	}
	if err := h.opts.Ledger.RecordIndexed(ctx, info, sourceHTTP); err != nil {
		log.Error("ledger update failed", "collection", name, "error", err)
	}
	if h.opts.Cache != nil {
		if err := h.opts.Cache.Invalidate(ctx, name); err != nil {
			log.Warn("cache invalidation failed", "collection", name, "error", err)
		}
	}
	h.opts.Collector.Track(analytics.IndexEvent{
		Collection: info.Name,
		Documents:  info.Documents,
		Terms:      info.Terms,
		Source:     sourceHTTP,
		Timestamp:  time.Now().UTC(),
	})

	status := http.StatusCreated
	if info.Replaced {
		status = http.StatusOK
	}
	log.Info("collection indexed over http", "collection", name, "documents", info.Documents, "replaced", info.Replaced)
	h.writeJSON(w, status, info)
}

func (h *Handler) ListCollections(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]any{
		"collections":   h.engine.Collections(),
		"last_searched": h.engine.LastSearched(),
	})
}

type indexResponse struct {
	indexer.CollectionInfo
	Index index.Index `json:"index"`
}

func (h *Handler) GetIndex(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	idx, err := h.engine.GetIndex(name)
	if err != nil {
		h.writeAppError(w, err)
		return
	}
	info, err := h.engine.Collection(name)
	if err != nil {
		h.writeAppError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, indexResponse{CollectionInfo: info, Index: idx})
}

type searchRequest struct {
	Terms  json.RawMessage `json:"terms"`
	Target json.RawMessage `json:"target"`
}

// Search accepts {"terms": <string or nested array>, "target": <string>}.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	raw, err := h.readBody(w, r)
	if err != nil {
		h.writeBodyError(w, err)
		return
	}
	var req searchRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	q, err := parser.Parse(req.Terms)
	if err != nil {
		h.writeAppError(w, err)
		return
	}
	if q.IsBlank() {
		h.search(w, r, q, nil)
		return
	}
	target, err := parser.ParseTarget(req.Target)
	if err != nil {
		h.writeAppError(w, err)
		return
	}
	h.search(w, r, q, target)
}

// SearchQuery serves GET ?q=...&target=.... A single q is one term;
// repeated q parameters form a group.
func (h *Handler) SearchQuery(w http.ResponseWriter, r *http.Request) {
	values := r.URL.Query()
	var q parser.Term
	switch qs := values["q"]; len(qs) {
	case 0:
		h.writeAppError(w, fmt.Errorf("%w: query parameter 'q' is required", apperrors.ErrInvalidSearchParameter))
		return
	case 1:
		q = parser.Word(qs[0])
	default:
		q = parser.Words(qs...)
	}
	var target *string
	if values.Has("target") {
		name := values.Get("target")
		target = &name
	}
	h.search(w, r, q, target)
}

type searchResponse struct {
	*indexer.SearchResult
	CacheHit bool `json:"cache_hit"`
}

func (h *Handler) search(w http.ResponseWriter, r *http.Request, q parser.Term, target *string) {
	ctx, span := tracing.StartSpan(r.Context(), "search")
	log := logger.FromContext(ctx)
	start := time.Now()
	defer func() {
		span.End()
		span.Log(ctx, log)
	}()

	if q.IsBlank() {
		result, err := h.engine.Search(q, nil)
		if err != nil {
			h.writeAppError(w, err)
			return
		}
		h.writeJSON(w, http.StatusOK, searchResponse{SearchResult: result})
		return
	}
	terms := parser.Flatten(q)
	if h.opts.MaxTerms > 0 && len(terms) > h.opts.MaxTerms {
		h.writeAppError(w, fmt.Errorf("%w: %d terms exceeds the limit of %d",
			apperrors.ErrInvalidSearchParameter, len(terms), h.opts.MaxTerms))
		return
	}

	var result *indexer.SearchResult
	var cacheHit bool
	var err error
	if h.opts.Cache == nil {
		result, err = h.engine.Search(q, target)
	} else {
		result, cacheHit, err = h.cachedSearch(ctx, terms, target, start)
	}
	if err != nil {
		log.Warn("search failed", "error", err)
		h.writeAppError(w, err)
		return
	}

	latency := time.Since(start)
	span.SetAttr("collection", result.Collection)
	span.SetAttr("terms", len(result.Terms))
	var empty []string
	for i, p := range result.Postings {
		if len(p) == 0 {
			empty = append(empty, result.Terms[i])
		}
	}
	log.Info("search completed",
		"collection", result.Collection,
		"terms", len(result.Terms),
		"empty_terms", len(empty),
		"cache_hit", cacheHit,
		"latency_ms", latency.Milliseconds(),
	)
	h.opts.Collector.Track(analytics.SearchEvent{
		Collection: result.Collection,
		Terms:      result.Terms,
		EmptyTerms: empty,
		LatencyMs:  latency.Milliseconds(),
		CacheHit:   cacheHit,
		Timestamp:  time.Now().UTC(),
		RequestID:  logger.RequestID(ctx),
	})
	h.writeJSON(w, http.StatusOK, searchResponse{SearchResult: result, CacheHit: cacheHit})
}

// cachedSearch resolves the target first so the last-searched collection
// moves exactly as an uncached search would, then serves the lookup from
// the cache when possible.
func (h *Handler) cachedSearch(ctx context.Context, terms []string, target *string, start time.Time) (*indexer.SearchResult, bool, error) {
	_, resolveSpan := tracing.StartSpan(ctx, "resolve")
	res, err := h.engine.Resolve(target)
	resolveSpan.End()
	if err != nil {
		h.countSearch("error", "none", start)
		return nil, false, err
	}
	resolveSpan.SetAttr("generation", res.Generation)

	cacheCtx, cacheSpan := tracing.StartSpan(ctx, "cache")
	postings, hit, err := h.opts.Cache.GetOrCompute(cacheCtx, res, terms, func() ([]index.PostingList, error) {
		_, lookupSpan := tracing.StartSpan(cacheCtx, "lookup")
		defer lookupSpan.End()
		return h.engine.Lookup(res.Collection, terms)
	})
	cacheSpan.SetAttr("hit", hit)
	cacheSpan.End()
	if err != nil {
		h.countSearch("error", "miss", start)
		return nil, false, err
	}
	resultType := "zero_result"
	for _, p := range postings {
		if len(p) > 0 {
			resultType = "hit"
			break
		}
	}
	cacheStatus := "miss"
	if hit {
		cacheStatus = "hit"
	}
	h.countSearch(resultType, cacheStatus, start)
	if h.opts.Metrics != nil {
		h.opts.Metrics.SearchTermsCount.Observe(float64(len(terms)))
	}
	return &indexer.SearchResult{
		Collection: res.Collection,
		Terms:      terms,
		Postings:   postings,
	}, hit, nil
}

func (h *Handler) Ledger(w http.ResponseWriter, r *http.Request) {
	if !h.opts.Ledger.Enabled() {
		h.writeError(w, http.StatusServiceUnavailable, "ledger is disabled")
		return
	}
	entries, err := h.opts.Ledger.List(r.Context())
	if err != nil {
		h.logger.Error("listing ledger failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, "listing ledger failed")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"collections": entries})
}

func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	if h.opts.Cache == nil {
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
		return
	}
	hits, misses := h.opts.Cache.Stats()
	total := hits + misses
	var hitRate float64
	if total > 0 {
		hitRate = float64(hits) / float64(total) * 100
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"hits":     hits,
		"misses":   misses,
		"total":    total,
		"hit_rate": fmt.Sprintf("%.1f%%", hitRate),
	})
}

func (h *Handler) CacheInvalidate(w http.ResponseWriter, r *http.Request) {
	if h.opts.Cache == nil {
		h.writeError(w, http.StatusServiceUnavailable, "caching is disabled")
		return
	}
	if err := h.opts.Cache.InvalidateAll(r.Context()); err != nil {
		h.logger.Error("cache invalidation failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, "cache invalidation failed")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "invalidated"})
}

func (h *Handler) countSearch(resultType, cacheStatus string, start time.Time) {
	if h.opts.Metrics == nil {
		return
	}
	h.opts.Metrics.SearchQueriesTotal.WithLabelValues(resultType).Inc()
	h.opts.Metrics.SearchLatency.WithLabelValues(cacheStatus).Observe(time.Since(start).Seconds())
}

func (h *Handler) readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	body := r.Body
	if h.opts.MaxBodyBytes > 0 {
		body = http.MaxBytesReader(w, r.Body, h.opts.MaxBodyBytes)
	}
	return io.ReadAll(body)
}

func (h *Handler) writeBodyError(w http.ResponseWriter, err error) {
	h.writeAppError(w, apperrors.BodyError(err))
}

func (h *Handler) writeAppError(w http.ResponseWriter, err error) {
	h.writeError(w, apperrors.HTTPStatusCode(err), err.Error())
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
