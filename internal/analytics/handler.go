package analytics

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
)

// maxTopTerms bounds the ?top= parameter.
const maxTopTerms = 100

type Handler struct {
	aggregator *Aggregator
	logger     *slog.Logger
}

func NewHandler(aggregator *Aggregator) *Handler {
	return &Handler{
		aggregator: aggregator,
		logger:     slog.Default().With("component", "analytics-handler"),
	}
}

// Stats serves GET /api/v1/analytics. ?top=N sets how many top and zero-hit
// terms are listed; ?collection=name narrows searches_by_collection to one
// collection.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	top := defaultTopTerms
	if v := query.Get("top"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxTopTerms {
			h.writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "top must be an integer between 1 and " + strconv.Itoa(maxTopTerms),
			})
			return
		}
		top = n
	}
	stats := h.aggregator.StatsTop(top)
	if name := query.Get("collection"); name != "" {
		stats.SearchesByCollection = map[string]int64{name: stats.SearchesByCollection[name]}
	}
	w.Header().Set("Cache-Control", "no-store")
	h.writeJSON(w, http.StatusOK, stats)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("failed to write analytics response", "error", err)
	}
}
