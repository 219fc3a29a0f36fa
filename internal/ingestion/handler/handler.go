// Package handler accepts collections over HTTP for asynchronous indexing
// through the Kafka ingest topic.
package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/Adithya-Monish-Kumar-K/inverted-index/internal/ingestion/publisher"
	apperrors "github.com/Adithya-Monish-Kumar-K/inverted-index/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/inverted-index/pkg/logger"
)

// Publisher is satisfied by *publisher.Publisher.
type Publisher interface {
	Publish(ctx context.Context, name string, raw []byte) (*publisher.Receipt, error)
}

type Handler struct {
	publisher    Publisher
	maxBodyBytes int64
	logger       *slog.Logger
}

func New(pub Publisher, maxBodyBytes int64) *Handler {
	return &Handler{
		publisher:    pub,
		maxBodyBytes: maxBodyBytes,
		logger:       slog.Default().With("component", "ingestion-handler"),
	}
}

func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/ingest/{name}", h.Ingest)
}

// Ingest validates the body as a collection and queues it. It answers 202
// once the event is on the topic; indexing happens later.
func (h *Handler) Ingest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromContext(ctx)
	name := r.PathValue("name")

	body := r.Body
	if h.maxBodyBytes > 0 {
		body = http.MaxBytesReader(w, r.Body, h.maxBodyBytes)
	}
	raw, err := io.ReadAll(body)
	if err != nil {
		bodyErr := apperrors.BodyError(err)
		h.writeError(w, bodyErr.StatusCode, bodyErr.Error())
		return
	}

	receipt, err := h.publisher.Publish(ctx, name, raw)
	if err != nil {
		statusCode := apperrors.HTTPStatusCode(err)
		if statusCode == http.StatusInternalServerError {
			statusCode = http.StatusServiceUnavailable
		}
		log.Error("ingestion failed", "collection", name, "error", err, "status_code", statusCode)
		h.writeError(w, statusCode, err.Error())
		return
	}
	log.Info("collection queued", "collection", name, "documents", receipt.Documents)
	h.writeJSON(w, http.StatusAccepted, receipt)
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
