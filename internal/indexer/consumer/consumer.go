// Package consumer indexes collections delivered on the ingest topic.
package consumer

import (
	"context"
	"log/slog"

	"github.com/Adithya-Monish-Kumar-K/inverted-index/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/inverted-index/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/inverted-index/internal/ledger"
	"github.com/Adithya-Monish-Kumar-K/inverted-index/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/inverted-index/pkg/metrics"
)

const source = "kafka"

// IndexConsumer drives a Kafka consumer whose handler feeds the engine.
type IndexConsumer struct {
	consumer *kafka.Consumer
	logger   *slog.Logger
}

func New(kafkaConsumer *kafka.Consumer) *IndexConsumer {
	return &IndexConsumer{
		consumer: kafkaConsumer,
		logger:   slog.Default().With("component", "index-consumer"),
	}
}

// Start blocks until ctx is cancelled.
func (ic *IndexConsumer) Start(ctx context.Context) error {
	ic.logger.Info("index consumer starting")
	return ic.consumer.Start(ctx)
}

func (ic *IndexConsumer) Close() error {
	return ic.consumer.Close()
}

// HandleMessage returns a handler that indexes each IngestEvent into
// engine and records the outcome in l. Undecodable messages and invalid
// collections are logged and acknowledged, since redelivery cannot fix
// them. onIndexed, when set, runs after every successful index.
func HandleMessage(engine *indexer.Engine, l *ledger.Ledger, m *metrics.Metrics, onIndexed func(ctx context.Context, info indexer.CollectionInfo)) kafka.MessageHandler {
	logger := slog.Default().With("component", "index-consumer")
	count := func(status string) {
		if m != nil {
			m.IngestMessagesTotal.WithLabelValues(status).Inc()
		}
	}
	return func(ctx context.Context, key []byte, value []byte) error {
		event, err := kafka.DecodeJSON[ingestion.IngestEvent](value)
		if err != nil {
			logger.Error("failed to decode ingest event", "error", err, "key", string(key))
			count("malformed")
			return nil
		}
		name := event.Collection
		if name == "" {
			name = string(key)
		}
		logger.Debug("processing ingest event", "collection", name, "published_at", event.PublishedAt)

		info, err := engine.CreateIndex(name, []byte(event.Content))
		if err != nil {
			logger.Warn("collection rejected", "collection", name, "error", err)
			count("rejected")
			if lerr := l.RecordFailed(ctx, name, source, err); lerr != nil {
				logger.Error("ledger update failed", "collection", name, "error", lerr)
			}
			return nil
		}
		count("indexed")
		if err := l.RecordIndexed(ctx, info, source); err != nil {
			logger.Error("ledger update failed", "collection", name, "error", err)
		}
		if onIndexed != nil {
			onIndexed(ctx, info)
		}
		logger.Info("collection indexed",
			"collection", info.Name,
			"documents", info.Documents,
			"generation", info.Generation,
		)
		return nil
	}
}
