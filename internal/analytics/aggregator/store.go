// Package aggregator snapshots analytics stats to PostgreSQL.
package aggregator

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/inverted-index/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/inverted-index/pkg/postgres"
)

// DefaultRetain is how many snapshots SaveSnapshot keeps.
const DefaultRetain = 500

const schema = `
CREATE TABLE IF NOT EXISTS analytics_snapshots (
	id             BIGSERIAL PRIMARY KEY,
	total_searches BIGINT NOT NULL,
	docs_indexed   BIGINT NOT NULL,
	data           JSONB NOT NULL,
	captured_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS analytics_snapshots_captured_at_idx
	ON analytics_snapshots (captured_at DESC);`

// Store writes AggregatedStats snapshots and trims old ones.
type Store struct {
	db     *postgres.Client
	retain int
	logger *slog.Logger
}

// NewStore keeps the newest retain snapshots; retain <= 0 means
// DefaultRetain.
func NewStore(db *postgres.Client, retain int) *Store {
	if retain <= 0 {
		retain = DefaultRetain
	}
	return &Store{
		db:     db,
		retain: retain,
		logger: slog.Default().With("component", "analytics-store"),
	}
}

func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.DB.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("creating analytics schema: %w", err)
	}
	return nil
}

// SaveSnapshot inserts stats and deletes everything older than the newest
// retained rows in the same transaction.
func (s *Store) SaveSnapshot(ctx context.Context, stats analytics.AggregatedStats) error {
	data, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}
	var pruned int64
	err = s.db.InTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO analytics_snapshots (total_searches, docs_indexed, data, captured_at)
			 VALUES ($1, $2, $3, $4)`,
			stats.TotalSearches, stats.DocsIndexed, data, time.Now().UTC(),
		); err != nil {
			return fmt.Errorf("inserting snapshot: %w", err)
		}
		res, err := tx.ExecContext(ctx,
			`DELETE FROM analytics_snapshots WHERE id NOT IN (
				SELECT id FROM analytics_snapshots ORDER BY captured_at DESC, id DESC LIMIT $1)`,
			s.retain,
		)
		if err != nil {
			return fmt.Errorf("pruning snapshots: %w", err)
		}
		pruned, _ = res.RowsAffected()
		return nil
	})
	if err != nil {
		return err
	}
	s.logger.Debug("snapshot saved", "total_searches", stats.TotalSearches, "pruned", pruned)
	return nil
}

// LatestSnapshot returns nil, nil when nothing has been saved yet.
func (s *Store) LatestSnapshot(ctx context.Context) (*analytics.AggregatedStats, error) {
	var data []byte
	err := s.db.DB.QueryRowContext(ctx,
		`SELECT data FROM analytics_snapshots ORDER BY captured_at DESC, id DESC LIMIT 1`,
	).Scan(&data)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("reading latest snapshot: %w", err)
	}
	stats := new(analytics.AggregatedStats)
	if err := json.Unmarshal(data, stats); err != nil {
		return nil, fmt.Errorf("decoding snapshot: %w", err)
	}
	return stats, nil
}

// Run saves a snapshot of agg every interval until ctx ends, then writes a
// final one with a short detached deadline. It always returns nil so it can
// sit in an errgroup beside the servers.
func (s *Store) Run(ctx context.Context, agg *analytics.Aggregator, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	s.logger.Info("analytics snapshots enabled", "interval", interval, "retain", s.retain)
	for {
		select {
		case <-ticker.C:
			if err := s.SaveSnapshot(ctx, agg.Stats()); err != nil {
				s.logger.Error("snapshot failed", "error", err)
			}
		case <-ctx.Done():
			final, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			if err := s.SaveSnapshot(final, agg.Stats()); err != nil {
				s.logger.Error("final snapshot failed", "error", err)
			}
			return nil
		}
	}
}
