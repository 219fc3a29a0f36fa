// Package ledger records every index operation in PostgreSQL: the current
// state of each collection and an append-only history of attempts.
// A Ledger without a database accepts every call and records nothing.
package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/inverted-index/internal/indexer"
	apperrors "github.com/Adithya-Monish-Kumar-K/inverted-index/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/inverted-index/pkg/postgres"
)

const (
	StatusIndexed = "INDEXED"
	StatusFailed  = "FAILED"
)

const schema = `
CREATE TABLE IF NOT EXISTS collections (
	name        TEXT PRIMARY KEY,
	documents   INTEGER NOT NULL,
	terms       INTEGER NOT NULL,
	generation  BIGINT NOT NULL,
	source      TEXT NOT NULL,
	indexed_at  TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS collection_events (
	id          BIGSERIAL PRIMARY KEY,
	name        TEXT NOT NULL,
	status      TEXT NOT NULL,
	source      TEXT NOT NULL,
	detail      TEXT NOT NULL DEFAULT '',
	created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);`

// Entry is the stored state of one collection.
type Entry struct {
	Name       string    `json:"name"`
	Documents  int       `json:"documents"`
	Terms      int       `json:"terms"`
	Generation uint64    `json:"generation"`
	Source     string    `json:"source"`
	IndexedAt  time.Time `json:"indexed_at"`
}

type Ledger struct {
	client *postgres.Client
	logger *slog.Logger
}

// New returns a Ledger over client. client may be nil.
func New(client *postgres.Client) *Ledger {
	return &Ledger{
		client: client,
		logger: slog.Default().With("component", "ledger"),
	}
}

func (l *Ledger) Enabled() bool {
	return l != nil && l.client != nil
}

func (l *Ledger) EnsureSchema(ctx context.Context) error {
	if !l.Enabled() {
		return nil
	}
	if _, err := l.client.DB.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("creating ledger schema: %w", err)
	}
	return nil
}

// RecordIndexed upserts the collection row and appends an INDEXED event
// in one transaction.
func (l *Ledger) RecordIndexed(ctx context.Context, info indexer.CollectionInfo, source string) error {
	if !l.Enabled() {
		return nil
	}
	err := l.client.InTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO collections (name, documents, terms, generation, source, indexed_at)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (name) DO UPDATE SET
				documents = EXCLUDED.documents,
				terms = EXCLUDED.terms,
				generation = EXCLUDED.generation,
				source = EXCLUDED.source,
				indexed_at = EXCLUDED.indexed_at`,
			info.Name, info.Documents, info.Terms, int64(info.Generation), source, info.IndexedAt,
		); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO collection_events (name, status, source) VALUES ($1, $2, $3)`,
			info.Name, StatusIndexed, source,
		)
		return err
	})
	if err != nil {
		l.logger.Error("failed to record indexed collection", "collection", info.Name, "error", err)
		return fmt.Errorf("recording collection %s: %w", info.Name, err)
	}
	return nil
}

// RecordFailed appends a FAILED event. The collection row is left alone.
func (l *Ledger) RecordFailed(ctx context.Context, name, source string, cause error) error {
	if !l.Enabled() {
		return nil
	}
	_, err := l.client.DB.ExecContext(ctx,
		`INSERT INTO collection_events (name, status, source, detail) VALUES ($1, $2, $3, $4)`,
		name, StatusFailed, source, cause.Error(),
	)
	if err != nil {
		l.logger.Error("failed to record failed collection", "collection", name, "error", err)
		return fmt.Errorf("recording failure for %s: %w", name, err)
	}
	return nil
}

func (l *Ledger) Get(ctx context.Context, name string) (Entry, error) {
	if !l.Enabled() {
		return Entry{}, apperrors.ErrNotFound
	}
	var e Entry
	var generation int64
	err := l.client.DB.QueryRowContext(ctx,
		`SELECT name, documents, terms, generation, source, indexed_at FROM collections WHERE name = $1`,
		name,
	).Scan(&e.Name, &e.Documents, &e.Terms, &generation, &e.Source, &e.IndexedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, apperrors.ErrNotFound
	}
	if err != nil {
		return Entry{}, fmt.Errorf("querying collection %s: %w", name, err)
	}
	e.Generation = uint64(generation)
	return e, nil
}

// List returns all recorded collections, oldest first.
func (l *Ledger) List(ctx context.Context) ([]Entry, error) {
	if !l.Enabled() {
		return []Entry{}, nil
	}
	rows, err := l.client.DB.QueryContext(ctx,
		`SELECT name, documents, terms, generation, source, indexed_at FROM collections ORDER BY indexed_at, name`,
	)
	if err != nil {
		return nil, fmt.Errorf("listing collections: %w", err)
	}
	defer rows.Close()
	entries := []Entry{}
	for rows.Next() {
		var e Entry
		var generation int64
		if err := rows.Scan(&e.Name, &e.Documents, &e.Terms, &generation, &e.Source, &e.IndexedAt); err != nil {
			return nil, fmt.Errorf("scanning collection row: %w", err)
		}
		e.Generation = uint64(generation)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
