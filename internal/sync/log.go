package sync

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ProcessedLog remembers the content hash last indexed for each source
// item, so unchanged items are skipped on the next run.
type ProcessedLog interface {
	// LastHash returns the hash recorded for sourceID, or "" when the
	// item has never been indexed.
	LastHash(ctx context.Context, sourceID string) (string, error)

	// Record stores the hash for sourceID, replacing any previous one.
	Record(ctx context.Context, sourceID, hash string) error

	// Forget removes the record for sourceID.
	Forget(ctx context.Context, sourceID string) error
}

const (
	lastHashSQL = `SELECT content_hash FROM processed_items WHERE source_id = $1`

	recordSQL = `
INSERT INTO processed_items (source_id, content_hash, updated_at)
VALUES ($1, $2, now())
ON CONFLICT (source_id) DO UPDATE
SET content_hash = EXCLUDED.content_hash, updated_at = now()`

	forgetSQL = `DELETE FROM processed_items WHERE source_id = $1`
)

// PGLog is the Postgres-backed ProcessedLog.
type PGLog struct {
	pool *pgxpool.Pool
}

// NewPGLog creates a ProcessedLog over pool.
func NewPGLog(pool *pgxpool.Pool) *PGLog {
	return &PGLog{pool: pool}
}

func (l *PGLog) LastHash(ctx context.Context, sourceID string) (string, error) {
	var hash string
	err := l.pool.QueryRow(ctx, lastHashSQL, sourceID).Scan(&hash)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("querying processed item %q: %w", sourceID, err)
	}
	return hash, nil
}

func (l *PGLog) Record(ctx context.Context, sourceID, hash string) error {
	if _, err := l.pool.Exec(ctx, recordSQL, sourceID, hash); err != nil {
		return fmt.Errorf("recording processed item %q: %w", sourceID, err)
	}
	return nil
}

func (l *PGLog) Forget(ctx context.Context, sourceID string) error {
	if _, err := l.pool.Exec(ctx, forgetSQL, sourceID); err != nil {
		return fmt.Errorf("forgetting processed item %q: %w", sourceID, err)
	}
	return nil
}
