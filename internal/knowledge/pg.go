package knowledge

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const upsertDocumentSQL = `
INSERT INTO documents (id, content, embedding, metadata, created_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (id) DO UPDATE SET
    content    = EXCLUDED.content,
    embedding  = EXCLUDED.embedding,
    metadata   = EXCLUDED.metadata,
    created_at = EXCLUDED.created_at`

// Cosine similarity = 1 - cosine distance. The $2 filter uses JSONB
// containment so it can match any subset of metadata keys.
const searchDocumentsSQL = `
SELECT id, content, metadata, created_at,
       (1 - (embedding <=> $1))::float4 AS similarity
FROM documents
WHERE $2::jsonb IS NULL OR metadata @> $2
ORDER BY embedding <=> $1
LIMIT $3`

const countDocumentsSQL = `
SELECT count(*) FROM documents
WHERE $1::jsonb IS NULL OR metadata @> $1`

const deleteBySourceSQL = `
DELETE FROM documents
WHERE metadata->>'source_id' = $1`

// PGQuerier implements Querier against PostgreSQL with pgvector.
type PGQuerier struct {
	pool *pgxpool.Pool
}

// NewPGQuerier creates a Querier backed by the given connection pool.
func NewPGQuerier(pool *pgxpool.Pool) *PGQuerier {
	return &PGQuerier{pool: pool}
}

// UpsertDocument inserts or updates a document row.
func (q *PGQuerier) UpsertDocument(ctx context.Context, arg UpsertParams) error {
	_, err := q.pool.Exec(ctx, upsertDocumentSQL,
		arg.ID, arg.Content, arg.Embedding, arg.Metadata, arg.CreatedAt)
	if err != nil {
		return fmt.Errorf("upsert document: %w", err)
	}
	return nil
}

// SearchDocuments performs a cosine-distance ordered vector search.
func (q *PGQuerier) SearchDocuments(ctx context.Context, arg SearchParams) ([]SearchRow, error) {
	rows, err := q.pool.Query(ctx, searchDocumentsSQL,
		arg.QueryEmbedding, arg.FilterMetadata, arg.Limit)
	if err != nil {
		return nil, fmt.Errorf("search documents: %w", err)
	}
	defer rows.Close()

	var out []SearchRow
	for rows.Next() {
		var r SearchRow
		if err := rows.Scan(&r.ID, &r.Content, &r.Metadata, &r.CreatedAt, &r.Similarity); err != nil {
			return nil, fmt.Errorf("scan search row: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate search rows: %w", err)
	}
	return out, nil
}

// CountDocuments counts documents matching the filter (nil = all).
func (q *PGQuerier) CountDocuments(ctx context.Context, filterMetadata []byte) (int64, error) {
	var count int64
	if err := q.pool.QueryRow(ctx, countDocumentsSQL, filterMetadata).Scan(&count); err != nil {
		return 0, fmt.Errorf("count documents: %w", err)
	}
	return count, nil
}

// DeleteBySource removes all chunks that belong to a source item.
func (q *PGQuerier) DeleteBySource(ctx context.Context, sourceID string) (int64, error) {
	tag, err := q.pool.Exec(ctx, deleteBySourceSQL, sourceID)
	if err != nil {
		return 0, fmt.Errorf("delete by source: %w", err)
	}
	return tag.RowsAffected(), nil
}
