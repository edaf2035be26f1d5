// Package knowledge implements the vector-backed knowledge store.
//
// Chunks are embedded with a Genkit ai.Embedder and persisted in
// PostgreSQL with pgvector. Search is cosine-similarity based and can be
// restricted by metadata filters.
package knowledge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/pgvector/pgvector-go"
)

// searchTimeout bounds a single vector search round trip.
const searchTimeout = 10 * time.Second

// UpsertParams holds the row written by UpsertDocument.
type UpsertParams struct {
	ID        string
	Content   string
	Embedding pgvector.Vector
	Metadata  []byte
	CreatedAt time.Time
}

// SearchParams holds the inputs for a vector search.
// FilterMetadata is a JSONB containment filter; nil means no filter.
type SearchParams struct {
	QueryEmbedding pgvector.Vector
	FilterMetadata []byte
	Limit          int32
}

// SearchRow is a single row returned by SearchDocuments.
type SearchRow struct {
	ID         string
	Content    string
	Metadata   []byte
	CreatedAt  time.Time
	Similarity float32
}

// Querier defines the interface for database operations on knowledge
// documents. Following Go best practices: interfaces are defined by the
// consumer, not the provider.
type Querier interface {
	// UpsertDocument inserts or updates a document
	UpsertDocument(ctx context.Context, arg UpsertParams) error

	// SearchDocuments performs vector search, optionally metadata-filtered
	SearchDocuments(ctx context.Context, arg SearchParams) ([]SearchRow, error)

	// CountDocuments counts documents matching filter (nil = all)
	CountDocuments(ctx context.Context, filterMetadata []byte) (int64, error)

	// DeleteBySource deletes all chunks belonging to a source item
	DeleteBySource(ctx context.Context, sourceID string) (int64, error)
}

// Store manages knowledge documents with vector search capabilities.
// It handles embedding generation and vector similarity search using
// PostgreSQL + pgvector.
//
// Store is safe for concurrent use by multiple goroutines.
type Store struct {
	queries  Querier
	embedder ai.Embedder
	logger   *slog.Logger
}

// New creates a new Store instance.
// A nil logger falls back to slog.Default().
func New(querier Querier, embedder ai.Embedder, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}

	return &Store{
		queries:  querier,
		embedder: embedder,
		logger:   logger,
	}
}

// Add adds a document to the knowledge store.
// The document's content is embedded using the configured embedder.
// Uses UPSERT semantics so re-indexing an unchanged ID is harmless.
func (s *Store) Add(ctx context.Context, doc Document) error {
	vec, err := s.embed(ctx, doc.Content)
	if err != nil {
		return fmt.Errorf("embedding document %q: %w", doc.ID, err)
	}

	metadataJSON, err := json.Marshal(doc.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	createdAt := doc.CreateAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	err = s.queries.UpsertDocument(ctx, UpsertParams{
		ID:        doc.ID,
		Content:   doc.Content,
		Embedding: vec,
		Metadata:  metadataJSON,
		CreatedAt: createdAt,
	})
	if err != nil {
		return fmt.Errorf("failed to upsert document %q: %w", doc.ID, err)
	}

	s.logger.Debug("added document", "id", doc.ID, "content_length", len(doc.Content))
	return nil
}

// Search performs semantic search on the knowledge store.
// It returns the most similar documents to the query, ordered by
// similarity score. A 10-second timeout is applied to prevent blocking.
//
// Example usage:
//
//	results, err := store.Search(ctx, "refund policy",
//	    knowledge.WithTopK(10),
//	    knowledge.WithMinSimilarity(0.3))
func (s *Store) Search(ctx context.Context, query string, opts ...SearchOption) ([]Result, error) {
	cfg := buildSearchConfig(opts)

	queryCtx, cancel := context.WithTimeout(ctx, searchTimeout)
	defer cancel()

	queryVec, err := s.embed(queryCtx, query)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("embedding generation timeout: %w", err)
		}
		return nil, fmt.Errorf("failed to generate query embedding: %w", err)
	}

	// filterJSON is always produced by json.Marshal, and the querier uses
	// parameterized queries; never interpolate filter values into SQL.
	var filterJSON []byte
	if len(cfg.filter) > 0 {
		filterJSON, err = json.Marshal(cfg.filter)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal filter: %w", err)
		}
	}

	rows, err := s.queries.SearchDocuments(queryCtx, SearchParams{
		QueryEmbedding: queryVec,
		FilterMetadata: filterJSON,
		Limit:          int32(cfg.topK), //nolint:gosec // topK is validated config, never near overflow
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("search query timeout: %w", err)
		}
		return nil, fmt.Errorf("search failed: %w", err)
	}

	return s.rowsToResults(rows, cfg.minSimilarity), nil
}

// Count returns the number of documents matching the given filter.
// If filter is nil or empty, it returns the total count of all documents.
func (s *Store) Count(ctx context.Context, filter map[string]string) (int, error) {
	var filterJSON []byte
	if len(filter) > 0 {
		var err error
		filterJSON, err = json.Marshal(filter)
		if err != nil {
			return 0, fmt.Errorf("failed to marshal filter: %w", err)
		}
	}

	count, err := s.queries.CountDocuments(ctx, filterJSON)
	if err != nil {
		return 0, fmt.Errorf("count failed: %w", err)
	}

	// Overflow protection for 32-bit platforms.
	if count > math.MaxInt {
		return 0, fmt.Errorf("document count %d exceeds platform int capacity", count)
	}

	return int(count), nil
}

// DeleteBySource removes all chunks that belong to the given source item.
// Returns the number of chunks removed. Deleting an unknown source is not
// an error and returns 0.
func (s *Store) DeleteBySource(ctx context.Context, sourceID string) (int, error) {
	n, err := s.queries.DeleteBySource(ctx, sourceID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete chunks for source %q: %w", sourceID, err)
	}

	s.logger.Debug("deleted source chunks", "source_id", sourceID, "count", n)
	return int(n), nil
}

// embed generates the embedding vector for a single text.
func (s *Store) embed(ctx context.Context, text string) (pgvector.Vector, error) {
	resp, err := s.embedder.Embed(ctx, &ai.EmbedRequest{
		Input: []*ai.Document{
			ai.DocumentFromText(text, nil),
		},
	})
	if err != nil {
		return pgvector.Vector{}, err
	}

	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Embedding) == 0 {
		return pgvector.Vector{}, errors.New("empty embedding returned")
	}

	return pgvector.NewVector(resp.Embeddings[0].Embedding), nil
}

// rowsToResults converts raw search rows to Results, dropping rows below
// the similarity threshold.
func (s *Store) rowsToResults(rows []SearchRow, minSimilarity float32) []Result {
	results := make([]Result, 0, len(rows))

	for _, row := range rows {
		if row.Similarity < minSimilarity {
			continue
		}

		var metadata map[string]string
		if err := json.Unmarshal(row.Metadata, &metadata); err != nil {
			s.logger.Warn("failed to parse metadata", "document_id", row.ID, "error", err)
			metadata = make(map[string]string)
		}

		results = append(results, Result{
			Document: Document{
				ID:       row.ID,
				Content:  row.Content,
				Metadata: metadata,
				CreateAt: row.CreatedAt,
			},
			Similarity: row.Similarity,
		})
	}

	return results
}
