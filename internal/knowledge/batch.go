package knowledge

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/pgvector/pgvector-go"
)

// AddFailure records a single document that could not be indexed.
type AddFailure struct {
	ID  string
	Err error
}

// AddAll indexes documents in batches. Each batch is embedded in one
// request; when a batch fails, its documents are retried one by one so a
// single bad document cannot sink the rest.
//
// A batchSize < 1 falls back to 100. The returned count plus the number
// of failures always equals len(docs).
func (s *Store) AddAll(ctx context.Context, docs []Document, batchSize int) (int, []AddFailure) {
	if batchSize < 1 {
		batchSize = 100
	}

	added := 0
	var failures []AddFailure

	for start := 0; start < len(docs); start += batchSize {
		end := min(start+batchSize, len(docs))
		batch := docs[start:end]

		if err := ctx.Err(); err != nil {
			for _, doc := range docs[start:] {
				failures = append(failures, AddFailure{ID: doc.ID, Err: err})
			}
			return added, failures
		}

		n, fails := s.addBatch(ctx, batch)
		added += n
		failures = append(failures, fails...)
	}

	s.logger.Debug("batch indexing finished",
		"total", len(docs), "added", added, "failed", len(failures))
	return added, failures
}

// addBatch embeds and upserts one batch. On batch embedding failure it
// retries each document individually.
func (s *Store) addBatch(ctx context.Context, batch []Document) (int, []AddFailure) {
	input := make([]*ai.Document, len(batch))
	for i, doc := range batch {
		input[i] = ai.DocumentFromText(doc.Content, nil)
	}

	resp, err := s.embedder.Embed(ctx, &ai.EmbedRequest{Input: input})
	if err != nil || len(resp.Embeddings) != len(batch) {
		if err == nil {
			err = fmt.Errorf("embedding count mismatch: got %d, want %d",
				len(resp.Embeddings), len(batch))
		}
		s.logger.Warn("batch embedding failed, retrying items individually",
			"batch_size", len(batch), "error", err)
		return s.addIndividually(ctx, batch)
	}

	added := 0
	var failures []AddFailure
	for i, doc := range batch {
		if err := s.upsertEmbedded(ctx, doc, resp.Embeddings[i].Embedding); err != nil {
			failures = append(failures, AddFailure{ID: doc.ID, Err: err})
			continue
		}
		added++
	}
	return added, failures
}

// addIndividually falls back to one-document-at-a-time indexing.
func (s *Store) addIndividually(ctx context.Context, batch []Document) (int, []AddFailure) {
	added := 0
	var failures []AddFailure
	for _, doc := range batch {
		if err := s.Add(ctx, doc); err != nil {
			failures = append(failures, AddFailure{ID: doc.ID, Err: err})
			continue
		}
		added++
	}
	return added, failures
}

// upsertEmbedded writes a document whose embedding is already computed.
func (s *Store) upsertEmbedded(ctx context.Context, doc Document, embedding []float32) error {
	if len(embedding) == 0 {
		return fmt.Errorf("empty embedding for document %q", doc.ID)
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
		Embedding: pgvector.NewVector(embedding),
		Metadata:  metadataJSON,
		CreatedAt: createdAt,
	})
	if err != nil {
		return fmt.Errorf("failed to upsert document %q: %w", doc.ID, err)
	}
	return nil
}
