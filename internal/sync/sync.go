// Package sync implements the incremental indexing engine. Each run
// lists every configured source, fingerprints item content, and only
// re-normalizes, re-chunks, and re-embeds items whose content changed.
package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/answerdeck/answerdeck/internal/chunk"
	"github.com/answerdeck/answerdeck/internal/fingerprint"
	"github.com/answerdeck/answerdeck/internal/knowledge"
	"github.com/answerdeck/answerdeck/internal/normalize"
	"github.com/answerdeck/answerdeck/internal/source"
)

// Indexer is the slice of the knowledge store the sync engine needs.
type Indexer interface {
	AddAll(ctx context.Context, docs []knowledge.Document, batchSize int) (int, []knowledge.AddFailure)
	DeleteBySource(ctx context.Context, sourceID string) (int, error)
}

// ItemFailure records one item that could not be indexed this run.
type ItemFailure struct {
	SourceID string
	Err      error
}

// Summary reports the outcome of one sync run. A run with source or
// item failures is still a successful run; failures are isolated so one
// bad document never blocks the rest.
type Summary struct {
	// Added counts items indexed or re-indexed this run.
	Added int

	// Skipped counts items whose fingerprint was unchanged.
	Skipped int

	// Removed counts items that vanished from their source and were
	// deleted from the index.
	Removed int

	// Failed lists items that errored during fetch, normalize, or index.
	Failed []ItemFailure

	// SourceErrors maps connector names to listing failures. A failed
	// source leaves its previously indexed content untouched.
	SourceErrors map[string]error
}

// Orchestrator drives a sync run across all configured connectors.
type Orchestrator struct {
	connectors []source.Connector
	normalizer *normalize.Normalizer
	splitter   *chunk.Splitter
	indexer    Indexer
	processed  ProcessedLog
	batchSize  int
	logger     *slog.Logger
}

// New creates an Orchestrator. batchSize controls how many chunks are
// embedded per request; values below one fall back to the indexer
// default.
func New(
	connectors []source.Connector,
	normalizer *normalize.Normalizer,
	splitter *chunk.Splitter,
	indexer Indexer,
	processed ProcessedLog,
	batchSize int,
	logger *slog.Logger,
) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		connectors: connectors,
		normalizer: normalizer,
		splitter:   splitter,
		indexer:    indexer,
		processed:  processed,
		batchSize:  batchSize,
		logger:     logger,
	}
}

// Run executes one incremental sync across every connector and returns
// a summary. It only returns an error when the context is canceled.
func (o *Orchestrator) Run(ctx context.Context) (*Summary, error) {
	summary := &Summary{SourceErrors: make(map[string]error)}

	for _, conn := range o.connectors {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		items, err := conn.List(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return summary, err
			}
			o.logger.Error("source listing failed", "connector", conn.Name(), "error", err)
			summary.SourceErrors[conn.Name()] = err
			continue
		}

		o.logger.Info("syncing source", "connector", conn.Name(), "items", len(items))
		for _, item := range items {
			if err := ctx.Err(); err != nil {
				return summary, err
			}
			o.syncItem(ctx, conn, item, summary)
		}
	}

	o.logger.Info("sync run complete",
		"added", summary.Added,
		"skipped", summary.Skipped,
		"removed", summary.Removed,
		"failed", len(summary.Failed),
		"source_errors", len(summary.SourceErrors))
	return summary, nil
}

func (o *Orchestrator) syncItem(ctx context.Context, conn source.Connector, item source.Item, summary *Summary) {
	qid := source.QualifiedID(conn.Name(), item.ID)

	data, err := conn.Fetch(ctx, item.ID)
	if err != nil {
		if errors.Is(err, source.ErrNotFound) {
			o.removeItem(ctx, qid, summary)
			return
		}
		summary.Failed = append(summary.Failed, ItemFailure{SourceID: qid, Err: fmt.Errorf("fetch: %w", err)})
		return
	}

	hash := fingerprint.Hash(data)
	last, err := o.processed.LastHash(ctx, qid)
	if err != nil {
		summary.Failed = append(summary.Failed, ItemFailure{SourceID: qid, Err: fmt.Errorf("processed log: %w", err)})
		return
	}
	if last == hash {
		summary.Skipped++
		return
	}

	chunks, err := o.prepare(ctx, qid, item, data)
	if err != nil {
		if errors.Is(err, normalize.ErrEmptyDocument) || errors.Is(err, normalize.ErrUnsupportedFormat) {
			o.noContentItem(ctx, qid, hash, err, summary)
			return
		}
		summary.Failed = append(summary.Failed, ItemFailure{SourceID: qid, Err: err})
		return
	}

	// Replace, not merge: stale chunks from the previous version must
	// not survive a re-index.
	if _, err := o.indexer.DeleteBySource(ctx, qid); err != nil {
		summary.Failed = append(summary.Failed, ItemFailure{SourceID: qid, Err: fmt.Errorf("clearing stale chunks: %w", err)})
		return
	}

	added, failures := o.indexer.AddAll(ctx, chunks, o.batchSize)
	if len(failures) > 0 {
		// Partial index: leave the fingerprint unrecorded so the next
		// run retries the whole item.
		summary.Failed = append(summary.Failed, ItemFailure{
			SourceID: qid,
			Err:      fmt.Errorf("indexed %d/%d chunks, first failure: %w", added, len(chunks), failures[0].Err),
		})
		return
	}

	if err := o.processed.Record(ctx, qid, hash); err != nil {
		summary.Failed = append(summary.Failed, ItemFailure{SourceID: qid, Err: fmt.Errorf("recording fingerprint: %w", err)})
		return
	}

	o.logger.Debug("indexed item", "source_id", qid, "chunks", len(chunks))
	summary.Added++
}

// prepare normalizes raw content and splits it into embeddable chunks
// tagged with the item's provenance.
func (o *Orchestrator) prepare(ctx context.Context, qid string, item source.Item, data []byte) ([]knowledge.Document, error) {
	docs, err := o.normalizer.Normalize(ctx, item.Name, data, item.Format)
	if err != nil {
		return nil, fmt.Errorf("normalize: %w", err)
	}

	var chunks []knowledge.Document
	for i, doc := range docs {
		doc.ID = qid
		if len(docs) > 1 {
			doc.ID = fmt.Sprintf("%s#%d", qid, i)
		}
		if doc.Metadata == nil {
			doc.Metadata = make(map[string]string)
		}
		doc.Metadata[knowledge.MetaSourceID] = qid
		doc.Metadata[knowledge.MetaSourceName] = item.Name
		doc.Metadata[knowledge.MetaConnector] = qidConnector(qid)

		chunks = append(chunks, o.splitter.SplitDocument(doc)...)
	}
	return chunks, nil
}

// noContentItem handles items whose content yields no usable text.
// That is a recoverable no-content outcome, not a failure: stale chunks
// are dropped and the fingerprint is recorded so the item is not
// re-parsed until its content changes.
func (o *Orchestrator) noContentItem(ctx context.Context, qid, hash string, cause error, summary *Summary) {
	o.logger.Warn("no content extracted", "source_id", qid, "error", cause)
	if _, err := o.indexer.DeleteBySource(ctx, qid); err != nil {
		summary.Failed = append(summary.Failed, ItemFailure{SourceID: qid, Err: fmt.Errorf("clearing stale chunks: %w", err)})
		return
	}
	if err := o.processed.Record(ctx, qid, hash); err != nil {
		summary.Failed = append(summary.Failed, ItemFailure{SourceID: qid, Err: fmt.Errorf("recording fingerprint: %w", err)})
		return
	}
	summary.Skipped++
}

func (o *Orchestrator) removeItem(ctx context.Context, qid string, summary *Summary) {
	deleted, err := o.indexer.DeleteBySource(ctx, qid)
	if err != nil {
		summary.Failed = append(summary.Failed, ItemFailure{SourceID: qid, Err: fmt.Errorf("removing vanished item: %w", err)})
		return
	}
	if err := o.processed.Forget(ctx, qid); err != nil {
		summary.Failed = append(summary.Failed, ItemFailure{SourceID: qid, Err: fmt.Errorf("forgetting vanished item: %w", err)})
		return
	}
	if deleted > 0 {
		o.logger.Info("removed vanished item", "source_id", qid, "chunks", deleted)
		summary.Removed++
	}
}

func qidConnector(qid string) string {
	for i := 0; i < len(qid); i++ {
		if qid[i] == ':' {
			return qid[:i]
		}
	}
	return qid
}
