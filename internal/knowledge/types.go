package knowledge

import "time"

// Metadata keys attached to indexed chunks.
const (
	// MetaSourceID is the fully qualified source item identifier,
	// e.g. "drive:1a2b3c" or "web:https://example.com/faq".
	MetaSourceID = "source_id"

	// MetaSourceName is the human-readable item name used in citations.
	MetaSourceName = "source_name"

	// MetaConnector is the connector that produced the item.
	MetaConnector = "connector"
)

// Document represents an indexed knowledge chunk.
type Document struct {
	ID       string            // Unique identifier
	Content  string            // Chunk text content
	Metadata map[string]string // Provenance and chunk position metadata
	CreateAt time.Time         // Creation timestamp
}

// Result represents a single search result with similarity score.
type Result struct {
	Document   Document
	Similarity float32 // Cosine similarity score (0-1)
}

// SearchOption configures search behavior using the functional options pattern.
type SearchOption func(*searchConfig)

// searchConfig holds internal search configuration.
type searchConfig struct {
	topK          int
	minSimilarity float32
	filter        map[string]string
}

// WithTopK sets the maximum number of results to return.
// Default is 5 if not specified.
func WithTopK(k int) SearchOption {
	return func(c *searchConfig) {
		c.topK = k
	}
}

// WithMinSimilarity drops results whose cosine similarity is below the
// given threshold. Default is 0 (no filtering).
func WithMinSimilarity(threshold float32) SearchOption {
	return func(c *searchConfig) {
		c.minSimilarity = threshold
	}
}

// WithFilter adds a metadata filter to restrict search results.
// Multiple calls to WithFilter add additional filters (AND logic).
// Example: WithFilter("connector", "drive")
func WithFilter(key, value string) SearchOption {
	return func(c *searchConfig) {
		if c.filter == nil {
			c.filter = make(map[string]string)
		}
		c.filter[key] = value
	}
}

// buildSearchConfig applies search options and returns the final configuration.
func buildSearchConfig(opts []SearchOption) *searchConfig {
	cfg := &searchConfig{
		topK:   5, // Default
		filter: nil,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}
