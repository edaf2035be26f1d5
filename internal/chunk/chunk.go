// Package chunk splits normalized document text into indexable chunks.
//
// The splitter works recursively over a fixed separator priority list,
// preferring paragraph breaks, then line breaks, then sentence
// punctuation, and only falling back to hard character cuts when no
// separator fits. Consecutive chunks overlap so sentences that straddle
// a boundary stay retrievable.
package chunk

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/answerdeck/answerdeck/internal/knowledge"
)

// Metadata keys added to every produced chunk.
const (
	MetaChunkID        = "chunk_id"
	MetaTotalChunks    = "total_chunks"
	MetaOriginalLength = "original_length"
)

// separators in priority order. The empty string means a hard cut.
var separators = []string{"\n\n", "\n", ".", "!", "?", ",", " ", ""}

// Splitter splits text into chunks of at most Size characters with
// Overlap characters shared between consecutive chunks.
type Splitter struct {
	size    int
	overlap int
}

// NewSplitter creates a splitter. size must be positive and overlap must
// be smaller than size so every split makes forward progress.
func NewSplitter(size, overlap int) (*Splitter, error) {
	if size < 1 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", size)
	}
	if overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("chunk overlap must be in [0, size), got %d", overlap)
	}
	return &Splitter{size: size, overlap: overlap}, nil
}

// Split splits text into chunks of at most the configured size.
// Text at or under the size limit is returned as a single chunk,
// unchanged. Empty or whitespace-only text yields no chunks.
func (s *Splitter) Split(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	if len(text) <= s.size {
		return []string{text}
	}
	return s.merge(s.units(text, separators))
}

// SplitDocument splits a document and enriches each chunk with position
// metadata. Chunk IDs derive from the parent document ID so re-indexing
// the same document overwrites its previous chunks.
func (s *Splitter) SplitDocument(doc knowledge.Document) []knowledge.Document {
	pieces := s.Split(doc.Content)
	out := make([]knowledge.Document, 0, len(pieces))

	for i, piece := range pieces {
		meta := make(map[string]string, len(doc.Metadata)+3)
		for k, v := range doc.Metadata {
			meta[k] = v
		}
		meta[MetaChunkID] = strconv.Itoa(i)
		meta[MetaTotalChunks] = strconv.Itoa(len(pieces))
		meta[MetaOriginalLength] = strconv.Itoa(len(doc.Content))

		out = append(out, knowledge.Document{
			ID:       fmt.Sprintf("%s::chunk-%d", doc.ID, i),
			Content:  piece,
			Metadata: meta,
			CreateAt: doc.CreateAt,
		})
	}
	return out
}

// units recursively splits text into pieces that each fit the size
// limit, preserving every byte: separators stay attached to the piece
// they terminate.
func (s *Splitter) units(text string, seps []string) []string {
	if len(text) <= s.size {
		return []string{text}
	}

	for i, sep := range seps {
		if sep == "" {
			break
		}
		parts := strings.SplitAfter(text, sep)
		if len(parts) < 2 {
			continue
		}
		var out []string
		for _, p := range parts {
			if p == "" {
				continue
			}
			out = append(out, s.units(p, seps[i+1:])...)
		}
		return out
	}

	return s.hardCut(text)
}

// hardCut slices text into size-bounded pieces at rune boundaries.
func (s *Splitter) hardCut(text string) []string {
	var out []string
	for len(text) > s.size {
		cut := s.size
		for cut > 0 && !utf8.RuneStart(text[cut]) {
			cut--
		}
		if cut == 0 {
			cut = s.size // pathological input, cut mid-rune rather than loop
		}
		out = append(out, text[:cut])
		text = text[cut:]
	}
	if text != "" {
		out = append(out, text)
	}
	return out
}

// merge greedily joins units into chunks of at most size characters,
// carrying an overlap tail from one chunk into the next.
func (s *Splitter) merge(units []string) []string {
	var chunks []string
	var cur string

	for _, u := range units {
		if cur != "" && len(cur)+len(u) > s.size {
			chunks = append(chunks, cur)
			cur = tail(cur, s.overlap)
			if len(cur)+len(u) > s.size {
				// Overlap tail leaves no room; start fresh.
				cur = ""
			}
		}
		cur += u
	}
	if strings.TrimSpace(cur) != "" {
		chunks = append(chunks, cur)
	}
	return chunks
}

// tail returns the last n bytes of s, aligned to a rune boundary.
func tail(s string, n int) string {
	if n <= 0 || len(s) <= n {
		if n <= 0 {
			return ""
		}
		return s
	}
	start := len(s) - n
	for start < len(s) && !utf8.RuneStart(s[start]) {
		start++
	}
	return s[start:]
}
