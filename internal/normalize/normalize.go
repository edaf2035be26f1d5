// Package normalize converts raw source bytes into plain-text documents
// ready for chunking.
//
// Each supported format has a dedicated extraction path; all of them end
// in the same whitespace cleanup so downstream chunking sees uniform
// text. Spreadsheets may expand into multiple documents (one per Q/A
// row); every other format yields a single document.
package normalize

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"regexp"
	"strings"

	"github.com/answerdeck/answerdeck/internal/knowledge"
)

var (
	// ErrUnsupportedFormat indicates no extraction path exists for the format.
	ErrUnsupportedFormat = errors.New("unsupported document format")

	// ErrEmptyDocument indicates extraction produced no usable text.
	ErrEmptyDocument = errors.New("document contains no extractable text")
)

// Format identifies a source document format.
type Format int

const (
	FormatUnknown Format = iota
	FormatText
	FormatMarkdown
	FormatHTML
	FormatCSV
	FormatXLSX
	FormatPDF
	FormatDOCX
)

// String returns the lowercase format name.
func (f Format) String() string {
	switch f {
	case FormatText:
		return "text"
	case FormatMarkdown:
		return "markdown"
	case FormatHTML:
		return "html"
	case FormatCSV:
		return "csv"
	case FormatXLSX:
		return "xlsx"
	case FormatPDF:
		return "pdf"
	case FormatDOCX:
		return "docx"
	default:
		return "unknown"
	}
}

// FormatFromName guesses the format from a file name or URL path.
func FormatFromName(name string) Format {
	switch strings.ToLower(path.Ext(name)) {
	case ".txt", ".text", ".log":
		return FormatText
	case ".md", ".markdown":
		return FormatMarkdown
	case ".html", ".htm":
		return FormatHTML
	case ".csv", ".tsv":
		return FormatCSV
	case ".xlsx":
		return FormatXLSX
	case ".pdf":
		return FormatPDF
	case ".docx":
		return FormatDOCX
	default:
		return FormatUnknown
	}
}

// TextExtractor extracts plain text from binary formats the normalizer
// does not parse natively (currently PDF). Implementations typically
// shell out to an external service or library.
type TextExtractor interface {
	Extract(ctx context.Context, name string, data []byte) (string, error)
}

// Normalizer converts raw bytes into plain-text documents.
type Normalizer struct {
	extractor TextExtractor // optional, nil disables PDF support
	logger    *slog.Logger
}

// New creates a Normalizer. extractor may be nil, in which case PDF
// input fails with ErrUnsupportedFormat.
func New(extractor TextExtractor, logger *slog.Logger) *Normalizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Normalizer{extractor: extractor, logger: logger}
}

// Normalize converts data into one or more plain-text documents.
// FormatUnknown is treated as plain text; binary garbage surfaces later
// as an empty document error rather than being silently indexed.
func (n *Normalizer) Normalize(ctx context.Context, name string, data []byte, format Format) ([]knowledge.Document, error) {
	var (
		docs []knowledge.Document
		err  error
	)

	switch format {
	case FormatText, FormatMarkdown, FormatUnknown:
		docs, err = n.plainText(data)
	case FormatHTML:
		docs, err = n.html(name, data)
	case FormatCSV:
		docs, err = n.csv(data)
	case FormatXLSX:
		docs, err = n.xlsx(data)
	case FormatDOCX:
		docs, err = n.docx(data)
	case FormatPDF:
		docs, err = n.pdf(ctx, name, data)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
	if err != nil {
		return nil, fmt.Errorf("normalizing %q as %s: %w", name, format, err)
	}

	out := docs[:0]
	for _, doc := range docs {
		doc.Content = CleanText(doc.Content)
		if doc.Content == "" {
			continue
		}
		out = append(out, doc)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("normalizing %q: %w", name, ErrEmptyDocument)
	}

	n.logger.Debug("normalized document", "name", name, "format", format.String(), "documents", len(out))
	return out, nil
}

// plainText passes text through unchanged (cleanup happens in Normalize).
func (n *Normalizer) plainText(data []byte) ([]knowledge.Document, error) {
	return []knowledge.Document{{Content: string(data)}}, nil
}

// pdf delegates to the configured TextExtractor.
func (n *Normalizer) pdf(ctx context.Context, name string, data []byte) ([]knowledge.Document, error) {
	if n.extractor == nil {
		return nil, fmt.Errorf("%w: pdf (no text extractor configured)", ErrUnsupportedFormat)
	}
	text, err := n.extractor.Extract(ctx, name, data)
	if err != nil {
		return nil, fmt.Errorf("extracting pdf text: %w", err)
	}
	return []knowledge.Document{{Content: text}}, nil
}

var (
	excessNewlines = regexp.MustCompile(`\n{3,}`)
	spaceRuns      = regexp.MustCompile(`[ \t]+`)
)

// CleanText normalizes whitespace: CRLF to LF, runs of spaces and tabs
// collapse to one space, three or more newlines collapse to two.
func CleanText(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = spaceRuns.ReplaceAllString(s, " ")
	s = excessNewlines.ReplaceAllString(s, "\n\n")

	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(line)
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
