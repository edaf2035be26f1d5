// Package questionnaire extracts questions from uploaded documents and
// answers each one against the knowledge base.
package questionnaire

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/answerdeck/answerdeck/internal/answer"
	"github.com/answerdeck/answerdeck/internal/normalize"
)

// ErrNoQuestions is returned when a document yields no questions.
var ErrNoQuestions = errors.New("no questions found in document")

// maxQuestions caps extraction so a pathological upload cannot trigger
// hundreds of model calls downstream.
const maxQuestions = 200

// Question is one extracted question, numbered in document order.
type Question struct {
	Number int    `json:"number"`
	Text   string `json:"text"`
}

// Extractor pulls questions out of uploaded documents. Spreadsheets
// with a "Question" column are read structurally; everything else is
// flattened to text via the normalizer and handed to the model.
type Extractor struct {
	generator  answer.Generator
	normalizer *normalize.Normalizer
	logger     *slog.Logger
}

// NewExtractor creates an Extractor using generator for the fallback.
// A nil normalizer falls back to a default one without PDF support.
func NewExtractor(generator answer.Generator, normalizer *normalize.Normalizer, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	if normalizer == nil {
		normalizer = normalize.New(nil, logger)
	}
	return &Extractor{generator: generator, normalizer: normalizer, logger: logger}
}

// Extract returns the questions found in the document, in order.
func (e *Extractor) Extract(ctx context.Context, filename string, data []byte) ([]Question, error) {
	format := normalize.FormatFromName(filename)

	if format == normalize.FormatCSV || format == normalize.FormatXLSX {
		questions, ok, err := extractFromTable(data, format)
		if err != nil {
			return nil, err
		}
		if ok {
			if len(questions) == 0 {
				return nil, ErrNoQuestions
			}
			e.logger.Debug("extracted questions from table", "file", filename, "count", len(questions))
			return questions, nil
		}
		// No question column; fall through to the model with the table
		// flattened to text.
	}

	text, err := e.documentText(ctx, filename, data, format)
	if err != nil {
		return nil, err
	}
	return e.extractWithModel(ctx, filename, text)
}

// extractFromTable reads the "Question" column when the table has one.
// The second return value reports whether the column exists at all.
func extractFromTable(data []byte, format normalize.Format) ([]Question, bool, error) {
	rows, err := normalize.Rows(data, format)
	if err != nil {
		return nil, false, fmt.Errorf("parsing table: %w", err)
	}
	if len(rows) == 0 {
		return nil, false, ErrNoQuestions
	}

	qIdx := normalize.QuestionColumn(rows[0])
	if qIdx < 0 {
		return nil, false, nil
	}

	var questions []Question
	for _, row := range rows[1:] {
		if qIdx >= len(row) {
			continue
		}
		text := strings.TrimSpace(row[qIdx])
		if text == "" {
			continue
		}
		questions = append(questions, Question{Number: len(questions) + 1, Text: text})
		if len(questions) == maxQuestions {
			break
		}
	}
	return questions, true, nil
}

// documentText flattens a document to plain text for model extraction.
func (e *Extractor) documentText(ctx context.Context, name string, data []byte, format normalize.Format) (string, error) {
	switch format {
	case normalize.FormatCSV, normalize.FormatXLSX:
		rows, err := normalize.Rows(data, format)
		if err != nil {
			return "", err
		}
		var lines []string
		for _, row := range rows {
			lines = append(lines, strings.Join(row, " | "))
		}
		return strings.Join(lines, "\n"), nil
	default:
		docs, err := e.normalizer.Normalize(ctx, name, data, format)
		if err != nil {
			if errors.Is(err, normalize.ErrEmptyDocument) {
				return "", ErrNoQuestions
			}
			return "", fmt.Errorf("reading document: %w", err)
		}
		parts := make([]string, len(docs))
		for i, doc := range docs {
			parts[i] = doc.Content
		}
		return strings.Join(parts, "\n\n"), nil
	}
}

const extractSystem = `You extract questions from documents. Reply with the questions only, one per line, without numbering, bullets, or commentary. If the document contains no questions, reply with an empty message.`

const extractTemplate = `Extract every question from the following document.

Document:
%s`

// leadingEnumeration strips "1.", "2)", "Q3:", "-", "*" prefixes the
// model sometimes adds despite instructions.
var leadingEnumeration = regexp.MustCompile(`^\s*(?:[-*•]|\(?[Qq]?\d+[.):]?\)?)\s+`)

func (e *Extractor) extractWithModel(ctx context.Context, filename, text string) ([]Question, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrNoQuestions
	}

	reply, err := e.generator.Generate(ctx, extractSystem, fmt.Sprintf(extractTemplate, text))
	if err != nil {
		return nil, fmt.Errorf("extracting questions: %w", err)
	}

	var questions []Question
	for _, line := range strings.Split(reply, "\n") {
		line = strings.TrimSpace(leadingEnumeration.ReplaceAllString(line, ""))
		if line == "" {
			continue
		}
		questions = append(questions, Question{Number: len(questions) + 1, Text: line})
		if len(questions) == maxQuestions {
			break
		}
	}
	if len(questions) == 0 {
		return nil, ErrNoQuestions
	}

	e.logger.Debug("extracted questions with model", "file", filename, "count", len(questions))
	return questions, nil
}
