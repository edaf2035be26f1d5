// Package answer implements the grounded question answering pipeline:
// retrieve relevant chunks, compose a context-bounded prompt, generate,
// then decide whether the model actually found an answer.
package answer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/answerdeck/answerdeck/internal/knowledge"
)

// ErrEmptyQuestion is returned for blank questions.
var ErrEmptyQuestion = errors.New("question is empty")

// NoInformationMessage is the canned reply used when retrieval finds
// nothing relevant, so no tokens are spent on an unanswerable question.
const NoInformationMessage = "I don't have enough information in the knowledge base to answer that question."

// Source identifies one document an answer drew from.
type Source struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Answer is the result of one question.
type Answer struct {
	// Text is the generated answer with citation markers removed.
	Text string `json:"text"`

	// Sources lists the distinct documents behind the answer, in
	// retrieval order. Empty when NoInformation is true: an answer that
	// says "I don't know" must not cite anything.
	Sources []Source `json:"sources"`

	// Confidence is the mean similarity of the retrieved chunks.
	Confidence float32 `json:"confidence"`

	// NoInformation reports that the knowledge base had nothing useful.
	NoInformation bool `json:"no_information"`
}

// Searcher is the slice of the knowledge store the pipeline needs.
type Searcher interface {
	Search(ctx context.Context, query string, opts ...knowledge.SearchOption) ([]knowledge.Result, error)
}

// Generator produces model output for a system/user prompt pair.
type Generator interface {
	Generate(ctx context.Context, system, prompt string) (string, error)
}

// Service answers questions against the knowledge base.
type Service struct {
	searcher      Searcher
	generator     Generator
	topK          int
	minSimilarity float32
	logger        *slog.Logger
}

// NewService creates an answering service. topK and minSimilarity bound
// retrieval; values out of range fall back to the store defaults.
func NewService(searcher Searcher, generator Generator, topK int, minSimilarity float32, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		searcher:      searcher,
		generator:     generator,
		topK:          topK,
		minSimilarity: minSimilarity,
		logger:        logger,
	}
}

// Answer runs the full pipeline for one question.
func (s *Service) Answer(ctx context.Context, question string) (*Answer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, ErrEmptyQuestion
	}

	results, err := s.searcher.Search(ctx, question,
		knowledge.WithTopK(s.topK),
		knowledge.WithMinSimilarity(s.minSimilarity),
	)
	if err != nil {
		return nil, fmt.Errorf("retrieving context: %w", err)
	}

	// Nothing relevant: answer without calling the model at all.
	if len(results) == 0 {
		s.logger.Debug("no relevant context", "question", question)
		return &Answer{Text: NoInformationMessage, NoInformation: true}, nil
	}

	prompt := buildPrompt(question, results)
	raw, err := s.generator.Generate(ctx, systemPrompt, prompt)
	if err != nil {
		return nil, fmt.Errorf("generating answer: %w", err)
	}

	text := strings.TrimSpace(StripCitations(raw))
	if text == "" {
		return &Answer{Text: NoInformationMessage, NoInformation: true}, nil
	}

	if s.classifyNoInformation(ctx, question, text) {
		return &Answer{Text: text, NoInformation: true}, nil
	}

	return &Answer{
		Text:       text,
		Sources:    collectSources(results),
		Confidence: meanSimilarity(results),
	}, nil
}

// collectSources dedupes the retrieved chunks down to their documents,
// preserving retrieval order.
func collectSources(results []knowledge.Result) []Source {
	seen := make(map[string]bool, len(results))
	var sources []Source
	for _, r := range results {
		id := r.Document.Metadata[knowledge.MetaSourceID]
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		name := r.Document.Metadata[knowledge.MetaSourceName]
		if name == "" {
			name = id
		}
		sources = append(sources, Source{ID: id, Name: name})
	}
	return sources
}

func meanSimilarity(results []knowledge.Result) float32 {
	if len(results) == 0 {
		return 0
	}
	var sum float32
	for _, r := range results {
		sum += r.Similarity
	}
	return sum / float32(len(results))
}
