package questionnaire

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/answerdeck/answerdeck/internal/answer"
)

// Answerer is the slice of the answering service the pipeline needs.
type Answerer interface {
	Answer(ctx context.Context, question string) (*answer.Answer, error)
}

// QA pairs an extracted question with its answer.
type QA struct {
	Question Question       `json:"question"`
	Answer   *answer.Answer `json:"answer"`
}

// Pipeline extracts questions from a document and answers all of them.
type Pipeline struct {
	extractor *Extractor
	answerer  Answerer
	logger    *slog.Logger
}

// NewPipeline creates a Pipeline.
func NewPipeline(extractor *Extractor, answerer Answerer, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{extractor: extractor, answerer: answerer, logger: logger}
}

// AnswerAll extracts the questions in the document and answers each
// one. The result always has exactly one entry per extracted question:
// a failed answer becomes an error-text entry rather than dropping the
// question, so a filled questionnaire never silently loses rows.
func (p *Pipeline) AnswerAll(ctx context.Context, filename string, data []byte) ([]QA, error) {
	questions, err := p.extractor.Extract(ctx, filename, data)
	if err != nil {
		return nil, err
	}

	results := make([]QA, 0, len(questions))
	for _, q := range questions {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		ans, err := p.answerer.Answer(ctx, q.Text)
		if err != nil {
			p.logger.Warn("questionnaire answer failed", "question", q.Number, "error", err)
			ans = &answer.Answer{
				Text:          fmt.Sprintf("Failed to answer this question: %v", err),
				NoInformation: true,
			}
		}
		results = append(results, QA{Question: q, Answer: ans})
	}

	p.logger.Info("questionnaire answered", "file", filename, "questions", len(results))
	return results, nil
}
