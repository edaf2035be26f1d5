package answer

import (
	"context"
	"fmt"
	"strings"
)

const classifySystem = `You are a strict classifier. Reply with a single word: "yes" or "no".`

const classifyTemplate = `An assistant was asked a question and gave an answer.
Decide whether the answer states that the requested information is NOT available
(for example "I don't know", "the documents don't mention this", "no information found").

Question: %s

Answer: %s

Does the answer say the information is not available? Reply "yes" or "no".`

// classifyNoInformation asks the model whether its own answer is a
// refusal. Classification is best effort: any failure or ambiguous
// reply treats the answer as substantive, which only risks showing
// sources on a refusal, never hiding a real answer.
func (s *Service) classifyNoInformation(ctx context.Context, question, answerText string) bool {
	prompt := fmt.Sprintf(classifyTemplate, question, answerText)

	reply, err := s.generator.Generate(ctx, classifySystem, prompt)
	if err != nil {
		s.logger.Warn("no-information classification failed", "error", err)
		return false
	}

	switch strings.ToLower(strings.Trim(strings.TrimSpace(reply), `."'`)) {
	case "yes":
		return true
	case "no":
		return false
	default:
		s.logger.Warn("ambiguous no-information classification", "reply", reply)
		return false
	}
}
