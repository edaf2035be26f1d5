package answer

import (
	"context"
	"fmt"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
)

// LLM is the Genkit-backed Generator used in production.
type LLM struct {
	g         *genkit.Genkit
	modelName string
	temp      float64
}

// NewLLM creates a Generator that calls modelName through g.
func NewLLM(g *genkit.Genkit, modelName string, temperature float64) *LLM {
	return &LLM{g: g, modelName: modelName, temp: temperature}
}

// Generate implements Generator.
func (l *LLM) Generate(ctx context.Context, system, prompt string) (string, error) {
	resp, err := genkit.Generate(ctx, l.g,
		ai.WithModelName(l.modelName),
		ai.WithSystem(system),
		ai.WithPrompt(prompt),
		ai.WithConfig(map[string]any{"temperature": l.temp}),
	)
	if err != nil {
		return "", fmt.Errorf("model generation: %w", err)
	}
	return resp.Text(), nil
}
