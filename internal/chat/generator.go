package chat

import (
	"context"
	"fmt"
	"strings"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
)

// GenkitGenerator produces answers through a Genkit model.
type GenkitGenerator struct {
	g           *genkit.Genkit
	model       string
	temperature float32
	maxTokens   int
}

// NewGenkitGenerator creates a generator for the given model name. Bare
// model names are qualified with the googleai provider prefix.
func NewGenkitGenerator(g *genkit.Genkit, model string, temperature float32, maxTokens int) *GenkitGenerator {
	if !strings.Contains(model, "/") {
		model = "googleai/" + model
	}
	return &GenkitGenerator{g: g, model: model, temperature: temperature, maxTokens: maxTokens}
}

// Generate runs one model call with the retrieved documents attached.
func (gg *GenkitGenerator) Generate(ctx context.Context, systemPrompt, prompt string, docs []*ai.Document) (string, error) {
	resp, err := genkit.Generate(ctx, gg.g,
		ai.WithModelName(gg.model),
		ai.WithSystem(systemPrompt),
		ai.WithPrompt(prompt),
		ai.WithDocs(docs...),
		ai.WithConfig(map[string]any{
			"temperature":     gg.temperature,
			"maxOutputTokens": gg.maxTokens,
		}),
	)
	if err != nil {
		return "", fmt.Errorf("generation failed: %w", err)
	}
	return resp.Text(), nil
}
