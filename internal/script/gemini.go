package script

import (
	"context"
	"fmt"

	"github.com/apresai/newsletter-podcaster/internal/gemini"
)

var geminiModels = map[string]string{
	"gemini-flash": "gemini-2.5-flash",
	"gemini-pro":   "gemini-2.5-pro",
}

// GeminiGenerator writes scripts with Gemini generateContent.
type GeminiGenerator struct {
	client *gemini.Client
}

func NewGeminiGenerator(client *gemini.Client) *GeminiGenerator {
	return &GeminiGenerator{client: client}
}

func (g *GeminiGenerator) GenerateText(ctx context.Context, req TextRequest) (string, error) {
	modelID := req.Model
	if alias, ok := geminiModels[modelID]; ok {
		modelID = alias
	}
	if modelID == "" {
		modelID = geminiModels["gemini-flash"]
	}

	parts := make([]gemini.Part, len(req.Parts))
	for i, p := range req.Parts {
		parts[i] = gemini.Part{Text: p}
	}
	body := gemini.Request{
		Contents:         []gemini.Content{{Role: "user", Parts: parts}},
		GenerationConfig: &gemini.GenerationConfig{Temperature: gemini.Float(req.Temperature)},
	}
	if req.System != "" {
		body.SystemInstruction = &gemini.Content{Parts: []gemini.Part{{Text: req.System}}}
	}

	resp, err := g.client.GenerateContent(ctx, modelID, body)
	if err != nil {
		return "", fmt.Errorf("gemini %s: %w", modelID, err)
	}
	return resp.Text(), nil
}
