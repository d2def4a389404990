package script

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

var claudeModels = map[string]string{
	"haiku":  "claude-haiku-4-5-20251001",
	"sonnet": "claude-sonnet-4-5-20250929",
}

const claudeMaxTokens = 8192

// ClaudeGenerator writes scripts with the Anthropic Messages API.
type ClaudeGenerator struct {
	client anthropic.Client
}

// NewClaudeGenerator builds a client for apiKey. The SDK retries 429 and
// 5xx responses itself.
func NewClaudeGenerator(apiKey string, maxRetries int) *ClaudeGenerator {
	return &ClaudeGenerator{
		client: anthropic.NewClient(option.WithAPIKey(apiKey), option.WithMaxRetries(maxRetries)),
	}
}

func (g *ClaudeGenerator) GenerateText(ctx context.Context, req TextRequest) (string, error) {
	modelID := req.Model
	if alias, ok := claudeModels[modelID]; ok {
		modelID = alias
	}
	if modelID == "" {
		modelID = claudeModels["sonnet"]
	}

	blocks := make([]anthropic.ContentBlockParamUnion, len(req.Parts))
	for i, p := range req.Parts {
		blocks[i] = anthropic.NewTextBlock(p)
	}
	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(modelID),
		MaxTokens:   claudeMaxTokens,
		Temperature: anthropic.Float(req.Temperature),
		Messages:    []anthropic.MessageParam{anthropic.NewUserMessage(blocks...)},
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}

	message, err := g.client.Messages.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("claude %s: %w", modelID, err)
	}
	return extractText(message), nil
}

func extractText(msg *anthropic.Message) string {
	var parts []string
	for _, block := range msg.Content {
		if tb, ok := block.AsAny().(anthropic.TextBlock); ok {
			parts = append(parts, tb.Text)
		}
	}
	return strings.Join(parts, "")
}
