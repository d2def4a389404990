package script

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
)

var novaModels = map[string]string{
	"nova-lite": "us.amazon.nova-2-lite-v1:0",
}

const novaMaxTokens = 8192

// Converser is the part of the Bedrock runtime client used for scripts.
type Converser interface {
	Converse(ctx context.Context, in *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
}

// NovaGenerator writes scripts with Amazon Nova through Bedrock Converse.
type NovaGenerator struct {
	client Converser
}

func NewNovaGenerator(client Converser) *NovaGenerator {
	return &NovaGenerator{client: client}
}

func (g *NovaGenerator) GenerateText(ctx context.Context, req TextRequest) (string, error) {
	modelID := req.Model
	if alias, ok := novaModels[modelID]; ok {
		modelID = alias
	}
	if modelID == "" {
		modelID = novaModels["nova-lite"]
	}

	content := make([]types.ContentBlock, len(req.Parts))
	for i, p := range req.Parts {
		content[i] = &types.ContentBlockMemberText{Value: p}
	}
	in := &bedrockruntime.ConverseInput{
		ModelId: aws.String(modelID),
		Messages: []types.Message{
			{Role: types.ConversationRoleUser, Content: content},
		},
		InferenceConfig: &types.InferenceConfiguration{
			MaxTokens:   aws.Int32(novaMaxTokens),
			Temperature: aws.Float32(float32(req.Temperature)),
		},
	}
	if req.System != "" {
		in.System = []types.SystemContentBlock{&types.SystemContentBlockMemberText{Value: req.System}}
	}

	resp, err := g.client.Converse(ctx, in)
	if err != nil {
		return "", fmt.Errorf("bedrock converse %s: %w", modelID, err)
	}
	return extractNovaText(resp), nil
}

func extractNovaText(resp *bedrockruntime.ConverseOutput) string {
	if resp.Output == nil {
		return ""
	}
	msg, ok := resp.Output.(*types.ConverseOutputMemberMessage)
	if !ok {
		return ""
	}
	var out string
	for _, block := range msg.Value.Content {
		if tb, ok := block.(*types.ContentBlockMemberText); ok {
			out += tb.Value
		}
	}
	return out
}
