package generation

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	anthropicoption "github.com/anthropics/anthropic-sdk-go/option"
)

const (
	anthropicBaseURL      = "https://api.anthropic.com"
	anthropicDefaultModel = "claude-sonnet-4-5-20250929"
	anthropicMaxTokens    = 4096
)

// Anthropic generates text with the Anthropic messages API.
type Anthropic struct {
	client anthropic.Client
	model  anthropic.Model
}

// NewAnthropic creates an Anthropic generator. An empty baseURL or model
// selects the defaults.
func NewAnthropic(baseURL, apiKey, model string) *Anthropic {
	client := anthropic.NewClient(
		anthropicoption.WithBaseURL(orDefault(baseURL, anthropicBaseURL)),
		anthropicoption.WithAPIKey(apiKey),
		anthropicoption.WithMaxRetries(1),
	)
	return &Anthropic{client: client, model: anthropic.Model(orDefault(model, anthropicDefaultModel))}
}

func (g *Anthropic) Generate(ctx context.Context, prompt string) (string, error) {
	msg, err := g.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     g.model,
		MaxTokens: anthropicMaxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("anthropic message: %w", err)
	}

	var sb strings.Builder
	for _, block := range msg.Content {
		if text, ok := block.AsAny().(anthropic.TextBlock); ok {
			sb.WriteString(text.Text)
		}
	}
	return nonEmpty(sb.String())
}

func (g *Anthropic) Name() string { return ProviderAnthropic + "/" + string(g.model) }
