package generation

import (
	"context"
	"fmt"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

const (
	geminiBaseURL      = "https://generativelanguage.googleapis.com/v1beta/openai/"
	geminiDefaultModel = "gemini-2.0-flash"
	openAIBaseURL      = "https://api.openai.com/v1"
	openAIDefaultModel = "gpt-4o-mini"
)

// OpenAICompatible talks to any chat-completions endpoint speaking the
// OpenAI wire format. Gemini is reached this way too.
type OpenAICompatible struct {
	client   openai.Client
	provider string
	model    string
}

func newOpenAICompatible(provider, baseURL, apiKey, model string) *OpenAICompatible {
	client := openai.NewClient(
		option.WithBaseURL(baseURL),
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(1),
	)
	return &OpenAICompatible{client: client, provider: provider, model: model}
}

// NewGemini creates a Gemini generator. An empty baseURL or model selects
// the defaults.
func NewGemini(baseURL, apiKey, model string) *OpenAICompatible {
	return newOpenAICompatible(ProviderGemini, orDefault(baseURL, geminiBaseURL), apiKey, orDefault(model, geminiDefaultModel))
}

// NewOpenAI creates an OpenAI generator. An empty baseURL or model selects
// the defaults.
func NewOpenAI(baseURL, apiKey, model string) *OpenAICompatible {
	return newOpenAICompatible(ProviderOpenAI, orDefault(baseURL, openAIBaseURL), apiKey, orDefault(model, openAIDefaultModel))
}

func (g *OpenAICompatible) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := g.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(g.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
	})
	if err != nil {
		return "", fmt.Errorf("%s completion: %w", g.provider, err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyResponse
	}
	return nonEmpty(resp.Choices[0].Message.Content)
}

func (g *OpenAICompatible) Name() string { return g.provider + "/" + g.model }
