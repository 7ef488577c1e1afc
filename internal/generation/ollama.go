package generation

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/ollama/ollama/api"
)

const (
	ollamaBaseURL      = "http://localhost:11434"
	ollamaDefaultModel = "llama3.1:latest"
)

// Ollama generates text with an Ollama server. No API key is needed.
type Ollama struct {
	client *api.Client
	model  string
}

// NewOllama creates an Ollama generator. An empty baseURL or model selects
// the defaults.
func NewOllama(baseURL, model string) (*Ollama, error) {
	u, err := url.Parse(orDefault(baseURL, ollamaBaseURL))
	if err != nil {
		return nil, fmt.Errorf("invalid Ollama URL: %w", err)
	}
	return &Ollama{
		client: api.NewClient(u, http.DefaultClient),
		model:  orDefault(model, ollamaDefaultModel),
	}, nil
}

func (g *Ollama) Generate(ctx context.Context, prompt string) (string, error) {
	stream := false
	req := &api.GenerateRequest{
		Model:  g.model,
		Prompt: prompt,
		Stream: &stream,
	}

	var sb strings.Builder
	err := g.client.Generate(ctx, req, func(resp api.GenerateResponse) error {
		sb.WriteString(resp.Response)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("ollama generate: %w", err)
	}
	return nonEmpty(sb.String())
}

func (g *Ollama) Name() string { return ProviderOllama + "/" + g.model }
