// Package generation is the gateway to hosted text-generation backends.
//
// Every backend turns a single prompt into a single completion. The backend
// is picked by Config.Provider:
//
//   - gemini: Google Gemini through its OpenAI-compatible endpoint (default)
//   - openai: OpenAI chat completions
//   - anthropic: Anthropic messages API
//   - ollama: a local or remote Ollama server
//   - openrouter: OpenRouter chat completions with 429 backoff
package generation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrEmptyResponse is returned when a backend answers without any text.
var ErrEmptyResponse = errors.New("empty response from generation backend")

const defaultTimeout = 60 * time.Second

// Provider names accepted in Config.Provider.
const (
	ProviderGemini     = "gemini"
	ProviderOpenAI     = "openai"
	ProviderAnthropic  = "anthropic"
	ProviderOllama     = "ollama"
	ProviderOpenRouter = "openrouter"
)

// Generator produces text for a prompt. Implementations must be safe for
// concurrent use.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
	// Name identifies the backend and model, e.g. "gemini/gemini-2.0-flash".
	Name() string
}

// Config selects and configures a backend.
type Config struct {
	Provider string
	Model    string
	BaseURL  string
	APIKey   string
	// Timeout bounds a single Generate call. Zero means 60s.
	Timeout time.Duration
}

// Providers lists the supported provider names.
func Providers() []string {
	return []string{ProviderGemini, ProviderOpenAI, ProviderAnthropic, ProviderOllama, ProviderOpenRouter}
}

// RequiresAPIKey reports whether provider needs credentials.
func RequiresAPIKey(provider string) bool {
	return provider != ProviderOllama
}

// New builds the Generator described by cfg.
func New(cfg Config) (Generator, error) {
	provider := strings.ToLower(strings.TrimSpace(cfg.Provider))
	if RequiresAPIKey(provider) && cfg.APIKey == "" {
		return nil, fmt.Errorf("%s provider requires an API key", provider)
	}

	var (
		g   Generator
		err error
	)
	switch provider {
	case ProviderGemini:
		g = NewGemini(cfg.BaseURL, cfg.APIKey, cfg.Model)
	case ProviderOpenAI:
		g = NewOpenAI(cfg.BaseURL, cfg.APIKey, cfg.Model)
	case ProviderAnthropic:
		g = NewAnthropic(cfg.BaseURL, cfg.APIKey, cfg.Model)
	case ProviderOllama:
		g, err = NewOllama(cfg.BaseURL, cfg.Model)
	case ProviderOpenRouter:
		g = NewOpenRouter(cfg.BaseURL, cfg.APIKey, cfg.Model)
	default:
		return nil, fmt.Errorf("unknown generation provider %q (supported: %s)", cfg.Provider, strings.Join(Providers(), ", "))
	}
	if err != nil {
		return nil, err
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return WithTimeout(g, timeout), nil
}

// Func adapts a plain function to the Generator interface.
type Func func(ctx context.Context, prompt string) (string, error)

func (f Func) Generate(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

func (f Func) Name() string { return "func" }

type timeoutGenerator struct {
	next    Generator
	timeout time.Duration
}

// WithTimeout bounds every Generate call on g by d.
func WithTimeout(g Generator, d time.Duration) Generator {
	return &timeoutGenerator{next: g, timeout: d}
}

func (t *timeoutGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.next.Generate(ctx, prompt)
}

func (t *timeoutGenerator) Name() string { return t.next.Name() }

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func nonEmpty(text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}
