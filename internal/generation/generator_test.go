package generation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_Providers(t *testing.T) {
	for _, p := range Providers() {
		t.Run(p, func(t *testing.T) {
			g, err := New(Config{Provider: p, APIKey: "k", Model: "m"})
			require.NoError(t, err)
			assert.Equal(t, p+"/m", g.Name())
		})
	}
}

func TestNew_DefaultModel(t *testing.T) {
	g, err := New(Config{Provider: "gemini", APIKey: "k"})
	require.NoError(t, err)
	assert.Equal(t, "gemini/gemini-2.0-flash", g.Name())
}

func TestNew_MissingAPIKey(t *testing.T) {
	_, err := New(Config{Provider: "gemini"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "API key")

	_, err = New(Config{Provider: "ollama"})
	assert.NoError(t, err)
}

func TestNew_UnknownProvider(t *testing.T) {
	_, err := New(Config{Provider: "bard", APIKey: "k"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown generation provider")
}

func TestWithTimeout(t *testing.T) {
	slow := Func(func(ctx context.Context, prompt string) (string, error) {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(5 * time.Second):
			return "late", nil
		}
	})

	_, err := WithTimeout(slow, 20*time.Millisecond).Generate(context.Background(), "hi")
	assert.True(t, errors.Is(err, context.DeadlineExceeded), "err = %v", err)
}

func TestOpenAICompatible_Generate(t *testing.T) {
	var gotPath, gotAuth string
	var body map[string]any

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		json.NewDecoder(r.Body).Decode(&body)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"c1","object":"chat.completion","created":1,"model":"gemini-2.0-flash",
			"choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"**Hi** there"}}]}`)
	}))
	defer srv.Close()

	g := NewGemini(srv.URL, "test-key", "")
	text, err := g.Generate(context.Background(), "Hello")
	require.NoError(t, err)

	assert.Equal(t, "**Hi** there", text)
	assert.Equal(t, "/chat/completions", gotPath)
	assert.Equal(t, "Bearer test-key", gotAuth)
	assert.Equal(t, "gemini-2.0-flash", body["model"])
}

func TestOpenAICompatible_EmptyContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"c1","object":"chat.completion","created":1,"model":"m",
			"choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"  "}}]}`)
	}))
	defer srv.Close()

	_, err := NewOpenAI(srv.URL, "k", "m").Generate(context.Background(), "Hello")
	assert.True(t, errors.Is(err, ErrEmptyResponse), "err = %v", err)
}

func TestAnthropic_Generate(t *testing.T) {
	var gotPath, gotKey string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("X-Api-Key")
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"msg_1","type":"message","role":"assistant","model":"claude-test",
			"content":[{"type":"text","text":"Plan "},{"type":"text","text":"ready"}],
			"stop_reason":"end_turn","usage":{"input_tokens":3,"output_tokens":2}}`)
	}))
	defer srv.Close()

	text, err := NewAnthropic(srv.URL, "test-key", "claude-test").Generate(context.Background(), "Build a CLI tool")
	require.NoError(t, err)

	assert.Equal(t, "Plan ready", text)
	assert.Equal(t, "/v1/messages", gotPath)
	assert.Equal(t, "test-key", gotKey)
}

func TestOllama_Generate(t *testing.T) {
	var req map[string]any

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			http.NotFound(w, r)
			return
		}
		json.NewDecoder(r.Body).Decode(&req)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"model":"llama3.1","created_at":"2024-01-01T00:00:00Z","response":"Hi from ollama","done":true}`+"\n")
	}))
	defer srv.Close()

	g, err := NewOllama(srv.URL, "llama3.1")
	require.NoError(t, err)

	text, err := g.Generate(context.Background(), "Hello")
	require.NoError(t, err)
	assert.Equal(t, "Hi from ollama", text)
	assert.Equal(t, "Hello", req["prompt"])
	assert.Equal(t, false, req["stream"])
}

func TestOllama_InvalidURL(t *testing.T) {
	_, err := NewOllama("://bad", "m")
	assert.Error(t, err)
}
