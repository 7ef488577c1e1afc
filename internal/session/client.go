package session

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/kalambet/parley/internal/chat"
)

// Client performs the effects emitted by Apply against a parley server.
type Client interface {
	Send(ctx context.Context, mode chat.Mode, messages []chat.Message) (string, error)
	History(ctx context.Context, mode chat.Mode) ([]chat.Entry, error)
}

// APIError is a non-2xx response from the server.
type APIError struct {
	Status  int
	Message string
	Type    string
}

func (e *APIError) Error() string { return e.Message }

// HTTPClient talks to the parley HTTP API.
type HTTPClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewHTTPClient returns a client for the server at baseURL. token may be
// empty when the server runs without auth.
func NewHTTPClient(baseURL, token string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Send posts messages to /api/{mode} and returns the reply text.
func (c *HTTPClient) Send(ctx context.Context, mode chat.Mode, messages []chat.Message) (string, error) {
	resp, err := c.do(ctx, http.MethodPost, "/api/"+string(mode), chat.ChatRequest{Messages: messages})
	if err != nil {
		return "", err
	}
	var reply string
	if err := decodeJSON(resp, &reply); err != nil {
		return "", err
	}
	return reply, nil
}

// History fetches the stored conversation of mode.
func (c *HTTPClient) History(ctx context.Context, mode chat.Mode) ([]chat.Entry, error) {
	resp, err := c.do(ctx, http.MethodGet, "/api/"+string(mode)+"/history", nil)
	if err != nil {
		return nil, err
	}
	var entries []chat.Entry
	if err := decodeJSON(resp, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// Health reports whether the server answers /health.
func (c *HTTPClient) Health(ctx context.Context) error {
	resp, err := c.do(ctx, http.MethodGet, "/health", nil)
	if err != nil {
		return err
	}
	var body map[string]string
	return decodeJSON(resp, &body)
}

// Stats is the server's summary of stored conversations.
type Stats struct {
	Backend       string            `json:"backend"`
	Storage       string            `json:"storage"`
	SchemaVersion int64             `json:"schema_version"`
	Messages      map[chat.Mode]int `json:"messages"`
}

// Stats fetches /api/stats.
func (c *HTTPClient) Stats(ctx context.Context) (Stats, error) {
	resp, err := c.do(ctx, http.MethodGet, "/api/stats", nil)
	if err != nil {
		return Stats{}, err
	}
	var st Stats
	if err := decodeJSON(resp, &st); err != nil {
		return Stats{}, err
	}
	return st, nil
}

func (c *HTTPClient) do(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshalling request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, err
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("server not reachable, is parley running? (%w)", err)
	}
	return resp, nil
}

func decodeJSON(resp *http.Response, v any) error {
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		apiErr := &APIError{Status: resp.StatusCode}
		var body struct {
			Error string `json:"error"`
			Type  string `json:"type"`
		}
		if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&body); err == nil {
			apiErr.Message = body.Error
			apiErr.Type = body.Type
		}
		if apiErr.Message == "" {
			apiErr.Message = FallbackError
		}
		return apiErr
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
