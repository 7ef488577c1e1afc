package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kalambet/parley/internal/chat"
	"github.com/kalambet/parley/internal/generation"
	"github.com/kalambet/parley/internal/storage"
	"github.com/kalambet/parley/internal/storage/storagetest"
	"github.com/kalambet/parley/internal/turn"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

func replying(reply string) generation.Generator {
	return generation.Func(func(context.Context, string) (string, error) { return reply, nil })
}

func failing(msg string) generation.Generator {
	return generation.Func(func(context.Context, string) (string, error) { return "", errors.New(msg) })
}

func newTestHandler(t *testing.T, gen generation.Generator, repo storage.Repository, token string) http.Handler {
	t.Helper()
	return NewChatHandler(Deps{
		Turns:   turn.NewHandler(gen, repo, turn.WithLogger(quiet)),
		Token:   token,
		Backend: "test",
		Logger:  quiet,
	})
}

func do(h http.Handler, method, path, body string, header ...string) *httptest.ResponseRecorder {
	var rdr io.Reader
	if body != "" {
		rdr = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rdr)
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) ErrorBody {
	t.Helper()
	var body ErrorBody
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&body))
	return body
}

func TestHealth(t *testing.T) {
	h := newTestHandler(t, replying("x"), storage.NewMemory(), "")

	rr := do(h, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rr.Code)

	var body map[string]string
	json.NewDecoder(rr.Body).Decode(&body)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "test", body["backend"])
	assert.NotEmpty(t, rr.Header().Get(RequestIDHeader))
}

func TestRequestID_Echoed(t *testing.T) {
	h := newTestHandler(t, replying("x"), storage.NewMemory(), "")
	rr := do(h, http.MethodGet, "/health", "", RequestIDHeader, "abc-123")
	assert.Equal(t, "abc-123", rr.Header().Get(RequestIDHeader))
}

func TestTurn_General(t *testing.T) {
	repo := storage.NewMemory()
	h := newTestHandler(t, replying("**Hi** there\n#Greetings"), repo, "")

	rr := do(h, http.MethodPost, "/api/general", `{"messages":[{"role":"user","content":"Hello"}]}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
	assert.Equal(t, "true", rr.Header().Get(PersistedHeader))

	var reply string
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&reply), "body is a JSON string")
	assert.Equal(t, "Hi there\nGreetings", reply)

	hist, _ := repo.LoadHistory(context.Background(), chat.ModeGeneral)
	assert.Len(t, hist, 2)
}

func TestTurn_ProjectBullets(t *testing.T) {
	h := newTestHandler(t, replying("- step one\n- step two"), storage.NewMemory(), "")

	rr := do(h, http.MethodPost, "/api/project", `{"messages":[{"role":"user","content":"Build a CLI tool"}]}`)
	require.Equal(t, http.StatusOK, rr.Code)

	var reply string
	json.NewDecoder(rr.Body).Decode(&reply)
	assert.Equal(t, "• step one\n• step two", reply)
}

func TestTurn_GenerationFailure(t *testing.T) {
	h := newTestHandler(t, failing("model overloaded"), storage.NewMemory(), "")

	rr := do(h, http.MethodPost, "/api/general", `{"messages":[{"role":"user","content":"Hello"}]}`)
	require.Equal(t, http.StatusInternalServerError, rr.Code)

	body := decodeError(t, rr)
	assert.Contains(t, body.Error, "model overloaded")
	assert.Equal(t, "generation_error", body.Type)
}

func TestTurn_PersistenceFailureStillOK(t *testing.T) {
	repo := storagetest.NewFailing(errors.New("connection reset"), nil)
	h := newTestHandler(t, replying("Hi"), repo, "")

	rr := do(h, http.MethodPost, "/api/general", `{"messages":[{"role":"user","content":"Hello"}]}`)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "false", rr.Header().Get(PersistedHeader))

	var reply string
	json.NewDecoder(rr.Body).Decode(&reply)
	assert.Equal(t, "Hi", reply)
}

func TestTurn_MalformedRequests(t *testing.T) {
	h := newTestHandler(t, replying("Hi"), storage.NewMemory(), "")

	tests := []struct {
		name string
		body string
	}{
		{"invalid json", `{"messages":`},
		{"missing messages", `{}`},
		{"empty messages", `{"messages":[]}`},
		{"bad role", `{"messages":[{"role":"system","content":"x"}]}`},
		{"last not user", `{"messages":[{"role":"user","content":"a"},{"role":"assistant","content":"b"}]}`},
		{"blank content", `{"messages":[{"role":"user","content":"  "}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := do(h, http.MethodPost, "/api/general", tt.body)
			require.Equal(t, http.StatusBadRequest, rr.Code)
			assert.Equal(t, "invalid_request_error", decodeError(t, rr).Type)
		})
	}
}

func TestTurn_BodyTooLarge(t *testing.T) {
	h := newTestHandler(t, replying("Hi"), storage.NewMemory(), "")

	big := `{"messages":[{"role":"user","content":"` + strings.Repeat("a", maxRequestBodySize) + `"}]}`
	rr := do(h, http.MethodPost, "/api/general", big)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestTurn_UnknownMode(t *testing.T) {
	h := newTestHandler(t, replying("Hi"), storage.NewMemory(), "")

	rr := do(h, http.MethodPost, "/api/sports", `{"messages":[{"role":"user","content":"Hello"}]}`)
	require.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, "not_found", decodeError(t, rr).Type)
}

func TestHistory(t *testing.T) {
	repo := storage.NewMemory()
	ctx := context.Background()
	require.NoError(t, repo.AppendTurn(ctx, chat.ModeProject, "p1", "r1"))
	require.NoError(t, repo.AppendTurn(ctx, chat.ModeProject, "p2", "r2"))
	require.NoError(t, repo.AppendTurn(ctx, chat.ModeGeneral, "g1", "gr1"))
	h := newTestHandler(t, replying("x"), repo, "")

	rr := do(h, http.MethodGet, "/api/project/history", "")
	require.Equal(t, http.StatusOK, rr.Code)

	var entries []chat.Entry
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&entries))
	assert.Equal(t, []chat.Message{
		chat.UserMessage("p1"), chat.AssistantMessage("r1"),
		chat.UserMessage("p2"), chat.AssistantMessage("r2"),
	}, chat.Messages(entries))

	rr = do(h, http.MethodGet, "/api/project/history?limit=2", "")
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&entries))
	assert.Equal(t, []chat.Message{chat.UserMessage("p2"), chat.AssistantMessage("r2")}, chat.Messages(entries))
}

func TestHistory_Empty(t *testing.T) {
	h := newTestHandler(t, replying("x"), storage.NewMemory(), "")

	rr := do(h, http.MethodGet, "/api/general/history", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, "[]", rr.Body.String())
}

func TestHistory_ReadFailure(t *testing.T) {
	repo := storagetest.NewFailing(nil, errors.New("offline"))
	h := newTestHandler(t, replying("x"), repo, "")

	rr := do(h, http.MethodGet, "/api/general/history", "")
	require.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Equal(t, "api_error", decodeError(t, rr).Type)
}

func TestBearerAuth(t *testing.T) {
	h := newTestHandler(t, replying("Hi"), storage.NewMemory(), "secret")
	body := `{"messages":[{"role":"user","content":"Hello"}]}`

	rr := do(h, http.MethodPost, "/api/general", body)
	require.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, "authentication_error", decodeError(t, rr).Type)

	rr = do(h, http.MethodPost, "/api/general", body, "Authorization", "Bearer wrong")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = do(h, http.MethodPost, "/api/general", body, "Authorization", "Bearer secret")
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = do(h, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rr.Code, "health stays public")
}

func TestBearerAuth_ProtectsTranscriptPage(t *testing.T) {
	repo := storage.NewMemory()
	require.NoError(t, repo.AppendTurn(context.Background(), chat.ModeGeneral, "question", "secret answer"))
	h := newTestHandler(t, replying("x"), repo, "s3cret")

	for _, path := range []string{"/", "/?mode=general", "/api/general/history"} {
		rr := do(h, http.MethodGet, path, "")
		assert.Equal(t, http.StatusUnauthorized, rr.Code, path)
		assert.NotContains(t, rr.Body.String(), "secret answer", path)
	}

	rr := do(h, http.MethodGet, "/?mode=general", "", "Authorization", "Bearer s3cret")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "secret answer")
}

func TestStats(t *testing.T) {
	repo := storage.NewMemory()
	require.NoError(t, repo.AppendTurn(context.Background(), chat.ModeProject, "p", "plan"))
	h := newTestHandler(t, replying("x"), repo, "s3cret")

	rr := do(h, http.MethodGet, "/api/stats", "")
	require.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = do(h, http.MethodGet, "/api/stats", "", "Authorization", "Bearer s3cret")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"backend":"test","storage":"memory","messages":{"general":0,"project":2}}`, rr.Body.String())
}

func TestStats_ReadFailure(t *testing.T) {
	repo := storagetest.NewFailing(nil, errors.New("offline"))
	h := newTestHandler(t, replying("x"), repo, "")

	rr := do(h, http.MethodGet, "/api/stats", "")
	require.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Contains(t, decodeError(t, rr).Error, "offline")
}

func TestTranscriptPage(t *testing.T) {
	repo := storage.NewMemory()
	require.NoError(t, repo.AppendTurn(context.Background(), chat.ModeProject, "<b>plan</b>", "Use *Go* here"))
	h := newTestHandler(t, replying("x"), repo, "")

	rr := do(h, http.MethodGet, "/?mode=project", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Content-Type"), "text/html")

	page := rr.Body.String()
	assert.Contains(t, page, "&lt;b&gt;plan&lt;/b&gt;", "user content is escaped")
	assert.Contains(t, page, "<em>Go</em>", "assistant content is rendered as markdown")
	assert.NotContains(t, page, "Something went wrong")
}

func TestTranscriptPage_ReadFailure(t *testing.T) {
	repo := storagetest.NewFailing(nil, errors.New("offline"))
	h := newTestHandler(t, replying("x"), repo, "")

	rr := do(h, http.MethodGet, "/", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "Something went wrong")
}

func TestTranscriptPage_UnknownMode(t *testing.T) {
	h := newTestHandler(t, replying("x"), storage.NewMemory(), "")
	rr := do(h, http.MethodGet, "/?mode=sports", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}
