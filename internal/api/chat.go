package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/parley/internal/chat"
	"github.com/kalambet/parley/internal/turn"
)

const maxRequestBodySize = 1 << 20 // 1MB

// PersistedHeader reports whether the turn was written to the store.
const PersistedHeader = "X-Parley-Persisted"

// Deps holds the dependencies of the HTTP surface.
type Deps struct {
	Turns *turn.Handler
	// Token enables bearer auth on /api/* and the transcript page when non-empty.
	Token string
	// Backend names the generation backend, reported by /health.
	Backend string
	Logger  *slog.Logger
}

func (d Deps) logger() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.Default()
}

// NewChatHandler returns the parley HTTP API and the transcript page.
func NewChatHandler(deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(RequestID)

	r.Get("/health", handleHealth(deps))

	// Everything that reads or writes conversations sits behind the token.
	r.Group(func(r chi.Router) {
		if deps.Token != "" {
			r.Use(BearerAuth(deps.Token))
		}
		r.Get("/", handleTranscript(deps))
		r.Route("/api", func(r chi.Router) {
			r.Get("/stats", handleStats(deps))
			r.Post("/{mode}", handleTurn(deps))
			r.Get("/{mode}/history", handleHistory(deps))
		})
	})

	return r
}

func handleHealth(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{
			"status":  "ok",
			"backend": deps.Backend,
		})
	}
}

// StatsResponse is the body of GET /api/stats.
type StatsResponse struct {
	Backend string `json:"backend"`
	turn.Stats
}

func handleStats(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st, err := deps.Turns.Stats(r.Context())
		if err != nil {
			deps.logger().Error("reading stats", "error", err)
			httpError(w, http.StatusInternalServerError, "api_error", "failed to read stats: %v", err)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(StatsResponse{Backend: deps.Backend, Stats: st})
	}
}

func handleTurn(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		mode, err := chat.ParseMode(chi.URLParam(r, "mode"))
		if err != nil {
			httpError(w, http.StatusNotFound, "not_found", "%v", err)
			return
		}

		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req chat.ChatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		res, err := deps.Turns.Run(r.Context(), mode, req)
		if err != nil {
			var ve *chat.ValidationError
			switch {
			case errors.As(err, &ve):
				httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			case turn.IsGenerationError(err):
				httpError(w, http.StatusInternalServerError, "generation_error", "%v", err)
			default:
				httpError(w, http.StatusInternalServerError, "api_error", "%v", err)
			}
			return
		}

		deps.logger().Info("turn served",
			"mode", mode,
			"request_id", w.Header().Get(RequestIDHeader),
			"persisted", res.Persisted,
			"duration_ms", res.Duration.Milliseconds(),
		)

		w.Header().Set("Content-Type", "application/json")
		w.Header().Set(PersistedHeader, strconv.FormatBool(res.Persisted))
		json.NewEncoder(w).Encode(res.Reply)
	}
}

func handleHistory(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		mode, err := chat.ParseMode(chi.URLParam(r, "mode"))
		if err != nil {
			httpError(w, http.StatusNotFound, "not_found", "%v", err)
			return
		}

		entries, err := deps.Turns.History(r.Context(), mode)
		if err != nil {
			deps.logger().Error("loading history", "mode", mode, "error", err)
			httpError(w, http.StatusInternalServerError, "api_error", "failed to load history: %v", err)
			return
		}

		if limit := parseIntParam(r, "limit", 0, 1000); limit > 0 && len(entries) > limit {
			entries = entries[len(entries)-limit:]
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(entries)
	}
}

func parseIntParam(r *http.Request, key string, defaultVal, maxVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return defaultVal
	}
	if maxVal > 0 && v > maxVal {
		return maxVal
	}
	return v
}

// ErrorBody is the JSON shape of every API error.
type ErrorBody struct {
	Error string `json:"error"`
	Type  string `json:"type"`
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(ErrorBody{
		Error: fmt.Sprintf(format, args...),
		Type:  errType,
	})
}
