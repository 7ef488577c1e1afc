// Package turn runs one chat turn for a mode: prompt composition,
// generation, sanitization and persistence.
package turn

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kalambet/parley/internal/chat"
	"github.com/kalambet/parley/internal/generation"
	"github.com/kalambet/parley/internal/prompt"
	"github.com/kalambet/parley/internal/sanitize"
	"github.com/kalambet/parley/internal/storage"
)

// GenerationError wraps a failure of the generation backend.
type GenerationError struct {
	Err error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generating response: %v", e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// Result describes a completed turn.
type Result struct {
	// Reply is the sanitized assistant text returned to the client.
	Reply string
	// Prompt is the composed text sent to the generator.
	Prompt string
	// Persisted is false when the turn could not be written to the store.
	Persisted bool
	Duration  time.Duration
}

// Handler runs turns for both chat modes.
type Handler struct {
	gen    generation.Generator
	repo   storage.Repository
	logger *slog.Logger

	// storeRawInput stores the typed text for project turns too.
	storeRawInput bool
}

// Option configures a Handler.
type Option func(*Handler)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(h *Handler) { h.logger = l }
}

// WithRawInput makes the handler persist the user's text as typed in every mode.
func WithRawInput(raw bool) Option {
	return func(h *Handler) { h.storeRawInput = raw }
}

// NewHandler creates a Handler. repo may be nil, in which case turns are not
// persisted.
func NewHandler(gen generation.Generator, repo storage.Repository, opts ...Option) *Handler {
	h := &Handler{gen: gen, repo: repo, logger: slog.Default()}
	for _, o := range opts {
		o(h)
	}
	return h
}

// Run executes a turn:
//  1. Validate the request and take the latest user message
//  2. Compose the mode prompt from that message only
//  3. Generate and sanitize the reply
//  4. Append the user and assistant rows
//
// A persistence failure does not fail the turn; it is logged and reported
// through Result.Persisted.
func (h *Handler) Run(ctx context.Context, mode chat.Mode, req chat.ChatRequest) (Result, error) {
	start := time.Now()

	mode, err := chat.ParseMode(string(mode))
	if err != nil {
		return Result{}, err
	}
	if err := req.Validate(); err != nil {
		return Result{}, err
	}

	input := req.Latest().Content
	composed := prompt.Compose(mode, input)

	raw, err := h.gen.Generate(ctx, composed)
	if err != nil {
		h.logger.Error("generation failed", "mode", mode, "error", err)
		return Result{}, &GenerationError{Err: err}
	}
	reply := sanitize.ForMode(mode, raw)

	res := Result{Reply: reply, Prompt: composed}

	// General turns store the question as typed; project turns store the
	// persona-wrapped request.
	stored := input
	if mode == chat.ModeProject && !h.storeRawInput {
		stored = composed
	}
	if h.repo != nil {
		if err := h.repo.AppendTurn(ctx, mode, stored, reply); err != nil {
			h.logger.Warn("turn not persisted", "mode", mode, "error", err)
		} else {
			res.Persisted = true
		}
	}

	res.Duration = time.Since(start)
	h.logger.Debug("turn completed",
		"mode", mode,
		"persisted", res.Persisted,
		"history_len", len(req.Messages),
		"duration_ms", res.Duration.Milliseconds(),
	)
	return res, nil
}

// History returns the stored messages for mode.
func (h *Handler) History(ctx context.Context, mode chat.Mode) ([]chat.Entry, error) {
	mode, err := chat.ParseMode(string(mode))
	if err != nil {
		return nil, err
	}
	if h.repo == nil {
		return []chat.Entry{}, nil
	}
	return h.repo.LoadHistory(ctx, mode)
}

// Stats summarises what the repository holds.
type Stats struct {
	Storage       string            `json:"storage"`
	SchemaVersion int64             `json:"schema_version,omitempty"`
	Messages      map[chat.Mode]int `json:"messages"`
}

// Stats counts stored messages per mode. Repositories that implement
// storage.Inspector are asked directly; others have their history loaded.
func (h *Handler) Stats(ctx context.Context) (Stats, error) {
	st := Stats{Storage: "none", Messages: make(map[chat.Mode]int, len(chat.Modes()))}
	if h.repo == nil {
		for _, m := range chat.Modes() {
			st.Messages[m] = 0
		}
		return st, nil
	}

	inspector, canCount := h.repo.(storage.Inspector)
	if canCount {
		st.Storage = inspector.Driver()
	} else {
		st.Storage = "unknown"
	}
	if v, ok := h.repo.(storage.Versioned); ok {
		version, err := v.AppliedVersion(ctx)
		if err != nil {
			return Stats{}, fmt.Errorf("reading schema version: %w", err)
		}
		st.SchemaVersion = version
	}

	for _, m := range chat.Modes() {
		if canCount {
			n, err := inspector.CountMessages(ctx, m)
			if err != nil {
				return Stats{}, err
			}
			st.Messages[m] = n
			continue
		}
		entries, err := h.repo.LoadHistory(ctx, m)
		if err != nil {
			return Stats{}, err
		}
		st.Messages[m] = len(entries)
	}
	return st, nil
}

// IsGenerationError reports whether err came from the generation backend.
func IsGenerationError(err error) bool {
	var ge *GenerationError
	return errors.As(err, &ge)
}
