package chat

import (
	"fmt"
	"strings"
)

// ChatRequest is the body accepted by POST /api/{mode}.
type ChatRequest struct {
	Messages []Message `json:"messages"`
}

// ValidationError describes a malformed chat request.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// Validate checks that the request carries a usable history. The last
// message is the new prompt and must be a non-blank user message.
func (r ChatRequest) Validate() error {
	if len(r.Messages) == 0 {
		return &ValidationError{Field: "messages", Reason: "is required and must not be empty"}
	}
	for i, m := range r.Messages {
		if !m.Role.Valid() {
			return &ValidationError{
				Field:  fmt.Sprintf("messages[%d].role", i),
				Reason: fmt.Sprintf("must be %q or %q, got %q", RoleUser, RoleAssistant, m.Role),
			}
		}
	}
	last := r.Messages[len(r.Messages)-1]
	if last.Role != RoleUser {
		return &ValidationError{Field: "messages", Reason: "last message must have role \"user\""}
	}
	if strings.TrimSpace(last.Content) == "" {
		return &ValidationError{Field: "messages", Reason: "last message content must not be empty"}
	}
	return nil
}

// Latest returns the newest message. Callers must Validate first.
func (r ChatRequest) Latest() Message {
	return r.Messages[len(r.Messages)-1]
}
