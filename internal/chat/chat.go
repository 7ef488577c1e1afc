// Package chat holds the domain types shared by the server, the store and
// the terminal client: chat modes, message roles and request validation.
package chat

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrUnknownMode is returned by ParseMode for anything other than the
// supported modes.
var ErrUnknownMode = errors.New("unknown chat mode")

// Mode selects the prompt template and the conversation table for a turn.
type Mode string

const (
	ModeGeneral Mode = "general"
	ModeProject Mode = "project"
)

// Modes returns the supported modes in display order.
func Modes() []Mode {
	return []Mode{ModeGeneral, ModeProject}
}

// ParseMode converts s into a Mode.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeGeneral:
		return ModeGeneral, nil
	case ModeProject:
		return ModeProject, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownMode, s)
}

// Table returns the name of the conversation table backing the mode.
func (m Mode) Table() string {
	if m == ModeProject {
		return "project_chats"
	}
	return "general_chats"
}

// Next returns the mode after m, wrapping around.
func (m Mode) Next() Mode {
	if m == ModeGeneral {
		return ModeProject
	}
	return ModeGeneral
}

func (m Mode) String() string { return string(m) }

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

// Message is a single chat message as exchanged with clients.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// UserMessage returns a user-role message.
func UserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// AssistantMessage returns an assistant-role message.
func AssistantMessage(content string) Message {
	return Message{Role: RoleAssistant, Content: content}
}

// Entry is a persisted message together with its store-assigned timestamp.
type Entry struct {
	Message
	CreatedAt time.Time `json:"created_at"`
}

// Messages strips timestamps from entries.
func Messages(entries []Entry) []Message {
	out := make([]Message, len(entries))
	for i, e := range entries {
		out[i] = e.Message
	}
	return out
}
