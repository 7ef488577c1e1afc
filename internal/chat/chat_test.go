package chat

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMode(t *testing.T) {
	tests := []struct {
		in   string
		want Mode
	}{
		{"general", ModeGeneral},
		{"project", ModeProject},
		{" Project ", ModeProject},
	}
	for _, tt := range tests {
		got, err := ParseMode(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
	}

	_, err := ParseMode("planning")
	assert.True(t, errors.Is(err, ErrUnknownMode))
}

func TestModeTable(t *testing.T) {
	assert.Equal(t, "general_chats", ModeGeneral.Table())
	assert.Equal(t, "project_chats", ModeProject.Table())
	assert.NotEqual(t, ModeGeneral.Table(), ModeProject.Table())
}

func TestModeNext(t *testing.T) {
	assert.Equal(t, ModeProject, ModeGeneral.Next())
	assert.Equal(t, ModeGeneral, ModeProject.Next())
}

func TestChatRequestValidate(t *testing.T) {
	tests := []struct {
		name    string
		req     ChatRequest
		wantErr bool
	}{
		{"single user message", ChatRequest{Messages: []Message{UserMessage("Hello")}}, false},
		{"history then user", ChatRequest{Messages: []Message{
			UserMessage("a"), AssistantMessage("b"), UserMessage("c"),
		}}, false},
		{"duplicates allowed", ChatRequest{Messages: []Message{
			UserMessage("same"), UserMessage("same"),
		}}, false},
		{"nil messages", ChatRequest{}, true},
		{"empty messages", ChatRequest{Messages: []Message{}}, true},
		{"bad role", ChatRequest{Messages: []Message{{Role: "system", Content: "x"}}}, true},
		{"last is assistant", ChatRequest{Messages: []Message{UserMessage("a"), AssistantMessage("b")}}, true},
		{"blank last", ChatRequest{Messages: []Message{UserMessage("   ")}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			var verr *ValidationError
			assert.True(t, errors.As(err, &verr), "want *ValidationError, got %v", err)
		})
	}
}

func TestLatest(t *testing.T) {
	req := ChatRequest{Messages: []Message{UserMessage("first"), AssistantMessage("reply"), UserMessage("second")}}
	assert.Equal(t, "second", req.Latest().Content)
}
