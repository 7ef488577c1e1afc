package storage

import (
	"context"
	"sync"
	"time"

	"github.com/kalambet/parley/internal/chat"
)

// DriverMemory names the in-memory repository in stats.
const DriverMemory = "memory"

// Memory is a Repository that keeps turns in process memory. Used by tests
// and by `parley serve --ephemeral`. The zero value is ready to use.
type Memory struct {
	mu      sync.Mutex
	entries map[chat.Mode][]chat.Entry
	now     func() time.Time
}

// NewMemory returns an empty in-memory repository.
func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) AppendTurn(_ context.Context, mode chat.Mode, user, assistant string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, err := chat.ParseMode(string(mode)); err != nil {
		return &WriteError{Mode: mode, Err: err}
	}
	if m.entries == nil {
		m.entries = make(map[chat.Mode][]chat.Entry)
	}
	now := m.now
	if now == nil {
		now = time.Now
	}

	ts := now().UTC()
	m.entries[mode] = append(m.entries[mode],
		chat.Entry{Message: chat.UserMessage(user), CreatedAt: ts},
		chat.Entry{Message: chat.AssistantMessage(assistant), CreatedAt: ts},
	)
	return nil
}

func (m *Memory) LoadHistory(_ context.Context, mode chat.Mode) ([]chat.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, err := chat.ParseMode(string(mode)); err != nil {
		return nil, &ReadError{Mode: mode, Err: err}
	}

	out := make([]chat.Entry, len(m.entries[mode]))
	copy(out, m.entries[mode])
	return out, nil
}

// CountMessages returns the number of stored messages for mode.
func (m *Memory) CountMessages(_ context.Context, mode chat.Mode) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, err := chat.ParseMode(string(mode)); err != nil {
		return 0, &ReadError{Mode: mode, Err: err}
	}
	return len(m.entries[mode]), nil
}

func (m *Memory) Driver() string { return DriverMemory }
