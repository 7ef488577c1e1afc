package storage

import (
	"context"
	"fmt"

	"github.com/kalambet/parley/internal/chat"
)

// Repository persists conversation turns per chat mode.
type Repository interface {
	// AppendTurn stores the user and assistant messages of one completed turn.
	// Either both rows are written or neither is.
	AppendTurn(ctx context.Context, mode chat.Mode, user, assistant string) error
	// LoadHistory returns the mode's messages in creation order.
	LoadHistory(ctx context.Context, mode chat.Mode) ([]chat.Entry, error)
}

// WriteError reports a failed turn write.
type WriteError struct {
	Mode chat.Mode
	Err  error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("writing %s turn: %v", e.Mode, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// ReadError reports a failed history read.
type ReadError struct {
	Mode chat.Mode
	Err  error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("reading %s history: %v", e.Mode, e.Err)
}

func (e *ReadError) Unwrap() error { return e.Err }

// Inspector is implemented by repositories that can describe their contents
// without loading them.
type Inspector interface {
	Driver() string
	CountMessages(ctx context.Context, mode chat.Mode) (int, error)
}

// Versioned is implemented by repositories with a migrated schema.
type Versioned interface {
	AppliedVersion(ctx context.Context) (int64, error)
}
