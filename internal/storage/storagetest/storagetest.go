// Package storagetest provides repository fakes for tests.
package storagetest

import (
	"context"

	"github.com/kalambet/parley/internal/chat"
	"github.com/kalambet/parley/internal/storage"
)

// Failing wraps a Repository and fails writes or reads with the given errors.
// A nil error passes the call through to the wrapped repository.
type Failing struct {
	storage.Repository
	WriteErr error
	ReadErr  error
}

// NewFailing wraps a fresh storage.Memory.
func NewFailing(writeErr, readErr error) *Failing {
	return &Failing{Repository: storage.NewMemory(), WriteErr: writeErr, ReadErr: readErr}
}

func (f *Failing) AppendTurn(ctx context.Context, mode chat.Mode, user, assistant string) error {
	if f.WriteErr != nil {
		return &storage.WriteError{Mode: mode, Err: f.WriteErr}
	}
	return f.Repository.AppendTurn(ctx, mode, user, assistant)
}

func (f *Failing) LoadHistory(ctx context.Context, mode chat.Mode) ([]chat.Entry, error) {
	if f.ReadErr != nil {
		return nil, &storage.ReadError{Mode: mode, Err: f.ReadErr}
	}
	return f.Repository.LoadHistory(ctx, mode)
}
