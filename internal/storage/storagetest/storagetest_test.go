package storagetest

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kalambet/parley/internal/chat"
	"github.com/kalambet/parley/internal/storage"
)

func TestFailing(t *testing.T) {
	ctx := context.Background()
	f := NewFailing(errors.New("disk full"), errors.New("offline"))

	err := f.AppendTurn(ctx, chat.ModeGeneral, "q", "a")
	var we *storage.WriteError
	require.ErrorAs(t, err, &we)
	assert.Contains(t, err.Error(), "disk full")

	_, err = f.LoadHistory(ctx, chat.ModeGeneral)
	var re *storage.ReadError
	require.ErrorAs(t, err, &re)

	f.ReadErr = nil
	got, err := f.LoadHistory(ctx, chat.ModeGeneral)
	require.NoError(t, err)
	assert.Empty(t, got, "failed write leaves nothing behind")

	f.WriteErr = nil
	require.NoError(t, f.AppendTurn(ctx, chat.ModeGeneral, "q", "a"))
	got, err = f.LoadHistory(ctx, chat.ModeGeneral)
	require.NoError(t, err)
	assert.Len(t, got, 2)
}
