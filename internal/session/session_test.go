package session

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	id := NewID()

	_, err := store.Get(ctx, id)
	assert.ErrorIs(t, err, ErrNoPointer)

	require.NoError(t, store.Set(ctx, id, Pointer{ApplicationID: 7, UserID: 3}))
	p, err := store.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, uint(7), p.ApplicationID)

	require.NoError(t, store.Clear(ctx, id))
	_, err = store.Get(ctx, id)
	assert.ErrorIs(t, err, ErrNoPointer)
}

func TestValidID(t *testing.T) {
	assert.True(t, ValidID(NewID()))
	assert.False(t, ValidID("not-a-session"))
	assert.False(t, ValidID(""))
}
