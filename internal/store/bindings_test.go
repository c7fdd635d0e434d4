package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_SetChannelFlow(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.CreateFlow(ctx, testFlow("alpha")))
	require.NoError(t, store.SetChannelFlow(ctx, "C1", "alpha"))

	binding, err := store.GetChannelBinding(ctx, "C1")
	require.NoError(t, err)
	assert.Equal(t, "alpha", binding.FlowName)
}

func TestStore_SetChannelFlow_UnknownFlow(t *testing.T) {
	store := setupTestStore(t)

	err := store.SetChannelFlow(context.Background(), "C1", "ghost")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_SetChannelFlow_Overwrite(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.CreateFlow(ctx, testFlow("alpha")))
	require.NoError(t, store.CreateFlow(ctx, testFlow("beta")))

	require.NoError(t, store.SetChannelFlow(ctx, "C1", "alpha"))
	require.NoError(t, store.SetChannelFlow(ctx, "C1", "beta"))

	binding, err := store.GetChannelBinding(ctx, "C1")
	require.NoError(t, err)
	assert.Equal(t, "beta", binding.FlowName)
}

func TestStore_GetChannelBinding_NotFound(t *testing.T) {
	store := setupTestStore(t)

	_, err := store.GetChannelBinding(context.Background(), "C-none")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_DeleteChannelBinding_Idempotent(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.CreateFlow(ctx, testFlow("alpha")))
	require.NoError(t, store.SetChannelFlow(ctx, "C1", "alpha"))

	require.NoError(t, store.DeleteChannelBinding(ctx, "C1"))
	require.NoError(t, store.DeleteChannelBinding(ctx, "C1"))

	_, err := store.GetChannelBinding(ctx, "C1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_ListChannelBindings(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.CreateFlow(ctx, testFlow("alpha")))
	require.NoError(t, store.SetChannelFlow(ctx, "C2", "alpha"))
	require.NoError(t, store.SetChannelFlow(ctx, "C1", "alpha"))

	bindings, err := store.ListChannelBindings(ctx)
	require.NoError(t, err)
	require.Len(t, bindings, 2)
	assert.Equal(t, "C1", bindings[0].ChannelID)
	assert.Equal(t, "C2", bindings[1].ChannelID)
}
