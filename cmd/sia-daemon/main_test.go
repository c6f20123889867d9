package main

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenStorePersistsAcrossClose(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "sia.db")

	store, closer, err := openStore(ctx, path)
	require.NoError(t, err)
	require.NoError(t, store.AddTodo(ctx, "buy milk"))
	require.NoError(t, closer.Close())

	assert.Error(t, store.AddTodo(ctx, "after close"), "database is released")

	store, closer, err = openStore(ctx, path)
	require.NoError(t, err)
	defer closer.Close()
	todos := store.Snapshot().Todos
	require.Len(t, todos, 1)
	assert.Equal(t, "buy milk", todos[0].Text)
}

func TestOpenStoreMemory(t *testing.T) {
	store, closer, err := openStore(context.Background(), "")
	require.NoError(t, err)
	assert.NotNil(t, store)
	assert.NoError(t, closer.Close())
}

func TestOpenStoreBadPathFallsBack(t *testing.T) {
	store, closer, err := openStore(context.Background(), filepath.Join(t.TempDir(), "missing", "sia.db"))
	assert.Error(t, err)
	require.NotNil(t, store)
	assert.NoError(t, closer.Close())
	assert.NoError(t, store.AddTodo(context.Background(), "kept in memory"))
}
