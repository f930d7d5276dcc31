package memory

import (
	"context"
	"testing"

	"kidchat/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_GetSetRemove(t *testing.T) {
	s := New()
	ctx := context.Background()

	_, ok, err := s.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Set(ctx, "a", "1"))
	v, ok, err := s.Get(ctx, "a")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "1", v)

	// empty string is a present value
	require.NoError(t, s.Set(ctx, "empty", ""))
	_, ok, err = s.Get(ctx, "empty")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, s.Remove(ctx, "a"))
	require.NoError(t, s.Remove(ctx, "a"))
	_, ok, _ = s.Get(ctx, "a")
	assert.False(t, ok)
}

func TestStore_MultiSetAndMultiRemove(t *testing.T) {
	s := New()
	ctx := context.Background()

	require.NoError(t, s.MultiSet(ctx, storage.Pairs("a", "1", "b", "2", "c", "3")))
	assert.Equal(t, map[string]string{"a": "1", "b": "2", "c": "3"}, s.Snapshot())

	require.NoError(t, s.MultiSet(ctx, storage.Pairs("a", "10")))
	v, _, _ := s.Get(ctx, "a")
	assert.Equal(t, "10", v)

	require.NoError(t, s.MultiRemove(ctx, []string{"a", "b", "nope"}))
	assert.Equal(t, map[string]string{"c": "3"}, s.Snapshot())
	assert.Equal(t, 1, s.Len())
}

func TestStore_SnapshotIsCopy(t *testing.T) {
	s := New()
	ctx := context.Background()
	require.NoError(t, s.Set(ctx, "a", "1"))

	snap := s.Snapshot()
	snap["a"] = "mutated"

	v, _, _ := s.Get(ctx, "a")
	assert.Equal(t, "1", v)
}

func TestStore_Closed(t *testing.T) {
	s := New()
	ctx := context.Background()
	require.NoError(t, s.Close())

	_, _, err := s.Get(ctx, "a")
	assert.ErrorIs(t, err, storage.ErrClosed)
	assert.ErrorIs(t, s.Set(ctx, "a", "1"), storage.ErrClosed)
	assert.ErrorIs(t, s.MultiSet(ctx, storage.Pairs("a", "1")), storage.ErrClosed)
	assert.ErrorIs(t, s.Remove(ctx, "a"), storage.ErrClosed)
	assert.ErrorIs(t, s.MultiRemove(ctx, []string{"a"}), storage.ErrClosed)
}

func TestPairs_IgnoresDanglingKey(t *testing.T) {
	pairs := storage.Pairs("a", "1", "b")
	assert.Equal(t, []storage.KV{{Key: "a", Value: "1"}}, pairs)
}
