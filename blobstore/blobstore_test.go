package blobstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	t.Run("get missing", func(t *testing.T) {
		_, err := s.Get(ctx, "missing")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("put get round trip", func(t *testing.T) {
		require.NoError(t, s.Put(ctx, "a/one", []byte("hello")))

		data, err := s.Get(ctx, "a/one")
		require.NoError(t, err)
		assert.Equal(t, []byte("hello"), data)
	})

	t.Run("put replaces", func(t *testing.T) {
		require.NoError(t, s.Put(ctx, "a/one", []byte("replaced")))

		data, err := s.Get(ctx, "a/one")
		require.NoError(t, err)
		assert.Equal(t, []byte("replaced"), data)
	})

	t.Run("list by prefix", func(t *testing.T) {
		require.NoError(t, s.Put(ctx, "a/two", []byte("2")))
		require.NoError(t, s.Put(ctx, "b/one", []byte("1")))

		names, err := s.List(ctx, "a/")
		require.NoError(t, err)
		assert.Equal(t, []string{"a/one", "a/two"}, names)

		all, err := s.List(ctx, "")
		require.NoError(t, err)
		assert.Len(t, all, 3)
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, s.Delete(ctx, "a/one"))
		_, err := s.Get(ctx, "a/one")
		assert.ErrorIs(t, err, ErrNotFound)

		// Deleting a missing blob is not an error.
		assert.NoError(t, s.Delete(ctx, "a/one"))
	})
}

func TestMemoryStore(t *testing.T) {
	testStore(t, NewMemoryStore())
}

func TestLocalStore(t *testing.T) {
	s, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)
	testStore(t, s)
}

func TestMemoryStore_GetReturnsCopy(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "x", []byte("abc")))
	data, err := s.Get(ctx, "x")
	require.NoError(t, err)
	data[0] = 'z'

	again, err := s.Get(ctx, "x")
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), again)
}
