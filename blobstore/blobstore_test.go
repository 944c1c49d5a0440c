package blobstore

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testStore(t *testing.T, s BlobStore) {
	t.Helper()
	ctx := context.Background()

	t.Run("PutOpenRoundTrip", func(t *testing.T) {
		require.NoError(t, s.Put(ctx, "snapshots/latest", strings.NewReader("payload")))

		rc, err := s.Open(ctx, "snapshots/latest")
		require.NoError(t, err)
		defer rc.Close()

		data, err := io.ReadAll(rc)
		require.NoError(t, err)
		assert.Equal(t, "payload", string(data))
	})

	t.Run("PutReplaces", func(t *testing.T) {
		require.NoError(t, s.Put(ctx, "snapshots/latest", strings.NewReader("v2")))
		rc, err := s.Open(ctx, "snapshots/latest")
		require.NoError(t, err)
		defer rc.Close()

		data, _ := io.ReadAll(rc)
		assert.Equal(t, "v2", string(data))
	})

	t.Run("OpenMissing", func(t *testing.T) {
		_, err := s.Open(ctx, "missing")
		assert.True(t, errors.Is(err, ErrNotFound))
	})

	t.Run("List", func(t *testing.T) {
		require.NoError(t, s.Put(ctx, "snapshots/a", strings.NewReader("a")))
		require.NoError(t, s.Put(ctx, "other/b", strings.NewReader("b")))

		names, err := s.List(ctx, "snapshots/")
		require.NoError(t, err)
		assert.Equal(t, []string{"snapshots/a", "snapshots/latest"}, names)
	})

	t.Run("DeleteIdempotent", func(t *testing.T) {
		require.NoError(t, s.Delete(ctx, "snapshots/a"))
		require.NoError(t, s.Delete(ctx, "snapshots/a"))
		_, err := s.Open(ctx, "snapshots/a")
		assert.True(t, errors.Is(err, ErrNotFound))
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
