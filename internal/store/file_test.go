package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFileStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "store", "settings.json")

	s, err := NewFileStore(path)
	require.NoError(t, err)

	_, found, err := s.Get(ctx, "missing")
	require.NoError(t, err)
	require.False(t, found)

	require.NoError(t, s.Set(ctx, "a", []byte(`{"x":1}`)))
	require.NoError(t, s.Set(ctx, "b", []byte(`"two"`)))

	raw, found, err := s.Get(ctx, "a")
	require.NoError(t, err)
	require.True(t, found)
	require.JSONEq(t, `{"x":1}`, string(raw))

	// A fresh store over the same file sees the persisted values.
	reopened, err := NewFileStore(path)
	require.NoError(t, err)
	raw, found, err = reopened.Get(ctx, "b")
	require.NoError(t, err)
	require.True(t, found)
	require.JSONEq(t, `"two"`, string(raw))
}

func TestFileStoreRequiresPath(t *testing.T) {
	_, err := NewFileStore("")
	require.Error(t, err)
}

func TestFileStoreRejectsCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	require.NoError(t, os.WriteFile(path, []byte("not json"), 0o644))

	_, err := NewFileStore(path)
	require.Error(t, err)
}

func TestFileStoreGetReturnsCopy(t *testing.T) {
	ctx := context.Background()
	s, err := NewFileStore(filepath.Join(t.TempDir(), "settings.json"))
	require.NoError(t, err)
	require.NoError(t, s.Set(ctx, "a", []byte(`"abc"`)))

	raw, _, err := s.Get(ctx, "a")
	require.NoError(t, err)
	raw[1] = 'x'

	again, _, err := s.Get(ctx, "a")
	require.NoError(t, err)
	require.Equal(t, `"abc"`, string(again))
}
