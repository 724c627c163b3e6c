package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBadgerStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	s, err := OpenBadgerStore(dir)
	require.NoError(t, err)

	_, found, err := s.Get(ctx, "missing")
	require.NoError(t, err)
	require.False(t, found)

	require.NoError(t, s.Set(ctx, SettingsKey, []byte(`{"bitrate":"4500k"}`)))

	raw, found, err := s.Get(ctx, SettingsKey)
	require.NoError(t, err)
	require.True(t, found)
	require.JSONEq(t, `{"bitrate":"4500k"}`, string(raw))

	require.NoError(t, s.Close())

	// The value survives a reopen.
	s, err = OpenBadgerStore(dir)
	require.NoError(t, err)
	defer s.Close()

	raw, found, err = s.Get(ctx, SettingsKey)
	require.NoError(t, err)
	require.True(t, found)
	require.JSONEq(t, `{"bitrate":"4500k"}`, string(raw))
}

func TestBadgerStoreOverwrite(t *testing.T) {
	ctx := context.Background()
	s, err := OpenBadgerStore(t.TempDir())
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Set(ctx, "k", []byte("1")))
	require.NoError(t, s.Set(ctx, "k", []byte("2")))

	raw, found, err := s.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "2", string(raw))
}
