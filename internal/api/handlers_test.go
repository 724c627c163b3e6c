package api

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"relaycast/internal/ffmpeg"
	"relaycast/internal/media"
	"relaycast/internal/models"
	"relaycast/internal/store"
	"relaycast/internal/stream"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testSettings() models.StreamSettings {
	return models.StreamSettings{
		InputType: models.InputFile,
		Category:  "music",
		Bitrate:   "4500k",
		Encoder:   "libx264",
		Preset:    "veryfast",
		Destinations: []models.Destination{{
			ID:          "d1",
			DisplayName: "Main",
			BaseURL:     "rtmp://live.example.com/app",
			StreamKey:   "secret",
			Enabled:     true,
		}},
	}
}

type fixture struct {
	handler *Handler
	root    string
	store   store.ConfigStore
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := testLogger()

	root := t.TempDir()
	for _, rel := range []string{"music/a.mp4", "music/b.mp4", "talks/keynote.webm"} {
		path := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
	}

	library, err := media.NewLibrary(root, logger)
	require.NoError(t, err)
	tracker := media.NewManifestTracker(logger)
	playlists, err := media.NewPlaylistBuilder(t.TempDir(), tracker, logger)
	require.NoError(t, err)

	configStore, err := store.NewFileStore(filepath.Join(t.TempDir(), "settings.json"))
	require.NoError(t, err)

	state := stream.NewState(tracker.Reset)
	supervisor := stream.New(stream.Config{
		// The no-op binary exits immediately with status zero, so a test
		// start is a short clean run.
		Binary:       "true",
		StallTimeout: 5 * time.Second,
		GracePeriod:  time.Second,
	}, state, stream.NewLogRing(32), tracker, nil, logger)
	t.Cleanup(supervisor.Close)

	handler := NewHandler(supervisor, library, playlists, ffmpeg.NewBuilder(logger), configStore, testSettings(), logger)
	return &fixture{handler: handler, root: root, store: configStore}
}

func doJSON(t *testing.T, fn http.HandlerFunc, method, target string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, target, reader)
	rec := httptest.NewRecorder()
	fn(rec, req)
	return rec
}

func TestHandleStatusIdle(t *testing.T) {
	f := newFixture(t)

	rec := doJSON(t, f.handler.HandleStatus, http.MethodGet, "/api/stream/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var status models.StreamStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	require.False(t, status.Running)
	require.Zero(t, status.Restarts)
}

func TestHandleStartWithStoredSettings(t *testing.T) {
	f := newFixture(t)

	rec := doJSON(t, f.handler.HandleStart, http.MethodPost, "/api/stream/start", nil)
	require.Equal(t, http.StatusAccepted, rec.Code)

	// The settings that launched the stream are persisted.
	persisted, found, err := store.LoadSettings(context.Background(), f.store)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "music", persisted.Category)

	doJSON(t, f.handler.HandleStop, http.MethodPost, "/api/stream/stop", nil)
}

func TestHandleStartSingleFile(t *testing.T) {
	f := newFixture(t)

	settings := testSettings()
	settings.VideoOrURL = "music/a.mp4"
	rec := doJSON(t, f.handler.HandleStart, http.MethodPost, "/api/stream/start", settings)
	require.Equal(t, http.StatusAccepted, rec.Code)

	doJSON(t, f.handler.HandleStop, http.MethodPost, "/api/stream/stop", nil)
}

func TestHandleStartRejectsBadInput(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name   string
		mutate func(*models.StreamSettings)
	}{
		{name: "bad bitrate", mutate: func(s *models.StreamSettings) { s.Bitrate = "fast" }},
		{name: "bad encoder", mutate: func(s *models.StreamSettings) { s.Encoder = "copy" }},
		{name: "bad input type", mutate: func(s *models.StreamSettings) { s.InputType = "pipe" }},
		{name: "traversal", mutate: func(s *models.StreamSettings) { s.VideoOrURL = "../../etc/passwd.mp4" }},
		{name: "unknown category", mutate: func(s *models.StreamSettings) { s.Category = "missing" }},
		{name: "url without target", mutate: func(s *models.StreamSettings) {
			s.InputType = models.InputURL
			s.VideoOrURL = ""
		}},
		{name: "bad destination", mutate: func(s *models.StreamSettings) {
			s.Destinations[0].BaseURL = "http://example.com/app"
		}},
		{name: "no eligible destination", mutate: func(s *models.StreamSettings) {
			s.Destinations[0].StreamKey = ""
		}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			settings := testSettings()
			tc.mutate(&settings)
			rec := doJSON(t, f.handler.HandleStart, http.MethodPost, "/api/stream/start", settings)
			require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
			require.Contains(t, rec.Body.String(), "error")
			require.False(t, f.handler.Supervisor.Running())
		})
	}
}

func TestHandleStartHardwareUnavailable(t *testing.T) {
	f := newFixture(t)
	f.handler.Commands.NVENCDevice = filepath.Join(t.TempDir(), "missing-device")

	settings := testSettings()
	settings.Encoder = "h264_nvenc"
	rec := doJSON(t, f.handler.HandleStart, http.MethodPost, "/api/stream/start", settings)
	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestHandleStartRejectsUnknownFields(t *testing.T) {
	f := newFixture(t)

	rec := doJSON(t, f.handler.HandleStart, http.MethodPost, "/api/stream/start", map[string]interface{}{
		"bitrate": "4500k",
		"volume":  11,
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleStopIdleIsNoop(t *testing.T) {
	f := newFixture(t)

	rec := doJSON(t, f.handler.HandleStop, http.MethodPost, "/api/stream/stop", nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestHandleLogs(t *testing.T) {
	f := newFixture(t)
	for _, line := range []string{"frame=1", "frame=2", "frame=3"} {
		f.handler.Supervisor.Logs().Append(line)
	}

	rec := doJSON(t, f.handler.HandleLogs, http.MethodGet, "/api/stream/logs?tail=2", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var payload struct {
		Lines []string `json:"lines"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	require.Equal(t, []string{"frame=2", "frame=3"}, payload.Lines)

	rec = doJSON(t, f.handler.HandleLogs, http.MethodGet, "/api/stream/logs?tail=zero", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleCategories(t *testing.T) {
	f := newFixture(t)

	rec := doJSON(t, f.handler.HandleCategories, http.MethodGet, "/api/library/categories", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var payload struct {
		Categories []categorySummary `json:"categories"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	require.Equal(t, []categorySummary{
		{Name: "music", Files: 2},
		{Name: "talks", Files: 1},
	}, payload.Categories)
}

func TestHandleRescan(t *testing.T) {
	f := newFixture(t)

	path := filepath.Join(f.root, "music", "c.mp4")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	rec := doJSON(t, f.handler.HandleRescan, http.MethodPost, "/api/library/rescan", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"files":3`)
}

func TestHandleConfigRoundTrip(t *testing.T) {
	f := newFixture(t)

	rec := doJSON(t, f.handler.HandleGetConfig, http.MethodGet, "/api/config", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	updated := testSettings()
	updated.Bitrate = "6000k"
	updated.Destinations = append(updated.Destinations, models.Destination{
		DisplayName: "Backup",
		BaseURL:     "srt://backup.example.com:9000",
		StreamKey:   "backup-key",
		Enabled:     true,
	})

	rec = doJSON(t, f.handler.HandlePutConfig, http.MethodPut, "/api/config", updated)
	require.Equal(t, http.StatusOK, rec.Code)

	var saved models.StreamSettings
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &saved))
	require.Equal(t, "6000k", saved.Bitrate)
	require.Len(t, saved.Destinations, 2)
	// A destination without an ID gets one assigned.
	require.NotEmpty(t, saved.Destinations[1].ID)

	persisted, found, err := store.LoadSettings(context.Background(), f.store)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, saved, persisted)
}

func TestHandlePutConfigRejectsBadDestination(t *testing.T) {
	f := newFixture(t)

	bad := testSettings()
	bad.Destinations[0].BaseURL = "ftp://example.com"
	rec := doJSON(t, f.handler.HandlePutConfig, http.MethodPut, "/api/config", bad)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	// The rejected settings were not applied.
	require.Equal(t, "rtmp://live.example.com/app", f.handler.Settings().Destinations[0].BaseURL)
}
