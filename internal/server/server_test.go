package server

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"relaycast/internal/api"
	"relaycast/internal/ffmpeg"
	"relaycast/internal/media"
	"relaycast/internal/models"
	"relaycast/internal/observability/metrics"
	"relaycast/internal/store"
	"relaycast/internal/stream"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestHandler(t *testing.T) *api.Handler {
	t.Helper()
	logger := testLogger()

	root := t.TempDir()
	path := filepath.Join(root, "music", "a.mp4")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	library, err := media.NewLibrary(root, logger)
	require.NoError(t, err)
	tracker := media.NewManifestTracker(logger)
	playlists, err := media.NewPlaylistBuilder(t.TempDir(), tracker, logger)
	require.NoError(t, err)

	supervisor := stream.New(stream.Config{Binary: "true", StallTimeout: 5 * time.Second}, stream.NewState(tracker.Reset), stream.NewLogRing(8), tracker, nil, logger)
	t.Cleanup(supervisor.Close)

	return api.NewHandler(supervisor, library, playlists, ffmpeg.NewBuilder(logger), store.Noop{}, models.StreamSettings{}, logger)
}

func newTestServer(t *testing.T, cfg Config) http.Handler {
	t.Helper()
	cfg.Logger = testLogger()
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.New()
	}
	return New(newTestHandler(t), cfg).HTTPServer().Handler
}

func TestHealthzIsUnauthenticated(t *testing.T) {
	router := newTestServer(t, Config{Token: "sekrit"})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"status":"ok"`)
	require.Contains(t, rec.Body.String(), `"running":false`)
}

func TestMetricsEndpoint(t *testing.T) {
	router := newTestServer(t, Config{Token: "sekrit"})

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "relaycast_stream_up")
}

func TestBearerAuth(t *testing.T) {
	router := newTestServer(t, Config{Token: "sekrit"})

	tests := []struct {
		name   string
		header string
		status int
	}{
		{name: "missing", header: "", status: http.StatusUnauthorized},
		{name: "wrong scheme", header: "Basic sekrit", status: http.StatusUnauthorized},
		{name: "wrong token", header: "Bearer nope", status: http.StatusUnauthorized},
		{name: "correct", header: "Bearer sekrit", status: http.StatusOK},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/stream/status", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)
			require.Equal(t, tc.status, rec.Code)
		})
	}
}

func TestEmptyTokenDisablesAuth(t *testing.T) {
	router := newTestServer(t, Config{})

	req := httptest.NewRequest(http.MethodGet, "/api/stream/status", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestRequestIDHeader(t *testing.T) {
	router := newTestServer(t, Config{})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.NotEmpty(t, rec.Header().Get("X-Request-Id"))

	// A caller-provided ID is echoed back unchanged.
	req = httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-Id", "abc-123")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, "abc-123", rec.Header().Get("X-Request-Id"))
}

func TestSecurityHeaders(t *testing.T) {
	router := newTestServer(t, Config{})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	require.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	require.Equal(t, "no-referrer", rec.Header().Get("Referrer-Policy"))
	require.NotEmpty(t, rec.Header().Get("Content-Security-Policy"))
}

func TestRateLimit(t *testing.T) {
	router := newTestServer(t, Config{RateLimit: 2})

	var last int
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/stream/status", nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		last = rec.Code
	}
	require.Equal(t, http.StatusTooManyRequests, last)

	// Unlimited routes stay reachable.
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}
