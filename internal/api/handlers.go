package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"

	"github.com/google/uuid"

	"relaycast/internal/ffmpeg"
	"relaycast/internal/media"
	"relaycast/internal/models"
	"relaycast/internal/store"
	"relaycast/internal/stream"
)

// Handler bundles the panel's API endpoints and their dependencies.
type Handler struct {
	Supervisor *stream.Supervisor
	Library    *media.Library
	Playlists  *media.PlaylistBuilder
	Commands   *ffmpeg.Builder
	Store      store.ConfigStore
	Logger     *slog.Logger

	mu       sync.Mutex
	settings models.StreamSettings
}

// NewHandler wires the handler with its collaborators and the initial
// settings (typically restored from the store at startup).
func NewHandler(
	supervisor *stream.Supervisor,
	library *media.Library,
	playlists *media.PlaylistBuilder,
	commands *ffmpeg.Builder,
	configStore store.ConfigStore,
	settings models.StreamSettings,
	logger *slog.Logger,
) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if configStore == nil {
		configStore = store.Noop{}
	}
	return &Handler{
		Supervisor: supervisor,
		Library:    library,
		Playlists:  playlists,
		Commands:   commands,
		Store:      configStore,
		Logger:     logger,
		settings:   settings.Clone(),
	}
}

// Settings returns a copy of the current panel settings.
func (h *Handler) Settings() models.StreamSettings {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.settings.Clone()
}

func (h *Handler) replaceSettings(ctx context.Context, settings models.StreamSettings) {
	h.mu.Lock()
	h.settings = settings.Clone()
	h.mu.Unlock()

	if err := store.SaveSettings(ctx, h.Store, settings); err != nil {
		h.Logger.Warn("persist settings", "error", err)
	}
}

// normalizeSettings validates every field a stream start depends on and
// fills in generated destination IDs. It mutates the passed settings.
func normalizeSettings(settings *models.StreamSettings) error {
	switch settings.InputType {
	case models.InputFile, models.InputURL:
	default:
		return &media.ValidationError{Field: "inputType", Reason: "must be \"file\" or \"url\""}
	}
	if err := media.ValidateBitrate(settings.Bitrate); err != nil {
		return err
	}
	if err := media.ValidateEncoder(settings.Encoder); err != nil {
		return err
	}
	for i := range settings.Destinations {
		dest := &settings.Destinations[i]
		if dest.ID == "" {
			dest.ID = uuid.NewString()
		}
		if err := media.ValidateDestinationURL(dest.BaseURL); err != nil {
			return err
		}
	}
	return nil
}

// errorStatus maps domain errors onto HTTP status codes.
func errorStatus(err error) int {
	var validation *media.ValidationError
	var traversal *media.PathTraversalError
	var empty *media.EmptyPlaylistError
	var hardware *ffmpeg.HardwareUnavailableError
	switch {
	case errors.As(err, &validation), errors.As(err, &traversal), errors.As(err, &empty):
		return http.StatusBadRequest
	case errors.As(err, &hardware):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
