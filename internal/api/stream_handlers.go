package api

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"relaycast/internal/ffmpeg"
	"relaycast/internal/media"
	"relaycast/internal/models"
	"relaycast/internal/stream"
)

// HandleStart builds a run plan from the current settings (optionally
// overridden by a JSON body) and launches the stream. The settings that
// produced a successful start become the persisted settings.
func (h *Handler) HandleStart(w http.ResponseWriter, r *http.Request) {
	settings := h.Settings()
	if r.Body != nil && r.ContentLength != 0 {
		if err := decodeJSON(r, &settings); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
	}
	if err := normalizeSettings(&settings); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	plan, err := h.buildPlan(settings)
	if err != nil {
		writeError(w, errorStatus(err), err)
		return
	}
	if err := h.Supervisor.Start(plan); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	h.replaceSettings(r.Context(), settings)

	writeJSON(w, http.StatusAccepted, h.Supervisor.State().Snapshot())
}

// HandleStop terminates the running stream and returns once the supervisor
// has fully wound down. Stopping an idle stream succeeds.
func (h *Handler) HandleStop(w http.ResponseWriter, r *http.Request) {
	h.Supervisor.Stop()
	writeJSON(w, http.StatusOK, h.Supervisor.State().Snapshot())
}

// HandleStatus reports the current run state.
func (h *Handler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Supervisor.State().Snapshot())
}

// HandleLogs returns the most recent encoder output lines. The tail query
// parameter bounds the count; it defaults to 100.
func (h *Handler) HandleLogs(w http.ResponseWriter, r *http.Request) {
	tail := 100
	if raw := r.URL.Query().Get("tail"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			writeError(w, http.StatusBadRequest, &media.ValidationError{Field: "tail", Reason: "must be a positive integer"})
			return
		}
		tail = parsed
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"lines": h.Supervisor.Logs().Tail(tail),
	})
}

// buildPlan resolves the input, materializes a playlist manifest when the
// input is a category, and produces the encoder argument vector.
func (h *Handler) buildPlan(settings models.StreamSettings) (stream.Plan, error) {
	var (
		input      ffmpeg.InputSpec
		mediaLabel string
		generation uint64
	)

	switch settings.InputType {
	case models.InputURL:
		target := strings.TrimSpace(settings.VideoOrURL)
		if target == "" {
			return stream.Plan{}, &media.ValidationError{Field: "videoOrUrl", Reason: "a source URL is required"}
		}
		input = ffmpeg.InputSpec{Kind: ffmpeg.InputRemoteURL, Path: target}
		mediaLabel = target

	case models.InputFile:
		// A named file wins over the category; an empty file name means
		// play the whole category as a playlist.
		if name := strings.TrimSpace(settings.VideoOrURL); name != "" {
			if err := media.ValidateFilename(name); err != nil {
				return stream.Plan{}, err
			}
			resolved, err := h.Library.Resolve(name)
			if err != nil {
				return stream.Plan{}, err
			}
			input = ffmpeg.InputSpec{Kind: ffmpeg.InputMediaFile, Path: resolved}
			mediaLabel = name
		} else {
			files, err := h.Library.Enumerate(settings.Category)
			if err != nil {
				return stream.Plan{}, err
			}
			resolved := make([]string, 0, len(files))
			for _, rel := range files {
				abs, err := h.Library.Resolve(rel)
				if err != nil {
					return stream.Plan{}, err
				}
				resolved = append(resolved, abs)
			}
			manifest, err := h.Playlists.Build(resolved, settings.Shuffle, 1)
			if err != nil {
				return stream.Plan{}, err
			}
			input = ffmpeg.InputSpec{Kind: ffmpeg.InputConcatManifest, Path: manifest.Path}
			generation = manifest.Generation
			category := settings.Category
			if category == "" {
				category = media.DefaultCategory
			}
			mediaLabel = fmt.Sprintf("category %q (%d entries)", category, len(manifest.Entries))
		}
	}

	args, err := h.Commands.Build(ffmpeg.BuildRequest{
		Encoder:      settings.Encoder,
		Preset:       settings.Preset,
		Bitrate:      settings.Bitrate,
		Input:        input,
		Destinations: settings.Destinations,
	})
	if err != nil {
		return stream.Plan{}, err
	}

	return stream.Plan{
		Args:         args,
		Media:        mediaLabel,
		LoopForever:  settings.LoopForever,
		Generation:   generation,
		Destinations: len(settings.EligibleDestinations()),
	}, nil
}
