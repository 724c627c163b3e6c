package api

import (
	"net/http"

	"relaycast/internal/models"
)

// HandleGetConfig returns the current panel settings.
func (h *Handler) HandleGetConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Settings())
}

// HandlePutConfig replaces the panel settings. The new settings are
// validated and persisted but do not affect an already running stream; they
// take effect on the next start.
func (h *Handler) HandlePutConfig(w http.ResponseWriter, r *http.Request) {
	var settings models.StreamSettings
	if err := decodeJSON(r, &settings); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := normalizeSettings(&settings); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	h.replaceSettings(r.Context(), settings)
	writeJSON(w, http.StatusOK, h.Settings())
}
