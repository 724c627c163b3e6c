package api

import (
	"net/http"
	"sort"
)

type categorySummary struct {
	Name  string `json:"name"`
	Files int    `json:"files"`
}

func (h *Handler) categorySummaries() []categorySummary {
	counts := h.Library.Categories()
	out := make([]categorySummary, 0, len(counts))
	for name, files := range counts {
		out = append(out, categorySummary{Name: name, Files: files})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// HandleCategories lists the media categories and their playable file counts.
func (h *Handler) HandleCategories(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"categories": h.categorySummaries(),
	})
}

// HandleRescan rebuilds the media index from disk and returns the refreshed
// category listing.
func (h *Handler) HandleRescan(w http.ResponseWriter, r *http.Request) {
	if err := h.Library.Rescan(); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"categories": h.categorySummaries(),
	})
}
