package handler

import (
	"errors"
	"net/http"

	"github.com/mfranzen/storyforge/internal/storage"
)

// ProjectHandler serves the persisted artifact tree: listing, raw reads and
// deletion. Pure pass-through to the storage adapter.
type ProjectHandler struct {
	store *storage.Store
}

// NewProjectHandler creates a project handler.
func NewProjectHandler(store *storage.Store) *ProjectHandler {
	return &ProjectHandler{store: store}
}

// List handles GET /projects.
func (h *ProjectHandler) List(w http.ResponseWriter, r *http.Request) {
	tree, err := h.store.ListTree()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list projects: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, tree)
}

// Read handles GET /project?category=&file=. The artifact is returned as
// its raw persisted JSON.
func (h *ProjectHandler) Read(w http.ResponseWriter, r *http.Request) {
	category := r.URL.Query().Get("category")
	file := r.URL.Query().Get("file")
	if category == "" || file == "" {
		writeError(w, http.StatusBadRequest, "Query parameters category and file are required")
		return
	}

	raw, err := h.store.Read(category, file)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Project file not found")
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(raw)
}

// Delete handles DELETE /project?category=&file=.
func (h *ProjectHandler) Delete(w http.ResponseWriter, r *http.Request) {
	category := r.URL.Query().Get("category")
	file := r.URL.Query().Get("file")
	if category == "" || file == "" {
		writeError(w, http.StatusBadRequest, "Query parameters category and file are required")
		return
	}

	if err := h.store.Delete(category, file); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Project file not found")
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}
