package handler

import (
	"net/http"

	"github.com/mfranzen/storyforge/internal/topics"
)

// TopicHandler serves the seed-topic rotation endpoints.
type TopicHandler struct {
	service *topics.Service
}

// NewTopicHandler creates a topic handler.
func NewTopicHandler(service *topics.Service) *TopicHandler {
	return &TopicHandler{service: service}
}

// Next handles GET /topics/next?subject=.
func (h *TopicHandler) Next(w http.ResponseWriter, r *http.Request) {
	pick, err := h.service.Next(r.Context(), r.URL.Query().Get("subject"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to rotate topic: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, pick)
}

// Reset handles DELETE /topics/reset?subject=.
func (h *TopicHandler) Reset(w http.ResponseWriter, r *http.Request) {
	subject, err := h.service.Reset(r.URL.Query().Get("subject"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset topic history: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true, "subject": subject})
}
