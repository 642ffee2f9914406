package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/mfranzen/storyforge/internal/model"
	"github.com/mfranzen/storyforge/internal/registry"
)

// streamHeartbeat is how often an SSE comment keeps an otherwise idle
// connection alive through proxies.
const streamHeartbeat = 15 * time.Second

// JobHandler serves job admission, inspection, cancellation and the live
// status stream.
type JobHandler struct {
	registry       *registry.Registry
	streamInterval time.Duration
}

// NewJobHandler creates a job handler.
func NewJobHandler(reg *registry.Registry, streamInterval time.Duration) *JobHandler {
	if streamInterval <= 0 {
		streamInterval = 3 * time.Second
	}
	return &JobHandler{registry: reg, streamInterval: streamInterval}
}

// Create handles POST /jobs: validates a generate request and admits it.
// Validation failures never create a job.
func (h *JobHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req model.GenerateRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	id := h.registry.Enqueue(model.NewGeneratePayload(&req))
	writeJSON(w, http.StatusOK, map[string]string{"id": id})
}

// Ingest handles POST /ingest: validates an ingest request and admits it.
func (h *JobHandler) Ingest(w http.ResponseWriter, r *http.Request) {
	var req model.IngestRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	id := h.registry.Enqueue(model.NewIngestPayload(&req))
	writeJSON(w, http.StatusOK, map[string]string{"id": id})
}

// List handles GET /jobs: all jobs annotated with payload-derived fields,
// plus scheduler occupancy.
func (h *JobHandler) List(w http.ResponseWriter, r *http.Request) {
	jobs, stats := h.registry.List()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":           jobs,
		"running":        stats.Running,
		"queued":         stats.Queued,
		"maxConcurrency": stats.MaxConcurrency,
	})
}

// Get handles GET /jobs/{id}.
func (h *JobHandler) Get(w http.ResponseWriter, r *http.Request, id string) {
	job, ok := h.registry.Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, "Job not found")
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// Cancel handles DELETE /jobs/{id}.
func (h *JobHandler) Cancel(w http.ResponseWriter, r *http.Request, id string) {
	if !h.registry.Cancel(id) {
		writeError(w, http.StatusNotFound, "Job not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// Stream handles GET /jobs/{id}/stream: emits the current job state as an
// SSE event immediately, then on every tick while the job is non-terminal.
// The first terminal emission ends the stream. Client disconnects stop the
// ticker via the request context.
func (h *JobHandler) Stream(w http.ResponseWriter, r *http.Request, id string) {
	job, ok := h.registry.Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, "Job not found")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "Streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	send := func(j model.Job) {
		data, err := json.Marshal(j)
		if err != nil {
			return
		}
		fmt.Fprintf(w, "data: %s\n\n", data)
		flusher.Flush()
	}

	send(job)
	if job.Status.Terminal() {
		return
	}

	ticker := time.NewTicker(h.streamInterval)
	defer ticker.Stop()
	heartbeat := time.NewTicker(streamHeartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			fmt.Fprint(w, ": heartbeat\n\n")
			flusher.Flush()
		case <-ticker.C:
			job, ok := h.registry.Get(id)
			if !ok {
				return
			}
			send(job)
			if job.Status.Terminal() {
				return
			}
		}
	}
}
