package handler

import (
	"net/http"
	"strings"

	"github.com/mfranzen/storyforge/pkg/middleware"
)

// Router handles HTTP routing
type Router struct {
	jobHandler     *JobHandler
	projectHandler *ProjectHandler
	topicHandler   *TopicHandler
	healthHandler  *HealthHandler
	metricsHandler http.Handler
	corsConfig     middleware.CORSConfig
}

// NewRouter creates a new router
func NewRouter(
	jobHandler *JobHandler,
	projectHandler *ProjectHandler,
	topicHandler *TopicHandler,
	healthHandler *HealthHandler,
	metricsHandler http.Handler,
	corsConfig middleware.CORSConfig,
) *Router {
	return &Router{
		jobHandler:     jobHandler,
		projectHandler: projectHandler,
		topicHandler:   topicHandler,
		healthHandler:  healthHandler,
		metricsHandler: metricsHandler,
		corsConfig:     corsConfig,
	}
}

// Handler returns the configured HTTP handler with middleware
func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", rt.healthHandler.Health)
	mux.Handle("/metrics", rt.metricsHandler)

	mux.HandleFunc("/jobs", rt.handleJobs)
	mux.HandleFunc("/jobs/", rt.handleJobsWithID)
	mux.HandleFunc("/ingest", rt.handleIngest)

	mux.HandleFunc("/projects", rt.handleProjects)
	mux.HandleFunc("/project", rt.handleProject)

	mux.HandleFunc("/topics/next", rt.handleTopicsNext)
	mux.HandleFunc("/topics/reset", rt.handleTopicsReset)

	// Apply middleware (CORS first to handle preflight requests)
	handler := middleware.CORS(rt.corsConfig)(mux)
	handler = middleware.Recovery(handler)
	handler = middleware.Logging(handler)
	handler = middleware.CorrelationID(handler)

	return handler
}

// handleJobs routes the job collection endpoints
func (rt *Router) handleJobs(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		rt.jobHandler.List(w, r)
	case http.MethodPost:
		rt.jobHandler.Create(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

// handleJobsWithID routes individual job endpoints, including the SSE
// status stream at /jobs/{id}/stream.
func (rt *Router) handleJobsWithID(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/jobs/")

	if id, ok := strings.CutSuffix(path, "/stream"); ok {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
			return
		}
		rt.jobHandler.Stream(w, r, id)
		return
	}

	if path == "" || strings.Contains(path, "/") {
		writeError(w, http.StatusNotFound, "Endpoint not found")
		return
	}

	switch r.Method {
	case http.MethodGet:
		rt.jobHandler.Get(w, r, path)
	case http.MethodDelete:
		rt.jobHandler.Cancel(w, r, path)
	default:
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

func (rt *Router) handleIngest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	rt.jobHandler.Ingest(w, r)
}

func (rt *Router) handleProjects(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	rt.projectHandler.List(w, r)
}

func (rt *Router) handleProject(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		rt.projectHandler.Read(w, r)
	case http.MethodDelete:
		rt.projectHandler.Delete(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

func (rt *Router) handleTopicsNext(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	rt.topicHandler.Next(w, r)
}

func (rt *Router) handleTopicsReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	rt.topicHandler.Reset(w, r)
}
