package api

import (
	"net/http"
)

// HealthResponse represents the health check response
type HealthResponse struct {
	Status     string `json:"status"`
	App        string `json:"app"`
	Version    string `json:"version"`
	ActiveJobs int    `json:"active_jobs"`
}

// ReadyResponse represents the readiness check response
type ReadyResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// healthHandler implements GET /health and its /api alias.
// This is a simple liveness check - returns 200 if the process is alive.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	active := 0
	if s.deps.ActiveJobs != nil {
		active = s.deps.ActiveJobs()
	}

	writeJSON(w, http.StatusOK, HealthResponse{
		Status:     "ok",
		App:        s.deps.AppName,
		Version:    s.deps.Version,
		ActiveJobs: active,
	})
}

// readyHandler implements GET /api/ready.
// This checks if the service is ready to accept traffic: both stores must
// answer a ping.
func (s *Server) readyHandler(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string)
	ready := true

	if s.deps.WikiStore != nil {
		if err := s.deps.WikiStore.Ping(r.Context()); err != nil {
			checks["wiki_store"] = err.Error()
			ready = false
		} else {
			checks["wiki_store"] = "ok"
		}
	} else {
		checks["wiki_store"] = "not initialized"
		ready = false
	}

	if s.deps.RepoStore != nil {
		if err := s.deps.RepoStore.Ping(r.Context()); err != nil {
			checks["repo_store"] = err.Error()
			ready = false
		} else {
			checks["repo_store"] = "ok"
		}
	} else {
		checks["repo_store"] = "not initialized"
		ready = false
	}

	status := http.StatusOK
	state := "ready"
	if !ready {
		status = http.StatusServiceUnavailable
		state = "not ready"
	}

	writeJSON(w, status, ReadyResponse{Status: state, Checks: checks})
}
