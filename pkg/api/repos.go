package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/falconlabs/falcon/pkg/agent"
	"github.com/falconlabs/falcon/pkg/ingest"
	"github.com/falconlabs/falcon/pkg/types"
)

// ingestRequest is the body of POST /repos.
type ingestRequest struct {
	URL string `json:"url"`
}

// repoChatRequest is the body of POST /repos/{id}/chat.
type repoChatRequest struct {
	Question string                 `json:"question"`
	History  []agent.HistoryMessage `json:"history"`
}

func (s *Server) createRepo(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.URL == "" {
		writeError(w, http.StatusBadRequest, "url is required")
		return
	}

	result, err := s.deps.Ingestor.Ingest(r.Context(), req.URL)
	if err != nil {
		var cloneErr *ingest.CloneError
		switch {
		case errors.As(err, &cloneErr):
			// git clone failed (bad URL, private repo, network error)
			writeError(w, http.StatusBadRequest, cloneErr.Error())
		case errors.Is(err, types.ErrConflict):
			writeError(w, http.StatusConflict, err.Error())
		default:
			s.respondError(w, err, "")
		}
		return
	}

	resp := map[string]any{
		"repo_id": result.RepoID,
		"status":  result.Status,
	}
	if result.FileCount > 0 {
		resp["file_count"] = result.FileCount
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (s *Server) listRepos(w http.ResponseWriter, r *http.Request) {
	repos, err := s.deps.RepoStore.ListRepos(r.Context())
	if err != nil {
		s.respondError(w, err, "")
		return
	}
	if repos == nil {
		repos = []*types.Repo{}
	}
	writeJSON(w, http.StatusOK, repos)
}

func (s *Server) getRepo(w http.ResponseWriter, r *http.Request) {
	repo, err := s.deps.RepoStore.GetRepo(r.Context(), r.PathValue("id"))
	if err != nil {
		s.respondError(w, err, "Repo not found")
		return
	}
	writeJSON(w, http.StatusOK, repo)
}

func (s *Server) deleteRepo(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.RepoStore.DeleteRepo(r.Context(), r.PathValue("id")); err != nil {
		s.respondError(w, err, "Repo not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// repoChat streams an agentic exploration of the repo: tool calls the
// model makes, text deltas of its answer, and a final done event.
func (s *Server) repoChat(w http.ResponseWriter, r *http.Request) {
	repoID := r.PathValue("id")

	repo, err := s.deps.RepoStore.GetRepo(r.Context(), repoID)
	if err != nil {
		s.respondError(w, err, "Repo not found")
		return
	}
	if repo.Status != types.RepoStatusReady {
		writeError(w, http.StatusConflict,
			fmt.Sprintf("Repo is not ready (status: %s). Wait for ingestion to complete.", repo.Status))
		return
	}

	var req repoChatRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Question == "" {
		writeError(w, http.StatusBadRequest, "question is required")
		return
	}

	events := s.deps.Agent.Run(r.Context(), repoID, req.Question, req.History)

	stream, err := newSSEWriter(w)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Streaming unsupported")
		return
	}

	for event := range events {
		if err := stream.Send(event.Type, event); err != nil {
			for range events {
			}
			return
		}
	}
}
