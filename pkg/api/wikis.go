package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/falconlabs/falcon/pkg/types"
)

// createWikiRequest is the body of POST /api/wikis.
type createWikiRequest struct {
	GitHubURL string `json:"github_url"`
	Branch    string `json:"branch"`
}

// chatMessageRequest is the body of POST /api/wikis/{id}/chat.
type chatMessageRequest struct {
	Message        string `json:"message"`
	ConversationID string `json:"conversation_id"`
}

// wikiResponse is the public projection of a wiki record. Internal fields
// such as the storage path and the analysis plan never leave the server.
type wikiResponse struct {
	WikiID         string           `json:"wiki_id"`
	Owner          string           `json:"owner"`
	Repo           string           `json:"repo"`
	GitHubURL      string           `json:"github_url"`
	Branch         string           `json:"branch"`
	CommitSHA      string           `json:"commit_sha,omitempty"`
	Status         types.WikiStatus `json:"status"`
	TotalPages     int              `json:"total_pages"`
	CompletedPages int              `json:"completed_pages"`
	CreatedAt      time.Time        `json:"created_at"`
	CompletedAt    *time.Time       `json:"completed_at,omitempty"`
}

func toWikiResponse(w *types.Wiki) wikiResponse {
	return wikiResponse{
		WikiID:         w.ID,
		Owner:          w.Owner,
		Repo:           w.Repo,
		GitHubURL:      w.URL,
		Branch:         w.Branch,
		CommitSHA:      w.CommitSHA,
		Status:         w.Status,
		TotalPages:     w.TotalPages,
		CompletedPages: w.CompletedPages,
		CreatedAt:      w.CreatedAt,
		CompletedAt:    w.CompletedAt,
	}
}

// pageSummary is one entry in the page listing.
type pageSummary struct {
	Slug    string `json:"slug"`
	Title   string `json:"title"`
	Section string `json:"section"`
	Order   int    `json:"order"`
	Summary string `json:"summary,omitempty"`
}

// conversationMessage is one transcript entry in the conversation listing.
type conversationMessage struct {
	ID           string     `json:"id"`
	Role         types.Role `json:"role"`
	Content      string     `json:"content"`
	ContextPages []string   `json:"context_pages,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

func (s *Server) createWiki(w http.ResponseWriter, r *http.Request) {
	var req createWikiRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.GitHubURL == "" {
		writeError(w, http.StatusBadRequest, "github_url is required")
		return
	}

	wiki, err := s.deps.Wikis.Create(r.Context(), req.GitHubURL, req.Branch)
	if err != nil {
		if errors.Is(err, types.ErrInvalidInput) {
			writeError(w, http.StatusBadRequest, "Invalid GitHub URL")
			return
		}
		s.respondError(w, err, "")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"wiki_id": wiki.ID,
		"status":  wiki.Status,
	})
}

func (s *Server) findWikis(w http.ResponseWriter, r *http.Request) {
	owner := r.URL.Query().Get("owner")
	repo := r.URL.Query().Get("repo")

	wikis, err := s.deps.Wikis.Find(r.Context(), owner, repo)
	if err != nil {
		s.respondError(w, err, "")
		return
	}

	out := make([]wikiResponse, 0, len(wikis))
	for _, wiki := range wikis {
		out = append(out, toWikiResponse(wiki))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) getWiki(w http.ResponseWriter, r *http.Request) {
	wiki, err := s.deps.Wikis.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.respondError(w, err, "Wiki not found")
		return
	}
	writeJSON(w, http.StatusOK, toWikiResponse(wiki))
}

func (s *Server) wikiStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.deps.Wikis.Status(r.Context(), r.PathValue("id"))
	if err != nil {
		s.respondError(w, err, "Wiki not found")
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) wikiManifest(w http.ResponseWriter, r *http.Request) {
	manifest, err := s.deps.Wikis.Manifest(r.Context(), r.PathValue("id"))
	if err != nil {
		s.respondError(w, err, "Manifest not found")
		return
	}

	// The manifest is served verbatim from disk, not re-marshalled.
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(manifest)
}

func (s *Server) listWikiPages(w http.ResponseWriter, r *http.Request) {
	pages, err := s.deps.Wikis.Pages(r.Context(), r.PathValue("id"))
	if err != nil {
		s.respondError(w, err, "Wiki not found")
		return
	}

	out := make([]pageSummary, 0, len(pages))
	for _, p := range pages {
		out = append(out, pageSummary{
			Slug:    p.Slug,
			Title:   p.Title,
			Section: p.Section,
			Order:   p.SortOrder,
			Summary: p.Summary,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) getWikiPage(w http.ResponseWriter, r *http.Request) {
	// Slugs contain slashes ("architecture/overview"), so the route uses a
	// trailing wildcard.
	page, err := s.deps.Wikis.Page(r.Context(), r.PathValue("id"), r.PathValue("slug"))
	if err != nil {
		s.respondError(w, err, "Page not found")
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (s *Server) deleteWiki(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Wikis.Delete(r.Context(), r.PathValue("id")); err != nil {
		s.respondError(w, err, "")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// wikiEvents streams generation progress for one wiki. The stream closes
// after a terminal complete or error event, or when the client disconnects.
func (s *Server) wikiEvents(w http.ResponseWriter, r *http.Request) {
	wikiID := r.PathValue("id")

	sub := s.deps.Bus.Subscribe(wikiID)
	defer s.deps.Bus.Unsubscribe(wikiID, sub)

	stream, err := newSSEWriter(w)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Streaming unsupported")
		return
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case event, ok := <-sub:
			if !ok {
				// Bus shut down.
				return
			}
			if err := stream.Send(string(event.Type), event.Data); err != nil {
				return
			}
			if event.Type == types.EventComplete || event.Type == types.EventError {
				return
			}
		}
	}
}

// wikiChat streams the Q&A exchange for one user message.
func (s *Server) wikiChat(w http.ResponseWriter, r *http.Request) {
	var req chatMessageRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Message == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}

	frames := s.deps.Chat.HandleMessage(r.Context(), r.PathValue("id"), req.Message, req.ConversationID)

	stream, err := newSSEWriter(w)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Streaming unsupported")
		return
	}

	for frame := range frames {
		if err := stream.Send(frame.Type, frame.Data); err != nil {
			// Client went away; drain so the service goroutine can finish.
			for range frames {
			}
			return
		}
	}
}

func (s *Server) getConversation(w http.ResponseWriter, r *http.Request) {
	messages, err := s.deps.Chat.Conversation(r.Context(), r.PathValue("id"), r.PathValue("conversation"))
	if err != nil {
		s.respondError(w, err, "Conversation not found")
		return
	}

	out := make([]conversationMessage, 0, len(messages))
	for _, m := range messages {
		out = append(out, conversationMessage{
			ID:           m.ID,
			Role:         m.Role,
			Content:      m.Content,
			ContextPages: m.ContextPages,
			CreatedAt:    m.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, out)
}
