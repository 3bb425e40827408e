package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// requestTimeout bounds every unary call. Streaming calls take their
// lifetime from the caller's context instead.
const requestTimeout = 10 * time.Second

// Client wraps the Falcon HTTP API for easy CLI and programmatic usage.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a new Falcon client for the server at baseURL,
// e.g. "http://localhost:8000".
func NewClient(baseURL string) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid server URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid server URL %q: scheme must be http or https", baseURL)
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{},
	}, nil
}

// APIError is a non-2xx response from the server.
type APIError struct {
	Status int
	Detail string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s (HTTP %d)", e.Detail, e.Status)
}

// Wiki is a wiki record as returned by the server.
type Wiki struct {
	WikiID         string     `json:"wiki_id"`
	Owner          string     `json:"owner"`
	Repo           string     `json:"repo"`
	GitHubURL      string     `json:"github_url"`
	Branch         string     `json:"branch"`
	CommitSHA      string     `json:"commit_sha,omitempty"`
	Status         string     `json:"status"`
	TotalPages     int        `json:"total_pages"`
	CompletedPages int        `json:"completed_pages"`
	CreatedAt      time.Time  `json:"created_at"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
}

// WikiStatus reports a wiki's generation phase and page progress.
type WikiStatus struct {
	Status    string     `json:"status"`
	Progress  *Progress  `json:"progress,omitempty"`
	StartedAt *time.Time `json:"started_at,omitempty"`
}

// Progress is the page-generation counter, present once the plan is known.
type Progress struct {
	Completed int `json:"completed"`
	Total     int `json:"total"`
}

// PageSummary is one entry in a wiki's page listing.
type PageSummary struct {
	Slug    string `json:"slug"`
	Title   string `json:"title"`
	Section string `json:"section"`
	Order   int    `json:"order"`
	Summary string `json:"summary,omitempty"`
}

// Page is a rendered wiki page: parsed frontmatter plus the markdown body.
type Page struct {
	Slug        string         `json:"slug"`
	Title       string         `json:"title"`
	Section     string         `json:"section"`
	ContentMD   string         `json:"content_md"`
	Frontmatter map[string]any `json:"frontmatter"`
}

// ConversationMessage is one transcript entry of a wiki conversation.
type ConversationMessage struct {
	ID           string    `json:"id"`
	Role         string    `json:"role"`
	Content      string    `json:"content"`
	ContextPages []string  `json:"context_pages,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// Repo is an ingested repository as returned by the server.
type Repo struct {
	RepoID     string    `json:"repo_id"`
	URL        string    `json:"url"`
	Name       string    `json:"name"`
	Status     string    `json:"status"`
	IngestedAt time.Time `json:"ingested_at"`
	FileCount  int       `json:"file_count,omitempty"`
}

// CreateWikiResult acknowledges a new wiki request.
type CreateWikiResult struct {
	WikiID string `json:"wiki_id"`
	Status string `json:"status"`
}

// IngestResult acknowledges a repo ingestion.
type IngestResult struct {
	RepoID    string `json:"repo_id"`
	Status    string `json:"status"`
	FileCount int    `json:"file_count,omitempty"`
}

// Health is the server health report.
type Health struct {
	Status     string `json:"status"`
	App        string `json:"app"`
	Version    string `json:"version"`
	ActiveJobs int    `json:"active_jobs"`
}

// HistoryMessage is one prior turn passed along with a repo chat question.
type HistoryMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CreateWiki enqueues wiki generation for a GitHub repository. An empty
// branch means the repository's default branch.
func (c *Client) CreateWiki(githubURL, branch string) (*CreateWikiResult, error) {
	req := map[string]string{"github_url": githubURL}
	if branch != "" {
		req["branch"] = branch
	}
	var out CreateWikiResult
	if err := c.unary(http.MethodPost, "/api/wikis", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListWikis lists wikis, optionally filtered by owner and repo.
func (c *Client) ListWikis(owner, repo string) ([]*Wiki, error) {
	q := url.Values{}
	if owner != "" {
		q.Set("owner", owner)
	}
	if repo != "" {
		q.Set("repo", repo)
	}
	path := "/api/wikis"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var out []*Wiki
	if err := c.unary(http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetWiki returns one wiki by ID.
func (c *Client) GetWiki(id string) (*Wiki, error) {
	var out Wiki
	if err := c.unary(http.MethodGet, "/api/wikis/"+id, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetWikiStatus returns the generation phase and page progress of a wiki.
func (c *Client) GetWikiStatus(id string) (*WikiStatus, error) {
	var out WikiStatus
	if err := c.unary(http.MethodGet, "/api/wikis/"+id+"/status", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetManifest returns the raw manifest JSON of a completed wiki.
func (c *Client) GetManifest(id string) (json.RawMessage, error) {
	var out json.RawMessage
	if err := c.unary(http.MethodGet, "/api/wikis/"+id+"/manifest", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ListPages returns the page index of a wiki in reading order.
func (c *Client) ListPages(id string) ([]*PageSummary, error) {
	var out []*PageSummary
	if err := c.unary(http.MethodGet, "/api/wikis/"+id+"/pages", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetPage returns one rendered page. Slugs may contain slashes,
// e.g. "architecture/overview".
func (c *Client) GetPage(id, slug string) (*Page, error) {
	var out Page
	if err := c.unary(http.MethodGet, "/api/wikis/"+id+"/pages/"+slug, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteWiki removes a wiki and all of its pages, jobs, and conversations.
func (c *Client) DeleteWiki(id string) error {
	return c.unary(http.MethodDelete, "/api/wikis/"+id, nil, nil)
}

// GetConversation returns the transcript of a wiki chat conversation.
func (c *Client) GetConversation(wikiID, conversationID string) ([]*ConversationMessage, error) {
	var out []*ConversationMessage
	if err := c.unary(http.MethodGet, "/api/wikis/"+wikiID+"/chat/"+conversationID, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// IngestRepo clones a git repository into the virtual filesystem so the
// exploration agent can answer questions about it. The server ingests
// synchronously, so this call allows several minutes for large repos.
func (c *Client) IngestRepo(repoURL string) (*IngestResult, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	var out IngestResult
	if err := c.do(ctx, http.MethodPost, "/repos", map[string]string{"url": repoURL}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListRepos lists all ingested repositories.
func (c *Client) ListRepos() ([]*Repo, error) {
	var out []*Repo
	if err := c.unary(http.MethodGet, "/repos", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetRepo returns one ingested repository by ID.
func (c *Client) GetRepo(id string) (*Repo, error) {
	var out Repo
	if err := c.unary(http.MethodGet, "/repos/"+id, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteRepo removes an ingested repository and its files.
func (c *Client) DeleteRepo(id string) error {
	return c.unary(http.MethodDelete, "/repos/"+id, nil, nil)
}

// GetHealth returns the server health report.
func (c *Client) GetHealth() (*Health, error) {
	var out Health
	if err := c.unary(http.MethodGet, "/api/health", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// unary issues one request/response call with the default timeout.
func (c *Client) unary(method, path string, body, out any) error {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	return c.do(ctx, method, path, body, out)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	resp, err := c.send(ctx, method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return apiError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	// Raw endpoints (the manifest) are passed through without re-decoding.
	if raw, ok := out.(*json.RawMessage); ok {
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		*raw = data
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) send(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.http.Do(req)
}

// apiError decodes the server's {"detail": ...} error body.
func apiError(resp *http.Response) error {
	var body struct {
		Detail string `json:"detail"`
	}
	detail := http.StatusText(resp.StatusCode)
	if err := json.NewDecoder(resp.Body).Decode(&body); err == nil && body.Detail != "" {
		detail = body.Detail
	}
	return &APIError{Status: resp.StatusCode, Detail: detail}
}
