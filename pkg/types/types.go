package types

import (
	"encoding/json"
	"time"
)

// Wiki represents one generated (or in-progress) wiki for a repository branch.
type Wiki struct {
	ID             string          `json:"id"`
	Owner          string          `json:"owner"`
	Repo           string          `json:"repo"`
	URL            string          `json:"url"`
	Branch         string          `json:"branch"`
	CommitSHA      string          `json:"commit_sha,omitempty"` // set when cloning completes
	Status         WikiStatus      `json:"status"`
	TotalPages     int             `json:"total_pages"`
	CompletedPages int             `json:"completed_pages"`
	StoragePath    string          `json:"storage_path"`
	AnalysisPlan   json.RawMessage `json:"analysis_plan,omitempty"`
	Languages      json.RawMessage `json:"languages,omitempty"`
	Description    string          `json:"description,omitempty"`
	ErrorMessage   string          `json:"error_message,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	StartedAt      *time.Time      `json:"started_at,omitempty"`
	CompletedAt    *time.Time      `json:"completed_at,omitempty"`
}

// WikiStatus tracks the generation pipeline phase
type WikiStatus string

const (
	WikiStatusQueued     WikiStatus = "queued"
	WikiStatusCloning    WikiStatus = "cloning"
	WikiStatusAnalyzing  WikiStatus = "analyzing"
	WikiStatusGenerating WikiStatus = "generating"
	WikiStatusIndexing   WikiStatus = "indexing"
	WikiStatusCompleted  WikiStatus = "completed"
	WikiStatusFailed     WikiStatus = "failed"
)

// Terminal reports whether the status admits no further transitions.
func (s WikiStatus) Terminal() bool {
	return s == WikiStatusCompleted || s == WikiStatusFailed
}

// Job is one unit of durable queued work. Jobs are created alongside wikis
// and retired by the orchestrator.
type Job struct {
	ID           string     `json:"id"`
	Kind         JobKind    `json:"kind"`
	WikiID       string     `json:"wiki_id"`
	Status       JobStatus  `json:"status"`
	Attempts     int        `json:"attempts"`
	MaxAttempts  int        `json:"max_attempts"`
	Priority     int        `json:"priority"`
	WorkerID     string     `json:"worker_id,omitempty"`
	ErrorMessage string     `json:"error_message,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
}

// JobKind identifies what a job does
type JobKind string

const (
	JobKindWikiGeneration JobKind = "wiki_generation"
)

// JobStatus represents the queue state of a job
type JobStatus string

const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// Conversation groups the chat messages exchanged about one wiki.
type Conversation struct {
	ID        string    `json:"id"`
	WikiID    string    `json:"wiki_id"`
	CreatedAt time.Time `json:"created_at"`
}

// Message is one turn in a conversation. Messages are append-only.
type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	Role           Role      `json:"role"`
	Content        string    `json:"content"`
	ContextPages   []string  `json:"context_pages,omitempty"` // page slugs selected as context
	CreatedAt      time.Time `json:"created_at"`
}

// Role identifies the author of a message
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// WikiPage is one row of the page index, populated from the manifest after
// a successful generation.
type WikiPage struct {
	WikiID    string `json:"wiki_id"`
	Slug      string `json:"slug"`
	Title     string `json:"title"`
	Section   string `json:"section"`
	SortOrder int    `json:"order"`
	Summary   string `json:"summary"`
	FilePath  string `json:"file_path"`
}

// Repo is an ingested repository whose files live in the indexed store.
type Repo struct {
	ID         string     `json:"repo_id"`
	URL        string     `json:"url"`
	Name       string     `json:"name"`
	Status     RepoStatus `json:"status"`
	IngestedAt time.Time  `json:"ingested_at"`
	FileCount  int        `json:"file_count,omitempty"`
}

// RepoStatus tracks ingestion progress
type RepoStatus string

const (
	RepoStatusIngesting RepoStatus = "ingesting"
	RepoStatusReady     RepoStatus = "ready"
	RepoStatusError     RepoStatus = "error"
)

// FileRecord is one row of the virtual filesystem. Directories carry no
// content; files store their full UTF-8 text. Paths are repo-relative with
// forward slashes on every host OS.
type FileRecord struct {
	RepoID      string
	Path        string
	Name        string
	Extension   string // lowercased, with leading dot; "" means none (stored NULL)
	ParentPath  string // "" for entries at the repo root
	Depth       int    // count of path segments
	IsDirectory bool
	Content     string // "" for directories (stored NULL)
}

// Event is an ephemeral progress notification published on the event bus.
// Events are never persisted; late subscribers never see past events.
type Event struct {
	Type EventType      `json:"type"`
	Data map[string]any `json:"data"`
}

// EventType enumerates the bus event kinds
type EventType string

const (
	EventStatusChange EventType = "status_change"
	EventPageComplete EventType = "page_complete"
	EventComplete     EventType = "complete"
	EventError        EventType = "error"
)

// RepoMetadata is what the source-host client returns for owner/repo.
type RepoMetadata struct {
	DefaultBranch    string             `json:"default_branch"`
	LatestCommitSHA  string             `json:"latest_commit_sha"`
	LanguagesPercent map[string]float64 `json:"languages_percent"`
	Description      string             `json:"description"`
	HTMLURL          string             `json:"html_url"`
}

// Sandbox is an ephemeral working directory holding a shallow clone.
type Sandbox struct {
	ID         string
	WorkingDir string
	Kind       SandboxKind
}

// SandboxKind distinguishes local temp dirs from remote provider sandboxes
type SandboxKind string

const (
	SandboxKindLocal  SandboxKind = "local"
	SandboxKindRemote SandboxKind = "remote"
)

// AgentResult captures one external agent invocation.
type AgentResult struct {
	ExitCode     int
	Events       []AgentEvent
	FinalMessage string
	Stderr       string
}

// AgentEvent is one parsed line of the external agent's JSONL stream.
type AgentEvent struct {
	Type string          `json:"type"`
	Item *AgentEventItem `json:"item,omitempty"`
}

// AgentEventItem is the payload of item.* agent events.
type AgentEventItem struct {
	ID       string `json:"id,omitempty"`
	ItemType string `json:"item_type,omitempty"`
	Text     string `json:"text,omitempty"`
}
