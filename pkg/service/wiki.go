package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/falconlabs/falcon/pkg/config"
	"github.com/falconlabs/falcon/pkg/github"
	"github.com/falconlabs/falcon/pkg/log"
	"github.com/falconlabs/falcon/pkg/pipeline"
	"github.com/falconlabs/falcon/pkg/storage"
	"github.com/falconlabs/falcon/pkg/types"
)

// defaultBranch is used when a create request omits one.
const defaultBranch = "main"

const manifestFile = "manifest.json"

// WikiService owns the wiki lifecycle: enrollment with a paired generation
// job, progress views, and serving the artifacts the pipeline leaves in
// wiki storage.
type WikiService struct {
	store       *storage.WikiStore
	storageRoot string
	maxAttempts int
	logger      zerolog.Logger
}

// NewWikiService creates the service over the wiki store.
func NewWikiService(store *storage.WikiStore, cfg *config.Settings) *WikiService {
	maxAttempts := cfg.JobMaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &WikiService{
		store:       store,
		storageRoot: cfg.WikiStorageRoot,
		maxAttempts: maxAttempts,
		logger:      log.WithComponent("wiki-service"),
	}
}

// Create enrolls a wiki and its generation job for a GitHub URL. When a
// non-failed wiki already exists for (owner, repo, branch), that wiki is
// returned instead of enrolling a duplicate; only a failed attempt frees
// the slot.
func (s *WikiService) Create(ctx context.Context, githubURL, branch string) (*types.Wiki, error) {
	owner, repo, err := github.ParseRepoURL(githubURL)
	if err != nil {
		return nil, err
	}
	if branch == "" {
		branch = defaultBranch
	}

	existing, err := s.store.FindActiveWiki(ctx, owner, repo, branch)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, types.ErrNotFound) {
		return nil, err
	}

	now := time.Now().UTC()
	wiki := &types.Wiki{
		ID:        uuid.NewString(),
		Owner:     owner,
		Repo:      repo,
		URL:       githubURL,
		Branch:    branch,
		Status:    types.WikiStatusQueued,
		CreatedAt: now,
	}
	wiki.StoragePath = fmt.Sprintf("%s/%s/%s", owner, repo, wiki.ID)
	job := &types.Job{
		ID:          uuid.NewString(),
		Kind:        types.JobKindWikiGeneration,
		WikiID:      wiki.ID,
		Status:      types.JobStatusQueued,
		MaxAttempts: s.maxAttempts,
		CreatedAt:   now,
	}
	if err := s.store.CreateWikiWithJob(ctx, wiki, job); err != nil {
		return nil, err
	}
	s.logger.Info().
		Str("wiki_id", wiki.ID).
		Str("repo", owner+"/"+repo).
		Str("branch", branch).
		Msg("Wiki enrolled")
	return wiki, nil
}

// Get returns the full wiki record.
func (s *WikiService) Get(ctx context.Context, id string) (*types.Wiki, error) {
	return s.store.GetWiki(ctx, id)
}

// Find lists wikis, optionally filtered by owner and repo, newest first.
func (s *WikiService) Find(ctx context.Context, owner, repo string) ([]*types.Wiki, error) {
	return s.store.FindWikis(ctx, owner, repo)
}

// StatusInfo is the progress view of a wiki.
type StatusInfo struct {
	Status    types.WikiStatus `json:"status"`
	Progress  *Progress        `json:"progress,omitempty"`
	StartedAt *time.Time       `json:"started_at,omitempty"`
}

// Progress reports page generation counts, present once the plan is known.
type Progress struct {
	Completed int `json:"completed"`
	Total     int `json:"total"`
}

// Status returns the wiki's phase and, once total pages are known, its
// page-generation progress.
func (s *WikiService) Status(ctx context.Context, id string) (*StatusInfo, error) {
	wiki, err := s.store.GetWiki(ctx, id)
	if err != nil {
		return nil, err
	}
	info := &StatusInfo{Status: wiki.Status, StartedAt: wiki.StartedAt}
	if wiki.TotalPages > 0 {
		info.Progress = &Progress{Completed: wiki.CompletedPages, Total: wiki.TotalPages}
	}
	return info, nil
}

// Manifest returns the stored manifest.json verbatim. Only completed wikis
// have one; anything else is not found.
func (s *WikiService) Manifest(ctx context.Context, id string) (json.RawMessage, error) {
	wiki, err := s.store.GetWiki(ctx, id)
	if err != nil {
		return nil, err
	}
	if wiki.Status != types.WikiStatusCompleted {
		return nil, fmt.Errorf("manifest for wiki %s: %w", id, types.ErrNotFound)
	}
	raw, err := os.ReadFile(filepath.Join(s.wikiDir(wiki), manifestFile))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("manifest for wiki %s: %w", id, types.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return json.RawMessage(raw), nil
}

// Pages returns the page index in sort order.
func (s *WikiService) Pages(ctx context.Context, id string) ([]types.WikiPage, error) {
	return s.store.ListWikiPages(ctx, id)
}

// PageDetail is a rendered wiki page: parsed frontmatter plus the markdown
// body.
type PageDetail struct {
	Slug        string         `json:"slug"`
	Title       string         `json:"title"`
	Section     string         `json:"section"`
	ContentMD   string         `json:"content_md"`
	Frontmatter map[string]any `json:"frontmatter"`
}

// Page loads one page's markdown from storage and splits its frontmatter at
// serve time, so agent-written metadata beyond the index columns survives.
func (s *WikiService) Page(ctx context.Context, wikiID, slug string) (*PageDetail, error) {
	wiki, err := s.store.GetWiki(ctx, wikiID)
	if err != nil {
		return nil, err
	}
	row, err := s.store.GetWikiPage(ctx, wikiID, slug)
	if err != nil {
		return nil, err
	}

	raw, err := os.ReadFile(filepath.Join(s.wikiDir(wiki), filepath.FromSlash(row.FilePath)))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("page file %s: %w", row.FilePath, types.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	meta, body, err := pipeline.SplitFrontmatter(string(raw))
	if err != nil {
		return nil, err
	}

	// Frontmatter is authoritative; the index row fills in what the agent
	// left out.
	title := stringField(meta, "title")
	if title == "" {
		title = row.Title
	}
	section := stringField(meta, "section")
	if section == "" {
		section = row.Section
	}
	return &PageDetail{
		Slug:        slug,
		Title:       title,
		Section:     section,
		ContentMD:   body,
		Frontmatter: meta,
	}, nil
}

// Delete removes the wiki row (jobs, pages, conversations cascade) and its
// storage directory. Deleting an unknown wiki is a no-op.
func (s *WikiService) Delete(ctx context.Context, id string) error {
	wiki, err := s.store.GetWiki(ctx, id)
	if errors.Is(err, types.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	if wiki.StoragePath != "" {
		if err := os.RemoveAll(s.wikiDir(wiki)); err != nil {
			return err
		}
	}
	if err := s.store.DeleteWiki(ctx, id); err != nil && !errors.Is(err, types.ErrNotFound) {
		return err
	}
	s.logger.Info().Str("wiki_id", id).Msg("Wiki deleted")
	return nil
}

func (s *WikiService) wikiDir(wiki *types.Wiki) string {
	return filepath.Join(s.storageRoot, filepath.FromSlash(wiki.StoragePath))
}

// stringField reads a string value out of parsed frontmatter; anything else
// becomes "".
func stringField(meta map[string]any, key string) string {
	if v, ok := meta[key].(string); ok {
		return v
	}
	return ""
}
