package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sqlite3 "github.com/mattn/go-sqlite3"

	"github.com/falconlabs/falcon/pkg/types"
)

// WikiStore is the durable home of wikis, their generation jobs, the page
// index, and chat transcripts. It is safe for concurrent use by the job
// workers and the HTTP surface.
type WikiStore struct {
	db *sql.DB
}

// OpenWikiStore opens (creating if necessary) the wiki database at path and
// applies pending migrations.
func OpenWikiStore(path string) (*WikiStore, error) {
	db, err := open(path)
	if err != nil {
		return nil, err
	}
	if err := migrate(db, wikiMigrations); err != nil {
		db.Close()
		return nil, err
	}
	return &WikiStore{db: db}, nil
}

// Close closes the database.
func (s *WikiStore) Close() error {
	return s.db.Close()
}

// Ping verifies the database is reachable.
func (s *WikiStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

const wikiColumns = `id, owner, repo, url, branch, commit_sha, status, total_pages,
	completed_pages, storage_path, analysis_plan, languages, description,
	error_message, created_at, started_at, completed_at`

func scanWiki(row interface{ Scan(...any) error }) (*types.Wiki, error) {
	var w types.Wiki
	var commitSHA, plan, languages, description, errMsg sql.NullString
	var startedAt, completedAt sql.NullTime
	err := row.Scan(
		&w.ID, &w.Owner, &w.Repo, &w.URL, &w.Branch, &commitSHA, &w.Status,
		&w.TotalPages, &w.CompletedPages, &w.StoragePath, &plan, &languages,
		&description, &errMsg, &w.CreatedAt, &startedAt, &completedAt,
	)
	if err != nil {
		return nil, err
	}
	w.CommitSHA = commitSHA.String
	w.Description = description.String
	w.ErrorMessage = errMsg.String
	if plan.Valid {
		w.AnalysisPlan = json.RawMessage(plan.String)
	}
	if languages.Valid {
		w.Languages = json.RawMessage(languages.String)
	}
	if startedAt.Valid {
		t := startedAt.Time
		w.StartedAt = &t
	}
	if completedAt.Valid {
		t := completedAt.Time
		w.CompletedAt = &t
	}
	return &w, nil
}

// CreateWikiWithJob inserts a wiki row and its generation job in one
// transaction, so a wiki is never enrolled without a driver.
func (s *WikiStore) CreateWikiWithJob(ctx context.Context, wiki *types.Wiki, job *types.Job) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO wikis (id, owner, repo, url, branch, status, storage_path, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		wiki.ID, wiki.Owner, wiki.Repo, wiki.URL, wiki.Branch, wiki.Status,
		wiki.StoragePath, wiki.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create wiki: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO jobs (id, kind, wiki_id, status, max_attempts, priority, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		job.ID, job.Kind, job.WikiID, job.Status, job.MaxAttempts, job.Priority, job.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}

	return tx.Commit()
}

// GetWiki returns the wiki by id, or types.ErrNotFound.
func (s *WikiStore) GetWiki(ctx context.Context, id string) (*types.Wiki, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+wikiColumns+" FROM wikis WHERE id = ?", id)
	w, err := scanWiki(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("wiki %s: %w", id, types.ErrNotFound)
	}
	return w, err
}

// FindActiveWiki returns the non-failed wiki for (owner, repo, branch), or
// types.ErrNotFound. At most one such row can exist.
func (s *WikiStore) FindActiveWiki(ctx context.Context, owner, repo, branch string) (*types.Wiki, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+wikiColumns+" FROM wikis WHERE owner = ? AND repo = ? AND branch = ? AND status != ?",
		owner, repo, branch, types.WikiStatusFailed)
	w, err := scanWiki(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("wiki %s/%s@%s: %w", owner, repo, branch, types.ErrNotFound)
	}
	return w, err
}

// FindWikis lists wikis, optionally filtered by owner and repo, newest first.
func (s *WikiStore) FindWikis(ctx context.Context, owner, repo string) ([]*types.Wiki, error) {
	query := "SELECT " + wikiColumns + " FROM wikis WHERE 1=1"
	var args []any
	if owner != "" {
		query += " AND owner = ?"
		args = append(args, owner)
	}
	if repo != "" {
		query += " AND repo = ?"
		args = append(args, repo)
	}
	query += " ORDER BY created_at DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var wikis []*types.Wiki
	for rows.Next() {
		w, err := scanWiki(rows)
		if err != nil {
			return nil, err
		}
		wikis = append(wikis, w)
	}
	return wikis, rows.Err()
}

// UpdateWikiStatus transitions the wiki's status. Entering cloning stamps
// started_at; entering a terminal status stamps completed_at. The transition
// is durable before the caller proceeds to the next phase.
func (s *WikiStore) UpdateWikiStatus(ctx context.Context, id string, status types.WikiStatus) error {
	query := "UPDATE wikis SET status = ?"
	args := []any{status}
	now := time.Now().UTC()
	switch {
	case status == types.WikiStatusCloning:
		query += ", started_at = ?"
		args = append(args, now)
	case status.Terminal():
		query += ", completed_at = ?"
		args = append(args, now)
	}
	query += " WHERE id = ?"
	args = append(args, id)

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("wiki %s: %w", id, types.ErrNotFound)
	}
	return nil
}

// SetCommitInfo persists the metadata fetched during the cloning phase.
func (s *WikiStore) SetCommitInfo(ctx context.Context, id, commitSHA string, languages map[string]float64, description string) error {
	langJSON, err := json.Marshal(languages)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		"UPDATE wikis SET commit_sha = ?, languages = ?, description = ? WHERE id = ?",
		commitSHA, string(langJSON), description, id)
	return err
}

// SaveAnalysisPlan stores the analysis plan blob produced in Phase 2.
func (s *WikiStore) SaveAnalysisPlan(ctx context.Context, id string, plan json.RawMessage) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE wikis SET analysis_plan = ? WHERE id = ?", string(plan), id)
	return err
}

// SetPageCounts sets both page counters, used when Phase 3 starts.
func (s *WikiStore) SetPageCounts(ctx context.Context, id string, total, completed int) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE wikis SET total_pages = ?, completed_pages = ? WHERE id = ?",
		total, completed, id)
	return err
}

// IncrementCompletedPages atomically bumps completed_pages and returns the
// new value. Page completions within a wave may interleave; the counter
// only moves forward.
func (s *WikiStore) IncrementCompletedPages(ctx context.Context, id string) (int, error) {
	row := s.db.QueryRowContext(ctx,
		"UPDATE wikis SET completed_pages = completed_pages + 1 WHERE id = ? RETURNING completed_pages", id)
	var completed int
	if err := row.Scan(&completed); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, fmt.Errorf("wiki %s: %w", id, types.ErrNotFound)
		}
		return 0, err
	}
	return completed, nil
}

// SetWikiError records an error message without changing status.
func (s *WikiStore) SetWikiError(ctx context.Context, id, message string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE wikis SET error_message = ? WHERE id = ?", message, id)
	return err
}

// DeleteWiki removes the wiki row; jobs, conversations, messages and page
// index rows cascade.
func (s *WikiStore) DeleteWiki(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM wikis WHERE id = ?", id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("wiki %s: %w", id, types.ErrNotFound)
	}
	return nil
}

// ReplaceWikiPages replaces the page index for a wiki in one transaction.
// Replacing rather than inserting keeps retried indexing phases idempotent.
func (s *WikiStore) ReplaceWikiPages(ctx context.Context, wikiID string, pages []types.WikiPage) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM wiki_pages WHERE wiki_id = ?", wikiID); err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO wiki_pages (wiki_id, slug, title, section, sort_order, summary, file_path)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, p := range pages {
		if _, err := stmt.ExecContext(ctx, wikiID, p.Slug, p.Title, p.Section, p.SortOrder, p.Summary, p.FilePath); err != nil {
			return fmt.Errorf("failed to index page %s: %w", p.Slug, err)
		}
	}
	return tx.Commit()
}

// ListWikiPages returns the page index for a wiki in sort order.
func (s *WikiStore) ListWikiPages(ctx context.Context, wikiID string) ([]types.WikiPage, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT wiki_id, slug, title, section, sort_order, summary, file_path
		 FROM wiki_pages WHERE wiki_id = ? ORDER BY sort_order, slug`, wikiID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var pages []types.WikiPage
	for rows.Next() {
		var p types.WikiPage
		if err := rows.Scan(&p.WikiID, &p.Slug, &p.Title, &p.Section, &p.SortOrder, &p.Summary, &p.FilePath); err != nil {
			return nil, err
		}
		pages = append(pages, p)
	}
	return pages, rows.Err()
}

// GetWikiPage returns one page index row, or types.ErrNotFound.
func (s *WikiStore) GetWikiPage(ctx context.Context, wikiID, slug string) (*types.WikiPage, error) {
	var p types.WikiPage
	err := s.db.QueryRowContext(ctx,
		`SELECT wiki_id, slug, title, section, sort_order, summary, file_path
		 FROM wiki_pages WHERE wiki_id = ? AND slug = ?`, wikiID, slug).
		Scan(&p.WikiID, &p.Slug, &p.Title, &p.Section, &p.SortOrder, &p.Summary, &p.FilePath)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("page %s: %w", slug, types.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// --- Conversations and messages ---

// CreateConversation inserts a conversation owned by a wiki. An id already
// in use, by this wiki or any other, is types.ErrConflict.
func (s *WikiStore) CreateConversation(ctx context.Context, conv *types.Conversation) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO conversations (id, wiki_id, created_at) VALUES (?, ?, ?)",
		conv.ID, conv.WikiID, conv.CreatedAt)
	var se sqlite3.Error
	if errors.As(err, &se) &&
		(se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey || se.ExtendedCode == sqlite3.ErrConstraintUnique) {
		return fmt.Errorf("conversation %s: %w", conv.ID, types.ErrConflict)
	}
	return err
}

// GetConversation returns the conversation if it exists and belongs to the
// wiki, or types.ErrNotFound.
func (s *WikiStore) GetConversation(ctx context.Context, wikiID, convID string) (*types.Conversation, error) {
	var c types.Conversation
	err := s.db.QueryRowContext(ctx,
		"SELECT id, wiki_id, created_at FROM conversations WHERE id = ? AND wiki_id = ?",
		convID, wikiID).Scan(&c.ID, &c.WikiID, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("conversation %s: %w", convID, types.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// InsertMessage appends a message to a conversation. Messages are never
// mutated after insert.
func (s *WikiStore) InsertMessage(ctx context.Context, msg *types.Message) error {
	var contextPages sql.NullString
	if len(msg.ContextPages) > 0 {
		data, err := json.Marshal(msg.ContextPages)
		if err != nil {
			return err
		}
		contextPages = sql.NullString{String: string(data), Valid: true}
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (id, conversation_id, role, content, context_pages, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		msg.ID, msg.ConversationID, msg.Role, msg.Content, contextPages, msg.CreatedAt)
	return err
}

// ListMessages returns a conversation's messages in insertion order.
func (s *WikiStore) ListMessages(ctx context.Context, convID string) ([]types.Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, conversation_id, role, content, context_pages, created_at
		 FROM messages WHERE conversation_id = ? ORDER BY created_at, rowid`, convID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []types.Message
	for rows.Next() {
		var m types.Message
		var contextPages sql.NullString
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Role, &m.Content, &contextPages, &m.CreatedAt); err != nil {
			return nil, err
		}
		if contextPages.Valid {
			if err := json.Unmarshal([]byte(contextPages.String), &m.ContextPages); err != nil {
				return nil, fmt.Errorf("corrupt context_pages on message %s: %w", m.ID, err)
			}
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}
