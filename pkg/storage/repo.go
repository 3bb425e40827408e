package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/falconlabs/falcon/pkg/types"
)

// RepoStore holds ingested repositories and their virtual filesystem rows.
// Its schema and indexes are shaped around the three shell tool query
// patterns: directory listing, path globbing, and content search.
type RepoStore struct {
	db *sql.DB
}

// OpenRepoStore opens (creating if necessary) the repo database at path and
// applies pending migrations.
func OpenRepoStore(path string) (*RepoStore, error) {
	db, err := open(path)
	if err != nil {
		return nil, err
	}
	if err := migrate(db, repoMigrations); err != nil {
		db.Close()
		return nil, err
	}
	return &RepoStore{db: db}, nil
}

// Close closes the database.
func (s *RepoStore) Close() error {
	return s.db.Close()
}

// Ping verifies the database is reachable.
func (s *RepoStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// CreateRepo inserts a repo row, normally in status ingesting.
func (s *RepoStore) CreateRepo(ctx context.Context, repo *types.Repo) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO repos (id, url, name, status, ingested_at) VALUES (?, ?, ?, ?, ?)",
		repo.ID, repo.URL, repo.Name, repo.Status, repo.IngestedAt)
	return err
}

// GetRepo returns the repo by id with its file count, or types.ErrNotFound.
func (s *RepoStore) GetRepo(ctx context.Context, id string) (*types.Repo, error) {
	var r types.Repo
	err := s.db.QueryRowContext(ctx,
		`SELECT r.id, r.url, r.name, r.status, r.ingested_at,
		        (SELECT COUNT(*) FROM files f WHERE f.repo_id = r.id AND f.is_directory = 0)
		 FROM repos r WHERE r.id = ?`, id).
		Scan(&r.ID, &r.URL, &r.Name, &r.Status, &r.IngestedAt, &r.FileCount)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("repo %s: %w", id, types.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// GetRepoByURL returns the repo for a URL, or types.ErrNotFound.
func (s *RepoStore) GetRepoByURL(ctx context.Context, url string) (*types.Repo, error) {
	var r types.Repo
	err := s.db.QueryRowContext(ctx,
		"SELECT id, url, name, status, ingested_at FROM repos WHERE url = ?", url).
		Scan(&r.ID, &r.URL, &r.Name, &r.Status, &r.IngestedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("repo %s: %w", url, types.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// ListRepos returns every repo with file counts, newest first.
func (s *RepoStore) ListRepos(ctx context.Context) ([]*types.Repo, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT r.id, r.url, r.name, r.status, r.ingested_at,
		        (SELECT COUNT(*) FROM files f WHERE f.repo_id = r.id AND f.is_directory = 0)
		 FROM repos r ORDER BY r.ingested_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var repos []*types.Repo
	for rows.Next() {
		var r types.Repo
		if err := rows.Scan(&r.ID, &r.URL, &r.Name, &r.Status, &r.IngestedAt, &r.FileCount); err != nil {
			return nil, err
		}
		repos = append(repos, &r)
	}
	return repos, rows.Err()
}

// UpdateRepoStatus transitions a repo's ingestion status.
func (s *RepoStore) UpdateRepoStatus(ctx context.Context, id string, status types.RepoStatus) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE repos SET status = ? WHERE id = ?", status, id)
	return err
}

// DeleteRepo removes the repo row; file rows cascade.
func (s *RepoStore) DeleteRepo(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM repos WHERE id = ?", id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("repo %s: %w", id, types.ErrNotFound)
	}
	return nil
}

// InsertFiles bulk-loads file records in one transaction with a prepared
// statement. Directories carry NULL content; files without an extension
// carry NULL extension.
func (s *RepoStore) InsertFiles(ctx context.Context, records []types.FileRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO files (repo_id, path, name, extension, parent_path, depth, is_directory, content)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, r := range records {
		var ext, content sql.NullString
		if r.Extension != "" {
			ext = sql.NullString{String: r.Extension, Valid: true}
		}
		if !r.IsDirectory {
			content = sql.NullString{String: r.Content, Valid: true}
		}
		if _, err := stmt.ExecContext(ctx, r.RepoID, r.Path, r.Name, ext, r.ParentPath, r.Depth, r.IsDirectory, content); err != nil {
			return fmt.Errorf("failed to insert %s: %w", r.Path, err)
		}
	}
	return tx.Commit()
}

// DirEntry is one child of a directory listing.
type DirEntry struct {
	Name        string
	IsDirectory bool
}

// ListChildren returns the immediate children of a directory, directories
// first, then lexical by name within each kind.
func (s *RepoStore) ListChildren(ctx context.Context, repoID, parentPath string) ([]DirEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name, is_directory FROM files
		 WHERE repo_id = ? AND parent_path = ?
		 ORDER BY is_directory DESC, name`, repoID, parentPath)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []DirEntry
	for rows.Next() {
		var e DirEntry
		if err := rows.Scan(&e.Name, &e.IsDirectory); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// PathEntry is one row of the full path listing used by glob matching.
type PathEntry struct {
	Path        string
	IsDirectory bool
}

// ListPaths returns every path in the repo in lexical order.
func (s *RepoStore) ListPaths(ctx context.Context, repoID string) ([]PathEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT path, is_directory FROM files WHERE repo_id = ? ORDER BY path", repoID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []PathEntry
	for rows.Next() {
		var e PathEntry
		if err := rows.Scan(&e.Path, &e.IsDirectory); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// FileContent is the payload of a single-file lookup.
type FileContent struct {
	Content     string
	IsDirectory bool
}

// GetFile returns one file's content by exact path, or types.ErrNotFound.
func (s *RepoStore) GetFile(ctx context.Context, repoID, path string) (*FileContent, error) {
	var f FileContent
	var content sql.NullString
	err := s.db.QueryRowContext(ctx,
		"SELECT content, is_directory FROM files WHERE repo_id = ? AND path = ?",
		repoID, path).Scan(&content, &f.IsDirectory)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("file %s: %w", path, types.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	f.Content = content.String
	return &f, nil
}

// SearchFilter narrows a content search before the caller's regex pass.
// Literals become substring predicates; Extension and NamePattern are
// mutually exclusive translations of a glob argument.
type SearchFilter struct {
	Literals    []string
	Extension   string // exact match, e.g. ".py"
	NamePattern string // SQL LIKE pattern on name, already translated
}

// FileMatch is one candidate row from a content search.
type FileMatch struct {
	Path    string
	Content string
}

// SearchFiles returns candidate files for a content search in path order.
// Every literal must appear as a substring of content; the repo id bounds
// the scan even when no literals were extracted.
func (s *RepoStore) SearchFiles(ctx context.Context, repoID string, filter SearchFilter) ([]FileMatch, error) {
	var sb strings.Builder
	sb.WriteString("SELECT path, content FROM files WHERE repo_id = ? AND is_directory = 0")
	args := []any{repoID}

	for _, lit := range filter.Literals {
		sb.WriteString(` AND content LIKE ? ESCAPE '\'`)
		args = append(args, "%"+escapeLike(lit)+"%")
	}
	if filter.Extension != "" {
		sb.WriteString(" AND extension = ?")
		args = append(args, filter.Extension)
	} else if filter.NamePattern != "" {
		sb.WriteString(" AND name LIKE ?")
		args = append(args, filter.NamePattern)
	}
	sb.WriteString(" ORDER BY path")

	rows, err := s.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var matches []FileMatch
	for rows.Next() {
		var m FileMatch
		var content sql.NullString
		if err := rows.Scan(&m.Path, &content); err != nil {
			return nil, err
		}
		m.Content = content.String
		matches = append(matches, m)
	}
	return matches, rows.Err()
}
