package ingest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/falconlabs/falcon/pkg/log"
	"github.com/falconlabs/falcon/pkg/storage"
	"github.com/falconlabs/falcon/pkg/types"
)

// Directory names pruned during the walk. Nothing underneath them is
// visited, so no rows are emitted for the directory or its descendants.
var skipDirs = map[string]struct{}{
	".git": {}, "node_modules": {}, "__pycache__": {}, ".venv": {}, "venv": {}, ".env": {},
	"vendor": {}, "dist": {}, "build": {}, ".next": {}, ".nuxt": {}, "target": {}, "bin": {}, "obj": {},
	".idea": {}, ".vscode": {}, ".DS_Store": {}, ".svn": {}, ".hg": {},
	"coverage": {}, ".cache": {}, ".parcel-cache": {}, ".turbo": {},
}

// Extensions skipped outright: binary, media, archive, compiled, and
// large-data formats that are useless as chat context.
var skipExtensions = map[string]struct{}{
	".png": {}, ".jpg": {}, ".jpeg": {}, ".gif": {}, ".svg": {}, ".ico": {}, ".bmp": {}, ".webp": {},
	".woff": {}, ".woff2": {}, ".ttf": {}, ".eot": {}, ".otf": {},
	".mp3": {}, ".mp4": {}, ".wav": {}, ".avi": {}, ".mov": {}, ".webm": {},
	".zip": {}, ".tar": {}, ".gz": {}, ".rar": {}, ".7z": {}, ".bz2": {},
	".pdf": {}, ".doc": {}, ".docx": {}, ".xls": {}, ".xlsx": {},
	".exe": {}, ".dll": {}, ".so": {}, ".dylib": {}, ".bin": {},
	".pyc": {}, ".pyo": {}, ".class": {}, ".o": {}, ".a": {}, ".obj": {}, ".wasm": {},
	".sqlite": {}, ".db": {}, ".pickle": {}, ".pkl": {},
	".map": {},
}

// Lockfiles and OS litter excluded by exact name.
var skipFilenames = map[string]struct{}{
	"package-lock.json": {}, "yarn.lock": {}, "pnpm-lock.yaml": {},
	"poetry.lock": {}, "Cargo.lock": {}, "composer.lock": {},
	"Gemfile.lock": {}, "go.sum": {},
	".DS_Store": {}, "Thumbs.db": {},
}

// Result statuses returned by Ingest.
const (
	StatusReady         = "ready"
	StatusAlreadyExists = "already_exists"
)

// Result is the outcome of one ingestion request. FileCount is the number of
// rows loaded, directories included; it is zero for already_exists.
type Result struct {
	RepoID    string
	Status    string
	FileCount int
}

// CloneError reports a failed shallow clone. The API boundary maps it to a
// validation failure since the usual causes are bad URLs and private repos.
type CloneError struct {
	ExitCode int
	Stderr   string
}

func (e *CloneError) Error() string {
	return fmt.Sprintf("git clone failed (exit %d): %s", e.ExitCode, e.Stderr)
}

// Ingestor clones a repository, walks its tree, and bulk-loads the kept
// entries into the repo store as virtual filesystem rows. The clone lives in
// a temp directory that is removed on every exit path; after ingestion only
// the database holds the repository's data.
type Ingestor struct {
	store       *storage.RepoStore
	git         string
	maxFileSize int64
	logger      zerolog.Logger
}

// NewIngestor creates an ingestor backed by the given store. Files larger
// than maxFileSize bytes are omitted.
func NewIngestor(store *storage.RepoStore, maxFileSize int64) *Ingestor {
	return &Ingestor{
		store:       store,
		git:         "git",
		maxFileSize: maxFileSize,
		logger:      log.WithComponent("ingest"),
	}
}

// Ingest loads the repository at url into the store. A ready repo with the
// same URL short-circuits to already_exists; a previously errored one is
// replaced. Any failure after the row is created marks it errored so the
// URL can be retried.
func (ing *Ingestor) Ingest(ctx context.Context, url string) (*Result, error) {
	existing, err := ing.store.GetRepoByURL(ctx, url)
	if err != nil && !errors.Is(err, types.ErrNotFound) {
		return nil, err
	}
	if existing != nil {
		switch existing.Status {
		case types.RepoStatusReady:
			return &Result{RepoID: existing.ID, Status: StatusAlreadyExists}, nil
		case types.RepoStatusIngesting:
			return nil, fmt.Errorf("ingestion already in progress for %s: %w", url, types.ErrConflict)
		default:
			// stale errored row holds the URL's unique slot
			if err := ing.store.DeleteRepo(ctx, existing.ID); err != nil {
				return nil, err
			}
		}
	}

	repo := &types.Repo{
		ID:         uuid.NewString(),
		URL:        url,
		Name:       repoName(url),
		Status:     types.RepoStatusIngesting,
		IngestedAt: time.Now().UTC(),
	}
	if err := ing.store.CreateRepo(ctx, repo); err != nil {
		return nil, err
	}

	ing.logger.Info().Str("repo_id", repo.ID).Str("url", url).Msg("Ingesting repo")
	count, err := ing.load(ctx, repo.ID, url)
	if err != nil {
		if uerr := ing.store.UpdateRepoStatus(context.Background(), repo.ID, types.RepoStatusError); uerr != nil {
			ing.logger.Error().Err(uerr).Str("repo_id", repo.ID).Msg("Failed to mark repo errored")
		}
		return nil, err
	}

	if err := ing.store.UpdateRepoStatus(ctx, repo.ID, types.RepoStatusReady); err != nil {
		return nil, err
	}
	ing.logger.Info().Str("repo_id", repo.ID).Int("records", count).Msg("Repo ingested")
	return &Result{RepoID: repo.ID, Status: StatusReady, FileCount: count}, nil
}

// load clones, walks, and bulk-inserts, returning the number of rows loaded.
func (ing *Ingestor) load(ctx context.Context, repoID, url string) (int, error) {
	tmpDir, err := os.MkdirTemp("", "falcon_ingest_")
	if err != nil {
		return 0, err
	}
	defer os.RemoveAll(tmpDir)

	clonePath := filepath.Join(tmpDir, "repo")
	if err := ing.clone(ctx, url, clonePath); err != nil {
		return 0, err
	}

	records, err := collectFileRecords(clonePath, repoID, ing.maxFileSize)
	if err != nil {
		return 0, err
	}
	if len(records) > 0 {
		if err := ing.store.InsertFiles(ctx, records); err != nil {
			return 0, err
		}
	}
	return len(records), nil
}

func (ing *Ingestor) clone(ctx context.Context, url, dest string) error {
	cmd := exec.CommandContext(ctx, ing.git, "clone", "--depth", "1", "--single-branch", url, dest)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return &CloneError{ExitCode: exitErr.ExitCode(), Stderr: strings.TrimSpace(stderr.String())}
		}
		return err
	}
	return nil
}

// collectFileRecords walks the clone and derives one row per kept directory
// and file. Files are dropped when their name or extension is skip-listed,
// they exceed the size cap, or their content is not valid UTF-8. Unreadable
// entries are dropped silently; a repository snapshot is best-effort.
func collectFileRecords(root, repoID string, maxFileSize int64) ([]types.FileRecord, error) {
	var records []types.FileRecord
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		relPath := filepath.ToSlash(rel)
		name := d.Name()

		if d.IsDir() {
			if _, skip := skipDirs[name]; skip {
				return filepath.SkipDir
			}
			records = append(records, types.FileRecord{
				RepoID:      repoID,
				Path:        relPath,
				Name:        name,
				ParentPath:  parentPath(relPath),
				Depth:       pathDepth(relPath),
				IsDirectory: true,
			})
			return nil
		}

		if _, skip := skipFilenames[name]; skip {
			return nil
		}
		ext := fileExtension(name)
		if _, skip := skipExtensions[ext]; skip {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		if info.Size() > maxFileSize {
			return nil
		}
		content, err := os.ReadFile(p)
		if err != nil {
			return nil
		}
		if !utf8.Valid(content) {
			return nil
		}

		records = append(records, types.FileRecord{
			RepoID:     repoID,
			Path:       relPath,
			Name:       name,
			Extension:  ext,
			ParentPath: parentPath(relPath),
			Depth:      pathDepth(relPath),
			Content:    string(content),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

// repoName derives a display name from a clone URL:
//
//	https://github.com/expressjs/express.git → expressjs/express
//	git@bitbucket.org:team/repo.git          → team/repo
func repoName(url string) string {
	clean := strings.TrimSuffix(strings.TrimRight(url, "/"), ".git")
	if strings.Contains(clean, "://") {
		parts := strings.Split(clean, "/")
		if len(parts) >= 2 {
			return strings.Join(parts[len(parts)-2:], "/")
		}
		return parts[len(parts)-1]
	}
	if i := strings.LastIndexByte(clean, ':'); i >= 0 {
		return clean[i+1:]
	}
	return clean
}

// fileExtension returns the lowercased extension including the leading dot.
// Dotfiles such as .gitignore have no extension; test.spec.ts yields ".ts".
func fileExtension(name string) string {
	ext := filepath.Ext(name)
	if ext == name {
		return ""
	}
	return strings.ToLower(ext)
}

func parentPath(p string) string {
	if i := strings.LastIndexByte(p, '/'); i >= 0 {
		return p[:i]
	}
	return ""
}

func pathDepth(p string) int {
	return strings.Count(p, "/") + 1
}
