package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/falconlabs/falcon/pkg/types"
)

func newTestRepoStore(t *testing.T) *RepoStore {
	t.Helper()
	store, err := OpenRepoStore(filepath.Join(t.TempDir(), "repos.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func seedRepo(t *testing.T, store *RepoStore) *types.Repo {
	t.Helper()
	repo := &types.Repo{
		ID:         uuid.NewString(),
		URL:        "https://github.com/octocat/hello-world",
		Name:       "hello-world",
		Status:     types.RepoStatusIngesting,
		IngestedAt: time.Now().UTC(),
	}
	require.NoError(t, store.CreateRepo(context.Background(), repo))
	return repo
}

// seedTree loads a small fixture tree:
//
//	README.md
//	src/
//	src/main.py
//	src/utils/
//	src/utils/helpers.py
//	docs/
//	docs/guide.md
func seedTree(t *testing.T, store *RepoStore, repoID string) {
	t.Helper()
	records := []types.FileRecord{
		{RepoID: repoID, Path: "README.md", Name: "README.md", Extension: ".md", ParentPath: "", Depth: 1, Content: "# Hello World\n"},
		{RepoID: repoID, Path: "src", Name: "src", ParentPath: "", Depth: 1, IsDirectory: true},
		{RepoID: repoID, Path: "src/main.py", Name: "main.py", Extension: ".py", ParentPath: "src", Depth: 2, Content: "def main():\n    greet()\n"},
		{RepoID: repoID, Path: "src/utils", Name: "utils", ParentPath: "src", Depth: 2, IsDirectory: true},
		{RepoID: repoID, Path: "src/utils/helpers.py", Name: "helpers.py", Extension: ".py", ParentPath: "src/utils", Depth: 3, Content: "def greet():\n    print('hi')\n"},
		{RepoID: repoID, Path: "docs", Name: "docs", ParentPath: "", Depth: 1, IsDirectory: true},
		{RepoID: repoID, Path: "docs/guide.md", Name: "guide.md", Extension: ".md", ParentPath: "docs", Depth: 2, Content: "50% discount_code\n"},
	}
	require.NoError(t, store.InsertFiles(context.Background(), records))
}

func TestRepoLifecycle(t *testing.T) {
	store := newTestRepoStore(t)
	ctx := context.Background()
	repo := seedRepo(t, store)
	seedTree(t, store, repo.ID)

	require.NoError(t, store.UpdateRepoStatus(ctx, repo.ID, types.RepoStatusReady))

	got, err := store.GetRepo(ctx, repo.ID)
	require.NoError(t, err)
	assert.Equal(t, types.RepoStatusReady, got.Status)
	assert.Equal(t, 4, got.FileCount, "directories do not count as files")

	byURL, err := store.GetRepoByURL(ctx, repo.URL)
	require.NoError(t, err)
	assert.Equal(t, repo.ID, byURL.ID)

	list, err := store.ListRepos(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, 4, list[0].FileCount)
}

func TestRepoURLIsUnique(t *testing.T) {
	store := newTestRepoStore(t)
	seedRepo(t, store)

	dup := &types.Repo{
		ID:         uuid.NewString(),
		URL:        "https://github.com/octocat/hello-world",
		Name:       "hello-world",
		Status:     types.RepoStatusIngesting,
		IngestedAt: time.Now().UTC(),
	}
	assert.Error(t, store.CreateRepo(context.Background(), dup))
}

func TestDeleteRepoCascades(t *testing.T) {
	store := newTestRepoStore(t)
	ctx := context.Background()
	repo := seedRepo(t, store)
	seedTree(t, store, repo.ID)

	require.NoError(t, store.DeleteRepo(ctx, repo.ID))

	_, err := store.GetRepo(ctx, repo.ID)
	assert.ErrorIs(t, err, types.ErrNotFound)
	paths, err := store.ListPaths(ctx, repo.ID)
	require.NoError(t, err)
	assert.Empty(t, paths)

	assert.ErrorIs(t, store.DeleteRepo(ctx, repo.ID), types.ErrNotFound)
}

func TestListChildrenOrdersDirectoriesFirst(t *testing.T) {
	store := newTestRepoStore(t)
	ctx := context.Background()
	repo := seedRepo(t, store)
	seedTree(t, store, repo.ID)

	root, err := store.ListChildren(ctx, repo.ID, "")
	require.NoError(t, err)
	require.Len(t, root, 3)
	assert.Equal(t, DirEntry{Name: "docs", IsDirectory: true}, root[0])
	assert.Equal(t, DirEntry{Name: "src", IsDirectory: true}, root[1])
	assert.Equal(t, DirEntry{Name: "README.md", IsDirectory: false}, root[2])

	sub, err := store.ListChildren(ctx, repo.ID, "src")
	require.NoError(t, err)
	require.Len(t, sub, 2)
	assert.Equal(t, "utils", sub[0].Name)
	assert.Equal(t, "main.py", sub[1].Name)

	empty, err := store.ListChildren(ctx, repo.ID, "no/such/dir")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestListPathsIsSorted(t *testing.T) {
	store := newTestRepoStore(t)
	ctx := context.Background()
	repo := seedRepo(t, store)
	seedTree(t, store, repo.ID)

	paths, err := store.ListPaths(ctx, repo.ID)
	require.NoError(t, err)
	require.Len(t, paths, 7)
	for i := 1; i < len(paths); i++ {
		assert.Less(t, paths[i-1].Path, paths[i].Path)
	}
}

func TestGetFile(t *testing.T) {
	store := newTestRepoStore(t)
	ctx := context.Background()
	repo := seedRepo(t, store)
	seedTree(t, store, repo.ID)

	f, err := store.GetFile(ctx, repo.ID, "src/main.py")
	require.NoError(t, err)
	assert.False(t, f.IsDirectory)
	assert.Equal(t, "def main():\n    greet()\n", f.Content)

	dir, err := store.GetFile(ctx, repo.ID, "src")
	require.NoError(t, err)
	assert.True(t, dir.IsDirectory)
	assert.Empty(t, dir.Content)

	_, err = store.GetFile(ctx, repo.ID, "src/missing.py")
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestSearchFiles(t *testing.T) {
	store := newTestRepoStore(t)
	ctx := context.Background()
	repo := seedRepo(t, store)
	seedTree(t, store, repo.ID)

	matchPaths := func(matches []FileMatch) []string {
		var out []string
		for _, m := range matches {
			out = append(out, m.Path)
		}
		return out
	}

	t.Run("literal prefilter", func(t *testing.T) {
		matches, err := store.SearchFiles(ctx, repo.ID, SearchFilter{Literals: []string{"greet"}})
		require.NoError(t, err)
		assert.Equal(t, []string{"src/main.py", "src/utils/helpers.py"}, matchPaths(matches))
	})

	t.Run("all literals must match", func(t *testing.T) {
		matches, err := store.SearchFiles(ctx, repo.ID, SearchFilter{Literals: []string{"greet", "main"}})
		require.NoError(t, err)
		assert.Equal(t, []string{"src/main.py"}, matchPaths(matches))
	})

	t.Run("extension filter", func(t *testing.T) {
		matches, err := store.SearchFiles(ctx, repo.ID, SearchFilter{Literals: []string{"greet"}, Extension: ".md"})
		require.NoError(t, err)
		assert.Empty(t, matches)
	})

	t.Run("name pattern", func(t *testing.T) {
		matches, err := store.SearchFiles(ctx, repo.ID, SearchFilter{NamePattern: "help%"})
		require.NoError(t, err)
		assert.Equal(t, []string{"src/utils/helpers.py"}, matchPaths(matches))
	})

	t.Run("like wildcards are literal", func(t *testing.T) {
		// "%" in the needle must not match everything.
		matches, err := store.SearchFiles(ctx, repo.ID, SearchFilter{Literals: []string{"50% discount"}})
		require.NoError(t, err)
		assert.Equal(t, []string{"docs/guide.md"}, matchPaths(matches))

		matches, err = store.SearchFiles(ctx, repo.ID, SearchFilter{Literals: []string{"50%X"}})
		require.NoError(t, err)
		assert.Empty(t, matches)

		// "_" likewise matches only itself.
		matches, err = store.SearchFiles(ctx, repo.ID, SearchFilter{Literals: []string{"discount_code"}})
		require.NoError(t, err)
		assert.Equal(t, []string{"docs/guide.md"}, matchPaths(matches))

		matches, err = store.SearchFiles(ctx, repo.ID, SearchFilter{Literals: []string{"discountXcode"}})
		require.NoError(t, err)
		assert.Empty(t, matches)
	})

	t.Run("no filters scans the repo", func(t *testing.T) {
		matches, err := store.SearchFiles(ctx, repo.ID, SearchFilter{})
		require.NoError(t, err)
		assert.Len(t, matches, 4)
	})
}

func TestEscapeLike(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"plain", "plain"},
		{"50%", `50\%`},
		{"a_b", `a\_b`},
		{`back\slash`, `back\\slash`},
		{`%_\`, `\%\_\\`},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, escapeLike(tt.in))
	}
}
