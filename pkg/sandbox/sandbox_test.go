package sandbox

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/falconlabs/falcon/pkg/types"
)

// initSourceRepo builds a one-commit git repository to clone from.
func initSourceRepo(t *testing.T) string {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not available")
	}
	dir := t.TempDir()
	run := func(args ...string) {
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		out, err := cmd.CombinedOutput()
		require.NoError(t, err, "git %v: %s", args, out)
	}
	run("init", "-b", "main")
	run("config", "user.email", "test@example.com")
	run("config", "user.name", "test")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("# fixture\n"), 0o644))
	run("add", "README.md")
	run("commit", "-m", "initial")
	return dir
}

func TestLocalCreateAndDestroy(t *testing.T) {
	src := initSourceRepo(t)
	local := NewLocal()
	ctx := context.Background()

	sb, err := local.Create(ctx, "file://"+src, "main")
	require.NoError(t, err)
	require.NotNil(t, sb)
	assert.Equal(t, types.SandboxKindLocal, sb.Kind)
	assert.Equal(t, filepath.Join(sb.ID, "repo"), sb.WorkingDir)

	// The clone actually landed.
	_, err = os.Stat(filepath.Join(sb.WorkingDir, "README.md"))
	require.NoError(t, err)

	require.NoError(t, local.Destroy(ctx, sb))
	_, err = os.Stat(sb.ID)
	assert.True(t, os.IsNotExist(err), "temp directory must be removed")

	// Destroy is safe to repeat.
	require.NoError(t, local.Destroy(ctx, sb))
	require.NoError(t, local.Destroy(ctx, nil))
}

func TestLocalCreateCloneFailure(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not available")
	}
	local := NewLocal()

	before, globErr := filepath.Glob(filepath.Join(os.TempDir(), "falcon_*"))
	require.NoError(t, globErr)

	missing := filepath.Join(t.TempDir(), "does-not-exist")
	_, err := local.Create(context.Background(), "file://"+missing, "main")

	var acqErr *types.AcquisitionError
	require.ErrorAs(t, err, &acqErr)
	assert.NotEmpty(t, acqErr.Stderr, "git's stderr must be captured")

	// The partially created temp directory was removed.
	after, globErr := filepath.Glob(filepath.Join(os.TempDir(), "falcon_*"))
	require.NoError(t, globErr)
	assert.ElementsMatch(t, before, after)
}
