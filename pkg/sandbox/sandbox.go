package sandbox

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/falconlabs/falcon/pkg/config"
	"github.com/falconlabs/falcon/pkg/log"
	"github.com/falconlabs/falcon/pkg/types"
)

// Controller acquires and releases working directories holding a shallow
// clone of the target branch. The pipeline must call Destroy on every
// sandbox it creates, on all exit paths.
type Controller interface {
	Create(ctx context.Context, url, branch string) (*types.Sandbox, error)
	Destroy(ctx context.Context, sb *types.Sandbox) error
}

// NewController picks the sandbox variant from configuration: the remote
// provider when use_daytona is set, a local temp directory otherwise.
func NewController(cfg *config.Settings) Controller {
	if cfg.UseDaytona {
		return NewRemote(cfg.DaytonaAPIURL, cfg.DaytonaAPIKey, cfg.CodexAPIKey)
	}
	return NewLocal()
}

// Local clones into a scoped temp directory on this host using the external
// git client.
type Local struct {
	// Git is the git binary to invoke
	Git string

	logger zerolog.Logger
}

// NewLocal creates a local sandbox controller
func NewLocal() *Local {
	return &Local{
		Git:    "git",
		logger: log.WithComponent("sandbox"),
	}
}

// Create makes a temp directory and shallow-clones the branch into
// <tmpdir>/repo. On clone failure the partial directory is removed and an
// AcquisitionError carrying git's stderr is returned.
func (l *Local) Create(ctx context.Context, url, branch string) (*types.Sandbox, error) {
	tmpdir, err := os.MkdirTemp("", "falcon_")
	if err != nil {
		return nil, &types.AcquisitionError{Err: err}
	}
	repoDir := filepath.Join(tmpdir, "repo")

	cmd := exec.CommandContext(ctx, l.Git, "clone", "--depth=1", "-b", branch, url, repoDir)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		os.RemoveAll(tmpdir)
		return nil, &types.AcquisitionError{Stderr: stderr.String(), Err: err}
	}

	l.logger.Info().Str("url", url).Str("branch", branch).Str("dir", repoDir).Msg("Cloned repository")
	return &types.Sandbox{
		ID:         tmpdir, // the scope to remove on Destroy
		WorkingDir: repoDir,
		Kind:       types.SandboxKindLocal,
	}, nil
}

// Destroy removes the sandbox's temp directory. Removal errors are logged,
// not returned: a leaked temp directory must not fail the pipeline.
func (l *Local) Destroy(_ context.Context, sb *types.Sandbox) error {
	if sb == nil || sb.ID == "" {
		return nil
	}
	if err := os.RemoveAll(sb.ID); err != nil {
		l.logger.Warn().Err(err).Str("dir", sb.ID).Msg("Failed to clean up local sandbox")
		return nil
	}
	l.logger.Info().Str("dir", sb.ID).Msg("Cleaned up local sandbox")
	return nil
}
