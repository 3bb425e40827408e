package sandbox

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/falconlabs/falcon/pkg/log"
	"github.com/falconlabs/falcon/pkg/types"
)

// Remote provisions sandboxes on a Daytona-compatible provider over its REST
// API and clones inside them, so nothing touches the local filesystem.
type Remote struct {
	// BaseURL is the provider API root, overridable for tests
	BaseURL string

	// APIKey authenticates against the provider
	APIKey string

	// CodexAPIKey is injected into each sandbox's environment so the agent
	// CLI can authenticate from inside it
	CodexAPIKey string

	// HTTP is the underlying client (allows custom configuration)
	HTTP *http.Client

	logger zerolog.Logger
}

// NewRemote creates a remote sandbox controller
func NewRemote(baseURL, apiKey, codexAPIKey string) *Remote {
	return &Remote{
		BaseURL:     baseURL,
		APIKey:      apiKey,
		CodexAPIKey: codexAPIKey,
		HTTP: &http.Client{
			Timeout: 120 * time.Second,
		},
		logger: log.WithComponent("sandbox"),
	}
}

// remoteWorkingDir is where the clone lands inside a provider sandbox.
const remoteWorkingDir = "/workspace/repo"

type createSandboxRequest struct {
	Language         string            `json:"language"`
	EnvVars          map[string]string `json:"env_vars,omitempty"`
	AutoStopInterval int               `json:"auto_stop_interval"`
}

type createSandboxResponse struct {
	ID string `json:"id"`
}

type execRequest struct {
	Command string `json:"command"`
}

type execResponse struct {
	ExitCode int    `json:"exit_code"`
	Result   string `json:"result"`
}

// Create provisions a sandbox and shallow-clones the branch inside it. A
// failed clone destroys the sandbox before returning AcquisitionError.
func (r *Remote) Create(ctx context.Context, url, branch string) (*types.Sandbox, error) {
	var created createSandboxResponse
	err := r.post(ctx, "/sandbox", createSandboxRequest{
		Language:         "python",
		EnvVars:          map[string]string{"CODEX_API_KEY": r.CodexAPIKey},
		AutoStopInterval: 30,
	}, &created)
	if err != nil {
		return nil, &types.AcquisitionError{Err: err}
	}

	sb := &types.Sandbox{
		ID:         created.ID,
		WorkingDir: remoteWorkingDir,
		Kind:       types.SandboxKindRemote,
	}

	clone := fmt.Sprintf("git clone --depth=1 -b %s %s %s", branch, url, remoteWorkingDir)
	var execRes execResponse
	err = r.post(ctx, "/sandbox/"+created.ID+"/toolbox/process/execute", execRequest{Command: clone}, &execRes)
	if err != nil {
		r.Destroy(ctx, sb)
		return nil, &types.AcquisitionError{Err: err}
	}
	if execRes.ExitCode != 0 {
		r.Destroy(ctx, sb)
		return nil, &types.AcquisitionError{
			Stderr: execRes.Result,
			Err:    fmt.Errorf("clone exited %d", execRes.ExitCode),
		}
	}

	r.logger.Info().Str("url", url).Str("branch", branch).Str("sandbox_id", created.ID).Msg("Cloned repository in remote sandbox")
	return sb, nil
}

// Destroy deletes the provider sandbox. Provider errors are logged, not
// returned: the provider auto-stops idle sandboxes, so a failed delete only
// delays reclamation.
func (r *Remote) Destroy(ctx context.Context, sb *types.Sandbox) error {
	if sb == nil || sb.ID == "" {
		return nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, r.BaseURL+"/sandbox/"+sb.ID, nil)
	if err != nil {
		return nil
	}
	req.Header.Set("Authorization", "Bearer "+r.APIKey)

	resp, err := r.HTTP.Do(req)
	if err != nil {
		r.logger.Warn().Err(err).Str("sandbox_id", sb.ID).Msg("Failed to destroy remote sandbox")
		return nil
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		r.logger.Warn().Int("status", resp.StatusCode).Str("body", string(body)).
			Str("sandbox_id", sb.ID).Msg("Remote sandbox destroy rejected")
		return nil
	}
	r.logger.Info().Str("sandbox_id", sb.ID).Msg("Destroyed remote sandbox")
	return nil
}

func (r *Remote) post(ctx context.Context, path string, payload, target any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+r.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("sandbox provider returned %d: %s", resp.StatusCode, respBody)
	}
	if target == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(target)
}
