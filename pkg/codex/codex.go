package codex

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/falconlabs/falcon/pkg/log"
	"github.com/falconlabs/falcon/pkg/metrics"
	"github.com/falconlabs/falcon/pkg/types"
)

// Invocation describes one agent run. The prompt is passed as a single
// argument; the agent explores WorkingDir on its own.
type Invocation struct {
	WorkingDir       string
	Prompt           string
	OutputSchemaPath string
	Timeout          time.Duration // 0 means the runner's default
}

// Runner invokes the external codex CLI in non-interactive mode and parses
// its JSON Lines event stream. Each Run is independent; nothing is shared
// across invocations beyond configuration.
type Runner struct {
	// Binary is the agent executable, overridable for tests
	Binary string

	// APIKey is forwarded to the child as CODEX_API_KEY when set
	APIKey string

	// Timeout is the default wall-clock budget per invocation
	Timeout time.Duration

	logger zerolog.Logger
}

// NewRunner creates a codex runner
func NewRunner(apiKey string, timeout time.Duration) *Runner {
	return &Runner{
		Binary:  "codex",
		APIKey:  apiKey,
		Timeout: timeout,
		logger:  log.WithComponent("codex"),
	}
}

// Run executes the agent and collects its event stream. On timeout the child
// is killed and the events collected so far are returned with ExitCode -1
// and Stderr "Timeout"; the caller decides whether that fails its phase. An
// error is returned only when the invocation itself cannot proceed (missing
// binary, cancelled context, unreadable pipe).
func (r *Runner) Run(ctx context.Context, inv Invocation) (*types.AgentResult, error) {
	timeout := inv.Timeout
	if timeout == 0 {
		timeout = r.Timeout
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	args := []string{"exec", "--json", "--full-auto", "--sandbox", "workspace-write"}
	if inv.OutputSchemaPath != "" {
		args = append(args, "--output-schema", inv.OutputSchemaPath)
	}
	args = append(args, inv.Prompt)

	cmd := exec.CommandContext(runCtx, r.Binary, args...)
	cmd.Dir = inv.WorkingDir
	cmd.Env = os.Environ()
	if r.APIKey != "" {
		cmd.Env = append(cmd.Env, "CODEX_API_KEY="+r.APIKey)
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}

	r.logger.Info().Str("dir", inv.WorkingDir).Str("prompt", truncate(inv.Prompt, 100)).Msg("Running codex")
	timer := metrics.NewTimer()

	if err := cmd.Start(); err != nil {
		if errors.Is(err, exec.ErrNotFound) || errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("codex CLI not found; install with: npm install -g @openai/codex")
		}
		return nil, err
	}

	var events []types.AgentEvent
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var event types.AgentEvent
		if err := json.Unmarshal([]byte(line), &event); err != nil {
			r.logger.Warn().Str("line", truncate(line, 200)).Msg("Non-JSON codex output")
			continue
		}
		events = append(events, event)
	}
	scanErr := scanner.Err()
	waitErr := cmd.Wait()
	timer.ObserveDuration(metrics.CodexDuration)

	if runCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
		r.logger.Error().Dur("timeout", timeout).Msg("Codex timed out")
		metrics.AgentRuns.WithLabelValues("timeout").Inc()
		return &types.AgentResult{ExitCode: -1, Events: events, Stderr: "Timeout"}, nil
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if scanErr != nil {
		return nil, scanErr
	}

	exitCode := 0
	if waitErr != nil {
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			exitCode = exitErr.ExitCode()
		} else {
			return nil, waitErr
		}
	}

	result := &types.AgentResult{
		ExitCode:     exitCode,
		Events:       events,
		FinalMessage: extractFinalMessage(events),
		Stderr:       stderr.String(),
	}
	outcome := "success"
	if exitCode != 0 {
		outcome = "error"
	}
	metrics.AgentRuns.WithLabelValues(outcome).Inc()
	r.logger.Info().Int("exit_code", exitCode).Int("events", len(events)).Msg("Codex finished")
	return result, nil
}

// extractFinalMessage returns the text of the last completed message item,
// falling back to every completed item's text joined by newlines.
func extractFinalMessage(events []types.AgentEvent) string {
	for i := len(events) - 1; i >= 0; i-- {
		e := events[i]
		if e.Type == "item.completed" && e.Item != nil && e.Item.ItemType == "message" {
			return e.Item.Text
		}
	}
	var parts []string
	for _, e := range events {
		if e.Type == "item.completed" && e.Item != nil && e.Item.Text != "" {
			parts = append(parts, e.Item.Text)
		}
	}
	return strings.Join(parts, "\n")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
