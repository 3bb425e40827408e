package codex

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/falconlabs/falcon/pkg/types"
)

// fakeCodex writes a shell script standing in for the codex binary and
// returns its path.
func fakeCodex(t *testing.T, script string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "codex")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+script), 0o755))
	return path
}

func newTestRunner(t *testing.T, script string) *Runner {
	t.Helper()
	r := NewRunner("sk-test", 30*time.Second)
	r.Binary = fakeCodex(t, script)
	return r
}

func TestRunParsesEventStream(t *testing.T) {
	r := newTestRunner(t, `
echo '{"type":"thread.started","thread_id":"t1"}'
echo 'npm WARN something unrelated'
echo '{"type":"item.completed","item":{"id":"i1","item_type":"reasoning","text":"Exploring the repo"}}'
echo '{"type":"item.completed","item":{"id":"i2","item_type":"message","text":"All pages written."}}'
exit 0
`)

	result, err := r.Run(context.Background(), Invocation{WorkingDir: t.TempDir(), Prompt: "write the wiki"})
	require.NoError(t, err)

	assert.Equal(t, 0, result.ExitCode)
	// the non-JSON line is skipped, not surfaced
	require.Len(t, result.Events, 3)
	assert.Equal(t, "thread.started", result.Events[0].Type)
	assert.Equal(t, "All pages written.", result.FinalMessage)
}

func TestRunCommandLine(t *testing.T) {
	r := newTestRunner(t, `
dir="$(dirname "$0")"
printf '%s\n' "$@" > "$dir/args"
printf '%s' "$CODEX_API_KEY" > "$dir/key"
pwd > "$dir/cwd"
`)
	workDir := t.TempDir()

	_, err := r.Run(context.Background(), Invocation{
		WorkingDir:       workDir,
		Prompt:           "analyze this repository",
		OutputSchemaPath: "/tmp/schema.json",
	})
	require.NoError(t, err)

	scriptDir := filepath.Dir(r.Binary)
	args, err := os.ReadFile(filepath.Join(scriptDir, "args"))
	require.NoError(t, err)
	assert.Equal(t, []string{
		"exec", "--json", "--full-auto", "--sandbox", "workspace-write",
		"--output-schema", "/tmp/schema.json",
		"analyze this repository",
	}, strings.Split(strings.TrimRight(string(args), "\n"), "\n"))

	key, err := os.ReadFile(filepath.Join(scriptDir, "key"))
	require.NoError(t, err)
	assert.Equal(t, "sk-test", string(key))

	cwd, err := os.ReadFile(filepath.Join(scriptDir, "cwd"))
	require.NoError(t, err)
	wantDir, err := filepath.EvalSymlinks(workDir)
	require.NoError(t, err)
	gotDir, err := filepath.EvalSymlinks(strings.TrimSpace(string(cwd)))
	require.NoError(t, err)
	assert.Equal(t, wantDir, gotDir)
}

func TestRunNonZeroExit(t *testing.T) {
	r := newTestRunner(t, `
echo '{"type":"turn.failed"}'
echo 'model refused' >&2
exit 2
`)

	result, err := r.Run(context.Background(), Invocation{WorkingDir: t.TempDir(), Prompt: "p"})
	require.NoError(t, err)

	assert.Equal(t, 2, result.ExitCode)
	assert.Contains(t, result.Stderr, "model refused")
	require.Len(t, result.Events, 1)
}

func TestRunTimeoutKillsChild(t *testing.T) {
	r := newTestRunner(t, `
echo '{"type":"item.completed","item":{"item_type":"reasoning","text":"partial"}}'
exec sleep 30
`)

	start := time.Now()
	result, err := r.Run(context.Background(), Invocation{
		WorkingDir: t.TempDir(),
		Prompt:     "p",
		Timeout:    200 * time.Millisecond,
	})
	require.NoError(t, err)

	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Equal(t, -1, result.ExitCode)
	assert.Equal(t, "Timeout", result.Stderr)
	// events emitted before the deadline are preserved
	require.Len(t, result.Events, 1)
	assert.Equal(t, "partial", result.Events[0].Item.Text)
}

func TestRunParentCancellation(t *testing.T) {
	r := newTestRunner(t, `exec sleep 30`)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	result, err := r.Run(ctx, Invocation{WorkingDir: t.TempDir(), Prompt: "p"})
	assert.Nil(t, result)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRunMissingBinary(t *testing.T) {
	r := NewRunner("", time.Second)
	r.Binary = filepath.Join(t.TempDir(), "no-such-codex")

	result, err := r.Run(context.Background(), Invocation{WorkingDir: t.TempDir(), Prompt: "p"})
	assert.Nil(t, result)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "codex CLI not found")
	assert.Contains(t, err.Error(), "npm install -g @openai/codex")
}

func TestExtractFinalMessage(t *testing.T) {
	message := func(text string) types.AgentEvent {
		return types.AgentEvent{Type: "item.completed", Item: &types.AgentEventItem{ItemType: "message", Text: text}}
	}
	reasoning := func(text string) types.AgentEvent {
		return types.AgentEvent{Type: "item.completed", Item: &types.AgentEventItem{ItemType: "reasoning", Text: text}}
	}

	tests := []struct {
		name   string
		events []types.AgentEvent
		want   string
	}{
		{
			name:   "last message wins",
			events: []types.AgentEvent{message("first"), reasoning("thinking"), message("second")},
			want:   "second",
		},
		{
			name:   "falls back to joined completed items",
			events: []types.AgentEvent{reasoning("step one"), reasoning("step two")},
			want:   "step one\nstep two",
		},
		{
			name: "ignores events without items",
			events: []types.AgentEvent{
				{Type: "thread.started"},
				{Type: "item.completed"},
				message("done"),
			},
			want: "done",
		},
		{
			name: "no events",
			want: "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, extractFinalMessage(tt.events))
		})
	}
}
