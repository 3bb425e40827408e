// Package codex wraps the external codex CLI agent in non-interactive mode.
//
// The runner shells out to `codex exec --json --full-auto --sandbox
// workspace-write` inside a repository working directory and parses the JSON
// Lines event stream the agent emits on stdout. Lines that are not JSON
// (npm warnings, stray prints) are logged and skipped rather than failing
// the run.
//
// The final assistant message is the text of the last completed message
// item; when the stream ends without one, the texts of all completed items
// are joined as a best-effort transcript.
//
// Timeouts are results, not errors: the child is killed and the caller
// receives ExitCode -1 with the events collected so far, so a pipeline phase
// can fail the job with partial diagnostics. Only unrunnable invocations
// (missing binary, cancelled context) return an error.
package codex
