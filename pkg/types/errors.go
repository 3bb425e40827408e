package types

import (
	"errors"
	"fmt"
)

// Sentinel errors mapped to HTTP status codes at the API boundary.
var (
	// ErrNotFound indicates the requested entity does not exist (404).
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput indicates a request that fails validation (400).
	ErrInvalidInput = errors.New("invalid input")

	// ErrConflict indicates the entity is not in a state that permits the
	// requested action (409).
	ErrConflict = errors.New("conflict")
)

// AcquisitionError reports a failed sandbox acquisition (clone failure,
// provider error). Carries the underlying stderr for diagnostics.
type AcquisitionError struct {
	Stderr string
	Err    error
}

func (e *AcquisitionError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("sandbox acquisition failed: %s", e.Stderr)
	}
	return fmt.Sprintf("sandbox acquisition failed: %v", e.Err)
}

func (e *AcquisitionError) Unwrap() error { return e.Err }

// SourceHostError reports a non-success response from the source-hosting API.
type SourceHostError struct {
	StatusCode int
	Body       string
}

func (e *SourceHostError) Error() string {
	return fmt.Sprintf("source host returned %d: %s", e.StatusCode, e.Body)
}

// AgentError reports a failed external agent invocation. Timeout is set when
// the child was killed after exceeding its deadline.
type AgentError struct {
	ExitCode int
	Stderr   string
	Timeout  bool
}

func (e *AgentError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("agent timed out (exit %d)", e.ExitCode)
	}
	return fmt.Sprintf("agent exited %d: %s", e.ExitCode, e.Stderr)
}

// ExecutionError reports a tool dispatch failure. The agent loop renders it
// into the transcript as text rather than aborting the conversation.
type ExecutionError struct {
	Tool string
	Err  error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("Error executing %s: %v", e.Tool, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }
