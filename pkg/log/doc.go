/*
Package log provides structured logging for Falcon using zerolog.

The log package wraps the zerolog library to provide JSON-structured logging
with component-specific loggers, configurable log levels, and helper functions
for common logging patterns. All logs include timestamps and support filtering
by severity level for production debugging.

# Core Components

Global Logger:
  - Package-level zerolog.Logger instance
  - Initialized once via log.Init()
  - Thread-safe concurrent writes

Log Levels:
  - Debug: Detailed debugging information
  - Info: General informational messages (default production level)
  - Warn: Warning messages (potential issues)
  - Error: Error messages (operation failed)
  - Fatal: Critical errors (process exits)

Context Loggers:
  - WithComponent: Add component name to all logs
  - WithWikiID: Add wiki ID context
  - WithJobID: Add job ID context
  - WithRepoID: Add repo ID context

# Usage

Initializing the Logger:

	import "github.com/falconlabs/falcon/pkg/log"

	// JSON output (production)
	log.Init(log.Config{
		Level:      log.InfoLevel,
		JSONOutput: true,
		Output:     os.Stdout,
	})

	// Console output (development)
	log.Init(log.Config{
		Level:      log.DebugLevel,
		JSONOutput: false,
		Output:     os.Stdout,
	})

Simple Logging:

	log.Info("Orchestrator started")
	log.Warn("Sandbox destroy failed; leaking remote sandbox")
	log.Error("Failed to open database")

Structured Logging:

	log.Logger.Info().
		Str("wiki_id", wiki.ID).
		Int("total_pages", wiki.TotalPages).
		Msg("Generation complete")

Component Loggers:

	orchLog := log.WithComponent("orchestrator")
	orchLog.Info().Str("job_id", job.ID).Msg("Claimed job")
	orchLog.Error().Err(err).Msg("Job failed")

# Integration Points

This package integrates with:

  - pkg/queue: Logs job claiming, retries and crash recovery
  - pkg/pipeline: Logs phase transitions and wave progress
  - pkg/ingest: Logs clone, walk and batch-load progress
  - pkg/codex: Logs agent invocations and unparseable event lines
  - pkg/api: Logs request failures and SSE subscriber churn

# Output Examples

JSON format (production):

	{"level":"info","component":"orchestrator","job_id":"6f1c…","time":"2026-02-11T10:30:00Z","message":"Claimed job"}

Console format (development):

	10:30:00 INF Claimed job component=orchestrator job_id=6f1c…
*/
package log
