/*
Package pipeline drives the five-phase wiki generation state machine.

Each wiki moves through the phases in order; every transition is persisted
before the next phase begins so crash recovery always observes a consistent
status:

	queued ──► cloning ──► analyzing ──► generating ──► indexing ──► completed
	              │             │              │             │
	              └─────────────┴──────┬───────┴─────────────┘
	                                   ▼
	                                failed (via orchestrator, after retries)

# Phases

	┌──────────────┬────────────────────────────────────────────────────────┐
	│ cloning      │ acquire sandbox (shallow clone), fetch source-host     │
	│              │ metadata, persist commit SHA + languages + description │
	│ analyzing    │ write analyzer AGENTS.md, one agent invocation, parse  │
	│              │ the returned documentation plan (stored raw)           │
	│ generating   │ write writer AGENTS.md, generate pages wave by wave,   │
	│              │ one agent invocation per page under a semaphore        │
	│ indexing     │ one agent invocation producing manifest.json; falls    │
	│              │ back to a plan-derived manifest on agent failure       │
	│ (persist)    │ copy manifest + page files into storage, replace the   │
	│              │ wiki_pages index rows, mark completed                  │
	└──────────────┴────────────────────────────────────────────────────────┘

# Waves

Planned pages are partitioned by section into three sequential waves
(architecture/unsectioned, then modules, then guides and API reference) so
later pages can cross-reference earlier ones. Within a wave, pages run
concurrently up to codex_max_concurrent. A page whose agent exits non-zero
is logged and counted (the attempt is spent); only an invocation that cannot
run at all aborts the phase. total_pages counts exactly the pages the waves
will attempt, so a completed wiki always shows completed_pages == total_pages.

# Events

Progress is published on the event bus as it happens:

	status_change {status}                      every phase entry
	page_complete {slug, completed, total}      per generated page
	complete      {wiki_id, total_pages}        terminal success

Failures do not publish from here: the orchestrator owns retry/fail policy
and emits the terminal error event.

# Directives

The agent directive bodies (AGENTS.md content for the analyzer and writer,
plus the Q&A framing used by chat) are embedded data under directives/, not
code. Prompt builders in this package carry the per-invocation parameters.

The sandbox is destroyed on every exit path, including cancellation.
*/
package pipeline
