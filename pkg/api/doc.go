/*
Package api implements the Falcon HTTP API server.

The api package is the only external interface of the system: the frontend
talks to it for wiki generation, wiki browsing, Q&A chat, and repository
exploration. It translates HTTP requests into service calls and streams
long-running work back to the client as Server-Sent Events.

# Architecture

The server sits between clients and the service layer:

	┌──────────────────────── CLIENT (frontend) ─────────────────────┐
	│                                                                 │
	│   fetch JSON                 EventSource / fetch-stream (SSE)   │
	└───────┬─────────────────────────────┬──────────────────────────┘
	        │                             │
	┌───────▼─────────────────────────────▼──────────────────────────┐
	│                    HTTP API Server (pkg/api)                    │
	│  - CORS + metrics middleware                                    │
	│  - Request decoding and validation                              │
	│  - Error taxonomy → status codes                                │
	│  - SSE framing (event: type / data: json)                       │
	└───┬───────────┬───────────┬───────────┬───────────┬────────────┘
	    │           │           │           │           │
	┌───▼────┐ ┌────▼─────┐ ┌───▼────┐ ┌────▼────┐ ┌────▼─────┐
	│ wiki   │ │ chat     │ │ event  │ │ ingest  │ │ agent    │
	│ service│ │ service  │ │ bus    │ │         │ │ loop     │
	└────────┘ └──────────┘ └────────┘ └─────────┘ └──────────┘

# Endpoints

Wiki generation:
  - POST /api/wikis: Enroll a GitHub repo for wiki generation
  - GET /api/wikis: Find wikis by owner/repo
  - GET /api/wikis/{id}: Get one wiki record
  - GET /api/wikis/{id}/status: Generation phase and page progress
  - GET /api/wikis/{id}/manifest: Raw manifest.json (completed wikis only)
  - GET /api/wikis/{id}/pages: Page listing from the index
  - GET /api/wikis/{id}/pages/{slug}: One page with parsed frontmatter
  - DELETE /api/wikis/{id}: Remove a wiki and its storage
  - GET /api/wikis/{id}/events: SSE progress stream

Wiki chat:
  - POST /api/wikis/{id}/chat: SSE answer stream with page context
  - GET /api/wikis/{id}/chat/{conversation}: Conversation transcript

Repository exploration:
  - POST /repos: Clone and index a git repo
  - GET /repos: List ingested repos
  - GET /repos/{id}: Repo details with file count
  - DELETE /repos/{id}: Remove a repo and its files
  - POST /repos/{id}/chat: SSE agentic exploration stream

Operational:
  - GET /health, /api/health: Liveness plus active job count
  - GET /ready: Component registry readiness (deploy probes)
  - GET /api/ready: Live store connectivity checks
  - GET /metrics: Prometheus metrics

# Server-Sent Events

All three streaming endpoints use the same framing:

	event: <type>
	data: <json>

Each frame is flushed as soon as it is written. The events stream ends on
a terminal complete or error event; chat streams end when the service
closes the frame channel. Streaming responses carry Cache-Control:
no-cache and X-Accel-Buffering: no so proxies pass frames through
unbuffered.

# Error Responses

Errors are JSON objects with a single detail field:

	{"detail": "Wiki not found"}

The storage error taxonomy maps onto status codes: invalid input is 400,
not found is 404, conflict is 409, anything else is a logged 500 with a
generic detail.

# Usage

Creating and starting the server:

	srv := api.NewServer(api.Deps{
		Wikis:      wikiService,
		Chat:       chatService,
		Ingestor:   ingestor,
		Agent:      agentLoop,
		Bus:        bus,
		WikiStore:  wikiStore,
		RepoStore:  repoStore,
		ActiveJobs: orchestrator.ActiveJobs,
		AppName:    cfg.AppName,
		Version:    cfg.AppVersion,
	})

	go func() {
		if err := srv.Start(cfg.HTTPAddr); err != nil {
			log.Fatal(err)
		}
	}()

	// On shutdown:
	srv.Stop(ctx)

# Integration Points

This package integrates with:

  - pkg/service: Wiki lifecycle and chat orchestration
  - pkg/ingest: Repository cloning and indexing
  - pkg/agent: Tool-calling exploration loop
  - pkg/events: Per-wiki progress fan-out
  - pkg/storage: Direct reads for the repo surface
  - pkg/metrics: Request counters and latency histograms
*/
package api
