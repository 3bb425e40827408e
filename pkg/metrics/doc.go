/*
Package metrics provides Prometheus metrics collection and exposition for Falcon.

The metrics package defines and registers all Falcon metrics using the
Prometheus client library, providing observability into the job queue, the
generation pipeline, external agent invocations, the event bus, and the HTTP
surface. Metrics are exposed on /metrics for scraping.

# Architecture

All metrics live in the default registry and are registered at package init,
so importing the package is enough to make them scrapeable:

	┌──────────────────── METRICS SYSTEM ──────────────────────┐
	│                                                           │
	│  ┌────────────────────────────────────────────┐           │
	│  │          Prometheus Registry               │           │
	│  │  - Global DefaultRegistry                  │           │
	│  │  - MustRegister at package init            │           │
	│  │  - Automatic Go runtime metrics            │           │
	│  └──────────────────┬─────────────────────────┘           │
	│                     │                                     │
	│  ┌──────────────────▼─────────────────────────┐           │
	│  │          Instrumented Components           │           │
	│  │                                            │           │
	│  │  Queue:    active jobs, retired jobs       │           │
	│  │  Pipeline: pages generated, agent runs,    │           │
	│  │            codex wall-clock                │           │
	│  │  Bus:      live subscriber count           │           │
	│  │  Chat:     tool calls by tool name         │           │
	│  │  API:      request count and latency       │           │
	│  └──────────────────┬─────────────────────────┘           │
	│                     │                                     │
	│  ┌──────────────────▼─────────────────────────┐           │
	│  │          GET /metrics (promhttp)           │           │
	│  └────────────────────────────────────────────┘           │
	└───────────────────────────────────────────────────────────┘

# Metrics Catalog

Job queue:
  - falcon_active_jobs (gauge): jobs currently running
  - falcon_jobs_total{status} (counter): jobs retired by final status

Pipeline:
  - falcon_pages_generated_total (counter): wiki pages written
  - falcon_agent_runs_total{outcome} (counter): codex invocations by outcome
  - falcon_codex_duration_seconds (histogram): codex wall-clock per run

Event bus:
  - falcon_event_subscribers (gauge): open event subscriptions

Chat:
  - falcon_tool_calls_total{tool} (counter): virtual shell tool invocations

API:
  - falcon_api_requests_total{method,status} (counter)
  - falcon_api_request_duration_seconds{method} (histogram)

# Usage

Exposing the endpoint:

	mux.Handle("GET /metrics", metrics.Handler())

Recording a timed operation:

	timer := metrics.NewTimer()
	result, err := runner.Run(ctx, inv)
	timer.ObserveDuration(metrics.CodexDuration)

Polling gauges from live components:

	collector := metrics.NewCollector(wikiStore, bus)
	collector.Start()
	defer collector.Stop()

The Collector samples JobCounter and SubscriberCounter implementations every
15 seconds rather than making those components push, which keeps the queue
and bus free of metrics plumbing.

# Health

The package also tracks component health for the readiness endpoint.
Components register once at startup and update their state as it changes:

	metrics.RegisterComponent("wiki_store", true, "")
	...
	metrics.UpdateComponent("wiki_store", false, "ping failed")

GetReadiness aggregates component states; wiki_store, repo_store, and
orchestrator are critical, so an unhealthy one flips overall readiness.

# See Also

  - pkg/api for the /metrics and /ready routes
  - pkg/storage and pkg/events for the polled gauge sources
*/
package metrics
