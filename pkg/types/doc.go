/*
Package types defines the core data structures used throughout Falcon.

This package contains the domain model shared by every other package:
wikis and their generation jobs, chat conversations, ingested repositories
and their virtual filesystem rows, progress events, and the error taxonomy
the HTTP boundary maps onto status codes.

# Core Types

Wiki generation:
  - Wiki: One generated (or in-progress) wiki for a repository branch
  - WikiStatus: queued → cloning → analyzing → generating → indexing → completed (or failed)
  - Job: Durable queued work driving one wiki through the pipeline
  - JobStatus: queued, running, completed, failed, cancelled
  - WikiPage: Page index row populated from the manifest

Chat:
  - Conversation: Groups the messages exchanged about one wiki
  - Message: One append-only turn (user or assistant)

Ingestion:
  - Repo: An ingested repository (ingesting → ready, or error)
  - FileRecord: One row of the virtual filesystem backing the shell tools

Progress:
  - Event: Ephemeral bus notification (status_change, page_complete, complete, error)

External contracts:
  - RepoMetadata: Source-host metadata (default branch, languages, latest commit)
  - Sandbox: Ephemeral working directory holding a shallow clone
  - AgentResult / AgentEvent: Captured output of one external agent invocation

# Error Taxonomy

Sentinels ErrNotFound, ErrInvalidInput and ErrConflict are matched with
errors.Is at the API boundary. Structured errors carry diagnostics from
external collaborators:

  - AcquisitionError: clone or sandbox provider failure (retryable)
  - SourceHostError: non-success source-host API response (retryable)
  - AgentError: external agent failure or timeout (retryable)
  - ExecutionError: tool dispatch failure, rendered into the agent transcript

Pipeline-internal errors mark the owning job for retry; after max attempts
both the job and its wiki transition to failed with the last error message.
*/
package types
