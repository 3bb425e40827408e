/*
Package storage provides SQLite-backed persistence for Falcon's wikis, jobs,
conversations, and ingested repositories.

The storage package implements two independent stores on top of database/sql
with the mattn/go-sqlite3 driver. WikiStore holds everything the generation
pipeline and chat surface need (wikis, jobs, page index, conversations,
messages); RepoStore holds ingested repositories as a virtual filesystem that
the shell tools query instead of touching disk.

# Architecture

Falcon uses two SQLite databases so wiki bookkeeping and bulk file content
never contend for the same write lock:

	┌──────────────────── SQLITE STORAGE ──────────────────────┐
	│                                                           │
	│  ┌──────────────────────┐   ┌──────────────────────┐     │
	│  │      WikiStore       │   │      RepoStore       │     │
	│  │  <dataDir>/falcon.db │   │  <dataDir>/repos.db  │     │
	│  ├──────────────────────┤   ├──────────────────────┤     │
	│  │ wikis                │   │ repos                │     │
	│  │ jobs                 │   │ files                │     │
	│  │ wiki_pages           │   │                      │     │
	│  │ conversations        │   │  (content indexed    │     │
	│  │ messages             │   │   for LIKE scans)    │     │
	│  └──────────────────────┘   └──────────────────────┘     │
	│                                                           │
	│  Pragmas on every connection:                             │
	│    - journal_mode=WAL   concurrent readers                │
	│    - foreign_keys=on    cascade deletes                   │
	│    - busy_timeout=5000  writers wait, not fail            │
	└───────────────────────────────────────────────────────────┘

Schema changes are plain SQL migrations applied in order at open time and
recorded in a _migrations table, so reopening a database is always a no-op.

# Core Components

WikiStore:
  - Wiki lifecycle: create (with its job, transactionally), status
    transitions with started_at/completed_at stamping, deletion with
    cascades
  - Job queue: atomic claim via UPDATE ... RETURNING, orphan recovery,
    retry bookkeeping, terminal failure that also fails the owning wiki
  - Page index: replace-all semantics so re-indexing stays idempotent
  - Conversations: append-only messages ordered by insertion

RepoStore:
  - Repo rows keyed by URL (unique), with live file counts
  - Virtual filesystem: one row per file or directory, paths always
    forward-slashed, parent_path/depth precomputed for directory listings
  - Search support: LIKE-based content prefilter with ESCAPE handling,
    extension and name-pattern filters

# Concurrency

A single UPDATE statement claims a job, so two workers can never claim the
same one:

	UPDATE jobs
	SET status = 'running', worker_id = ?, started_at = ?, attempts = attempts + 1
	WHERE id = (
	    SELECT id FROM jobs
	    WHERE status = 'queued' AND attempts < max_attempts
	    ORDER BY priority DESC, created_at ASC
	    LIMIT 1
	)
	RETURNING ...

completed_pages moves the same way (UPDATE ... RETURNING), so concurrent
page completions within a generation wave each observe a distinct value.

# Usage

Opening the stores:

	wikis, err := storage.OpenWikiStore(filepath.Join(dataDir, "falcon.db"))
	if err != nil {
	    return err
	}
	defer wikis.Close()

	repos, err := storage.OpenRepoStore(filepath.Join(dataDir, "repos.db"))
	if err != nil {
	    return err
	}
	defer repos.Close()

Enqueueing a wiki:

	wiki := &types.Wiki{ID: uuid.NewString(), Owner: "octocat", Repo: "hello-world", ...}
	job := &types.Job{ID: uuid.NewString(), Kind: types.JobKindWikiGeneration, WikiID: wiki.ID, ...}
	err := wikis.CreateWikiWithJob(ctx, wiki, job)

Worker loop:

	job, err := wikis.ClaimNextJob(ctx, workerID)
	if job == nil {
	    // queue empty, poll again later
	}

Searching ingested content:

	matches, err := repos.SearchFiles(ctx, repoID, storage.SearchFilter{
	    Literals:  []string{"handleRequest"},
	    Extension: ".go",
	})

# Integration Points

This package integrates with:

  - pkg/queue: claims, retries, completes, and recovers jobs
  - pkg/pipeline: status transitions, page counters, page index
  - pkg/service: wiki CRUD and conversation persistence
  - pkg/ingest: bulk file loading after a clone walk
  - pkg/shell: directory listings, globs, reads, and content search
  - pkg/api: health checks via Ping

# Data Integrity

  - wikis → jobs, wiki_pages, conversations → messages cascade on delete
  - repos → files cascade on delete
  - At most one non-failed wiki per (owner, repo, branch), enforced by a
    partial unique index
  - Failed jobs and their wikis are finalized in one transaction

# See Also

  - pkg/queue for the orchestrator that drives the job table
  - pkg/shell for the read-only tools built on RepoStore queries
*/
package storage
