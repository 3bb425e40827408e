package storage

// migration is one named, idempotent schema step. Names must sort in the
// order they should apply.
type migration struct {
	name string
	sql  string
}

// wikiMigrations defines the wiki database schema: wikis, their generation
// jobs, chat conversations and messages, and the page index.
var wikiMigrations = []migration{
	{
		name: "001_initial",
		sql: `
CREATE TABLE IF NOT EXISTS wikis (
    id              TEXT PRIMARY KEY,
    owner           TEXT NOT NULL,
    repo            TEXT NOT NULL,
    url             TEXT NOT NULL,
    branch          TEXT NOT NULL DEFAULT 'main',
    commit_sha      TEXT,
    status          TEXT NOT NULL DEFAULT 'queued',
    total_pages     INTEGER NOT NULL DEFAULT 0,
    completed_pages INTEGER NOT NULL DEFAULT 0,
    storage_path    TEXT NOT NULL,
    analysis_plan   TEXT,
    languages       TEXT,
    description     TEXT,
    error_message   TEXT,
    created_at      TIMESTAMP NOT NULL,
    started_at      TIMESTAMP,
    completed_at    TIMESTAMP
);

-- One live wiki per branch; failed attempts do not block a retry.
CREATE UNIQUE INDEX IF NOT EXISTS idx_wikis_owner_repo_branch
    ON wikis(owner, repo, branch) WHERE status != 'failed';

CREATE INDEX IF NOT EXISTS idx_wikis_created ON wikis(created_at);

CREATE TABLE IF NOT EXISTS jobs (
    id            TEXT PRIMARY KEY,
    kind          TEXT NOT NULL,
    wiki_id       TEXT NOT NULL REFERENCES wikis(id) ON DELETE CASCADE,
    status        TEXT NOT NULL DEFAULT 'queued',
    attempts      INTEGER NOT NULL DEFAULT 0,
    max_attempts  INTEGER NOT NULL DEFAULT 3,
    priority      INTEGER NOT NULL DEFAULT 0,
    worker_id     TEXT,
    error_message TEXT,
    created_at    TIMESTAMP NOT NULL,
    started_at    TIMESTAMP,
    completed_at  TIMESTAMP
);

-- Supports the atomic claim: queued jobs by priority then age.
CREATE INDEX IF NOT EXISTS idx_jobs_claim ON jobs(status, priority DESC, created_at ASC);

CREATE TABLE IF NOT EXISTS conversations (
    id         TEXT PRIMARY KEY,
    wiki_id    TEXT NOT NULL REFERENCES wikis(id) ON DELETE CASCADE,
    created_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS messages (
    id              TEXT PRIMARY KEY,
    conversation_id TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
    role            TEXT NOT NULL,
    content         TEXT NOT NULL,
    context_pages   TEXT,
    created_at      TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id, created_at);

CREATE TABLE IF NOT EXISTS wiki_pages (
    wiki_id    TEXT NOT NULL REFERENCES wikis(id) ON DELETE CASCADE,
    slug       TEXT NOT NULL,
    title      TEXT NOT NULL,
    section    TEXT NOT NULL DEFAULT '',
    sort_order INTEGER NOT NULL DEFAULT 0,
    summary    TEXT NOT NULL DEFAULT '',
    file_path  TEXT NOT NULL,
    PRIMARY KEY (wiki_id, slug)
);
`,
	},
}

// repoMigrations defines the ingestion database schema: repos and the
// virtual filesystem rows the shell tools query. Each index supports one
// tool query shape.
var repoMigrations = []migration{
	{
		name: "001_initial",
		sql: `
CREATE TABLE IF NOT EXISTS repos (
    id          TEXT PRIMARY KEY,
    url         TEXT NOT NULL UNIQUE,
    name        TEXT NOT NULL,
    status      TEXT NOT NULL DEFAULT 'ingesting',
    ingested_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS files (
    id           INTEGER PRIMARY KEY AUTOINCREMENT,
    repo_id      TEXT NOT NULL REFERENCES repos(id) ON DELETE CASCADE,
    path         TEXT NOT NULL,
    name         TEXT NOT NULL,
    extension    TEXT,
    parent_path  TEXT NOT NULL,
    depth        INTEGER NOT NULL,
    is_directory INTEGER NOT NULL DEFAULT 0,
    content      TEXT,
    UNIQUE (repo_id, path)
);

-- list_files directory mode: WHERE repo_id = ? AND parent_path = ?
CREATE INDEX IF NOT EXISTS idx_dir_listing ON files(repo_id, parent_path);

-- search_code name glob:    WHERE repo_id = ? AND name LIKE ?
CREATE INDEX IF NOT EXISTS idx_file_name ON files(repo_id, name);

-- search_code ext glob:     WHERE repo_id = ? AND extension = ?
CREATE INDEX IF NOT EXISTS idx_file_ext ON files(repo_id, extension);
`,
	},
}
