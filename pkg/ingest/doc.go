/*
Package ingest loads git repositories into the virtual filesystem.

	URL → git clone --depth 1 → walk → filter → batch insert → cleanup

The clone lives in a temp directory that is removed on every exit path;
after ingestion only the database holds the repository's data.

# Filtering

Three fixed skip-sets keep junk out of the store: directory names
(dependency caches, build outputs, VCS metadata) are pruned before
descent, lockfiles are skipped by exact name, and binary formats are
skipped by extension. Whatever survives is still dropped when it exceeds
the size cap or fails UTF-8 decoding, so every stored file row is
readable text.

# Row Derivation

Paths are repo-relative with forward slashes on every host OS. Each kept
directory and file becomes one row:

	(repo_id, path, name, extension, parent_path, depth, is_directory, content)

Root-level entries have parent_path "" and depth 1; directories carry
NULL content and extension. Dotfiles such as .gitignore count as having
no extension.

# Dedup and Retry

A ready repo with the same URL short-circuits to already_exists. An
errored row is deleted and replaced on the next attempt; a row still in
status ingesting rejects concurrent requests with a conflict.

# See Also

  - pkg/storage: the repo store schema and bulk insert path
  - pkg/shell: the query shapes the schema serves
*/
package ingest
