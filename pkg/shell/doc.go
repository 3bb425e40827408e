// Package shell implements three virtual shell tools over the ingested
// filesystem rows. Together they replicate the handful of commands an
// engineer reaches for when exploring an unfamiliar repository:
//
//	list_files  → ls, find, rg --files   ("What files exist?")
//	read_file   → cat, head, tail, sed -n ("Show me file content")
//	search_code → rg                      ("Where is this pattern?")
//
// The model calls these as if running shell commands; under the hood every
// call is a database query.
//
// # Query Shapes
//
// Each tool maps to one index on the files table. Directory listing is an
// exact match on (repo_id, parent_path). Globbing fetches the repo's path
// list and filters in process, where ** can span path segments (including
// zero, so **/*.py is exactly the .py extension set). Content search is a
// hybrid: literal runs extracted from the regex prefilter candidates with
// indexed substring predicates, then the compiled regex decides line
// matches, so model-written patterns with \w, \d, and \s work unchanged.
//
// # Output Contract
//
// Every tool returns one text blob shaped for a model transcript. Results
// are capped (200 listing entries, 500 file lines, 50 search matches) and
// overflow appends a notice telling the model to narrow its query. Missing
// paths, empty matches, and invalid regexes are reported as text in the
// same blob; errors are reserved for store failures.
//
// # See Also
//
//   - pkg/storage: the schema and indexes behind each query shape
//   - pkg/agent: the loop that dispatches these tools
package shell
