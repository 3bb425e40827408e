package shell

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/rs/zerolog"

	"github.com/falconlabs/falcon/pkg/log"
	"github.com/falconlabs/falcon/pkg/metrics"
	"github.com/falconlabs/falcon/pkg/storage"
	"github.com/falconlabs/falcon/pkg/types"
)

// Output caps keep tool results from flooding the model's context window.
const (
	maxListResults   = 200
	maxFileLines     = 500
	maxSearchMatches = 50
)

var (
	// literalRun pulls substring prefilters out of a regex; runs shorter
	// than three characters are useless for narrowing candidates.
	literalRun = regexp.MustCompile(`[a-zA-Z0-9_]{3,}`)

	// extGlob recognizes pure extension globs such as *.py, which hit the
	// extension index instead of a name scan.
	extGlob = regexp.MustCompile(`^\*(\.\w+)$`)
)

// Dispatcher executes the three virtual shell tools against the ingested
// file rows. Every tool returns a single text blob shaped for direct
// injection into a model transcript; "not found" outcomes are text, not
// errors. Errors are reserved for store failures.
type Dispatcher struct {
	store  *storage.RepoStore
	logger zerolog.Logger
}

// NewDispatcher creates a dispatcher over the repo store.
func NewDispatcher(store *storage.RepoStore) *Dispatcher {
	return &Dispatcher{store: store, logger: log.WithComponent("shell")}
}

// Execute routes a tool call by name, decoding the model-supplied argument
// map. Unknown tools are reported in the transcript rather than failing the
// conversation.
func (d *Dispatcher) Execute(ctx context.Context, repoID, name string, args map[string]any) (string, error) {
	metrics.ToolCalls.WithLabelValues(name).Inc()
	d.logger.Debug().Str("tool", name).Str("repo_id", repoID).Msg("Executing tool")

	switch name {
	case "list_files":
		return d.ListFiles(ctx, repoID, stringArg(args, "path"))
	case "read_file":
		return d.ReadFile(ctx, repoID, stringArg(args, "path"), intArg(args, "start_line"), intArg(args, "end_line"))
	case "search_code":
		return d.SearchCode(ctx, repoID, stringArg(args, "pattern"), stringArg(args, "glob"))
	default:
		return fmt.Sprintf("Unknown tool: %s", name), nil
	}
}

// ListFiles stands in for ls, find, and rg --files. A path containing * or ?
// switches to glob mode; anything else lists one directory level.
func (d *Dispatcher) ListFiles(ctx context.Context, repoID, path string) (string, error) {
	path = strings.Trim(path, "/")
	if path == "." {
		path = ""
	}

	if strings.ContainsAny(path, "*?") {
		return d.globFiles(ctx, repoID, path)
	}

	entries, err := d.store.ListChildren(ctx, repoID, path)
	if err != nil {
		return "", err
	}
	if len(entries) == 0 {
		target := path
		if target == "" {
			target = "."
		}
		return fmt.Sprintf("ls: cannot access '%s': No such file or directory", target), nil
	}

	lines := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDirectory {
			lines = append(lines, e.Name+"/")
		} else {
			lines = append(lines, e.Name)
		}
	}
	return strings.Join(lines, "\n"), nil
}

// globFiles fetches the repo's full path list and filters it here. A few
// thousand path strings is trivial to transfer, and doublestar gives **
// multi-segment semantics a SQL LIKE cannot express.
func (d *Dispatcher) globFiles(ctx context.Context, repoID, pattern string) (string, error) {
	paths, err := d.store.ListPaths(ctx, repoID)
	if err != nil {
		return "", err
	}

	var matched []storage.PathEntry
	for _, p := range paths {
		if ok, err := doublestar.Match(pattern, p.Path); err == nil && ok {
			matched = append(matched, p)
		}
	}
	if len(matched) == 0 {
		return "No files matching: " + pattern, nil
	}

	shown := len(matched)
	if shown > maxListResults {
		shown = maxListResults
	}
	lines := make([]string, 0, shown+1)
	for _, p := range matched[:shown] {
		if p.IsDirectory {
			lines = append(lines, p.Path+"/")
		} else {
			lines = append(lines, p.Path)
		}
	}
	if len(matched) > maxListResults {
		lines = append(lines, fmt.Sprintf("\n... %d more results. Narrow your glob.", len(matched)-maxListResults))
	}
	return strings.Join(lines, "\n"), nil
}

// ReadFile stands in for cat, head, tail, and sed -n. Lines are numbered and
// right-aligned so the model can cite them:
//
//	42 | def authenticate(user, password):
//	43 |     if not user:
//
// A negative start takes the last |start| lines; otherwise the slice is
// lines[start-1:end] with start defaulting to 1 and end to the last line.
func (d *Dispatcher) ReadFile(ctx context.Context, repoID, path string, startLine, endLine *int) (string, error) {
	path = strings.TrimPrefix(strings.Trim(path, "/"), "./")

	file, err := d.store.GetFile(ctx, repoID, path)
	if errors.Is(err, types.ErrNotFound) {
		return fmt.Sprintf("Error: %s: No such file or directory", path), nil
	}
	if err != nil {
		return "", err
	}
	if file.IsDirectory {
		return fmt.Sprintf("Error: %s: Is a directory", path), nil
	}

	lines := strings.Split(file.Content, "\n")
	total := len(lines)

	var selected []string
	var firstNum int
	if startLine != nil && *startLine < 0 {
		n := -*startLine
		if n > total {
			n = total
		}
		selected = lines[total-n:]
		firstNum = total - n + 1
	} else {
		start := 1
		if startLine != nil && *startLine != 0 {
			start = *startLine
		}
		end := total
		if endLine != nil && *endLine != 0 {
			end = *endLine
		}
		if end < 0 {
			end = total + end
		}
		if end > total {
			end = total
		}
		s := start - 1
		if s > total {
			s = total
		}
		if end < s {
			end = s
		}
		selected = lines[s:end]
		firstNum = s + 1
	}

	truncated := false
	if len(selected) > maxFileLines {
		selected = selected[:maxFileLines]
		truncated = true
	}

	width := len(strconv.Itoa(firstNum + len(selected) - 1))
	out := make([]string, 0, len(selected))
	for i, line := range selected {
		out = append(out, fmt.Sprintf("%*d | %s", width, firstNum+i, line))
	}
	result := strings.Join(out, "\n")
	if truncated {
		result += fmt.Sprintf("\n\n... truncated (%d total lines). Use start_line/end_line to read specific sections.", total)
	}
	return result, nil
}

// SearchCode is rg. The regex is validated before touching the store, then
// literal runs extracted from it prefilter candidate files with indexed
// substring predicates; the compiled regex decides actual line matches, so
// patterns the SQL layer cannot evaluate still work.
func (d *Dispatcher) SearchCode(ctx context.Context, repoID, pattern, glob string) (string, error) {
	compiled, err := regexp.Compile(pattern)
	if err != nil {
		return "Invalid regex: " + err.Error(), nil
	}

	filter := storage.SearchFilter{Literals: literalRun.FindAllString(pattern, -1)}
	if glob != "" {
		if m := extGlob.FindStringSubmatch(glob); m != nil {
			filter.Extension = m[1]
		} else {
			filter.NamePattern = strings.NewReplacer("*", "%", "?", "_").Replace(glob)
		}
	}

	files, err := d.store.SearchFiles(ctx, repoID, filter)
	if err != nil {
		return "", err
	}
	if len(files) == 0 {
		return "No matches found for pattern: " + pattern, nil
	}

	var out []string
	count := 0
	for _, f := range files {
		for i, line := range strings.Split(f.Content, "\n") {
			if compiled.MatchString(line) {
				out = append(out, fmt.Sprintf("%s:%d:%s", f.Path, i+1, line))
				count++
				if count >= maxSearchMatches {
					out = append(out, fmt.Sprintf("\n... truncated at %d matches. Narrow with glob or a more specific pattern.", maxSearchMatches))
					return strings.Join(out, "\n"), nil
				}
			}
		}
	}
	if len(out) == 0 {
		// the prefilter found files containing the literals, but the full
		// regex matched no individual line
		return "No matches found for pattern: " + pattern, nil
	}
	return strings.Join(out, "\n"), nil
}

func stringArg(args map[string]any, key string) string {
	s, _ := args[key].(string)
	return s
}

func intArg(args map[string]any, key string) *int {
	switch v := args[key].(type) {
	case float64:
		n := int(v)
		return &n
	case int:
		return &v
	}
	return nil
}
