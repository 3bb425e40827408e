package shell

import (
	openai "github.com/sashabaranov/go-openai"
	"github.com/sashabaranov/go-openai/jsonschema"
)

// SystemPrompt guides the agent loop. It is sent with every model call,
// including tool-call iterations, so it stays short.
const SystemPrompt = "You are a code exploration assistant. You have access to a repository's codebase " +
	"through the tools provided. Your job is to answer questions about the code " +
	"accurately and thoroughly.\n" +
	"\n" +
	"## How to explore\n" +
	"\n" +
	"1. Start with `list_files` to understand the repo structure.\n" +
	"2. Use `search_code` to find where specific patterns, functions, or classes are defined or used.\n" +
	"3. Use `read_file` to read the actual code. Use `start_line`/`end_line` for large files.\n" +
	"\n" +
	"## Rules\n" +
	"\n" +
	"- NEVER guess. Always verify by reading the code before answering.\n" +
	"- Reference specific file paths and line numbers in your answers (e.g., `src/auth.py:42`).\n" +
	"- If a file is too large, read it in sections rather than all at once.\n" +
	"- When searching, start broad and narrow down. If a search returns too many results, add a glob filter.\n" +
	"- You can call multiple tools in parallel when they are independent.\n"

// Definitions returns the function-calling schemas for the three tools.
// They must match the Dispatcher signatures exactly.
func Definitions() []openai.Tool {
	return []openai.Tool{
		{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name: "list_files",
				Description: "List files and directories in the repository. " +
					"Pass a directory path to list its contents (like `ls`), " +
					"or use glob patterns (*, **, ?) to search recursively (like `find`).\n" +
					"\n" +
					"Examples:\n" +
					"  list_files(path=\"\")              → list repo root\n" +
					"  list_files(path=\"src/auth\")      → list contents of src/auth/\n" +
					"  list_files(path=\"**/*.py\")       → find all Python files\n" +
					"  list_files(path=\"src/**/*.test.ts\") → find test files under src/",
				Parameters: jsonschema.Definition{
					Type: jsonschema.Object,
					Properties: map[string]jsonschema.Definition{
						"path": {
							Type: jsonschema.String,
							Description: "Directory path to list, or glob pattern to search. " +
								"Use '' for repo root. " +
								"Use ** for recursive matching, * for single-level matching.",
						},
					},
					Required: []string{"path"},
				},
			},
		},
		{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name: "read_file",
				Description: "Read the contents of a file, optionally a specific line range.\n" +
					"\n" +
					"Examples:\n" +
					"  read_file(path=\"src/auth.py\")                        → entire file\n" +
					"  read_file(path=\"src/auth.py\", end_line=20)           → first 20 lines\n" +
					"  read_file(path=\"src/auth.py\", start_line=-10)        → last 10 lines\n" +
					"  read_file(path=\"src/auth.py\", start_line=50, end_line=70) → lines 50-70",
				Parameters: jsonschema.Definition{
					Type: jsonschema.Object,
					Properties: map[string]jsonschema.Definition{
						"path": {
							Type:        jsonschema.String,
							Description: "Path to the file to read.",
						},
						"start_line": {
							Type: jsonschema.Integer,
							Description: "Start line (1-indexed). " +
								"Negative values count from end: -10 means last 10 lines.",
						},
						"end_line": {
							Type:        jsonschema.Integer,
							Description: "End line (1-indexed, inclusive).",
						},
					},
					Required: []string{"path"},
				},
			},
		},
		{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name: "search_code",
				Description: "Search for a regex pattern across all files in the repository. " +
					"Returns matching lines with file paths and line numbers, " +
					"formatted like ripgrep output (path:line:content).\n" +
					"\n" +
					"Examples:\n" +
					"  search_code(pattern=\"def authenticate\")               → find function def\n" +
					"  search_code(pattern=\"import.*redis\", glob=\"*.py\")     → search Python files only\n" +
					"  search_code(pattern=\"TODO|FIXME\")                     → find all TODOs",
				Parameters: jsonschema.Definition{
					Type: jsonschema.Object,
					Properties: map[string]jsonschema.Definition{
						"pattern": {
							Type:        jsonschema.String,
							Description: "Regex pattern to search for in file contents.",
						},
						"glob": {
							Type: jsonschema.String,
							Description: "Optional file filter. " +
								"Use '*.py' for Python files, 'test_*' for test files, etc.",
						},
					},
					Required: []string{"pattern"},
				},
			},
		},
	}
}
