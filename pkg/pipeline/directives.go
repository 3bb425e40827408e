package pipeline

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/falconlabs/falcon/pkg/types"
)

// The agent directives are the AGENTS.md bodies dropped into the sandbox
// before each phase's invocation. They are data, not code; the prompt
// builders below carry the per-invocation parameters.

//go:embed directives/analyzer.md
var AnalysisDirective string

//go:embed directives/writer.md
var WritingDirective string

// QADirective frames the chat model when answering questions against a
// completed wiki. It is embedded in the chat system prompt rather than
// written to a sandbox.
//
//go:embed directives/qa.md
var QADirective string

// writeDirective places the phase's AGENTS.md into the working directory,
// replacing whatever the previous phase left there.
func writeDirective(workingDir, body string) error {
	path := filepath.Join(workingDir, "AGENTS.md")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		return fmt.Errorf("failed to write agent directive: %w", err)
	}
	return nil
}

func analysisPrompt(owner, repo string, meta *types.RepoMetadata) string {
	description := meta.Description
	if description == "" {
		description = "No description"
	}
	return fmt.Sprintf(`Analyze this repository and produce a documentation plan.
The repo is %s/%s: %s.
Primary languages: %s.

Focus on identifying:
1. The main modules and their boundaries
2. How modules depend on each other
3. Key public APIs and entry points
4. What documentation sections and pages would best explain this codebase

Read the top-level files first (README, config files), then explore each major directory.

Output a JSON object with this structure:
{
  "modules": [
    {"name": "...", "directory": "...", "purpose": "...", "key_files": [...], "depends_on": [...]}
  ],
  "sections": [
    {
      "id": "architecture",
      "title": "Architecture",
      "order": 1,
      "description": "...",
      "pages": [
        {
          "slug": "architecture/system-design",
          "title": "System Design",
          "source_files": [...],
          "source_dirs": [...],
          "summary": "..."
        }
      ]
    }
  ],
  "entry_points": [...],
  "config_files": [...]
}`, owner, repo, description, languageList(meta.LanguagesPercent))
}

func writingPrompt(page pageJob, plan *types.AnalysisPlan) string {
	title := page.Title
	if title == "" {
		title = page.Slug
	}

	var files strings.Builder
	for _, f := range page.SourceFiles {
		fmt.Fprintf(&files, "  - %s\n", f)
	}

	summary := page.Summary
	if summary == "" {
		summary = "See source files"
	}

	var others []string
	for _, section := range plan.Sections {
		for _, p := range section.Pages {
			if p.Slug == page.Slug {
				continue
			}
			others = append(others, fmt.Sprintf("  - %s: %s", p.Slug, p.Title))
		}
	}
	if len(others) > 20 {
		others = others[:20]
	}

	return fmt.Sprintf(`Write the wiki page "%s" for section "%s".

This page should cover these source files:
%s
Summary of what to cover: %s

Other wiki pages that exist (for cross-references):
%s

Write the documentation as a markdown file with YAML frontmatter.
The frontmatter must include: title, slug, section, order, source_files, source_dirs,
depends_on, depended_by, key_exports, module_type, languages, complexity, generated_at.

Focus on explaining the architecture, key functions, data flow, and usage patterns.
Include actual code snippets from the source files.
Include Mermaid diagrams where they help explain relationships or flows.
Target 500-1500 words.`, title, page.Section, files.String(), summary, strings.Join(others, "\n"))
}

func indexingPrompt(owner, repo string, meta *types.RepoMetadata) string {
	return fmt.Sprintf(`Read all the generated wiki markdown files in the current directory and produce a manifest.json file.

The manifest should contain:
1. Repository info: owner=%s, name=%s, url=%s,
   default_branch=%s, commit_sha=%s
2. A "sections" array listing all wiki sections
3. A "pages" array with every page's slug, title, section, file_path, summary, source_files, key_exports, depends_on
4. A "source_index" mapping each source file path to the wiki page slugs that cover it
5. A "graph" with nodes (pages) and edges (depends_on relationships)
6. A "stats" object with total_pages, total_source_files_covered, and coverage_percent

Write the manifest.json file to the current directory.`,
		owner, repo, meta.HTMLURL, meta.DefaultBranch, meta.LatestCommitSHA)
}

// languageList renders the language map the way the source host orders it:
// dominant language first.
func languageList(percents map[string]float64) string {
	names := make([]string, 0, len(percents))
	for name := range percents {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		if percents[names[i]] != percents[names[j]] {
			return percents[names[i]] > percents[names[j]]
		}
		return names[i] < names[j]
	})
	return strings.Join(names, ", ")
}
