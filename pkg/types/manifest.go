package types

import "encoding/json"

// AnalysisPlan is the documentation plan produced in the analysis phase. The
// agent returns it as JSON; unknown fields are preserved nowhere, so the plan
// stored on the wiki row keeps the raw blob while this type carries what the
// pipeline actually consumes.
type AnalysisPlan struct {
	Modules     []PlanModule  `json:"modules,omitempty"`
	Sections    []PlanSection `json:"sections"`
	EntryPoints []string      `json:"entry_points,omitempty"`
	ConfigFiles []string      `json:"config_files,omitempty"`
}

// PlanModule describes one module boundary the analyzer identified.
type PlanModule struct {
	Name      string   `json:"name"`
	Directory string   `json:"directory"`
	Purpose   string   `json:"purpose"`
	KeyFiles  []string `json:"key_files,omitempty"`
	DependsOn []string `json:"depends_on,omitempty"`
}

// PlanSection groups planned pages under one wiki section.
type PlanSection struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Order       int        `json:"order,omitempty"`
	Description string     `json:"description,omitempty"`
	Pages       []PlanPage `json:"pages"`
}

// PlanPage is one page the analyzer planned, before it is written.
type PlanPage struct {
	Slug        string   `json:"slug"`
	Title       string   `json:"title"`
	SourceFiles []string `json:"source_files,omitempty"`
	SourceDirs  []string `json:"source_dirs,omitempty"`
	Summary     string   `json:"summary,omitempty"`
}

// Manifest is the wiki's index document, written alongside the pages in the
// storage directory. Normally the indexing agent produces it; on agent
// failure a fallback is built from the analysis plan.
type Manifest struct {
	Version       string              `json:"version"`
	Repository    ManifestRepository  `json:"repository"`
	FalconVersion string              `json:"falcon_version"`
	Sections      []PlanSection       `json:"sections"`
	Pages         []ManifestPage      `json:"pages"`
	SourceIndex   map[string][]string `json:"source_index"`
	Graph         ManifestGraph       `json:"graph"`
	Stats         ManifestStats       `json:"stats"`
}

// ManifestRepository identifies the repository a manifest describes.
type ManifestRepository struct {
	Owner         string             `json:"owner"`
	Name          string             `json:"name"`
	URL           string             `json:"url"`
	DefaultBranch string             `json:"default_branch"`
	CommitSHA     string             `json:"commit_sha"`
	Languages     map[string]float64 `json:"languages"`
	Description   string             `json:"description"`
}

// ManifestPage is one generated page as recorded in the manifest.
type ManifestPage struct {
	Slug        string   `json:"slug"`
	Title       string   `json:"title"`
	Section     string   `json:"section"`
	Order       int      `json:"order,omitempty"`
	FilePath    string   `json:"file_path"`
	Summary     string   `json:"summary,omitempty"`
	SourceFiles []string `json:"source_files,omitempty"`
	KeyExports  []string `json:"key_exports,omitempty"`
	DependsOn   []string `json:"depends_on,omitempty"`
}

// ManifestGraph holds the page dependency graph. The agent decides the node
// and edge shapes, so both sides stay raw.
type ManifestGraph struct {
	Nodes json.RawMessage `json:"nodes"`
	Edges json.RawMessage `json:"edges"`
}

// EmptyGraph returns a graph with no nodes or edges, used by the fallback
// manifest builder.
func EmptyGraph() ManifestGraph {
	return ManifestGraph{
		Nodes: json.RawMessage("[]"),
		Edges: json.RawMessage("[]"),
	}
}

// ManifestStats summarizes source-file coverage.
type ManifestStats struct {
	TotalPages              int     `json:"total_pages"`
	TotalSourceFilesCovered int     `json:"total_source_files_covered"`
	TotalSourceFilesInRepo  int     `json:"total_source_files_in_repo"`
	CoveragePercent         float64 `json:"coverage_percent"`
}
