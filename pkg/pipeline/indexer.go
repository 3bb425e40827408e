package pipeline

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/falconlabs/falcon/pkg/codex"
	"github.com/falconlabs/falcon/pkg/log"
	"github.com/falconlabs/falcon/pkg/types"
)

// manifestFilename is the index document the agent is asked to write into
// the working directory.
const manifestFilename = "manifest.json"

// Indexer runs the indexing phase: one agent invocation that reads the
// generated pages and writes manifest.json. When the agent fails or leaves
// nothing readable behind, a fallback manifest is synthesized from the
// analysis plan so the wiki still completes.
type Indexer struct {
	runner        AgentRunner
	falconVersion string
	logger        zerolog.Logger
}

// NewIndexer creates an indexer. falconVersion is stamped into manifests.
func NewIndexer(runner AgentRunner, falconVersion string) *Indexer {
	return &Indexer{
		runner:        runner,
		falconVersion: falconVersion,
		logger:        log.WithComponent("indexer"),
	}
}

// BuildManifest returns the parsed manifest plus the exact bytes to persist.
// The bytes are the agent's own file when it produced one, so fields beyond
// the parsed shape survive into storage. Only an invocation that cannot run
// at all is an error; agent failures degrade to the fallback.
func (i *Indexer) BuildManifest(ctx context.Context, workingDir, owner, repo string, plan *types.AnalysisPlan, meta *types.RepoMetadata) (*types.Manifest, []byte, error) {
	result, err := i.runner.Run(ctx, codex.Invocation{
		WorkingDir: workingDir,
		Prompt:     indexingPrompt(owner, repo, meta),
	})
	if err != nil {
		return nil, nil, err
	}
	if result.ExitCode != 0 {
		i.logger.Error().Int("exit_code", result.ExitCode).Str("stderr", result.Stderr).
			Msg("Manifest generation failed, building fallback manifest")
		return i.fallback(owner, repo, plan, meta)
	}

	raw, err := os.ReadFile(filepath.Join(workingDir, manifestFilename))
	if err != nil {
		i.logger.Warn().Err(err).Msg("Agent left no readable manifest.json, building fallback manifest")
		return i.fallback(owner, repo, plan, meta)
	}

	var m types.Manifest
	if err := json.Unmarshal(raw, &m); err != nil {
		i.logger.Warn().Err(err).Msg("manifest.json did not parse, building fallback manifest")
		return i.fallback(owner, repo, plan, meta)
	}

	i.logger.Info().Int("pages", len(m.Pages)).Int("sections", len(m.Sections)).
		Msg("Manifest generated")
	return &m, raw, nil
}

func (i *Indexer) fallback(owner, repo string, plan *types.AnalysisPlan, meta *types.RepoMetadata) (*types.Manifest, []byte, error) {
	sections := plan.Sections
	if sections == nil {
		sections = []types.PlanSection{}
	}
	m := &types.Manifest{
		Version: "1.0",
		Repository: types.ManifestRepository{
			Owner:         owner,
			Name:          repo,
			URL:           meta.HTMLURL,
			DefaultBranch: meta.DefaultBranch,
			CommitSHA:     meta.LatestCommitSHA,
			Languages:     meta.LanguagesPercent,
			Description:   meta.Description,
		},
		FalconVersion: i.falconVersion,
		Sections:      sections,
		Pages:         []types.ManifestPage{},
		SourceIndex:   map[string][]string{},
		Graph:         types.EmptyGraph(),
		Stats:         types.ManifestStats{},
	}
	raw, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, nil, err
	}
	return m, raw, nil
}
