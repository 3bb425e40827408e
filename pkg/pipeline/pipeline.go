package pipeline

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/falconlabs/falcon/pkg/codex"
	"github.com/falconlabs/falcon/pkg/config"
	"github.com/falconlabs/falcon/pkg/events"
	"github.com/falconlabs/falcon/pkg/log"
	"github.com/falconlabs/falcon/pkg/metrics"
	"github.com/falconlabs/falcon/pkg/sandbox"
	"github.com/falconlabs/falcon/pkg/storage"
	"github.com/falconlabs/falcon/pkg/types"
)

// AgentRunner invokes the external code-generation agent once and returns
// its captured result. *codex.Runner is the production implementation.
type AgentRunner interface {
	Run(ctx context.Context, inv codex.Invocation) (*types.AgentResult, error)
}

// MetadataClient fetches repository metadata from the source host.
type MetadataClient interface {
	GetMetadata(ctx context.Context, owner, repo string) (*types.RepoMetadata, error)
}

// Pipeline drives one wiki through the five generation phases: acquire a
// sandbox, analyze the clone, generate pages in waves, index them into a
// manifest, and persist the output. Each status transition is durable before
// the next phase begins; a returned error leaves the wiki in its last phase
// status for the orchestrator to retry or fail.
type Pipeline struct {
	store       *storage.WikiStore
	bus         *events.Bus
	sandbox     sandbox.Controller
	metadata    MetadataClient
	analyzer    *Analyzer
	writer      *Writer
	indexer     *Indexer
	storageRoot string
	logger      zerolog.Logger
}

// New wires a pipeline from its collaborators.
func New(store *storage.WikiStore, bus *events.Bus, sb sandbox.Controller, meta MetadataClient, runner AgentRunner, cfg *config.Settings) *Pipeline {
	return &Pipeline{
		store:       store,
		bus:         bus,
		sandbox:     sb,
		metadata:    meta,
		analyzer:    NewAnalyzer(runner),
		writer:      NewWriter(runner, cfg.CodexMaxConcurrent),
		indexer:     NewIndexer(runner, cfg.AppVersion),
		storageRoot: cfg.WikiStorageRoot,
		logger:      log.WithComponent("pipeline"),
	}
}

// Execute runs all five phases for the wiki. The sandbox is destroyed on
// every exit path.
func (p *Pipeline) Execute(ctx context.Context, wikiID string) error {
	wiki, err := p.store.GetWiki(ctx, wikiID)
	if err != nil {
		return err
	}
	logger := p.logger.With().
		Str("wiki_id", wikiID).
		Str("repo", wiki.Owner+"/"+wiki.Repo).
		Logger()

	// Phase 1: acquisition.
	if err := p.transition(ctx, wikiID, types.WikiStatusCloning); err != nil {
		return err
	}
	sb, err := p.sandbox.Create(ctx, wiki.URL, wiki.Branch)
	if err != nil {
		return err
	}
	defer func() {
		// Cleanup must run even when ctx is already cancelled.
		p.sandbox.Destroy(context.Background(), sb)
	}()
	logger.Info().Str("dir", sb.WorkingDir).Msg("Sandbox acquired")

	meta, err := p.metadata.GetMetadata(ctx, wiki.Owner, wiki.Repo)
	if err != nil {
		return err
	}
	if err := p.store.SetCommitInfo(ctx, wikiID, meta.LatestCommitSHA, meta.LanguagesPercent, meta.Description); err != nil {
		return err
	}

	// Phase 2: analysis.
	if err := p.transition(ctx, wikiID, types.WikiStatusAnalyzing); err != nil {
		return err
	}
	rawPlan, plan, err := p.analyzer.Analyze(ctx, sb.WorkingDir, wiki.Owner, wiki.Repo, meta)
	if err != nil {
		return err
	}
	if err := p.store.SaveAnalysisPlan(ctx, wikiID, rawPlan); err != nil {
		return err
	}

	total := plannedPageCount(plan)
	if err := p.store.SetPageCounts(ctx, wikiID, total, 0); err != nil {
		return err
	}

	// Phase 3: generation.
	if err := p.transition(ctx, wikiID, types.WikiStatusGenerating); err != nil {
		return err
	}
	err = p.writer.WritePages(ctx, sb.WorkingDir, plan, func(slug string) {
		completed, err := p.store.IncrementCompletedPages(ctx, wikiID)
		if err != nil {
			logger.Error().Err(err).Str("slug", slug).Msg("Failed to record page completion")
			return
		}
		metrics.PagesGenerated.Inc()
		p.bus.Publish(wikiID, types.Event{
			Type: types.EventPageComplete,
			Data: map[string]any{"slug": slug, "completed": completed, "total": total},
		})
	})
	if err != nil {
		return err
	}

	// Phase 4: indexing.
	if err := p.transition(ctx, wikiID, types.WikiStatusIndexing); err != nil {
		return err
	}
	manifest, rawManifest, err := p.indexer.BuildManifest(ctx, sb.WorkingDir, wiki.Owner, wiki.Repo, plan, meta)
	if err != nil {
		return err
	}

	// Phase 5: persistence.
	if err := p.persist(ctx, wiki, sb.WorkingDir, manifest, rawManifest); err != nil {
		return err
	}
	if err := p.transition(ctx, wikiID, types.WikiStatusCompleted); err != nil {
		return err
	}
	p.bus.Publish(wikiID, types.Event{
		Type: types.EventComplete,
		Data: map[string]any{"wiki_id": wikiID, "total_pages": total},
	})
	logger.Info().Int("pages", total).Msg("Wiki generation complete")
	return nil
}

// transition persists the status change, then announces it on the bus.
func (p *Pipeline) transition(ctx context.Context, wikiID string, status types.WikiStatus) error {
	if err := p.store.UpdateWikiStatus(ctx, wikiID, status); err != nil {
		return err
	}
	p.bus.Publish(wikiID, types.Event{
		Type: types.EventStatusChange,
		Data: map[string]any{"status": string(status)},
	})
	return nil
}

// persist writes the manifest and copies every manifest-listed page file
// from the sandbox into the wiki's storage directory, then replaces the page
// index rows. A page whose file is missing from the sandbox is logged and
// left out of the index; everything still present is served.
func (p *Pipeline) persist(ctx context.Context, wiki *types.Wiki, workingDir string, manifest *types.Manifest, raw []byte) error {
	dir := filepath.Join(p.storageRoot, filepath.FromSlash(wiki.StoragePath))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create storage dir: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, manifestFilename), raw, 0o644); err != nil {
		return fmt.Errorf("failed to persist manifest: %w", err)
	}

	var pages []types.WikiPage
	for _, mp := range manifest.Pages {
		if mp.FilePath == "" {
			p.logger.Warn().Str("slug", mp.Slug).Msg("Manifest page has no file path, skipping")
			continue
		}
		if err := copyPage(workingDir, dir, mp.FilePath); err != nil {
			p.logger.Warn().Err(err).Str("slug", mp.Slug).Msg("Page file not copied, leaving out of index")
			continue
		}
		pages = append(pages, types.WikiPage{
			WikiID:    wiki.ID,
			Slug:      mp.Slug,
			Title:     mp.Title,
			Section:   mp.Section,
			SortOrder: mp.Order,
			Summary:   mp.Summary,
			FilePath:  mp.FilePath,
		})
	}
	if err := p.store.ReplaceWikiPages(ctx, wiki.ID, pages); err != nil {
		return err
	}

	p.logger.Info().Int("pages", len(pages)).Str("dir", dir).Msg("Wiki output persisted")
	return nil
}

// copyPage copies one page file from the sandbox into storage, preserving
// its relative path. The path must stay inside both roots.
func copyPage(srcRoot, dstRoot, rel string) error {
	rel = filepath.Clean(filepath.FromSlash(rel))
	if rel == "." || filepath.IsAbs(rel) || strings.HasPrefix(rel, "..") {
		return fmt.Errorf("unsafe page path %q", rel)
	}

	src := filepath.Join(srcRoot, rel)
	dst := filepath.Join(dstRoot, rel)
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
