package pipeline

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/falconlabs/falcon/pkg/codex"
	"github.com/falconlabs/falcon/pkg/log"
	"github.com/falconlabs/falcon/pkg/types"
)

// pageJob is one planned page with its owning section resolved.
type pageJob struct {
	types.PlanPage
	Section string
}

// wave is a group of pages generated concurrently. Waves run sequentially so
// later pages can cross-reference earlier ones.
type wave struct {
	name  string
	pages []pageJob
}

// Writer runs the generation phase: one agent invocation per planned page,
// parallel within a wave up to maxConcurrent.
type Writer struct {
	runner        AgentRunner
	maxConcurrent int
	logger        zerolog.Logger
}

// NewWriter creates a writer. maxConcurrent bounds simultaneous agent
// invocations within a wave; values below 1 are treated as 1.
func NewWriter(runner AgentRunner, maxConcurrent int) *Writer {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &Writer{
		runner:        runner,
		maxConcurrent: maxConcurrent,
		logger:        log.WithComponent("writer"),
	}
}

// organizeWaves partitions planned pages into the three generation waves:
// architecture and unsectioned pages, then modules, then guides and API
// reference. Pages in sections outside that set are returned as dropped;
// they are neither generated nor counted.
func organizeWaves(plan *types.AnalysisPlan) (waves []wave, dropped []pageJob) {
	var all []pageJob
	for _, section := range plan.Sections {
		for _, p := range section.Pages {
			all = append(all, pageJob{PlanPage: p, Section: section.ID})
		}
	}

	pick := func(ids ...string) []pageJob {
		var out []pageJob
		for _, p := range all {
			for _, id := range ids {
				if p.Section == id {
					out = append(out, p)
					break
				}
			}
		}
		return out
	}

	if w := pick("", "architecture"); len(w) > 0 {
		waves = append(waves, wave{name: "architecture", pages: w})
	}
	if w := pick("modules"); len(w) > 0 {
		waves = append(waves, wave{name: "modules", pages: w})
	}
	if w := pick("guides", "api-reference"); len(w) > 0 {
		waves = append(waves, wave{name: "guides", pages: w})
	}

	known := map[string]bool{
		"": true, "architecture": true, "modules": true, "guides": true, "api-reference": true,
	}
	for _, p := range all {
		if !known[p.Section] {
			dropped = append(dropped, p)
		}
	}
	return waves, dropped
}

// plannedPageCount is the number of pages the writer will actually attempt,
// which is what total_pages must reflect for progress to reach 100%.
func plannedPageCount(plan *types.AnalysisPlan) int {
	waves, _ := organizeWaves(plan)
	n := 0
	for _, w := range waves {
		n += len(w.pages)
	}
	return n
}

// WritePages generates every planned page, wave by wave. each is called once
// per attempted page, possibly from concurrent goroutines; a page whose agent
// exits non-zero is logged and still reported (the attempt is spent), while
// an invocation that cannot run at all aborts the phase.
func (w *Writer) WritePages(ctx context.Context, workingDir string, plan *types.AnalysisPlan, each func(slug string)) error {
	if err := writeDirective(workingDir, WritingDirective); err != nil {
		return err
	}

	waves, dropped := organizeWaves(plan)
	for _, p := range dropped {
		w.logger.Warn().Str("slug", p.Slug).Str("section", p.Section).
			Msg("Page planned outside the known sections, skipping")
	}

	sema := make(chan struct{}, w.maxConcurrent)
	for _, wv := range waves {
		w.logger.Info().Str("wave", wv.name).Int("pages", len(wv.pages)).Msg("Generating wave")

		var wg sync.WaitGroup
		var mu sync.Mutex
		var firstErr error

		for _, page := range wv.pages {
			wg.Add(1)
			go func(page pageJob) {
				defer wg.Done()

				select {
				case sema <- struct{}{}:
					defer func() { <-sema }()
				case <-ctx.Done():
					return
				}

				result, err := w.runner.Run(ctx, codex.Invocation{
					WorkingDir: workingDir,
					Prompt:     writingPrompt(page, plan),
				})
				if err != nil {
					mu.Lock()
					if firstErr == nil {
						firstErr = fmt.Errorf("page %s: %w", page.Slug, err)
					}
					mu.Unlock()
					return
				}
				if result.ExitCode != 0 {
					w.logger.Error().Str("slug", page.Slug).
						Int("exit_code", result.ExitCode).
						Str("stderr", result.Stderr).
						Msg("Failed to generate page")
				}
				each(page.Slug)
			}(page)
		}
		wg.Wait()

		if firstErr != nil {
			return firstErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}
	}
	return nil
}
