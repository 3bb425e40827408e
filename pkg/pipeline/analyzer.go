package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/falconlabs/falcon/pkg/codex"
	"github.com/falconlabs/falcon/pkg/log"
	"github.com/falconlabs/falcon/pkg/types"
)

// Analyzer runs the analysis phase: one agent invocation that explores the
// clone and answers with a documentation plan as JSON.
type Analyzer struct {
	runner AgentRunner
	logger zerolog.Logger
}

// NewAnalyzer creates an analyzer backed by the given agent runner.
func NewAnalyzer(runner AgentRunner) *Analyzer {
	return &Analyzer{
		runner: runner,
		logger: log.WithComponent("analyzer"),
	}
}

// Analyze writes the analysis directive into the working directory, invokes
// the agent, and parses its final message into a plan. The raw JSON is
// returned alongside the parsed form so the stored plan preserves whatever
// the agent produced. An unparseable answer degrades to an empty plan rather
// than failing the phase; a non-zero agent exit fails it.
func (a *Analyzer) Analyze(ctx context.Context, workingDir, owner, repo string, meta *types.RepoMetadata) (json.RawMessage, *types.AnalysisPlan, error) {
	if err := writeDirective(workingDir, AnalysisDirective); err != nil {
		return nil, nil, err
	}

	result, err := a.runner.Run(ctx, codex.Invocation{
		WorkingDir: workingDir,
		Prompt:     analysisPrompt(owner, repo, meta),
	})
	if err != nil {
		return nil, nil, err
	}
	if result.ExitCode != 0 {
		return nil, nil, fmt.Errorf("analysis failed: %w", &types.AgentError{
			ExitCode: result.ExitCode,
			Stderr:   result.Stderr,
			Timeout:  result.Stderr == "Timeout",
		})
	}

	raw := extractJSONObject(result.FinalMessage)
	if raw == nil {
		a.logger.Warn().Str("owner", owner).Str("repo", repo).
			Msg("Analysis answer contained no JSON object, continuing with empty plan")
		return json.RawMessage("{}"), &types.AnalysisPlan{}, nil
	}

	var plan types.AnalysisPlan
	if err := json.Unmarshal(raw, &plan); err != nil {
		a.logger.Warn().Err(err).Str("owner", owner).Str("repo", repo).
			Msg("Analysis plan did not match the expected shape, continuing with empty plan")
		return raw, &types.AnalysisPlan{}, nil
	}

	a.logger.Info().
		Int("modules", len(plan.Modules)).
		Int("sections", len(plan.Sections)).
		Msg("Analysis plan parsed")
	return raw, &plan, nil
}

// extractJSONObject pulls the first well-formed JSON object out of an agent
// answer. Agents wrap JSON in markdown fences or prose often enough that a
// strict parse of the whole message would reject good plans.
func extractJSONObject(message string) json.RawMessage {
	message = strings.TrimSpace(message)
	if message == "" {
		return nil
	}

	// Fenced code blocks first: the payload is usually the whole block.
	rest := message
	for {
		start := strings.Index(rest, "```")
		if start < 0 {
			break
		}
		rest = rest[start+3:]
		// Skip the info string ("json", "JSON", ...) up to the newline.
		if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
			rest = rest[nl+1:]
		}
		end := strings.Index(rest, "```")
		if end < 0 {
			break
		}
		candidate := strings.TrimSpace(rest[:end])
		if strings.HasPrefix(candidate, "{") && json.Valid([]byte(candidate)) {
			return json.RawMessage(candidate)
		}
		rest = rest[end+3:]
	}

	// Otherwise the outermost brace span.
	first := strings.IndexByte(message, '{')
	last := strings.LastIndexByte(message, '}')
	if first < 0 || last <= first {
		return nil
	}
	candidate := message[first : last+1]
	if !json.Valid([]byte(candidate)) {
		return nil
	}
	return json.RawMessage(candidate)
}
