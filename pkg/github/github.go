package github

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"regexp"
	"time"

	"github.com/rs/zerolog"

	"github.com/falconlabs/falcon/pkg/log"
	"github.com/falconlabs/falcon/pkg/types"
)

// repoURLPattern accepts https://github.com/{owner}/{repo} with an optional
// .git suffix and trailing slash.
var repoURLPattern = regexp.MustCompile(`^https?://github\.com/([^/]+)/([^/]+?)(?:\.git)?/?$`)

// ParseRepoURL extracts owner and repo from a GitHub repository URL.
func ParseRepoURL(rawURL string) (owner, repo string, err error) {
	m := repoURLPattern.FindStringSubmatch(rawURL)
	if m == nil {
		return "", "", fmt.Errorf("invalid GitHub URL: %w", types.ErrInvalidInput)
	}
	return m[1], m[2], nil
}

// Client fetches repository metadata from the GitHub REST API.
type Client struct {
	// BaseURL is the API root, overridable for tests
	BaseURL string

	// Token is the optional bearer token; unauthenticated requests work but
	// hit lower rate limits
	Token string

	// HTTP is the underlying client (allows custom configuration)
	HTTP *http.Client

	logger zerolog.Logger
}

// NewClient creates a GitHub API client. An empty token means
// unauthenticated access.
func NewClient(token string) *Client {
	return &Client{
		BaseURL: "https://api.github.com",
		Token:   token,
		HTTP: &http.Client{
			Timeout: 15 * time.Second,
		},
		logger: log.WithComponent("github"),
	}
}

type repoInfo struct {
	Description   string `json:"description"`
	DefaultBranch string `json:"default_branch"`
	HTMLURL       string `json:"html_url"`
}

type commitInfo struct {
	SHA string `json:"sha"`
}

// GetMetadata fetches the repository record, its language byte counts, and
// the tip commit of the default branch. Languages come back as percentages
// rounded to one decimal. Any non-success response becomes a
// SourceHostError.
func (c *Client) GetMetadata(ctx context.Context, owner, repo string) (*types.RepoMetadata, error) {
	var info repoInfo
	if err := c.get(ctx, fmt.Sprintf("/repos/%s/%s", owner, repo), nil, &info); err != nil {
		return nil, err
	}

	var rawLanguages map[string]float64
	if err := c.get(ctx, fmt.Sprintf("/repos/%s/%s/languages", owner, repo), nil, &rawLanguages); err != nil {
		return nil, err
	}

	var commits []commitInfo
	query := url.Values{"per_page": {"1"}, "sha": {info.DefaultBranch}}
	if err := c.get(ctx, fmt.Sprintf("/repos/%s/%s/commits", owner, repo), query, &commits); err != nil {
		return nil, err
	}
	latestSHA := ""
	if len(commits) > 0 {
		latestSHA = commits[0].SHA
	}

	c.logger.Debug().
		Str("owner", owner).
		Str("repo", repo).
		Str("branch", info.DefaultBranch).
		Str("commit", latestSHA).
		Msg("Fetched repository metadata")

	return &types.RepoMetadata{
		DefaultBranch:    info.DefaultBranch,
		LatestCommitSHA:  latestSHA,
		LanguagesPercent: languagePercentages(rawLanguages),
		Description:      info.Description,
		HTMLURL:          info.HTMLURL,
	}, nil
}

// languagePercentages converts GitHub's bytes-per-language map to
// percentages summing to ~100, each rounded to one decimal.
func languagePercentages(bytes map[string]float64) map[string]float64 {
	total := 0.0
	for _, v := range bytes {
		total += v
	}
	if total == 0 {
		total = 1
	}
	percents := make(map[string]float64, len(bytes))
	for k, v := range bytes {
		percents[k] = math.Round(v/total*1000) / 10
	}
	return percents
}

func (c *Client) get(ctx context.Context, path string, query url.Values, target any) error {
	u := c.BaseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/vnd.github.v3+json")
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("github request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &types.SourceHostError{StatusCode: resp.StatusCode, Body: string(body)}
	}
	return json.NewDecoder(resp.Body).Decode(target)
}
