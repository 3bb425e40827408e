package pipeline

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

const frontmatterDelim = "---"

// SplitFrontmatter separates a page's leading YAML frontmatter block from
// its markdown body. Documents without a block (or with an unterminated one)
// come back whole, with an empty metadata map. A present but malformed block
// is an error; callers decide whether to serve the page raw.
func SplitFrontmatter(content string) (map[string]any, string, error) {
	if !strings.HasPrefix(content, frontmatterDelim+"\n") {
		return map[string]any{}, content, nil
	}
	rest := content[len(frontmatterDelim)+1:]

	// Find the closing delimiter on its own line.
	var end int
	switch {
	case strings.HasPrefix(rest, frontmatterDelim+"\n"), rest == frontmatterDelim:
		end = 0
	default:
		if j := strings.Index(rest, "\n"+frontmatterDelim+"\n"); j >= 0 {
			end = j + 1
		} else if strings.HasSuffix(rest, "\n"+frontmatterDelim) {
			end = len(rest) - len(frontmatterDelim)
		} else {
			return map[string]any{}, content, nil
		}
	}

	block := rest[:end]
	body := strings.TrimPrefix(rest[end+len(frontmatterDelim):], "\n")

	meta := map[string]any{}
	if strings.TrimSpace(block) != "" {
		if err := yaml.Unmarshal([]byte(block), &meta); err != nil {
			return nil, "", fmt.Errorf("invalid frontmatter: %w", err)
		}
	}
	return meta, body, nil
}
