package selector

import (
	"path"
	"sort"
	"strings"

	"github.com/falconlabs/falcon/pkg/types"
)

// DefaultMaxPages is how many context pages a question pulls in when the
// caller does not say otherwise.
const DefaultMaxPages = 5

// SelectContextPages ranks manifest pages against a question and returns up
// to maxPages slugs, best first. Scoring is a plain lexical overlap: title
// matches weigh 3, summary matches 2, a key export named in the question 5,
// and a source file whose stem contains a question term 2. Pages that score
// zero are dropped; ties keep manifest order.
func SelectContextPages(m *types.Manifest, question string, maxPages int) []string {
	if m == nil || len(m.Pages) == 0 {
		return nil
	}
	if maxPages <= 0 {
		maxPages = DefaultMaxPages
	}

	questionLower := strings.ToLower(question)
	terms := tokenSet(questionLower)
	denom := float64(len(terms))
	if denom == 0 {
		denom = 1
	}

	type scoredPage struct {
		slug  string
		score float64
	}
	var scored []scoredPage

	for _, page := range m.Pages {
		score := 0.0

		if n := overlap(terms, tokenSet(page.Title)); n > 0 {
			score += 3.0 * float64(n) / denom
		}
		if n := overlap(terms, tokenSet(page.Summary)); n > 0 {
			score += 2.0 * float64(n) / denom
		}
		for _, export := range page.KeyExports {
			if export != "" && strings.Contains(questionLower, strings.ToLower(export)) {
				score += 5.0
			}
		}
		for _, file := range page.SourceFiles {
			stem := strings.ToLower(fileStem(file))
			for term := range terms {
				if strings.Contains(stem, term) {
					score += 2.0
					break
				}
			}
		}

		if score > 0 {
			scored = append(scored, scoredPage{slug: page.Slug, score: score})
		}
	}

	sort.SliceStable(scored, func(i, j int) bool { return scored[i].score > scored[j].score })
	if len(scored) > maxPages {
		scored = scored[:maxPages]
	}

	slugs := make([]string, 0, len(scored))
	for _, s := range scored {
		slugs = append(slugs, s.slug)
	}
	return slugs
}

// fileStem reduces a source path to a searchable name: basename, extension
// stripped, underscores opened to spaces.
func fileStem(p string) string {
	base := path.Base(p)
	base = strings.TrimSuffix(base, path.Ext(base))
	return strings.ReplaceAll(base, "_", " ")
}

func tokenSet(s string) map[string]struct{} {
	fields := strings.Fields(strings.ToLower(s))
	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		set[f] = struct{}{}
	}
	return set
}

func overlap(a, b map[string]struct{}) int {
	n := 0
	for t := range a {
		if _, ok := b[t]; ok {
			n++
		}
	}
	return n
}
