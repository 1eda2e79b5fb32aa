package registry

import (
	"sort"
	"strings"

	"github.com/nidhogg/vaultscope/internal/plugin"
)

// SearchResult is one capability match with its relevance score.
type SearchResult struct {
	Capability *plugin.Capability `json:"capability"`
	Score      float64            `json:"score"`
}

// Search ranks capabilities against a free-text query by keyword overlap.
// Verb and domain hits weigh more than keyword hits; capability priority
// breaks ties. Empty queries return nothing.
func (s *Snapshot) Search(query string, limit int) []SearchResult {
	terms := tokenize(query)
	if len(terms) == 0 {
		return nil
	}
	if limit <= 0 {
		limit = 10
	}

	var results []SearchResult
	for _, cap := range s.Capabilities {
		score := 0.0
		for _, term := range terms {
			if strings.Contains(strings.ToLower(cap.Verb), term) {
				score += 3
			}
			if strings.Contains(strings.ToLower(cap.Domain), term) {
				score += 2
			}
			for _, kw := range cap.Keywords {
				if strings.Contains(strings.ToLower(kw), term) {
					score++
					break
				}
			}
			for _, art := range cap.Artifacts {
				if strings.Contains(strings.ToLower(art), term) {
					score++
					break
				}
			}
		}
		if score > 0 {
			score += float64(cap.Priority) / 100
			results = append(results, SearchResult{Capability: cap, Score: score})
		}
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if len(results) > limit {
		results = results[:limit]
	}
	return results
}

func tokenize(query string) []string {
	fields := strings.Fields(strings.ToLower(query))
	out := fields[:0]
	for _, f := range fields {
		f = strings.Trim(f, ".,;:!?\"'")
		if len(f) > 1 {
			out = append(out, f)
		}
	}
	return out
}
