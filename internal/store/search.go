package store

import (
	"sort"
	"strings"

	"github.com/evergreen-lab/loam/internal/db"
	"github.com/evergreen-lab/loam/internal/entity"
	"github.com/evergreen-lab/loam/internal/errors"
)

// DefaultSearchLimit applies when SearchInput.Limit is unset.
const DefaultSearchLimit = 5

// SearchInput contains parameters for the Search operation.
type SearchInput struct {
	Identity string // required
	Query    string // required
	Category string // optional filter
	Limit    int    // default: 5
}

// SearchResult pairs a memory entry with its keyword score.
type SearchResult struct {
	Entry entity.MemoryEntry `json:"entry"`
	Score int                `json:"score"`
}

// Search scores the identity's memory entries against the query. The
// query is lowercased and split into words; each entry scores one point
// per query word that appears as a substring of its lowercased content.
// Zero-score entries are dropped, so an empty query matches nothing.
// Results sort by descending score; ties keep insertion order.
func (s *Store) Search(input SearchInput) ([]SearchResult, error) {
	identity := strings.TrimSpace(input.Identity)
	if identity == "" {
		return nil, errors.NewValidation("identity is required")
	}
	words := strings.Fields(strings.ToLower(input.Query))
	if len(words) == 0 {
		return []SearchResult{}, nil
	}
	limit := input.Limit
	if limit <= 0 {
		limit = DefaultSearchLimit
	}

	entries, err := db.ListMemories(s.db, identity, input.Category)
	if err != nil {
		return nil, err
	}

	results := make([]SearchResult, 0, len(entries))
	for _, e := range entries {
		score := scoreContent(e.Content, words)
		if score == 0 {
			continue
		}
		results = append(results, SearchResult{Entry: e, Score: score})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})

	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// scoreContent counts how many distinct query words occur as substrings
// of content. Duplicate query words count once.
func scoreContent(content string, words []string) int {
	lowered := strings.ToLower(content)
	seen := make(map[string]bool, len(words))
	score := 0
	for _, w := range words {
		if seen[w] {
			continue
		}
		seen[w] = true
		if strings.Contains(lowered, w) {
			score++
		}
	}
	return score
}
