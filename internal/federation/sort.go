package federation

import (
	"sort"
	"strings"

	"github.com/docufind/docufind/internal/store"
)

// SortOrder selects the global ordering of merged hits.
type SortOrder string

const (
	// SortRelevance orders by match rank, best match first.
	SortRelevance SortOrder = "relevance"
	// SortModified orders newest documents first.
	SortModified SortOrder = "modified"
	// SortName orders by file name, case-insensitive ascending.
	SortName SortOrder = "name"
	// SortSize orders largest documents first.
	SortSize SortOrder = "size"
)

// ParseSortOrder maps a user-supplied string to a SortOrder, defaulting
// to relevance for empty input.
func ParseSortOrder(s string) (SortOrder, bool) {
	switch SortOrder(strings.ToLower(strings.TrimSpace(s))) {
	case "", SortRelevance:
		return SortRelevance, true
	case SortModified:
		return SortModified, true
	case SortName:
		return SortName, true
	case SortSize:
		return SortSize, true
	}
	return "", false
}

// sortHits orders the merged result set. Every order ends with a path
// comparison so merged results are deterministic regardless of which
// store answered first.
func sortHits(hits []store.Hit, order SortOrder) {
	var less func(a, b store.Hit) bool
	switch order {
	case SortModified:
		less = func(a, b store.Hit) bool {
			if !a.Modified.Equal(b.Modified) {
				return a.Modified.After(b.Modified)
			}
			return pathLess(a, b)
		}
	case SortName:
		less = func(a, b store.Hit) bool {
			an, bn := strings.ToLower(a.Name), strings.ToLower(b.Name)
			if an != bn {
				return an < bn
			}
			return pathLess(a, b)
		}
	case SortSize:
		less = func(a, b store.Hit) bool {
			if a.Size != b.Size {
				return a.Size > b.Size
			}
			return pathLess(a, b)
		}
	default:
		// Relevance. Rank is bm25: more negative means a better match.
		less = func(a, b store.Hit) bool {
			if a.Rank != b.Rank {
				return a.Rank < b.Rank
			}
			return pathLess(a, b)
		}
	}
	sort.SliceStable(hits, func(i, j int) bool { return less(hits[i], hits[j]) })
}

func pathLess(a, b store.Hit) bool {
	if a.Path != b.Path {
		return a.Path < b.Path
	}
	return a.StoreID < b.StoreID
}

// sortedKindCounts flattens a kind histogram, largest count first, into
// the shape the stats output uses.
func sortedKindCounts(byKind map[string]int) []store.KindCount {
	out := make([]store.KindCount, 0, len(byKind))
	for kind, count := range byKind {
		out = append(out, store.KindCount{Kind: kind, Count: count})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Kind < out[j].Kind
	})
	return out
}

// topN returns the n highest-frequency words, ties broken alphabetically.
// n <= 0 returns everything.
func topN(counts map[string]int, n int) []store.WordCount {
	out := make([]store.WordCount, 0, len(counts))
	for word, count := range counts {
		out = append(out, store.WordCount{Word: word, Count: count})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Word < out[j].Word
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}
