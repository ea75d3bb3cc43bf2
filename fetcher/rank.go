// Package fetcher orchestrates the tiered acquisition pipeline.
package fetcher

import (
	"sort"
	"strings"

	"github.com/ocnaibill/crunchyroll-jellyfin/catalog"
	levenshtein "github.com/ka-weihe/fast-levenshtein"
	"github.com/lithammer/fuzzysearch/fuzzy"
)

// normalizedQuery returns a lowercased, trimmed string for consistent comparison.
func normalizedQuery(q string) string {
	return strings.ToLower(strings.TrimSpace(q))
}

// rankResults orders search hits by relevance to the query: fuzzy-matching
// titles first, then ascending Levenshtein distance as the tie-breaker.
func rankResults(query string, hits []*catalog.Series) []*catalog.Series {
	q := normalizedQuery(query)

	ranked := make([]*catalog.Series, len(hits))
	copy(ranked, hits)

	sort.SliceStable(ranked, func(i, j int) bool {
		ti := normalizedQuery(ranked[i].Title)
		tj := normalizedQuery(ranked[j].Title)

		fi := fuzzy.MatchNormalizedFold(q, ti)
		fj := fuzzy.MatchNormalizedFold(q, tj)
		if fi != fj {
			return fi
		}

		return levenshtein.Distance(q, ti) < levenshtein.Distance(q, tj)
	})

	return ranked
}
