// Package mapper reconciles the provider's continuous, movie-contaminated
// season/episode numbering with the consumer's per-season numbering scheme.
package mapper

import (
	"regexp"
	"strings"

	"github.com/ocnaibill/crunchyroll-jellyfin/catalog"
	"github.com/samber/lo"
)

// colonSubtitlePattern matches season titles of the form
// "Series: Episode Nagi", a character-name subtitle rather than a numbered episode.
// The text after the colon must begin with the word "episode" followed by
// something that is not a digit.
var colonSubtitlePattern = regexp.MustCompile(`(?i):\s*episode\s+\D`)

// isSpecial classifies a provider season as a movie/special. Classified
// seasons are assigned consumer season 0 and are excluded from offset
// computation.
//
// The heuristics are inherently approximate; the keyword set is configurable
// because provider title conventions vary by language and region.
func (m *Mapper) isSpecial(season *catalog.Season, episodes []*catalog.Episode) bool {
	title := strings.ToLower(season.Title)

	for _, kw := range m.keywords {
		if containsWord(title, strings.ToLower(kw)) {
			return true
		}
	}

	if colonSubtitlePattern.MatchString(season.Title) {
		return true
	}

	// A lone feature-length episode marks the season as a movie even when the
	// title gives nothing away.
	regular := lo.Filter(episodes, func(e *catalog.Episode, _ int) bool {
		return !e.IsClip
	})
	if len(regular) == 1 {
		ep := regular[0]
		if ep.DurationMinutes() >= m.featureMinutes {
			return true
		}
		epTitle := strings.ToLower(ep.Title)
		for _, kw := range m.keywords {
			if containsWord(epTitle, strings.ToLower(kw)) {
				return true
			}
		}
	}

	return false
}

// containsWord reports whether s contains w as a whole word, so that "movie"
// does not fire on "movement".
func containsWord(s, w string) bool {
	idx := 0
	for {
		i := strings.Index(s[idx:], w)
		if i < 0 {
			return false
		}
		start := idx + i
		end := start + len(w)
		beforeOK := start == 0 || !isWordRune(s[start-1])
		afterOK := end == len(s) || !isWordRune(s[end])
		if beforeOK && afterOK {
			return true
		}
		idx = start + 1
	}
}

func isWordRune(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z' || b >= '0' && b <= '9'
}
