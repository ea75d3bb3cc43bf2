// Package catalog defines the domain models for the provider's series, season and episode records.
package catalog

import "fmt"

// Confidence levels form a closed ordinal scale for episode match results.
const (
	ConfidenceExact      = 100 // offset-based exact numeric match
	ConfidencePositional = 80  // Nth non-clip episode within the season
	ConfidenceString     = 70  // string equality on the raw episode field
	ConfidenceNone       = 0
)

// SeasonMappingEntry links one consumer-facing season number to a provider season.
// Computed once per series per mapping run. A season classified as a movie or
// special is always assigned consumer season 0 and never shifts the numbering
// of subsequent real seasons.
type SeasonMappingEntry struct {
	ConsumerSeason int    `json:"consumer_season"`
	SeasonID       string `json:"season_id"`
	SeasonNumber   int    `json:"season_number"`
	Title          string `json:"title"`

	// Offset is added to a consumer's per-season episode number to obtain the
	// provider's continuous episode number.
	Offset int `json:"offset"`
}

// Mapping is the full reconciliation of a series' provider seasons against
// the consumer's per-season-starting-at-one numbering scheme.
type Mapping struct {
	SeriesID string `json:"series_id"`

	// Regular holds one entry per regular season, keyed by consumer season number.
	Regular map[int]SeasonMappingEntry `json:"regular"`

	// Specials holds the seasons classified as movies or specials, all of
	// which share consumer season 0.
	Specials []SeasonMappingEntry `json:"specials"`
}

// Entry returns the mapping entry for a consumer season number. Season 0
// yields the first special entry; episode resolution spans all specials and
// lives in the mapper, not here.
func (m *Mapping) Entry(consumerSeason int) (SeasonMappingEntry, bool) {
	if consumerSeason == 0 {
		if len(m.Specials) == 0 {
			return SeasonMappingEntry{}, false
		}
		return m.Specials[0], true
	}
	e, ok := m.Regular[consumerSeason]
	return e, ok
}

// EpisodeMatchResult reports the outcome of resolving a single consumer
// (season, episode) pair. Never an error: an unmatched pair is a normal,
// structured outcome with confidence 0.
type EpisodeMatchResult struct {
	Matched    bool     `json:"matched"`
	Episode    *Episode `json:"episode,omitempty"`
	Confidence int      `json:"confidence"`
	Note       string   `json:"note,omitempty"`
}

// NoMatch builds a failed result with a diagnostic note naming the unmatched pair.
func NoMatch(consumerSeason, consumerEpisode int, reason string) EpisodeMatchResult {
	return EpisodeMatchResult{
		Confidence: ConfidenceNone,
		Note:       fmt.Sprintf("S%02dE%02d: %s", consumerSeason, consumerEpisode, reason),
	}
}
