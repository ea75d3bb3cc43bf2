// Package mapper reconciles the provider's continuous, movie-contaminated
// season/episode numbering with the consumer's per-season numbering scheme.
package mapper

import (
	"sort"
	"strconv"
	"strings"

	"github.com/ocnaibill/crunchyroll-jellyfin/catalog"
	"github.com/ocnaibill/crunchyroll-jellyfin/key"
	"github.com/ocnaibill/crunchyroll-jellyfin/log"
	"github.com/samber/lo"
	"github.com/spf13/viper"
)

// Mapper computes season mappings and matches individual episode requests.
// The zero value is not usable; construct with New or NewWith.
type Mapper struct {
	keywords       []string
	featureMinutes int
}

// New builds a Mapper from the global configuration.
func New() *Mapper {
	return NewWith(
		viper.GetStringSlice(key.MapperSpecialKeywords),
		viper.GetInt(key.MapperFeatureMinutes),
	)
}

// NewWith builds a Mapper with an explicit keyword set and feature-length
// threshold in minutes.
func NewWith(keywords []string, featureMinutes int) *Mapper {
	if featureMinutes <= 0 {
		featureMinutes = 60
	}
	return &Mapper{keywords: keywords, featureMinutes: featureMinutes}
}

// BuildMapping reconciles a series' provider seasons against the consumer's
// numbering. Regular seasons map by the provider's real season number, not by
// position, so an absent season (geo-blocking) never shifts later seasons.
func (m *Mapper) BuildMapping(seriesID string, seasons []*catalog.Season, episodesBySeason map[string][]*catalog.Episode) *catalog.Mapping {
	mapping := &catalog.Mapping{
		SeriesID: seriesID,
		Regular:  make(map[int]catalog.SeasonMappingEntry),
	}

	ordered := make([]*catalog.Season, len(seasons))
	copy(ordered, seasons)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].SequenceNumber < ordered[j].SequenceNumber
	})

	for _, season := range ordered {
		episodes := episodesBySeason[season.ID]

		if m.isSpecial(season, episodes) {
			mapping.Specials = append(mapping.Specials, catalog.SeasonMappingEntry{
				ConsumerSeason: 0,
				SeasonID:       season.ID,
				SeasonNumber:   season.Number,
				Title:          season.Title,
			})
			log.Debugf("mapping: season %q (%s) classified as special", season.Title, season.ID)
			continue
		}

		if _, taken := mapping.Regular[season.Number]; taken {
			// The provider repeats season numbers across split cours; the
			// first occurrence in sequence order wins.
			log.Debugf("mapping: duplicate provider season number %d, keeping first", season.Number)
			continue
		}

		mapping.Regular[season.Number] = catalog.SeasonMappingEntry{
			ConsumerSeason: season.Number,
			SeasonID:       season.ID,
			SeasonNumber:   season.Number,
			Title:          season.Title,
			Offset:         episodeOffset(episodes),
		}
	}

	return mapping
}

// episodeOffset computes the per-season episode offset: the provider episode
// number of the season's lowest-sequence episode, minus one. A season whose
// first episode is already numbered 1 has offset 0.
func episodeOffset(episodes []*catalog.Episode) int {
	first := firstBySequence(episodes)
	if first == nil {
		return 0
	}
	if n := first.ParsedNumber(); n > 0 {
		return n - 1
	}
	return 0
}

// Match resolves a consumer (season, episode) pair against a previously built
// mapping, in priority order: offset-based exact numeric match, positional
// match within the season, then string equality on the raw episode field.
// Consumer season 0 spans every special season: their episode lists are
// searched as one combined list in mapping order.
func (m *Mapper) Match(consumerSeason, consumerEpisode int, mapping *catalog.Mapping, episodesBySeason map[string][]*catalog.Episode) catalog.EpisodeMatchResult {
	var (
		episodes []*catalog.Episode
		offset   int
	)
	if consumerSeason == 0 {
		if len(mapping.Specials) == 0 {
			return catalog.NoMatch(consumerSeason, consumerEpisode, "no provider season mapped to this consumer season")
		}
		for _, entry := range mapping.Specials {
			episodes = append(episodes, episodesBySeason[entry.SeasonID]...)
		}
	} else {
		entry, ok := mapping.Regular[consumerSeason]
		if !ok {
			return catalog.NoMatch(consumerSeason, consumerEpisode, "no provider season mapped to this consumer season")
		}
		episodes = episodesBySeason[entry.SeasonID]
		offset = entry.Offset
	}
	if len(episodes) == 0 {
		return catalog.NoMatch(consumerSeason, consumerEpisode, "mapped provider season has no episodes")
	}

	// (a) Exact numeric match through the season offset.
	target := consumerEpisode + offset
	for _, ep := range episodes {
		if !ep.IsClip && ep.ParsedNumber() == target {
			return catalog.EpisodeMatchResult{
				Matched:    true,
				Episode:    ep,
				Confidence: catalog.ConfidenceExact,
			}
		}
	}

	// (b) Positional match: the Nth non-clip episode in sequence order.
	regular := lo.Filter(episodes, func(e *catalog.Episode, _ int) bool {
		return !e.IsClip
	})
	sort.SliceStable(regular, func(i, j int) bool {
		return regular[i].SequenceNumber < regular[j].SequenceNumber
	})
	if consumerEpisode >= 1 && consumerEpisode <= len(regular) {
		return catalog.EpisodeMatchResult{
			Matched:    true,
			Episode:    regular[consumerEpisode-1],
			Confidence: catalog.ConfidencePositional,
			Note:       "positional match within season",
		}
	}

	// (c) String equality against the raw, possibly non-numeric episode field.
	want := strconv.Itoa(consumerEpisode)
	for _, ep := range episodes {
		if strings.TrimSpace(ep.EpisodeRaw) == want {
			return catalog.EpisodeMatchResult{
				Matched:    true,
				Episode:    ep,
				Confidence: catalog.ConfidenceString,
				Note:       "raw episode field equality",
			}
		}
	}

	return catalog.NoMatch(consumerSeason, consumerEpisode, "no provider episode matched")
}

// firstBySequence returns the non-clip episode with the lowest sequence number.
func firstBySequence(episodes []*catalog.Episode) *catalog.Episode {
	regular := lo.Filter(episodes, func(e *catalog.Episode, _ int) bool {
		return !e.IsClip
	})
	if len(regular) == 0 {
		return nil
	}
	return lo.MinBy(regular, func(a, b *catalog.Episode) bool {
		return a.SequenceNumber < b.SequenceNumber
	})
}
