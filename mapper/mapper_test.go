package mapper

import (
	"testing"

	"github.com/ocnaibill/crunchyroll-jellyfin/catalog"
	. "github.com/smartystreets/goconvey/convey"
)

func newTestMapper() *Mapper {
	return NewWith([]string{"movie", "film", "special", "ova"}, 60)
}

func numberedEpisodes(seasonID string, first, count int) []*catalog.Episode {
	episodes := make([]*catalog.Episode, 0, count)
	for i := 0; i < count; i++ {
		episodes = append(episodes, &catalog.Episode{
			ID:             seasonID + "-ep-" + string(rune('a'+i)),
			SeasonID:       seasonID,
			Number:         first + i,
			SequenceNumber: float64(i + 1),
		})
	}
	return episodes
}

func TestBuildMapping(t *testing.T) {
	m := newTestMapper()

	Convey("Given a series with continuous numbering and an interleaved movie", t, func() {
		seasons := []*catalog.Season{
			{ID: "s1", Number: 1, SequenceNumber: 1, Title: "Blue Lock"},
			{ID: "sm", Number: 2, SequenceNumber: 2, Title: "Blue Lock The Movie -Episode Nagi-"},
			{ID: "s2", Number: 2, SequenceNumber: 3, Title: "Blue Lock Season 2"},
		}
		episodes := map[string][]*catalog.Episode{
			"s1": numberedEpisodes("s1", 1, 24),
			"sm": {{ID: "movie", SeasonID: "sm", EpisodeRaw: "Movie", DurationMs: 91 * 60000, SequenceNumber: 1}},
			"s2": numberedEpisodes("s2", 25, 14),
		}

		Convey("When the mapping is built", func() {
			mapping := m.BuildMapping("series", seasons, episodes)

			Convey("Then the movie season becomes a special", func() {
				So(mapping.Specials, ShouldHaveLength, 1)
				So(mapping.Specials[0].ConsumerSeason, ShouldEqual, 0)
				So(mapping.Specials[0].SeasonID, ShouldEqual, "sm")
			})

			Convey("And both regular seasons are mapped by their real number", func() {
				So(mapping.Regular, ShouldContainKey, 1)
				So(mapping.Regular, ShouldContainKey, 2)
				So(mapping.Regular[2].SeasonID, ShouldEqual, "s2")
			})

			Convey("And the second season carries the continuous numbering offset", func() {
				So(mapping.Regular[1].Offset, ShouldEqual, 0)
				So(mapping.Regular[2].Offset, ShouldEqual, 24)
			})

			Convey("And the second season's first episode resolves exactly", func() {
				result := m.Match(2, 1, mapping, episodes)
				So(result.Matched, ShouldBeTrue)
				So(result.Confidence, ShouldEqual, catalog.ConfidenceExact)
				So(result.Episode.Number, ShouldEqual, 25)
			})
		})
	})

	Convey("Given a series whose first season is unavailable", t, func() {
		seasons := []*catalog.Season{
			{ID: "s2", Number: 2, SequenceNumber: 1, Title: "Season 2"},
			{ID: "s3", Number: 3, SequenceNumber: 2, Title: "Season 3"},
		}
		episodes := map[string][]*catalog.Episode{
			"s2": numberedEpisodes("s2", 1, 12),
			"s3": numberedEpisodes("s3", 1, 12),
		}

		Convey("When the mapping is built", func() {
			mapping := m.BuildMapping("series", seasons, episodes)

			Convey("Then seasons keep their real numbers instead of shifting", func() {
				So(mapping.Regular, ShouldNotContainKey, 1)
				So(mapping.Regular[2].SeasonID, ShouldEqual, "s2")
				So(mapping.Regular[3].SeasonID, ShouldEqual, "s3")
			})

			Convey("And resolving against the missing season fails cleanly", func() {
				result := m.Match(1, 1, mapping, episodes)
				So(result.Matched, ShouldBeFalse)
				So(result.Confidence, ShouldEqual, catalog.ConfidenceNone)
				So(result.Note, ShouldStartWith, "S01E01:")
			})
		})
	})

	Convey("Given split cours sharing one provider season number", t, func() {
		seasons := []*catalog.Season{
			{ID: "part1", Number: 1, SequenceNumber: 1, Title: "Season 1"},
			{ID: "part2", Number: 1, SequenceNumber: 2, Title: "Season 1 Part 2"},
		}
		episodes := map[string][]*catalog.Episode{
			"part1": numberedEpisodes("part1", 1, 12),
			"part2": numberedEpisodes("part2", 13, 12),
		}

		Convey("When the mapping is built", func() {
			mapping := m.BuildMapping("series", seasons, episodes)

			Convey("Then the first occurrence in sequence order wins", func() {
				So(mapping.Regular, ShouldHaveLength, 1)
				So(mapping.Regular[1].SeasonID, ShouldEqual, "part1")
			})
		})
	})
}

func TestMatch(t *testing.T) {
	m := newTestMapper()

	Convey("Given a season with an unparseable leading episode", t, func() {
		seasons := []*catalog.Season{
			{ID: "s1", Number: 1, SequenceNumber: 1, Title: "Season 1"},
		}
		episodes := map[string][]*catalog.Episode{
			"s1": {
				{ID: "sp", SeasonID: "s1", EpisodeRaw: "SP", SequenceNumber: 1},
				{ID: "e1", SeasonID: "s1", EpisodeRaw: "1", SequenceNumber: 2},
				{ID: "e2", SeasonID: "s1", EpisodeRaw: "2", SequenceNumber: 3},
			},
		}
		mapping := m.BuildMapping("series", seasons, episodes)

		Convey("Then a numeric request still resolves exactly", func() {
			result := m.Match(1, 2, mapping, episodes)
			So(result.Matched, ShouldBeTrue)
			So(result.Confidence, ShouldEqual, catalog.ConfidenceExact)
			So(result.Episode.ID, ShouldEqual, "e2")
		})
	})

	Convey("Given a season whose numbering defeats the offset", t, func() {
		seasons := []*catalog.Season{
			{ID: "s1", Number: 1, SequenceNumber: 1, Title: "Season 1"},
		}
		episodes := map[string][]*catalog.Episode{
			"s1": {
				{ID: "e10", SeasonID: "s1", EpisodeRaw: "10", SequenceNumber: 1},
				{ID: "e5", SeasonID: "s1", EpisodeRaw: "5", SequenceNumber: 2},
			},
		}
		mapping := m.BuildMapping("series", seasons, episodes)

		Convey("Then raw string equality is the last resort", func() {
			result := m.Match(1, 5, mapping, episodes)
			So(result.Matched, ShouldBeTrue)
			So(result.Confidence, ShouldEqual, catalog.ConfidenceString)
			So(result.Episode.ID, ShouldEqual, "e5")
		})
	})

	Convey("Given a season containing a clip with a stolen number", t, func() {
		seasons := []*catalog.Season{
			{ID: "s1", Number: 1, SequenceNumber: 1, Title: "Season 1"},
		}
		episodes := map[string][]*catalog.Episode{
			"s1": {
				{ID: "clip", SeasonID: "s1", Number: 1, SequenceNumber: 0.5, IsClip: true},
				{ID: "real", SeasonID: "s1", Number: 1, SequenceNumber: 1},
			},
		}
		mapping := m.BuildMapping("series", seasons, episodes)

		Convey("Then the clip is never matched", func() {
			result := m.Match(1, 1, mapping, episodes)
			So(result.Matched, ShouldBeTrue)
			So(result.Episode.ID, ShouldEqual, "real")
		})
	})

	Convey("Given a series with two movie seasons", t, func() {
		seasons := []*catalog.Season{
			{ID: "s1", Number: 1, SequenceNumber: 1, Title: "Season 1"},
			{ID: "m1", Number: 2, SequenceNumber: 2, Title: "First Movie"},
			{ID: "m2", Number: 3, SequenceNumber: 3, Title: "Second Movie"},
		}
		episodes := map[string][]*catalog.Episode{
			"s1": numberedEpisodes("s1", 1, 12),
			"m1": {{ID: "movie-1", SeasonID: "m1", Number: 1, DurationMs: 90 * 60000, SequenceNumber: 1}},
			"m2": {{ID: "movie-2", SeasonID: "m2", Number: 1, DurationMs: 95 * 60000, SequenceNumber: 1}},
		}
		mapping := m.BuildMapping("series", seasons, episodes)

		Convey("Then both land in consumer season zero", func() {
			So(mapping.Specials, ShouldHaveLength, 2)
		})

		Convey("Then the first special resolves exactly", func() {
			result := m.Match(0, 1, mapping, episodes)
			So(result.Matched, ShouldBeTrue)
			So(result.Confidence, ShouldEqual, catalog.ConfidenceExact)
			So(result.Episode.ID, ShouldEqual, "movie-1")
		})

		Convey("Then the second special is reachable positionally", func() {
			result := m.Match(0, 2, mapping, episodes)
			So(result.Matched, ShouldBeTrue)
			So(result.Confidence, ShouldEqual, catalog.ConfidencePositional)
			So(result.Episode.ID, ShouldEqual, "movie-2")
		})
	})

	Convey("Given a request out of every tier's reach", t, func() {
		seasons := []*catalog.Season{
			{ID: "s1", Number: 1, SequenceNumber: 1, Title: "Season 1"},
		}
		episodes := map[string][]*catalog.Episode{
			"s1": numberedEpisodes("s1", 1, 3),
		}
		mapping := m.BuildMapping("series", seasons, episodes)

		Convey("Then the result is a structured non-match, not an error", func() {
			result := m.Match(1, 99, mapping, episodes)
			So(result.Matched, ShouldBeFalse)
			So(result.Episode, ShouldBeNil)
			So(result.Confidence, ShouldEqual, catalog.ConfidenceNone)
			So(result.Note, ShouldContainSubstring, "S01E99")
		})
	})
}

func TestIsSpecial(t *testing.T) {
	m := newTestMapper()

	Convey("Season classification", t, func() {
		Convey("A keyword in the season title fires on whole words only", func() {
			So(m.isSpecial(&catalog.Season{Title: "The Movie"}, nil), ShouldBeTrue)
			So(m.isSpecial(&catalog.Season{Title: "A Study in Movement"}, nil), ShouldBeFalse)
		})

		Convey("A colon subtitle naming a character reads as a special", func() {
			So(m.isSpecial(&catalog.Season{Title: "Blue Lock: Episode Nagi"}, nil), ShouldBeTrue)
		})

		Convey("A colon subtitle followed by a digit does not", func() {
			So(m.isSpecial(&catalog.Season{Title: "Something: Episode 2"}, nil), ShouldBeFalse)
		})

		Convey("A lone feature-length episode marks the season", func() {
			episodes := []*catalog.Episode{
				{DurationMs: 95 * 60000, SequenceNumber: 1},
			}
			So(m.isSpecial(&catalog.Season{Title: "Season 4"}, episodes), ShouldBeTrue)
		})

		Convey("A lone short episode with a movie title marks the season", func() {
			episodes := []*catalog.Episode{
				{Title: "The Film Prologue", DurationMs: 20 * 60000, SequenceNumber: 1},
			}
			mm := NewWith([]string{"film"}, 60)
			So(mm.isSpecial(&catalog.Season{Title: "Season 4"}, episodes), ShouldBeTrue)
		})

		Convey("An ordinary season stays regular", func() {
			So(m.isSpecial(&catalog.Season{Title: "Season 2"}, numberedEpisodes("s", 1, 12)), ShouldBeFalse)
		})
	})
}
