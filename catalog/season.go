// Package catalog defines the domain models for the provider's series, season and episode records.
package catalog

// Season represents one provider season of a series.
//
// The season identifier is globally unique within the provider. The season
// number is not: geo-blocking can remove a season entirely, and movies or
// specials share season number 1 with the real first season. SequenceNumber
// imposes a total order across the whole series and is the only field safe
// for positional reasoning.
type Season struct {
	ID              string   `json:"id"`
	SeriesID        string   `json:"series_id"`
	Number          int      `json:"season_number"`
	SequenceNumber  int      `json:"season_sequence_number"`
	Title           string   `json:"title"`
	Description     string   `json:"description,omitempty"`
	AudioLocales    []string `json:"audio_locales,omitempty"`
	SubtitleLocales []string `json:"subtitle_locales,omitempty"`
	EpisodeCount    int      `json:"number_of_episodes"`
}

func (s *Season) String() string {
	return s.Title
}
