// Package catalog defines the domain models for the provider's series, season and episode records.
package catalog

import (
	"strconv"
	"strings"
)

// Episode represents a discrete media segment within a provider season.
type Episode struct {
	ID       string `json:"id"`
	SeasonID string `json:"season_id"`

	// EpisodeRaw is the provider's display episode number. It is a string and
	// may be non-numeric ("SP", "13.5").
	EpisodeRaw string `json:"episode"`

	// Number is the provider's parsed integer episode number, 0 when the raw
	// field does not parse.
	Number int `json:"episode_number"`

	// SequenceNumber orders episodes across the season continuously.
	// A float, since recap and half episodes occupy half-number slots.
	SequenceNumber float64 `json:"sequence_number"`

	Title           string   `json:"title"`
	Description     string   `json:"description,omitempty"`
	DurationMs      int      `json:"duration_ms"`
	AirDate         string   `json:"episode_air_date,omitempty"`
	Images          Images   `json:"images"`
	MaturityRatings []string `json:"maturity_ratings,omitempty"`
	IsClip          bool     `json:"is_clip"`

	// Partial marks records recovered through DOM extraction, which cannot
	// resolve durations, imagery or sequence numbers.
	Partial bool `json:"-"`
}

func (e *Episode) String() string {
	return e.Title
}

// ParsedNumber returns the integer episode number, recovering it from the raw
// display field when the provider omitted the parsed one.
func (e *Episode) ParsedNumber() int {
	if e.Number != 0 {
		return e.Number
	}
	n, err := strconv.Atoi(strings.TrimSpace(e.EpisodeRaw))
	if err != nil {
		return 0
	}
	return n
}

// DurationMinutes returns the episode runtime in whole minutes.
func (e *Episode) DurationMinutes() int {
	return e.DurationMs / 60000
}

// Thumbnail returns the best available thumbnail URL.
func (e *Episode) Thumbnail() string {
	return Best(e.Images.Thumbnail).Source
}
