// Package catalog defines the domain models for the provider's series, season and episode records.
package catalog

import "encoding/json"

// Envelope is the provider's standard content response wrapper.
type Envelope[T any] struct {
	Total int             `json:"total"`
	Data  []T             `json:"data"`
	Meta  json.RawMessage `json:"meta,omitempty"`
}

// Image is a single resolution variant of a poster or thumbnail.
type Image struct {
	Source string `json:"source"`
	Type   string `json:"type"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// Images groups the image sets attached to a series.
// The provider nests each set as a list of variant lists, one per artwork.
type Images struct {
	PosterTall [][]Image `json:"poster_tall,omitempty"`
	PosterWide [][]Image `json:"poster_wide,omitempty"`
	Thumbnail  [][]Image `json:"thumbnail,omitempty"`
}

// Best returns the highest-resolution variant of the first artwork in the
// set, or the zero Image when the set is empty.
func Best(set [][]Image) Image {
	if len(set) == 0 || len(set[0]) == 0 {
		return Image{}
	}
	best := set[0][0]
	for _, img := range set[0] {
		if img.Width > best.Width {
			best = img
		}
	}
	return best
}

// Series represents a top-level catalog entity.
// Immutable value after construction; cached by identifier.
type Series struct {
	ID              string   `json:"id"`
	Title           string   `json:"title"`
	Slug            string   `json:"slug_title,omitempty"`
	Description     string   `json:"description"`
	ExtendedDesc    string   `json:"extended_description,omitempty"`
	Year            int      `json:"series_launch_year"`
	MaturityRatings []string `json:"maturity_ratings,omitempty"`
	Keywords        []string `json:"keywords,omitempty"`
	Images          Images   `json:"images"`

	// Partial marks records recovered through DOM extraction, which cannot
	// always resolve full-resolution imagery or keyword sets.
	Partial bool `json:"-"`
}

func (s *Series) String() string {
	return s.Title
}

// Poster returns the best available tall poster URL, falling back to the wide poster.
func (s *Series) Poster() string {
	if img := Best(s.Images.PosterTall); img.Source != "" {
		return img.Source
	}
	return Best(s.Images.PosterWide).Source
}
