// Package scrape implements last-resort extraction of catalog data from
// rendered page markup. Extractors are explicitly best-effort: they recover
// less metadata than the structured tiers and callers must tolerate partial
// records.
package scrape

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/ocnaibill/crunchyroll-jellyfin/catalog"
)

// Extractor pulls a partial series record out of rendered page HTML.
type Extractor interface {
	Name() string
	ExtractSeries(html string) (*catalog.Series, error)
}

// Resolve returns the extractor to use: the first custom Lua extractor when
// any is installed, otherwise the built-in pattern extractor.
func Resolve() Extractor {
	if customs, err := LoadExtractors(); err == nil && len(customs) > 0 {
		return customs[0]
	}
	return Builtin{}
}

// Builtin is the pattern-based fallback extractor. It reads the page's social
// metadata tags, which survive markup redesigns better than the rendered DOM.
type Builtin struct{}

func (Builtin) Name() string { return "builtin" }

var (
	ogTitle       = regexp.MustCompile(`<meta[^>]+property="og:title"[^>]+content="(?P<v>[^"]*)"`)
	ogDescription = regexp.MustCompile(`<meta[^>]+property="og:description"[^>]+content="(?P<v>[^"]*)"`)
	ogImage       = regexp.MustCompile(`<meta[^>]+property="og:image"[^>]+content="(?P<v>[^"]*)"`)
	yearPattern   = regexp.MustCompile(`"series_launch_year"\s*:\s*(?P<v>\d{4})`)
)

func (Builtin) ExtractSeries(html string) (*catalog.Series, error) {
	series := &catalog.Series{Partial: true}

	if m := ogTitle.FindStringSubmatch(html); m != nil {
		series.Title = m[1]
	}
	if m := ogDescription.FindStringSubmatch(html); m != nil {
		series.Description = m[1]
	}
	if m := ogImage.FindStringSubmatch(html); m != nil {
		series.Images.PosterTall = [][]catalog.Image{{{Source: m[1]}}}
	}
	if m := yearPattern.FindStringSubmatch(html); m != nil {
		series.Year, _ = strconv.Atoi(m[1])
	}

	if series.Title == "" {
		return nil, fmt.Errorf("no series markers found in page")
	}
	return series, nil
}

var (
	seriesLinkPattern    = regexp.MustCompile(`<a[^>]+href="[^"]*/series/(?P<id>[A-Za-z0-9]+)[^"]*"[^>]*>\s*(?P<title>[^<]+?)\s*<`)
	episodeNumberPattern = regexp.MustCompile(`"episode_number"\s*:\s*(?P<v>\d+)`)
)

// ExtractSearchHits recovers partial series hits from a rendered search page
// by scanning its series links. Hits are deduplicated by id in page order.
func ExtractSearchHits(html string) []*catalog.Series {
	seen := make(map[string]bool)
	var hits []*catalog.Series
	for _, m := range seriesLinkPattern.FindAllStringSubmatch(html, -1) {
		id, title := m[1], strings.TrimSpace(m[2])
		if title == "" || seen[id] {
			continue
		}
		seen[id] = true
		hits = append(hits, &catalog.Series{ID: id, Title: title, Partial: true})
	}
	return hits
}

// ExtractEpisodeMeta recovers a partial episode record from a rendered watch
// page's social metadata tags.
func ExtractEpisodeMeta(html string) (*catalog.Episode, error) {
	episode := &catalog.Episode{Partial: true}

	if m := ogTitle.FindStringSubmatch(html); m != nil {
		episode.Title = m[1]
	}
	if m := ogDescription.FindStringSubmatch(html); m != nil {
		episode.Description = m[1]
	}
	if m := episodeNumberPattern.FindStringSubmatch(html); m != nil {
		episode.Number, _ = strconv.Atoi(m[1])
	}

	if episode.Title == "" {
		return nil, fmt.Errorf("no episode markers found in page")
	}
	return episode, nil
}
