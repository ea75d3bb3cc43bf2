package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/ocnaibill/crunchyroll-jellyfin/catalog"
	"github.com/ocnaibill/crunchyroll-jellyfin/constant"
	"github.com/ocnaibill/crunchyroll-jellyfin/log"
	"github.com/ocnaibill/crunchyroll-jellyfin/mapper"
	"github.com/ocnaibill/crunchyroll-jellyfin/scrape"
	"github.com/ocnaibill/crunchyroll-jellyfin/token"
)

// searchBucket is one typed result group inside a search response.
type searchBucket struct {
	Type  string            `json:"type"`
	Items []*catalog.Series `json:"items"`
}

// Search runs a catalog search and returns series ranked by relevance to the
// query. The top hit and its query relation are persisted so repeated lookups
// of the same title resolve without any network tier at all.
func (o *Orchestrator) Search(ctx context.Context, query string, limit int) ([]*catalog.Series, error) {
	if cached := o.cachedSearch(query); cached != nil {
		return []*catalog.Series{cached}, nil
	}

	if limit <= 0 {
		limit = 10
	}

	path := fmt.Sprintf("%s?q=%s&n=%d&type=series", constant.SearchPath, url.QueryEscape(query), limit)

	body, err := o.getLocalized(ctx, path, func(b string) int {
		env, err := decode[searchBucket](b)
		if err != nil {
			return 0
		}
		return len(env.Data)
	})
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, token.ErrAuthFailed):
		return nil, err
	case err != nil:
		// Last tier: scan the rendered search page for series links.
		hits, derr := o.searchFromPage(ctx, query)
		if derr != nil {
			log.Warnf("fetcher: search page extraction failed for %q: %v", query, derr)
			return nil, ErrUnavailable
		}
		return rankResults(query, hits), nil
	}

	env, err := decode[searchBucket](body)
	if err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	var hits []*catalog.Series
	for _, bucket := range env.Data {
		if bucket.Type != "" && bucket.Type != "series" && bucket.Type != "top_results" {
			continue
		}
		hits = append(hits, bucket.Items...)
	}

	ranked := rankResults(query, hits)
	if len(ranked) > 0 {
		top := ranked[0]
		if err := relationCacher.Set(query, top.ID); err != nil {
			log.Warnf("fetcher: persist search relation: %v", err)
		}
		if err := seriesCacher.Set(top.ID, top); err != nil {
			log.Warnf("fetcher: persist series record: %v", err)
		}
	}
	return ranked, nil
}

// cachedSearch resolves a query through the persistent relation and series
// caches without touching the network.
func (o *Orchestrator) cachedSearch(query string) *catalog.Series {
	id, ok := relationCacher.Get(query).Get()
	if !ok {
		return nil
	}
	series, ok := seriesCacher.Get(id).Get()
	if !ok {
		return nil
	}
	log.Debugf("fetcher: search %q served from persistent cache", query)
	return series
}

// Series resolves a series record by identifier. When both structured tiers
// fail, the record is recovered from the rendered page and marked partial.
func (o *Orchestrator) Series(ctx context.Context, id string) (*catalog.Series, error) {
	if series, ok := o.scraped.Load(id); ok {
		return series, nil
	}
	if series, ok := seriesCacher.Get(id).Get(); ok {
		return series, nil
	}

	path := fmt.Sprintf("%s/series/%s", constant.ContentPathPrefix, id)
	body, err := o.getLocalized(ctx, path, dataCount[*catalog.Series])
	switch {
	case err == nil:
		env, derr := decode[*catalog.Series](body)
		if derr != nil {
			return nil, fmt.Errorf("decode series %s: %w", id, derr)
		}
		if len(env.Data) == 0 {
			return nil, ErrNotFound
		}
		series := env.Data[0]
		if serr := seriesCacher.Set(id, series); serr != nil {
			log.Warnf("fetcher: persist series record: %v", serr)
		}
		return series, nil
	case errors.Is(err, ErrNotFound), errors.Is(err, token.ErrAuthFailed):
		return nil, err
	}

	// Last tier: pull the record out of the rendered page itself.
	series, domErr := o.seriesFromPage(ctx, id)
	if domErr != nil {
		log.Warnf("fetcher: page extraction failed for %s: %v", id, domErr)
		return nil, ErrUnavailable
	}
	series.ID = id
	o.scraped.Store(id, series)
	return series, nil
}

// Seasons lists the seasons of a series in provider order.
func (o *Orchestrator) Seasons(ctx context.Context, seriesID string) ([]*catalog.Season, error) {
	path := fmt.Sprintf("%s/series/%s/seasons", constant.ContentPathPrefix, seriesID)
	body, err := o.getLocalized(ctx, path, dataCount[*catalog.Season])
	if err != nil {
		return nil, err
	}

	env, err := decode[*catalog.Season](body)
	if err != nil {
		return nil, fmt.Errorf("decode seasons of %s: %w", seriesID, err)
	}
	return env.Data, nil
}

// Episodes lists the episodes of a season in provider order.
func (o *Orchestrator) Episodes(ctx context.Context, seasonID string) ([]*catalog.Episode, error) {
	path := fmt.Sprintf("%s/seasons/%s/episodes", constant.ContentPathPrefix, seasonID)
	body, err := o.getLocalized(ctx, path, dataCount[*catalog.Episode])
	if err != nil {
		return nil, err
	}

	env, err := decode[*catalog.Episode](body)
	if err != nil {
		return nil, fmt.Errorf("decode episodes of %s: %w", seasonID, err)
	}
	return env.Data, nil
}

// Episode resolves a single episode record by identifier. When both
// structured tiers fail, a sparse record is recovered from the watch page.
func (o *Orchestrator) Episode(ctx context.Context, episodeID string) (*catalog.Episode, error) {
	path := fmt.Sprintf("%s/episodes/%s", constant.ContentPathPrefix, episodeID)
	body, err := o.getLocalized(ctx, path, dataCount[*catalog.Episode])
	switch {
	case err == nil:
		env, derr := decode[*catalog.Episode](body)
		if derr != nil {
			return nil, fmt.Errorf("decode episode %s: %w", episodeID, derr)
		}
		if len(env.Data) == 0 {
			return nil, ErrNotFound
		}
		return env.Data[0], nil
	case errors.Is(err, ErrNotFound), errors.Is(err, token.ErrAuthFailed):
		return nil, err
	}

	episode, domErr := o.episodeFromPage(ctx, episodeID)
	if domErr != nil {
		log.Warnf("fetcher: watch page extraction failed for %s: %v", episodeID, domErr)
		return nil, ErrUnavailable
	}
	return episode, nil
}

// SeasonMapping builds the full season reconciliation for a series: every
// season's episode list is fetched and classified, then mapped onto the
// consumer numbering scheme.
func (o *Orchestrator) SeasonMapping(ctx context.Context, seriesID string) (*catalog.Mapping, map[string][]*catalog.Episode, error) {
	seasons, err := o.Seasons(ctx, seriesID)
	if err != nil {
		return nil, nil, err
	}

	episodesBySeason := make(map[string][]*catalog.Episode, len(seasons))
	for _, season := range seasons {
		episodes, err := o.Episodes(ctx, season.ID)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				// A geo-blocked season lists without episodes; classify it
				// from its own metadata and move on.
				continue
			}
			return nil, nil, err
		}
		episodesBySeason[season.ID] = episodes
	}

	return mapper.New().BuildMapping(seriesID, seasons, episodesBySeason), episodesBySeason, nil
}

// ResolveEpisode maps a consumer (season, episode) pair to a provider episode
// record. An unmatched pair is a structured zero-confidence result, not an
// error; errors mean the catalog itself could not be read.
func (o *Orchestrator) ResolveEpisode(ctx context.Context, seriesID string, consumerSeason, consumerEpisode int) (catalog.EpisodeMatchResult, error) {
	mapping, episodesBySeason, err := o.SeasonMapping(ctx, seriesID)
	if err != nil {
		return catalog.EpisodeMatchResult{}, err
	}
	return mapper.New().Match(consumerSeason, consumerEpisode, mapping, episodesBySeason), nil
}

// getLocalized fetches a path with the preferred locale and retries with the
// fallback locale when the response decodes to zero records. count reports
// how many records a body carries.
func (o *Orchestrator) getLocalized(ctx context.Context, path string, count func(string) int) (string, error) {
	body, err := o.getJSON(ctx, withLocale(path, o.locale))
	if err != nil {
		return "", err
	}
	if count(body) > 0 || o.fallbackLocale == "" || o.fallbackLocale == o.locale {
		return body, nil
	}

	log.Debugf("fetcher: empty result for locale %s on %s, retrying with %s", o.locale, path, o.fallbackLocale)
	fallback, err := o.getJSON(ctx, withLocale(path, o.fallbackLocale))
	if err != nil {
		return body, nil
	}
	if count(fallback) > 0 {
		return fallback, nil
	}
	return body, nil
}

// seriesFromPage recovers a partial series record from the rendered catalog
// page: navigate the remote browser, wait for hydration, run the extraction
// script. When the automation client is unusable the raw solver HTML is fed
// through the page extractor instead.
func (o *Orchestrator) seriesFromPage(ctx context.Context, id string) (*catalog.Series, error) {
	pageURL := o.baseURL + "/series/" + id

	browser, err := o.ensureBrowser(ctx)
	if err == nil {
		series, derr := o.seriesFromDOM(ctx, browser, pageURL)
		if derr == nil {
			return series, nil
		}
		log.Warnf("fetcher: DOM extraction failed for %s: %v", id, derr)
	} else {
		log.Warnf("fetcher: browser unavailable for %s: %v", id, err)
	}

	solution, err := o.solver.Get(ctx, pageURL)
	if err != nil {
		return nil, err
	}
	return o.extractor.ExtractSeries(solution.Response)
}

// searchFromPage recovers partial search hits from the rendered search page.
// DOM extraction through the automation client is preferred; the raw solver
// HTML is scanned when the client is unusable. Hits are kept in the
// session-scoped scrape cache so follow-up Series calls resolve locally.
func (o *Orchestrator) searchFromPage(ctx context.Context, query string) ([]*catalog.Series, error) {
	pageURL := o.baseURL + "/search?q=" + url.QueryEscape(query)

	hits, err := o.searchHits(ctx, pageURL)
	if err != nil {
		return nil, err
	}
	if len(hits) == 0 {
		return nil, fmt.Errorf("search page exposed no series links")
	}
	for _, hit := range hits {
		o.scraped.Store(hit.ID, hit)
	}
	return hits, nil
}

func (o *Orchestrator) searchHits(ctx context.Context, pageURL string) ([]*catalog.Series, error) {
	browser, err := o.ensureBrowser(ctx)
	if err == nil {
		hits, derr := o.searchFromDOM(ctx, browser, pageURL)
		if derr == nil {
			return hits, nil
		}
		log.Warnf("fetcher: search DOM extraction failed: %v", derr)
	} else {
		log.Warnf("fetcher: browser unavailable for search: %v", err)
	}

	solution, err := o.solver.Get(ctx, pageURL)
	if err != nil {
		return nil, err
	}
	return scrape.ExtractSearchHits(solution.Response), nil
}

func (o *Orchestrator) searchFromDOM(ctx context.Context, browser Browser, pageURL string) ([]*catalog.Series, error) {
	if err := browser.Navigate(ctx, pageURL); err != nil {
		return nil, err
	}
	if err := o.awaitRendered(ctx, browser, constant.SearchRenderedProbeScript); err != nil {
		return nil, err
	}

	raw, err := browser.Evaluate(ctx, constant.ExtractSearchScript, false)
	if err != nil {
		return nil, err
	}

	var picked []struct {
		ID    string `json:"id"`
		Title string `json:"title"`
	}
	if err := json.Unmarshal([]byte(raw), &picked); err != nil {
		return nil, fmt.Errorf("decode search extraction result: %w", err)
	}

	hits := make([]*catalog.Series, 0, len(picked))
	for _, p := range picked {
		if p.ID == "" || p.Title == "" {
			continue
		}
		hits = append(hits, &catalog.Series{ID: p.ID, Title: p.Title, Partial: true})
	}
	return hits, nil
}

// episodeFromPage recovers a sparse episode record from the rendered watch
// page, through the automation client when possible and the solver HTML
// otherwise.
func (o *Orchestrator) episodeFromPage(ctx context.Context, episodeID string) (*catalog.Episode, error) {
	pageURL := o.baseURL + "/watch/" + episodeID

	browser, err := o.ensureBrowser(ctx)
	if err == nil {
		episode, derr := o.episodeFromDOM(ctx, browser, pageURL)
		if derr == nil {
			episode.ID = episodeID
			return episode, nil
		}
		log.Warnf("fetcher: episode DOM extraction failed for %s: %v", episodeID, derr)
	} else {
		log.Warnf("fetcher: browser unavailable for %s: %v", episodeID, err)
	}

	solution, err := o.solver.Get(ctx, pageURL)
	if err != nil {
		return nil, err
	}
	episode, err := scrape.ExtractEpisodeMeta(solution.Response)
	if err != nil {
		return nil, err
	}
	episode.ID = episodeID
	return episode, nil
}

func (o *Orchestrator) episodeFromDOM(ctx context.Context, browser Browser, pageURL string) (*catalog.Episode, error) {
	if err := browser.Navigate(ctx, pageURL); err != nil {
		return nil, err
	}
	if err := o.awaitRendered(ctx, browser, constant.WatchRenderedProbeScript); err != nil {
		return nil, err
	}

	raw, err := browser.Evaluate(ctx, constant.ExtractEpisodeScript, false)
	if err != nil {
		return nil, err
	}

	var picked struct {
		Title       string `json:"title"`
		Description string `json:"description"`
		Episode     string `json:"episode"`
	}
	if err := json.Unmarshal([]byte(raw), &picked); err != nil {
		return nil, fmt.Errorf("decode episode extraction result: %w", err)
	}
	if picked.Title == "" {
		return nil, fmt.Errorf("rendered watch page exposed no title")
	}

	return &catalog.Episode{
		Title:       picked.Title,
		Description: picked.Description,
		EpisodeRaw:  picked.Episode,
		Partial:     true,
	}, nil
}

func (o *Orchestrator) seriesFromDOM(ctx context.Context, browser Browser, pageURL string) (*catalog.Series, error) {
	if err := browser.Navigate(ctx, pageURL); err != nil {
		return nil, err
	}
	if err := o.awaitRendered(ctx, browser, constant.RenderedProbeScript); err != nil {
		return nil, err
	}

	raw, err := browser.Evaluate(ctx, constant.ExtractSeriesScript, false)
	if err != nil {
		return nil, err
	}

	var picked struct {
		Title       string `json:"title"`
		Description string `json:"description"`
		Poster      string `json:"poster"`
	}
	if err := json.Unmarshal([]byte(raw), &picked); err != nil {
		return nil, fmt.Errorf("decode extraction result: %w", err)
	}
	if picked.Title == "" {
		return nil, fmt.Errorf("rendered page exposed no title")
	}

	series := &catalog.Series{
		Title:       picked.Title,
		Description: picked.Description,
		Partial:     true,
	}
	if picked.Poster != "" {
		series.Images.PosterTall = [][]catalog.Image{{{Source: picked.Poster}}}
	}
	return series, nil
}

// awaitRendered polls a hydration probe until the page settles or the budget
// runs out.
func (o *Orchestrator) awaitRendered(ctx context.Context, browser Browser, probe string) error {
	deadline := time.Now().Add(renderPollBudget)
	for {
		result, err := browser.Evaluate(ctx, probe, false)
		if err == nil && result == "true" {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("page did not finish rendering within %s", renderPollBudget)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(renderPollInterval):
		}
	}
}

// decode unmarshals a provider envelope body.
func decode[T any](body string) (catalog.Envelope[T], error) {
	var env catalog.Envelope[T]
	err := json.Unmarshal([]byte(body), &env)
	return env, err
}

// dataCount reports how many records an envelope body carries.
func dataCount[T any](body string) int {
	env, err := decode[T](body)
	if err != nil {
		return 0
	}
	return len(env.Data)
}

// withLocale appends the locale query parameter to a path.
func withLocale(path, locale string) string {
	if locale == "" {
		return path
	}
	sep := "?"
	for _, r := range path {
		if r == '?' {
			sep = "&"
			break
		}
	}
	return path + sep + "locale=" + url.QueryEscape(locale)
}
