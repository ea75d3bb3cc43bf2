package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/ocnaibill/crunchyroll-jellyfin/constant"
	"github.com/ocnaibill/crunchyroll-jellyfin/filesystem"
	"github.com/ocnaibill/crunchyroll-jellyfin/flaresolverr"
	"github.com/ocnaibill/crunchyroll-jellyfin/network"
	"github.com/ocnaibill/crunchyroll-jellyfin/token"
	. "github.com/smartystreets/goconvey/convey"
	"github.com/zalando/go-keyring"
)

func init() {
	filesystem.SetMemMapFs()
	keyring.MockInit()
}

const testOrigin = "http://provider.test"

var testToken = `{"access_token":"test-access","expires_in":300}`

// fakeTransport routes direct HTTP calls by URL and counts them.
type fakeTransport struct {
	auth     atomic.Int64
	content  atomic.Int64
	status   int
	body     string
	statusFn func(rawURL string) (int, string)
}

func (f *fakeTransport) do(ctx context.Context, method, rawURL string, headers map[string]string, body string) (*network.Response, error) {
	if strings.Contains(rawURL, "/auth/v1/token") {
		f.auth.Add(1)
		return &network.Response{StatusCode: http.StatusOK, Body: testToken}, nil
	}

	f.content.Add(1)
	if f.statusFn != nil {
		status, body := f.statusFn(rawURL)
		return &network.Response{StatusCode: status, Body: body}, nil
	}
	return &network.Response{StatusCode: f.status, Body: f.body}, nil
}

// fakeBrowser implements the Browser slice of the automation client.
type fakeBrowser struct {
	fetches   atomic.Int64
	authCalls atomic.Int64
	evals     atomic.Int64
	fetchFn   func(path string) (string, error)
	evalFn    func(expression string) (string, error)
	navigated []string
}

func (f *fakeBrowser) Fetch(ctx context.Context, path, method string, headers map[string]string, body string) (string, error) {
	if strings.Contains(path, "/auth/v1/token") {
		f.authCalls.Add(1)
		return testToken, nil
	}
	f.fetches.Add(1)
	if f.fetchFn != nil {
		return f.fetchFn(path)
	}
	return "", fmt.Errorf("no browser route for %s", path)
}

func (f *fakeBrowser) Evaluate(ctx context.Context, expression string, awaitPromise bool) (string, error) {
	f.evals.Add(1)
	if f.evalFn != nil {
		return f.evalFn(expression)
	}
	return "", fmt.Errorf("no script route")
}

func (f *fakeBrowser) Navigate(ctx context.Context, url string) error {
	f.navigated = append(f.navigated, url)
	return nil
}

func (f *fakeBrowser) Close() {}

// rejectingBrowser always rejects the bearer token on content paths, so both
// structured tiers are exhausted and the DOM tier is reached.
func rejectingBrowser(evalFn func(expression string) (string, error)) *fakeBrowser {
	return &fakeBrowser{
		fetchFn: func(path string) (string, error) {
			return `{"code":"unauthorized"}`, nil
		},
		evalFn: evalFn,
	}
}

func newTestOrchestrator(transport *fakeTransport, browser *fakeBrowser) *Orchestrator {
	store := token.NewStore(
		token.WithEndpoint(testOrigin+"/auth/v1/token"),
		token.WithTransport(transport.do),
		token.WithGateInterval(0),
	)
	return New(
		WithBaseURL(testOrigin),
		WithTransport(transport.do),
		WithTokenStore(store),
		WithBrowser(browser),
		WithLocales("en-US", ""),
	)
}

func seasonsEnvelope(ids ...string) string {
	var items []string
	for i, id := range ids {
		items = append(items, fmt.Sprintf(
			`{"id":%q,"season_number":%d,"season_sequence_number":%d,"title":"Season %d"}`,
			id, i+1, i+1, i+1,
		))
	}
	return fmt.Sprintf(`{"total":%d,"data":[%s]}`, len(ids), strings.Join(items, ","))
}

func TestDirectTier(t *testing.T) {
	Convey("Given a provider reachable on the direct path", t, func() {
		transport := &fakeTransport{status: http.StatusOK, body: seasonsEnvelope("sa", "sb")}
		browser := &fakeBrowser{}
		o := newTestOrchestrator(transport, browser)

		Convey("When seasons are fetched", func() {
			seasons, err := o.Seasons(context.Background(), "series-direct")

			Convey("Then the direct tier answers without touching the browser", func() {
				So(err, ShouldBeNil)
				So(seasons, ShouldHaveLength, 2)
				So(browser.fetches.Load(), ShouldEqual, 0)
			})

			Convey("And a repeat call is served from the response cache", func() {
				_, err := o.Seasons(context.Background(), "series-direct")
				So(err, ShouldBeNil)
				So(transport.content.Load(), ShouldEqual, 1)
			})
		})
	})
}

func TestNotFoundNeverEscalates(t *testing.T) {
	Convey("Given a series absent from the provider", t, func() {
		transport := &fakeTransport{status: http.StatusNotFound}
		browser := &fakeBrowser{}
		o := newTestOrchestrator(transport, browser)

		Convey("When its seasons are fetched", func() {
			_, err := o.Seasons(context.Background(), "series-absent")

			Convey("Then absence surfaces directly with no tier escalation", func() {
				So(err, ShouldEqual, ErrNotFound)
				So(browser.fetches.Load(), ShouldEqual, 0)
				So(transport.content.Load(), ShouldEqual, 1)
			})
		})
	})
}

func TestStaleTokenRetriesOnce(t *testing.T) {
	Convey("Given a provider that rejects every bearer token", t, func() {
		transport := &fakeTransport{status: http.StatusUnauthorized}
		browser := &fakeBrowser{}
		o := newTestOrchestrator(transport, browser)

		Convey("When seasons are fetched", func() {
			_, err := o.Seasons(context.Background(), "series-stale")

			Convey("Then the direct tier re-authenticated exactly once", func() {
				So(err, ShouldNotBeNil)
				So(transport.content.Load(), ShouldEqual, 2)
				So(transport.auth.Load(), ShouldEqual, 2)
			})
		})
	})
}

func TestBlockedEscalation(t *testing.T) {
	Convey("Given a provider that blocks the direct path", t, func() {
		transport := &fakeTransport{status: http.StatusForbidden}
		browser := &fakeBrowser{fetchFn: func(path string) (string, error) {
			return seasonsEnvelope("proxied-season"), nil
		}}
		o := newTestOrchestrator(transport, browser)

		Convey("When seasons are fetched", func() {
			seasons, err := o.Seasons(context.Background(), "series-blocked")

			Convey("Then the browser tier answers and the sticky flag is set", func() {
				So(err, ShouldBeNil)
				So(seasons, ShouldHaveLength, 1)
				So(o.Blocked(), ShouldBeTrue)
			})

			Convey("And later operations skip the direct tier entirely", func() {
				directBefore := transport.content.Load()
				_, err := o.Seasons(context.Background(), "series-blocked-2")
				So(err, ShouldBeNil)
				So(transport.content.Load(), ShouldEqual, directBefore)
			})
		})
	})
}

func TestProxiedTokenSelfHeals(t *testing.T) {
	Convey("Given a proxied session whose token expired mid-session", t, func() {
		var calls atomic.Int64
		browser := &fakeBrowser{}
		browser.fetchFn = func(path string) (string, error) {
			if calls.Add(1) == 1 {
				return `{"__class__":"error","code":"invalid_token"}`, nil
			}
			return seasonsEnvelope("healed-season"), nil
		}

		transport := &fakeTransport{status: http.StatusForbidden}
		o := newTestOrchestrator(transport, browser)
		o.MarkBlocked()

		Convey("When seasons are fetched", func() {
			seasons, err := o.Seasons(context.Background(), "series-healing")

			Convey("Then the rejection triggered exactly one re-authentication", func() {
				So(err, ShouldBeNil)
				So(seasons, ShouldHaveLength, 1)
				So(browser.fetches.Load(), ShouldEqual, 2)
				So(browser.authCalls.Load(), ShouldEqual, 2)
			})
		})
	})

	Convey("Given a proxied session that rejects the token twice", t, func() {
		browser := &fakeBrowser{fetchFn: func(path string) (string, error) {
			return `{"code":"invalid_token"}`, nil
		}}
		transport := &fakeTransport{status: http.StatusForbidden}
		o := newTestOrchestrator(transport, browser)
		o.MarkBlocked()

		Convey("When seasons are fetched", func() {
			_, err := o.Seasons(context.Background(), "series-doomed")

			Convey("Then the operation fails instead of looping", func() {
				So(err, ShouldEqual, ErrUnavailable)
				So(browser.fetches.Load(), ShouldEqual, 2)
			})
		})
	})
}

func TestDomExtractionTier(t *testing.T) {
	Convey("Given a provider that fails both structured tiers", t, func() {
		transport := &fakeTransport{status: http.StatusInternalServerError}
		browser := rejectingBrowser(func(expression string) (string, error) {
			switch expression {
			case constant.RenderedProbeScript:
				return "true", nil
			case constant.ExtractSeriesScript:
				return `{"title":"Scraped Show","description":"Recovered from the page.","poster":"poster.jpg"}`, nil
			}
			return "", fmt.Errorf("no script route")
		})
		o := newTestOrchestrator(transport, browser)

		Convey("When the series is fetched", func() {
			series, err := o.Series(context.Background(), "series-dom")

			Convey("Then a partial record is recovered from the rendered page", func() {
				So(err, ShouldBeNil)
				So(series.Partial, ShouldBeTrue)
				So(series.ID, ShouldEqual, "series-dom")
				So(series.Title, ShouldEqual, "Scraped Show")
				So(series.Poster(), ShouldEqual, "poster.jpg")
				So(browser.navigated, ShouldContain, testOrigin+"/series/series-dom")
			})

			Convey("And a repeat call is served from the scrape cache", func() {
				evalsBefore := browser.evals.Load()
				again, err := o.Series(context.Background(), "series-dom")
				So(err, ShouldBeNil)
				So(again.Title, ShouldEqual, "Scraped Show")
				So(browser.evals.Load(), ShouldEqual, evalsBefore)
			})
		})
	})
}

func TestSearchDomFallback(t *testing.T) {
	Convey("Given a provider that fails both structured tiers", t, func() {
		transport := &fakeTransport{status: http.StatusInternalServerError}
		browser := rejectingBrowser(func(expression string) (string, error) {
			switch expression {
			case constant.SearchRenderedProbeScript:
				return "true", nil
			case constant.ExtractSearchScript:
				return `[{"id":"dom1","title":"Dom Hit"},{"id":"dom2","title":"Another Show"}]`, nil
			}
			return "", fmt.Errorf("no script route")
		})
		o := newTestOrchestrator(transport, browser)

		Convey("When a query is searched", func() {
			results, err := o.Search(context.Background(), "dom hit", 10)

			Convey("Then partial hits are recovered from the search page, ranked", func() {
				So(err, ShouldBeNil)
				So(results, ShouldHaveLength, 2)
				So(results[0].ID, ShouldEqual, "dom1")
				So(results[0].Partial, ShouldBeTrue)
			})

			Convey("And a hit's series resolves from the scrape cache without a fetch", func() {
				evalsBefore := browser.evals.Load()
				series, err := o.Series(context.Background(), "dom1")
				So(err, ShouldBeNil)
				So(series.Title, ShouldEqual, "Dom Hit")
				So(browser.evals.Load(), ShouldEqual, evalsBefore)
			})
		})
	})
}

func TestEpisodeDomFallback(t *testing.T) {
	Convey("Given a provider that fails both structured tiers", t, func() {
		transport := &fakeTransport{status: http.StatusInternalServerError}
		browser := rejectingBrowser(func(expression string) (string, error) {
			switch expression {
			case constant.WatchRenderedProbeScript:
				return "true", nil
			case constant.ExtractEpisodeScript:
				return `{"title":"The First Whistle","description":"Kickoff.","episode":"1"}`, nil
			}
			return "", fmt.Errorf("no script route")
		})
		o := newTestOrchestrator(transport, browser)

		Convey("When the episode is fetched", func() {
			episode, err := o.Episode(context.Background(), "ep-dom")

			Convey("Then a sparse record is recovered from the watch page", func() {
				So(err, ShouldBeNil)
				So(episode.Partial, ShouldBeTrue)
				So(episode.ID, ShouldEqual, "ep-dom")
				So(episode.Title, ShouldEqual, "The First Whistle")
				So(episode.EpisodeRaw, ShouldEqual, "1")
				So(browser.navigated, ShouldContain, testOrigin+"/watch/ep-dom")
			})
		})
	})
}

func TestSolverHtmlFallback(t *testing.T) {
	Convey("Given a dead automation client and a live solver", t, func() {
		page := `<html><head>` +
			`<meta property="og:title" content="Solver Show"/>` +
			`<meta property="og:description" content="Recovered from raw markup."/>` +
			`</head></html>`

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var cmd struct {
				Cmd string `json:"cmd"`
			}
			_ = json.NewDecoder(r.Body).Decode(&cmd)

			switch cmd.Cmd {
			case "sessions.create":
				fmt.Fprint(w, `{"status":"ok","session":"sess-1"}`)
			case "request.get":
				body, _ := json.Marshal(map[string]any{
					"status":   "ok",
					"solution": map[string]any{"response": page},
				})
				w.Write(body)
			default:
				fmt.Fprint(w, `{"status":"ok"}`)
			}
		}))
		Reset(server.Close)

		transport := &fakeTransport{status: http.StatusInternalServerError}
		store := token.NewStore(
			token.WithEndpoint(testOrigin+"/auth/v1/token"),
			token.WithTransport(transport.do),
			token.WithGateInterval(0),
		)
		o := New(
			WithBaseURL(testOrigin),
			WithTransport(transport.do),
			WithTokenStore(store),
			WithBrowserConnector(func(ctx context.Context) (Browser, error) {
				return nil, fmt.Errorf("no debugger reachable")
			}),
			WithSolver(flaresolverr.New(server.URL)),
			WithLocales("en-US", ""),
		)

		Convey("When the series is fetched", func() {
			series, err := o.Series(context.Background(), "series-solver")

			Convey("Then the solver HTML answers through the page extractor", func() {
				So(err, ShouldBeNil)
				So(series.Partial, ShouldBeTrue)
				So(series.ID, ShouldEqual, "series-solver")
				So(series.Title, ShouldEqual, "Solver Show")
			})
		})
	})
}

func TestSearchRanking(t *testing.T) {
	Convey("Given search results in provider order", t, func() {
		body := `{"total":2,"data":[{"type":"series","items":[` +
			`{"id":"far","title":"Completely Unrelated Show"},` +
			`{"id":"near","title":"Blue Lock"}` +
			`]}]}`
		transport := &fakeTransport{status: http.StatusOK, body: body}
		browser := &fakeBrowser{}
		o := newTestOrchestrator(transport, browser)

		Convey("When a query is searched", func() {
			results, err := o.Search(context.Background(), "blue lock", 10)

			Convey("Then the closest title ranks first", func() {
				So(err, ShouldBeNil)
				So(results, ShouldHaveLength, 2)
				So(results[0].ID, ShouldEqual, "near")
			})

			Convey("And the repeat query resolves from the persistent caches", func() {
				contentBefore := transport.content.Load()
				repeat, err := o.Search(context.Background(), "blue lock", 10)
				So(err, ShouldBeNil)
				So(repeat, ShouldHaveLength, 1)
				So(repeat[0].ID, ShouldEqual, "near")
				So(transport.content.Load(), ShouldEqual, contentBefore)
			})
		})
	})
}
