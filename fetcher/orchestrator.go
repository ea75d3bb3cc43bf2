// Package fetcher orchestrates the tiered acquisition pipeline.
//
// Every logical operation walks the same cascade: direct authenticated HTTP,
// then a fetch proxied through the remote automation-controlled browser, then
// DOM extraction from the rendered catalog page. A block detected on the
// direct path is a durable fact about the current network path, not a
// per-call transient: a process-wide sticky flag makes every subsequent
// operation skip the direct tier until restart.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ocnaibill/crunchyroll-jellyfin/catalog"
	"github.com/ocnaibill/crunchyroll-jellyfin/constant"
	"github.com/ocnaibill/crunchyroll-jellyfin/devtools"
	"github.com/ocnaibill/crunchyroll-jellyfin/flaresolverr"
	"github.com/ocnaibill/crunchyroll-jellyfin/key"
	"github.com/ocnaibill/crunchyroll-jellyfin/log"
	"github.com/ocnaibill/crunchyroll-jellyfin/network"
	"github.com/ocnaibill/crunchyroll-jellyfin/scrape"
	"github.com/ocnaibill/crunchyroll-jellyfin/token"
	csmap "github.com/mhmtszr/concurrent-swiss-map"
	gocache "github.com/patrickmn/go-cache"
	"github.com/spf13/viper"
)

const (
	// renderPollInterval and renderPollBudget bound the wait for client-side
	// rendering to complete in the DOM extraction tier.
	renderPollInterval = 500 * time.Millisecond
	renderPollBudget   = 30 * time.Second
)

// Browser is the slice of the automation client the orchestrator drives.
// Satisfied by *devtools.Client.
type Browser interface {
	Fetch(ctx context.Context, path, method string, headers map[string]string, body string) (string, error)
	Evaluate(ctx context.Context, expression string, awaitPromise bool) (string, error)
	Navigate(ctx context.Context, url string) error
	Close()
}

// Orchestrator is the façade over the acquisition tiers, the token store and
// the caches. Construct with New; one instance is shared process-wide.
type Orchestrator struct {
	tokens    *token.Store
	solver    *flaresolverr.Client
	extractor scrape.Extractor

	baseURL        string
	locale         string
	fallbackLocale string

	// blocked is the sticky flag: once flipped, the direct tier is skipped
	// for the remainder of the process.
	blocked atomic.Bool

	// resp is the short-TTL per-endpoint response cache.
	resp *gocache.Cache

	// scraped is the session-scoped scrape/proxy result cache. Keyed by
	// entity id, lives for the process lifetime, invalidated only by Clear.
	scraped *csmap.CsMap[string, *catalog.Series]

	do func(ctx context.Context, method, rawURL string, headers map[string]string, body string) (*network.Response, error)

	browserMu      sync.Mutex
	browser        Browser
	connectBrowser func(ctx context.Context) (Browser, error)
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithBaseURL overrides the provider origin (tests).
func WithBaseURL(u string) Option {
	return func(o *Orchestrator) { o.baseURL = u }
}

// WithTransport overrides the direct HTTP transport (tests).
func WithTransport(do func(ctx context.Context, method, rawURL string, headers map[string]string, body string) (*network.Response, error)) Option {
	return func(o *Orchestrator) { o.do = do }
}

// WithTokenStore supplies a pre-built token store.
func WithTokenStore(s *token.Store) Option {
	return func(o *Orchestrator) { o.tokens = s }
}

// WithBrowser supplies an already-connected automation client.
func WithBrowser(b Browser) Option {
	return func(o *Orchestrator) { o.browser = b }
}

// WithBrowserConnector overrides how the automation client is established.
func WithBrowserConnector(fn func(ctx context.Context) (Browser, error)) Option {
	return func(o *Orchestrator) { o.connectBrowser = fn }
}

// WithSolver supplies the browser session manager.
func WithSolver(s *flaresolverr.Client) Option {
	return func(o *Orchestrator) { o.solver = s }
}

// WithExtractor overrides the last-resort page extractor.
func WithExtractor(e scrape.Extractor) Option {
	return func(o *Orchestrator) { o.extractor = e }
}

// WithLocales sets the preferred and fallback provider locales.
func WithLocales(preferred, fallback string) Option {
	return func(o *Orchestrator) {
		o.locale = preferred
		o.fallbackLocale = fallback
	}
}

// New constructs the orchestrator from the global configuration, wiring the
// token store's blocked callback to the sticky flag and its proxied
// acquisition path to the automation client.
func New(opts ...Option) *Orchestrator {
	ttl := time.Duration(viper.GetInt(key.FetchCacheTTLMinutes)) * time.Minute
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}

	o := &Orchestrator{
		baseURL:        constant.BaseURL,
		locale:         viper.GetString(key.LocalePreferred),
		fallbackLocale: viper.GetString(key.LocaleFallback),
		resp:           gocache.New(ttl, 10*time.Minute),
		scraped:        csmap.Create[string, *catalog.Series](),
		do:             network.DoFingerprinted,
		extractor:      scrape.Resolve(),
	}
	for _, opt := range opts {
		opt(o)
	}

	if o.solver == nil {
		o.solver = flaresolverr.New(viper.GetString(key.FetchSolverURL))
	}
	if o.tokens == nil {
		o.tokens = token.NewStore(
			token.WithBlockedCallback(o.MarkBlocked),
			token.WithTransport(o.do),
			token.WithCredentials(func() token.Credentials {
				return token.Credentials{
					Username: viper.GetString(key.AccountUsername),
					Password: token.LoadPassword(),
				}
			}),
		)
	}
	if o.connectBrowser == nil {
		o.connectBrowser = func(ctx context.Context) (Browser, error) {
			return devtools.Connect(ctx, devtools.Options{
				Endpoint:  viper.GetString(key.FetchDevtoolsURL),
				Origin:    o.baseURL,
				Container: viper.GetString(key.FetchBrowserName),
			})
		}
	}

	o.tokens.SetProxy(proxyAdapter{o})
	return o
}

// proxyAdapter lets the token store run its credential exchange through the
// orchestrator's automation client.
type proxyAdapter struct {
	o *Orchestrator
}

func (p proxyAdapter) Fetch(ctx context.Context, path, method string, headers map[string]string, body string) (string, error) {
	browser, err := p.o.ensureBrowser(ctx)
	if err != nil {
		return "", err
	}
	return browser.Fetch(ctx, path, method, headers, body)
}

// MarkBlocked flips the sticky flag.
func (o *Orchestrator) MarkBlocked() {
	if !o.blocked.Swap(true) {
		log.Warn("fetcher: direct path blocked, escalating all operations to the browser tier")
	}
}

// Blocked reports the sticky flag state.
func (o *Orchestrator) Blocked() bool {
	return o.blocked.Load()
}

// ClearCaches drops both cache tiers.
func (o *Orchestrator) ClearCaches() {
	o.resp.Flush()

	var keys []string
	o.scraped.Range(func(key string, _ *catalog.Series) bool {
		keys = append(keys, key)
		return false
	})
	for _, k := range keys {
		o.scraped.Delete(k)
	}
}

// Close tears down the shared browser resources. Failures are logged, never
// returned: shutdown must not fail on a dead remote.
func (o *Orchestrator) Close() {
	o.browserMu.Lock()
	if o.browser != nil {
		o.browser.Close()
		o.browser = nil
	}
	o.browserMu.Unlock()

	o.solver.Destroy()
}

// ensureBrowser lazily establishes the automation client. Double-checked
// locking keeps concurrent first users from opening duplicate connections.
func (o *Orchestrator) ensureBrowser(ctx context.Context) (Browser, error) {
	o.browserMu.Lock()
	defer o.browserMu.Unlock()

	if o.browser != nil {
		return o.browser, nil
	}

	// The solver session keeps the remote browser process alive; make sure
	// it exists before attaching the automation client to it.
	if _, err := o.solver.Ensure(ctx); err != nil {
		log.Warnf("fetcher: no solver session, attaching to browser directly: %v", err)
	}

	browser, err := o.connectBrowser(ctx)
	if err != nil {
		return nil, err
	}
	o.browser = browser
	return browser, nil
}

// getJSON walks the structured tiers (direct, proxied) for one endpoint path
// and returns the raw response body. The DOM tier is entity-specific and
// lives with the operations that can use it.
func (o *Orchestrator) getJSON(ctx context.Context, path string) (string, error) {
	if cached, found := o.resp.Get(path); found {
		return cached.(string), nil
	}

	if !o.blocked.Load() {
		body, err := o.directFetch(ctx, path)
		switch {
		case err == nil:
			o.resp.Set(path, body, gocache.DefaultExpiration)
			return body, nil
		case errors.Is(err, ErrNotFound):
			// Absence is an answer, not a reason to escalate.
			return "", err
		case errors.Is(err, token.ErrAuthFailed):
			return "", err
		default:
			log.Warnf("fetcher: direct tier failed for %s: %v", path, err)
		}
	}

	body, err := o.proxiedFetch(ctx, path)
	switch {
	case err == nil:
		o.resp.Set(path, body, gocache.DefaultExpiration)
		return body, nil
	case errors.Is(err, ErrNotFound):
		return "", err
	default:
		log.Warnf("fetcher: proxy tier failed for %s: %v", path, err)
	}

	return "", ErrUnavailable
}

// directFetch is the DirectMode tier: bearer HTTP through the fingerprinted
// transport, with exactly one re-authentication retry on 401.
func (o *Orchestrator) directFetch(ctx context.Context, path string) (string, error) {
	tok, err := o.tokens.Ensure(ctx, token.Direct)
	if err != nil {
		return "", err
	}

	resp, err := o.do(ctx, http.MethodGet, o.baseURL+path, bearer(tok), "")
	if err != nil {
		return "", err
	}

	if resp.StatusCode == http.StatusUnauthorized {
		// Stale token: clear it and retry exactly once with a fresh one.
		o.tokens.Invalidate(token.Direct)
		tok, err = o.tokens.Ensure(ctx, token.Direct)
		if err != nil {
			return "", err
		}
		resp, err = o.do(ctx, http.MethodGet, o.baseURL+path, bearer(tok), "")
		if err != nil {
			return "", err
		}
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		return resp.Body, nil
	case resp.StatusCode == http.StatusNotFound:
		return "", ErrNotFound
	case resp.StatusCode == http.StatusForbidden:
		o.MarkBlocked()
		return "", token.ErrBlocked
	default:
		return "", fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
}

// proxiedFetch is the ProxyMode tier. The remote call's HTTP status is not
// visible here, only the body: auth rejection markers in the payload trigger
// exactly one invalidate-and-retry of the entire authenticate-and-fetch
// sequence. A token expiring mid-session must self-heal within that retry.
func (o *Orchestrator) proxiedFetch(ctx context.Context, path string) (string, error) {
	body, err := o.proxiedAttempt(ctx, path)
	if err != nil {
		return "", err
	}

	if bodyRejectsAuth(body) {
		log.Info("fetcher: proxied token rejected, re-authenticating once")
		o.tokens.Invalidate(token.Proxied)

		body, err = o.proxiedAttempt(ctx, path)
		if err != nil {
			return "", err
		}
		if bodyRejectsAuth(body) {
			return "", errors.New("proxied token rejected twice")
		}
	}

	if bodyNotFound(body) {
		return "", ErrNotFound
	}
	return body, nil
}

func (o *Orchestrator) proxiedAttempt(ctx context.Context, path string) (string, error) {
	tok, err := o.tokens.Ensure(ctx, token.Proxied)
	if err != nil {
		return "", err
	}

	browser, err := o.ensureBrowser(ctx)
	if err != nil {
		return "", err
	}

	return browser.Fetch(ctx, path, http.MethodGet, bearer(tok), "")
}

// bearer builds the authorization header set for a token.
func bearer(tok *token.Token) map[string]string {
	return map[string]string{"Authorization": "Bearer " + tok.AccessToken}
}

// bodyRejectsAuth detects the provider's embedded auth rejection markers.
func bodyRejectsAuth(body string) bool {
	lower := strings.ToLower(body)
	return strings.Contains(lower, "invalid_token") || strings.Contains(lower, "unauthorized")
}

// bodyNotFound detects the provider's embedded not-found marker.
func bodyNotFound(body string) bool {
	return strings.Contains(strings.ToLower(body), `"not_found"`)
}
