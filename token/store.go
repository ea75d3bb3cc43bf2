// Package token manages provider bearer tokens.
package token

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/ocnaibill/crunchyroll-jellyfin/constant"
	"github.com/ocnaibill/crunchyroll-jellyfin/log"
	"github.com/ocnaibill/crunchyroll-jellyfin/network"
)

// gateInterval is the module-wide minimum interval between authentication
// attempts, regardless of caller identity. Attempts inside the window are
// refused immediately, never queued.
const gateInterval = 10 * time.Second

// ProxyFetcher performs a same-origin network call from inside the remote
// browsing context and returns the textified JSON response body.
type ProxyFetcher interface {
	Fetch(ctx context.Context, path, method string, headers map[string]string, body string) (string, error)
}

// Credentials are the optional provider account credentials for the password grant.
type Credentials struct {
	Username string
	Password string
}

// Store holds cached bearer tokens for both trust paths.
// Construct with NewStore; one instance is shared process-wide.
type Store struct {
	endpoint   string
	credential string
	creds      func() Credentials

	// onBlocked is invoked when the provider answers with a blocked status,
	// so the orchestrator can flip its sticky flag.
	onBlocked func()

	proxyMu sync.RWMutex
	proxy   ProxyFetcher

	// do is the direct transport, injectable for tests.
	do func(ctx context.Context, method, rawURL string, headers map[string]string, body string) (*network.Response, error)

	cacheMu sync.RWMutex
	cache   map[Mode]*Token

	// modeMu serializes acquisition per mode: concurrent callers block on the
	// mutex and find the fresh token on the re-check instead of issuing
	// parallel authentication requests.
	modeMu map[Mode]*sync.Mutex

	gateMu      sync.Mutex
	gate        time.Duration
	lastAttempt time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithEndpoint overrides the token endpoint URL.
func WithEndpoint(endpoint string) Option {
	return func(s *Store) { s.endpoint = endpoint }
}

// WithCredentials supplies a credential source for the password grant.
func WithCredentials(creds func() Credentials) Option {
	return func(s *Store) { s.creds = creds }
}

// WithTransport overrides the direct HTTP transport.
func WithTransport(do func(ctx context.Context, method, rawURL string, headers map[string]string, body string) (*network.Response, error)) Option {
	return func(s *Store) { s.do = do }
}

// WithBlockedCallback registers the sticky-flag hook.
func WithBlockedCallback(fn func()) Option {
	return func(s *Store) { s.onBlocked = fn }
}

// WithGateInterval overrides the minimum interval between authentication attempts.
func WithGateInterval(d time.Duration) Option {
	return func(s *Store) { s.gate = d }
}

// NewStore constructs an empty token store.
func NewStore(opts ...Option) *Store {
	s := &Store{
		endpoint:   constant.BaseURL + constant.TokenPath,
		credential: constant.ClientCredential,
		creds:      func() Credentials { return Credentials{} },
		onBlocked:  func() {},
		do:         network.DoFingerprinted,
		gate:       gateInterval,
		cache:      make(map[Mode]*Token),
		modeMu: map[Mode]*sync.Mutex{
			Direct:  {},
			Proxied: {},
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetProxy attaches the browser-proxied acquisition path.
func (s *Store) SetProxy(p ProxyFetcher) {
	s.proxyMu.Lock()
	s.proxy = p
	s.proxyMu.Unlock()
}

// Invalidate drops the cached token for a mode, forcing re-acquisition.
func (s *Store) Invalidate(mode Mode) {
	s.cacheMu.Lock()
	delete(s.cache, mode)
	s.cacheMu.Unlock()
}

// Ensure returns a valid token for the requested mode, acquiring one when the
// cache is empty or expired. Acquisition is single-flight per mode.
func (s *Store) Ensure(ctx context.Context, mode Mode) (*Token, error) {
	// Fast path: cached and not expired, no network call.
	s.cacheMu.RLock()
	cached := s.cache[mode]
	s.cacheMu.RUnlock()
	if cached.Valid() {
		return cached, nil
	}

	mu := s.modeMu[mode]
	mu.Lock()
	defer mu.Unlock()

	// Re-check after acquiring the mutex: a concurrent caller may have
	// renewed the token while we were blocked.
	s.cacheMu.RLock()
	cached = s.cache[mode]
	s.cacheMu.RUnlock()
	if cached.Valid() {
		return cached, nil
	}

	if err := s.passGate(); err != nil {
		return nil, err
	}

	var (
		tok *Token
		err error
	)
	switch mode {
	case Proxied:
		tok, err = s.acquireProxied(ctx)
	default:
		tok, err = s.acquireDirect(ctx)
	}
	if err != nil {
		return nil, err
	}

	s.cacheMu.Lock()
	s.cache[mode] = tok
	s.cacheMu.Unlock()
	return tok, nil
}

// passGate enforces the module-wide minimum interval between authentication attempts.
func (s *Store) passGate() error {
	s.gateMu.Lock()
	defer s.gateMu.Unlock()

	if since := time.Since(s.lastAttempt); since < s.gate {
		log.Warnf("token: refusing authentication attempt %.1fs after the previous one", since.Seconds())
		return ErrRateLimited
	}
	s.lastAttempt = time.Now()
	return nil
}

// acquireDirect performs the credential exchange through this process's own
// (fingerprint-spoofed) network stack. Grants are tried in priority order:
// refresh token, password, anonymous client credential.
func (s *Store) acquireDirect(ctx context.Context) (*Token, error) {
	if refresh := LoadRefreshToken(); refresh != "" {
		tok, err := s.grant(ctx, refreshGrant(refresh))
		if err == nil {
			return tok, nil
		}
		if errors.Is(err, ErrBlocked) || errors.Is(err, ErrRateLimited) {
			return nil, err
		}
		// The refresh token is invalid or expired: clear it and retry once
		// with a full credential grant.
		log.Warnf("token: refresh grant rejected, falling back to full grant: %v", err)
		_ = DeleteRefreshToken()
	}

	if creds := s.creds(); creds.Username != "" && creds.Password != "" {
		tok, err := s.grant(ctx, passwordGrant(creds))
		if err != nil {
			return nil, err
		}
		return tok, nil
	}

	return s.grant(ctx, anonymousGrant())
}

// grant executes one credential exchange and classifies the outcome.
func (s *Store) grant(ctx context.Context, form url.Values) (*Token, error) {
	headers := map[string]string{
		"Authorization": "Basic " + s.credential,
		"Content-Type":  "application/x-www-form-urlencoded",
	}

	resp, err := s.do(ctx, http.MethodPost, s.endpoint, headers, form.Encode())
	if err != nil {
		return nil, fmt.Errorf("token exchange: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		return parseToken(resp.Body)
	case resp.StatusCode == http.StatusForbidden:
		s.onBlocked()
		return nil, ErrBlocked
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusBadRequest:
		return nil, fmt.Errorf("%w: status %d", ErrAuthFailed, resp.StatusCode)
	default:
		return nil, fmt.Errorf("token exchange: unexpected status %d", resp.StatusCode)
	}
}

// acquireProxied asks the remote browser to perform the equivalent credential
// exchange as a same-origin call. This is what defeats transport-level
// fingerprinting the direct path cannot defeat.
func (s *Store) acquireProxied(ctx context.Context) (*Token, error) {
	s.proxyMu.RLock()
	proxy := s.proxy
	s.proxyMu.RUnlock()
	if proxy == nil {
		return nil, fmt.Errorf("token: no browser proxy attached")
	}

	form := anonymousGrant()
	if creds := s.creds(); creds.Username != "" && creds.Password != "" {
		form = passwordGrant(creds)
	}

	body, err := proxy.Fetch(ctx, constant.TokenPath, http.MethodPost, map[string]string{
		"Authorization": "Basic " + s.credential,
		"Content-Type":  "application/x-www-form-urlencoded",
	}, form.Encode())
	if err != nil {
		return nil, fmt.Errorf("proxied token exchange: %w", err)
	}

	return parseToken(body)
}

// parseToken decodes a provider token response and stamps its expiry.
func parseToken(body string) (*Token, error) {
	var tok Token
	if err := json.Unmarshal([]byte(body), &tok); err != nil {
		return nil, fmt.Errorf("decode token response: %w", err)
	}
	if tok.AccessToken == "" {
		return nil, fmt.Errorf("%w: empty access token", ErrAuthFailed)
	}

	tok.stamp(time.Now())

	if tok.RefreshToken != "" {
		if err := SaveRefreshToken(tok.RefreshToken); err != nil {
			log.Warnf("token: could not persist refresh token: %v", err)
		}
	}
	return &tok, nil
}

// Grant form builders.

func anonymousGrant() url.Values {
	v := url.Values{}
	v.Set("grant_type", "client_id")
	return v
}

func passwordGrant(creds Credentials) url.Values {
	v := url.Values{}
	v.Set("grant_type", "password")
	v.Set("username", creds.Username)
	v.Set("password", creds.Password)
	v.Set("scope", "offline_access")
	return v
}

func refreshGrant(refresh string) url.Values {
	v := url.Values{}
	v.Set("grant_type", "refresh_token")
	v.Set("refresh_token", refresh)
	v.Set("scope", "offline_access")
	return v
}
