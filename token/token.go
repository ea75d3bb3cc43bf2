// Package token manages provider bearer tokens: acquisition, caching,
// proactive expiry and the rate gate in front of the provider's abuse
// detection.
package token

import (
	"errors"
	"time"
)

// Mode selects the trust path a token was obtained through. Direct-mode and
// browser-proxied tokens are cached separately and must never be conflated.
type Mode string

const (
	// Direct tokens are obtained through this process's own network stack.
	Direct Mode = "direct"

	// Proxied tokens are obtained by the remote automation-controlled browser
	// performing the credential exchange on this process's behalf.
	Proxied Mode = "proxied"
)

// Failure sentinels. ErrAuthFailed is fatal and never retried internally;
// the others are expected degraded conditions modeled as values.
var (
	ErrAuthFailed  = errors.New("token: invalid credentials")
	ErrRateLimited = errors.New("token: authentication attempted too soon")
	ErrBlocked     = errors.New("token: provider blocked the request")
)

// expiryBuffer is subtracted from the provider-declared TTL so a token is
// refreshed before the provider would reject it.
const expiryBuffer = 30 * time.Second

// Token is a cached bearer credential.
type Token struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	ExpiresIn    int    `json:"expires_in"`
	Country      string `json:"country,omitempty"`

	Expiry time.Time `json:"-"`
}

// Valid reports whether the token can still be presented to the provider.
func (t *Token) Valid() bool {
	return t != nil && t.AccessToken != "" && time.Now().Before(t.Expiry)
}

// stamp fixes the expiry instant from the provider-declared TTL.
func (t *Token) stamp(now time.Time) {
	t.Expiry = now.Add(time.Duration(t.ExpiresIn)*time.Second - expiryBuffer)
}
