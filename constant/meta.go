// Package constant defines immutable application-level identifiers and configuration defaults.
package constant

const (
	// CrunchyMeta is the canonical application identifier used for filesystem paths and CLI branding.
	CrunchyMeta = "crunchymeta"

	// Version is the current application semantic version string.
	Version = "0.1.0"

	// UserAgent is the default HTTP User-Agent string used for network requests to the provider.
	UserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
)

// Build metadata, overridden through ldflags on release builds.
var (
	Revision = "unknown"
	BuiltAt  = "unknown"
	BuiltBy  = "unknown"
)

// Provider endpoints. Content calls are relative to BaseURL so the same path
// works for the direct client and for same-origin calls inside the browser.
const (
	// BaseURL is the provider web origin.
	BaseURL = "https://www.crunchyroll.com"

	// TokenPath is the OAuth-style token endpoint, relative to BaseURL.
	TokenPath = "/auth/v1/token"

	// ContentPathPrefix is the root of the structured catalog API, relative to BaseURL.
	ContentPathPrefix = "/content/v2/cms"

	// SearchPath is the catalog discovery endpoint, relative to BaseURL.
	SearchPath = "/content/v2/discover/search"

	// ClientCredential is the fixed public basic credential presented on token grants.
	ClientCredential = "Y3Jfd2ViOg=="
)
