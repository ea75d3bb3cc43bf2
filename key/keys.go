// Package key defines the canonical set of configuration identifiers used for centralized settings management.
package key

// Locale Selection - these keys control which provider locale variants are requested.
const (
	LocalePreferred = "locale.preferred"
	LocaleFallback  = "locale.fallback"
)

// Provider Account - these keys hold the optional account credentials used for the password grant.
const (
	AccountUsername = "account.username"
)

// Fetch Pipeline - these keys govern the tiered acquisition pipeline.
const (
	FetchCacheTTLMinutes = "fetch.cache_ttl_minutes"
	FetchSolverURL       = "fetch.solver_url"
	FetchDevtoolsURL     = "fetch.devtools_url"
	FetchBrowserName     = "fetch.browser_container"
)

// Season Mapping - these keys tune the season/episode reconciliation heuristics.
const (
	MapperSpecialKeywords = "mapper.special_keywords"
	MapperFeatureMinutes  = "mapper.feature_length_minutes"
)

// Logging Infrastructure - these keys manage the application's internal diagnostics and auditing system.
const (
	LogsWrite = "logs.write"
	LogsLevel = "logs.level"
	LogsJson  = "logs.json"
)

// CLI Behaviour - these keys define presentation options for the command-line surface.
const (
	CliColored = "cli.colored"
)
