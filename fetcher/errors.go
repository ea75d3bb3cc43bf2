// Package fetcher orchestrates the tiered acquisition pipeline: direct
// authenticated HTTP, browser-proxied fetch, then DOM extraction.
package fetcher

import "errors"

var (
	// ErrNotFound means the entity is absent from the provider. A normal,
	// non-exceptional outcome that never triggers tier escalation.
	ErrNotFound = errors.New("fetcher: entity not found")

	// ErrUnavailable means every tier was exhausted without a result.
	ErrUnavailable = errors.New("fetcher: no metadata available")
)
