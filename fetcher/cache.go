// Package fetcher orchestrates the tiered acquisition pipeline.
package fetcher

import (
	"sync"
	"time"

	"github.com/ocnaibill/crunchyroll-jellyfin/catalog"
	"github.com/ocnaibill/crunchyroll-jellyfin/filesystem"
	"github.com/ocnaibill/crunchyroll-jellyfin/where"
	"github.com/metafates/gache"
	"github.com/samber/mo"
)

// cacheData defines the structured format for persisting cached series records to disk.
type cacheData[K comparable, T any] struct {
	Entries map[K]T `json:"entries"`
}

// cacher provides a generic, thread-safe wrapper for high-level caching operations.
type cacher[K comparable, T any] struct {
	internal   *gache.Cache[*cacheData[K, T]]
	keyWrapper func(K) K
	mu         sync.RWMutex
}

// Get retrieves a value from the cache associated with the specified key.
func (c *cacher[K, T]) Get(key K) mo.Option[T] {
	c.mu.RLock()
	defer c.mu.RUnlock()

	data, expired, err := c.internal.Get()
	if err != nil || expired || data == nil {
		return mo.None[T]()
	}

	entry, ok := data.Entries[c.keyWrapper(key)]
	if ok {
		return mo.Some(entry)
	}

	return mo.None[T]()
}

// Set persists a key-value pair to the cache.
func (c *cacher[K, T]) Set(key K, t T) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	data, expired, err := c.internal.Get()
	if err != nil {
		return err
	}

	if !expired && data != nil {
		data.Entries[c.keyWrapper(key)] = t
		return c.internal.Set(data)
	}

	internal := &cacheData[K, T]{Entries: make(map[K]T)}
	internal.Entries[c.keyWrapper(key)] = t
	return c.internal.Set(internal)
}

// seriesCacher persists resolved series metadata across runs, so a restart
// behind a blocked network path does not have to repeat the tier cascade.
var seriesCacher = &cacher[string, *catalog.Series]{
	internal: gache.New[*cacheData[string, *catalog.Series]](
		&gache.Options{
			Path:       where.SeriesCache(),
			Lifetime:   time.Hour * 24 * 2,
			FileSystem: &filesystem.GacheFs{},
		},
	),
	keyWrapper: func(id string) string { return id },
}

// relationCacher persists search-query-to-series-id relations.
var relationCacher = &cacher[string, string]{
	internal: gache.New[*cacheData[string, string]](
		&gache.Options{
			Path:       where.RelationCache(),
			FileSystem: &filesystem.GacheFs{},
		},
	),
	keyWrapper: normalizedQuery,
}
