package cache

import (
	"fmt"
	"strings"
	"time"

	"github.com/maypok86/otter/v2"
)

// PlaylistCache holds rendered M3U playlist text keyed by catalog generation
// and group filter. Because the generation is part of the key, a newly
// published catalog can never be served stale text: its keys simply have not
// been rendered yet, and entries for dead generations age out via TTL and
// size-based eviction.
type PlaylistCache struct {
	cache *otter.Cache[string, string]
}

// NewPlaylistCache creates the cache with the given entry TTL.
func NewPlaylistCache(ttl time.Duration) *PlaylistCache {
	return &PlaylistCache{
		cache: otter.Must(&otter.Options[string, string]{
			MaximumSize:      256,
			ExpiryCalculator: otter.ExpiryWriting[string, string](ttl),
		}),
	}
}

// Key builds the cache key for a generation and optional group filter.
func Key(generation uint64, group string) string {
	if group == "" {
		return fmt.Sprintf("playlist:g%d", generation)
	}
	return fmt.Sprintf("playlist:g%d:%s", generation, strings.ToLower(group))
}

// Get returns the cached rendering for the key, if present and unexpired.
func (pc *PlaylistCache) Get(key string) (string, bool) {
	return pc.cache.GetIfPresent(key)
}

// Set stores a rendered playlist under the key.
func (pc *PlaylistCache) Set(key, value string) {
	pc.cache.Set(key, value)
}

// Clear drops every cached rendering.
func (pc *PlaylistCache) Clear() {
	pc.cache.InvalidateAll()
}

// Size returns the approximate number of cached renderings.
func (pc *PlaylistCache) Size() int {
	return pc.cache.EstimatedSize()
}
