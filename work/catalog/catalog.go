package catalog

import (
	"strings"
	"time"

	"m3u-server/work/config"
)

// ChannelEntry is one channel in the catalog. Entries are treated as
// immutable once a catalog holding them has been published; refresh cycles
// build fresh entries rather than mutating old ones.
type ChannelEntry struct {
	URI         string            // Stream URI, always non-empty for a valid entry
	Name        string            // Human-readable display name from the EXTINF line
	Group       string            // Channel group (group-title), may be empty
	Attributes  map[string]string // key="value" pairs from the EXTINF metadata
	SourceName  string            // Name of the source this entry came from
	SourceRank  int               // Rank of the origin source at build time
}

// Identity computes the dedup identity of an entry under the given policy.
// URI identity is whitespace-trimmed but case-preserving; name identity
// additionally collapses case so "CNN" and "cnn" coalesce.
func (e *ChannelEntry) Identity(policy string) string {
	if policy == config.IdentityName {
		return strings.ToLower(strings.TrimSpace(e.Name))
	}
	return strings.TrimSpace(e.URI)
}

// GroupTitle returns the channel group, preferring the explicit Group field
// and falling back to the tvg-group attribute.
func (e *ChannelEntry) GroupTitle() string {
	if e.Group != "" {
		return e.Group
	}
	return e.Attributes["tvg-group"]
}

// Fetch outcome values recorded per source after each refresh cycle.
const (
	OutcomeOK    = "ok"    // fetched and parsed fresh this cycle
	OutcomeStale = "stale" // fetch or parse failed, last-good entries reused
	OutcomeEmpty = "empty" // failed with no prior success, contributed nothing
)

// SourceStatus records the per-source outcome of the refresh cycle that
// built a catalog. It exists for observability: the merged entries do not
// say which source lost a dedup conflict or went stale.
type SourceStatus struct {
	Outcome    string    `json:"outcome"`              // ok, stale, or empty
	Entries    int       `json:"entries"`              // entries contributed to the merged catalog
	Dropped    int       `json:"dropped"`              // malformed entries dropped during parse
	Filtered   int       `json:"filtered"`             // entries removed by include/exclude/disable filters
	Duplicates int       `json:"duplicates"`           // entries discarded as dedup losers
	Error      string    `json:"error,omitempty"`      // failure description when not ok
	FetchedAt  time.Time `json:"fetchedAt,omitempty"`  // when the contributing data was last fetched
}

// Catalog is an immutable snapshot of the merged channel catalog. A published
// catalog is never mutated; a refresh produces a brand-new one.
type Catalog struct {
	Generation     uint64                  // Monotonically increasing publish counter
	Entries        []ChannelEntry          // Merged entries in first-seen order
	BuiltAt        time.Time               // When this catalog was assembled
	SourceStatuses map[string]SourceStatus // Per-source outcome of the building cycle
}

// Empty returns the startup catalog: generation zero, no entries.
func Empty() *Catalog {
	return &Catalog{
		Generation:     0,
		Entries:        nil,
		BuiltAt:        time.Time{},
		SourceStatuses: map[string]SourceStatus{},
	}
}
