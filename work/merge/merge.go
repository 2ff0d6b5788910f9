package merge

import (
	"sort"

	"m3u-server/work/catalog"
	"m3u-server/work/config"
	"m3u-server/work/logger"
)

// Input pairs one source with its (already parsed and filtered) entries for
// a merge pass.
type Input struct {
	Source  config.SourceConfig
	Entries []catalog.ChannelEntry
}

// Merge combines per-source entry lists into the canonical catalog order.
//
// Sources are processed in ascending rank (lower rank = higher precedence);
// equal ranks keep their input order. Within the rank-sorted traversal the
// first entry seen for a dedup identity wins and later ones are discarded,
// so a higher-precedence source's entry beats any later duplicate no matter
// which source finished fetching first. Output order is strictly first-seen:
// entries are never re-sorted by name or URI, because players derive channel
// numbers from playlist position and re-sorting would churn them.
//
// The returned map counts discarded duplicates per source name for the
// cycle's SourceStatuses. Merge is deterministic: identical inputs always
// produce identical output ordering.
func Merge(inputs []Input, identityPolicy string) ([]catalog.ChannelEntry, map[string]int) {
	// stable sort keeps configured order for equal ranks
	sorted := make([]Input, len(inputs))
	copy(sorted, inputs)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Source.Rank < sorted[j].Source.Rank
	})

	total := 0
	for _, in := range sorted {
		total += len(in.Entries)
	}

	merged := make([]catalog.ChannelEntry, 0, total)
	seen := make(map[string]struct{}, total)
	duplicates := make(map[string]int)

	for _, in := range sorted {
		for _, entry := range in.Entries {
			id := entry.Identity(identityPolicy)
			if id == "" {
				// no usable identity, keep the entry but it can never
				// conflict with anything
				merged = append(merged, entry)
				continue
			}
			if _, dup := seen[id]; dup {
				duplicates[in.Source.Name]++
				continue
			}
			seen[id] = struct{}{}
			merged = append(merged, entry)
		}
	}

	for name, count := range duplicates {
		logger.Debug("{merge/merge - Merge} Discarded %d duplicate entrie(s) from source %s", count, name)
	}

	return merged, duplicates
}
