package handlers

import (
	"fmt"
	"sort"
	"strings"

	"m3u-server/work/catalog"
)

// RenderM3U renders catalog entries as M3U playlist text. When groupFilter is
// non-empty only entries in that group (case-insensitive) are included.
// Attribute keys are emitted in sorted order so the same catalog always
// renders to the same bytes.
func RenderM3U(entries []catalog.ChannelEntry, groupFilter string) (string, int) {
	// pre-allocate the builder with a reasonable estimate
	estimatedSize := len(entries)*250 + 16
	var playlist strings.Builder
	playlist.Grow(estimatedSize)
	playlist.WriteString("#EXTM3U\n")

	rendered := 0

	for i := range entries {
		entry := &entries[i]

		if groupFilter != "" && !strings.EqualFold(entry.GroupTitle(), groupFilter) {
			continue
		}
		rendered++

		playlist.WriteString("#EXTINF:-1")

		keys := make([]string, 0, len(entry.Attributes))
		for key := range entry.Attributes {
			// tvg-name duplicates the display name after the comma
			if key != "tvg-name" {
				keys = append(keys, key)
			}
		}
		sort.Strings(keys)

		for _, key := range keys {
			playlist.WriteString(fmt.Sprintf(" %s=%q", key, entry.Attributes[key]))
		}

		if entry.Group != "" && entry.Attributes["group-title"] == "" {
			playlist.WriteString(fmt.Sprintf(" group-title=%q", entry.Group))
		}

		cleanName := strings.Trim(entry.Name, "\"")
		playlist.WriteString(fmt.Sprintf(",%s\n", cleanName))
		playlist.WriteString(entry.URI + "\n")
	}

	return playlist.String(), rendered
}
