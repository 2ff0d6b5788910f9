package filter

import (
	"testing"

	"m3u-server/work/catalog"
	"m3u-server/work/config"

	"github.com/stretchr/testify/require"
)

func namedEntries(names ...string) []catalog.ChannelEntry {
	entries := make([]catalog.ChannelEntry, len(names))
	for i, name := range names {
		entries[i] = catalog.ChannelEntry{URI: "http://x/" + name, Name: name}
	}
	return entries
}

func TestApplyNoFiltersPassesThrough(t *testing.T) {
	m := NewManager(nil)
	src := &config.SourceConfig{Name: "plain"}

	entries := namedEntries("One", "Two")
	kept, removed := m.Apply(entries, src)

	require.Equal(t, entries, kept)
	require.Equal(t, 0, removed)
}

func TestApplyIncludeRegex(t *testing.T) {
	m := NewManager(nil)
	src := &config.SourceConfig{Name: "sports-only", IncludeRegex: "(?i)sport"}

	kept, removed := m.Apply(namedEntries("ESPN Sports", "CNN News", "Sky Sport 1"), src)

	require.Len(t, kept, 2)
	require.Equal(t, "ESPN Sports", kept[0].Name)
	require.Equal(t, "Sky Sport 1", kept[1].Name)
	require.Equal(t, 1, removed)
}

func TestApplyExcludeRegex(t *testing.T) {
	m := NewManager(nil)
	src := &config.SourceConfig{Name: "no-shopping", ExcludeRegex: "(?i)shop"}

	kept, removed := m.Apply(namedEntries("Movie Central", "Shopping 24", "News"), src)

	require.Len(t, kept, 2)
	require.Equal(t, 1, removed)
}

func TestApplyDisableFiltersAreGlobal(t *testing.T) {
	m := NewManager([]string{"adult", "^test"})

	kept, removed := m.Apply(namedEntries("Adult Swim", "Test Pattern", "Regular"), &config.SourceConfig{Name: "a"})
	require.Len(t, kept, 1)
	require.Equal(t, "Regular", kept[0].Name)
	require.Equal(t, 2, removed)

	// a different source is subject to the same disable patterns
	kept, _ = m.Apply(namedEntries("ADULT channel"), &config.SourceConfig{Name: "b"})
	require.Empty(t, kept)
}

func TestApplyInvalidPatternsAreIgnored(t *testing.T) {
	m := NewManager([]string{"[unclosed"})
	src := &config.SourceConfig{Name: "bad-include", IncludeRegex: "[also-unclosed"}

	kept, removed := m.Apply(namedEntries("Anything"), src)

	require.Len(t, kept, 1)
	require.Equal(t, 0, removed)
}

func TestApplyPreservesOrder(t *testing.T) {
	m := NewManager(nil)
	src := &config.SourceConfig{Name: "ordered", ExcludeRegex: "Drop"}

	kept, _ := m.Apply(namedEntries("C", "Drop Me", "A", "B"), src)

	require.Equal(t, "C", kept[0].Name)
	require.Equal(t, "A", kept[1].Name)
	require.Equal(t, "B", kept[2].Name)
}

func TestClearFiltersRecompiles(t *testing.T) {
	m := NewManager(nil)
	src := &config.SourceConfig{Name: "mutable", ExcludeRegex: "Old"}

	kept, _ := m.Apply(namedEntries("Old Channel", "New Channel"), src)
	require.Len(t, kept, 1)

	// simulate a registry edit changing the pattern for the same source name
	src.ExcludeRegex = "New"
	m.ClearFilters()

	kept, _ = m.Apply(namedEntries("Old Channel", "New Channel"), src)
	require.Len(t, kept, 1)
	require.Equal(t, "Old Channel", kept[0].Name)
}
