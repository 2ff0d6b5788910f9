package filter

import (
	"sync"

	"m3u-server/work/catalog"
	"m3u-server/work/config"
	"m3u-server/work/logger"

	"github.com/grafana/regexp"
)

// CompiledFilter holds the compiled include/exclude patterns for one source.
type CompiledFilter struct {
	Include *regexp.Regexp
	Exclude *regexp.Regexp
}

// Manager compiles and caches channel-name filters: one include/exclude pair
// per source plus the global disable patterns that hide channels from the
// catalog regardless of origin. Invalid patterns are logged and treated as
// absent rather than failing the refresh.
type Manager struct {
	mu      sync.RWMutex
	filters map[string]*CompiledFilter // per-source filters keyed by source name
	disable []*regexp.Regexp           // global disable patterns
}

// NewManager compiles the global disable patterns from configuration.
// Patterns are matched case-insensitively against the display name.
func NewManager(patterns []string) *Manager {
	m := &Manager{
		filters: make(map[string]*CompiledFilter),
	}

	for _, pattern := range patterns {
		compiled, err := regexp.Compile("(?i)" + pattern)
		if err != nil {
			logger.Error("{filter/filter - NewManager} Failed to compile disable filter %q: %v", pattern, err)
			continue
		}
		m.disable = append(m.disable, compiled)
	}

	if len(m.disable) > 0 {
		logger.Info("{filter/filter - NewManager} Compiled %d disable filter(s)", len(m.disable))
	}

	return m
}

// getOrCreateFilter returns the compiled filter for a source, compiling and
// caching it on first use. Invalid regexes compile to nil (no filtering).
func (m *Manager) getOrCreateFilter(src *config.SourceConfig) *CompiledFilter {
	m.mu.RLock()
	if f, exists := m.filters[src.Name]; exists {
		m.mu.RUnlock()
		return f
	}
	m.mu.RUnlock()

	m.mu.Lock()
	defer m.mu.Unlock()

	if f, exists := m.filters[src.Name]; exists {
		return f
	}

	f := &CompiledFilter{}
	if src.IncludeRegex != "" {
		compiled, err := regexp.Compile(src.IncludeRegex)
		if err != nil {
			logger.Error("{filter/filter - getOrCreateFilter} Failed to compile includeRegex %q for %s: %v", src.IncludeRegex, src.Name, err)
		} else {
			f.Include = compiled
		}
	}
	if src.ExcludeRegex != "" {
		compiled, err := regexp.Compile(src.ExcludeRegex)
		if err != nil {
			logger.Error("{filter/filter - getOrCreateFilter} Failed to compile excludeRegex %q for %s: %v", src.ExcludeRegex, src.Name, err)
		} else {
			f.Exclude = compiled
		}
	}

	m.filters[src.Name] = f
	return f
}

// ClearFilters drops all cached per-source filters, forcing recompilation.
// Called after the source registry changes.
func (m *Manager) ClearFilters() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.filters = make(map[string]*CompiledFilter)
}

// Apply filters one source's parsed entries in order, returning the
// surviving entries and the count removed. An entry survives when its name
// passes the source's include pattern (if any), fails its exclude pattern,
// and matches no global disable pattern.
func (m *Manager) Apply(entries []catalog.ChannelEntry, src *config.SourceConfig) ([]catalog.ChannelEntry, int) {
	f := m.getOrCreateFilter(src)

	m.mu.RLock()
	disable := m.disable
	m.mu.RUnlock()

	if f.Include == nil && f.Exclude == nil && len(disable) == 0 {
		return entries, 0
	}

	kept := entries[:0:0]
	removed := 0

	for _, entry := range entries {
		if !m.keep(&entry, f, disable) {
			removed++
			continue
		}
		kept = append(kept, entry)
	}

	if removed > 0 {
		logger.Debug("{filter/filter - Apply} Filtered %d of %d entries from source %s", removed, len(entries), src.Name)
	}

	return kept, removed
}

// keep decides one entry's fate against the compiled patterns.
func (m *Manager) keep(entry *catalog.ChannelEntry, f *CompiledFilter, disable []*regexp.Regexp) bool {
	if f.Include != nil && !f.Include.MatchString(entry.Name) {
		return false
	}
	if f.Exclude != nil && f.Exclude.MatchString(entry.Name) {
		return false
	}
	for _, pattern := range disable {
		if pattern.MatchString(entry.Name) {
			return false
		}
	}
	return true
}
