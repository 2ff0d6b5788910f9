package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"sync"
	"time"

	"m3u-server/work/logger"
)

// Identity policy values for channel deduplication. IdentityURI keys entries
// by their normalized stream URI, IdentityName by their display name.
const (
	IdentityURI  = "uri"
	IdentityName = "name"
)

// Config holds all application configuration values for the M3U aggregation server.
// It covers the serving surface, the refresh pipeline, persistence, and the list
// of configured playlist sources.
type Config struct {
	ListenAddr      string         `json:"listenAddr"`      // Address the HTTP server binds to (e.g. ":8080")
	BaseURL         string         `json:"baseURL"`         // Base URL for the application (used in logs and links)
	RefreshInterval time.Duration  `json:"refreshInterval"` // Interval between periodic catalog refreshes
	CycleDeadline   time.Duration  `json:"cycleDeadline"`   // Overall deadline for one refresh cycle across all sources
	CacheDuration   time.Duration  `json:"cacheDuration"`   // TTL for rendered playlist cache entries
	MaxPlaylistSize int64          `json:"maxPlaylistSize"` // Maximum accepted upstream playlist size in MB
	DedupIdentity   string         `json:"dedupIdentity"`   // Channel identity policy: "uri" or "name"
	LogLevel        string         `json:"logLevel"`        // Log verbosity: DEBUG, INFO, WARN, ERROR
	ObfuscateUrls   bool           `json:"obfuscateUrls"`   // Obfuscate source URLs in logs
	DatabasePath    string         `json:"databasePath"`    // SQLite database file for sources and refresh history
	DisableFilters  []string       `json:"disableFilters"`  // Regex patterns hiding matching channel names from the catalog
	Sources         []SourceConfig `json:"sources"`         // List of configured playlist sources
}

// SourceConfig represents the configuration for a single playlist source.
// Rank decides merge precedence (lower rank wins conflicting channels).
type SourceConfig struct {
	Name         string        `json:"name"`         // Unique descriptive name, doubles as the source id
	Locator      string        `json:"locator"`      // HTTP(S) URL or filesystem path of the playlist
	Rank         int           `json:"rank"`         // Merge precedence, lower rank = higher precedence
	Timeout      time.Duration `json:"timeout"`      // Per-source fetch timeout
	RateLimit    int           `json:"rateLimit"`    // Max outbound requests per second to this source
	UserAgent    string        `json:"userAgent"`    // HTTP User-Agent header for requests
	ReqOrigin    string        `json:"reqOrigin"`    // HTTP Origin header for requests
	ReqReferrer  string        `json:"reqReferrer"`  // HTTP Referer header for requests
	IncludeRegex string        `json:"includeRegex"` // Keep only channel names matching this pattern
	ExcludeRegex string        `json:"excludeRegex"` // Drop channel names matching this pattern
	Enabled      bool          `json:"enabled"`      // Disabled sources are skipped by the refresh cycle
}

// ConfigFile represents the JSON file structure for unmarshaling configuration.
// String duration fields (e.g. "30m") are parsed into time.Duration values.
type ConfigFile struct {
	ListenAddr      string             `json:"listenAddr"`
	BaseURL         string             `json:"baseURL"`
	RefreshInterval string             `json:"refreshInterval"` // Duration as string (e.g. "12h")
	CycleDeadline   string             `json:"cycleDeadline"`   // Duration as string (e.g. "2m")
	CacheDuration   string             `json:"cacheDuration"`   // Duration as string (e.g. "30m")
	MaxPlaylistSize int64              `json:"maxPlaylistSize"`
	DedupIdentity   string             `json:"dedupIdentity"`
	LogLevel        string             `json:"logLevel"`
	ObfuscateUrls   bool               `json:"obfuscateUrls"`
	DatabasePath    string             `json:"databasePath"`
	DisableFilters  []string           `json:"disableFilters"`
	Sources         []SourceConfigFile `json:"sources"`
}

// SourceConfigFile represents the source configuration in JSON format.
// Duration fields are stored as strings and parsed later.
type SourceConfigFile struct {
	Name         string `json:"name"`
	Locator      string `json:"locator"`
	Rank         int    `json:"rank"`
	Timeout      string `json:"timeout"` // Duration string (e.g. "30s")
	RateLimit    int    `json:"rateLimit"`
	UserAgent    string `json:"userAgent"`
	ReqOrigin    string `json:"reqOrigin"`
	ReqReferrer  string `json:"reqReferrer"`
	IncludeRegex string `json:"includeRegex,omitempty"`
	ExcludeRegex string `json:"excludeRegex,omitempty"`
	Disabled     bool   `json:"disabled,omitempty"`
}

// DefaultConfigPath is where LoadConfig looks when M3U_SERVER_CONFIG is unset.
const DefaultConfigPath = "/settings/config.json"

var (
	configCache *Config      // Cached configuration instance (singleton)
	configMutex sync.RWMutex // Mutex for safe concurrent access to configCache
)

// LoadConfig loads the configuration from file or returns the cached instance.
//
// Uses double-checked locking to avoid redundant reloads, reads from
// M3U_SERVER_CONFIG (or /settings/config.json), and falls back to the default
// configuration when the file is missing or invalid.
func LoadConfig() *Config {
	configMutex.RLock()
	if configCache != nil {
		defer configMutex.RUnlock()
		return configCache
	}
	configMutex.RUnlock()

	configMutex.Lock()
	defer configMutex.Unlock()

	// double-check under write lock
	if configCache != nil {
		return configCache
	}

	configPath := os.Getenv("M3U_SERVER_CONFIG")
	if configPath == "" {
		configPath = DefaultConfigPath
	}

	config, err := LoadFromFile(configPath)
	if err != nil {
		logger.Warn("{config/config - LoadConfig} Failed to load config from %s: %v", configPath, err)
		logger.Warn("{config/config - LoadConfig} Falling back to default configuration")
		config = getDefaultConfig()
	}

	validateAndSetDefaults(config)
	configCache = config

	return config
}

// LoadFromFile reads and parses the configuration from a JSON file without
// touching the singleton cache. Used directly by tests and diagnostics.
func LoadFromFile(path string) (*Config, error) {

	// read the raw file
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// unmarshal the file form
	var configFile ConfigFile
	if err := json.Unmarshal(data, &configFile); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	// convert to our runtime settings
	return convertFromFile(&configFile)
}

// convertFromFile converts a ConfigFile to Config, parsing duration strings
// into time.Duration.
func convertFromFile(cf *ConfigFile) (*Config, error) {
	config := &Config{
		ListenAddr:      cf.ListenAddr,
		BaseURL:         cf.BaseURL,
		MaxPlaylistSize: cf.MaxPlaylistSize,
		DedupIdentity:   cf.DedupIdentity,
		LogLevel:        cf.LogLevel,
		ObfuscateUrls:   cf.ObfuscateUrls,
		DatabasePath:    cf.DatabasePath,
		DisableFilters:  cf.DisableFilters,
	}

	// parse top-level duration fields, leaving zero values for
	// validateAndSetDefaults to fill
	var err error
	if cf.RefreshInterval != "" {
		if config.RefreshInterval, err = time.ParseDuration(cf.RefreshInterval); err != nil {
			return nil, fmt.Errorf("invalid refreshInterval: %w", err)
		}
	}
	if cf.CycleDeadline != "" {
		if config.CycleDeadline, err = time.ParseDuration(cf.CycleDeadline); err != nil {
			return nil, fmt.Errorf("invalid cycleDeadline: %w", err)
		}
	}
	if cf.CacheDuration != "" {
		if config.CacheDuration, err = time.ParseDuration(cf.CacheDuration); err != nil {
			return nil, fmt.Errorf("invalid cacheDuration: %w", err)
		}
	}

	// convert sources
	config.Sources = make([]SourceConfig, len(cf.Sources))
	for i, srcFile := range cf.Sources {
		src := &config.Sources[i]
		src.Name = srcFile.Name
		src.Locator = srcFile.Locator
		src.Rank = srcFile.Rank
		src.RateLimit = srcFile.RateLimit
		src.UserAgent = srcFile.UserAgent
		src.ReqOrigin = srcFile.ReqOrigin
		src.ReqReferrer = srcFile.ReqReferrer
		src.IncludeRegex = srcFile.IncludeRegex
		src.ExcludeRegex = srcFile.ExcludeRegex
		src.Enabled = !srcFile.Disabled

		if srcFile.Timeout != "" {
			if src.Timeout, err = time.ParseDuration(srcFile.Timeout); err != nil {
				return nil, fmt.Errorf("invalid timeout for source %s: %w", src.Name, err)
			}
		}
	}

	return config, nil
}

// getDefaultConfig returns a baseline configuration with sensible defaults
// when no file is present.
func getDefaultConfig() *Config {
	return &Config{
		ListenAddr:      ":8080",
		BaseURL:         "http://localhost:8080",
		RefreshInterval: 12 * time.Hour,   // refresh the catalog twice a day
		CycleDeadline:   2 * time.Minute,  // whole-cycle fetch budget
		CacheDuration:   30 * time.Minute, // rendered playlist TTL
		MaxPlaylistSize: 64,               // 64 MB upstream playlist cap
		DedupIdentity:   IdentityURI,
		LogLevel:        "INFO",
		ObfuscateUrls:   false,
		DatabasePath:    "/settings/data.db",
		Sources:         []SourceConfig{},
	}
}

// validateAndSetDefaults ensures all config values are valid, filling in
// defaults for missing or invalid ones.
func validateAndSetDefaults(config *Config) {
	if config.ListenAddr == "" {
		config.ListenAddr = ":8080"
	}
	if config.BaseURL == "" {
		config.BaseURL = "http://localhost:8080"
	}
	if config.RefreshInterval <= 0 {
		config.RefreshInterval = 12 * time.Hour
	}
	if config.CycleDeadline <= 0 {
		config.CycleDeadline = 2 * time.Minute
	}
	if config.CacheDuration <= 0 {
		config.CacheDuration = 30 * time.Minute
	}
	if config.MaxPlaylistSize <= 0 {
		config.MaxPlaylistSize = 64
	}
	if config.DedupIdentity != IdentityURI && config.DedupIdentity != IdentityName {
		config.DedupIdentity = IdentityURI
	}
	if config.LogLevel == "" {
		config.LogLevel = "INFO"
	}
	if config.DatabasePath == "" {
		config.DatabasePath = "/settings/data.db"
	}

	// validate each source
	for i := range config.Sources {
		src := &config.Sources[i]
		if src.Name == "" {
			src.Name = fmt.Sprintf("Source_%d", i+1)
		}
		if src.Rank <= 0 {
			src.Rank = i + 1
		}
		if src.Timeout <= 0 {
			src.Timeout = 30 * time.Second
		}
		if src.RateLimit <= 0 {
			src.RateLimit = 5
		}
		if src.UserAgent == "" {
			src.UserAgent = "VLC/3.0.18 LibVLC/3.0.18"
		}
		// ReqOrigin and ReqReferrer may remain empty
	}
}

// GetSourceByName returns a pointer to the SourceConfig matching the given
// name, or nil if no match is found.
func (c *Config) GetSourceByName(name string) *SourceConfig {
	for i := range c.Sources {
		if c.Sources[i].Name == name {
			return &c.Sources[i]
		}
	}
	return nil
}

// SourcesByRank returns a copy of sources stable-sorted by ascending Rank.
// Sources with equal rank keep their configured order. The original slice
// remains unmodified.
func (c *Config) SourcesByRank() []SourceConfig {
	sources := make([]SourceConfig, len(c.Sources))
	copy(sources, c.Sources)

	// insertion sort keeps equal ranks in configured order and the source
	// count is always small
	for i := 1; i < len(sources); i++ {
		for j := i; j > 0 && sources[j-1].Rank > sources[j].Rank; j-- {
			sources[j-1], sources[j] = sources[j], sources[j-1]
		}
	}

	return sources
}

// CreateExampleConfig writes an example config file to the given path.
func CreateExampleConfig(path string) error {
	example := ConfigFile{
		ListenAddr:      ":8080",
		BaseURL:         "http://localhost:8080",
		RefreshInterval: "12h",
		CycleDeadline:   "2m",
		CacheDuration:   "30m",
		MaxPlaylistSize: 64,
		DedupIdentity:   IdentityURI,
		LogLevel:        "INFO",
		ObfuscateUrls:   true,
		DatabasePath:    "/settings/data.db",
		DisableFilters:  []string{"(?i)adult", "(?i)shopping"},
		Sources: []SourceConfigFile{
			{
				Name:      "Primary IPTV Source",
				Locator:   "http://example.com/playlist1.m3u8",
				Rank:      1,
				Timeout:   "30s",
				RateLimit: 5,
				UserAgent: "VLC/3.0.18 LibVLC/3.0.18",
			},
			{
				Name:        "Backup IPTV Source",
				Locator:     "http://example.com/playlist2.m3u8",
				Rank:        2,
				Timeout:     "45s",
				RateLimit:   2,
				UserAgent:   "Mozilla/5.0 (Smart TV; Linux)",
				ReqOrigin:   "https://provider2.com",
				ReqReferrer: "https://provider2.com/player",
			},
		},
	}

	data, err := json.MarshalIndent(example, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// ClearConfigCache resets the cached configuration, forcing a reload on the
// next LoadConfig call.
func ClearConfigCache() {
	configMutex.Lock()
	defer configMutex.Unlock()
	configCache = nil
}

// ObfuscateURL masks sensitive parts of a URL for logging.
//
// Example:
//
//	Input:  "http://example.com/secret/stream.m3u8?token=abc"
//	Output: "http://example.com/***?***"
func ObfuscateURL(urlStr string) string {
	if urlStr == "" {
		return ""
	}
	u, err := url.Parse(urlStr)
	if err != nil {
		return "***OBFUSCATED***"
	}
	result := u.Scheme + "://" + u.Host
	if u.Path != "" && u.Path != "/" {
		result += "/***"
	}
	if u.RawQuery != "" {
		result += "?***"
	}
	if u.Fragment != "" {
		result += "#***"
	}
	return result
}

// LogLocator returns either the original locator or an obfuscated version,
// depending on the obfuscation setting.
func (c *Config) LogLocator(locator string) string {
	if c.ObfuscateUrls {
		return ObfuscateURL(locator)
	}
	return locator
}
