package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadFromFileParsesDurations(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	content := `{
		"listenAddr": ":9090",
		"refreshInterval": "6h",
		"cycleDeadline": "90s",
		"cacheDuration": "15m",
		"dedupIdentity": "name",
		"sources": [
			{
				"name": "primary",
				"locator": "http://example.com/a.m3u",
				"rank": 1,
				"timeout": "45s",
				"rateLimit": 3
			},
			{
				"name": "backup",
				"locator": "http://example.com/b.m3u",
				"rank": 2,
				"disabled": true
			}
		]
	}`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	require.Equal(t, ":9090", cfg.ListenAddr)
	require.Equal(t, 6*time.Hour, cfg.RefreshInterval)
	require.Equal(t, 90*time.Second, cfg.CycleDeadline)
	require.Equal(t, 15*time.Minute, cfg.CacheDuration)
	require.Equal(t, IdentityName, cfg.DedupIdentity)

	require.Len(t, cfg.Sources, 2)
	require.Equal(t, 45*time.Second, cfg.Sources[0].Timeout)
	require.True(t, cfg.Sources[0].Enabled)
	require.False(t, cfg.Sources[1].Enabled)
}

func TestLoadFromFileRejectsBadDuration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"refreshInterval": "soon"}`), 0644))

	_, err := LoadFromFile(path)
	require.Error(t, err)
	require.Contains(t, err.Error(), "refreshInterval")
}

func TestValidateAndSetDefaults(t *testing.T) {
	cfg := &Config{
		DedupIdentity: "bogus",
		Sources: []SourceConfig{
			{Locator: "http://example.com/a.m3u"},
		},
	}

	validateAndSetDefaults(cfg)

	require.Equal(t, ":8080", cfg.ListenAddr)
	require.Equal(t, 12*time.Hour, cfg.RefreshInterval)
	require.Equal(t, 2*time.Minute, cfg.CycleDeadline)
	require.Equal(t, 30*time.Minute, cfg.CacheDuration)
	require.Equal(t, int64(64), cfg.MaxPlaylistSize)
	// unknown identity policies fall back to URI
	require.Equal(t, IdentityURI, cfg.DedupIdentity)

	src := cfg.Sources[0]
	require.Equal(t, "Source_1", src.Name)
	require.Equal(t, 1, src.Rank)
	require.Equal(t, 30*time.Second, src.Timeout)
	require.Equal(t, 5, src.RateLimit)
	require.NotEmpty(t, src.UserAgent)
}

func TestSourcesByRankStable(t *testing.T) {
	cfg := &Config{
		Sources: []SourceConfig{
			{Name: "c", Rank: 2},
			{Name: "a", Rank: 1},
			{Name: "d", Rank: 2},
			{Name: "b", Rank: 1},
		},
	}

	sorted := cfg.SourcesByRank()

	require.Equal(t, "a", sorted[0].Name)
	require.Equal(t, "b", sorted[1].Name)
	require.Equal(t, "c", sorted[2].Name)
	require.Equal(t, "d", sorted[3].Name)

	// original order untouched
	require.Equal(t, "c", cfg.Sources[0].Name)
}

func TestGetSourceByName(t *testing.T) {
	cfg := &Config{
		Sources: []SourceConfig{{Name: "primary"}, {Name: "backup"}},
	}

	require.NotNil(t, cfg.GetSourceByName("backup"))
	require.Nil(t, cfg.GetSourceByName("missing"))
}

func TestObfuscateURL(t *testing.T) {
	require.Equal(t, "http://example.com/***?***",
		ObfuscateURL("http://example.com/secret/list.m3u8?token=abc"))
	require.Equal(t, "https://example.com",
		ObfuscateURL("https://example.com"))
	require.Equal(t, "", ObfuscateURL(""))
}

func TestLogLocatorHonorsSetting(t *testing.T) {
	locator := "http://example.com/secret.m3u?u=x&p=y"

	open := &Config{ObfuscateUrls: false}
	require.Equal(t, locator, open.LogLocator(locator))

	hidden := &Config{ObfuscateUrls: true}
	require.NotContains(t, hidden.LogLocator(locator), "secret")
}

func TestCreateExampleConfigRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "example.json")
	require.NoError(t, CreateExampleConfig(path))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	require.Len(t, cfg.Sources, 2)
	require.Equal(t, 45*time.Second, cfg.Sources[1].Timeout)
}
