package database

import (
	"path/filepath"
	"testing"
	"time"

	"m3u-server/work/config"

	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return db
}

func testSources() []config.SourceConfig {
	return []config.SourceConfig{
		{
			Name:      "primary",
			Locator:   "http://example.com/a.m3u",
			Rank:      1,
			Timeout:   30 * time.Second,
			RateLimit: 5,
			Enabled:   true,
		},
		{
			Name:      "backup",
			Locator:   "http://example.com/b.m3u",
			Rank:      2,
			Timeout:   45 * time.Second,
			RateLimit: 2,
			UserAgent: "custom-agent/1.0",
			Enabled:   true,
		},
	}
}

func TestSeedSourcesIdempotent(t *testing.T) {
	db := openTestDB(t)

	require.NoError(t, db.SeedSources(testSources()))
	require.NoError(t, db.SeedSources(testSources()))

	rows, err := db.LoadAllSources()
	require.NoError(t, err)
	require.Len(t, rows, 2)

	require.Equal(t, "primary", rows[0].Name)
	require.Equal(t, 30*time.Second, rows[0].Timeout)
	require.Equal(t, "custom-agent/1.0", rows[1].UserAgent)
}

func TestLoadEnabledSourcesSkipsDisabled(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, db.SeedSources(testSources()))

	rows, err := db.LoadAllSources()
	require.NoError(t, err)

	existed, err := db.SetSourceEnabled(rows[1].ID, false)
	require.NoError(t, err)
	require.True(t, existed)

	enabled, err := db.LoadEnabledSources()
	require.NoError(t, err)
	require.Len(t, enabled, 1)
	require.Equal(t, "primary", enabled[0].Name)
}

func TestUpsertSourceUpdatesByLocator(t *testing.T) {
	db := openTestDB(t)

	src := testSources()[0]
	id1, err := db.UpsertSource(&src)
	require.NoError(t, err)

	src.Name = "renamed"
	src.Rank = 7
	id2, err := db.UpsertSource(&src)
	require.NoError(t, err)
	require.Equal(t, id1, id2)

	rows, err := db.LoadAllSources()
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, "renamed", rows[0].Name)
	require.Equal(t, 7, rows[0].Rank)
}

func TestDeleteSource(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, db.SeedSources(testSources()))

	rows, err := db.LoadAllSources()
	require.NoError(t, err)

	existed, err := db.DeleteSource(rows[0].ID)
	require.NoError(t, err)
	require.True(t, existed)

	existed, err = db.DeleteSource(99999)
	require.NoError(t, err)
	require.False(t, existed)

	remaining, err := db.LoadAllSources()
	require.NoError(t, err)
	require.Len(t, remaining, 1)
}

func TestSourcesOrderedByRank(t *testing.T) {
	db := openTestDB(t)

	sources := []config.SourceConfig{
		{Name: "third", Locator: "http://example.com/3", Rank: 30, Timeout: time.Second, Enabled: true},
		{Name: "first", Locator: "http://example.com/1", Rank: 10, Timeout: time.Second, Enabled: true},
		{Name: "second", Locator: "http://example.com/2", Rank: 20, Timeout: time.Second, Enabled: true},
	}
	require.NoError(t, db.SeedSources(sources))

	enabled, err := db.LoadEnabledSources()
	require.NoError(t, err)
	require.Equal(t, "first", enabled[0].Name)
	require.Equal(t, "second", enabled[1].Name)
	require.Equal(t, "third", enabled[2].Name)
}

func TestRecordCycleAndHistory(t *testing.T) {
	db := openTestDB(t)

	built := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, db.RecordCycle(&CycleRecord{
		Generation: 1,
		Outcome:    "published",
		Entries:    120,
		BuiltAt:    built,
		DurationMs: 850,
	}))
	require.NoError(t, db.RecordCycle(&CycleRecord{
		Generation: 1,
		Outcome:    "skipped",
		Error:      "all sources failed; serving previous catalog",
		BuiltAt:    built.Add(time.Minute),
		DurationMs: 40,
	}))

	records, err := db.RecentHistory(10)
	require.NoError(t, err)
	require.Len(t, records, 2)

	// newest first
	require.Equal(t, "skipped", records[0].Outcome)
	require.Equal(t, "published", records[1].Outcome)
	require.Equal(t, 120, records[1].Entries)
	require.Equal(t, built, records[1].BuiltAt)
}

func TestHistoryPruned(t *testing.T) {
	db := openTestDB(t)

	for i := 0; i < historyRetention+20; i++ {
		require.NoError(t, db.RecordCycle(&CycleRecord{
			Generation: uint64(i),
			Outcome:    "published",
			BuiltAt:    time.Now(),
		}))
	}

	records, err := db.RecentHistory(historyRetention)
	require.NoError(t, err)
	require.Len(t, records, historyRetention)

	// the oldest rows are gone, the newest generation survives
	require.Equal(t, uint64(historyRetention+19), records[0].Generation)
}
