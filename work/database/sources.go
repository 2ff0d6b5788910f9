package database

import (
	"fmt"
	"time"

	"m3u-server/work/config"
)

// SourceRow pairs a registry row id with its source configuration, for the
// admin API where rows are addressed by id.
type SourceRow struct {
	ID int64 `json:"id"`
	config.SourceConfig
}

// LoadEnabledSources returns the enabled sources ordered by rank, as consumed
// by the refresh cycle.
func (db *DB) LoadEnabledSources() ([]config.SourceConfig, error) {
	rows, err := db.loadSources("WHERE enabled = 1")
	if err != nil {
		return nil, err
	}

	sources := make([]config.SourceConfig, 0, len(rows))
	for _, row := range rows {
		sources = append(sources, row.SourceConfig)
	}
	return sources, nil
}

// LoadAllSources returns every registry row, enabled or not, ordered by rank.
func (db *DB) LoadAllSources() ([]SourceRow, error) {
	return db.loadSources("")
}

func (db *DB) loadSources(where string) ([]SourceRow, error) {
	query := fmt.Sprintf(`
		SELECT id, name, locator, rank, timeout, rate_limit,
		       user_agent, req_origin, req_referrer,
		       include_regex, exclude_regex, enabled
		FROM sources
		%s
		ORDER BY rank, id
	`, where)

	rows, err := db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to load sources: %w", err)
	}
	defer rows.Close()

	var result []SourceRow
	for rows.Next() {
		var row SourceRow
		var timeout string

		err := rows.Scan(
			&row.ID, &row.Name, &row.Locator, &row.Rank, &timeout, &row.RateLimit,
			&row.UserAgent, &row.ReqOrigin, &row.ReqReferrer,
			&row.IncludeRegex, &row.ExcludeRegex, &row.Enabled,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan source row: %w", err)
		}

		row.Timeout, _ = time.ParseDuration(timeout)
		if row.Timeout <= 0 {
			row.Timeout = 30 * time.Second
		}

		result = append(result, row)
	}

	return result, rows.Err()
}

// UpsertSource inserts the source or, when a row with the same locator
// already exists, updates it in place. Used both to seed config-file sources
// at startup and by the admin API. Returns the row id.
func (db *DB) UpsertSource(src *config.SourceConfig) (int64, error) {
	query := `
		INSERT INTO sources (name, locator, rank, timeout, rate_limit,
		                     user_agent, req_origin, req_referrer,
		                     include_regex, exclude_regex, enabled)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(locator) DO UPDATE SET
			name = excluded.name,
			rank = excluded.rank,
			timeout = excluded.timeout,
			rate_limit = excluded.rate_limit,
			user_agent = excluded.user_agent,
			req_origin = excluded.req_origin,
			req_referrer = excluded.req_referrer,
			include_regex = excluded.include_regex,
			exclude_regex = excluded.exclude_regex,
			enabled = excluded.enabled
	`

	enabled := 0
	if src.Enabled {
		enabled = 1
	}

	_, err := db.Exec(query,
		src.Name, src.Locator, src.Rank, src.Timeout.String(), src.RateLimit,
		src.UserAgent, src.ReqOrigin, src.ReqReferrer,
		src.IncludeRegex, src.ExcludeRegex, enabled,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to upsert source %s: %w", src.Name, err)
	}

	var id int64
	if err := db.QueryRow("SELECT id FROM sources WHERE locator = ?", src.Locator).Scan(&id); err != nil {
		return 0, fmt.Errorf("failed to resolve source id for %s: %w", src.Name, err)
	}
	return id, nil
}

// SeedSources upserts every config-file source into the registry. Seeding is
// idempotent: re-running with the same config changes nothing.
func (db *DB) SeedSources(sources []config.SourceConfig) error {
	for i := range sources {
		if _, err := db.UpsertSource(&sources[i]); err != nil {
			return err
		}
	}
	return nil
}

// DeleteSource removes a registry row by id. Reports whether a row existed.
func (db *DB) DeleteSource(id int64) (bool, error) {
	res, err := db.Exec("DELETE FROM sources WHERE id = ?", id)
	if err != nil {
		return false, fmt.Errorf("failed to delete source %d: %w", id, err)
	}
	affected, _ := res.RowsAffected()
	return affected > 0, nil
}

// SetSourceEnabled flips a source's enabled flag. Reports whether a row
// existed.
func (db *DB) SetSourceEnabled(id int64, enabled bool) (bool, error) {
	val := 0
	if enabled {
		val = 1
	}
	res, err := db.Exec("UPDATE sources SET enabled = ? WHERE id = ?", val, id)
	if err != nil {
		return false, fmt.Errorf("failed to update source %d: %w", id, err)
	}
	affected, _ := res.RowsAffected()
	return affected > 0, nil
}
