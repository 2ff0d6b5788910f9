package database

import (
	"fmt"
	"time"
)

// CycleRecord is one completed refresh cycle as stored in refresh_history.
type CycleRecord struct {
	ID         int64     `json:"id"`
	Generation uint64    `json:"generation"`
	Outcome    string    `json:"outcome"` // published, skipped, failed
	Entries    int       `json:"entries"`
	Error      string    `json:"error,omitempty"`
	BuiltAt    time.Time `json:"builtAt"`
	DurationMs int64     `json:"durationMs"`
}

// historyRetention caps how many cycle records are kept. Old rows are pruned
// on every insert so the table stays bounded on long-lived deployments.
const historyRetention = 500

// RecordCycle appends one refresh cycle outcome and prunes rows beyond the
// retention cap.
func (db *DB) RecordCycle(rec *CycleRecord) error {
	_, err := db.Exec(`
		INSERT INTO refresh_history (generation, outcome, entries, error, built_at, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?)
	`, rec.Generation, rec.Outcome, rec.Entries, rec.Error, rec.BuiltAt.UTC().Format(time.RFC3339), rec.DurationMs)
	if err != nil {
		return fmt.Errorf("failed to record refresh cycle: %w", err)
	}

	_, err = db.Exec(`
		DELETE FROM refresh_history
		WHERE id NOT IN (SELECT id FROM refresh_history ORDER BY id DESC LIMIT ?)
	`, historyRetention)
	if err != nil {
		return fmt.Errorf("failed to prune refresh history: %w", err)
	}

	return nil
}

// RecentHistory returns the most recent cycle records, newest first.
func (db *DB) RecentHistory(limit int) ([]CycleRecord, error) {
	if limit <= 0 || limit > historyRetention {
		limit = 50
	}

	rows, err := db.Query(`
		SELECT id, generation, outcome, entries, error, built_at, duration_ms
		FROM refresh_history
		ORDER BY id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to load refresh history: %w", err)
	}
	defer rows.Close()

	var result []CycleRecord
	for rows.Next() {
		var rec CycleRecord
		var builtAt string
		if err := rows.Scan(&rec.ID, &rec.Generation, &rec.Outcome, &rec.Entries, &rec.Error, &builtAt, &rec.DurationMs); err != nil {
			return nil, fmt.Errorf("failed to scan history row: %w", err)
		}
		rec.BuiltAt, _ = time.Parse(time.RFC3339, builtAt)
		result = append(result, rec)
	}

	return result, rows.Err()
}
