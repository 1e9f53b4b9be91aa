package store

import (
	"fmt"

	"github.com/lazypower/resonance/internal/ritual"
)

// RitualRecord is one finished ritual.
type RitualRecord struct {
	ID        int64  `json:"id"`
	RitualID  string `json:"ritual_id"`
	Mode      string `json:"mode"`
	Status    string `json:"status"`
	Details   string `json:"details"`
	StartedAt int64  `json:"started_at"`
	EndedAt   int64  `json:"ended_at"`
}

// RecordRitual stores a finished ritual execution.
func (db *DB) RecordRitual(ex ritual.Execution) error {
	_, err := db.Exec(`
		INSERT INTO ritual_executions (ritual_id, mode, status, details, started_at, ended_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, ex.ID, ex.Mode.String(), string(ex.Status), ex.Details, ex.StartTime.UnixMilli(), ex.EndTime.UnixMilli())
	if err != nil {
		return fmt.Errorf("record ritual %s: %w", ex.ID, err)
	}
	return nil
}

// RitualExecutions returns up to limit executions, most recently ended first.
func (db *DB) RitualExecutions(limit int) ([]RitualRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.Query(`
		SELECT id, ritual_id, mode, status, details, started_at, ended_at
		FROM ritual_executions ORDER BY ended_at DESC, id DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("ritual executions: %w", err)
	}
	defer rows.Close()

	var out []RitualRecord
	for rows.Next() {
		var r RitualRecord
		if err := rows.Scan(&r.ID, &r.RitualID, &r.Mode, &r.Status, &r.Details, &r.StartedAt, &r.EndedAt); err != nil {
			return nil, fmt.Errorf("scan ritual: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
