package store

import (
	"fmt"
)

type migration struct {
	Version     int
	Description string
	SQL         string
}

var migrations = []migration{
	{
		Version:     1,
		Description: "pulse_log: emitted and received pulses",
		SQL: `
CREATE TABLE pulse_log (
    id          INTEGER PRIMARY KEY,
    pulse_id    TEXT NOT NULL,
    direction   TEXT NOT NULL CHECK (direction IN ('out', 'in')),
    sender      TEXT NOT NULL,
    pulse_type  TEXT NOT NULL,
    energy      REAL NOT NULL CHECK (energy >= 0 AND energy <= 1),
    ttl_ms      INTEGER NOT NULL,
    audience    TEXT NOT NULL DEFAULT '',
    echo_of     TEXT NOT NULL DEFAULT '',
    note        TEXT NOT NULL DEFAULT '',
    emitted_at  INTEGER NOT NULL,
    recorded_at INTEGER NOT NULL,

    UNIQUE (pulse_id, direction)
);

CREATE INDEX idx_pulse_log_emitted ON pulse_log(emitted_at DESC);
`,
	},
	{
		Version:     2,
		Description: "deliveries: revealed quiet messages",
		SQL: `
CREATE TABLE deliveries (
    id           INTEGER PRIMARY KEY,
    message_id   TEXT NOT NULL UNIQUE,
    sender       TEXT NOT NULL,
    recipient    TEXT NOT NULL,
    tone         TEXT NOT NULL,
    condition    TEXT NOT NULL,
    suppressed   INTEGER NOT NULL DEFAULT 0,
    sent_at      INTEGER NOT NULL,
    delivered_at INTEGER NOT NULL
);

CREATE INDEX idx_deliveries_recipient ON deliveries(recipient);
`,
	},
	{
		Version:     3,
		Description: "contract_events: append-only contract history",
		SQL: `
CREATE TABLE contract_events (
    id          INTEGER PRIMARY KEY,
    contract_id TEXT NOT NULL,
    event_type  TEXT NOT NULL CHECK (event_type IN ('created', 'signed', 'activated', 'suspended', 'reactivated', 'completed', 'cancelled', 'expired')),
    party       TEXT NOT NULL DEFAULT '',
    details     TEXT NOT NULL DEFAULT '',
    created_at  INTEGER NOT NULL
);

CREATE INDEX idx_contract_events_contract ON contract_events(contract_id, id);
`,
	},
	{
		Version:     4,
		Description: "ritual_executions: finished rituals",
		SQL: `
CREATE TABLE ritual_executions (
    id         INTEGER PRIMARY KEY,
    ritual_id  TEXT NOT NULL UNIQUE,
    mode       TEXT NOT NULL,
    status     TEXT NOT NULL CHECK (status IN ('completed', 'preempted', 'failed')),
    details    TEXT NOT NULL DEFAULT '',
    started_at INTEGER NOT NULL,
    ended_at   INTEGER NOT NULL
);
`,
	},
}

func (db *DB) migrate() error {
	// Create schema_versions table if it doesn't exist
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_versions (
			version     INTEGER PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at  INTEGER NOT NULL DEFAULT (strftime('%s', 'now') * 1000)
		)
	`)
	if err != nil {
		return fmt.Errorf("create schema_versions: %w", err)
	}

	for _, m := range migrations {
		var count int
		err := db.QueryRow("SELECT COUNT(*) FROM schema_versions WHERE version = ?", m.Version).Scan(&count)
		if err != nil {
			return fmt.Errorf("check migration %d: %w", m.Version, err)
		}
		if count > 0 {
			continue
		}

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", m.Version, err)
		}

		if _, err := tx.Exec(m.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d (%s): %w", m.Version, m.Description, err)
		}

		if _, err := tx.Exec(
			"INSERT INTO schema_versions (version, description) VALUES (?, ?)",
			m.Version, m.Description,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}
	}

	return nil
}

// SchemaVersion returns the current schema version.
func (db *DB) SchemaVersion() (int, error) {
	var version int
	err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_versions").Scan(&version)
	return version, err
}
