package store

import (
	"fmt"
	"strings"
	"time"

	"github.com/lazypower/resonance/internal/pulse"
)

// Pulse directions in the log.
const (
	DirectionOut = "out"
	DirectionIn  = "in"
)

// PulseRecord is one row of pulse_log.
type PulseRecord struct {
	ID         int64    `json:"id"`
	PulseID    string   `json:"pulse_id"`
	Direction  string   `json:"direction"`
	Sender     string   `json:"sender"`
	Type       string   `json:"type"`
	Energy     float64  `json:"energy"`
	TTLMillis  int64    `json:"ttl_ms"`
	Audience   []string `json:"audience"`
	EchoOf     string   `json:"echo_of"`
	Note       string   `json:"note"`
	EmittedAt  int64    `json:"emitted_at"`
	RecordedAt int64    `json:"recorded_at"`
}

// RecordPulse appends p to the pulse log. Logging the same pulse twice in the
// same direction is a no-op.
func (db *DB) RecordPulse(direction string, p pulse.Pulse) error {
	_, err := db.Exec(`
		INSERT INTO pulse_log (pulse_id, direction, sender, pulse_type, energy, ttl_ms, audience, echo_of, note, emitted_at, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(pulse_id, direction) DO NOTHING
	`, p.ID, direction, p.SenderID, p.Type.String(), p.Energy, p.TTL.Milliseconds(),
		strings.Join(p.Audience, ","), p.EchoOf, p.Note, p.Timestamp.UnixMilli(), time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("record pulse %s: %w", p.ID, err)
	}
	return nil
}

// RecentPulses returns up to limit log rows, newest first.
func (db *DB) RecentPulses(limit int) ([]PulseRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.Query(`
		SELECT id, pulse_id, direction, sender, pulse_type, energy, ttl_ms, audience, echo_of, note, emitted_at, recorded_at
		FROM pulse_log ORDER BY emitted_at DESC, id DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("recent pulses: %w", err)
	}
	defer rows.Close()

	var out []PulseRecord
	for rows.Next() {
		var (
			r        PulseRecord
			audience string
		)
		if err := rows.Scan(&r.ID, &r.PulseID, &r.Direction, &r.Sender, &r.Type, &r.Energy,
			&r.TTLMillis, &audience, &r.EchoOf, &r.Note, &r.EmittedAt, &r.RecordedAt); err != nil {
			return nil, fmt.Errorf("scan pulse: %w", err)
		}
		if audience != "" {
			r.Audience = strings.Split(audience, ",")
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
