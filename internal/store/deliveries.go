package store

import (
	"fmt"

	"github.com/lazypower/resonance/internal/quiet"
)

// DeliveryRecord is one revealed quiet message.
type DeliveryRecord struct {
	ID          int64  `json:"id"`
	MessageID   string `json:"message_id"`
	Sender      string `json:"sender"`
	Recipient   string `json:"recipient"`
	Tone        string `json:"tone"`
	Condition   string `json:"condition"`
	Suppressed  bool   `json:"suppressed"`
	SentAt      int64  `json:"sent_at"`
	DeliveredAt int64  `json:"delivered_at"`
}

// RecordDelivery logs a delivered message. The body is not stored.
func (db *DB) RecordDelivery(m quiet.QuietMessage) error {
	if m.DeliveredAt == nil {
		return fmt.Errorf("record delivery %s: message not delivered", m.ID)
	}
	_, err := db.Exec(`
		INSERT INTO deliveries (message_id, sender, recipient, tone, condition, suppressed, sent_at, delivered_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(message_id) DO NOTHING
	`, m.ID, m.SenderID, m.RecipientID, m.Tone.String(), quiet.ConditionKind(m.Condition),
		m.SuppressNotification, m.SentAt.UnixMilli(), m.DeliveredAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("record delivery %s: %w", m.ID, err)
	}
	return nil
}

// Deliveries returns up to limit deliveries, newest first.
func (db *DB) Deliveries(limit int) ([]DeliveryRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.Query(`
		SELECT id, message_id, sender, recipient, tone, condition, suppressed, sent_at, delivered_at
		FROM deliveries ORDER BY delivered_at DESC, id DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("deliveries: %w", err)
	}
	defer rows.Close()

	var out []DeliveryRecord
	for rows.Next() {
		var r DeliveryRecord
		if err := rows.Scan(&r.ID, &r.MessageID, &r.Sender, &r.Recipient, &r.Tone, &r.Condition,
			&r.Suppressed, &r.SentAt, &r.DeliveredAt); err != nil {
			return nil, fmt.Errorf("scan delivery: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
