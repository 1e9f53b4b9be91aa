package store

import (
	"fmt"

	"github.com/lazypower/resonance/internal/contract"
)

// ContractEventRecord is one persisted contract history entry.
type ContractEventRecord struct {
	ID         int64  `json:"id"`
	ContractID string `json:"contract_id"`
	Type       string `json:"type"`
	Party      string `json:"party"`
	Details    string `json:"details"`
	CreatedAt  int64  `json:"created_at"`
}

// RecordContractEvent appends ev to the contract history.
func (db *DB) RecordContractEvent(contractID string, ev contract.Event) error {
	_, err := db.Exec(`
		INSERT INTO contract_events (contract_id, event_type, party, details, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, contractID, string(ev.Type), ev.Party, ev.Details, ev.Timestamp.UnixMilli())
	if err != nil {
		return fmt.Errorf("record contract event %s/%s: %w", contractID, ev.Type, err)
	}
	return nil
}

// ContractEvents returns the persisted history of one contract in insertion
// order. An empty contractID returns every contract's events.
func (db *DB) ContractEvents(contractID string) ([]ContractEventRecord, error) {
	query := `SELECT id, contract_id, event_type, party, details, created_at FROM contract_events`
	var args []any
	if contractID != "" {
		query += ` WHERE contract_id = ?`
		args = append(args, contractID)
	}
	query += ` ORDER BY id`

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("contract events: %w", err)
	}
	defer rows.Close()

	var out []ContractEventRecord
	for rows.Next() {
		var r ContractEventRecord
		if err := rows.Scan(&r.ID, &r.ContractID, &r.Type, &r.Party, &r.Details, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan contract event: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
