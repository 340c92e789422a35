package service

import (
	"database/sql"
	"fmt"

	"smsrelay/models"
)

// Per-device history cap, matching what device clients were written
// against: keep the newest 500 messages.
const inboxCap = 500

// InboxStore persists inbound SMS reports to SQLite.
type InboxStore struct {
	db *sql.DB
}

func NewInboxStore(db *sql.DB) *InboxStore {
	return &InboxStore{db: db}
}

// Save appends a message to a device's history and prunes anything beyond
// the cap, oldest first.
func (s *InboxStore) Save(uuid string, sms models.SMSRecord) error {
	_, err := s.db.Exec(
		`INSERT INTO inbox (device_uuid, sender, body, sim, battery, timestamp) VALUES (?, ?, ?, ?, ?, ?)`,
		uuid, sms.From, sms.Body, sms.SIM, sms.Battery, sms.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("save sms: %w", err)
	}

	_, err = s.db.Exec(
		`DELETE FROM inbox WHERE device_uuid = ? AND id NOT IN (
			SELECT id FROM inbox WHERE device_uuid = ? ORDER BY id DESC LIMIT ?
		)`,
		uuid, uuid, inboxCap,
	)
	if err != nil {
		return fmt.Errorf("prune inbox: %w", err)
	}
	return nil
}

// Recent returns up to n messages for a device, newest first.
func (s *InboxStore) Recent(uuid string, n int) ([]models.SMSRecord, error) {
	rows, err := s.db.Query(
		`SELECT sender, body, sim, battery, timestamp FROM inbox WHERE device_uuid = ? ORDER BY id DESC LIMIT ?`,
		uuid, n,
	)
	if err != nil {
		return nil, fmt.Errorf("load inbox: %w", err)
	}
	defer rows.Close()

	var records []models.SMSRecord
	for rows.Next() {
		var r models.SMSRecord
		if err := rows.Scan(&r.From, &r.Body, &r.SIM, &r.Battery, &r.Timestamp); err != nil {
			return nil, fmt.Errorf("scan sms row: %w", err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}
