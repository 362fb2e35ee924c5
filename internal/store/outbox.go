package store

import (
	"database/sql"
	"errors"
	"time"

	"github.com/matheus3301/chansync/internal/message"
)

// QueueOutbox adds a message to the send outbox.
func (db *DB) QueueOutbox(clientMsgID, channelURL, senderID, body string) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		INSERT INTO outbox (client_msg_id, channel_url, sender_id, body, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		clientMsgID, channelURL, senderID, body, message.StatusPending, now, now)
	return err
}

// MarkOutboxSent marks an entry delivered with the ID the channel assigned.
func (db *DB) MarkOutboxSent(clientMsgID string, serverMsgID message.ID) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`UPDATE outbox SET status = ?, server_msg_id = ?, updated_at = ? WHERE client_msg_id = ?`,
		message.StatusSucceeded, serverMsgID, now, clientMsgID)
	return err
}

// MarkOutboxFailed marks an entry failed with an error message.
func (db *DB) MarkOutboxFailed(clientMsgID, errMsg string) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`UPDATE outbox SET status = ?, error_message = ?, updated_at = ? WHERE client_msg_id = ?`,
		message.StatusFailed, errMsg, now, clientMsgID)
	return err
}

// PendingOutbox returns outbox entries that are still pending, oldest first.
func (db *DB) PendingOutbox() ([]OutboxEntry, error) {
	rows, err := db.Query(`
		SELECT id, client_msg_id, channel_url, sender_id, body, status, error_message, server_msg_id
		FROM outbox WHERE status = ? ORDER BY created_at ASC, id ASC`, message.StatusPending)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var entries []OutboxEntry
	for rows.Next() {
		var e OutboxEntry
		if err := rows.Scan(&e.ID, &e.ClientMsgID, &e.ChannelURL, &e.SenderID, &e.Body, &e.Status, &e.ErrorMessage, &e.ServerMsgID); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// GetOutbox returns one outbox entry, or nil if it does not exist.
func (db *DB) GetOutbox(clientMsgID string) (*OutboxEntry, error) {
	var e OutboxEntry
	err := db.QueryRow(`
		SELECT id, client_msg_id, channel_url, sender_id, body, status, error_message, server_msg_id
		FROM outbox WHERE client_msg_id = ?`, clientMsgID).
		Scan(&e.ID, &e.ClientMsgID, &e.ChannelURL, &e.SenderID, &e.Body, &e.Status, &e.ErrorMessage, &e.ServerMsgID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}
