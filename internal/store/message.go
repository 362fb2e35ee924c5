package store

import (
	"context"
	"crypto/rand"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/matheus3301/chansync/internal/message"
	"github.com/matheus3301/chansync/internal/remote"
	"github.com/oklog/ulid/v2"
)

const messageColumns = `msg_id, channel_url, sender_id, body, sending_status, created_at, updated_at`

// AppendMessage stores a new message at the channel's tail and returns it
// with its server-assigned ID. A zero createdAt means now. CreatedAt is
// kept strictly increasing per channel: a value at or before the current
// tail is moved one millisecond past it.
func (db *DB) AppendMessage(channelURL, senderID, body string, status message.SendingStatus, createdAt message.Timestamp) (*message.Message, error) {
	if createdAt <= 0 {
		createdAt = message.Now()
	}
	if status == "" {
		status = message.StatusSucceeded
	}

	var m *message.Message
	err := db.withTx(func(tx *sql.Tx) error {
		now := time.Now().UnixMilli()
		if _, err := tx.Exec(`
			INSERT INTO channels (url, created_at, updated_at) VALUES (?, ?, ?)
			ON CONFLICT(url) DO NOTHING`, channelURL, now, now); err != nil {
			return fmt.Errorf("ensure channel: %w", err)
		}

		var tail int64
		if err := tx.QueryRow(`SELECT last_message_at FROM channels WHERE url = ?`, channelURL).Scan(&tail); err != nil {
			return fmt.Errorf("read tail: %w", err)
		}
		if createdAt <= tail {
			createdAt = tail + 1
		}

		id, err := ulid.New(ulid.Timestamp(time.UnixMilli(createdAt)), rand.Reader)
		if err != nil {
			return fmt.Errorf("new id: %w", err)
		}
		m = &message.Message{
			ID:            message.ID(id.String()),
			ChannelURL:    channelURL,
			SenderID:      senderID,
			Body:          body,
			SendingStatus: status,
			CreatedAt:     createdAt,
			UpdatedAt:     createdAt,
		}
		if _, err := tx.Exec(`
			INSERT INTO messages (`+messageColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			m.ID, m.ChannelURL, m.SenderID, m.Body, m.SendingStatus, m.CreatedAt, m.UpdatedAt); err != nil {
			return fmt.Errorf("insert message: %w", err)
		}
		if _, err := tx.Exec(`UPDATE channels SET last_message_at = ?, updated_at = ? WHERE url = ?`,
			createdAt, now, channelURL); err != nil {
			return fmt.Errorf("update tail: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

// UpdateMessage edits a live message and records the change. An empty
// status leaves the sending status unchanged.
func (db *DB) UpdateMessage(channelURL string, id message.ID, body string, status message.SendingStatus) (*message.Message, error) {
	var m *message.Message
	err := db.withTx(func(tx *sql.Tx) error {
		cur, err := scanMessage(tx.QueryRow(`
			SELECT `+messageColumns+` FROM messages
			WHERE channel_url = ? AND msg_id = ? AND deleted_at IS NULL`, channelURL, id))
		if err != nil {
			return err
		}
		now := time.Now().UnixMilli()
		cur.Body = body
		if status != "" {
			cur.SendingStatus = status
		}
		cur.UpdatedAt = now
		if _, err := tx.Exec(`
			UPDATE messages SET body = ?, sending_status = ?, updated_at = ?
			WHERE msg_id = ?`, cur.Body, cur.SendingStatus, cur.UpdatedAt, id); err != nil {
			return fmt.Errorf("update message: %w", err)
		}
		if err := recordChange(tx, channelURL, id, changeUpdated, now); err != nil {
			return err
		}
		m = cur
		return nil
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

// DeleteMessage tombstones a message and records the deletion.
func (db *DB) DeleteMessage(channelURL string, id message.ID) error {
	return db.withTx(func(tx *sql.Tx) error {
		now := time.Now().UnixMilli()
		res, err := tx.Exec(`
			UPDATE messages SET deleted_at = ?
			WHERE channel_url = ? AND msg_id = ? AND deleted_at IS NULL`, now, channelURL, id)
		if err != nil {
			return fmt.Errorf("delete message: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrNotFound
		}
		return recordChange(tx, channelURL, id, changeDeleted, now)
	})
}

// GetMessage returns a live message by ID.
func (db *DB) GetMessage(channelURL string, id message.ID) (*message.Message, error) {
	return scanMessage(db.QueryRow(`
		SELECT `+messageColumns+` FROM messages
		WHERE channel_url = ? AND msg_id = ? AND deleted_at IS NULL`, channelURL, id))
}

// FetchByTimestamp returns up to q.Previous live messages before q.Anchor
// and up to q.Next after it, ascending. With q.Inclusive messages at the
// anchor qualify for both sides and are returned once. The result is never
// nil.
func (db *DB) FetchByTimestamp(ctx context.Context, channelURL string, q remote.FetchQuery) ([]message.Message, error) {
	msgs, _, err := db.FetchWithTail(ctx, channelURL, q)
	return msgs, err
}

// FetchWithTail is FetchByTimestamp plus the channel's last-message
// timestamp, read in the same transaction as the messages. The tail is
// zero for an unknown channel.
func (db *DB) FetchWithTail(ctx context.Context, channelURL string, q remote.FetchQuery) ([]message.Message, message.Timestamp, error) {
	if q.Previous < 0 || q.Next < 0 {
		return nil, 0, errors.New("negative result size")
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var prev, next []message.Message
	if q.Previous > 0 {
		op := "<"
		if q.Inclusive {
			op = "<="
		}
		prev, err = queryMessages(ctx, tx, `
			SELECT `+messageColumns+` FROM messages
			WHERE channel_url = ? AND deleted_at IS NULL AND created_at `+op+` ?
			ORDER BY created_at DESC, msg_id DESC
			LIMIT ?`, channelURL, q.Anchor, q.Previous)
		if err != nil {
			return nil, 0, fmt.Errorf("fetch previous: %w", err)
		}
	}
	if q.Next > 0 {
		op := ">"
		if q.Inclusive {
			op = ">="
		}
		next, err = queryMessages(ctx, tx, `
			SELECT `+messageColumns+` FROM messages
			WHERE channel_url = ? AND deleted_at IS NULL AND created_at `+op+` ?
			ORDER BY created_at ASC, msg_id ASC
			LIMIT ?`, channelURL, q.Anchor, q.Next)
		if err != nil {
			return nil, 0, fmt.Errorf("fetch next: %w", err)
		}
	}

	var tail message.Timestamp
	err = tx.QueryRowContext(ctx, `SELECT last_message_at FROM channels WHERE url = ?`, channelURL).Scan(&tail)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, 0, fmt.Errorf("read tail: %w", err)
	}
	return message.Merge(prev, next), tail, nil
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func queryMessages(ctx context.Context, q querier, query string, args ...any) ([]message.Message, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var msgs []message.Message
	for rows.Next() {
		var m message.Message
		if err := rows.Scan(&m.ID, &m.ChannelURL, &m.SenderID, &m.Body, &m.SendingStatus, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMessage(row rowScanner) (*message.Message, error) {
	var m message.Message
	err := row.Scan(&m.ID, &m.ChannelURL, &m.SenderID, &m.Body, &m.SendingStatus, &m.CreatedAt, &m.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func recordChange(tx *sql.Tx, channelURL string, id message.ID, kind string, at int64) error {
	if _, err := tx.Exec(`
		INSERT INTO changelog (channel_url, msg_id, kind, changed_at)
		VALUES (?, ?, ?, ?)`, channelURL, id, kind, at); err != nil {
		return fmt.Errorf("record change: %w", err)
	}
	return nil
}
