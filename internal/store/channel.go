package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/matheus3301/chansync/internal/message"
	"github.com/matheus3301/chansync/internal/remote"
)

// DefaultChangelogLimit is the changelog page size used when none is given.
const DefaultChangelogLimit = 100

// UpsertChannel inserts a channel or renames an existing one.
func (db *DB) UpsertChannel(url, name string) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		INSERT INTO channels (url, name, created_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(url) DO UPDATE SET
			name = CASE WHEN excluded.name = '' THEN channels.name ELSE excluded.name END,
			updated_at = excluded.updated_at`,
		url, name, now, now)
	return err
}

// GetChannel returns a channel by URL, or nil if it does not exist.
func (db *DB) GetChannel(url string) (*ChannelInfo, error) {
	var c ChannelInfo
	err := db.QueryRow(`
		SELECT url, name, last_message_at, updated_at
		FROM channels WHERE url = ?`, url).
		Scan(&c.URL, &c.Name, &c.LastMessageAt, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// ChannelCount returns the number of known channels.
func (db *DB) ChannelCount() (int, error) {
	var n int
	err := db.QueryRow(`SELECT COUNT(*) FROM channels`).Scan(&n)
	return n, err
}

// ListChannels returns channels sorted by last message timestamp descending.
func (db *DB) ListChannels(limit, offset int) ([]ChannelInfo, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.Query(`
		SELECT url, name, last_message_at, updated_at
		FROM channels
		ORDER BY last_message_at DESC
		LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var channels []ChannelInfo
	for rows.Next() {
		var c ChannelInfo
		if err := rows.Scan(&c.URL, &c.Name, &c.LastMessageAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		channels = append(channels, c)
	}
	return channels, rows.Err()
}

// ChannelView exposes one channel as a remote.Store.
type ChannelView struct {
	db    *DB
	url   string
	limit int
}

var (
	_ remote.Store        = (*ChannelView)(nil)
	_ remote.TailFetcher  = (*ChannelView)(nil)
)

// Channel returns a view of the channel at url.
func (db *DB) Channel(url string) *ChannelView {
	return &ChannelView{db: db, url: url, limit: DefaultChangelogLimit}
}

// WithChangelogLimit returns a copy of v with a different changelog page size.
func (v *ChannelView) WithChangelogLimit(n int) *ChannelView {
	cp := *v
	if n > 0 {
		cp.limit = n
	}
	return &cp
}

// URL returns the channel URL.
func (v *ChannelView) URL() string {
	return v.url
}

func (v *ChannelView) FetchByTimestamp(ctx context.Context, q remote.FetchQuery) ([]message.Message, error) {
	return v.db.FetchByTimestamp(ctx, v.url, q)
}

func (v *ChannelView) FetchChangelog(ctx context.Context, since remote.ChangelogCursor) (*remote.Changelog, error) {
	return v.db.FetchChangelog(ctx, v.url, since, v.limit)
}

func (v *ChannelView) FetchWithTail(ctx context.Context, q remote.FetchQuery) ([]message.Message, message.Timestamp, error) {
	return v.db.FetchWithTail(ctx, v.url, q)
}
