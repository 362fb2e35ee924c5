package store

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/matheus3301/chansync/internal/message"
	"github.com/matheus3301/chansync/internal/remote"
)

type changeRow struct {
	seq  int64
	id   message.ID
	kind string
}

// FetchChangelog returns up to limit changelog rows after the cursor,
// collapsed per message: the last change in the page wins. Tokens are
// changelog sequence numbers; a timestamp cursor selects rows changed
// after it.
func (db *DB) FetchChangelog(ctx context.Context, channelURL string, since remote.ChangelogCursor, limit int) (*remote.Changelog, error) {
	if limit <= 0 {
		limit = DefaultChangelogLimit
	}

	where, arg := "changed_at > ?", any(since.Timestamp)
	if since.Token != "" {
		seq, err := strconv.ParseInt(string(since.Token), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse token %q: %w", since.Token, err)
		}
		where, arg = "seq > ?", seq
	}

	rows, err := db.QueryContext(ctx, `
		SELECT seq, msg_id, kind FROM changelog
		WHERE channel_url = ? AND `+where+`
		ORDER BY seq ASC
		LIMIT ?`, channelURL, arg, limit+1)
	if err != nil {
		return nil, fmt.Errorf("query changelog: %w", err)
	}
	var page []changeRow
	for rows.Next() {
		var r changeRow
		if err := rows.Scan(&r.seq, &r.id, &r.kind); err != nil {
			_ = rows.Close()
			return nil, err
		}
		page = append(page, r)
	}
	_ = rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	cl := &remote.Changelog{HasMore: len(page) > limit}
	if cl.HasMore {
		page = page[:limit]
	}

	switch {
	case len(page) > 0:
		cl.NextToken = remote.Token(strconv.FormatInt(page[len(page)-1].seq, 10))
	case since.Token != "":
		cl.NextToken = since.Token
	default:
		var maxSeq int64
		if err := db.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) FROM changelog WHERE channel_url = ?`, channelURL).Scan(&maxSeq); err != nil {
			return nil, fmt.Errorf("changelog head: %w", err)
		}
		cl.NextToken = remote.Token(strconv.FormatInt(maxSeq, 10))
	}

	latest := make(map[message.ID]string, len(page))
	var order []message.ID
	for _, r := range page {
		if _, ok := latest[r.id]; !ok {
			order = append(order, r.id)
		}
		latest[r.id] = r.kind
	}

	var updated []message.ID
	for _, id := range order {
		if latest[id] == changeDeleted {
			cl.DeletedIDs = append(cl.DeletedIDs, id)
			continue
		}
		updated = append(updated, id)
	}
	if len(updated) > 0 {
		// Messages deleted in a later page are skipped here; that page
		// reports the deletion.
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(updated)), ",")
		args := []any{channelURL}
		for _, id := range updated {
			args = append(args, id)
		}
		cl.Updated, err = queryMessages(ctx, db, `
			SELECT `+messageColumns+` FROM messages
			WHERE channel_url = ? AND deleted_at IS NULL AND msg_id IN (`+placeholders+`)
			ORDER BY created_at ASC, msg_id ASC`, args...)
		if err != nil {
			return nil, fmt.Errorf("load updated: %w", err)
		}
	}
	return cl, nil
}
