package remote

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"sync"

	"github.com/matheus3301/chansync/internal/message"
)

const defaultChangelogLimit = 100

type changeKind int

const (
	changeUpdated changeKind = iota
	changeDeleted
)

type changeEntry struct {
	seq  int64
	id   message.ID
	kind changeKind
	at   message.Timestamp
}

// MemoryStore is an in-process Store for tests and local development.
// Messages are kept ordered; every update or delete appends a changelog entry.
type MemoryStore struct {
	mu      sync.Mutex
	msgs    []message.Message
	changes []changeEntry
	seq     int64
	limit   int
}

var (
	_ Store       = (*MemoryStore)(nil)
	_ TailFetcher = (*MemoryStore)(nil)
)

// NewMemoryStore returns an empty store. changelogLimit bounds each
// changelog page; zero means 100.
func NewMemoryStore(changelogLimit int) *MemoryStore {
	if changelogLimit <= 0 {
		changelogLimit = defaultChangelogLimit
	}
	return &MemoryStore{limit: changelogLimit}
}

// Add inserts messages without recording changelog entries.
func (s *MemoryStore) Add(msgs ...message.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgs = message.Merge(s.msgs, msgs)
}

// Update replaces an existing message and records the change at time at.
func (s *MemoryStore) Update(m message.Message, at message.Timestamp) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if message.Replace(s.msgs, []message.Message{m}) == 0 {
		return fmt.Errorf("update %s: not found", m.ID)
	}
	s.record(m.ID, changeUpdated, at)
	return nil
}

// Delete removes a message and records the change at time at.
func (s *MemoryStore) Delete(id message.ID, at message.Timestamp) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	before := len(s.msgs)
	s.msgs = message.Remove(s.msgs, []message.ID{id})
	if len(s.msgs) == before {
		return fmt.Errorf("delete %s: not found", id)
	}
	s.record(id, changeDeleted, at)
	return nil
}

func (s *MemoryStore) record(id message.ID, kind changeKind, at message.Timestamp) {
	s.seq++
	s.changes = append(s.changes, changeEntry{seq: s.seq, id: id, kind: kind, at: at})
}

// Len returns the number of live messages.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.msgs)
}

// FetchByTimestamp returns up to q.Previous messages before the anchor and
// up to q.Next after it, ascending. With Inclusive, messages at the anchor
// qualify for both sides and are returned once.
func (s *MemoryStore) FetchByTimestamp(ctx context.Context, q FetchQuery) ([]message.Message, error) {
	msgs, _, err := s.FetchWithTail(ctx, q)
	return msgs, err
}

// FetchWithTail is FetchByTimestamp plus the newest message timestamp of
// the same snapshot.
func (s *MemoryStore) FetchWithTail(ctx context.Context, q FetchQuery) ([]message.Message, message.Timestamp, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	if q.Previous < 0 || q.Next < 0 {
		return nil, 0, errors.New("negative result size")
	}

	s.mu.Lock()
	snap := slices.Clone(s.msgs)
	s.mu.Unlock()
	tail, _ := message.Newest(snap)

	var prev, next []message.Message
	for i := len(snap) - 1; i >= 0 && len(prev) < q.Previous; i-- {
		m := snap[i]
		if m.CreatedAt < q.Anchor || (q.Inclusive && m.CreatedAt == q.Anchor) {
			prev = append(prev, m)
		}
	}
	for i := 0; i < len(snap) && len(next) < q.Next; i++ {
		m := snap[i]
		if m.CreatedAt > q.Anchor || (q.Inclusive && m.CreatedAt == q.Anchor) {
			next = append(next, m)
		}
	}
	return message.Merge(prev, next), tail, nil
}

// FetchChangelog returns one page of changes after the cursor. Multiple
// changes to one message within a page collapse to the latest.
func (s *MemoryStore) FetchChangelog(ctx context.Context, since ChangelogCursor) (*Changelog, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	start := 0
	if since.Token != "" {
		after, err := strconv.ParseInt(string(since.Token), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse token %q: %w", since.Token, err)
		}
		start = sortSearchSeq(s.changes, after)
	} else {
		for start < len(s.changes) && s.changes[start].at <= since.Timestamp {
			start++
		}
	}

	end := min(start+s.limit, len(s.changes))
	page := s.changes[start:end]

	cl := &Changelog{HasMore: end < len(s.changes)}
	switch {
	case len(page) > 0:
		cl.NextToken = Token(strconv.FormatInt(page[len(page)-1].seq, 10))
	case since.Token != "":
		cl.NextToken = since.Token
	default:
		cl.NextToken = Token(strconv.FormatInt(s.seq, 10))
	}

	latest := make(map[message.ID]changeKind, len(page))
	var order []message.ID
	for _, c := range page {
		if _, ok := latest[c.id]; !ok {
			order = append(order, c.id)
		}
		latest[c.id] = c.kind
	}
	for _, id := range order {
		if latest[id] == changeDeleted {
			cl.DeletedIDs = append(cl.DeletedIDs, id)
			continue
		}
		if i := slices.IndexFunc(s.msgs, func(m message.Message) bool { return m.ID == id }); i >= 0 {
			cl.Updated = append(cl.Updated, s.msgs[i])
		}
	}
	message.Sort(cl.Updated)
	return cl, nil
}

func sortSearchSeq(changes []changeEntry, after int64) int {
	i, _ := slices.BinarySearchFunc(changes, after+1, func(c changeEntry, target int64) int {
		switch {
		case c.seq < target:
			return -1
		case c.seq > target:
			return 1
		}
		return 0
	})
	return i
}
