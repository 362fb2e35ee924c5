package sync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/matheus3301/chansync/internal/bus"
	"github.com/matheus3301/chansync/internal/message"
	"github.com/matheus3301/chansync/internal/remote"
	"github.com/matheus3301/chansync/internal/window"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubStore struct {
	mu        sync.Mutex
	fetch     func(q remote.FetchQuery) ([]message.Message, error)
	changelog func(c remote.ChangelogCursor) (*remote.Changelog, error)
	queries   []remote.FetchQuery
	cursors   []remote.ChangelogCursor
	block     chan struct{}
}

func (s *stubStore) FetchByTimestamp(ctx context.Context, q remote.FetchQuery) ([]message.Message, error) {
	s.mu.Lock()
	s.queries = append(s.queries, q)
	fn, block := s.fetch, s.block
	s.mu.Unlock()
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return fn(q)
}

func (s *stubStore) FetchChangelog(ctx context.Context, c remote.ChangelogCursor) (*remote.Changelog, error) {
	s.mu.Lock()
	s.cursors = append(s.cursors, c)
	fn := s.changelog
	s.mu.Unlock()
	return fn(c)
}

func (s *stubStore) fetchQueries() []remote.FetchQuery {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]remote.FetchQuery(nil), s.queries...)
}

func (s *stubStore) changelogCursors() []remote.ChangelogCursor {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]remote.ChangelogCursor(nil), s.cursors...)
}

func makeMsgs(prefix string, start, step message.Timestamp, n int) []message.Message {
	out := make([]message.Message, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, message.Message{
			ID:         message.ID(fmt.Sprintf("%s%03d", prefix, i+1)),
			ChannelURL: "ch-1",
			Body:       "hi",
			CreatedAt:  start + message.Timestamp(i)*step,
		})
	}
	return out
}

func newTestCoordinator(t *testing.T, store remote.Store, cfg Config, now message.Timestamp) (*Coordinator, <-chan bus.Event) {
	t.Helper()
	b := bus.New()
	events, unsub := b.Subscribe("sync.", 512)
	c := NewCoordinator(store, window.NewCache(0), b, zap.NewNop(), cfg,
		WithChannel("ch-1"),
		WithClock(func() message.Timestamp { return now }))
	t.Cleanup(func() {
		c.Close()
		unsub()
	})
	return c, events
}

func wait(t *testing.T, op *Op) error {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := op.Wait(ctx)
	require.NotErrorIs(t, err, context.DeadlineExceeded)
	return err
}

func waitFor(t *testing.T, events <-chan bus.Event, kind string) bus.Event {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case evt := <-events:
			if evt.Kind == kind {
				return evt
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %s", kind)
			return bus.Event{}
		}
	}
}

func anchorAt(ts message.Timestamp) *message.Timestamp { return &ts }

func TestLoadInitialLiveTail(t *testing.T) {
	store := remote.NewMemoryStore(0)
	store.Add(makeMsgs("m", 100, 10, 50)...)
	c, events := newTestCoordinator(t, store, Config{PreviousResultSize: 30, NextResultSize: 30}, 10_000)

	require.NoError(t, wait(t, c.LoadInitial(nil, nil)))

	snap := c.Snapshot()
	require.True(t, snap.HasPrevious)
	require.False(t, snap.HasNext)
	require.True(t, snap.State.InitSucceeded)

	batch := waitFor(t, events, KindInitial).Payload.(Batch)
	require.Len(t, batch.Messages, 30)
	require.True(t, message.IsOrdered(batch.Messages))
	require.Equal(t, message.ID("m021"), batch.Messages[0].ID)
	require.True(t, batch.IsLive)
}

func TestLoadInitialLiveQuery(t *testing.T) {
	store := &stubStore{fetch: func(remote.FetchQuery) ([]message.Message, error) {
		return makeMsgs("m", 100, 10, 5), nil
	}}
	c, _ := newTestCoordinator(t, store, Config{}, 10_000)

	require.NoError(t, wait(t, c.LoadInitial(nil, nil)))

	q := store.fetchQueries()
	require.Len(t, q, 1)
	require.Equal(t, remote.FetchQuery{Anchor: message.MaxTimestamp, Previous: DefaultPageSize, Inclusive: true}, q[0])
	require.False(t, c.Snapshot().HasPrevious, "5 of 30 means the start of history was reached")
}

func TestLoadInitialAnchoredSplit(t *testing.T) {
	before := makeMsgs("a", 100, 100, 10) // 100..1000
	after := makeMsgs("b", 1100, 100, 14)
	store := &stubStore{fetch: func(remote.FetchQuery) ([]message.Message, error) {
		return append(append([]message.Message{}, before...), after...), nil
	}}
	c, _ := newTestCoordinator(t, store, Config{PreviousResultSize: 30, NextResultSize: 30}, 10_000)

	require.NoError(t, wait(t, c.LoadInitial(anchorAt(1000), nil)))

	q := store.fetchQueries()
	require.Len(t, q, 1)
	require.Equal(t, remote.FetchQuery{Anchor: 1000, Previous: 15, Next: 15, Inclusive: true}, q[0])

	snap := c.Snapshot()
	require.False(t, snap.HasPrevious)
	require.True(t, snap.HasNext)
	require.Len(t, snap.Messages, 24)
	require.Equal(t, message.Timestamp(2400), snap.State.LastUpdated)
}

func TestLoadInitialWithSuppliedMessages(t *testing.T) {
	store := &stubStore{fetch: func(remote.FetchQuery) ([]message.Message, error) {
		return nil, errors.New("must not fetch")
	}}
	c, events := newTestCoordinator(t, store, Config{}, 10_000)

	require.NoError(t, wait(t, c.LoadInitial(nil, makeMsgs("m", 100, 10, 3))))
	require.Empty(t, store.fetchQueries())
	require.Len(t, waitFor(t, events, KindInitial).Payload.(Batch).Messages, 3)
}

func TestLoadInitialEmptyResponse(t *testing.T) {
	store := &stubStore{fetch: func(remote.FetchQuery) ([]message.Message, error) {
		return nil, nil
	}}
	c, events := newTestCoordinator(t, store, Config{}, 10_000)

	err := wait(t, c.LoadInitial(nil, nil))
	require.ErrorIs(t, err, remote.ErrEmptyResponse)

	failure := waitFor(t, events, KindError).Payload.(Failure)
	require.Equal(t, ErrorEmptyResponse, failure.Kind)
	require.False(t, c.Snapshot().State.InitSucceeded)
}

func TestConcurrentLoadPreviousFetchesOnce(t *testing.T) {
	store := &stubStore{
		block: make(chan struct{}),
		fetch: func(remote.FetchQuery) ([]message.Message, error) {
			return makeMsgs("m", 100, 10, 5), nil
		},
	}
	c, _ := newTestCoordinator(t, store, Config{}, 10_000)

	first := c.LoadPrevious(nil)
	second := c.LoadPrevious(nil)
	require.True(t, second.Dropped())

	close(store.block)
	require.NoError(t, wait(t, first))
	require.Len(t, store.fetchQueries(), 1)

	// The gate is free again once the first load finished.
	require.NoError(t, wait(t, c.LoadPrevious(nil)))
}

func TestLoadNextErrorReleasesGate(t *testing.T) {
	var calls int
	store := &stubStore{fetch: func(remote.FetchQuery) ([]message.Message, error) {
		calls++
		if calls == 1 {
			return nil, errors.New("connection reset")
		}
		return []message.Message{}, nil
	}}
	c, events := newTestCoordinator(t, store, Config{}, 10_000)

	err := wait(t, c.LoadNext())
	require.True(t, remote.IsTransport(err))

	failure := waitFor(t, events, KindError).Payload.(Failure)
	require.Equal(t, ErrorTransport, failure.Kind)
	require.Equal(t, "next", failure.Op)

	op := c.LoadNext()
	require.NoError(t, wait(t, op))
	require.False(t, op.Dropped())
}

func pinnedStore() *stubStore {
	return &stubStore{fetch: func(q remote.FetchQuery) ([]message.Message, error) {
		switch {
		case q.Inclusive:
			return makeMsgs("m", 500, 100, 11), nil // 500..1500
		case q.Previous > 0:
			return makeMsgs("p", 100, 100, 4), nil // 100..400
		default:
			return []message.Message{{ID: "n001", CreatedAt: 1600}}, nil
		}
	}}
}

func TestLastUpdatedNeverMovesBackward(t *testing.T) {
	c, _ := newTestCoordinator(t, pinnedStore(), Config{PreviousResultSize: 4, NextResultSize: 4}, 10_000)

	require.NoError(t, wait(t, c.LoadInitial(anchorAt(1000), nil)))
	require.Equal(t, message.Timestamp(1500), c.Snapshot().State.LastUpdated)

	require.NoError(t, wait(t, c.LoadPrevious(anchorAt(500))))
	snap := c.Snapshot()
	require.Equal(t, message.Timestamp(1500), snap.State.LastUpdated)
	require.True(t, snap.HasPrevious)
	require.Len(t, snap.Messages, 15)
	require.True(t, message.IsOrdered(snap.Messages))
}

func TestLoadNextReachesLiveTail(t *testing.T) {
	store := pinnedStore()
	c, events := newTestCoordinator(t, store, Config{PreviousResultSize: 4, NextResultSize: 4}, 10_000)

	require.NoError(t, wait(t, c.LoadInitial(anchorAt(1000), nil)))
	require.True(t, c.Snapshot().HasNext)

	require.NoError(t, wait(t, c.LoadNext()))

	q := store.fetchQueries()
	require.Equal(t, remote.FetchQuery{Anchor: 1500, Next: 4}, q[len(q)-1])

	batch := waitFor(t, events, KindNextPage).Payload.(Batch)
	require.True(t, batch.IsLive)
	require.False(t, batch.HasNext)
	require.Contains(t, message.IDs(batch.Messages), message.ID("n001"))

	snap := c.Snapshot()
	require.False(t, snap.HasNext)
	// At the live tail with no reported tail the clock is used.
	require.Equal(t, message.Timestamp(10_000), snap.State.LastUpdated)
}

func TestStaleResultIsDropped(t *testing.T) {
	store := &stubStore{
		block: make(chan struct{}),
		fetch: func(remote.FetchQuery) ([]message.Message, error) {
			return []message.Message{{ID: "late", CreatedAt: 20_000}}, nil
		},
	}
	c, _ := newTestCoordinator(t, store, Config{}, 10_000)

	pending := c.LoadNext()
	require.NoError(t, wait(t, c.LoadInitial(anchorAt(50), makeMsgs("m", 40, 5, 3))))

	close(store.block)
	require.ErrorIs(t, wait(t, pending), ErrStaleSession)
	require.False(t, slicesContains(c.Snapshot().Messages, "late"))
}

func TestLoadInitialWhileInFlightIsDropped(t *testing.T) {
	store := &stubStore{
		block: make(chan struct{}),
		fetch: func(remote.FetchQuery) ([]message.Message, error) {
			return []message.Message{}, nil
		},
	}
	c, _ := newTestCoordinator(t, store, Config{}, 10_000)

	first := c.LoadInitial(nil, nil)
	require.True(t, c.LoadInitial(nil, nil).Dropped())
	close(store.block)
	require.NoError(t, wait(t, first))
}

func TestLoadingEvents(t *testing.T) {
	store := &stubStore{fetch: func(remote.FetchQuery) ([]message.Message, error) {
		return makeMsgs("m", 100, 10, 2), nil
	}}
	c, events := newTestCoordinator(t, store, Config{}, 10_000)

	require.NoError(t, wait(t, c.LoadInitial(nil, nil)))

	var kinds []string
	for len(kinds) < 3 {
		evt := <-events
		kinds = append(kinds, evt.Kind)
		if evt.Kind == KindLoading && len(kinds) == 1 {
			require.True(t, evt.Payload.(Loading).Loading)
		}
	}
	require.Equal(t, []string{KindLoading, KindInitial, KindLoading}, kinds)
	require.False(t, c.Loading())
}

func TestSplitSizes(t *testing.T) {
	tests := []struct {
		prev, next         int
		wantPrev, wantNext int
	}{
		{30, 30, 15, 15},
		{0, 30, 15, 15},
		{20, 0, 10, 10},
		{0, 0, 15, 15},
		{1, 1, 1, 1},
		{40, 10, 20, 5},
	}
	for _, tt := range tests {
		p, n := Config{PreviousResultSize: tt.prev, NextResultSize: tt.next}.splitSizes()
		if p != tt.wantPrev || n != tt.wantNext {
			t.Errorf("splitSizes(%d, %d) = %d, %d, want %d, %d", tt.prev, tt.next, p, n, tt.wantPrev, tt.wantNext)
		}
	}
}

func slicesContains(msgs []message.Message, id message.ID) bool {
	for _, m := range msgs {
		if m.ID == id {
			return true
		}
	}
	return false
}

type tailStore struct {
	*stubStore
	mu   sync.Mutex
	tail message.Timestamp
}

func (s *tailStore) setTail(at message.Timestamp) {
	s.mu.Lock()
	s.tail = at
	s.mu.Unlock()
}

func (s *tailStore) FetchWithTail(ctx context.Context, q remote.FetchQuery) ([]message.Message, message.Timestamp, error) {
	msgs, err := s.FetchByTimestamp(ctx, q)
	s.mu.Lock()
	defer s.mu.Unlock()
	return msgs, s.tail, err
}

// afterAnchor serves forward queries from msgs.
func afterAnchor(msgs []message.Message, q remote.FetchQuery) []message.Message {
	out := []message.Message{}
	for _, m := range msgs {
		if m.CreatedAt > q.Anchor && len(out) < q.Next {
			out = append(out, m)
		}
	}
	return out
}

func collectBatches(t *testing.T, events <-chan bus.Event, kind string, n int) [][]message.ID {
	t.Helper()
	var out [][]message.ID
	for range n {
		out = append(out, message.IDs(waitFor(t, events, kind).Payload.(Batch).Messages))
	}
	return out
}

func requireDisjoint(t *testing.T, batches [][]message.ID) {
	t.Helper()
	seen := make(map[message.ID]int)
	for i, ids := range batches {
		for _, id := range ids {
			if prev, ok := seen[id]; ok {
				t.Fatalf("%s published in batch %d and %d", id, prev, i)
			}
			seen[id] = i
		}
	}
}

func TestConcurrentLoadNextFetchesOnce(t *testing.T) {
	store := &stubStore{
		block: make(chan struct{}),
		fetch: func(remote.FetchQuery) ([]message.Message, error) {
			return makeMsgs("n", 20_000, 10, 2), nil
		},
	}
	c, _ := newTestCoordinator(t, store, Config{}, 10_000)

	first := c.LoadNext()
	second := c.LoadNext()
	require.True(t, second.Dropped())
	require.ErrorIs(t, wait(t, second), ErrBusy)

	close(store.block)
	require.NoError(t, wait(t, first))
	require.Len(t, store.fetchQueries(), 1)
}

func TestHasNextStaysFalseAfterCatchUp(t *testing.T) {
	tail := makeMsgs("n", 1600, 100, 40) // 1600..5500
	var calls int
	store := &stubStore{fetch: func(q remote.FetchQuery) ([]message.Message, error) {
		if q.Inclusive {
			return makeMsgs("m", 500, 100, 11), nil // 500..1500
		}
		calls++
		if calls == 1 {
			return tail[:1], nil
		}
		return afterAnchor(tail, q), nil
	}}
	c, events := newTestCoordinator(t, store, Config{PreviousResultSize: 4, NextResultSize: 4}, 1000)

	require.NoError(t, wait(t, c.LoadInitial(anchorAt(1000), nil)))
	require.True(t, c.Snapshot().HasNext)

	require.NoError(t, wait(t, c.LoadNext()))
	require.False(t, c.Snapshot().HasNext)

	// Full pages after catching up never pin the window again.
	for range 3 {
		require.NoError(t, wait(t, c.LoadNext()))
		require.False(t, c.Snapshot().HasNext)
	}
	for range 4 {
		batch := waitFor(t, events, KindNextPage).Payload.(Batch)
		require.False(t, batch.HasNext)
		require.True(t, batch.IsLive)
	}
}

func TestLiveForwardPageUsesTailReadWithFetch(t *testing.T) {
	store := &tailStore{stubStore: &stubStore{}}
	store.fetch = func(q remote.FetchQuery) ([]message.Message, error) {
		switch {
		case q.Inclusive:
			store.setTail(140)
			return makeMsgs("m", 100, 10, 5), nil // 100..140
		case q.Anchor < 200:
			store.setTail(5000)
			return makeMsgs("n", 200, 1, 30), nil // 200..229
		default:
			store.setTail(5000)
			return []message.Message{{ID: "t", CreatedAt: 5000}}, nil
		}
	}
	c, _ := newTestCoordinator(t, store, Config{}, 50)

	require.NoError(t, wait(t, c.LoadInitial(nil, nil)))
	require.Equal(t, message.Timestamp(140), c.Snapshot().State.LastUpdated)

	// A full page did not reach the tail, so unfetched messages up to 5000
	// must stay above the high-water mark.
	require.NoError(t, wait(t, c.LoadNext()))
	snap := c.Snapshot()
	require.False(t, snap.HasNext)
	require.Equal(t, message.Timestamp(229), snap.State.LastUpdated)

	require.NoError(t, wait(t, c.LoadNext()))
	require.Equal(t, message.Timestamp(5000), c.Snapshot().State.LastUpdated)
}

func TestLoadPreviousKeepsAppendsReachable(t *testing.T) {
	store := remote.NewMemoryStore(0)
	store.Add(makeMsgs("m", 100, 100, 40)...) // 100..4000
	c, _ := newTestCoordinator(t, store, Config{}, 4000)

	require.NoError(t, wait(t, c.LoadInitial(nil, nil)))
	require.Equal(t, message.Timestamp(4000), c.Snapshot().State.LastUpdated)

	store.Add(message.Message{ID: "new", ChannelURL: "ch-1", CreatedAt: 4500})
	require.NoError(t, wait(t, c.LoadPrevious(anchorAt(1100))))
	require.Equal(t, message.Timestamp(4000), c.Snapshot().State.LastUpdated)

	require.NoError(t, wait(t, c.SyncChangelog()))
	snap := c.Snapshot()
	require.True(t, slicesContains(snap.Messages, "new"))
	require.Equal(t, message.Timestamp(4500), snap.State.LastUpdated)
}

func TestForwardBatchesNeverOverlap(t *testing.T) {
	later := makeMsgs("n", 1300, 100, 14) // 1300..2600
	store := &stubStore{fetch: func(q remote.FetchQuery) ([]message.Message, error) {
		if q.Inclusive {
			return makeMsgs("a", 900, 100, 4), nil // 900..1200
		}
		return afterAnchor(later, q), nil
	}}
	c, events := newTestCoordinator(t, store, Config{PreviousResultSize: 4, NextResultSize: 4}, 1000)

	require.NoError(t, wait(t, c.LoadInitial(anchorAt(1000), nil)))
	for range 4 {
		require.NoError(t, wait(t, c.LoadNext()))
	}
	require.False(t, c.Snapshot().HasNext)

	batches := collectBatches(t, events, KindNextPage, 4)
	requireDisjoint(t, batches)
	sizes := make([]int, len(batches))
	for i, ids := range batches {
		sizes[i] = len(ids)
	}
	require.Equal(t, []int{4, 4, 4, 2}, sizes)
	require.Len(t, c.Snapshot().Messages, 18)
}
