package remote

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/matheus3301/chansync/internal/message"
	"github.com/stretchr/testify/require"
)

func seeded(n int, step int64) *MemoryStore {
	s := NewMemoryStore(0)
	for i := 1; i <= n; i++ {
		s.Add(message.Message{ID: message.ID(fmt.Sprintf("m%03d", i)), CreatedAt: int64(i) * step})
	}
	return s
}

func TestMemoryFetchPreviousOnly(t *testing.T) {
	s := seeded(10, 100)

	got, err := s.FetchByTimestamp(context.Background(), FetchQuery{Anchor: 500, Previous: 3})
	require.NoError(t, err)
	require.Equal(t, []message.ID{"m002", "m003", "m004"}, message.IDs(got))
}

func TestMemoryFetchInclusiveBothSides(t *testing.T) {
	s := seeded(10, 100)

	got, err := s.FetchByTimestamp(context.Background(), FetchQuery{Anchor: 500, Previous: 2, Next: 2, Inclusive: true})
	require.NoError(t, err)
	// m005 sits on the anchor and qualifies for both sides but appears once.
	require.Equal(t, []message.ID{"m004", "m005", "m006"}, message.IDs(got))
	require.True(t, message.IsOrdered(got))
}

func TestMemoryFetchLatest(t *testing.T) {
	s := seeded(40, 10)

	got, err := s.FetchByTimestamp(context.Background(), FetchQuery{Anchor: message.MaxTimestamp, Previous: 30})
	require.NoError(t, err)
	require.Len(t, got, 30)
	require.Equal(t, message.ID("m040"), got[29].ID)
}

func TestMemoryFetchWithTailReportsSnapshotTail(t *testing.T) {
	s := seeded(10, 100)

	got, tail, err := s.FetchWithTail(context.Background(), FetchQuery{Anchor: 300, Previous: 2})
	require.NoError(t, err)
	require.Equal(t, []message.ID{"m001", "m002"}, message.IDs(got))
	require.Equal(t, int64(1000), tail)

	_, tail, err = NewMemoryStore(0).FetchWithTail(context.Background(), FetchQuery{Anchor: 300, Next: 2})
	require.NoError(t, err)
	require.Zero(t, tail)
}

func TestMemoryChangelogByTokenPages(t *testing.T) {
	s := NewMemoryStore(2)
	s.Add(
		message.Message{ID: "a", CreatedAt: 1},
		message.Message{ID: "b", CreatedAt: 2},
		message.Message{ID: "c", CreatedAt: 3},
	)
	require.NoError(t, s.Update(message.Message{ID: "a", CreatedAt: 1, Body: "a2"}, 10))
	require.NoError(t, s.Delete("b", 11))
	require.NoError(t, s.Update(message.Message{ID: "c", CreatedAt: 3, Body: "c2"}, 12))

	ctx := context.Background()
	page, err := s.FetchChangelog(ctx, ChangelogCursor{Timestamp: 5})
	require.NoError(t, err)
	require.True(t, page.HasMore)
	require.Equal(t, []message.ID{"a"}, message.IDs(page.Updated))
	require.Equal(t, []message.ID{"b"}, page.DeletedIDs)

	page, err = s.FetchChangelog(ctx, ChangelogCursor{Token: page.NextToken})
	require.NoError(t, err)
	require.False(t, page.HasMore)
	require.Equal(t, "c2", page.Updated[0].Body)

	empty, err := s.FetchChangelog(ctx, ChangelogCursor{Token: page.NextToken})
	require.NoError(t, err)
	require.False(t, empty.HasMore)
	require.Empty(t, empty.Updated)
	require.Equal(t, page.NextToken, empty.NextToken)
}

func TestMemoryChangelogCollapsesUpdateThenDelete(t *testing.T) {
	s := NewMemoryStore(0)
	s.Add(message.Message{ID: "a", CreatedAt: 1})
	require.NoError(t, s.Update(message.Message{ID: "a", CreatedAt: 1, Body: "x"}, 5))
	require.NoError(t, s.Delete("a", 6))

	page, err := s.FetchChangelog(context.Background(), ChangelogCursor{})
	require.NoError(t, err)
	require.Empty(t, page.Updated)
	require.Equal(t, []message.ID{"a"}, page.DeletedIDs)
}

func TestMemoryChangelogBadToken(t *testing.T) {
	_, err := NewMemoryStore(0).FetchChangelog(context.Background(), ChangelogCursor{Token: "nope"})
	require.Error(t, err)
}

func TestTransportErrorUnwraps(t *testing.T) {
	base := errors.New("connection reset")
	err := fmt.Errorf("load next: %w", &TransportError{Op: "fetch", Err: base})

	require.True(t, IsTransport(err))
	require.ErrorIs(t, err, base)
	require.False(t, IsTransport(base))
}
