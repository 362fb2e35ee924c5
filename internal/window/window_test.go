package window

import (
	"fmt"
	"testing"

	"github.com/matheus3301/chansync/internal/message"
	"github.com/stretchr/testify/require"
)

func batch(from, to int) []message.Message {
	var out []message.Message
	for i := from; i <= to; i++ {
		out = append(out, message.Message{ID: message.ID(fmt.Sprintf("m%03d", i)), CreatedAt: int64(i) * 10})
	}
	return out
}

func TestWindowUpsertDeduplicates(t *testing.T) {
	w := New()
	require.Equal(t, 5, w.Upsert(batch(1, 5)))
	require.Equal(t, 2, w.Upsert(batch(4, 7)))
	require.Equal(t, 7, w.Len())
	require.True(t, message.IsOrdered(w.Messages()))

	oldest, _ := w.Oldest()
	newest, _ := w.Newest()
	require.Equal(t, int64(10), oldest)
	require.Equal(t, int64(70), newest)
}

func TestWindowApply(t *testing.T) {
	w := New()
	w.Upsert(batch(1, 3))
	w.Apply([]message.Message{{ID: "m002", CreatedAt: 20, Body: "edited"}, {ID: "m999", CreatedAt: 1}}, []message.ID{"m001"})

	got := w.Messages()
	require.Equal(t, []message.ID{"m002", "m003"}, message.IDs(got))
	require.Equal(t, "edited", got[0].Body)
	require.False(t, w.Contains("m999"), "updates outside the window are not inserted")
}

func TestWindowReset(t *testing.T) {
	w := New()
	w.Upsert(batch(1, 3))
	w.HasPrevious = false

	w.Reset(true)
	require.Zero(t, w.Len())
	require.True(t, w.HasPrevious)
	require.True(t, w.HasNext)

	w.Reset(false)
	require.False(t, w.HasNext)
}

func TestCacheEvictsOldest(t *testing.T) {
	c := NewCache(5)
	c.LoadNext(batch(1, 4))
	c.LoadNext(batch(3, 8))

	require.Equal(t, []message.ID{"m004", "m005", "m006", "m007", "m008"}, message.IDs(c.Messages()))
}

func TestCacheApplyChangelogNeverReorders(t *testing.T) {
	c := NewCache(10)
	c.LoadNext(batch(1, 4))
	c.ApplyChangelog([]message.Message{{ID: "m003", CreatedAt: 30, Body: "x"}}, []message.ID{"m002"})

	got := c.Messages()
	require.Equal(t, []message.ID{"m001", "m003", "m004"}, message.IDs(got))
	require.Equal(t, "x", got[1].Body)
}

func TestCacheFlushEveryIDOnce(t *testing.T) {
	c := NewCache(4)
	c.LoadNext(batch(1, 6))

	merged := c.Flush(batch(5, 9))

	require.Equal(t, []message.ID{"m003", "m004", "m005", "m006", "m007", "m008", "m009"}, message.IDs(merged))
	require.True(t, message.IsOrdered(merged))
	require.Equal(t, []message.ID{"m006", "m007", "m008", "m009"}, message.IDs(c.Messages()))
}

func TestCacheLoadInitialPrimes(t *testing.T) {
	c := NewCache(0)
	c.LoadNext(batch(1, 2))
	require.False(t, c.Primed())

	snap := c.LoadInitial()
	require.Len(t, snap, 2)
	require.True(t, c.Primed())

	c.Clear()
	require.False(t, c.Primed())
	require.Zero(t, c.Len())
}
