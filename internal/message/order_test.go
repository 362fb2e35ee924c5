package message

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func msg(id string, ts int64) Message {
	return Message{ID: ID(id), CreatedAt: ts}
}

func TestSortBreaksTiesByID(t *testing.T) {
	msgs := []Message{msg("c", 20), msg("b", 10), msg("a", 20), msg("d", 5)}
	Sort(msgs)

	require.Equal(t, []ID{"d", "b", "a", "c"}, IDs(msgs))
	require.True(t, IsOrdered(msgs))
}

func TestIsOrdered(t *testing.T) {
	tests := []struct {
		name string
		msgs []Message
		want bool
	}{
		{"empty", nil, true},
		{"ascending", []Message{msg("a", 1), msg("b", 2)}, true},
		{"tie ordered by id", []Message{msg("a", 1), msg("b", 1)}, true},
		{"tie out of order", []Message{msg("b", 1), msg("a", 1)}, false},
		{"descending", []Message{msg("a", 2), msg("b", 1)}, false},
		{"duplicate id", []Message{msg("a", 1), msg("a", 2)}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, IsOrdered(tt.msgs))
		})
	}
}

func TestMergeDeduplicatesIncomingWins(t *testing.T) {
	base := []Message{msg("a", 1), msg("b", 2), msg("c", 3)}
	incoming := []Message{{ID: "b", CreatedAt: 2, Body: "edited"}, msg("d", 4), msg("c", 3)}

	got := Merge(base, incoming)

	require.Equal(t, []ID{"a", "b", "c", "d"}, IDs(got))
	require.Equal(t, "edited", got[1].Body)
	require.Len(t, base, 3, "base must not be modified")
}

func TestMergeEveryIDExactlyOnce(t *testing.T) {
	var base, incoming []Message
	for i := range 50 {
		base = append(base, msg(string(rune('A'+i%26))+string(rune('a'+i/26)), int64(i*3)))
	}
	for i := 25; i < 80; i++ {
		incoming = append(incoming, msg(string(rune('A'+i%26))+string(rune('a'+i/26)), int64(i*3)))
	}

	got := Merge(base, incoming)
	require.Len(t, got, 80)
	require.True(t, IsOrdered(got))
}

func TestReplaceKeepsPositions(t *testing.T) {
	msgs := []Message{msg("a", 1), msg("b", 2), msg("c", 3)}
	n := Replace(msgs, []Message{{ID: "b", CreatedAt: 2, Body: "x"}, {ID: "zz", CreatedAt: 9}})

	require.Equal(t, 1, n)
	require.Equal(t, []ID{"a", "b", "c"}, IDs(msgs))
	require.Equal(t, "x", msgs[1].Body)
}

func TestRemove(t *testing.T) {
	msgs := []Message{msg("a", 1), msg("b", 2), msg("c", 3)}
	got := Remove(msgs, []ID{"a", "c", "missing"})
	require.Equal(t, []ID{"b"}, IDs(got))
}

func TestCounts(t *testing.T) {
	msgs := []Message{msg("a", 900), msg("b", 1000), msg("c", 1100)}
	require.Equal(t, 2, CountAtOrBefore(msgs, 1000))
	require.Equal(t, 2, CountAtOrAfter(msgs, 1000))

	newest, ok := Newest(msgs)
	require.True(t, ok)
	require.Equal(t, Timestamp(1100), newest)

	_, ok = Newest(nil)
	require.False(t, ok)
}

func TestSendingStatusValid(t *testing.T) {
	require.True(t, StatusScheduled.Valid())
	require.False(t, SendingStatus("sent").Valid())
}
