package message

import (
	"cmp"
	"slices"
	"strings"
)

// Compare orders messages by CreatedAt, breaking ties by ID.
func Compare(a, b Message) int {
	if c := cmp.Compare(a.CreatedAt, b.CreatedAt); c != 0 {
		return c
	}
	return strings.Compare(string(a.ID), string(b.ID))
}

// Sort sorts msgs in place.
func Sort(msgs []Message) {
	slices.SortStableFunc(msgs, Compare)
}

// IsOrdered reports whether msgs is strictly ascending with no repeated ID.
func IsOrdered(msgs []Message) bool {
	seen := make(map[ID]struct{}, len(msgs))
	for i, m := range msgs {
		if _, dup := seen[m.ID]; dup {
			return false
		}
		seen[m.ID] = struct{}{}
		if i > 0 && Compare(msgs[i-1], m) >= 0 {
			return false
		}
	}
	return true
}

// Merge returns the ordered union of base and incoming. When both hold the
// same ID the incoming copy wins. Neither input is modified.
func Merge(base, incoming []Message) []Message {
	byID := make(map[ID]Message, len(base)+len(incoming))
	for _, m := range base {
		byID[m.ID] = m
	}
	for _, m := range incoming {
		byID[m.ID] = m
	}
	out := make([]Message, 0, len(byID))
	for _, m := range byID {
		out = append(out, m)
	}
	Sort(out)
	return out
}

// Normalize sorts and deduplicates a fetched batch. Later entries win.
func Normalize(msgs []Message) []Message {
	return Merge(nil, msgs)
}

// Replace swaps entries whose ID appears in updated, keeping positions.
// It reports how many entries were replaced.
func Replace(msgs []Message, updated []Message) int {
	if len(updated) == 0 {
		return 0
	}
	byID := make(map[ID]Message, len(updated))
	for _, m := range updated {
		byID[m.ID] = m
	}
	n := 0
	for i := range msgs {
		if u, ok := byID[msgs[i].ID]; ok {
			msgs[i] = u
			n++
		}
	}
	return n
}

// Remove returns msgs without the given IDs. The backing array is reused.
func Remove(msgs []Message, ids []ID) []Message {
	if len(ids) == 0 {
		return msgs
	}
	drop := make(map[ID]struct{}, len(ids))
	for _, id := range ids {
		drop[id] = struct{}{}
	}
	return slices.DeleteFunc(msgs, func(m Message) bool {
		_, ok := drop[m.ID]
		return ok
	})
}

// Newest returns the largest CreatedAt in msgs.
func Newest(msgs []Message) (Timestamp, bool) {
	if len(msgs) == 0 {
		return 0, false
	}
	newest := msgs[0].CreatedAt
	for _, m := range msgs[1:] {
		newest = max(newest, m.CreatedAt)
	}
	return newest, true
}

// CountAtOrBefore counts messages with CreatedAt <= ts.
func CountAtOrBefore(msgs []Message, ts Timestamp) int {
	n := 0
	for _, m := range msgs {
		if m.CreatedAt <= ts {
			n++
		}
	}
	return n
}

// CountAtOrAfter counts messages with CreatedAt >= ts.
func CountAtOrAfter(msgs []Message, ts Timestamp) int {
	n := 0
	for _, m := range msgs {
		if m.CreatedAt >= ts {
			n++
		}
	}
	return n
}

// IDs returns the IDs of msgs in order.
func IDs(msgs []Message) []ID {
	ids := make([]ID, len(msgs))
	for i, m := range msgs {
		ids[i] = m.ID
	}
	return ids
}
