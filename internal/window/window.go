package window

import (
	"slices"

	"github.com/matheus3301/chansync/internal/message"
)

// Window is the ordered, de-duplicated slice of a channel's history that
// the client currently holds. It is not safe for concurrent use; the sync
// coordinator owns it.
type Window struct {
	msgs []message.Message

	// HasPrevious means older messages exist beyond the first entry.
	HasPrevious bool
	// HasNext means newer messages exist beyond the last entry. It only
	// holds while the window is pinned to a starting point.
	HasNext bool
}

// New returns an empty window that assumes more history exists.
func New() *Window {
	return &Window{HasPrevious: true}
}

// Reset drops all messages and restores the flags for a new session.
func (w *Window) Reset(anchored bool) {
	w.msgs = nil
	w.HasPrevious = true
	w.HasNext = anchored
}

// Upsert merges batch into the window and returns how many IDs were new.
func (w *Window) Upsert(batch []message.Message) int {
	if len(batch) == 0 {
		return 0
	}
	before := len(w.msgs)
	w.msgs = message.Merge(w.msgs, batch)
	return len(w.msgs) - before
}

// Apply replaces updated entries in place and drops deleted ones. Updates
// for messages outside the window are ignored.
func (w *Window) Apply(updated []message.Message, deleted []message.ID) {
	message.Replace(w.msgs, updated)
	w.msgs = message.Remove(w.msgs, deleted)
}

// Messages returns a copy of the window contents.
func (w *Window) Messages() []message.Message {
	return slices.Clone(w.msgs)
}

// Len returns the number of messages held.
func (w *Window) Len() int {
	return len(w.msgs)
}

// Contains reports whether id is in the window.
func (w *Window) Contains(id message.ID) bool {
	return slices.ContainsFunc(w.msgs, func(m message.Message) bool { return m.ID == id })
}

// Oldest returns the first message's timestamp.
func (w *Window) Oldest() (message.Timestamp, bool) {
	if len(w.msgs) == 0 {
		return 0, false
	}
	return w.msgs[0].CreatedAt, true
}

// Newest returns the last message's timestamp.
func (w *Window) Newest() (message.Timestamp, bool) {
	if len(w.msgs) == 0 {
		return 0, false
	}
	return w.msgs[len(w.msgs)-1].CreatedAt, true
}
