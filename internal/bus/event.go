package bus

import "time"

// Event is one notification routed by Kind prefix, such as a message
// change in a channel or a window update from a sync coordinator.
type Event struct {
	// Kind is a dotted name like "sync.next_page" or
	// "channel.message_appended"; subscribers match on its prefix.
	Kind      string
	Timestamp time.Time
	// Payload is owned by the publisher's package, e.g. sync.Batch.
	Payload any
}
