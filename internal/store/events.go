package store

import (
	"time"

	"github.com/matheus3301/chansync/internal/bus"
	"github.com/matheus3301/chansync/internal/message"
)

// Bus event kinds for channel mutations. Subscribe to "channel." for all.
const (
	KindMessageAppended = "channel.message_appended"
	KindMessageUpdated  = "channel.message_updated"
	KindMessageDeleted  = "channel.message_deleted"
)

// ChannelChange is the payload of every channel mutation event.
type ChannelChange struct {
	ChannelURL string
	MsgID      message.ID
	At         message.Timestamp
}

// PublishChange announces a committed mutation. A nil bus is ignored.
func PublishChange(b *bus.Bus, kind, channelURL string, id message.ID) {
	if b == nil {
		return
	}
	now := time.Now()
	b.Publish(bus.Event{
		Kind:      kind,
		Timestamp: now,
		Payload:   ChannelChange{ChannelURL: channelURL, MsgID: id, At: now.UnixMilli()},
	})
}
