package store

import "github.com/matheus3301/chansync/internal/message"

// ChannelInfo is a channel row.
type ChannelInfo struct {
	URL           string
	Name          string
	LastMessageAt message.Timestamp
	UpdatedAt     message.Timestamp
}

// OutboxEntry represents a message queued for delivery into a channel.
type OutboxEntry struct {
	ID           int64
	ClientMsgID  string
	ChannelURL   string
	SenderID     string
	Body         string
	Status       message.SendingStatus // pending, succeeded, failed
	ErrorMessage string
	ServerMsgID  string
}

const (
	changeUpdated = "updated"
	changeDeleted = "deleted"
)
