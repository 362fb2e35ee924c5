package api

import (
	"github.com/matheus3301/chansync/internal/message"
	"github.com/matheus3301/chansync/internal/remote"
)

// Wire types for the chansync.v1 services. Slices that carry a result are
// always non-nil on the server side, so a null on the client means the
// payload was missing.

type FetchByTimestampRequest struct {
	Channel   string `json:"channel"`
	Anchor    int64  `json:"anchor"`
	Previous  int    `json:"previous"`
	Next      int    `json:"next"`
	Inclusive bool   `json:"inclusive"`
}

type FetchByTimestampResponse struct {
	Messages      []message.Message `json:"messages"`
	LastMessageAt int64             `json:"last_message_at"`
}

type FetchChangelogRequest struct {
	Channel   string `json:"channel"`
	Token     string `json:"token,omitempty"`
	Timestamp int64  `json:"timestamp,omitempty"`
	Limit     int    `json:"limit,omitempty"`
}

type ChangelogPage struct {
	Updated    []message.Message `json:"updated"`
	DeletedIDs []message.ID      `json:"deleted_ids"`
	HasMore    bool              `json:"has_more"`
	NextToken  string            `json:"next_token"`
}

type FetchChangelogResponse struct {
	Changelog *ChangelogPage `json:"changelog"`
}

type AppendMessageRequest struct {
	Channel   string                `json:"channel"`
	SenderID  string                `json:"sender_id"`
	Body      string                `json:"body"`
	Status    message.SendingStatus `json:"status,omitempty"`
	CreatedAt int64                 `json:"created_at,omitempty"`
}

type UpdateMessageRequest struct {
	Channel string                `json:"channel"`
	ID      message.ID            `json:"id"`
	Body    string                `json:"body"`
	Status  message.SendingStatus `json:"status,omitempty"`
}

type MessageResponse struct {
	Message *message.Message `json:"message"`
}

type DeleteMessageRequest struct {
	Channel string     `json:"channel"`
	ID      message.ID `json:"id"`
}

type DeleteMessageResponse struct{}

type QueueMessageRequest struct {
	Channel     string `json:"channel"`
	SenderID    string `json:"sender_id"`
	Body        string `json:"body"`
	ClientMsgID string `json:"client_msg_id,omitempty"`
}

type QueueMessageResponse struct {
	ClientMsgID string `json:"client_msg_id"`
	Accepted    bool   `json:"accepted"`
}

type WatchChannelRequest struct {
	// Channel filters events; empty means every channel.
	Channel string `json:"channel"`
}

// EventEnvelope is one change notification on the WatchChannel stream.
type EventEnvelope struct {
	EventID          string     `json:"event_id"`
	OccurredAtUnixMs int64      `json:"occurred_at_unix_ms"`
	Kind             string     `json:"kind"`
	Channel          string     `json:"channel"`
	MsgID            message.ID `json:"msg_id"`
}

type Channel struct {
	URL           string `json:"url"`
	Name          string `json:"name"`
	LastMessageAt int64  `json:"last_message_at"`
}

type ListChannelsRequest struct {
	Limit  int `json:"limit,omitempty"`
	Offset int `json:"offset,omitempty"`
}

type ListChannelsResponse struct {
	Channels []Channel `json:"channels"`
	HasMore  bool      `json:"has_more"`
}

type GetChannelRequest struct {
	URL string `json:"url"`
}

type GetChannelResponse struct {
	Channel *Channel `json:"channel"`
}

type GetStatusRequest struct{}

type GetStatusResponse struct {
	Session       string `json:"session"`
	Status        string `json:"status"`
	StatusMessage string `json:"status_message,omitempty"`
	UptimeMs      int64  `json:"uptime_ms"`
	SchemaVersion uint   `json:"schema_version"`
	ChannelCount  int    `json:"channel_count"`
}

// ToChangelog converts a wire page to the store contract.
func (p *ChangelogPage) ToChangelog() *remote.Changelog {
	return &remote.Changelog{
		Updated:    p.Updated,
		DeletedIDs: p.DeletedIDs,
		HasMore:    p.HasMore,
		NextToken:  remote.Token(p.NextToken),
	}
}

func changelogToWire(cl *remote.Changelog) *ChangelogPage {
	p := &ChangelogPage{
		Updated:    cl.Updated,
		DeletedIDs: cl.DeletedIDs,
		HasMore:    cl.HasMore,
		NextToken:  string(cl.NextToken),
	}
	if p.Updated == nil {
		p.Updated = []message.Message{}
	}
	if p.DeletedIDs == nil {
		p.DeletedIDs = []message.ID{}
	}
	return p
}
