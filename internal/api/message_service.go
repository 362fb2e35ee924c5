package api

import (
	"context"

	"github.com/google/uuid"
	"github.com/matheus3301/chansync/internal/bus"
	"github.com/matheus3301/chansync/internal/remote"
	"github.com/matheus3301/chansync/internal/session"
	"github.com/matheus3301/chansync/internal/store"
	"google.golang.org/grpc"
)

// MessageService implements the MessageService gRPC service.
type MessageService struct {
	db  *store.DB
	bus *bus.Bus
}

// NewMessageService creates a new message service backed by the store.
func NewMessageService(db *store.DB, b *bus.Bus) *MessageService {
	return &MessageService{db: db, bus: b}
}

func (s *MessageService) FetchByTimestamp(ctx context.Context, req *FetchByTimestampRequest) (*FetchByTimestampResponse, error) {
	if err := session.ValidateChannel(req.Channel); err != nil {
		return nil, invalid("%v", err)
	}
	if req.Previous < 0 || req.Next < 0 || req.Previous > MaxPageSize || req.Next > MaxPageSize {
		return nil, invalid("page sizes must be between 0 and %d", MaxPageSize)
	}

	q := remote.FetchQuery{
		Anchor:    req.Anchor,
		Previous:  req.Previous,
		Next:      req.Next,
		Inclusive: req.Inclusive,
	}
	msgs, tail, err := s.db.FetchWithTail(ctx, req.Channel, q)
	if err != nil {
		return nil, toStatus("fetch by timestamp", err)
	}
	return &FetchByTimestampResponse{Messages: msgs, LastMessageAt: tail}, nil
}

func (s *MessageService) FetchChangelog(ctx context.Context, req *FetchChangelogRequest) (*FetchChangelogResponse, error) {
	if err := session.ValidateChannel(req.Channel); err != nil {
		return nil, invalid("%v", err)
	}
	limit := req.Limit
	if limit <= 0 {
		limit = store.DefaultChangelogLimit
	}
	if limit > MaxPageSize {
		return nil, invalid("limit must be at most %d", MaxPageSize)
	}

	since := remote.ChangelogCursor{Token: remote.Token(req.Token), Timestamp: req.Timestamp}
	cl, err := s.db.FetchChangelog(ctx, req.Channel, since, limit)
	if err != nil {
		return nil, toStatus("fetch changelog", err)
	}
	return &FetchChangelogResponse{Changelog: changelogToWire(cl)}, nil
}

func (s *MessageService) AppendMessage(_ context.Context, req *AppendMessageRequest) (*MessageResponse, error) {
	if err := session.ValidateChannel(req.Channel); err != nil {
		return nil, invalid("%v", err)
	}
	if req.Body == "" {
		return nil, invalid("body is required")
	}
	m, err := s.db.AppendMessage(req.Channel, req.SenderID, req.Body, req.Status, req.CreatedAt)
	if err != nil {
		return nil, toStatus("append message", err)
	}
	store.PublishChange(s.bus, store.KindMessageAppended, m.ChannelURL, m.ID)
	return &MessageResponse{Message: m}, nil
}

func (s *MessageService) UpdateMessage(_ context.Context, req *UpdateMessageRequest) (*MessageResponse, error) {
	if err := session.ValidateChannel(req.Channel); err != nil {
		return nil, invalid("%v", err)
	}
	if req.ID == "" {
		return nil, invalid("id is required")
	}
	m, err := s.db.UpdateMessage(req.Channel, req.ID, req.Body, req.Status)
	if err != nil {
		return nil, toStatus("update message", err)
	}
	store.PublishChange(s.bus, store.KindMessageUpdated, m.ChannelURL, m.ID)
	return &MessageResponse{Message: m}, nil
}

func (s *MessageService) DeleteMessage(_ context.Context, req *DeleteMessageRequest) (*DeleteMessageResponse, error) {
	if err := session.ValidateChannel(req.Channel); err != nil {
		return nil, invalid("%v", err)
	}
	if req.ID == "" {
		return nil, invalid("id is required")
	}
	if err := s.db.DeleteMessage(req.Channel, req.ID); err != nil {
		return nil, toStatus("delete message", err)
	}
	store.PublishChange(s.bus, store.KindMessageDeleted, req.Channel, req.ID)
	return &DeleteMessageResponse{}, nil
}

// QueueMessage hands a message to the outbox. The sender inserts it into
// the channel as pending and settles it asynchronously.
func (s *MessageService) QueueMessage(_ context.Context, req *QueueMessageRequest) (*QueueMessageResponse, error) {
	if err := session.ValidateChannel(req.Channel); err != nil {
		return nil, invalid("%v", err)
	}
	if req.Body == "" {
		return nil, invalid("body is required")
	}
	clientID := req.ClientMsgID
	if clientID == "" {
		clientID = uuid.New().String()
	}
	if err := s.db.QueueOutbox(clientID, req.Channel, req.SenderID, req.Body); err != nil {
		return nil, toStatus("queue outbox", err)
	}
	return &QueueMessageResponse{ClientMsgID: clientID, Accepted: true}, nil
}

// WatchChannel streams a notification for every mutation of the channel.
// Notifications carry no message content; clients pull the changelog.
// A slow watcher may miss notifications, never changes.
func (s *MessageService) WatchChannel(req *WatchChannelRequest, stream grpc.ServerStreamingServer[EventEnvelope]) error {
	if req.Channel != "" {
		if err := session.ValidateChannel(req.Channel); err != nil {
			return invalid("%v", err)
		}
	}
	ch, unsub := s.bus.Subscribe("channel.", 64)
	defer unsub()

	for {
		select {
		case evt := <-ch:
			change, ok := evt.Payload.(store.ChannelChange)
			if !ok || (req.Channel != "" && change.ChannelURL != req.Channel) {
				continue
			}
			if err := stream.Send(&EventEnvelope{
				EventID:          uuid.New().String(),
				OccurredAtUnixMs: evt.Timestamp.UnixMilli(),
				Kind:             evt.Kind,
				Channel:          change.ChannelURL,
				MsgID:            change.MsgID,
			}); err != nil {
				return err
			}
		case <-stream.Context().Done():
			return nil
		}
	}
}

var _ MessageServiceServer = (*MessageService)(nil)
