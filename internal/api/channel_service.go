package api

import (
	"context"

	"github.com/matheus3301/chansync/internal/store"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
)

// ChannelService implements the ChannelService gRPC service.
type ChannelService struct {
	db *store.DB
}

// NewChannelService creates a new channel service backed by the store.
func NewChannelService(db *store.DB) *ChannelService {
	return &ChannelService{db: db}
}

func (s *ChannelService) ListChannels(_ context.Context, req *ListChannelsRequest) (*ListChannelsResponse, error) {
	limit := 50
	if req.Limit > 0 {
		limit = req.Limit
	}

	// Fetch one extra row to learn whether another page exists.
	channels, err := s.db.ListChannels(limit+1, req.Offset)
	if err != nil {
		return nil, toStatus("list channels", err)
	}
	hasMore := len(channels) > limit
	if hasMore {
		channels = channels[:limit]
	}

	out := make([]Channel, 0, len(channels))
	for _, c := range channels {
		out = append(out, channelToWire(c))
	}
	return &ListChannelsResponse{Channels: out, HasMore: hasMore}, nil
}

func (s *ChannelService) GetChannel(_ context.Context, req *GetChannelRequest) (*GetChannelResponse, error) {
	c, err := s.db.GetChannel(req.URL)
	if err != nil {
		return nil, toStatus("get channel", err)
	}
	if c == nil {
		return nil, grpcstatus.Errorf(codes.NotFound, "channel %q not found", req.URL)
	}
	wire := channelToWire(*c)
	return &GetChannelResponse{Channel: &wire}, nil
}

func channelToWire(c store.ChannelInfo) Channel {
	return Channel{
		URL:           c.URL,
		Name:          c.Name,
		LastMessageAt: c.LastMessageAt,
	}
}

var _ ChannelServiceServer = (*ChannelService)(nil)
