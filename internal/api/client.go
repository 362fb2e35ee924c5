package api

import (
	"context"

	"google.golang.org/grpc"
)

// MessageServiceClient is the client side of MessageService.
type MessageServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewMessageServiceClient(cc grpc.ClientConnInterface) *MessageServiceClient {
	return &MessageServiceClient{cc: cc}
}

func invoke[Resp any](ctx context.Context, cc grpc.ClientConnInterface, service, method string, req any, opts []grpc.CallOption) (*Resp, error) {
	out := new(Resp)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	if err := cc.Invoke(ctx, fullMethod(service, method), req, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *MessageServiceClient) FetchByTimestamp(ctx context.Context, in *FetchByTimestampRequest, opts ...grpc.CallOption) (*FetchByTimestampResponse, error) {
	return invoke[FetchByTimestampResponse](ctx, c.cc, MessageServiceName, "FetchByTimestamp", in, opts)
}

func (c *MessageServiceClient) FetchChangelog(ctx context.Context, in *FetchChangelogRequest, opts ...grpc.CallOption) (*FetchChangelogResponse, error) {
	return invoke[FetchChangelogResponse](ctx, c.cc, MessageServiceName, "FetchChangelog", in, opts)
}

func (c *MessageServiceClient) AppendMessage(ctx context.Context, in *AppendMessageRequest, opts ...grpc.CallOption) (*MessageResponse, error) {
	return invoke[MessageResponse](ctx, c.cc, MessageServiceName, "AppendMessage", in, opts)
}

func (c *MessageServiceClient) UpdateMessage(ctx context.Context, in *UpdateMessageRequest, opts ...grpc.CallOption) (*MessageResponse, error) {
	return invoke[MessageResponse](ctx, c.cc, MessageServiceName, "UpdateMessage", in, opts)
}

func (c *MessageServiceClient) DeleteMessage(ctx context.Context, in *DeleteMessageRequest, opts ...grpc.CallOption) (*DeleteMessageResponse, error) {
	return invoke[DeleteMessageResponse](ctx, c.cc, MessageServiceName, "DeleteMessage", in, opts)
}

func (c *MessageServiceClient) QueueMessage(ctx context.Context, in *QueueMessageRequest, opts ...grpc.CallOption) (*QueueMessageResponse, error) {
	return invoke[QueueMessageResponse](ctx, c.cc, MessageServiceName, "QueueMessage", in, opts)
}

// WatchChannel opens the change stream for one channel.
func (c *MessageServiceClient) WatchChannel(ctx context.Context, in *WatchChannelRequest, opts ...grpc.CallOption) (grpc.ServerStreamingClient[EventEnvelope], error) {
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	stream, err := c.cc.NewStream(ctx, &MessageServiceDesc.Streams[0], fullMethod(MessageServiceName, "WatchChannel"), opts...)
	if err != nil {
		return nil, err
	}
	x := &grpc.GenericClientStream[WatchChannelRequest, EventEnvelope]{ClientStream: stream}
	if err := x.SendMsg(in); err != nil {
		return nil, err
	}
	if err := x.CloseSend(); err != nil {
		return nil, err
	}
	return x, nil
}

type ChannelServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewChannelServiceClient(cc grpc.ClientConnInterface) *ChannelServiceClient {
	return &ChannelServiceClient{cc: cc}
}

func (c *ChannelServiceClient) ListChannels(ctx context.Context, in *ListChannelsRequest, opts ...grpc.CallOption) (*ListChannelsResponse, error) {
	return invoke[ListChannelsResponse](ctx, c.cc, ChannelServiceName, "ListChannels", in, opts)
}

func (c *ChannelServiceClient) GetChannel(ctx context.Context, in *GetChannelRequest, opts ...grpc.CallOption) (*GetChannelResponse, error) {
	return invoke[GetChannelResponse](ctx, c.cc, ChannelServiceName, "GetChannel", in, opts)
}

type SessionServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewSessionServiceClient(cc grpc.ClientConnInterface) *SessionServiceClient {
	return &SessionServiceClient{cc: cc}
}

func (c *SessionServiceClient) GetStatus(ctx context.Context, in *GetStatusRequest, opts ...grpc.CallOption) (*GetStatusResponse, error) {
	return invoke[GetStatusResponse](ctx, c.cc, SessionServiceName, "GetStatus", in, opts)
}
