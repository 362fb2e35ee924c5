package api

import (
	"context"

	"google.golang.org/grpc"
)

const (
	MessageServiceName = "chansync.v1.MessageService"
	ChannelServiceName = "chansync.v1.ChannelService"
	SessionServiceName = "chansync.v1.SessionService"
)

// MessageServiceServer serves one channel store over gRPC.
type MessageServiceServer interface {
	FetchByTimestamp(context.Context, *FetchByTimestampRequest) (*FetchByTimestampResponse, error)
	FetchChangelog(context.Context, *FetchChangelogRequest) (*FetchChangelogResponse, error)
	AppendMessage(context.Context, *AppendMessageRequest) (*MessageResponse, error)
	UpdateMessage(context.Context, *UpdateMessageRequest) (*MessageResponse, error)
	DeleteMessage(context.Context, *DeleteMessageRequest) (*DeleteMessageResponse, error)
	QueueMessage(context.Context, *QueueMessageRequest) (*QueueMessageResponse, error)
	WatchChannel(*WatchChannelRequest, grpc.ServerStreamingServer[EventEnvelope]) error
}

type ChannelServiceServer interface {
	ListChannels(context.Context, *ListChannelsRequest) (*ListChannelsResponse, error)
	GetChannel(context.Context, *GetChannelRequest) (*GetChannelResponse, error)
}

type SessionServiceServer interface {
	GetStatus(context.Context, *GetStatusRequest) (*GetStatusResponse, error)
}

// unary builds a method descriptor that decodes Req and calls call on the
// registered server.
func unary[S any, Req any, Resp any](service, method string, call func(S, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(S), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod(service, method)}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(S), ctx, req.(*Req))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

func fullMethod(service, method string) string {
	return "/" + service + "/" + method
}

func watchChannelHandler(srv any, stream grpc.ServerStream) error {
	m := new(WatchChannelRequest)
	if err := stream.RecvMsg(m); err != nil {
		return err
	}
	return srv.(MessageServiceServer).WatchChannel(m, &grpc.GenericServerStream[WatchChannelRequest, EventEnvelope]{ServerStream: stream})
}

var MessageServiceDesc = grpc.ServiceDesc{
	ServiceName: MessageServiceName,
	HandlerType: (*MessageServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unary(MessageServiceName, "FetchByTimestamp", MessageServiceServer.FetchByTimestamp),
		unary(MessageServiceName, "FetchChangelog", MessageServiceServer.FetchChangelog),
		unary(MessageServiceName, "AppendMessage", MessageServiceServer.AppendMessage),
		unary(MessageServiceName, "UpdateMessage", MessageServiceServer.UpdateMessage),
		unary(MessageServiceName, "DeleteMessage", MessageServiceServer.DeleteMessage),
		unary(MessageServiceName, "QueueMessage", MessageServiceServer.QueueMessage),
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "WatchChannel",
			Handler:       watchChannelHandler,
			ServerStreams: true,
		},
	},
}

var ChannelServiceDesc = grpc.ServiceDesc{
	ServiceName: ChannelServiceName,
	HandlerType: (*ChannelServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unary(ChannelServiceName, "ListChannels", ChannelServiceServer.ListChannels),
		unary(ChannelServiceName, "GetChannel", ChannelServiceServer.GetChannel),
	},
}

var SessionServiceDesc = grpc.ServiceDesc{
	ServiceName: SessionServiceName,
	HandlerType: (*SessionServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unary(SessionServiceName, "GetStatus", SessionServiceServer.GetStatus),
	},
}

func RegisterMessageServiceServer(s grpc.ServiceRegistrar, srv MessageServiceServer) {
	s.RegisterService(&MessageServiceDesc, srv)
}

func RegisterChannelServiceServer(s grpc.ServiceRegistrar, srv ChannelServiceServer) {
	s.RegisterService(&ChannelServiceDesc, srv)
}

func RegisterSessionServiceServer(s grpc.ServiceRegistrar, srv SessionServiceServer) {
	s.RegisterService(&SessionServiceDesc, srv)
}
