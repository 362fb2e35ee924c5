package client

import (
	"fmt"

	"github.com/matheus3301/chansync/internal/api"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// Client wraps gRPC connections to the daemon.
type Client struct {
	conn    grpc.ClientConnInterface
	close   func() error
	Session *api.SessionServiceClient
	Channel *api.ChannelServiceClient
	Message *api.MessageServiceClient
	Health  healthpb.HealthClient
}

// New dials the daemon's Unix domain socket and returns typed service clients.
func New(socketPath string) (*Client, error) {
	conn, err := grpc.NewClient(
		"unix://"+socketPath,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		return nil, fmt.Errorf("dial daemon: %w", err)
	}
	c := NewFromConn(conn)
	c.close = conn.Close
	return c, nil
}

// NewFromConn builds a client on an existing connection. Close on the
// result does not close conn.
func NewFromConn(conn grpc.ClientConnInterface) *Client {
	return &Client{
		conn:    conn,
		Session: api.NewSessionServiceClient(conn),
		Channel: api.NewChannelServiceClient(conn),
		Message: api.NewMessageServiceClient(conn),
		Health:  healthpb.NewHealthClient(conn),
	}
}

// Close closes the gRPC connection.
func (c *Client) Close() error {
	if c.close == nil {
		return nil
	}
	return c.close()
}
