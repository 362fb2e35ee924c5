package client

import (
	"context"

	"github.com/matheus3301/chansync/internal/api"
	"github.com/matheus3301/chansync/internal/message"
	"github.com/matheus3301/chansync/internal/remote"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
)

// ChannelStore is a remote.Store for one channel served by the daemon.
type ChannelStore struct {
	client *Client
	url    string
	limit  int
}

// Store returns a store view of channel url. changelogLimit caps each
// changelog page; zero uses the daemon's default.
func (c *Client) Store(url string, changelogLimit int) *ChannelStore {
	return &ChannelStore{client: c, url: url, limit: changelogLimit}
}

func (s *ChannelStore) FetchByTimestamp(ctx context.Context, q remote.FetchQuery) ([]message.Message, error) {
	msgs, _, err := s.FetchWithTail(ctx, q)
	return msgs, err
}

// FetchWithTail returns the page together with the channel tail the daemon
// read in the same transaction.
func (s *ChannelStore) FetchWithTail(ctx context.Context, q remote.FetchQuery) ([]message.Message, message.Timestamp, error) {
	resp, err := s.client.Message.FetchByTimestamp(ctx, &api.FetchByTimestampRequest{
		Channel:   s.url,
		Anchor:    q.Anchor,
		Previous:  q.Previous,
		Next:      q.Next,
		Inclusive: q.Inclusive,
	})
	if err != nil {
		return nil, 0, transportError("fetch by timestamp", err)
	}
	// A null list stays nil so the caller can tell it from an empty page.
	return resp.Messages, resp.LastMessageAt, nil
}

func (s *ChannelStore) FetchChangelog(ctx context.Context, since remote.ChangelogCursor) (*remote.Changelog, error) {
	resp, err := s.client.Message.FetchChangelog(ctx, &api.FetchChangelogRequest{
		Channel:   s.url,
		Token:     string(since.Token),
		Timestamp: since.Timestamp,
		Limit:     s.limit,
	})
	if err != nil {
		return nil, transportError("fetch changelog", err)
	}
	if resp.Changelog == nil {
		return nil, nil
	}
	return resp.Changelog.ToChangelog(), nil
}

// Watch subscribes to change notifications for the channel. Bursts are
// coalesced into a single pending signal. The returned channel is closed
// when the stream ends.
func (s *ChannelStore) Watch(ctx context.Context) (<-chan struct{}, error) {
	stream, err := s.client.Message.WatchChannel(ctx, &api.WatchChannelRequest{Channel: s.url})
	if err != nil {
		return nil, transportError("watch channel", err)
	}
	out := make(chan struct{}, 1)
	go func() {
		defer close(out)
		for {
			if _, err := stream.Recv(); err != nil {
				return
			}
			select {
			case out <- struct{}{}:
			default:
			}
		}
	}()
	return out, nil
}

func transportError(op string, err error) error {
	if st, ok := grpcstatus.FromError(err); ok && st.Code() == codes.Canceled {
		err = context.Canceled
	}
	return &remote.TransportError{Op: op, Err: err}
}

var (
	_ remote.Store       = (*ChannelStore)(nil)
	_ remote.TailFetcher = (*ChannelStore)(nil)
)
