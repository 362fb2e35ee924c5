package remote

import (
	"context"
	"errors"
	"fmt"

	"github.com/matheus3301/chansync/internal/message"
)

// Token is an opaque changelog cursor issued by the server.
type Token string

// ChangelogCursor selects where a changelog page starts. Token wins over
// Timestamp when both are set.
type ChangelogCursor struct {
	Token     Token
	Timestamp message.Timestamp
}

// String renders the cursor for logs.
func (c ChangelogCursor) String() string {
	if c.Token != "" {
		return "token:" + string(c.Token)
	}
	return fmt.Sprintf("ts:%d", c.Timestamp)
}

// FetchQuery asks for messages around an anchor.
type FetchQuery struct {
	Anchor    message.Timestamp
	Previous  int
	Next      int
	Inclusive bool
}

// Changelog is one page of mutations since a cursor.
type Changelog struct {
	Updated    []message.Message
	DeletedIDs []message.ID
	HasMore    bool
	NextToken  Token
}

// Store is the network-backed message store for a single channel.
//
// Implementations must return FetchByTimestamp results in ascending
// CreatedAt order and must be safe for concurrent use.
type Store interface {
	FetchByTimestamp(ctx context.Context, q FetchQuery) ([]message.Message, error)
	FetchChangelog(ctx context.Context, since ChangelogCursor) (*Changelog, error)
}

// TailFetcher is implemented by stores that can report the channel's newest
// message timestamp from the same read that served a fetch. A zero tail
// means the channel has no messages or the tail is unknown.
type TailFetcher interface {
	FetchWithTail(ctx context.Context, q FetchQuery) ([]message.Message, message.Timestamp, error)
}

// ErrEmptyResponse is returned when the server reports success without a payload.
var ErrEmptyResponse = errors.New("empty response")

// TransportError wraps a failure talking to the store.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// IsTransport reports whether err is or wraps a TransportError.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}
