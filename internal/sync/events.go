package sync

import (
	"errors"

	"github.com/matheus3301/chansync/internal/message"
	"github.com/matheus3301/chansync/internal/remote"
)

// Event kinds published on the bus. Subscribe to "sync." for all of them.
const (
	KindInitial          = "sync.initial"
	KindPreviousPage     = "sync.previous_page"
	KindNextPage         = "sync.next_page"
	KindChangelogAdded   = "sync.changelog_added"
	KindChangelogUpdated = "sync.changelog_updated"
	KindChangelogDeleted = "sync.changelog_deleted"
	KindError            = "sync.error"
	KindLoading          = "sync.loading"
)

// Batch is the payload of every message-carrying event.
type Batch struct {
	Channel     string
	Messages    []message.Message
	HasPrevious bool
	HasNext     bool
	// IsLive is set when the window reached the channel's live tail with
	// this batch.
	IsLive bool
}

// Deleted is the payload of KindChangelogDeleted.
type Deleted struct {
	Channel string
	IDs     []message.ID
}

// Loading is the payload of KindLoading.
type Loading struct {
	Channel string
	Loading bool
}

// ErrorKind classifies a failed load.
type ErrorKind string

const (
	ErrorTransport         ErrorKind = "transport"
	ErrorEmptyResponse     ErrorKind = "empty_response"
	ErrorChangelogOverflow ErrorKind = "changelog_overflow"
)

// Failure is the payload of KindError.
type Failure struct {
	Channel string
	Op      string
	Kind    ErrorKind
	Err     error
}

func classify(err error) ErrorKind {
	switch {
	case errors.Is(err, remote.ErrEmptyResponse):
		return ErrorEmptyResponse
	case errors.Is(err, ErrChangelogOverflow):
		return ErrorChangelogOverflow
	}
	return ErrorTransport
}
