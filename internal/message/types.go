package message

import (
	"math"
	"time"
)

// ID is a server-assigned message identifier. It is stable once assigned.
type ID string

// Timestamp is a server timestamp in Unix milliseconds.
type Timestamp = int64

// MaxTimestamp stands for "latest" when used as an anchor.
const MaxTimestamp Timestamp = math.MaxInt64

// Now returns the current wall-clock time as a Timestamp.
func Now() Timestamp {
	return time.Now().UnixMilli()
}

// SendingStatus tracks the delivery state of a message.
type SendingStatus string

const (
	StatusNone      SendingStatus = "none"
	StatusPending   SendingStatus = "pending"
	StatusFailed    SendingStatus = "failed"
	StatusCanceled  SendingStatus = "canceled"
	StatusSucceeded SendingStatus = "succeeded"
	StatusScheduled SendingStatus = "scheduled"
)

// Valid reports whether s is a known status.
func (s SendingStatus) Valid() bool {
	switch s {
	case StatusNone, StatusPending, StatusFailed, StatusCanceled, StatusSucceeded, StatusScheduled:
		return true
	}
	return false
}

// Message is a channel message as seen by the sync engine.
type Message struct {
	ID            ID            `json:"id"`
	ChannelURL    string        `json:"channel_url"`
	SenderID      string        `json:"sender_id"`
	Body          string        `json:"body"`
	SendingStatus SendingStatus `json:"sending_status"`
	CreatedAt     Timestamp     `json:"created_at"`
	UpdatedAt     Timestamp     `json:"updated_at,omitempty"`
}
