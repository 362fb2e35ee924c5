package outbox

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/matheus3301/chansync/internal/bus"
	"github.com/matheus3301/chansync/internal/message"
	"github.com/matheus3301/chansync/internal/store"
	"go.uber.org/zap"
)

const (
	// Kinds published once an outbox entry settles.
	KindSendAck    = "message.send_ack"
	KindSendFailed = "message.send_failed"

	// MaxBodyLen is the longest body, in runes, AcceptAll lets through.
	MaxBodyLen = 4000

	pollInterval = 500 * time.Millisecond
)

// Deliverer decides whether a queued message, already visible in its
// channel as pending, is delivered.
type Deliverer interface {
	Deliver(ctx context.Context, m message.Message) error
}

// DelivererFunc adapts a function to Deliverer.
type DelivererFunc func(ctx context.Context, m message.Message) error

func (f DelivererFunc) Deliver(ctx context.Context, m message.Message) error { return f(ctx, m) }

// AcceptAll delivers every non-empty message up to MaxBodyLen runes.
var AcceptAll = DelivererFunc(func(_ context.Context, m message.Message) error {
	if m.Body == "" {
		return errors.New("empty body")
	}
	if n := utf8.RuneCountInString(m.Body); n > MaxBodyLen {
		return fmt.Errorf("body too long: %d runes", n)
	}
	return nil
})

// Sender drains the outbox into channels.
type Sender struct {
	db        *store.DB
	deliverer Deliverer
	bus       *bus.Bus
	logger    *zap.Logger
	interval  time.Duration
	cancel    context.CancelFunc
	done      chan struct{}
}

// NewSender creates a new outbox sender. A nil deliverer means AcceptAll.
func NewSender(db *store.DB, deliverer Deliverer, b *bus.Bus, logger *zap.Logger) *Sender {
	if deliverer == nil {
		deliverer = AcceptAll
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sender{
		db:        db,
		deliverer: deliverer,
		bus:       b,
		logger:    logger,
		interval:  pollInterval,
	}
}

// Start begins polling the outbox for pending messages.
func (s *Sender) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	go s.loop(ctx)
}

// Stop stops the sender loop and waits for the current batch to finish.
func (s *Sender) Stop() {
	if s.cancel != nil {
		s.cancel()
		<-s.done
	}
}

func (s *Sender) loop(ctx context.Context) {
	defer close(s.done)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.ProcessPending(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// ProcessPending settles every pending entry once.
func (s *Sender) ProcessPending(ctx context.Context) {
	pending, err := s.db.PendingOutbox()
	if err != nil {
		s.logger.Error("failed to read outbox", zap.Error(err))
		return
	}
	for _, entry := range pending {
		if ctx.Err() != nil {
			return
		}
		s.process(ctx, entry)
	}
}

func (s *Sender) process(ctx context.Context, entry store.OutboxEntry) {
	log := s.logger.With(zap.String("client_msg_id", entry.ClientMsgID), zap.String("channel", entry.ChannelURL))

	// Optimistic insert: the message shows up in the channel as pending
	// before delivery settles.
	m, err := s.db.AppendMessage(entry.ChannelURL, entry.SenderID, entry.Body, message.StatusPending, 0)
	if err != nil {
		log.Error("failed to append message", zap.Error(err))
		s.fail(entry, err)
		return
	}
	store.PublishChange(s.bus, store.KindMessageAppended, m.ChannelURL, m.ID)

	status := message.StatusSucceeded
	deliverErr := s.deliverer.Deliver(ctx, *m)
	if deliverErr != nil {
		status = message.StatusFailed
	}
	if _, err := s.db.UpdateMessage(m.ChannelURL, m.ID, m.Body, status); err != nil {
		log.Error("failed to update sending status", zap.Error(err), zap.String("msg_id", string(m.ID)))
	} else {
		store.PublishChange(s.bus, store.KindMessageUpdated, m.ChannelURL, m.ID)
	}

	if deliverErr != nil {
		log.Warn("message not delivered", zap.Error(deliverErr))
		s.fail(entry, deliverErr)
		return
	}

	if err := s.db.MarkOutboxSent(entry.ClientMsgID, m.ID); err != nil {
		log.Error("failed to mark sent", zap.Error(err))
	}
	log.Info("message sent", zap.String("msg_id", string(m.ID)))
	s.publish(KindSendAck, map[string]string{
		"client_msg_id": entry.ClientMsgID,
		"msg_id":        string(m.ID),
	})
}

func (s *Sender) fail(entry store.OutboxEntry, cause error) {
	if err := s.db.MarkOutboxFailed(entry.ClientMsgID, cause.Error()); err != nil {
		s.logger.Error("failed to mark failed", zap.Error(err), zap.String("client_msg_id", entry.ClientMsgID))
	}
	s.publish(KindSendFailed, map[string]string{
		"client_msg_id": entry.ClientMsgID,
		"error":         cause.Error(),
	})
}

func (s *Sender) publish(kind string, payload map[string]string) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(bus.Event{Kind: kind, Timestamp: time.Now(), Payload: payload})
}
