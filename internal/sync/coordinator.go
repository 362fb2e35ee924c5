package sync

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/matheus3301/chansync/internal/bus"
	"github.com/matheus3301/chansync/internal/gate"
	"github.com/matheus3301/chansync/internal/message"
	"github.com/matheus3301/chansync/internal/remote"
	"github.com/matheus3301/chansync/internal/window"
	"go.uber.org/zap"
)

const closeGrace = time.Second

// State is the synchronization checkpoint of the current session.
type State struct {
	// LastUpdated only moves forward within a session.
	LastUpdated message.Timestamp
	// Token, once set, takes precedence over LastUpdated for changelog
	// requests.
	Token         remote.Token
	InitSucceeded bool
}

// Snapshot is a point-in-time copy of a coordinator's window.
type Snapshot struct {
	Messages    []message.Message
	HasPrevious bool
	HasNext     bool
	State       State
}

// Option customizes a Coordinator.
type Option func(*Coordinator)

// WithMetrics records engine activity on m.
func WithMetrics(m *Metrics) Option {
	return func(c *Coordinator) { c.metrics = m }
}

// WithClock overrides the wall clock used for "now" anchors.
func WithClock(now func() message.Timestamp) Option {
	return func(c *Coordinator) { c.now = now }
}

// WithChannel labels events, logs and metrics with the channel URL.
func WithChannel(url string) Option {
	return func(c *Coordinator) { c.channel = url }
}

// Coordinator drives paginated loading of one channel's message list.
// Each direction is guarded by its own gate: a call made while the same
// direction is in flight is dropped, not queued. Results are applied to
// the window and published on the bus in the order they are applied.
type Coordinator struct {
	store   remote.Store
	cache   *window.Cache
	bus     *bus.Bus
	events  *bus.Dispatcher
	logger  *zap.Logger
	metrics *Metrics
	cfg     Config
	locks   gate.Locks
	now     func() message.Timestamp
	channel string

	ctx           context.Context
	cancel        context.CancelFunc
	deliverCtx    context.Context
	cancelDeliver context.CancelFunc
	wg            sync.WaitGroup

	mu         sync.Mutex
	generation uint64
	closed     bool
	anchor     *message.Timestamp
	window     *window.Window
	state      State
	loading    int
}

// NewCoordinator creates a coordinator reading from store and publishing
// to b. A nil cache disables the live-tail cache.
func NewCoordinator(store remote.Store, cache *window.Cache, b *bus.Bus, logger *zap.Logger, cfg Config, opts ...Option) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cache == nil {
		cache = window.NewCache(0)
	}
	c := &Coordinator{
		store:  store,
		cache:  cache,
		bus:    b,
		events: bus.NewDispatcher(),
		cfg:    cfg.withDefaults(),
		locks:  gate.NewLocks(),
		now:    message.Now,
		window: window.New(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = logger.With(zap.String("channel", c.channel))
	c.ctx, c.cancel = context.WithCancel(context.Background())
	c.deliverCtx, c.cancelDeliver = context.WithCancel(context.Background())
	c.state.LastUpdated = c.now()
	return c
}

// LoadInitial starts a new session. With a nil anchor the window tracks
// the live tail; otherwise it is pinned around *anchor. When initial is
// non-empty it is applied as the first result without a fetch.
//
// Results of loads started before the reset are discarded.
func (c *Coordinator) LoadInitial(anchor *message.Timestamp, initial []message.Message) *Op {
	ticket, ok := c.locks.Initial.TryAcquire()
	if !ok {
		return c.drop("initial")
	}
	op := newOp()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		ticket.Release()
		op.finish(ErrStaleSession)
		return op
	}
	c.generation++
	gen := c.generation
	c.anchor = nil
	c.state = State{LastUpdated: c.now()}
	if anchor != nil {
		a := *anchor
		c.anchor = &a
		c.state.LastUpdated = a
	}
	c.window.Reset(anchor != nil)
	if anchor != nil {
		c.cache.Clear()
	} else {
		c.cache.LoadInitial()
	}
	c.startLoadingLocked()
	c.mu.Unlock()

	q := c.initialQuery(anchor)
	if len(initial) > 0 {
		c.applyInitial(gen, ticket, op, q, initial, 0, nil)
		return op
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		msgs, tail, err := c.fetch("initial", q)
		c.applyInitial(gen, ticket, op, q, msgs, tail, err)
	}()
	return op
}

func (c *Coordinator) initialQuery(anchor *message.Timestamp) remote.FetchQuery {
	if anchor == nil {
		return remote.FetchQuery{
			Anchor:    message.MaxTimestamp,
			Previous:  c.cfg.previousSize(),
			Inclusive: true,
		}
	}
	prev, next := c.cfg.splitSizes()
	return remote.FetchQuery{
		Anchor:    *anchor,
		Previous:  prev,
		Next:      next,
		Inclusive: true,
	}
}

func (c *Coordinator) applyInitial(gen uint64, ticket *gate.Ticket, op *Op, q remote.FetchQuery, msgs []message.Message, tail message.Timestamp, err error) {
	defer ticket.Release()
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.staleLocked(gen, op, "initial") {
		return
	}
	if err != nil {
		c.failLocked(op, "initial", err)
		return
	}

	msgs = message.Normalize(msgs)
	c.window.HasPrevious = message.CountAtOrBefore(msgs, q.Anchor) >= q.Previous
	if q.Next > 0 {
		c.window.HasNext = message.CountAtOrAfter(msgs, q.Anchor) >= q.Next
	}
	c.window.Upsert(msgs)
	if !c.window.HasNext {
		c.cache.LoadNext(msgs)
	}
	c.advanceLocked(msgs, tail, !c.window.HasNext)
	c.state.InitSucceeded = true

	c.publishLocked(KindInitial, c.batchLocked(msgs))
	c.finishLocked(op, nil)
}

// LoadPrevious fetches the page before *before, or before now when before
// is nil. It never moves LastUpdated.
func (c *Coordinator) LoadPrevious(before *message.Timestamp) *Op {
	ticket, ok := c.locks.Previous.TryAcquire()
	if !ok {
		return c.drop("previous")
	}
	op := newOp()

	c.mu.Lock()
	gen := c.generation
	anchor := c.now()
	if before != nil {
		anchor = *before
	}
	c.startLoadingLocked()
	c.mu.Unlock()

	q := remote.FetchQuery{Anchor: anchor, Previous: c.cfg.previousSize()}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer ticket.Release()
		msgs, _, err := c.fetch("previous", q)

		c.mu.Lock()
		defer c.mu.Unlock()
		if c.staleLocked(gen, op, "previous") {
			return
		}
		if err != nil {
			c.failLocked(op, "previous", err)
			return
		}
		msgs = message.Normalize(msgs)
		c.window.HasPrevious = len(msgs) >= q.Previous
		c.window.Upsert(msgs)
		c.publishLocked(KindPreviousPage, c.batchLocked(msgs))
		c.finishLocked(op, nil)
	}()
	return op
}

// LoadNext fetches the page after the session's last-updated timestamp.
func (c *Coordinator) LoadNext() *Op {
	ticket, ok := c.locks.Next.TryAcquire()
	if !ok {
		return c.drop("next")
	}
	op := newOp()

	c.mu.Lock()
	gen := c.generation
	q := remote.FetchQuery{Anchor: c.state.LastUpdated, Next: c.cfg.nextSize()}
	c.startLoadingLocked()
	c.mu.Unlock()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer ticket.Release()
		msgs, tail, err := c.fetch("next", q)

		c.mu.Lock()
		defer c.mu.Unlock()
		if c.staleLocked(gen, op, "next") {
			return
		}
		if err != nil {
			c.failLocked(op, "next", err)
			return
		}
		batch := c.applyForwardLocked(message.Normalize(msgs), tail, q.Next)
		c.publishLocked(KindNextPage, c.batchLocked(batch))
		c.finishLocked(op, nil)
	}()
	return op
}

// applyForwardLocked applies a forward page of the given requested size.
// A short page while pinned means the window caught up: HasNext turns
// false for the rest of the session and the cached tail is merged in, the
// merged result being returned instead. The cache only records pages seen
// while live.
func (c *Coordinator) applyForwardLocked(msgs []message.Message, tail message.Timestamp, size int) []message.Message {
	short := len(msgs) < size
	batch := msgs
	switch {
	case c.window.HasNext && short:
		c.window.HasNext = false
		batch = c.cache.Flush(msgs)
	case !c.window.HasNext:
		c.cache.LoadNext(msgs)
	}
	c.window.Upsert(batch)
	c.advanceLocked(batch, tail, short)
	return batch
}

// advanceLocked moves LastUpdated forward after a forward fetch. It
// follows the newest fetched message unless the window is live and the
// fetch reached the channel tail; then the tail read with the fetch is
// used, falling back to now.
func (c *Coordinator) advanceLocked(msgs []message.Message, tail message.Timestamp, reachedTail bool) {
	candidate, ok := message.Newest(msgs)
	if !c.window.HasNext && reachedTail {
		at := tail
		if at <= 0 {
			at = c.now()
		}
		candidate, ok = max(candidate, at), true
	}
	if ok && candidate > c.state.LastUpdated {
		c.state.LastUpdated = candidate
	}
}

// fetch runs q against the store. The returned tail is zero unless the
// store reports it from the same read.
func (c *Coordinator) fetch(direction string, q remote.FetchQuery) ([]message.Message, message.Timestamp, error) {
	var (
		msgs []message.Message
		tail message.Timestamp
		err  error
	)
	if tf, ok := c.store.(remote.TailFetcher); ok {
		msgs, tail, err = tf.FetchWithTail(c.ctx, q)
	} else {
		msgs, err = c.store.FetchByTimestamp(c.ctx, q)
	}
	if err == nil && msgs == nil {
		err = remote.ErrEmptyResponse
	}
	err = wrapTransport("fetch "+direction, err)
	c.metrics.observeFetch(direction, err)
	return msgs, tail, err
}

func wrapTransport(op string, err error) error {
	if err == nil || errors.Is(err, remote.ErrEmptyResponse) || remote.IsTransport(err) {
		return err
	}
	return &remote.TransportError{Op: op, Err: err}
}

func (c *Coordinator) drop(direction string) *Op {
	c.logger.Warn("load already in progress", zap.String("direction", direction))
	c.metrics.observeDropped(direction)
	return droppedOp()
}

// staleLocked finishes op with ErrStaleSession if the session changed
// since gen was captured.
func (c *Coordinator) staleLocked(gen uint64, op *Op, direction string) bool {
	if gen == c.generation && !c.closed {
		return false
	}
	c.logger.Debug("dropping stale result", zap.String("direction", direction))
	c.finishLocked(op, ErrStaleSession)
	return true
}

func (c *Coordinator) failLocked(op *Op, name string, err error) {
	kind := classify(err)
	c.logger.Error("load failed",
		zap.String("op", name),
		zap.String("kind", string(kind)),
		zap.Error(err))
	c.publishLocked(KindError, Failure{Channel: c.channel, Op: name, Kind: kind, Err: err})
	c.finishLocked(op, err)
}

func (c *Coordinator) finishLocked(op *Op, err error) {
	c.loading--
	if c.loading == 0 {
		c.publishLocked(KindLoading, Loading{Channel: c.channel, Loading: false})
	}
	c.metrics.observeWindow(c.channel, c.window.Len())
	op.finish(err)
}

func (c *Coordinator) startLoadingLocked() {
	c.loading++
	if c.loading == 1 {
		c.publishLocked(KindLoading, Loading{Channel: c.channel, Loading: true})
	}
}

func (c *Coordinator) batchLocked(msgs []message.Message) Batch {
	return Batch{
		Channel:     c.channel,
		Messages:    msgs,
		HasPrevious: c.window.HasPrevious,
		HasNext:     c.window.HasNext,
		IsLive:      !c.window.HasNext,
	}
}

// publishLocked queues evt for delivery. Queueing under c.mu keeps the
// delivery order identical to the order state changes were applied.
func (c *Coordinator) publishLocked(kind string, payload any) {
	if c.bus == nil {
		return
	}
	evt := bus.Event{Kind: kind, Timestamp: time.Now(), Payload: payload}
	c.events.Do(func() {
		if err := c.bus.Deliver(c.deliverCtx, evt); err != nil {
			c.logger.Debug("event not delivered", zap.String("kind", kind), zap.Error(err))
		}
	})
}

// Snapshot returns a copy of the window and the sync state.
func (c *Coordinator) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Snapshot{
		Messages:    c.window.Messages(),
		HasPrevious: c.window.HasPrevious,
		HasNext:     c.window.HasNext,
		State:       c.state,
	}
}

// CachedMessages returns the cached live tail for instant rendering.
func (c *Coordinator) CachedMessages() []message.Message {
	return c.cache.Messages()
}

// Loading reports whether any load is in flight.
func (c *Coordinator) Loading() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loading > 0
}

// Close cancels in-flight fetches, waits for them and delivers the events
// already queued. Subscribers that stop reading are abandoned after a
// short grace period.
func (c *Coordinator) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	c.cancel()
	c.wg.Wait()

	done := make(chan struct{})
	go func() {
		c.events.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(closeGrace):
		c.cancelDeliver()
		<-done
	}
	c.cancelDeliver()
}
