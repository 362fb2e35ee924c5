package sync

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

const defaultRetryDelay = 200 * time.Millisecond

// Follower keeps a coordinator's window current by running a changelog
// sync whenever the channel reports a change. Notifications that arrive
// while a sync is running collapse into one trailing sync.
type Follower struct {
	coord      *Coordinator
	logger     *zap.Logger
	retryDelay time.Duration
	cancel     context.CancelFunc
	done       chan struct{}
}

// NewFollower creates a follower for c.
func NewFollower(c *Coordinator, logger *zap.Logger) *Follower {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Follower{
		coord:      c,
		logger:     logger,
		retryDelay: defaultRetryDelay,
	}
}

// Start consumes changes until ctx is done, Stop is called or changes is
// closed.
func (f *Follower) Start(ctx context.Context, changes <-chan struct{}) {
	ctx, f.cancel = context.WithCancel(ctx)
	f.done = make(chan struct{})

	go func() {
		defer close(f.done)
		var (
			running <-chan struct{}
			current *Op
			retry   <-chan time.Time
			pending bool
		)
		trigger := func() {
			current = f.coord.SyncChangelog()
			running = current.Done()
		}
		for {
			select {
			case _, ok := <-changes:
				if !ok {
					return
				}
				if running != nil || retry != nil {
					pending = true
					continue
				}
				trigger()
			case <-running:
				running = nil
				err := current.Err()
				switch {
				case errors.Is(err, ErrBusy):
					// A manual forward load holds the gate; try again shortly.
					retry = time.After(f.retryDelay)
				case err != nil && !errors.Is(err, ErrStaleSession):
					f.logger.Warn("changelog sync failed", zap.Error(err))
				}
				if retry == nil && pending {
					pending = false
					trigger()
				}
			case <-retry:
				retry = nil
				pending = false
				trigger()
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Done is closed when the follow loop has exited.
func (f *Follower) Done() <-chan struct{} {
	return f.done
}

// Stop stops following and waits for the loop to exit. A sync already
// started keeps running on the coordinator.
func (f *Follower) Stop() {
	if f.cancel != nil {
		f.cancel()
		<-f.done
	}
}
