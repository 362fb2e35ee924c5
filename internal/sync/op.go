package sync

import (
	"context"
	"errors"
)

var (
	// ErrBusy is reported by an Op that was dropped because a load in the
	// same direction was already in flight.
	ErrBusy = errors.New("load already in progress")
	// ErrStaleSession is reported when a result arrived after the session
	// was reset or closed and was discarded.
	ErrStaleSession = errors.New("session was reset")
	// ErrChangelogOverflow is reported when reconciliation hit its page cap.
	ErrChangelogOverflow = errors.New("changelog page limit exceeded")
)

// Op is the handle of one asynchronous load.
type Op struct {
	done chan struct{}
	err  error
}

func newOp() *Op {
	return &Op{done: make(chan struct{})}
}

func droppedOp() *Op {
	op := newOp()
	op.finish(ErrBusy)
	return op
}

func (o *Op) finish(err error) {
	o.err = err
	close(o.done)
}

// Done is closed once the load has been applied or has failed.
func (o *Op) Done() <-chan struct{} {
	return o.done
}

// Wait blocks until the load completes or ctx is done.
func (o *Op) Wait(ctx context.Context) error {
	select {
	case <-o.done:
		return o.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Err returns the outcome. It is only meaningful after Done is closed.
func (o *Op) Err() error {
	select {
	case <-o.done:
		return o.err
	default:
		return nil
	}
}

// Dropped reports whether the call was skipped because its gate was busy.
func (o *Op) Dropped() bool {
	return errors.Is(o.Err(), ErrBusy)
}
