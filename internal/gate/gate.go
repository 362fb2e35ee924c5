// Package gate provides try-lock gates with skip-if-busy semantics. A
// caller that cannot acquire a gate is not queued; it is expected to drop
// its request.
package gate

import (
	"sync"
	"sync/atomic"
)

// State is the state of a Gate.
type State int32

const (
	Idle State = iota
	InFlight
)

func (s State) String() string {
	if s == InFlight {
		return "in_flight"
	}
	return "idle"
}

// Gate admits at most one holder at a time.
type Gate struct {
	name  string
	state atomic.Int32
}

// New returns an idle gate.
func New(name string) *Gate {
	return &Gate{name: name}
}

// Name returns the gate's name.
func (g *Gate) Name() string {
	return g.name
}

// State returns the current state.
func (g *Gate) State() State {
	return State(g.state.Load())
}

// TryAcquire moves the gate from Idle to InFlight. It returns nil and false
// when the gate is already held.
func (g *Gate) TryAcquire() (*Ticket, bool) {
	if !g.state.CompareAndSwap(int32(Idle), int32(InFlight)) {
		return nil, false
	}
	return &Ticket{gate: g}, true
}

// Ticket is proof of holding a gate. Release is idempotent so it can be
// deferred and also called early on a success path.
type Ticket struct {
	gate *Gate
	once sync.Once
}

// Release returns the gate to Idle. Only the first call has an effect; it
// reports whether this call released the gate.
func (t *Ticket) Release() bool {
	if t == nil {
		return false
	}
	released := false
	t.once.Do(func() {
		released = t.gate.state.CompareAndSwap(int32(InFlight), int32(Idle))
	})
	return released
}

// Locks groups the three pagination gates of a channel session.
type Locks struct {
	Previous *Gate
	Next     *Gate
	Initial  *Gate
}

// NewLocks returns three idle gates.
func NewLocks() Locks {
	return Locks{
		Previous: New("previous"),
		Next:     New("next"),
		Initial:  New("initial"),
	}
}
