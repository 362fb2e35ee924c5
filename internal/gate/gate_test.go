package gate

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTryAcquireExclusive(t *testing.T) {
	g := New("next")

	ticket, ok := g.TryAcquire()
	require.True(t, ok)
	require.Equal(t, InFlight, g.State())

	_, ok = g.TryAcquire()
	require.False(t, ok, "second acquire must be dropped while in flight")

	require.True(t, ticket.Release())
	require.Equal(t, Idle, g.State())

	_, ok = g.TryAcquire()
	require.True(t, ok)
}

func TestReleaseExactlyOnce(t *testing.T) {
	g := New("previous")
	first, _ := g.TryAcquire()
	require.True(t, first.Release())

	second, ok := g.TryAcquire()
	require.True(t, ok)

	// A stale double release of the first ticket must not free the second holder.
	require.False(t, first.Release())
	require.Equal(t, InFlight, g.State())
	require.True(t, second.Release())
}

func TestNilTicketRelease(t *testing.T) {
	var tk *Ticket
	require.False(t, tk.Release())
}

func TestConcurrentAcquireSingleWinner(t *testing.T) {
	g := New("initial")
	var wins atomic.Int32
	var wg sync.WaitGroup
	start := make(chan struct{})

	for range 64 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if _, ok := g.TryAcquire(); ok {
				wins.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	require.EqualValues(t, 1, wins.Load())
}

func TestLocksIndependent(t *testing.T) {
	l := NewLocks()
	_, ok := l.Next.TryAcquire()
	require.True(t, ok)
	_, ok = l.Previous.TryAcquire()
	require.True(t, ok)
	_, ok = l.Initial.TryAcquire()
	require.True(t, ok)
	require.Equal(t, "next", l.Next.Name())
	require.Equal(t, "in_flight", l.Next.State().String())
}
