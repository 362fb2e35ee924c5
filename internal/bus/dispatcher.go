package bus

import "sync"

// Dispatcher runs queued functions one at a time, in submission order, on
// a single goroutine. Do never blocks the caller: the queue is unbounded.
type Dispatcher struct {
	mu     sync.Mutex
	queue  []func()
	wake   chan struct{}
	closed bool
	done   chan struct{}
}

// NewDispatcher starts the delivery goroutine.
func NewDispatcher() *Dispatcher {
	d := &Dispatcher{
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	go d.run()
	return d
}

// Do enqueues fn. It reports false if the dispatcher is closed.
func (d *Dispatcher) Do(fn func()) bool {
	if fn == nil {
		return true
	}
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return false
	}
	d.queue = append(d.queue, fn)
	select {
	case d.wake <- struct{}{}:
	default:
	}
	d.mu.Unlock()
	return true
}

// Close stops accepting work, runs what is already queued and waits for
// the goroutine to exit.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.wake)
	}
	d.mu.Unlock()
	<-d.done
}

// Flush blocks until everything queued before the call has run.
func (d *Dispatcher) Flush() {
	ch := make(chan struct{})
	if !d.Do(func() { close(ch) }) {
		return
	}
	<-ch
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for {
		_, open := <-d.wake
		for {
			d.mu.Lock()
			if len(d.queue) == 0 {
				d.mu.Unlock()
				break
			}
			fn := d.queue[0]
			d.queue[0] = nil
			d.queue = d.queue[1:]
			d.mu.Unlock()
			fn()
		}
		if !open {
			return
		}
	}
}
