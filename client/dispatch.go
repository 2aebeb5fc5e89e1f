package client

import (
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

// dispatcher delivers notifications on a single goroutine in the order they
// were posted. Once closed, queued notifications are discarded and no new
// callback starts. A callback already running is not interrupted, which
// lets callbacks close the handle that invoked them.
//
// Subscriber callbacks run through call. The gate makes the closed check
// and the start of a callback atomic with respect to close: close only
// returns once no call sits between the two.
type dispatcher struct {
	log *logrus.Entry

	mu     sync.Mutex
	queue  []func()
	closed atomic.Bool
	wake   chan struct{}
	done   chan struct{}

	gate    sync.RWMutex
	running atomic.Bool
}

func newDispatcher(log *logrus.Entry) *dispatcher {
	d := &dispatcher{
		log:  log,
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	go d.run()
	return d
}

func (d *dispatcher) post(fn func()) {
	d.mu.Lock()
	if d.closed.Load() {
		d.mu.Unlock()
		return
	}
	d.queue = append(d.queue, fn)
	d.mu.Unlock()
	d.signal()
}

// call runs fn unless the dispatcher is closed and reports whether it ran.
// A panicking fn is logged and counts as run.
func (d *dispatcher) call(fn func()) bool {
	d.gate.RLock()
	defer d.gate.RUnlock()
	d.running.Store(true)
	defer d.running.Store(false)

	if d.closed.Load() {
		return false
	}
	defer func() {
		if r := recover(); r != nil {
			d.log.WithField("panic", r).Error("Subscriber callback panicked")
		}
	}()
	fn()
	return true
}

func (d *dispatcher) signal() {
	select {
	case d.wake <- struct{}{}:
	default:
	}
}

func (d *dispatcher) run() {
	defer close(d.done)
	for {
		d.mu.Lock()
		for len(d.queue) == 0 && !d.closed.Load() {
			d.mu.Unlock()
			<-d.wake
			d.mu.Lock()
		}
		if d.closed.Load() {
			d.queue = nil
			d.mu.Unlock()
			return
		}
		fn := d.queue[0]
		d.queue[0] = nil
		d.queue = d.queue[1:]
		d.mu.Unlock()

		d.invoke(fn)
	}
}

func (d *dispatcher) invoke(fn func()) {
	if d.closed.Load() {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			d.log.WithField("panic", r).Error("Subscriber callback panicked")
		}
	}()
	fn()
}

func (d *dispatcher) close() {
	d.mu.Lock()
	if d.closed.Load() {
		d.mu.Unlock()
		return
	}
	d.closed.Store(true)
	d.queue = nil
	d.mu.Unlock()
	d.signal()

	// A running callback may be the caller. Otherwise wait out any call
	// that has taken the gate but not yet seen closed.
	if !d.running.Load() {
		d.gate.Lock()
		d.gate.Unlock() //nolint:staticcheck // empty critical section
	}
}
