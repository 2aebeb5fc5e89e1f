package client

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"liveroom/core"
)

const waitTimeout = 2 * time.Second

type emitted struct {
	event   string
	payload any
}

type fakeTransport struct {
	mu      sync.Mutex
	sink    Sink
	emits   []emitted
	closed  bool
	openErr error
}

func (f *fakeTransport) Open(sink Sink) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sink = sink
	return f.openErr
}

func (f *fakeTransport) Emit(event string, payload any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return ErrClosed
	}
	f.emits = append(f.emits, emitted{event: event, payload: payload})
	return nil
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeTransport) fire(event string, args ...any) {
	f.mu.Lock()
	sink := f.sink
	f.mu.Unlock()
	if sink != nil {
		sink(event, args...)
	}
}

func (f *fakeTransport) sent(event string) []any {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []any
	for _, e := range f.emits {
		if e.event == event {
			out = append(out, e.payload)
		}
	}
	return out
}

func (f *fakeTransport) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

type fakeDialer struct {
	ch chan *fakeTransport
}

func newFakeDialer() *fakeDialer {
	return &fakeDialer{ch: make(chan *fakeTransport, 16)}
}

func (d *fakeDialer) dial() (Transport, error) {
	t := &fakeTransport{}
	d.ch <- t
	return t, nil
}

func (d *fakeDialer) next(t *testing.T) *fakeTransport {
	t.Helper()
	select {
	case tr := <-d.ch:
		return tr
	case <-time.After(waitTimeout):
		t.Fatal("Timed out waiting for a dial")
		return nil
	}
}

func (d *fakeDialer) expectNoDial(t *testing.T, within time.Duration) {
	t.Helper()
	select {
	case <-d.ch:
		t.Fatal("Unexpected dial")
	case <-time.After(within):
	}
}

type fakeDirectory struct {
	count   int
	err     error
	release chan struct{}
}

func (d *fakeDirectory) ViewerCount(ctx context.Context, _ core.RoomID) (int, error) {
	if d.release != nil {
		select {
		case <-d.release:
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
	return d.count, d.err
}

func quietLogger() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

func testOptions(d *fakeDialer) Options {
	return Options{
		Dial:           d.dial,
		Logger:         quietLogger(),
		ConnectTimeout: -1,
		JoinTimeout:    -1,
		Now: func() time.Time {
			return time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
		},
	}
}

func testProfile() core.UserProfile {
	id := int64(7)
	return core.NewProfile(&id, "alice", "")
}

func collect[T any](subscribe func(func(T)) func()) (<-chan T, func()) {
	ch := make(chan T, 64)
	unsubscribe := subscribe(func(v T) { ch <- v })
	return ch, unsubscribe
}

func receive[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(waitTimeout):
		t.Fatal("Timed out waiting for a notification")
		var zero T
		return zero
	}
}

func expectNone[T any](t *testing.T, ch <-chan T, within time.Duration) {
	t.Helper()
	select {
	case v := <-ch:
		t.Fatalf("Unexpected notification %+v", v)
	case <-time.After(within):
	}
}

func waitState(t *testing.T, ch <-chan StateChange, to core.ConnectionState) StateChange {
	t.Helper()
	deadline := time.After(waitTimeout)
	for {
		select {
		case c := <-ch:
			if c.To == to {
				return c
			}
		case <-deadline:
			t.Fatalf("Timed out waiting for state %s", to)
			return StateChange{}
		}
	}
}

func presence(room string, count int) map[string]any {
	return map[string]any{"room_id": room, "user_count": float64(count)}
}
