package client

import "sync"

// observers is an ordered set of callbacks. Removal is deterministic: a
// callback removed before a notification is delivered never sees it.
type observers[T any] struct {
	mu    sync.Mutex
	next  uint64
	order []uint64
	fns   map[uint64]func(T)
}

func (o *observers[T]) add(fn func(T)) func() {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.fns == nil {
		o.fns = make(map[uint64]func(T))
	}
	id := o.next
	o.next++
	o.fns[id] = fn
	o.order = append(o.order, id)

	var once sync.Once
	return func() {
		once.Do(func() { o.remove(id) })
	}
}

func (o *observers[T]) remove(id uint64) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if _, ok := o.fns[id]; !ok {
		return
	}
	delete(o.fns, id)
	for i, v := range o.order {
		if v == id {
			o.order = append(o.order[:i], o.order[i+1:]...)
			break
		}
	}
}

// notify calls, in registration order, every callback that is still
// registered when its turn comes. Each callback runs through call, and
// delivery stops as soon as call refuses one. A nil call runs callbacks
// directly.
func (o *observers[T]) notify(v T, call func(func()) bool) {
	o.mu.Lock()
	ids := append([]uint64(nil), o.order...)
	o.mu.Unlock()

	for _, id := range ids {
		o.mu.Lock()
		fn, ok := o.fns[id]
		o.mu.Unlock()
		if !ok {
			continue
		}
		if call == nil {
			fn(v)
			continue
		}
		if !call(func() { fn(v) }) {
			return
		}
	}
}

func (o *observers[T]) len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.order)
}
