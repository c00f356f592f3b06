// Package observer provides a small typed subscriber list used for the
// session's outward signals (open changed, service requested, register
// changed).
//
// Subscribers are invoked synchronously, in subscription order, outside the
// list's lock, so a subscriber may safely subscribe or unsubscribe from
// within its own callback.
package observer

import (
	"sort"
	"sync"
)

// ID identifies a subscription. The zero ID is never issued.
type ID uint64

// List is a set of subscribers for values of type T.
// The zero value is ready to use.
type List[T any] struct {
	mu     sync.RWMutex
	nextID ID
	subs   map[ID]func(T)
}

// Subscribe registers fn and returns its subscription ID.
// A nil fn is ignored and yields the zero ID.
func (l *List[T]) Subscribe(fn func(T)) ID {
	if fn == nil {
		return 0
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.subs == nil {
		l.subs = make(map[ID]func(T))
	}
	l.nextID++
	l.subs[l.nextID] = fn
	return l.nextID
}

// Unsubscribe removes the subscription. Removing an unknown or already
// removed ID is a no-op.
func (l *List[T]) Unsubscribe(id ID) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.subs, id)
}

// Len returns the number of active subscriptions.
func (l *List[T]) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.subs)
}

// Clear removes all subscriptions.
func (l *List[T]) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.subs = nil
}

// Emit delivers v to every subscriber.
func (l *List[T]) Emit(v T) {
	type sub struct {
		id ID
		fn func(T)
	}

	l.mu.RLock()
	subs := make([]sub, 0, len(l.subs))
	for id, fn := range l.subs {
		subs = append(subs, sub{id, fn})
	}
	l.mu.RUnlock()

	sort.Slice(subs, func(i, j int) bool { return subs[i].id < subs[j].id })
	for _, s := range subs {
		s.fn(v)
	}
}
