// Package notify fans state snapshots out to subscribers that only care
// about the newest value.
package notify

import "sync"

// Latest delivers snapshots to subscribers through channels of capacity one.
// A slow subscriber sees only the most recent snapshot; Publish never blocks.
type Latest[T any] struct {
	mu     sync.Mutex
	subs   map[int]chan T
	next   int
	closed bool
}

// NewLatest creates an empty fan-out
func NewLatest[T any]() *Latest[T] {
	return &Latest[T]{subs: make(map[int]chan T)}
}

// Subscribe registers a subscriber primed with initial. The returned cancel
// func closes the channel and is safe to call more than once.
func (l *Latest[T]) Subscribe(initial T) (<-chan T, func()) {
	l.mu.Lock()
	defer l.mu.Unlock()

	ch := make(chan T, 1)
	if l.closed {
		close(ch)
		return ch, func() {}
	}

	id := l.next
	l.next++
	l.subs[id] = ch
	ch <- initial

	return ch, func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		if sub, ok := l.subs[id]; ok {
			delete(l.subs, id)
			close(sub)
		}
	}
}

// Publish replaces any unread snapshot of every subscriber with v
func (l *Latest[T]) Publish(v T) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, ch := range l.subs {
		select {
		case <-ch:
		default:
		}
		// Only Publish sends, under the lock, so the buffer is free now
		ch <- v
	}
}

// Len returns the number of live subscribers
func (l *Latest[T]) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.subs)
}

// Close closes every subscriber channel. Later subscriptions get a closed channel.
func (l *Latest[T]) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return
	}
	l.closed = true
	for id, ch := range l.subs {
		delete(l.subs, id)
		close(ch)
	}
}
