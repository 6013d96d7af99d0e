// Package eventbus provides a small in-process publish/subscribe bus
// used to fan dispatch events out to notification feeds and metrics
// collectors without coupling producers to consumers.
package eventbus

import "sync"

const defaultBuffer = 16

// Bus is a type-safe publish/subscribe bus for events of type T.
// Delivery is non-blocking: a subscriber that falls behind loses
// events rather than stalling the publisher.
type Bus[T any] struct {
	mu     sync.RWMutex
	subs   []chan T
	buffer int
	closed bool
}

// New creates a Bus with the default subscriber buffer.
func New[T any]() *Bus[T] { return &Bus[T]{buffer: defaultBuffer} }

// NewBuffered creates a Bus whose subscriber channels hold up to n
// events. n below 1 falls back to the default.
func NewBuffered[T any](n int) *Bus[T] {
	if n < 1 {
		n = defaultBuffer
	}
	return &Bus[T]{buffer: n}
}

// Publish sends the event to all subscribers.
func (b *Bus[T]) Publish(e T) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
		}
	}
}

// Subscribe registers a subscriber and returns its channel.
func (b *Bus[T]) Subscribe() <-chan T {
	ch := make(chan T, b.buffer)
	b.mu.Lock()
	if b.closed {
		close(ch)
	} else {
		b.subs = append(b.subs, ch)
	}
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes the subscriber and closes its channel.
func (b *Bus[T]) Unsubscribe(sub <-chan T) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, ch := range b.subs {
		if ch == sub {
			b.subs = append(b.subs[:i], b.subs[i+1:]...)
			if !b.closed {
				close(ch)
			}
			return
		}
	}
}

// Close closes the bus and all subscriber channels.
func (b *Bus[T]) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	for _, ch := range b.subs {
		close(ch)
	}
	b.subs = nil
	b.mu.Unlock()
}
