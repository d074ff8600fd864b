package transport

import (
	"errors"
	"sync"
)

var (
	// ErrChannelFull is returned when the receiver has fallen behind.
	ErrChannelFull = errors.New("transport: channel full")
	// ErrChannelClosed is returned once the channel has been closed.
	ErrChannelClosed = errors.New("transport: channel closed")
)

// SendCh is a bounded queue with many senders and a single receiver. Sends
// never block: they either enqueue or fail immediately.
type SendCh[T any] struct {
	name   string
	mu     sync.RWMutex
	ch     chan T
	closed bool
}

// NewSendCh creates a channel holding at most capacity undelivered values.
func NewSendCh[T any](name string, capacity int) *SendCh[T] {
	if capacity <= 0 {
		capacity = 1
	}
	return &SendCh[T]{name: name, ch: make(chan T, capacity)}
}

// Name identifies the channel in logs.
func (c *SendCh[T]) Name() string { return c.name }

// TrySend enqueues v without blocking.
func (c *SendCh[T]) TrySend(v T) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrChannelClosed
	}
	select {
	case c.ch <- v:
		return nil
	default:
		return ErrChannelFull
	}
}

// Receiver exposes the receiving end. Only the consumer should read from it.
func (c *SendCh[T]) Receiver() <-chan T { return c.ch }

// Len reports the number of queued values.
func (c *SendCh[T]) Len() int { return len(c.ch) }

// Cap reports the channel capacity.
func (c *SendCh[T]) Cap() int { return cap(c.ch) }

// Close stops accepting values. Values already queued stay readable.
func (c *SendCh[T]) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.ch)
}
