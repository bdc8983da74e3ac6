package websocket

import (
	"errors"
	"sync"
)

var (
	// ErrOutboxFull is returned when a connection is not draining its frames.
	ErrOutboxFull = errors.New("outbound queue full")
	// ErrOutboxClosed is returned after the connection has gone away.
	ErrOutboxClosed = errors.New("outbound queue closed")
)

// outbox is a bounded queue of encoded frames waiting for a connection's
// write pump.
type outbox struct {
	frames chan []byte
	mu     sync.Mutex
	closed bool
}

// newOutbox creates an outbox holding up to size frames.
//
// Postcondition: size falls back to 64 when not positive.
func newOutbox(size int) *outbox {
	if size <= 0 {
		size = 64
	}
	return &outbox{frames: make(chan []byte, size)}
}

// Push enqueues frame without blocking.
//
// Postcondition: Returns ErrOutboxClosed after Close, or ErrOutboxFull when
// the queue is at capacity.
func (o *outbox) Push(frame []byte) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return ErrOutboxClosed
	}
	select {
	case o.frames <- frame:
		return nil
	default:
		return ErrOutboxFull
	}
}

// Frames returns the channel the write pump drains.
func (o *outbox) Frames() <-chan []byte {
	return o.frames
}

// Close closes the frame channel. Safe to call more than once.
func (o *outbox) Close() {
	o.mu.Lock()
	defer o.mu.Unlock()

	if !o.closed {
		o.closed = true
		close(o.frames)
	}
}
