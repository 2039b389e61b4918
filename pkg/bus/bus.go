package bus

import (
	"context"
	"errors"
	"sync/atomic"
)

// ErrBusClosed is returned when publishing to a closed MessageBus.
var ErrBusClosed = errors.New("message bus closed")

const defaultBuffer = 100

type MessageBus struct {
	inbound chan Event
	done    chan struct{}
	closed  atomic.Bool
}

func NewMessageBus() *MessageBus {
	return NewMessageBusSize(defaultBuffer)
}

func NewMessageBusSize(buffer int) *MessageBus {
	if buffer < 0 {
		buffer = 0
	}
	return &MessageBus{
		inbound: make(chan Event, buffer),
		done:    make(chan struct{}),
	}
}

// PublishInbound blocks while the buffer is full, until ctx ends or the bus closes.
func (mb *MessageBus) PublishInbound(ctx context.Context, ev Event) error {
	if mb.closed.Load() {
		return ErrBusClosed
	}
	select {
	case mb.inbound <- ev:
		return nil
	case <-mb.done:
		return ErrBusClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ConsumeInbound returns false once the bus is closed or ctx ends.
func (mb *MessageBus) ConsumeInbound(ctx context.Context) (Event, bool) {
	select {
	case ev, ok := <-mb.inbound:
		return ev, ok
	case <-mb.done:
		return Event{}, false
	case <-ctx.Done():
		return Event{}, false
	}
}

func (mb *MessageBus) Close() {
	if mb.closed.CompareAndSwap(false, true) {
		close(mb.done)
	}
}

func (mb *MessageBus) Closed() bool {
	return mb.closed.Load()
}
