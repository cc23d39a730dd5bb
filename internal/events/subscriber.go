package events

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
)

var (
	// ErrSubscriberFull is returned when a channel subscriber's buffer is full
	ErrSubscriberFull = errors.New("subscriber buffer full")
	// ErrSubscriberClosed is returned when sending to a closed subscriber
	ErrSubscriberClosed = errors.New("subscriber closed")
)

// ChannelSubscriber buffers events on a channel for a single reader (SSE streams)
type ChannelSubscriber struct {
	id     string
	ch     chan Event
	mu     sync.Mutex
	closed bool
}

// NewChannelSubscriber creates a subscriber with the given buffer size
func NewChannelSubscriber(buffer int) *ChannelSubscriber {
	if buffer <= 0 {
		buffer = 10
	}
	return &ChannelSubscriber{
		id: uuid.NewString(),
		ch: make(chan Event, buffer),
	}
}

// ID returns the subscriber identifier
func (s *ChannelSubscriber) ID() string {
	return s.id
}

// Events returns the receive side of the buffer
func (s *ChannelSubscriber) Events() <-chan Event {
	return s.ch
}

// Send enqueues without blocking. A full buffer closes the subscriber, so the
// reader drains what was buffered and then sees the channel end.
func (s *ChannelSubscriber) Send(_ context.Context, event Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrSubscriberClosed
	}

	select {
	case s.ch <- event:
		return nil
	default:
		s.closed = true
		close(s.ch)
		return ErrSubscriberFull
	}
}

// Close closes the channel. Safe to call more than once.
func (s *ChannelSubscriber) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	close(s.ch)
}
