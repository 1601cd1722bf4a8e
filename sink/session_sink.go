package sink

import (
	"chat-relay/contract"
	"chat-relay/domain/event"
	"chat-relay/errors"
	"context"
	"fmt"
	"sync"
)

var _ contract.EventSink = (*SessionSink)(nil)

// SessionSink buffers the events of one connected session.
// The transport write loop drains Events and owns the socket.
type SessionSink struct {
	events    chan event.DomainEvent
	done      chan struct{}
	closeOnce sync.Once
}

func NewSessionSink(bufferSize int) *SessionSink {
	return &SessionSink{
		events: make(chan event.DomainEvent, bufferSize),
		done:   make(chan struct{}),
	}
}

// Consume is called by the registry broadcast and never blocks.
// A full buffer means the client cannot keep up: the session is closed
// so the transport drops it, and the client recovers through history.
func (s *SessionSink) Consume(_ context.Context, e event.DomainEvent) error {
	select {
	case <-s.done:
		return errors.ErrSessionClosed
	default:
	}

	select {
	case s.events <- e:
		return nil
	default:
		s.Close()
		return fmt.Errorf("%w: session buffer full (%d events)", errors.ErrDelivery, cap(s.events))
	}
}

// Events is drained by the write loop of the session.
func (s *SessionSink) Events() <-chan event.DomainEvent {
	return s.events
}

// Done is closed once the session is closed.
func (s *SessionSink) Done() <-chan struct{} {
	return s.done
}

// Close is idempotent. Pending events are abandoned.
func (s *SessionSink) Close() {
	s.closeOnce.Do(func() { close(s.done) })
}
