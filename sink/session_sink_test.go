package sink

import (
	"chat-relay/domain/event"
	"chat-relay/errors"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSessionSink_Buffers_In_Order(t *testing.T) {
	req := require.New(t)
	s := NewSessionSink(2)

	req.NoError(s.Consume(context.Background(), event.MessageDeleted{ID: "m1"}))
	req.NoError(s.Consume(context.Background(), event.MessageDeleted{ID: "m2"}))

	req.Equal(event.MessageDeleted{ID: "m1"}, <-s.Events())
	req.Equal(event.MessageDeleted{ID: "m2"}, <-s.Events())
}

func TestSessionSink_Full_Buffer_Closes_Session_At_Once(t *testing.T) {
	req := require.New(t)
	s := NewSessionSink(1)
	req.NoError(s.Consume(context.Background(), event.MessageDeleted{ID: "m1"}))

	// Given nobody drains the buffer
	start := time.Now()
	err := s.Consume(context.Background(), event.MessageDeleted{ID: "m2"})

	// Then the overflow is reported without waiting
	req.ErrorIs(err, errors.ErrDelivery)
	req.Less(time.Since(start), 50*time.Millisecond)
	// And the session is closed so the transport drops it
	select {
	case <-s.Done():
	default:
		req.Fail("done should be closed")
	}
	req.ErrorIs(s.Consume(context.Background(), event.MessageDeleted{ID: "m3"}), errors.ErrSessionClosed)
}

func TestSessionSink_Closed(t *testing.T) {
	req := require.New(t)
	s := NewSessionSink(1)

	s.Close()
	s.Close()

	err := s.Consume(context.Background(), event.MessageDeleted{ID: "m1"})
	req.ErrorIs(err, errors.ErrSessionClosed)
	select {
	case <-s.Done():
	default:
		req.Fail("done should be closed")
	}
}

func TestSessionSink_Unbuffered_Never_Blocks(t *testing.T) {
	req := require.New(t)
	s := NewSessionSink(0)

	errChan := make(chan error, 1)
	go func() { errChan <- s.Consume(context.Background(), event.MessageDeleted{ID: "m1"}) }()

	select {
	case err := <-errChan:
		req.ErrorIs(err, errors.ErrDelivery)
	case <-time.After(time.Second):
		req.Fail("Consume should have returned")
	}
}
