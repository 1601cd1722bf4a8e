package event

import (
	"chat-relay/domain/chat"
	"time"
)

const (
	MessageEventName        = "message"
	MessageDeletedEventName = "messageDeleted"
)

// DomainEvent is broadcast to every connected session.
// Name is the logical event name clients subscribe to.
type DomainEvent interface {
	Name() string
}

type MessagePosted struct {
	Message chat.Message
}

func (m MessagePosted) Name() string { return MessageEventName }

type MessageDeleted struct {
	ID string
}

func (m MessageDeleted) Name() string { return MessageDeletedEventName }

// Type classifies telemetry events flowing to the TelemetryWorker.
type Type string

// Event is a technical event, never sent to clients.
type Event struct {
	Type      Type
	CreatedAt time.Time
	Payload   any
}

func New(t Type, payload any) Event {
	return Event{Type: t, CreatedAt: time.Now().UTC(), Payload: payload}
}
