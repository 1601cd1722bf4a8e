//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"chat-relay/domain/chat"
	"chat-relay/domain/event"
	"chat-relay/domain/push"
	"context"
	"reflect"
)

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

// Worker doesn't protect itself
// Can be silly, focused
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
// This is used for logging and supervision purposes during worker initialization
// or lifecycle events, avoiding the need for manual naming in the Worker interface.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

// EventSink delivers one domain event to one connected session.
type EventSink interface {
	Consume(ctx context.Context, e event.DomainEvent) error
}

// BroadcastReport summarizes one broadcast: one attempt per registered session.
type BroadcastReport struct {
	Attempted int
	Failed    int
}

type IRegistry interface {
	Register(sessionID chat.SessionID, sink EventSink)
	Unregister(sessionID chat.SessionID)
	Associate(sessionID chat.SessionID, userID string) error
	Broadcast(ctx context.Context, e event.DomainEvent) BroadcastReport
}

type IMessageRepository interface {
	Append(ctx context.Context, message chat.Message) (chat.Message, error)
	ListRecent(ctx context.Context, limit int) ([]chat.Message, error)
	DeleteByID(ctx context.Context, id string) (chat.Message, error)
}

type IUserRepository interface {
	Upsert(ctx context.Context, email, token, name string) (chat.User, error)
	ListUsers(ctx context.Context) ([]chat.User, error)
	ListTokenHolders(ctx context.Context) ([]chat.User, error)
	ClearTokens(ctx context.Context, tokens []string) (int, error)
}

type ITokenRegistry interface {
	Upsert(ctx context.Context, email, token, name string) (chat.User, error)
	FindRecipientsExcluding(ctx context.Context, email string) ([]string, error)
	InvalidateTokens(ctx context.Context, tokens []string) (int, error)
	Users(ctx context.Context) ([]chat.User, error)
}

// PushProvider sends one multicast request.
// Results must follow the order of the submitted tokens.
type PushProvider interface {
	SendMulticast(ctx context.Context, notification push.Notification) (push.MulticastResult, error)
}

// Notifier dispatches push notifications for a persisted message.
// Implementations contain their own failures.
type Notifier interface {
	Dispatch(ctx context.Context, message chat.Message)
	Enabled() bool
}

// ImageCleaner releases the external resource behind an image reference.
type ImageCleaner interface {
	Cleanup(ctx context.Context, imageURL string) error
}
