package workers

import (
	"chat-relay/contract"
	"chat-relay/domain/chat"
	"context"
	"log/slog"
)

// NotificationWorker drains the notification queue and dispatches one
// message at a time. Several workers can share the same queue.
type NotificationWorker struct {
	log      *slog.Logger
	queue    <-chan chat.Message
	notifier contract.Notifier
}

func NewNotificationWorker(log *slog.Logger, queue <-chan chat.Message, notifier contract.Notifier) *NotificationWorker {
	return &NotificationWorker{log: log, queue: queue, notifier: notifier}
}

func (w NotificationWorker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Context done, stopping notification dispatch")
			return nil
		case msg, ok := <-w.queue:
			if !ok {
				return nil
			}
			w.notifier.Dispatch(ctx, msg)
		}
	}
}
