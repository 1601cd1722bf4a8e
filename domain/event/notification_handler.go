package event

import (
	"chat-relay/errors"
	"log/slog"
)

// NotificationHandler keeps track of push outcomes.
// Failures are expected steady-state behavior, so they are counted, not raised.
type NotificationHandler struct {
	log     *slog.Logger
	counter *Counter
}

func NewNotificationHandler(log *slog.Logger, counter *Counter) *NotificationHandler {
	return &NotificationHandler{log: log, counter: counter}
}

func (h *NotificationHandler) Handle(event Event) {
	switch event.Type {
	case NotificationSentType:
		payload, ok := event.Payload.(NotificationSent)
		if !ok {
			h.log.Error(errors.ErrInvalidPayload.Error())
			return
		}
		h.counter.Increment(NotificationSentType)
		h.log.Debug("push sent",
			"message_id", payload.MessageID,
			"tokens", payload.Tokens,
			"success", payload.SuccessCount,
			"failure", payload.FailureCount)
	case DispatchFailedType:
		payload, ok := event.Payload.(DispatchFailed)
		if !ok {
			h.log.Error(errors.ErrInvalidPayload.Error())
			return
		}
		h.counter.Increment(DispatchFailedType)
		h.log.Debug("push dispatch failed", "message_id", payload.MessageID, "reason", payload.Reason)
	case TokensInvalidatedType:
		payload, ok := event.Payload.(TokensInvalidated)
		if !ok {
			h.log.Error(errors.ErrInvalidPayload.Error())
			return
		}
		h.counter.Add(TokensInvalidatedType, uint64(payload.Cleared))
	}
}
