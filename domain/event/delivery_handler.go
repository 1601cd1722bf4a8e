package event

import (
	"chat-relay/errors"
	"log/slog"
)

// DeliveryHandler counts per-session broadcast failures.
type DeliveryHandler struct {
	log     *slog.Logger
	counter *Counter
}

func NewDeliveryHandler(log *slog.Logger, counter *Counter) *DeliveryHandler {
	return &DeliveryHandler{log: log, counter: counter}
}

func (h *DeliveryHandler) Handle(event Event) {
	if event.Type != DeliveryFailedType {
		return
	}
	payload, ok := event.Payload.(DeliveryFailed)
	if !ok {
		h.log.Error(errors.ErrInvalidPayload.Error())
		return
	}
	h.counter.Increment(DeliveryFailedType)
	h.log.Debug("delivery failed", "session_id", payload.SessionID, "event", payload.EventName, "reason", payload.Reason)
}
