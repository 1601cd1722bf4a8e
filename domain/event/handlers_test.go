package event

import (
	"log/slog"
	"testing"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

func TestNotificationHandler_Counts(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	counter := NewCounter()
	handler := NewNotificationHandler(log, counter)

	// When push outcomes are reported
	handler.Handle(New(NotificationSentType, NotificationSent{MessageID: "m1", Tokens: 2, SuccessCount: 1, FailureCount: 1}))
	handler.Handle(New(DispatchFailedType, DispatchFailed{MessageID: "m2", Reason: "timeout"}))
	handler.Handle(New(TokensInvalidatedType, TokensInvalidated{MessageID: "m1", Requested: 2, Cleared: 2}))

	// Then each outcome is tallied
	req.Equal(uint64(1), counter.Get(NotificationSentType))
	req.Equal(uint64(1), counter.Get(DispatchFailedType))
	req.Equal(uint64(2), counter.Get(TokensInvalidatedType))
}

func TestNotificationHandler_Invalid_Payload(t *testing.T) {
	req := require.New(t)
	counter := NewCounter()
	handler := NewNotificationHandler(slog.Default(), counter)

	handler.Handle(New(NotificationSentType, "not a payload"))

	req.Zero(counter.Get(NotificationSentType))
}

func TestDeliveryHandler_Ignores_Other_Types(t *testing.T) {
	req := require.New(t)
	counter := NewCounter()
	handler := NewDeliveryHandler(slog.Default(), counter)

	handler.Handle(New(NotificationSentType, NotificationSent{}))
	handler.Handle(New(DeliveryFailedType, DeliveryFailed{SessionID: "s1", EventName: MessageEventName}))

	req.Equal(map[Type]uint64{DeliveryFailedType: 1}, counter.Snapshot())
}

func TestWorkerRestartedAfterPanicHandler(t *testing.T) {
	req := require.New(t)
	counter := NewCounter()
	handler := NewWorkerRestartedAfterPanicHandler(slog.Default(), counter)

	handler.Handle(New(RestartedAfterPanicType, WorkerRestartedAfterPanic{WorkerName: "NotificationWorker"}))
	handler.Handle(New(RestartedAfterPanicType, WorkerRestartedAfterPanic{WorkerName: "NotificationWorker"}))

	req.Equal(uint64(2), counter.Get(RestartedAfterPanicType))
}
