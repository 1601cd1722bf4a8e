package event

const (
	RestartedAfterPanicType Type = "WORKER_RESTARTED_AFTER_PANIC"
	ChannelCapacityType     Type = "CHANNEL_CAPACITY"
	DeliveryFailedType      Type = "DELIVERY_FAILED"
	NotificationSentType    Type = "NOTIFICATION_SENT"
	DispatchFailedType      Type = "DISPATCH_FAILED"
	TokensInvalidatedType   Type = "TOKENS_INVALIDATED"
	ProcessStatsType        Type = "PROCESS_STATS"
)

type WorkerRestartedAfterPanic struct {
	WorkerName string
}

type ChannelCapacity struct {
	ChannelName string
	Capacity    int
	Length      int
}

type DeliveryFailed struct {
	SessionID string
	EventName string
	Reason    string
}

type NotificationSent struct {
	MessageID    string
	Tokens       int
	SuccessCount int
	FailureCount int
}

type DispatchFailed struct {
	MessageID string
	Reason    string
}

type TokensInvalidated struct {
	MessageID string
	Requested int
	Cleared   int
}

// ProcessStats is a resource sample of the relay process itself.
type ProcessStats struct {
	PID        int32
	Status     string
	CPUPercent float64
	RSSBytes   uint64
	Goroutines int
}
