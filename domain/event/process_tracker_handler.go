package event

import (
	"chat-relay/errors"
	"fmt"
	"log/slog"

	"github.com/dustin/go-humanize"
)

// ProcessTrackerHandler logs the resource samples of the relay process.
type ProcessTrackerHandler struct {
	log *slog.Logger
}

func NewProcessTrackerHandler(log *slog.Logger) *ProcessTrackerHandler {
	return &ProcessTrackerHandler{log: log}
}

func (h ProcessTrackerHandler) Handle(event Event) {
	switch event.Type {
	case ProcessStatsType:
		payload, ok := event.Payload.(ProcessStats)
		if !ok {
			h.log.Error(errors.ErrInvalidPayload.Error())
			return
		}
		h.log.Debug(fmt.Sprintf("[RELAY] | PID %d | STATUS %s | CPU %.2f%% | RSS %s | GOROUTINES %d",
			payload.PID, payload.Status, payload.CPUPercent, humanize.Bytes(payload.RSSBytes), payload.Goroutines))
	}
}
