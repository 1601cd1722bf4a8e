package workers

import (
	"chat-relay/domain/event"
	"context"
	"log/slog"
	"reflect"
	"time"
)

type NamedChannel struct {
	Name    string
	Channel any
}

// ChannelCapacityWorker periodically samples the length of the relay queues
// (notification queue, telemetry channel) against their capacity.
// Reading len and cap never blocks, and a lost sample is replaced by the next one.
type ChannelCapacityWorker struct {
	log            *slog.Logger
	channels       []NamedChannel
	telemetryChan  chan event.Event
	metricInterval time.Duration
}

func NewChannelCapacityWorker(log *slog.Logger,
	channels []NamedChannel, telemetryChan chan event.Event,
	metricInterval time.Duration) *ChannelCapacityWorker {
	return &ChannelCapacityWorker{
		log: log, channels: channels,
		telemetryChan:  telemetryChan,
		metricInterval: metricInterval,
	}
}

func (w ChannelCapacityWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.metricInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Context done, stopping capacity sampling")
			return nil
		case <-ticker.C:
			for _, nc := range w.channels {
				capacity, length, ok := sample(nc.Channel)
				if !ok {
					w.log.Error("Provided object is not a channel", "name", nc.Name)
					continue
				}
				select {
				case w.telemetryChan <- toCapacityEvent(nc.Name, capacity, length):
				default:
					w.log.Debug("Observability telemetry event lost")
				}
			}
		}
	}
}

func sample(channel any) (capacity, length int, ok bool) {
	v := reflect.ValueOf(channel)
	if v.Kind() != reflect.Chan {
		return 0, 0, false
	}
	return v.Cap(), v.Len(), true
}

func toCapacityEvent(name string, capacity, length int) event.Event {
	return event.New(event.ChannelCapacityType, event.ChannelCapacity{
		ChannelName: name,
		Capacity:    capacity,
		Length:      length,
	})
}
