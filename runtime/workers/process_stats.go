package workers

import (
	"chat-relay/domain/event"
	"context"
	"log/slog"
	"os"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/process"
)

// ProcessStatsWorker samples CPU, memory and status of the relay process
// every metricInterval and reports them as telemetry.
type ProcessStatsWorker struct {
	log            *slog.Logger
	telemetryChan  chan event.Event
	metricInterval time.Duration
}

func NewProcessStatsWorker(log *slog.Logger, telemetryChan chan event.Event, metricInterval time.Duration) *ProcessStatsWorker {
	return &ProcessStatsWorker{log: log, telemetryChan: telemetryChan, metricInterval: metricInterval}
}

func (w *ProcessStatsWorker) Run(ctx context.Context) error {
	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return err
	}
	ticker := time.NewTicker(w.metricInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Context done, stopping process sampling")
			return nil
		case <-ticker.C:
			stats, err := selfStats(p)
			if err != nil {
				w.log.Error("Failed to collect self stats", "error", err)
				continue
			}
			select {
			case w.telemetryChan <- event.New(event.ProcessStatsType, stats):
			default:
				w.log.Debug("Observability telemetry event lost")
			}
		}
	}
}

func selfStats(p *process.Process) (event.ProcessStats, error) {
	memInfo, err := p.MemoryInfo()
	if err != nil {
		return event.ProcessStats{}, err
	}
	cpu, err := p.CPUPercent()
	if err != nil {
		return event.ProcessStats{}, err
	}
	status, err := p.Status()
	if err != nil {
		return event.ProcessStats{}, err
	}
	return event.ProcessStats{
		PID:        p.Pid,
		Status:     status,
		CPUPercent: cpu,
		RSSBytes:   memInfo.RSS,
		Goroutines: runtime.NumGoroutine(),
	}, nil
}
