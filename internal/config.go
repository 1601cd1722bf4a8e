package internal

import (
	"fmt"
	"os"
	"strings"
	"time"
)

type Config struct {
	LogLevel               string        `env:"LOG_LEVEL,default=INFO"`
	Host                   string        `env:"HOST,default=0.0.0.0"`
	Port                   int           `env:"PORT,default=4000"`
	GrpcPort               int           `env:"GRPC_PORT,default=4001"`
	DebugPort              int           `env:"DEBUG_PORT,default=8081"`
	BadgerFilepath         string        `env:"BADGER_FILEPATH,required=true"`
	UploadsDir             string        `env:"UPLOADS_DIR"`
	BufferSize             int           `env:"BUFFER_SIZE,default=1024"`
	ConnectionBufferSize   int           `env:"CONNECTION_BUFFER_SIZE,default=64"`
	NotificationWorkers    int           `env:"NOTIFICATION_WORKERS,default=4"`
	SinkTimeout            time.Duration `env:"SINK_TIMEOUT,default=2s"`
	PushTimeout            time.Duration `env:"PUSH_TIMEOUT,default=10s"`
	RestartInterval        time.Duration `env:"RESTART_INTERVAL,default=200ms"`
	MetricInterval         time.Duration `env:"METRIC_INTERVAL,default=30s"`
	ShutdownTimeout        time.Duration `env:"SHUTDOWN_TIMEOUT,default=10s"`
	LowCapacityThreshold   int           `env:"LOW_CAPACITY_THRESHOLD,default=10"`
	HistoryLimit           int           `env:"HISTORY_LIMIT,default=200"`
	AllowedOrigins         string        `env:"ALLOWED_ORIGINS,default=http://localhost:5173"`
	FirebaseServiceAccount string        `env:"FIREBASE_SERVICE_ACCOUNT"`
}

// Validate rejects values the relay can't run with.
func (c Config) Validate() error {
	switch {
	case c.BufferSize <= 0:
		return fmt.Errorf("BUFFER_SIZE must be positive, got %d", c.BufferSize)
	case c.ConnectionBufferSize <= 0:
		return fmt.Errorf("CONNECTION_BUFFER_SIZE must be positive, got %d", c.ConnectionBufferSize)
	case c.NotificationWorkers <= 0:
		return fmt.Errorf("NOTIFICATION_WORKERS must be positive, got %d", c.NotificationWorkers)
	case c.HistoryLimit <= 0:
		return fmt.Errorf("HISTORY_LIMIT must be positive, got %d", c.HistoryLimit)
	case c.SinkTimeout <= 0 || c.PushTimeout <= 0:
		return fmt.Errorf("SINK_TIMEOUT and PUSH_TIMEOUT must be positive")
	case c.MetricInterval <= 0 || c.RestartInterval <= 0:
		return fmt.Errorf("METRIC_INTERVAL and RESTART_INTERVAL must be positive")
	}
	return nil
}

// Origins splits ALLOWED_ORIGINS on commas.
func (c Config) Origins() []string {
	var res []string
	for _, o := range strings.Split(c.AllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			res = append(res, o)
		}
	}
	return res
}

// ServiceAccount returns the push credentials. The variable holds either
// the JSON document itself or a path to it. Empty means push is disabled.
func (c Config) ServiceAccount() ([]byte, error) {
	raw := strings.TrimSpace(c.FirebaseServiceAccount)
	if raw == "" {
		return nil, nil
	}
	if strings.HasPrefix(raw, "{") {
		return []byte(raw), nil
	}
	return os.ReadFile(raw)
}
