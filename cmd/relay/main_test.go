package main

import (
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}

func TestRun_Busy_Grpc_Port_Starts_Nothing(t *testing.T) {
	req := require.New(t)

	// Given the gRPC port is already taken
	busy, err := net.Listen("tcp", "127.0.0.1:0")
	req.NoError(err)
	defer busy.Close()
	httpPort := freePort(t)

	t.Setenv("LOG_LEVEL", "INFO")
	t.Setenv("HOST", "127.0.0.1")
	t.Setenv("PORT", strconv.Itoa(httpPort))
	t.Setenv("GRPC_PORT", strconv.Itoa(busy.Addr().(*net.TCPAddr).Port))
	t.Setenv("BADGER_FILEPATH", t.TempDir())
	t.Setenv("FIREBASE_SERVICE_ACCOUNT", "")

	// When the relay starts
	code, err := run()

	// Then it fails at runtime
	req.Error(err)
	req.Equal(exitRuntime, code)
	// And the HTTP server was never started
	httpAddress := net.JoinHostPort("127.0.0.1", strconv.Itoa(httpPort))
	req.Never(func() bool {
		conn, err := net.DialTimeout("tcp", httpAddress, 20*time.Millisecond)
		if err != nil {
			return false
		}
		_ = conn.Close()
		return true
	}, 300*time.Millisecond, 30*time.Millisecond)
}
