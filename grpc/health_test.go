package grpc

import (
	"context"
	"log/slog"
	"net"
	"testing"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func startHealthServer(t *testing.T, pushEnabled bool) healthpb.HealthClient {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	server := NewHealthServer(logs.GetLoggerFromLevel(slog.LevelDebug), pushEnabled)
	go func() { _ = server.Serve(listener) }()
	t.Cleanup(server.Stop)

	conn, err := grpc.NewClient(listener.Addr().String(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return healthpb.NewHealthClient(conn)
}

func TestHealthServer_Push_Disabled(t *testing.T) {
	req := require.New(t)
	client := startHealthServer(t, false)
	ctx := context.Background()

	resp, err := client.Check(ctx, &healthpb.HealthCheckRequest{Service: RelayService})
	req.NoError(err)
	req.Equal(healthpb.HealthCheckResponse_SERVING, resp.Status)

	resp, err = client.Check(ctx, &healthpb.HealthCheckRequest{Service: PushService})
	req.NoError(err)
	req.Equal(healthpb.HealthCheckResponse_NOT_SERVING, resp.Status)
}

func TestHealthServer_Push_Enabled(t *testing.T) {
	req := require.New(t)
	client := startHealthServer(t, true)

	resp, err := client.Check(context.Background(), &healthpb.HealthCheckRequest{Service: PushService})
	req.NoError(err)
	req.Equal(healthpb.HealthCheckResponse_SERVING, resp.Status)
}
