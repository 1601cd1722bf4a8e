// Package grpc exposes the standard gRPC health service of the relay.
package grpc

import (
	"errors"
	"fmt"
	"log/slog"
	"net"

	sdkgrpc "github.com/mama165/sdk-go/grpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

const (
	RelayService = "chat.relay"
	PushService  = "chat.push"
)

// HealthServer reports whether the relay serves and whether push is configured.
type HealthServer struct {
	log    *slog.Logger
	server *grpc.Server
	health *health.Server
}

func NewHealthServer(log *slog.Logger, pushEnabled bool) *HealthServer {
	s := grpc.NewServer(grpc.ChainUnaryInterceptor(sdkgrpc.UnaryLoggingInterceptor(log)))
	h := health.NewServer()
	healthpb.RegisterHealthServer(s, h)
	reflection.Register(s)

	h.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	h.SetServingStatus(RelayService, healthpb.HealthCheckResponse_SERVING)
	pushStatus := healthpb.HealthCheckResponse_NOT_SERVING
	if pushEnabled {
		pushStatus = healthpb.HealthCheckResponse_SERVING
	}
	h.SetServingStatus(PushService, pushStatus)

	return &HealthServer{log: log, server: s, health: h}
}

// Serve blocks until the listener fails or Stop is called.
func (s *HealthServer) Serve(listener net.Listener) error {
	s.log.Info("Starting gRPC health server", "address", listener.Addr().String())
	for serviceName := range s.server.GetServiceInfo() {
		s.log.Debug("gRPC exposed services", "name", serviceName)
	}
	if err := s.server.Serve(listener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return fmt.Errorf("gRPC server error: %w", err)
	}
	return nil
}

// Stop marks every service NOT_SERVING and lets in-flight checks finish.
func (s *HealthServer) Stop() {
	s.health.Shutdown()
	s.server.GracefulStop()
}
