// Package health exposes the standard gRPC health checking service so
// orchestrators can probe the server and its dependencies.
package health

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/cory-johannsen/tictactoe/internal/config"
)

// GameService is the service name reported for the game endpoint. The empty
// service name reports the same status.
const GameService = "tictactoe.Game"

// Server serves grpc.health.v1.Health.
type Server struct {
	cfg    config.HealthConfig
	logger *zap.Logger
	grpc   *grpc.Server
	status *grpchealth.Server

	mu       sync.Mutex
	listener net.Listener
}

// NewServer creates a Server reporting NOT_SERVING until SetServing(true).
//
// Precondition: logger must be non-nil.
func NewServer(cfg config.HealthConfig, logger *zap.Logger) *Server {
	s := &Server{
		cfg:    cfg,
		logger: logger,
		grpc:   grpc.NewServer(),
		status: grpchealth.NewServer(),
	}
	healthpb.RegisterHealthServer(s.grpc, s.status)
	s.SetServing(false)
	return s
}

// SetServing flips the overall and game service status.
func (s *Server) SetServing(serving bool) {
	st := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		st = healthpb.HealthCheckResponse_SERVING
	}
	s.status.SetServingStatus("", st)
	s.status.SetServingStatus(GameService, st)
}

// Monitor runs check every interval and reports the result under service
// until ctx is cancelled. The first check runs immediately.
//
// Precondition: interval must be positive.
func (s *Server) Monitor(ctx context.Context, service string, interval time.Duration, check func(context.Context) error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	last := healthpb.HealthCheckResponse_UNKNOWN
	for {
		checkCtx, cancel := context.WithTimeout(ctx, interval)
		err := check(checkCtx)
		cancel()

		st := healthpb.HealthCheckResponse_SERVING
		if err != nil {
			st = healthpb.HealthCheckResponse_NOT_SERVING
		}
		if st != last {
			if err != nil {
				s.logger.Warn("dependency unhealthy", zap.String("service", service), zap.Error(err))
			} else {
				s.logger.Info("dependency healthy", zap.String("service", service))
			}
			last = st
		}
		s.status.SetServingStatus(service, st)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Serve serves on lis until Stop.
func (s *Server) Serve(lis net.Listener) error {
	s.mu.Lock()
	s.listener = lis
	s.mu.Unlock()

	s.logger.Info("gRPC health server listening", zap.String("addr", lis.Addr().String()))
	return s.grpc.Serve(lis)
}

// ListenAndServe listens on the configured address and serves until Stop.
func (s *Server) ListenAndServe() error {
	lis, err := net.Listen("tcp", s.cfg.Addr())
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.cfg.Addr(), err)
	}
	return s.Serve(lis)
}

// Stop reports NOT_SERVING on every service and drains in-flight RPCs.
//
// Postcondition: Serve has returned.
func (s *Server) Stop() {
	s.status.Shutdown()
	s.grpc.GracefulStop()
}

// Addr returns the actual listening address, or empty string if not yet listening.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return ""
}
