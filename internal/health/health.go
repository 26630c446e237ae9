// Package health publishes miner reachability over the standard gRPC health
// service.
package health

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	grpc_health_v1 "google.golang.org/grpc/health/grpc_health_v1"
)

// Service is the health service name that tracks the miner API.
const Service = "cgminer"

const (
	defaultInterval = 15 * time.Second
	probeCommand    = "version"
)

// Commander sends one raw miner command.
type Commander interface {
	SendCommand(ctx context.Context, command string) (any, error)
}

// Option customizes a Server.
type Option func(*Server)

// WithLogger sets the probe logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithProbeHook runs fn with the outcome of every probe.
func WithProbeHook(fn func(up bool)) Option {
	return func(s *Server) {
		s.onProbe = fn
	}
}

// Server owns a gRPC server exposing grpc.health.v1 and the probe loop that
// feeds it.
type Server struct {
	grpc     *grpc.Server
	health   *health.Server
	miner    Commander
	interval time.Duration
	logger   *slog.Logger
	onProbe  func(bool)
}

// New builds a health server. Both the overall and the miner service start
// NOT_SERVING until the first probe answers.
func New(miner Commander, interval time.Duration, opts ...Option) *Server {
	if interval <= 0 {
		interval = defaultInterval
	}
	s := &Server{
		grpc:     grpc.NewServer(),
		health:   health.NewServer(),
		miner:    miner,
		interval: interval,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(s)
	}

	grpc_health_v1.RegisterHealthServer(s.grpc, s.health)
	s.setStatus(grpc_health_v1.HealthCheckResponse_NOT_SERVING)
	return s
}

// Probe sends one version command and records the result.
func (s *Server) Probe(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, s.interval)
	defer cancel()

	_, err := s.miner.SendCommand(ctx, probeCommand)
	up := err == nil
	if up {
		s.setStatus(grpc_health_v1.HealthCheckResponse_SERVING)
	} else {
		s.logger.Warn("miner health probe failed", "error", err)
		s.setStatus(grpc_health_v1.HealthCheckResponse_NOT_SERVING)
	}
	if s.onProbe != nil {
		s.onProbe(up)
	}
	return up
}

// Status reports the current serving status of service.
func (s *Server) Status(service string) grpc_health_v1.HealthCheckResponse_ServingStatus {
	resp, err := s.health.Check(context.Background(), &grpc_health_v1.HealthCheckRequest{Service: service})
	if err != nil {
		return grpc_health_v1.HealthCheckResponse_SERVICE_UNKNOWN
	}
	return resp.GetStatus()
}

// Run probes immediately, then every interval, while serving gRPC on
// listener. It returns after ctx ends and in-flight RPCs finish.
func (s *Server) Run(ctx context.Context, listener net.Listener) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- s.grpc.Serve(listener)
	}()

	probeDone := make(chan struct{})
	go func() {
		defer close(probeDone)
		s.probeLoop(ctx)
	}()

	var err error
	select {
	case <-ctx.Done():
		s.health.Shutdown()
		s.grpc.GracefulStop()
		err = <-serveErr
	case err = <-serveErr:
		cancel()
	}
	<-probeDone

	if err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return err
	}
	return nil
}

func (s *Server) probeLoop(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.Probe(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Probe(ctx)
		}
	}
}

func (s *Server) setStatus(status grpc_health_v1.HealthCheckResponse_ServingStatus) {
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(Service, status)
}
