// Package health reports whether the service's backing stores are reachable,
// over the standard gRPC health protocol and as a plain report for HTTP.
package health

import (
	"context"
	"net"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// Pinger is anything that can tell whether it is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

type Report struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

type Server struct {
	grpc    *grpc.Server
	health  *health.Server
	checks  map[string]Pinger
	timeout time.Duration
	logger  *zap.Logger

	mu   sync.Mutex
	last Report
}

// NewServer registers the health service and server reflection on a new
// instrumented gRPC server. Every named check is also a health service name.
func NewServer(checks map[string]Pinger, logger *zap.Logger) *Server {
	grpcServer := grpc.NewServer(grpc.StatsHandler(otelgrpc.NewServerHandler()))
	hs := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, hs)
	reflection.Register(grpcServer)

	return &Server{
		grpc:    grpcServer,
		health:  hs,
		checks:  checks,
		timeout: 2 * time.Second,
		logger:  logger,
		last:    Report{Status: "unknown", Checks: map[string]string{}},
	}
}

// Check pings every dependency and updates the served statuses. The overall
// service ("") is serving only when every check passes.
func (s *Server) Check(ctx context.Context) Report {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	names := make([]string, 0, len(s.checks))
	for name := range s.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	results := make([]error, len(names))
	var g errgroup.Group
	for i, name := range names {
		g.Go(func() error {
			results[i] = s.checks[name].Ping(ctx)
			return nil
		})
	}
	_ = g.Wait()

	report := Report{Status: "ok", Checks: make(map[string]string, len(names))}
	overall := healthpb.HealthCheckResponse_SERVING
	for i, name := range names {
		status := healthpb.HealthCheckResponse_SERVING
		report.Checks[name] = "ok"
		if err := results[i]; err != nil {
			status = healthpb.HealthCheckResponse_NOT_SERVING
			overall = status
			report.Checks[name] = err.Error()
			report.Status = "degraded"
			s.logger.Warn("health check failed", zap.String("check", name), zap.Error(err))
		}
		s.health.SetServingStatus(name, status)
	}
	s.health.SetServingStatus("", overall)

	s.mu.Lock()
	s.last = report
	s.mu.Unlock()
	return report
}

// Last is the report of the most recent Check.
func (s *Server) Last() Report {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// Run checks every interval until ctx is done.
func (s *Server) Run(ctx context.Context, interval time.Duration) {
	s.Check(ctx)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.Check(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (s *Server) Serve(lis net.Listener) error {
	return s.grpc.Serve(lis)
}

// Stop marks everything as not serving and drains the gRPC server.
func (s *Server) Stop() {
	s.health.Shutdown()
	s.grpc.GracefulStop()
}
