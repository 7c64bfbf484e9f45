// Package rpc exposes the standard gRPC health service for the ledger so
// supervisors can tell whether the store is reachable.
package rpc

import (
	"context"
	"log/slog"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the health-check service name for the ledger.
const ServiceName = "nfcledger.Ledger"

type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthMonitor pings the store on an interval and flips the health status
// between SERVING and NOT_SERVING.
type HealthMonitor struct {
	health   *health.Server
	pinger   Pinger
	interval time.Duration
	logger   *slog.Logger

	serving bool
	cancel  context.CancelFunc
	done    chan struct{}
}

func NewHealthMonitor(p Pinger, interval time.Duration, logger *slog.Logger) *HealthMonitor {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	m := &HealthMonitor{
		health:   health.NewServer(),
		pinger:   p,
		interval: interval,
		logger:   logger,
		serving:  true,
		done:     make(chan struct{}),
	}
	m.health.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	return m
}

func (m *HealthMonitor) Health() *health.Server { return m.health }

// CheckOnce pings the store and publishes the result. It reports whether
// the store answered.
func (m *HealthMonitor) CheckOnce(ctx context.Context) bool {
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	err := m.pinger.Ping(pingCtx)
	ok := err == nil

	status := healthpb.HealthCheckResponse_SERVING
	if !ok {
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	m.health.SetServingStatus("", status)
	m.health.SetServingStatus(ServiceName, status)

	if ok != m.serving {
		if ok {
			m.logger.Info("store reachable again", "service", ServiceName)
		} else {
			m.logger.Error("store ping failed", "service", ServiceName, "err", err)
		}
		m.serving = ok
	}
	return ok
}

// Start checks immediately, then on every interval until Stop.
func (m *HealthMonitor) Start(ctx context.Context) {
	ctx, m.cancel = context.WithCancel(ctx)
	go func() {
		defer close(m.done)
		m.CheckOnce(ctx)

		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.CheckOnce(ctx)
			}
		}
	}()
}

// Stop ends the loop and marks every service NOT_SERVING.
func (m *HealthMonitor) Stop() {
	if m.cancel != nil {
		m.cancel()
		<-m.done
	}
	m.health.Shutdown()
}

// Server is the gRPC listener carrying the health service.
type Server struct {
	grpc *grpc.Server
	lis  net.Listener
}

func NewServer(lis net.Listener, m *HealthMonitor) *Server {
	gs := grpc.NewServer()
	healthpb.RegisterHealthServer(gs, m.Health())
	return &Server{grpc: gs, lis: lis}
}

// Listen opens a TCP listener on addr and wraps it in a Server.
func Listen(addr string, m *HealthMonitor) (*Server, error) {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	return NewServer(lis, m), nil
}

func (s *Server) Addr() net.Addr { return s.lis.Addr() }

func (s *Server) Serve() error { return s.grpc.Serve(s.lis) }

func (s *Server) Stop() { s.grpc.GracefulStop() }
