package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/joseph-ayodele/catalog-extractor/internal/async"
	"github.com/joseph-ayodele/catalog-extractor/internal/common"
)

// ServiceName is the gRPC health service name reported next to the overall "" status.
const ServiceName = "catalog.extractor"

// Server runs the HTTP API, the gRPC health service and the task queue
// until its context ends.
type Server struct {
	cfg     common.ServerConfig
	handler http.Handler
	queue   async.Queue
	db      HealthChecker
	logger  *slog.Logger

	health *health.Server
	grpc   *grpc.Server

	// ProbeInterval is how often the database is probed for the gRPC status.
	ProbeInterval   time.Duration
	ShutdownTimeout time.Duration
}

func New(cfg common.ServerConfig, handler http.Handler, queue async.Queue, db HealthChecker, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	hs := health.NewServer()
	gs := grpc.NewServer()
	healthpb.RegisterHealthServer(gs, hs)
	reflection.Register(gs)
	return &Server{
		cfg:             cfg,
		handler:         handler,
		queue:           queue,
		db:              db,
		logger:          logger,
		health:          hs,
		grpc:            gs,
		ProbeInterval:   15 * time.Second,
		ShutdownTimeout: 30 * time.Second,
	}
}

// Run listens on both addresses and blocks until ctx is cancelled or a
// listener fails. Queued tasks are drained before it returns.
func (s *Server) Run(ctx context.Context) error {
	httpLis, err := net.Listen("tcp", s.cfg.HTTPAddr)
	if err != nil {
		return common.NewAppError(common.CodeConfig, "listen "+s.cfg.HTTPAddr, err)
	}
	grpcLis, err := net.Listen("tcp", s.cfg.GRPCAddr)
	if err != nil {
		_ = httpLis.Close()
		return common.NewAppError(common.CodeConfig, "listen "+s.cfg.GRPCAddr, err)
	}
	return s.Serve(ctx, httpLis, grpcLis)
}

// Serve is Run on listeners the caller already opened.
func (s *Server) Serve(ctx context.Context, httpLis, grpcLis net.Listener) error {
	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.setServing(true)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.logger.Info("server.http.listening", "addr", httpLis.Addr().String())
		if err := srv.Serve(httpLis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		s.logger.Info("server.grpc.listening", "addr", grpcLis.Addr().String())
		if err := s.grpc.Serve(grpcLis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		s.probe(gctx)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		s.logger.Info("server.shutdown.started")
		s.setServing(false)

		sctx, cancel := context.WithTimeout(context.Background(), s.ShutdownTimeout)
		defer cancel()
		err := srv.Shutdown(sctx)
		s.grpc.GracefulStop()
		if s.queue != nil {
			s.queue.Shutdown(sctx)
		}
		s.logger.Info("server.shutdown.done")
		return err
	})
	return g.Wait()
}

func (s *Server) probe(ctx context.Context) {
	if s.db == nil || s.ProbeInterval <= 0 {
		return
	}
	ticker := time.NewTicker(s.ProbeInterval)
	defer ticker.Stop()
	healthy := true
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			err := s.db.HealthCheck(ctx, 3*time.Second)
			if ctx.Err() != nil {
				return
			}
			if ok := err == nil; ok != healthy {
				healthy = ok
				s.logger.Warn("server.health.changed", "serving", ok, "error", err)
				s.setServing(ok)
			}
		}
	}
}

func (s *Server) setServing(ok bool) {
	st := healthpb.HealthCheckResponse_NOT_SERVING
	if ok {
		st = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", st)
	s.health.SetServingStatus(ServiceName, st)
}
