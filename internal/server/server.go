// Package server exposes the service surface: a JSON API over the
// grpc-gateway mux for market operations and queries, and a gRPC endpoint
// carrying health and reflection for probes and tooling.
package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/grpc-ecosystem/grpc-gateway/v2/runtime"
	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"PerpVamm/internal/engine"
	"PerpVamm/internal/feepool"
	"PerpVamm/internal/observability"
	"PerpVamm/internal/pricefeed"
	"PerpVamm/internal/query"
	"PerpVamm/internal/vamm"
)

// Deps holds everything the handlers need.
type Deps struct {
	Query   *query.Service
	Markets query.Registry
	Engines map[string]*engine.Engine
	Feed    *pricefeed.Feed
	FeePool *feepool.Pool
	Health  *observability.HealthChecker
	Logger  zerolog.Logger

	// Now supplies unix-second timestamps for mutating calls; the market
	// core itself never reads the clock. Nil defaults to wall time.
	Now func() int64

	// StartHeight seeds the logical block counter above any genesis height
	// the markets were created with.
	StartHeight int64
}

// Server runs the HTTP JSON API and the gRPC health endpoint.
type Server struct {
	deps       *Deps
	grpcServer *grpc.Server
	grpcHealth *health.Server
	httpServer *http.Server
	grpcAddr   string
	httpAddr   string
	height     atomic.Int64
	now        func() int64
	logger     zerolog.Logger
}

func New(grpcAddr, httpAddr string, deps *Deps) (*Server, error) {
	now := deps.Now
	if now == nil {
		now = func() int64 { return time.Now().Unix() }
	}

	s := &Server{
		deps:     deps,
		grpcAddr: grpcAddr,
		httpAddr: httpAddr,
		now:      now,
		logger:   deps.Logger,
	}
	s.height.Store(deps.StartHeight)

	s.grpcServer = grpc.NewServer()
	s.grpcHealth = health.NewServer()
	healthpb.RegisterHealthServer(s.grpcServer, s.grpcHealth)
	s.grpcHealth.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	reflection.Register(s.grpcServer)

	mux := runtime.NewServeMux()
	if err := s.registerRoutes(mux); err != nil {
		return nil, fmt.Errorf("register routes: %w", err)
	}

	httpMux := http.NewServeMux()
	if deps.Health != nil {
		httpMux.HandleFunc("/healthz", deps.Health.LivenessHandler)
		httpMux.HandleFunc("/readyz", deps.Health.ReadinessHandler)
	}
	httpMux.Handle("/", mux)

	s.httpServer = &http.Server{
		Addr:    httpAddr,
		Handler: httpMux,
	}

	return s, nil
}

// nextBlock assigns the logical block for one mutating call. Each call gets
// its own block, so the fluctuation limiter bounds it against the previous
// call's closing price.
func (s *Server) nextBlock() vamm.BlockInfo {
	return vamm.BlockInfo{
		Height: s.height.Add(1),
		Time:   s.now(),
	}
}

// StartGRPC starts the gRPC endpoint (blocking).
func (s *Server) StartGRPC(ctx context.Context) error {
	lis, err := net.Listen("tcp", s.grpcAddr)
	if err != nil {
		return fmt.Errorf("grpc listen: %w", err)
	}

	go func() {
		<-ctx.Done()
		s.logger.Info().Msg("grpc server shutting down")
		s.grpcHealth.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
		s.grpcServer.GracefulStop()
	}()

	s.logger.Info().Str("addr", s.grpcAddr).Msg("grpc server listening")
	return s.grpcServer.Serve(lis)
}

// StartHTTP starts the JSON API (blocking).
func (s *Server) StartHTTP(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		s.logger.Info().Msg("http server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.httpServer.Shutdown(shutdownCtx)
	}()

	s.logger.Info().Str("addr", s.httpAddr).Msg("http server listening")
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
