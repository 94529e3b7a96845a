// Package health publishes the standard grpc.health.v1 service for the
// tracking daemon: one service per camera, one for the tick loop, and the
// empty service name for the daemon as a whole.
package health

import (
	"context"
	"fmt"
	"log"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/banshee-data/tactical/internal/tactical/calibration"
	"github.com/banshee-data/tactical/internal/tactical/pipeline"
	"github.com/banshee-data/tactical/internal/timeutil"
)

// PipelineService is the health service name of the tick loop.
const PipelineService = "tactical.pipeline"

// CameraService returns the health service name for a camera.
func CameraService(camera string) string {
	return "tactical.camera." + camera
}

// StatusSource is the processor surface health reads from.
type StatusSource interface {
	Cameras() []calibration.Status
	Stats() pipeline.Stats
	ProcessingEnabled() bool
}

// Config controls the health server.
type Config struct {
	ListenAddr string
	// StaleAfter is how long the tick loop may go without a tick before it
	// is reported NOT_SERVING.
	StaleAfter time.Duration
	// PollInterval is how often statuses are refreshed.
	PollInterval time.Duration
}

// DefaultConfig returns a config listening on :50061.
func DefaultConfig() Config {
	return Config{
		ListenAddr:   ":50061",
		StaleAfter:   2 * time.Second,
		PollInterval: time.Second,
	}
}

// Server owns the gRPC listener and the health status table.
type Server struct {
	config Config
	src    StatusSource
	clock  timeutil.Clock
	health *grpchealth.Server

	server   *grpc.Server
	listener net.Listener
	running  atomic.Bool
	wg       sync.WaitGroup
}

// NewServer creates a health server. Statuses start NOT_SERVING until the
// first Refresh.
func NewServer(cfg Config, src StatusSource, clk timeutil.Clock) *Server {
	if clk == nil {
		clk = timeutil.RealClock{}
	}
	s := &Server{config: cfg, src: src, clock: clk, health: grpchealth.NewServer()}
	s.health.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	s.health.SetServingStatus(PipelineService, healthpb.HealthCheckResponse_NOT_SERVING)
	return s
}

// Refresh recomputes every status from the source.
func (s *Server) Refresh() {
	calibrated := 0
	for _, cam := range s.src.Cameras() {
		st := healthpb.HealthCheckResponse_NOT_SERVING
		if cam.Calibrated {
			st = healthpb.HealthCheckResponse_SERVING
			calibrated++
		}
		s.health.SetServingStatus(CameraService(cam.Camera), st)
	}

	stats := s.src.Stats()
	ticking := s.src.ProcessingEnabled() && !stats.LastTick.IsZero() &&
		s.clock.Since(stats.LastTick) <= s.config.StaleAfter
	pipelineStatus := healthpb.HealthCheckResponse_NOT_SERVING
	if ticking {
		pipelineStatus = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus(PipelineService, pipelineStatus)

	overall := healthpb.HealthCheckResponse_NOT_SERVING
	if ticking && calibrated > 0 {
		overall = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", overall)
}

// Check reports the current status of a service without going through
// the network.
func (s *Server) Check(ctx context.Context, service string) (healthpb.HealthCheckResponse_ServingStatus, error) {
	resp, err := s.health.Check(ctx, &healthpb.HealthCheckRequest{Service: service})
	if err != nil {
		return healthpb.HealthCheckResponse_UNKNOWN, err
	}
	return resp.GetStatus(), nil
}

// Start binds the listener and serves the health service in the
// background.
func (s *Server) Start() error {
	if s.running.Load() {
		return fmt.Errorf("health server already running")
	}
	lis, err := net.Listen("tcp", s.config.ListenAddr)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	s.listener = lis
	s.server = grpc.NewServer()
	healthpb.RegisterHealthServer(s.server, s.health)
	s.running.Store(true)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		log.Printf("[Health] gRPC health listening on %s", lis.Addr())
		if err := s.server.Serve(lis); err != nil && s.running.Load() {
			log.Printf("[Health] gRPC server error: %v", err)
		}
	}()
	return nil
}

// Addr returns the bound address, or nil before Start.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Run refreshes statuses every PollInterval until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	interval := s.config.PollInterval
	if interval <= 0 {
		interval = time.Second
	}
	ticker := s.clock.NewTicker(interval)
	defer ticker.Stop()

	s.Refresh()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C():
			s.Refresh()
		}
	}
}

// Stop marks everything NOT_SERVING and stops the server.
func (s *Server) Stop() {
	s.health.Shutdown()
	if !s.running.Load() {
		return
	}
	s.running.Store(false)
	if s.server != nil {
		s.server.GracefulStop()
	}
	s.wg.Wait()
	log.Printf("[Health] gRPC health stopped")
}
