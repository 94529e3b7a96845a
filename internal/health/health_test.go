package health

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/testing/protocmp"

	"github.com/banshee-data/tactical/internal/tactical/calibration"
	"github.com/banshee-data/tactical/internal/tactical/pipeline"
	"github.com/banshee-data/tactical/internal/timeutil"
)

type fakeSource struct {
	mu      sync.Mutex
	cameras []calibration.Status
	stats   pipeline.Stats
	enabled bool
}

func (f *fakeSource) Cameras() []calibration.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]calibration.Status(nil), f.cameras...)
}

func (f *fakeSource) Stats() pipeline.Stats {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stats
}

func (f *fakeSource) ProcessingEnabled() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.enabled
}

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func checkStatus(t *testing.T, s *Server, service string) healthpb.HealthCheckResponse_ServingStatus {
	t.Helper()
	st, err := s.Check(context.Background(), service)
	require.NoError(t, err)
	return st
}

func TestRefresh(t *testing.T) {
	clk := timeutil.NewMockClock(t0)
	src := &fakeSource{
		cameras: []calibration.Status{{Camera: "left", Calibrated: true}, {Camera: "right"}},
		stats:   pipeline.Stats{LastTick: t0},
		enabled: true,
	}
	s := NewServer(DefaultConfig(), src, clk)

	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, checkStatus(t, s, ""))

	s.Refresh()
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, checkStatus(t, s, ""))
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, checkStatus(t, s, PipelineService))
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, checkStatus(t, s, CameraService("left")))
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, checkStatus(t, s, CameraService("right")))

	// A stalled tick loop takes the daemon down.
	clk.Advance(3 * time.Second)
	s.Refresh()
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, checkStatus(t, s, PipelineService))
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, checkStatus(t, s, ""))

	// So does disabling processing.
	src.mu.Lock()
	src.stats.LastTick = clk.Now()
	src.enabled = false
	src.mu.Unlock()
	s.Refresh()
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, checkStatus(t, s, PipelineService))

	_, err := s.Check(context.Background(), CameraService("nobody"))
	assert.Error(t, err)
}

func TestNoCalibratedCamera(t *testing.T) {
	src := &fakeSource{
		cameras: []calibration.Status{{Camera: "left"}},
		stats:   pipeline.Stats{LastTick: t0},
		enabled: true,
	}
	s := NewServer(DefaultConfig(), src, timeutil.NewMockClock(t0))
	s.Refresh()
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, checkStatus(t, s, PipelineService))
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, checkStatus(t, s, ""))
}

func TestServeOverGRPC(t *testing.T) {
	src := &fakeSource{
		cameras: []calibration.Status{{Camera: "left", Calibrated: true}},
		stats:   pipeline.Stats{LastTick: time.Now()},
		enabled: true,
	}
	cfg := DefaultConfig()
	cfg.ListenAddr = "127.0.0.1:0"
	s := NewServer(cfg, src, nil)
	s.Refresh()
	require.NoError(t, s.Start())
	defer s.Stop()
	assert.Error(t, s.Start(), "second Start should fail")

	conn, err := grpc.NewClient(s.Addr().String(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	client := healthpb.NewHealthClient(conn)
	resp, err := client.Check(ctx, &healthpb.HealthCheckRequest{Service: CameraService("left")})
	require.NoError(t, err)
	want := &healthpb.HealthCheckResponse{Status: healthpb.HealthCheckResponse_SERVING}
	if diff := cmp.Diff(want, resp, protocmp.Transform()); diff != "" {
		t.Errorf("Check(left) mismatch (-want +got):\n%s", diff)
	}

	_, err = client.Check(ctx, &healthpb.HealthCheckRequest{Service: CameraService("front")})
	assert.Equal(t, codes.NotFound, status.Code(err))
}

func TestRunRefreshesOnTick(t *testing.T) {
	clk := timeutil.NewMockClock(t0)
	src := &fakeSource{stats: pipeline.Stats{LastTick: t0}, enabled: true,
		cameras: []calibration.Status{{Camera: "left"}}}
	s := NewServer(DefaultConfig(), src, clk)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, func() bool {
		return checkStatus(t, s, PipelineService) == healthpb.HealthCheckResponse_SERVING
	}, 2*time.Second, 5*time.Millisecond)

	src.mu.Lock()
	src.cameras[0].Calibrated = true
	src.mu.Unlock()
	require.Eventually(t, func() bool {
		clk.Advance(time.Second)
		src.mu.Lock()
		src.stats.LastTick = clk.Now()
		src.mu.Unlock()
		return checkStatus(t, s, CameraService("left")) == healthpb.HealthCheckResponse_SERVING
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestStopShutsDownStatuses(t *testing.T) {
	src := &fakeSource{stats: pipeline.Stats{LastTick: t0}, enabled: true,
		cameras: []calibration.Status{{Camera: "left", Calibrated: true}}}
	s := NewServer(DefaultConfig(), src, timeutil.NewMockClock(t0))
	s.Refresh()
	s.Stop()
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, checkStatus(t, s, ""))
}
