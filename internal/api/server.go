// Package api serves the HTTP control and status surface of the tracking
// daemon.
package api

import (
	"context"
	"log"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/banshee-data/tactical/internal/tactical"
	"github.com/banshee-data/tactical/internal/tactical/calibration"
	"github.com/banshee-data/tactical/internal/tactical/pipeline"
	"github.com/banshee-data/tactical/internal/tactical/storage/sqlite"
	"github.com/banshee-data/tactical/internal/tactical/zones"
	"github.com/banshee-data/tactical/internal/units"
)

// ANSI escape codes for request logging
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

// maxBodyBytes bounds control request bodies.
const maxBodyBytes = 1 << 20

// Controller is the processor surface the API drives.
type Controller interface {
	Snapshot(all bool) pipeline.Snapshot
	Alerts(limit int) []zones.Alert
	Cameras() []calibration.Status
	Camera(name string) (calibration.Status, error)
	Calibrate(ctx context.Context, camera string, points []tactical.Point) (calibration.Status, error)
	SetZonePreset(ctx context.Context, name string) error
	Preset() (string, tactical.ZoneRadii)
	Presets() []string
	ClearAllTracks() int
	SetProcessingEnabled(enabled bool)
	ProcessingEnabled() bool
	SetSafeOriginFilter(on bool)
	SafeOriginFilter() bool
	Stats() pipeline.Stats
}

// AlertHistory is the persisted alert log, when a store is configured.
type AlertHistory interface {
	RecentAlerts(ctx context.Context, limit int) ([]sqlite.AlertEvent, error)
}

// Server holds the API dependencies. units is the length unit world
// coordinates are expressed in.
type Server struct {
	ctl     Controller
	history AlertHistory
	units   string

	muOnce sync.Once
	mux    *http.ServeMux
}

// NewServer creates an API server. history may be nil.
func NewServer(ctl Controller, history AlertHistory, worldUnits string) *Server {
	if !units.IsValid(worldUnits) {
		worldUnits = units.Meters
	}
	return &Server{
		ctl:     ctl,
		history: history,
		units:   worldUnits,
	}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, query, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		log.Printf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

// ServeMux returns the API mux, building it on first use.
func (s *Server) ServeMux() *http.ServeMux {
	s.muOnce.Do(func() {
		mux := http.NewServeMux()
		mux.HandleFunc("/api/tracks", s.listTracks)
		mux.HandleFunc("/api/tracks/clear", s.clearTracks)
		mux.HandleFunc("/api/alerts", s.listAlerts)
		mux.HandleFunc("/api/cameras", s.listCameras)
		mux.HandleFunc("/api/calibrate", s.calibrate)
		mux.HandleFunc("/api/zones", s.zonePreset)
		mux.HandleFunc("/api/processing", s.processing)
		mux.HandleFunc("/api/filter", s.filter)
		mux.HandleFunc("/api/stats", s.stats)
		s.mux = mux
	})
	return s.mux
}
