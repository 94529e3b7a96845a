package source

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/banshee-data/tactical/internal/tactical"
)

// ErrNoMarkers is returned when a camera has not reported marker centroids.
var ErrNoMarkers = errors.New("no marker centroids seen")

// Latest is a single-slot frame buffer for one camera. Put overwrites an
// unread frame; ReadFrame blocks until a frame newer than the last one read
// arrives.
type Latest struct {
	camera string

	mu          sync.Mutex
	frame       tactical.Frame
	unread      bool
	markers     []tactical.Point
	overwritten uint64
	received    uint64

	notify chan struct{}
}

// NewLatest creates an empty buffer for camera.
func NewLatest(camera string) *Latest {
	return &Latest{camera: camera, notify: make(chan struct{}, 1)}
}

// Camera returns the camera name.
func (l *Latest) Camera() string { return l.camera }

// Put stores f as the newest frame.
func (l *Latest) Put(f tactical.Frame) {
	l.mu.Lock()
	if l.unread {
		l.overwritten++
	}
	l.frame = f
	l.unread = true
	l.received++
	if len(f.Markers) > 0 {
		l.markers = append(l.markers[:0], f.Markers...)
	}
	l.mu.Unlock()

	select {
	case l.notify <- struct{}{}:
	default:
	}
}

// ReadFrame returns the newest unread frame, waiting for one if needed.
func (l *Latest) ReadFrame(ctx context.Context) (tactical.Frame, error) {
	for {
		l.mu.Lock()
		if l.unread {
			f := l.frame
			l.unread = false
			l.mu.Unlock()
			return f, nil
		}
		l.mu.Unlock()

		select {
		case <-ctx.Done():
			return tactical.Frame{}, ctx.Err()
		case <-l.notify:
		}
	}
}

// DetectMarkers returns the most recent marker centroids the front end
// reported for this camera.
func (l *Latest) DetectMarkers(ctx context.Context) ([]tactical.Point, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.markers) == 0 {
		return nil, ErrNoMarkers
	}
	return append([]tactical.Point(nil), l.markers...), nil
}

// Stats returns the number of frames received and the number overwritten
// before being read.
func (l *Latest) Stats() (received, overwritten uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.received, l.overwritten
}

// Hub routes frames to per-camera buffers.
type Hub struct {
	mu      sync.RWMutex
	cameras map[string]*Latest
	unknown uint64
}

// NewHub creates a hub with a buffer for each named camera.
func NewHub(cameras ...string) *Hub {
	h := &Hub{cameras: make(map[string]*Latest, len(cameras))}
	for _, c := range cameras {
		h.cameras[c] = NewLatest(c)
	}
	return h
}

// Camera returns the buffer for a camera.
func (h *Hub) Camera(name string) (*Latest, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	l, ok := h.cameras[name]
	return l, ok
}

// Cameras returns the configured camera names in sorted order.
func (h *Hub) Cameras() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]string, 0, len(h.cameras))
	for c := range h.cameras {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// Put delivers f to its camera's buffer. Frames for cameras the hub does
// not know are counted and dropped.
func (h *Hub) Put(f tactical.Frame) bool {
	h.mu.RLock()
	l, ok := h.cameras[f.Camera]
	h.mu.RUnlock()
	if !ok {
		h.mu.Lock()
		h.unknown++
		h.mu.Unlock()
		tactical.Tracef("[Source] dropping frame %d for unknown camera %q", f.Seq, f.Camera)
		return false
	}
	l.Put(f)
	return true
}

// Unknown returns how many frames were dropped for unknown cameras.
func (h *Hub) Unknown() uint64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.unknown
}
