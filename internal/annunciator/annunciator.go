// Package annunciator drives a serial siren/LED controller from zone
// alerts. Each alert becomes one newline-terminated command line; the
// controller's replies are fanned out to subscribers.
package annunciator

import (
	"bufio"
	"context"
	crand "crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"

	"go.bug.st/serial"
	"tailscale.com/tsweb"

	"github.com/banshee-data/tactical/internal/monitoring"
	"github.com/banshee-data/tactical/internal/tactical/zones"
)

// ErrWriteFailed is returned when the port accepts only part of a line.
var ErrWriteFailed = errors.New("failed to write to serial port")

// Port is the minimal serial port surface the annunciator needs.
type Port interface {
	io.ReadWriter
	io.Closer
}

// Annunciator writes alert commands to a single serial device.
type Annunciator[T Port] struct {
	port         T
	subscribers  map[string]chan string
	subscriberMu sync.Mutex
	commandMu    sync.Mutex
	closing      atomic.Bool

	sent   atomic.Uint64
	failed atomic.Uint64
}

// New wraps an already-open port.
func New[T Port](port T) *Annunciator[T] {
	return &Annunciator[T]{
		port:        port,
		subscribers: make(map[string]chan string),
	}
}

// Open opens the serial device at path.
func Open(path string, opts PortOptions) (*Annunciator[serial.Port], error) {
	mode, err := opts.SerialMode()
	if err != nil {
		return nil, err
	}
	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return New[serial.Port](port), nil
}

// Command returns the controller line for an alert.
func Command(a zones.Alert) string {
	code := "ALERT"
	switch a.Kind {
	case zones.KindEnteredAlert:
		code = "ENTER"
	case zones.KindLeftAlert:
		code = "LEAVE"
	case zones.KindCrossedPredict:
		code = "CROSS"
	}
	return fmt.Sprintf("%s %d %.2f %.2f", code, a.TrackID, a.Position.X, a.Position.Y)
}

// Initialize silences the controller.
func (a *Annunciator[T]) Initialize() error {
	if err := a.SendCommand("RESET"); err != nil {
		return fmt.Errorf("failed to reset annunciator: %w", err)
	}
	return nil
}

// RecordAlert sends the alert's command line.
func (a *Annunciator[T]) RecordAlert(_ context.Context, alert zones.Alert) error {
	return a.SendCommand(Command(alert))
}

// Clear silences any active alert indication.
func (a *Annunciator[T]) Clear() error {
	return a.SendCommand("CLEAR")
}

// SendCommand writes one line to the port.
func (a *Annunciator[T]) SendCommand(command string) error {
	a.commandMu.Lock()
	defer a.commandMu.Unlock()
	if !strings.HasSuffix(command, "\n") {
		command += "\n"
	}
	n, err := a.port.Write([]byte(command))
	if err == nil && n != len(command) {
		err = ErrWriteFailed
	}
	if err != nil {
		a.failed.Add(1)
		return err
	}
	a.sent.Add(1)
	return nil
}

// Counts returns the number of lines sent and failed.
func (a *Annunciator[T]) Counts() (sent, failed uint64) {
	return a.sent.Load(), a.failed.Load()
}

func randomID() string {
	b := make([]byte, 8)
	crand.Read(b)
	return hex.EncodeToString(b)
}

// Subscribe returns a channel of reply lines from the controller.
func (a *Annunciator[T]) Subscribe() (string, chan string) {
	id := randomID()
	ch := make(chan string, 16)
	a.subscriberMu.Lock()
	defer a.subscriberMu.Unlock()
	a.subscribers[id] = ch
	return id, ch
}

// Unsubscribe removes and closes a subscriber channel.
func (a *Annunciator[T]) Unsubscribe(id string) {
	a.subscriberMu.Lock()
	defer a.subscriberMu.Unlock()
	if ch, ok := a.subscribers[id]; ok {
		close(ch)
		delete(a.subscribers, id)
	}
}

// Monitor reads reply lines until ctx is done or the port hits EOF.
// Replies starting with "ERR" are logged.
func (a *Annunciator[T]) Monitor(ctx context.Context) error {
	scan := bufio.NewScanner(a.port)

	lineChan := make(chan string)
	scanErrChan := make(chan error, 1)

	go func() {
		defer close(lineChan)
		for scan.Scan() {
			select {
			case lineChan <- scan.Text():
			case <-ctx.Done():
				return
			}
		}
		if err := scan.Err(); err != nil {
			select {
			case scanErrChan <- err:
			case <-ctx.Done():
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case err := <-scanErrChan:
			return err

		case line, ok := <-lineChan:
			if !ok {
				select {
				case err := <-scanErrChan:
					return err
				default:
					return nil
				}
			}
			if a.closing.Load() {
				return nil
			}
			if strings.HasPrefix(line, "ERR") {
				monitoring.Logf("annunciator reported %q", line)
			}

			a.subscriberMu.Lock()
			for _, ch := range a.subscribers {
				select {
				case ch <- line:
				default:
					// slow subscriber, drop the line
				}
			}
			a.subscriberMu.Unlock()
		}
	}
}

// Close closes every subscriber and the port.
func (a *Annunciator[T]) Close() error {
	a.closing.Store(true)

	a.subscriberMu.Lock()
	for id, ch := range a.subscribers {
		close(ch)
		delete(a.subscribers, id)
	}
	a.subscriberMu.Unlock()
	return a.port.Close()
}

// AttachAdminRoutes mounts a test-line endpoint and a live tail of
// controller replies under /debug/.
func (a *Annunciator[T]) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)

	debug.HandleSilentFunc("annunciator-test", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		command := strings.TrimSpace(r.FormValue("command"))
		if command == "" {
			command = "TEST"
		}
		if err := a.SendCommand(command); err != nil {
			http.Error(w, "Failed to write command", http.StatusInternalServerError)
			return
		}
		fmt.Fprintf(w, "Wrote command %q to annunciator", command)
	})

	debug.HandleSilentFunc("annunciator-tail", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Accel-Buffering", "no")

		id, c := a.Subscribe()
		defer a.Unsubscribe(id)

		io.WriteString(w, ": ping\n\n")
		flusher.Flush()

		for {
			select {
			case line, ok := <-c:
				if !ok {
					return
				}
				if _, err := fmt.Fprintf(w, "data: %s\n\n", line); err != nil {
					return
				}
				flusher.Flush()
			case <-r.Context().Done():
				return
			}
		}
	})
}
