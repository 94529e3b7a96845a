package annunciator

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.bug.st/serial"

	"github.com/banshee-data/tactical/internal/tactical"
	"github.com/banshee-data/tactical/internal/tactical/pipeline"
	"github.com/banshee-data/tactical/internal/tactical/zones"
)

var _ pipeline.AlertSink = (*Annunciator[*MockPort])(nil)

func TestPortOptionsNormalize(t *testing.T) {
	tests := []struct {
		name    string
		in      PortOptions
		want    PortOptions
		wantErr bool
	}{
		{"defaults", PortOptions{}, PortOptions{BaudRate: 9600, DataBits: 8, StopBits: 1, Parity: "N"}, false},
		{"even spelled out", PortOptions{BaudRate: 115200, DataBits: 7, StopBits: 2, Parity: " even "}, PortOptions{BaudRate: 115200, DataBits: 7, StopBits: 2, Parity: "E"}, false},
		{"bad data bits", PortOptions{DataBits: 9}, PortOptions{}, true},
		{"bad stop bits", PortOptions{StopBits: 3}, PortOptions{}, true},
		{"bad parity", PortOptions{Parity: "mark"}, PortOptions{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.in.Normalize()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSerialModeStopBits(t *testing.T) {
	mode, err := PortOptions{}.SerialMode()
	require.NoError(t, err)
	assert.Equal(t, serial.OneStopBit, mode.StopBits)
	assert.Equal(t, serial.NoParity, mode.Parity)

	mode, err = PortOptions{StopBits: 2, Parity: "O"}.SerialMode()
	require.NoError(t, err)
	assert.Equal(t, serial.TwoStopBits, mode.StopBits)
	assert.Equal(t, serial.OddParity, mode.Parity)

	_, err = PortOptions{Parity: "X"}.SerialMode()
	assert.Error(t, err)
}

func TestCommand(t *testing.T) {
	pos := tactical.Point{X: 1.234, Y: 10.5}
	assert.Equal(t, "ENTER 3 1.23 10.50", Command(zones.Alert{TrackID: 3, Kind: zones.KindEnteredAlert, Position: pos}))
	assert.Equal(t, "LEAVE 3 1.23 10.50", Command(zones.Alert{TrackID: 3, Kind: zones.KindLeftAlert, Position: pos}))
	assert.Equal(t, "CROSS 3 1.23 10.50", Command(zones.Alert{TrackID: 3, Kind: zones.KindCrossedPredict, Position: pos}))
	assert.Equal(t, "ALERT 3 1.23 10.50", Command(zones.Alert{TrackID: 3, Kind: "other", Position: pos}))
}

func TestRecordAlertWritesLines(t *testing.T) {
	port := NewMockPort()
	a := New(port)

	require.NoError(t, a.Initialize())
	require.NoError(t, a.RecordAlert(context.Background(), zones.Alert{TrackID: 1, Kind: zones.KindEnteredAlert, Position: tactical.Point{Y: 5}}))
	require.NoError(t, a.Clear())

	assert.Equal(t, "RESET\nENTER 1 0.00 5.00\nCLEAR\n", port.Written())
	sent, failed := a.Counts()
	assert.Equal(t, uint64(3), sent)
	assert.Zero(t, failed)
}

func TestSendCommandFailure(t *testing.T) {
	port := NewMockPort()
	a := New(port)
	port.FailNextWrite(errors.New("unplugged"))

	assert.Error(t, a.SendCommand("TEST"))
	require.NoError(t, a.SendCommand("TEST"))
	sent, failed := a.Counts()
	assert.Equal(t, uint64(1), sent)
	assert.Equal(t, uint64(1), failed)
}

func TestMonitorFansOutReplies(t *testing.T) {
	port := NewMockPort()
	a := New(port)
	_, ch := a.Subscribe()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- a.Monitor(ctx) }()

	port.AddReply("OK\nERR overheat\n")
	for _, want := range []string{"OK", "ERR overheat"} {
		select {
		case got := <-ch:
			assert.Equal(t, want, got)
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for %q", want)
		}
	}

	require.NoError(t, a.Close())
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Monitor did not return after Close")
	}
	_, ok := <-ch
	assert.False(t, ok, "subscriber channel should be closed")
}

func TestMonitorContextCancel(t *testing.T) {
	a := New(NewMockPort())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, a.Monitor(ctx), context.Canceled)
}

func TestAdminTestRoute(t *testing.T) {
	port := NewMockPort()
	a := New(port)
	mux := http.NewServeMux()
	a.AttachAdminRoutes(mux)

	req := httptest.NewRequest(http.MethodPost, "/debug/annunciator-test", strings.NewReader("command=BEEP"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.RemoteAddr = "127.0.0.1:40000"
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "BEEP\n", port.Written())

	req = httptest.NewRequest(http.MethodGet, "/debug/annunciator-test", nil)
	req.RemoteAddr = "127.0.0.1:40000"
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
