package source

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync/atomic"
	"time"

	"github.com/banshee-data/tactical/internal/tactical"
)

// UDPListenerConfig configures a UDPListener.
type UDPListenerConfig struct {
	Address string // host:port to bind
	RcvBuf  int    // socket receive buffer; 0 leaves the OS default
	Hub     *Hub
}

// UDPListener receives one JSON frame per datagram and hands it to the hub.
type UDPListener struct {
	address string
	rcvBuf  int
	hub     *Hub

	received atomic.Uint64
	rejected atomic.Uint64
}

// NewUDPListener creates a listener; call Start to begin receiving.
func NewUDPListener(cfg UDPListenerConfig) *UDPListener {
	return &UDPListener{address: cfg.Address, rcvBuf: cfg.RcvBuf, hub: cfg.Hub}
}

// Start binds the configured address and serves until ctx is cancelled.
func (l *UDPListener) Start(ctx context.Context) error {
	addr, err := net.ResolveUDPAddr("udp", l.address)
	if err != nil {
		return fmt.Errorf("failed to resolve UDP address: %w", err)
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on UDP address: %w", err)
	}
	if l.rcvBuf > 0 {
		if err := conn.SetReadBuffer(l.rcvBuf); err != nil {
			tactical.Opsf("[Source] failed to set UDP receive buffer to %d: %v", l.rcvBuf, err)
		}
	}
	tactical.Diagf("[Source] UDP listener started on %s", conn.LocalAddr())
	return l.Serve(ctx, conn)
}

// Serve reads datagrams from conn until ctx is cancelled. It closes conn
// on return.
func (l *UDPListener) Serve(ctx context.Context, conn net.PacketConn) error {
	defer conn.Close()
	buf := make([]byte, MaxDatagramSize)
	for {
		if err := ctx.Err(); err != nil {
			tactical.Diagf("[Source] UDP listener stopping (%d frames received, %d rejected)", l.received.Load(), l.rejected.Load())
			return err
		}
		// Short deadline so cancellation is noticed.
		_ = conn.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
		n, from, err := conn.ReadFrom(buf)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			tactical.Opsf("[Source] UDP read error: %v", err)
			continue
		}
		if err := l.handleDatagram(buf[:n]); err != nil {
			tactical.Tracef("[Source] datagram from %v: %v", from, err)
		}
	}
}

func (l *UDPListener) handleDatagram(data []byte) error {
	f, err := DecodeFrame(data)
	if err != nil {
		l.rejected.Add(1)
		return err
	}
	if f.Time.IsZero() {
		f.Time = time.Now()
	}
	l.received.Add(1)
	if !l.hub.Put(f) {
		return fmt.Errorf("unknown camera %q", f.Camera)
	}
	return nil
}

// Counts returns the number of frames accepted and rejected.
func (l *UDPListener) Counts() (received, rejected uint64) {
	return l.received.Load(), l.rejected.Load()
}
