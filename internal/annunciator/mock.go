package annunciator

import (
	"bytes"
	"errors"
	"io"
	"sync"
)

var errPortClosed = errors.New("serial port closed")

// MockPort is an in-memory Port. Reads block until reply data is added or
// the port is closed; writes are captured, and optionally echoed to Echo.
type MockPort struct {
	mu       sync.Mutex
	cond     *sync.Cond
	replies  bytes.Buffer
	written  bytes.Buffer
	closed   bool
	writeErr error

	// Echo, when set, receives a copy of every written line.
	Echo io.Writer
}

// NewMockPort returns an open MockPort.
func NewMockPort() *MockPort {
	p := &MockPort{}
	p.cond = sync.NewCond(&p.mu)
	return p
}

func (p *MockPort) Read(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for !p.closed && p.replies.Len() == 0 {
		p.cond.Wait()
	}
	if p.replies.Len() == 0 {
		return 0, io.EOF
	}
	return p.replies.Read(b)
}

func (p *MockPort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return 0, errPortClosed
	}
	if p.writeErr != nil {
		err := p.writeErr
		p.writeErr = nil
		return 0, err
	}
	if p.Echo != nil {
		p.Echo.Write(b)
	}
	return p.written.Write(b)
}

// Close unblocks readers; buffered replies are still returned before EOF.
func (p *MockPort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	p.cond.Broadcast()
	return nil
}

// AddReply queues controller output for Read.
func (p *MockPort) AddReply(s string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.replies.WriteString(s)
	p.cond.Broadcast()
}

// FailNextWrite makes the next Write return err.
func (p *MockPort) FailNextWrite(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.writeErr = err
}

// Written returns everything written so far.
func (p *MockPort) Written() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.written.String()
}
