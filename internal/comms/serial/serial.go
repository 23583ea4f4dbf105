package serial

import (
	"bytes"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/tarm/serial"

	"github.com/lingmulongtai/dvd-motor-show/internal/debug"
)

// Port is the surface the control loop needs from a serial link.
// Implementations: a real port (tarm/serial) and an in-memory Mock
// for development and tests.
type Port interface {
	io.ReadWriteCloser
}

// Config holds serial link configuration.
type Config struct {
	Device      string        // e.g. "/dev/ttyUSB0", "COM3"
	Baud        int           // 0 = 9600, matching the host script
	ReadTimeout time.Duration // 0 = 100ms; must stay short so polling never blocks
}

// Open opens the configured device. The read timeout is mandatory: the
// dispatcher polls one byte per loop iteration and relies on reads
// returning empty instead of blocking.
func Open(cfg Config) (Port, error) {
	if cfg.Device == "" {
		return nil, fmt.Errorf("serial device is required")
	}
	baud := cfg.Baud
	if baud <= 0 {
		baud = 9600
	}
	timeout := cfg.ReadTimeout
	if timeout <= 0 {
		timeout = 100 * time.Millisecond
	}

	debug.Info("Opening serial port %s at %d baud", cfg.Device, baud)

	p, err := serial.OpenPort(&serial.Config{
		Name:        cfg.Device,
		Baud:        baud,
		ReadTimeout: timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", cfg.Device, err)
	}
	return p, nil
}

// Mock is an in-memory port. Reads drain a preloaded input buffer and
// return (0, nil) when it is empty, like a real port hitting its read
// timeout. Writes accumulate and can be inspected with Output.
type Mock struct {
	mu     sync.Mutex
	input  bytes.Buffer
	output bytes.Buffer
	closed bool
}

func NewMock() *Mock {
	return &Mock{}
}

// FeedInput queues host-to-device bytes for subsequent reads.
func (m *Mock) FeedInput(b []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.input.Write(b)
}

// Output returns a copy of everything written to the port so far.
func (m *Mock) Output() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]byte, m.output.Len())
	copy(out, m.output.Bytes())
	return out
}

func (m *Mock) Read(b []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, io.ErrClosedPipe
	}
	if m.input.Len() == 0 {
		return 0, nil // read timeout
	}
	return m.input.Read(b)
}

func (m *Mock) Write(b []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, io.ErrClosedPipe
	}
	return m.output.Write(b)
}

func (m *Mock) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
