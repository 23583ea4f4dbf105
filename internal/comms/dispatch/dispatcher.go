package dispatch

import (
	"context"
	"io"
	"sync/atomic"

	"github.com/lingmulongtai/dvd-motor-show/internal/comms/serial"
	"github.com/lingmulongtai/dvd-motor-show/internal/debug"
	"github.com/lingmulongtai/dvd-motor-show/internal/logic/motion"
)

// CommandRun is the single recognized control byte. Every other byte
// on the wire is silently discarded; there is no framing and no
// checksum on this single local trusted link.
const CommandRun = 'M'

// Dispatcher owns the top-level control loop: poll the serial input
// for a command byte when idle, and tick the running sequence one step
// pulse per iteration otherwise. While a sequence runs the command
// stream is not read, so a byte arriving mid-sequence never triggers
// anything.
type Dispatcher struct {
	port   serial.Port
	ctrl   *motion.Controller
	status func(string)

	trigger atomic.Bool // out-of-band start request (web console)
	buf     [1]byte
}

// New wires a dispatcher to its port and sequence controller. status
// receives the human-readable lines the host can read back; nil
// discards them.
func New(port serial.Port, ctrl *motion.Controller, status func(string)) *Dispatcher {
	if status == nil {
		status = func(string) {}
	}
	return &Dispatcher{
		port:   port,
		ctrl:   ctrl,
		status: status,
	}
}

// Trigger requests a sequence start from outside the loop. It reports
// whether the request was accepted; a trigger while a sequence is
// running is refused, mirroring the serial behavior.
func (d *Dispatcher) Trigger() bool {
	if d.ctrl.Busy() || d.trigger.Load() {
		return false
	}
	d.trigger.Store(true)
	return true
}

// Loop runs the control loop until ctx is cancelled. One iteration is
// either a single non-blocking sequence tick or a single bounded port
// poll, never both, so the loop's latency stays at one step interval
// or one read timeout.
func (d *Dispatcher) Loop(ctx context.Context) error {
	debug.Info("Control loop running, waiting for %q", byte(CommandRun))
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if d.ctrl.Busy() {
			if !d.ctrl.Tick() {
				debug.Live("Sequence finished, resuming command polling")
			}
			continue
		}

		if d.trigger.Swap(false) {
			d.start()
			continue
		}

		d.poll()
	}
}

// poll reads at most one byte. The port's read timeout bounds the
// wait; an empty read is the normal idle case, not an error.
func (d *Dispatcher) poll() {
	n, err := d.port.Read(d.buf[:])
	if err != nil && err != io.EOF {
		debug.Error(err)
		return
	}
	if n == 0 {
		return
	}

	b := d.buf[0]
	if b != CommandRun {
		debug.Trace("ignoring serial byte %q", b)
		return
	}

	debug.Command(b)
	d.start()
}

func (d *Dispatcher) start() {
	d.status("Command received, starting sequence")
	d.ctrl.Start()
}
