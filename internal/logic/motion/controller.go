package motion

import (
	"sync/atomic"
	"time"

	"github.com/lingmulongtai/dvd-motor-show/internal/debug"
	"github.com/lingmulongtai/dvd-motor-show/internal/hw/stepper"
)

// StepsPerRevolution is one full mechanical revolution of the driven
// shaft. It is a property of the physical gear train, not a runtime
// setting.
const StepsPerRevolution = 1536

// DefaultDwell is the pause at the target before returning to base.
const DefaultDwell = 3000 * time.Millisecond

// State identifies the current phase of the show sequence.
type State int

const (
	StateIdle State = iota
	StateOutbound
	StateDwell
	StateReturn
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateOutbound:
		return "outbound"
	case StateDwell:
		return "dwell"
	case StateReturn:
		return "return"
	default:
		return "unknown"
	}
}

// Config holds the sequence parameters and wiring.
type Config struct {
	Dwell  time.Duration    // pause at target; <= 0 means DefaultDwell
	Status func(string)     // status line sink; nil = discard
	Now    func() time.Time // clock source; nil = time.Now
}

// Controller runs the fixed three-phase show choreography: advance one
// revolution, dwell, return to base. It is a state machine advanced
// one step pulse at a time by Tick, so the caller's loop never blocks
// on a move or on the dwell. The choreography is open-loop and has no
// abort path: once started it always runs to completion.
type Controller struct {
	motor *stepper.Stepper
	dwell time.Duration

	state      State
	dwellUntil time.Time

	status func(string)
	now    func() time.Time

	// Mirrors for concurrent readers (web console). The sequence
	// itself only ever runs on the dispatcher goroutine.
	statePub atomic.Int64
	posPub   atomic.Int64
}

// NewController wires the sequence to a motor.
func NewController(m *stepper.Stepper, cfg Config) *Controller {
	dwell := cfg.Dwell
	if dwell <= 0 {
		dwell = DefaultDwell
	}
	status := cfg.Status
	if status == nil {
		status = func(string) {}
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Controller{
		motor:  m,
		dwell:  dwell,
		status: status,
		now:    now,
	}
}

// State returns the current sequence phase.
func (c *Controller) State() State {
	return c.state
}

// Busy reports whether a sequence is in progress.
func (c *Controller) Busy() bool {
	return c.state != StateIdle
}

// Position returns the tracked motor position in steps from base.
func (c *Controller) Position() int64 {
	return c.motor.CurrentPosition()
}

// Snapshot is a read-only view of the sequence for concurrent readers.
type Snapshot struct {
	State    string `json:"state"`
	Position int64  `json:"position"`
	Running  bool   `json:"running"`
}

// Snapshot returns the last published state and position. Safe to call
// from any goroutine.
func (c *Controller) Snapshot() Snapshot {
	st := State(c.statePub.Load())
	return Snapshot{
		State:    st.String(),
		Position: c.posPub.Load(),
		Running:  st != StateIdle,
	}
}

// Start arms the sequence. A start while a sequence is already running
// is ignored; there is no queueing and no abort.
func (c *Controller) Start() {
	if c.state != StateIdle {
		return
	}
	debug.Section("Show sequence")
	_ = c.motor.Energize()
	c.status("Moving to target...")
	c.motor.MoveTo(StepsPerRevolution)
	c.setState(StateOutbound)
}

// Tick advances the sequence by at most one step pulse. It never
// blocks, including during the dwell, which is a timed state rather
// than a sleep. Returns true while the sequence is still running.
func (c *Controller) Tick() bool {
	switch c.state {
	case StateIdle:
		return false

	case StateOutbound:
		if c.runMotor() {
			return true
		}
		c.status("Waiting...")
		debug.Dwell(c.dwell.Milliseconds())
		c.dwellUntil = c.now().Add(c.dwell)
		c.setState(StateDwell)

	case StateDwell:
		if c.now().Before(c.dwellUntil) {
			return true
		}
		c.status("Returning to base...")
		c.motor.MoveTo(0)
		c.setState(StateReturn)

	case StateReturn:
		if c.runMotor() {
			return true
		}
		_ = c.motor.Release()
		c.status("Sequence complete.")
		c.setState(StateIdle)
		return false
	}
	return true
}

func (c *Controller) runMotor() bool {
	moving, err := c.motor.Run()
	if err != nil {
		// Open-loop design: there is no recovery path for a failed
		// line write, so log and keep going.
		debug.Error(err)
	}
	c.posPub.Store(c.motor.CurrentPosition())
	return moving
}

func (c *Controller) setState(s State) {
	c.state = s
	c.statePub.Store(int64(s))
	c.posPub.Store(c.motor.CurrentPosition())
	debug.Verbose("sequence state -> %s", s)
}
