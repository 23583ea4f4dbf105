package stepper

import (
	"time"

	"github.com/lingmulongtai/dvd-motor-show/internal/debug"
	"github.com/lingmulongtai/dvd-motor-show/internal/hw/gpio"
)

// coilSeq is the half-step energizing sequence for a four-wire motor
// behind a ULN2003-style driver board. Bit i drives coil line i.
var coilSeq = [8]uint8{
	0b0001,
	0b0011,
	0b0010,
	0b0110,
	0b0100,
	0b1100,
	0b1000,
	0b1001,
}

// Config holds the hardware configuration for a stepper motor.
type Config struct {
	Pins [4]int           // coil pins (BCM), in driver board order
	Now  func() time.Time // clock source; nil = time.Now (tests inject a fake)
}

// Stepper drives a four-wire stepper one pulse at a time. It tracks a
// signed step position relative to a base origin of 0 and paces pulses
// through an injected Profile. All methods are non-blocking: Run emits
// at most one pulse per call and returns immediately, so the caller's
// loop stays free for other work between steps.
type Stepper struct {
	gpio    gpio.Driver
	cfg     Config
	profile Profile

	pos    int64
	target int64
	phase  int // index into coilSeq

	interval time.Duration // delay before the next pulse; 0 = due now
	lastStep time.Time
	now      func() time.Time
}

// New creates a stepper on the given driver and profile and claims the
// four coil lines as outputs.
func New(g gpio.Driver, cfg Config, p Profile) *Stepper {
	for _, pin := range cfg.Pins {
		_ = g.SetupOutput(pin)
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Stepper{
		gpio:    g,
		cfg:     cfg,
		profile: p,
		now:     now,
	}
}

// MoveTo arms a move to an absolute step position. The first pulse is
// due on the next Run call; pacing restarts from standstill.
func (s *Stepper) MoveTo(target int64) {
	s.target = target
	s.profile.Reset()
	s.interval = 0
	if s.target != s.pos {
		debug.Move(target, s.target-s.pos)
	}
}

// Move arms a move relative to the current position.
func (s *Stepper) Move(steps int64) {
	s.MoveTo(s.pos + steps)
}

// CurrentPosition returns the tracked step position. Open-loop: this
// is the commanded position, not a measured one.
func (s *Stepper) CurrentPosition() int64 {
	return s.pos
}

// DistanceToGo returns the signed number of steps remaining.
func (s *Stepper) DistanceToGo() int64 {
	return s.target - s.pos
}

// Speed returns the current commanded speed in steps per second.
func (s *Stepper) Speed() float64 {
	return s.profile.Speed()
}

// Run emits at most one step pulse and returns true while the move is
// incomplete. It never blocks: if the next pulse is not yet due it
// returns right away, so achieved speed depends only on wall-clock
// time, not on how often the caller polls. Under-polling produces
// slower motion, never an error.
func (s *Stepper) Run() (bool, error) {
	if s.pos == s.target {
		return false, nil
	}

	now := s.now()
	if s.interval > 0 && now.Sub(s.lastStep) < s.interval {
		return true, nil
	}

	dir := 1
	if s.target < s.pos {
		dir = -1
	}
	s.phase = (s.phase + dir + len(coilSeq)) % len(coilSeq)
	if err := s.writeCoils(coilSeq[s.phase]); err != nil {
		return true, err
	}
	s.pos += int64(dir)
	s.lastStep = now

	remaining := s.target - s.pos
	if remaining < 0 {
		remaining = -remaining
	}
	s.interval = s.profile.NextInterval(remaining)

	return remaining != 0, nil
}

// Energize drives the coil pattern for the current phase so the motor
// holds position.
func (s *Stepper) Energize() error {
	return s.writeCoils(coilSeq[s.phase])
}

// Release drops all four lines. The motor freewheels and the driver
// board stops heating; position tracking is unaffected.
func (s *Stepper) Release() error {
	return s.writeCoils(0)
}

func (s *Stepper) writeCoils(pattern uint8) error {
	for i, pin := range s.cfg.Pins {
		level := gpio.Low
		if pattern&(1<<i) != 0 {
			level = gpio.High
		}
		if err := s.gpio.Write(pin, level); err != nil {
			return err
		}
	}
	return nil
}
