package stepper

import (
	"fmt"
	"math"
	"time"
)

// Profile computes the pacing of successive step pulses for a move.
// NextInterval is called once per emitted step with the remaining
// distance and returns the delay before the next pulse is due.
type Profile interface {
	// Reset prepares the profile for a new move.
	Reset()
	// NextInterval returns the delay before the next step, given the
	// number of steps still to go after the one just taken.
	NextInterval(stepsToGo int64) time.Duration
	// Speed returns the current commanded speed in steps per second.
	Speed() float64
}

// Trapezoid ramps the speed up at a constant acceleration, holds it at
// the configured maximum, and ramps it back down so the motor stops
// exactly at the target. Short moves never reach the maximum and
// produce a triangular profile instead.
type Trapezoid struct {
	maxSpeed float64 // steps/s ceiling
	accel    float64 // steps/s² ramp rate
	speed    float64 // current commanded speed, steps/s
}

// NewTrapezoid creates an accelerating profile. Zero or negative
// values are rejected up front: they would mean no motion or an
// undefined ramp direction.
func NewTrapezoid(maxSpeed, accel float64) (*Trapezoid, error) {
	if maxSpeed <= 0 || math.IsNaN(maxSpeed) || math.IsInf(maxSpeed, 0) {
		return nil, fmt.Errorf("max speed must be > 0, got %g", maxSpeed)
	}
	if accel <= 0 || math.IsNaN(accel) || math.IsInf(accel, 0) {
		return nil, fmt.Errorf("acceleration must be > 0, got %g", accel)
	}
	return &Trapezoid{maxSpeed: maxSpeed, accel: accel}, nil
}

func (p *Trapezoid) Reset() {
	p.speed = 0
}

// NextInterval updates the speed for one step of travel using
// v² = v₀² ± 2a·d with d = 1 step, then converts it to a delay.
// The profile accelerates while the remaining distance exceeds the
// stopping distance at the current speed, and decelerates otherwise.
func (p *Trapezoid) NextInterval(stepsToGo int64) time.Duration {
	if stepsToGo <= 0 {
		p.speed = 0
		return 0
	}

	v2 := p.speed * p.speed
	stopDist := v2 / (2 * p.accel)
	if float64(stepsToGo) > stopDist {
		v2 += 2 * p.accel
		if max2 := p.maxSpeed * p.maxSpeed; v2 > max2 {
			v2 = max2
		}
	} else {
		// Ride the braking parabola v² = 2a·d down: the ramp is an
		// exact mirror of the start and reaches zero at the target.
		v2 = 2 * p.accel * float64(stepsToGo)
	}

	p.speed = math.Sqrt(v2)
	return time.Duration(float64(time.Second) / p.speed)
}

func (p *Trapezoid) Speed() float64 {
	return p.speed
}

// MaxSpeed returns the configured ceiling in steps per second.
func (p *Trapezoid) MaxSpeed() float64 {
	return p.maxSpeed
}

// Constant paces every step at a fixed speed with no ramp. This is the
// simple fixed-speed mode; it trades smooth starts for simplicity and
// suits light loads that cannot skip steps.
type Constant struct {
	speed    float64
	interval time.Duration
	moving   bool
}

// NewConstant creates a fixed-speed profile running at speed steps/s.
func NewConstant(speed float64) (*Constant, error) {
	if speed <= 0 || math.IsNaN(speed) || math.IsInf(speed, 0) {
		return nil, fmt.Errorf("speed must be > 0, got %g", speed)
	}
	return &Constant{
		speed:    speed,
		interval: time.Duration(float64(time.Second) / speed),
	}, nil
}

func (p *Constant) Reset() {
	p.moving = false
}

func (p *Constant) NextInterval(stepsToGo int64) time.Duration {
	if stepsToGo <= 0 {
		p.moving = false
		return 0
	}
	p.moving = true
	return p.interval
}

func (p *Constant) Speed() float64 {
	if !p.moving {
		return 0
	}
	return p.speed
}
