package motion

import (
	"testing"
	"time"

	"github.com/lingmulongtai/dvd-motor-show/internal/hw/gpio"
	"github.com/lingmulongtai/dvd-motor-show/internal/hw/stepper"
)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time {
	return c.t
}

func (c *fakeClock) advance(d time.Duration) {
	c.t = c.t.Add(d)
}

type testRig struct {
	ctrl  *Controller
	motor *stepper.Stepper
	clk   *fakeClock
	lines []string
	at    []time.Time // fake time at which each line was emitted
}

func newTestRig(t *testing.T, dwell time.Duration) *testRig {
	t.Helper()
	clk := &fakeClock{t: time.Unix(0, 0)}
	profile, err := stepper.NewTrapezoid(400, 200)
	if err != nil {
		t.Fatal(err)
	}
	motor := stepper.New(&gpio.MockDriver{}, stepper.Config{
		Pins: [4]int{1, 2, 3, 4},
		Now:  clk.now,
	}, profile)

	rig := &testRig{motor: motor, clk: clk}
	rig.ctrl = NewController(motor, Config{
		Dwell: dwell,
		Now:   clk.now,
		Status: func(line string) {
			rig.lines = append(rig.lines, line)
			rig.at = append(rig.at, clk.t)
		},
	})
	return rig
}

// runSequence drives the controller to completion, advancing the fake
// clock a millisecond per tick the way a busy outer loop would.
func (r *testRig) runSequence(t *testing.T) {
	t.Helper()
	r.ctrl.Start()
	for guard := 0; guard < 50_000_000; guard++ {
		if !r.ctrl.Tick() {
			return
		}
		r.clk.advance(time.Millisecond)
	}
	t.Fatal("sequence did not complete")
}

func (r *testRig) timeOf(t *testing.T, line string) time.Time {
	t.Helper()
	for i, l := range r.lines {
		if l == line {
			return r.at[i]
		}
	}
	t.Fatalf("status line %q was never emitted (got %v)", line, r.lines)
	return time.Time{}
}

func TestController_SequenceReturnsToBase(t *testing.T) {
	rig := newTestRig(t, 3000*time.Millisecond)
	rig.runSequence(t)

	if got := rig.ctrl.Position(); got != 0 {
		t.Errorf("final position = %d, want exactly 0", got)
	}
	if rig.ctrl.Busy() {
		t.Error("controller should be idle after the sequence")
	}
	if got := rig.motor.Speed(); got != 0 {
		t.Errorf("final speed = %g, want 0", got)
	}
}

func TestController_StatusLineOrder(t *testing.T) {
	rig := newTestRig(t, 100*time.Millisecond)
	rig.runSequence(t)

	want := []string{
		"Moving to target...",
		"Waiting...",
		"Returning to base...",
		"Sequence complete.",
	}
	if len(rig.lines) != len(want) {
		t.Fatalf("status lines = %v, want %v", rig.lines, want)
	}
	for i := range want {
		if rig.lines[i] != want[i] {
			t.Errorf("line %d = %q, want %q", i, rig.lines[i], want[i])
		}
	}
}

func TestController_ReachesTargetBeforeReturning(t *testing.T) {
	rig := newTestRig(t, 100*time.Millisecond)

	rig.ctrl.Start()
	reachedTarget := false
	for guard := 0; guard < 50_000_000 && rig.ctrl.Tick(); guard++ {
		if rig.ctrl.State() == StateDwell && rig.ctrl.Position() == StepsPerRevolution {
			reachedTarget = true
		}
		rig.clk.advance(time.Millisecond)
	}

	if !reachedTarget {
		t.Errorf("dwell should happen at exactly %d steps", int(StepsPerRevolution))
	}
}

func TestController_DwellDuration(t *testing.T) {
	const dwell = 3000 * time.Millisecond
	rig := newTestRig(t, dwell)
	rig.runSequence(t)

	start := rig.timeOf(t, "Waiting...")
	end := rig.timeOf(t, "Returning to base...")
	elapsed := end.Sub(start)

	// One tick of jitter is inherent to the polling loop.
	if elapsed < dwell || elapsed > dwell+10*time.Millisecond {
		t.Errorf("dwell lasted %v, want %v (+ loop jitter)", elapsed, dwell)
	}
}

func TestController_StartWhileRunningIsIgnored(t *testing.T) {
	rig := newTestRig(t, 50*time.Millisecond)

	rig.ctrl.Start()
	rig.ctrl.Start() // mid-sequence start must not restart or queue
	for guard := 0; guard < 50_000_000 && rig.ctrl.Tick(); guard++ {
		rig.clk.advance(time.Millisecond)
	}

	count := 0
	for _, l := range rig.lines {
		if l == "Moving to target..." {
			count++
		}
	}
	if count != 1 {
		t.Errorf("outbound phase started %d times, want 1", count)
	}
}

func TestController_SequenceIsRepeatable(t *testing.T) {
	rig := newTestRig(t, 20*time.Millisecond)

	for i := 0; i < 3; i++ {
		rig.runSequence(t)
		if got := rig.ctrl.Position(); got != 0 {
			t.Fatalf("run %d: final position = %d, want 0", i, got)
		}
	}
}

func TestController_TickWhenIdle(t *testing.T) {
	rig := newTestRig(t, 20*time.Millisecond)

	if rig.ctrl.Tick() {
		t.Error("Tick on an idle controller should report not running")
	}
	if got := rig.ctrl.State(); got != StateIdle {
		t.Errorf("state = %v, want idle", got)
	}
}

func TestController_Snapshot(t *testing.T) {
	rig := newTestRig(t, 20*time.Millisecond)

	snap := rig.ctrl.Snapshot()
	if snap.Running || snap.State != "idle" || snap.Position != 0 {
		t.Errorf("idle snapshot = %+v", snap)
	}

	rig.ctrl.Start()
	snap = rig.ctrl.Snapshot()
	if !snap.Running || snap.State != "outbound" {
		t.Errorf("running snapshot = %+v", snap)
	}

	rig.runSequence(t) // Start already armed; runs to completion
	snap = rig.ctrl.Snapshot()
	if snap.Running || snap.Position != 0 {
		t.Errorf("final snapshot = %+v", snap)
	}
}

func TestState_String(t *testing.T) {
	cases := map[State]string{
		StateIdle:     "idle",
		StateOutbound: "outbound",
		StateDwell:    "dwell",
		StateReturn:   "return",
		State(99):     "unknown",
	}
	for state, want := range cases {
		if got := state.String(); got != want {
			t.Errorf("State(%d).String() = %q, want %q", int(state), got, want)
		}
	}
}
