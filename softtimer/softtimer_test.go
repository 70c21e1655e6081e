package softtimer

import (
	"testing"

	"github.com/pdlsurya/nRF52/ticksrc"
)

func newTestScheduler() (*ticksrc.Source, *Scheduler) {
	src := ticksrc.New(ticksrc.Opts{})
	sched := New(src, nil)
	return src, sched
}

// mirrors spec.md scenario S1: a 100-tick periodic timer and a 250-tick
// one-shot timer, advanced tick by tick.
func TestPeriodicAndOneShot(t *testing.T) {
	src, sched := newTestScheduler()

	var a, b Node
	var aFires, bFires int
	sched.Create(&a, func() { aFires++ }, Periodic)
	sched.Create(&b, func() { bFires++ }, OneShot)

	if err := sched.Start(&a, 100); err != nil {
		t.Fatal(err)
	}
	if err := sched.Start(&b, 250); err != nil {
		t.Fatal(err)
	}

	src.Advance(260)

	if aFires != 2 {
		t.Errorf("A fired %d times by t=260, want 2 (t=100,200)", aFires)
	}
	if bFires != 1 {
		t.Errorf("B fired %d times by t=260, want 1 (t=250)", bFires)
	}
	if sched.ActiveCount() != 1 {
		t.Errorf("active count after B fired = %d, want 1", sched.ActiveCount())
	}

	src.Advance(240) // total 500
	if aFires != 5 {
		t.Errorf("A fired %d times by t=500, want 5", aFires)
	}
}

func TestLimitReached(t *testing.T) {
	_, sched := newTestScheduler()
	nodes := make([]Node, MaxTimers+1)
	for i := range nodes {
		sched.Create(&nodes[i], func() {}, Periodic)
	}
	for i := 0; i < MaxTimers; i++ {
		if err := sched.Start(&nodes[i], 1000); err != nil {
			t.Fatalf("node %d: unexpected error %v", i, err)
		}
	}
	if err := sched.Start(&nodes[MaxTimers], 1000); err != ErrLimitReached {
		t.Fatalf("expected ErrLimitReached, got %v", err)
	}
}

func TestStartAlreadyRunningIsNoop(t *testing.T) {
	_, sched := newTestScheduler()
	var n Node
	sched.Create(&n, func() {}, Periodic)
	if err := sched.Start(&n, 50); err != nil {
		t.Fatal(err)
	}
	if err := sched.Start(&n, 999); err != nil {
		t.Fatal(err)
	}
	// interval must be unchanged by the second Start call
	if n.interval != 50 {
		t.Fatalf("interval = %d, want 50 (second Start should be a no-op)", n.interval)
	}
}

func TestStopIsIdempotent(t *testing.T) {
	_, sched := newTestScheduler()
	var n Node
	sched.Create(&n, func() {}, Periodic)
	sched.Stop(&n) // never started
	if sched.ActiveCount() != 0 {
		t.Fatal("stopping an inactive node changed active count")
	}
	sched.Start(&n, 100)
	sched.Stop(&n)
	sched.Stop(&n) // idempotent
	if sched.ActiveCount() != 0 {
		t.Fatalf("active count = %d after double stop, want 0", sched.ActiveCount())
	}
}

// A handler that stops itself must fire exactly once.
func TestReentrantStopSelf(t *testing.T) {
	src, sched := newTestScheduler()
	var n Node
	fires := 0
	sched.Create(&n, nil, Periodic)
	handler := func() {
		fires++
		sched.Stop(&n)
	}
	sched.Create(&n, handler, Periodic)
	sched.Start(&n, 10)
	src.Advance(1000)
	if fires != 1 {
		t.Fatalf("self-stopping handler fired %d times, want 1", fires)
	}
	if n.Running() {
		t.Fatal("node still running after self-stop")
	}
}

// A handler that starts another node with an earlier deadline than the
// current horizon causes that node to fire before any other pending timer.
func TestReentrantStartOther(t *testing.T) {
	src, sched := newTestScheduler()
	var trigger, early, late Node
	var order []string

	sched.Create(&early, func() { order = append(order, "early") }, OneShot)
	sched.Create(&late, func() { order = append(order, "late") }, OneShot)
	sched.Create(&trigger, func() {
		order = append(order, "trigger")
		sched.Start(&early, 10) // much earlier than late's remaining horizon
	}, OneShot)

	sched.Start(&late, 500)
	sched.Start(&trigger, 20)

	src.Advance(600)

	if len(order) != 3 || order[0] != "trigger" || order[1] != "early" || order[2] != "late" {
		t.Fatalf("fire order = %v, want [trigger early late]", order)
	}
}

// Running a periodic timer across a full counter wrap must not miss or
// duplicate fires.
func TestWrapSafety(t *testing.T) {
	src, sched := newTestScheduler()
	var n Node
	fires := 0
	sched.Create(&n, func() { fires++ }, Periodic)
	sched.Start(&n, 1000)

	var total ticksrc.Tick
	const span = ticksrc.Tick(1) << 24 // one full counter period, plus change
	for total < span+5000 {
		step := ticksrc.Tick(1000)
		src.Advance(step)
		total += step
	}

	want := int(total / 1000)
	if fires < want-1 || fires > want+1 {
		t.Fatalf("fires = %d across wrap, want approximately %d", fires, want)
	}
}
