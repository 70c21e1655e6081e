package led

import (
	"testing"

	"github.com/pdlsurya/nRF52/softtimer"
	"github.com/pdlsurya/nRF52/ticksrc"
)

type fakePin struct {
	toggles int
}

func (p *fakePin) Toggle() { p.toggles++ }

func newTestIndicator(t *testing.T) (*Indicator, *fakePin) {
	t.Helper()
	src := ticksrc.New(ticksrc.Opts{})
	sched := softtimer.New(src, nil)
	pin := &fakePin{}
	return New(sched, pin), pin
}

func TestNormalBlinkTogglesOncePerCycle(t *testing.T) {
	ind, pin := newTestIndicator(t)
	if err := ind.SetNormalBlink(); err != nil {
		t.Fatalf("SetNormalBlink: %v", err)
	}

	ind.normalBlinkHandler()
	ind.normalBlinkHandler()
	if pin.toggles != 2 {
		t.Fatalf("toggles = %d, want 2", pin.toggles)
	}

	ind.ClearNormalBlink()
	if ind.normal.Running() {
		t.Fatal("normal timer still running after ClearNormalBlink")
	}
}

// TestFastBlinkBurst mirrors fast_blink_timer_core_handler's static
// blink_count: the core timer must toggle exactly six times per burst, then
// stop itself and reset the counter, ready for the next base-timer fire.
func TestFastBlinkBurst(t *testing.T) {
	ind, pin := newTestIndicator(t)

	ind.fastBlinkBaseHandler() // starts fastCore, as the base timer would on fire
	if !ind.fastCore.Running() {
		t.Fatal("fastCore not started by fastBlinkBaseHandler")
	}

	for i := 0; i < burstLength; i++ {
		ind.fastBlinkCoreHandler()
	}
	if pin.toggles != burstLength {
		t.Fatalf("toggles after one burst = %d, want %d", pin.toggles, burstLength)
	}
	if ind.fastCore.Running() {
		t.Fatal("fastCore still running after a full burst")
	}
	if ind.burstCount != 0 {
		t.Fatalf("burstCount = %d, want 0 after burst reset", ind.burstCount)
	}

	// A second base fire must start a fresh, full-length burst.
	ind.fastBlinkBaseHandler()
	for i := 0; i < burstLength; i++ {
		ind.fastBlinkCoreHandler()
	}
	if pin.toggles != 2*burstLength {
		t.Fatalf("toggles after two bursts = %d, want %d", pin.toggles, 2*burstLength)
	}
}

func TestSetFastBlinkStartsBaseOnly(t *testing.T) {
	ind, _ := newTestIndicator(t)
	if err := ind.SetFastBlink(); err != nil {
		t.Fatalf("SetFastBlink: %v", err)
	}
	if !ind.fastBase.Running() {
		t.Fatal("fastBase not running after SetFastBlink")
	}
	if ind.fastCore.Running() {
		t.Fatal("fastCore should not run until the base timer fires")
	}

	ind.ClearFastBlink()
	if ind.fastBase.Running() || ind.fastCore.Running() {
		t.Fatal("timers still running after ClearFastBlink")
	}
}
