// Package led implements the two status-indication patterns from
// original_source/led_indication/led_indication.c on top of this repo's own
// softtimer.Scheduler, in place of the reference firmware's hand-rolled
// timer module: a slow, single-timer blink for "normal" status, and a
// bursty two-timer blink (a 1s base timer that triggers a six-toggle, 80ms
// burst on a second timer) for "fast"/alert status.
package led

import (
	"github.com/pdlsurya/nRF52/softtimer"
	"github.com/pdlsurya/nRF52/ticksrc"
)

// NormalInterval, FastBlinkBaseInterval and FastBlinkCoreInterval mirror
// NORMAL_BLINK_INTERVAL/FAST_BLINK_BASE_INTERVAL/FAST_BLINK_CORE_INTERVAL
// (1000ms/1000ms/80ms), expressed in ticksrc ticks at the 32768Hz tick rate.
const (
	NormalInterval        = ticksrc.Tick(32768)
	FastBlinkBaseInterval = ticksrc.Tick(32768)
	FastBlinkCoreInterval = ticksrc.Tick(2621)
)

// GPIO is the single pin operation this package needs: toggling the
// indicator LED (bsp_board_led_invert).
type GPIO interface {
	Toggle()
}

// burstLength is the fixed number of core-timer toggles per fast-blink
// burst (blink_count == 6 in fast_blink_timer_core_handler).
const burstLength = 6

// Indicator drives one status LED through the two blink patterns. At most
// one pattern is meant to be active at a time, by the same caller-level
// convention as the original's led_indication_set/clear.
type Indicator struct {
	led GPIO
	sched *softtimer.Scheduler

	normal softtimer.Node

	fastBase softtimer.Node
	fastCore softtimer.Node
	burstCount int
}

// New creates an Indicator. Both timer patterns are created but not started;
// call SetNormalBlink/SetFastBlink to start one.
func New(sched *softtimer.Scheduler, pin GPIO) *Indicator {
	ind := &Indicator{led: pin, sched: sched}
	sched.Create(&ind.normal, ind.normalBlinkHandler, softtimer.Periodic)
	sched.Create(&ind.fastBase, ind.fastBlinkBaseHandler, softtimer.Periodic)
	sched.Create(&ind.fastCore, ind.fastBlinkCoreHandler, softtimer.Periodic)
	return ind
}

func (ind *Indicator) normalBlinkHandler() {
	ind.led.Toggle()
}

func (ind *Indicator) fastBlinkBaseHandler() {
	ind.sched.Start(&ind.fastCore, FastBlinkCoreInterval)
}

func (ind *Indicator) fastBlinkCoreHandler() {
	ind.led.Toggle()
	ind.burstCount++
	if ind.burstCount == burstLength {
		ind.sched.Stop(&ind.fastCore)
		ind.burstCount = 0
	}
}

// SetNormalBlink starts the slow periodic blink (led_indication_set(NORMAL_BLINK)).
func (ind *Indicator) SetNormalBlink() error {
	return ind.sched.Start(&ind.normal, NormalInterval)
}

// ClearNormalBlink stops it (led_indication_clear(NORMAL_BLINK)).
func (ind *Indicator) ClearNormalBlink() {
	ind.sched.Stop(&ind.normal)
}

// SetFastBlink starts the bursty fast-blink pattern
// (led_indication_set(FAST_BLINK)).
func (ind *Indicator) SetFastBlink() error {
	return ind.sched.Start(&ind.fastBase, FastBlinkBaseInterval)
}

// ClearFastBlink stops both of its timers
// (led_indication_clear(FAST_BLINK)), resetting the burst counter.
func (ind *Indicator) ClearFastBlink() {
	ind.sched.Stop(&ind.fastBase)
	ind.sched.Stop(&ind.fastCore)
	ind.burstCount = 0
}
