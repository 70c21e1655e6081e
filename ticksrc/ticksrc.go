// Package ticksrc drives a single free-running 24-bit hardware counter and its
// one compare channel. It is deliberately the thinnest layer in the stack: all
// it knows how to do is count, arm one compare value, and fire a handler when
// the counter reaches it. The minimum-horizon and counter-wrap bookkeeping
// that makes the counter useful as a scheduler tick lives one layer up, in
// package softtimer.
package ticksrc

import (
	"sync"
	"time"
)

// Width is the width in bits of the hardware counter (the nRF52 RTC's COUNTER
// register is 24 bits wide).
const Width = 24

// Mask wraps a raw count into the counter's 24-bit range.
const Mask Tick = 1<<Width - 1

// Rate is the counter's tick frequency in Hz.
const Rate = 32768

// Tick is a 24-bit unsigned counter value. Arithmetic on Tick is modulo 2^24;
// use Sub to get the signed-forward modular distance between two ticks.
type Tick uint32

// Sub returns the forward modular distance from b to a, i.e. the number of
// ticks the counter must advance from b to reach a. The result is always in
// [0, 2^24).
func (a Tick) Sub(b Tick) Tick {
	return (a - b) & Mask
}

// CompareHandler is invoked from the counter's goroutine when the armed
// compare value is reached. It must not block.
type CompareHandler func()

// LogPrintf is the logging hook used by package ticksrc, following the same
// convention as the rest of this module: nil disables logging.
type LogPrintf func(format string, v ...interface{})

// Source is a free-running 24-bit counter with one compare channel. The zero
// value is not usable; construct one with New.
type Source struct {
	mu        sync.Mutex
	counter   Tick
	armed     Tick
	hasArmed  bool
	running   bool
	onCompare CompareHandler
	log       LogPrintf

	stepPeriod time.Duration // wall-clock duration of one tick, for the free-running goroutine
	stopCh     chan struct{}
}

// Opts configures a Source.
type Opts struct {
	// TickPeriod overrides the wall-clock duration of one counter tick. It
	// defaults to time.Second/Rate (real 32768Hz time). Tests that want to
	// drive the counter deterministically should use Advance instead of a
	// free-running goroutine and can leave this at its zero value.
	TickPeriod time.Duration
	Logger     LogPrintf
}

// New creates a Source. The counter does not run until Start is called.
func New(opts Opts) *Source {
	period := opts.TickPeriod
	if period == 0 {
		period = time.Second / Rate
	}
	s := &Source{
		stepPeriod: period,
		log:        func(string, ...interface{}) {},
	}
	if opts.Logger != nil {
		s.log = opts.Logger
	}
	return s
}

// OnCompare registers the handler invoked when an armed deadline is reached.
// Only one handler may be registered; re-registering replaces it. Must be
// called before Start.
func (s *Source) OnCompare(handler CompareHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onCompare = handler
}

// Now returns the current counter value.
func (s *Source) Now() Tick {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counter
}

// Arm programs the compare channel with a deadline. Arming does not itself
// start the counter; call Start (or let softtimer.Scheduler.Start do it).
// The handler fires only on the tick where the counter equals the deadline,
// so a value that has already passed fires only after the counter wraps
// around to it.
func (s *Source) Arm(deadline Tick) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.armed = deadline & Mask
	s.hasArmed = true
}

// Start begins the free-running counter. It is idempotent.
func (s *Source) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.stopCh = make(chan struct{})
	stop := s.stopCh
	s.mu.Unlock()

	s.log("ticksrc: started, rate=%dHz", Rate)
	go s.run(stop)
}

// Started reports whether Start has been called (and Stop has not since).
func (s *Source) Started() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Stop halts the free-running goroutine. It is intended for host-side tests
// and bench harnesses; production firmware never stops the tick source.
func (s *Source) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stopCh)
	s.mu.Unlock()
}

func (s *Source) run(stop chan struct{}) {
	t := time.NewTicker(s.stepPeriod)
	defer t.Stop()
	for {
		select {
		case <-stop:
			return
		case <-t.C:
			s.tick()
		}
	}
}

// tick advances the counter by one and fires the compare handler if armed.
func (s *Source) tick() {
	s.mu.Lock()
	s.counter = (s.counter + 1) & Mask
	fire := s.hasArmed && s.counter == s.armed
	if fire {
		s.hasArmed = false
	}
	handler := s.onCompare
	s.mu.Unlock()

	if fire && handler != nil {
		handler()
	}
}

// Advance moves the counter forward by n ticks synchronously, firing the
// compare handler at most once (on the tick where the armed value is
// crossed), exactly as the free-running goroutine would. It is meant for
// deterministic tests and for the host-side bench harness in
// peripherals/bench, not for production use alongside Start.
func (s *Source) Advance(n Tick) {
	for i := Tick(0); i < n; i++ {
		s.tick()
	}
}
