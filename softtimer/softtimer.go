// Package softtimer multiplexes up to sixteen logical one-shot or periodic
// timers onto the single compare channel exposed by package ticksrc.
//
// The hardware compare register has a documented quirk: programming it with
// the counter's current value, or current+1, may not reliably generate an
// event (see ticksrc's doc comment and spec §4.1). This package is the layer
// that knows about that quirk: it never arms less than HMin ticks ahead of
// now, and it treats any deadline already within HMin of the armed value as
// due, so a timer is never silently lost to the quirk.
package softtimer

import (
	"errors"
	"sync"

	"github.com/pdlsurya/nRF52/ticksrc"
)

// HMin is the minimum number of ticks ahead of now a deadline may be armed.
// Deadlines closer than this are simply treated as already due.
const HMin = ticksrc.Tick(3)

// MaxTimers is the maximum number of simultaneously active (running) timer
// nodes the scheduler accepts.
const MaxTimers = 16

// ErrLimitReached is returned by Start when MaxTimers nodes are already
// running.
var ErrLimitReached = errors.New("softtimer: maximum active timer count reached")

// Mode selects whether a Node fires once or repeatedly.
type Mode int

const (
	OneShot Mode = iota
	Periodic
)

// Handler is a timer callback. It runs synchronously from the scheduler's
// dispatch loop (itself driven by the tick source's compare handler) and may
// safely call Start or Stop on any node, including itself, per spec §5.
type Handler func()

// Node is one logical software timer. The caller owns its storage (typically
// as a struct field, never heap-allocated at runtime by this package) and
// must pass the same pointer to Create, Start, and Stop.
type Node struct {
	mode         Mode
	interval     ticksrc.Tick
	nextDeadline ticksrc.Tick
	running      bool
	due          bool
	handler      Handler
	next         *Node
}

// Running reports whether the node is currently active.
func (n *Node) Running() bool { return n.running }

// LogPrintf is the logging hook, nil disables logging.
type LogPrintf func(format string, v ...interface{})

// Scheduler multiplexes Nodes onto one ticksrc.Source.
type Scheduler struct {
	mu    sync.Mutex
	src   *ticksrc.Source
	head  *Node
	count int
	armed ticksrc.Tick
	log   LogPrintf
}

// New creates a Scheduler bound to a tick source. It registers itself as the
// source's compare handler; the source must not already have one.
func New(src *ticksrc.Source, log LogPrintf) *Scheduler {
	if log == nil {
		log = func(string, ...interface{}) {}
	}
	s := &Scheduler{src: src, log: log}
	src.OnCompare(s.dispatch)
	return s
}

// Create initialises a Node. It has no side effect on the scheduler; the
// node is not active until Start is called.
func (s *Scheduler) Create(node *Node, handler Handler, mode Mode) {
	node.mode = mode
	node.handler = handler
	node.running = false
	node.due = false
	node.next = nil
}

// Start activates a node with the given interval. It fails silently (no-op)
// if the node is already running, and returns ErrLimitReached if MaxTimers
// nodes are already active. Safe to call from within a firing Handler.
func (s *Scheduler) Start(node *Node, interval ticksrc.Tick) error {
	s.mu.Lock()

	if node.running {
		s.mu.Unlock()
		return nil
	}
	if s.count == MaxTimers {
		s.mu.Unlock()
		s.log("softtimer: LimitReached, %d timers already active", s.count)
		return ErrLimitReached
	}

	// If the tick source has never been started, the first deadline is
	// relative to tick zero rather than to "now"; Start below also kicks
	// the source off, matching softTimer_start's lazy RTC start.
	node.interval = interval
	if !s.src.Started() {
		node.nextDeadline = interval & ticksrc.Mask
	} else {
		node.nextDeadline = (s.src.Now() + interval) & ticksrc.Mask
	}
	node.running = true
	s.listInsert(node)
	s.count++
	s.log("softtimer: timer started, count=%d", s.count)

	s.recomputeAndArmLocked()
	s.mu.Unlock()

	s.src.Start()
	return nil
}

// Stop deactivates a node. Idempotent; stopping an inactive node is a no-op.
// Safe to call from within a firing Handler, including on the firing node
// itself.
func (s *Scheduler) Stop(node *Node) {
	s.mu.Lock()
	if !node.running {
		s.mu.Unlock()
		return
	}
	node.running = false
	s.listRemove(node)
	s.count--
	s.log("softtimer: timer stopped, count=%d", s.count)
	s.recomputeAndArmLocked()
	s.mu.Unlock()
}

// listInsert appends node to the tail of the active list. Call with mu held.
func (s *Scheduler) listInsert(node *Node) {
	node.next = nil
	if s.head == nil {
		s.head = node
		return
	}
	cur := s.head
	for cur.next != nil {
		cur = cur.next
	}
	cur.next = node
}

// listRemove unlinks node from the active list. Call with mu held.
func (s *Scheduler) listRemove(node *Node) {
	if s.head == node {
		s.head = node.next
		node.next = nil
		return
	}
	cur := s.head
	for cur != nil && cur.next != node {
		cur = cur.next
	}
	if cur != nil {
		cur.next = node.next
		node.next = nil
	}
}

// recomputeAndArmLocked finds the minimum next_deadline over all active
// nodes (by forward modular distance from now, which sidesteps the raw
// counter-wrap renormalisation the reference firmware performs by hand) and
// arms the tick source with it, or with now+HMin if that minimum is closer
// than HMin; dispatch still matches nodes against the minimum deadline.
// Call with mu held.
func (s *Scheduler) recomputeAndArmLocked() {
	if s.head == nil {
		return
	}
	now := s.src.Now()
	best := s.head
	bestDist := best.nextDeadline.Sub(now)
	for n := s.head.next; n != nil; n = n.next {
		d := n.nextDeadline.Sub(now)
		if d < bestDist {
			best = n
			bestDist = d
		}
	}
	s.armed = best.nextDeadline
	hw := s.armed
	if bestDist < HMin {
		hw = (now + HMin) & ticksrc.Mask
	}
	s.src.Arm(hw)
}

// dispatch is the tick source's compare handler. It implements spec §4.2:
// mark every node whose deadline is due (exactly, or within HMin of the
// armed value), fire each due handler once in list order, then rearm.
func (s *Scheduler) dispatch() {
	s.mu.Lock()
	armed := s.armed
	var due []*Node
	for n := s.head; n != nil; n = n.next {
		if n.nextDeadline == armed || n.nextDeadline.Sub(armed) < HMin {
			n.due = true
			due = append(due, n)
		}
	}
	s.mu.Unlock()

	for _, n := range due {
		s.mu.Lock()
		if !n.due {
			// already cleared by a prior iteration (shouldn't happen, each
			// node appears once in due, but a handler could have stopped
			// and restarted it with the same pointer)
			s.mu.Unlock()
			continue
		}
		n.due = false
		handler := n.handler
		s.mu.Unlock()

		handler()

		s.mu.Lock()
		switch {
		case !n.running:
			// handler called Stop on itself (or it was stopped by another
			// handler in this batch); nothing further to do.
		case n.mode == OneShot:
			s.mu.Unlock()
			s.Stop(n)
			s.mu.Lock()
		default:
			n.nextDeadline = (s.src.Now() + n.interval) & ticksrc.Mask
		}
		s.mu.Unlock()
	}

	s.mu.Lock()
	s.recomputeAndArmLocked()
	s.mu.Unlock()
}

// ActiveCount returns the number of currently running nodes.
func (s *Scheduler) ActiveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}
