// Package button implements the debounced GPIOTE button driver from
// original_source/nrf_button/nrf_button.c: up to eight independently
// registered buttons share one debounce timer, built here on
// softtimer.Scheduler instead of the reference firmware's softTimer module.
// A raw GPIOTE edge interrupt only arms the debounce timer; the per-button
// handlers run once it fires, for whichever buttons have a pending edge at
// that point.
package button

import (
	"errors"

	"github.com/pdlsurya/nRF52/softtimer"
	"github.com/pdlsurya/nRF52/ticksrc"
)

// MaxButtons is the GPIOTE channel count the original reserves (NRF_BUTTON_0..7).
const MaxButtons = 8

// DebounceDelay is BUTTON_DEBOUNCE_DELAY (100ms) in ticksrc ticks.
const DebounceDelay = ticksrc.Tick(3277)

// ErrInvalidID is returned by Register for an out-of-range button ID.
var ErrInvalidID = errors.New("button: invalid button id")

// Handler is button_evt_handler_t.
type Handler func()

// Controller is the GPIOTE/debounce-timer pair (button_detection_evt_handler
// plus the registration table). The caller is responsible for routing raw
// edge notifications to NotifyEdge, e.g. from a GPIO interrupt shim.
type Controller struct {
	sched   *softtimer.Scheduler
	timer   softtimer.Node
	pending [MaxButtons]bool
	queue   [MaxButtons]Handler
}

// New creates a Controller (nrf_button_init).
func New(sched *softtimer.Scheduler) *Controller {
	c := &Controller{sched: sched}
	c.sched.Create(&c.timer, c.debounceHandler, softtimer.OneShot)
	return c
}

// Register binds a handler to a button ID (nrf_button_register, minus the
// GPIOTE channel/pin programming this package has no simulated equivalent
// for).
func (c *Controller) Register(id int, handler Handler) error {
	if id < 0 || id >= MaxButtons {
		return ErrInvalidID
	}
	c.queue[id] = handler
	return nil
}

// NotifyEdge records a pending GPIOTE edge for id and arms the debounce
// timer (GPIOTE_IRQHandler). Re-arming an already-running timer is a no-op,
// matching softTimer_start's behaviour on a running node, so a burst of
// edges within one debounce window collapses into a single settle point.
func (c *Controller) NotifyEdge(id int) error {
	if id < 0 || id >= MaxButtons {
		return ErrInvalidID
	}
	c.pending[id] = true
	return c.sched.Start(&c.timer, DebounceDelay)
}

// debounceHandler is button_detection_evt_handler: dispatch every button
// with a pending edge, in ID order, clearing each as it fires.
func (c *Controller) debounceHandler() {
	for id := 0; id < MaxButtons; id++ {
		if !c.pending[id] {
			continue
		}
		c.pending[id] = false
		if h := c.queue[id]; h != nil {
			h()
		}
	}
}
