// Package qdec implements the rotary quadrature decoder driver from
// original_source/qdec_driver/qdec_driver.c. The real QDEC peripheral raises
// QDEC_IRQHandler on two independent events (SAMPLERDY, which reports the
// direction of the latest single step, and REPORTRDY, which reports the
// accumulated step count every REPORTPER samples); this package keeps that
// same two-event split but exposes it as two methods a simulated or real
// peripheral backend calls directly, in place of the NVIC dispatch.
package qdec

// Direction is qdec_dir_t.
type Direction int

const (
	DirClockwise Direction = iota
	DirAntiClockwise
)

// Handler is qdec_evt_handler_t: called with the new accumulated step count
// whenever it changes, and the most recently observed direction.
type Handler func(acc int16, dir Direction)

// Config is qdec_config_t, minus the GPIO pin selection this package has no
// use for (pin_a/pin_b only matter to qdec_init's register setup, which has
// no simulated equivalent here).
type Config struct {
	SamplePeriod         uint8
	EnableDebounceFilter bool
	Handler              Handler
}

// Decoder is the QDEC_IRQHandler state machine: the running accumulator,
// the last reported value, and the most recently sampled direction.
type Decoder struct {
	cfg Config

	currAcc, prevAcc int16
	direction        Direction
}

// New creates a Decoder (qdec_init, minus the register programming a
// simulated peripheral has no analogue for).
func New(cfg Config) *Decoder {
	return &Decoder{cfg: cfg}
}

// OnSample is the SAMPLERDY half of QDEC_IRQHandler: sample is NRF_QDEC->SAMPLE,
// one of -1, 0 or +1, and updates the decoder's current direction.
func (d *Decoder) OnSample(sample int8) {
	switch sample {
	case -1:
		d.direction = DirAntiClockwise
	case 1:
		d.direction = DirClockwise
	}
}

// OnReport is the REPORTRDY half of QDEC_IRQHandler: acc is NRF_QDEC->ACC/4,
// the accumulated step count since the last report. The handler fires only
// when the accumulator has actually changed since the previous report.
func (d *Decoder) OnReport(acc int16) {
	d.currAcc = acc
	if d.currAcc != d.prevAcc {
		if d.cfg.Handler != nil {
			d.cfg.Handler(d.currAcc, d.direction)
		}
		d.prevAcc = d.currAcc
	}
}
