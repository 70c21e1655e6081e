// Package pwmled implements the duty-cycle-controlled PWM LED driver from
// original_source/pwm_led/pwm_led.c: a single duty-cycle setting, mapped
// from a 0-100 percentage onto the PWM peripheral's 15-bit (0-32767)
// counter top, drives up to three gang-wired output pins in lockstep, since
// the original wires PWM1's three channels to the same sequence value
// (pwm_seq0).
package pwmled

// CounterTop is NRF_PWM1->COUNTERTOP (32767 in pwm_led_init): the duty-cycle
// map's upper bound.
const CounterTop = 32767

// PWM is the single control register this package drives: the sequence
// value loaded into the peripheral's compare buffer (NRF_PWM1->SEQ[0] plus
// TASKS_SEQSTART[0]).
type PWM interface {
	SetDuty(value uint16)
}

// Driver is the three-pin PWM LED (pwm_led_init's three PSEL.OUT channels,
// all driven from one sequence value).
type Driver struct {
	pwm PWM
}

// New creates a Driver bound to a PWM backend (pwm_led_init, minus the
// NRF_PWM1 peripheral register setup a simulated/non-nRF PWM backend has no
// use for).
func New(pwm PWM) *Driver {
	return &Driver{pwm: pwm}
}

// SetDutyCycle maps a 0-100 percentage onto the counter range and loads it
// (pwm_led_control: map(duty_cycle, 0, 100, 0, 32767) then
// TASKS_SEQSTART[0]). Values outside [0,100] are clamped.
func (d *Driver) SetDutyCycle(percent int) {
	switch {
	case percent < 0:
		percent = 0
	case percent > 100:
		percent = 100
	}
	value := uint16(percent * CounterTop / 100)
	d.pwm.SetDuty(value)
}
