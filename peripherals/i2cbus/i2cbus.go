// Package i2cbus implements the TWI transmit driver from
// original_source/nrf_i2c/nrf_i2c.c on top of a Transactor interface in the
// style of this repo's own shim.go SPI shim, rather than against raw
// NRF_TWI0 registers: i2c_tx's byte-at-a-time polling loop becomes one
// Transactor.Write call, and SPI0_TWI0_IRQHandler's completion callback
// becomes a direct call to the registered Handler once that write returns.
package i2cbus

import "errors"

// ErrTx is returned by Write when the underlying Transactor reports a bus
// error (NRF_TWI0->EVENTS_ERROR in i2c_tx's polling loop).
var ErrTx = errors.New("i2cbus: transaction failed")

// Handler is i2c_evt_handler_t, invoked once a Write completes
// (SPI0_TWI0_IRQHandler, fired from TWI's STOPPED/LASTTX event).
type Handler func()

// Transactor is the underlying bus transport: a single addressed write of
// len(data) bytes, returning false on a bus error exactly like i2c_tx's
// return value.
type Transactor interface {
	Write(addr uint8, data []byte) bool
}

// Config is i2c_config_t.
type Config struct {
	SCLPin    uint8
	SDAPin    uint8
	Frequency uint32
}

// Bus is i2c_instance_t: the transport plus the one registered completion
// handler (the reference firmware supports exactly one, set at i2c_init
// time, shared by every transaction on the instance).
type Bus struct {
	cfg  Config
	xact Transactor
	evt  Handler
}

// New creates a Bus bound to a Transactor (i2c_init, minus the TWI
// peripheral register programming a non-NRF transport has no use for).
func New(cfg Config, xact Transactor, evtHandler Handler) *Bus {
	return &Bus{cfg: cfg, xact: xact, evt: evtHandler}
}

// Write performs one addressed transmit (i2c_tx) and, on completion, calls
// the registered Handler exactly as SPI0_TWI0_IRQHandler does. Returns
// ErrTx if the Transactor reports a bus error.
func (b *Bus) Write(addr uint8, data []byte) error {
	ok := b.xact.Write(addr, data)
	if b.evt != nil {
		b.evt()
	}
	if !ok {
		return ErrTx
	}
	return nil
}
