// Package radio presents the 2.4GHz radio peripheral as a small parameterised
// state machine. It is the layer above the bare hardware: it knows the legal
// transitions between Disabled/RxRampUp/RxIdle/Rx/TxRampUp/TxIdle/Tx, gates
// all reconfiguration to Disabled, and blocks the caller on ramp-up and
// end-of-packet the same way the real peripheral's status bits would.
//
// There is no physical radio underneath this package (it runs on a host, not
// an nRF52), so the blocking waits are driven by a Backend implementation
// rather than by polling hardware status registers; see Backend.
package radio

import (
	"errors"
	"sync"

	"periph.io/x/periph/conn/physic"
)

// State is one state of the radio peripheral's state machine.
type State int

const (
	Disabled State = iota
	RxRampUp
	RxIdle
	Rx
	TxRampUp
	TxIdle
	Tx
)

func (s State) String() string {
	switch s {
	case Disabled:
		return "Disabled"
	case RxRampUp:
		return "RxRampUp"
	case RxIdle:
		return "RxIdle"
	case Rx:
		return "Rx"
	case TxRampUp:
		return "TxRampUp"
	case TxIdle:
		return "TxIdle"
	case Tx:
		return "Tx"
	default:
		return "Unknown"
	}
}

// Mode selects which ramp-up path enable() takes.
type Mode int

const (
	ModeRx Mode = iota
	ModeTx
)

// DataRate mirrors radio_data_rate_t.
type DataRate int

const (
	Rate1Mbps DataRate = iota
	Rate2Mbps
)

// Endian mirrors radio_endian_t; ESB payloads are big-endian, BLE payloads
// little-endian (spec §4.3).
type Endian int

const (
	LittleEndian Endian = iota
	BigEndian
)

// ErrNotDisabled is returned by any configuration method called outside the
// Disabled state.
var ErrNotDisabled = errors.New("radio: reconfiguration only permitted in Disabled state")

// LogPrintf follows the module-wide logging convention: nil disables logging.
type LogPrintf func(format string, v ...interface{})

// EventHandler is invoked on end-of-packet, exactly once per RX completion
// (NotifyRxDone); a TX completion in StartTx does not invoke it. It runs with reconfiguration locked until the handler returns (spec §5
// "dispatches are never re-entered").
type EventHandler func()

// Backend abstracts the physical ramp-up/disable/TX/RX primitives a real
// nRF52 RADIO peripheral would provide via status-bit polling. A production
// build backs this with register reads; tests back it with the simulated
// backends in this package (SimBackend, EtherBackend).
type Backend interface {
	// RampUp blocks until the radio reports READY for the given mode.
	RampUp(mode Mode)
	// Disable blocks until the radio reports DISABLED.
	Disable()
	// StartRx begins listening; non-blocking, returns immediately. The
	// backend must call the Radio's NotifyRxDone on end-of-packet.
	StartRx()
	// StartTx transmits the configured packet pointer's payload and blocks
	// until end-of-packet.
	StartTx()
}

// Config is the set of parameters reconfigurable only while Disabled,
// grouped the way radio_driver's individual setters are grouped by the
// callers in original_source (nrf24_init/nrf52_ble_init each call the same
// handful of setters back to back).
type Config struct {
	Frequency    physic.Frequency
	DataRate     DataRate
	AddressWidth uint8 // 2..5 bytes, per logical address
	MaxPayload   uint8
	DynamicPL    bool
	PayloadEnd   Endian
	WhiteningOn  bool
	WhiteningIV  uint8
	CRCLen       uint8
	CRCAdd       uint8
	CRCPoly      uint32
	CRCInit      uint32
}

// Radio is the HAL instance. The zero value is not usable; construct one
// with New.
type Radio struct {
	mu      sync.Mutex
	backend Backend
	log     LogPrintf

	state   State
	cfg     Config
	evt     EventHandler
	payload []byte
	err     error

	prefix [8]byte
	base0  [4]byte
	base1  [4]byte
	rxAddr [8]bool // which of the 8 logical addresses are enabled for RX
	txAddr uint8
	rxMatch uint8 // logical address the last packet matched, mirrors RXMATCH
}

// Opts configures a Radio at construction time.
type Opts struct {
	Backend Backend
	Logger  LogPrintf
}

// New creates a Radio bound to a Backend, initially Disabled.
func New(opts Opts) *Radio {
	r := &Radio{
		backend: opts.Backend,
		log:     func(string, ...interface{}) {},
		state:   Disabled,
	}
	if opts.Logger != nil {
		r.log = opts.Logger
	}
	return r
}

// SetBackend replaces the Backend a Radio drives its primitives through.
// Production code sets this once at construction via Opts; tests use it to
// substitute a recording fake after construction.
func (r *Radio) SetBackend(b Backend) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.backend = b
}

// State returns the current state.
func (r *Radio) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Error returns the persistent fault, if any (spec §7: ramp-up is
// contractually infallible; if it is ever observed to fail, the radio is
// considered faulted).
func (r *Radio) Error() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// Config returns a copy of the radio's current configuration, including any
// in-place changes made by the ungated SetFrequency/SetWhiteningIV (e.g.
// ble.Device's per-cycle channel hop).
func (r *Radio) Config() Config {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cfg
}

// requireDisabled is the guard every Set* method opens with.
func (r *Radio) requireDisabled() error {
	if r.state != Disabled {
		return ErrNotDisabled
	}
	return nil
}

// Configure applies every reconfigurable parameter at once; permitted only
// while Disabled. This mirrors the original firmware's init sequence of
// individual radio_set_* calls, collapsed into one entry point since every
// caller in original_source invokes them back to back with no intervening
// state change.
func (r *Radio) Configure(cfg Config) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.requireDisabled(); err != nil {
		return err
	}
	r.cfg = cfg
	r.log("radio: configured freq=%s rate=%v addrWidth=%d", cfg.Frequency, cfg.DataRate, cfg.AddressWidth)
	return nil
}

// SetAddress programs one logical address (0..7) with a 5-byte on-air
// address: 1 prefix byte plus a 4-byte base shared by addresses 0 and 1..7
// respectively, per radio_set_address. addr[0] is the prefix byte, addr[1:5]
// the base, already in on-air bit order (see ReverseAddress).
func (r *Radio) SetAddress(logical uint8, addr [5]byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.requireDisabled(); err != nil {
		return err
	}
	if logical > 7 {
		return errors.New("radio: logical address out of range 0..7")
	}
	r.prefix[logical] = addr[0]
	if logical == 0 {
		copy(r.base0[:], addr[1:5])
	} else {
		copy(r.base1[:], addr[1:5])
	}
	return nil
}

// SetTxAddress selects which logical address is used as the TX address.
// Unlike the rest of this type's configuration, this one is NOT gated to
// Disabled: original_source/nrf24/nrf24.c's nrf24_set_tx_address writes
// PREFIX/BASE/TXADDRESS unconditionally, every time the link targets a new
// peer, including while the radio is mid-cycle — the mesh router (package
// mesh) depends on retargeting the TX address between sends without a
// disable/re-enable round trip.
func (r *Radio) SetTxAddress(logical uint8) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.txAddr = logical
	return nil
}

// TxAddress returns the logical address most recently selected by
// SetTxAddress.
func (r *Radio) TxAddress() uint8 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.txAddr
}

// SetFrequency retunes the channel, ungated, mirroring
// original_source/radio_driver/radio_driver.c's radio_set_frequency: a bare
// register write with no state guard at all, unlike the rest of Config.
// ble.Device relies on this to hop channels between advertise() calls
// without a disable/reconfigure round trip.
func (r *Radio) SetFrequency(freq physic.Frequency) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cfg.Frequency = freq
}

// SetWhiteningIV reseeds the whitening register, ungated, mirroring
// radio_set_whiteiv — called every channel hop in original_source/
// nrf52_ble/nrf52_ble.c's hop_channel and scan_timer_handler.
func (r *Radio) SetWhiteningIV(iv uint8) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cfg.WhiteningIV = iv
}

// SetTxPhysicalAddress reprograms logical address 0's PREFIX/BASE registers
// with a raw 5-byte on-air address and selects logical 0 as the TX address,
// in one call. This is NOT gated to Disabled: it mirrors
// original_source/radio_driver/radio_driver.c's radio_set_tx_address, which
// calls radio_set_address(addr, 0) unconditionally, every time a caller
// retargets the peer — nrf24_set_tx_address (and, through it,
// esb.Link.SetPeerAddress) depends on this being legal mid-cycle, since the
// mesh router changes its TX target on every send without a disable/
// reconfigure round trip.
func (r *Radio) SetTxPhysicalAddress(addr [5]byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.prefix[0] = addr[0]
	copy(r.base0[:], addr[1:5])
	r.txAddr = 0
}

// TxPhysicalAddress returns the 5-byte on-air address currently selected as
// the TX target (the resolved prefix+base of the logical address SetTxAddress
// or SetTxPhysicalAddress last selected).
func (r *Radio) TxPhysicalAddress() [5]byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.resolvedAddress(r.txAddr)
}

// EnabledRxAddresses returns the resolved 5-byte on-air address of every
// logical address currently enabled for RX, keyed by logical address —
// what a shared medium (see Ether) uses to decide which attached Radios a
// transmission should be delivered to, mirroring how a real RF channel is
// broadcast and then address-filtered independently by each receiver.
func (r *Radio) EnabledRxAddresses() map[uint8][5]byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[uint8][5]byte)
	for logical := uint8(0); logical < 8; logical++ {
		if r.rxAddr[logical] {
			out[logical] = r.resolvedAddress(logical)
		}
	}
	return out
}

// resolvedAddress reconstructs logical address L's 5-byte on-air address
// from the prefix/base registers SetAddress or SetTxPhysicalAddress wrote.
func (r *Radio) resolvedAddress(logical uint8) [5]byte {
	var out [5]byte
	out[0] = r.prefix[logical]
	base := r.base0
	if logical != 0 {
		base = r.base1
	}
	copy(out[1:], base[:])
	return out
}

// EnableRxAddress enables reception on one logical address; EnableRxAddress
// may be called multiple times to listen on several addresses at once, as
// ESB's pipe 0 (TX/ACK) and pipe 1 (peer data) both do.
func (r *Radio) EnableRxAddress(logical uint8, enable bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.requireDisabled(); err != nil {
		return err
	}
	if logical > 7 {
		return errors.New("radio: logical address out of range 0..7")
	}
	r.rxAddr[logical] = enable
	return nil
}

// SetPacketPtr installs the buffer TX reads from and RX writes into. The
// caller owns the slice's lifetime and must not reuse it for another
// in-flight operation.
func (r *Radio) SetPacketPtr(buf []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.requireDisabled(); err != nil {
		return err
	}
	r.payload = buf
	return nil
}

// SetEventHandler installs the end-of-packet callback.
func (r *Radio) SetEventHandler(h EventHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.evt = h
}

// RxMatch returns the logical address the most recently completed RX
// matched, mirroring radio_get_received_address (NRF_RADIO->RXMATCH).
func (r *Radio) RxMatch() uint8 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rxMatch
}

// Enable transitions the radio to {RxIdle,TxIdle} via {RxRampUp,TxRampUp},
// blocking on the backend's ramp-up-ready signal. Mirroring radio_set_mode
// exactly, it first forces a disable from whatever state the radio is
// currently in (a no-op if already Disabled) and only then ramps — so
// Enable is legal from any state, not just Disabled; it is the mode-switch
// primitive the ESB link uses to flip between transmitting and listening
// for an ACK every send. By contract ramp-up never fails; if the backend's
// RampUp call returns but the radio is somehow not ready, that is a fault
// outside this HAL's remit (spec §7).
func (r *Radio) Enable(mode Mode) error {
	r.mu.Lock()
	notDisabled := r.state != Disabled
	backend := r.backend
	r.mu.Unlock()

	if notDisabled {
		backend.Disable()
		r.mu.Lock()
		r.state = Disabled
		r.mu.Unlock()
	}

	r.mu.Lock()
	if mode == ModeRx {
		r.state = RxRampUp
	} else {
		r.state = TxRampUp
	}
	r.mu.Unlock()

	backend.RampUp(mode)

	r.mu.Lock()
	if mode == ModeRx {
		r.state = RxIdle
	} else {
		r.state = TxIdle
	}
	r.mu.Unlock()
	r.log("radio: ramped up to %v", mode)
	return nil
}

// Disable transitions back to Disabled from any state, blocking on the
// backend's disable-ready signal.
func (r *Radio) Disable() {
	r.mu.Lock()
	backend := r.backend
	r.mu.Unlock()

	backend.Disable()

	r.mu.Lock()
	r.state = Disabled
	r.mu.Unlock()
}

// StartRx begins listening. Non-blocking; only legal from RxIdle, a no-op
// otherwise (radio_start_rx silently ignores calls outside RX_IDLE).
func (r *Radio) StartRx() {
	r.mu.Lock()
	if r.state != RxIdle {
		r.mu.Unlock()
		return
	}
	r.state = Rx
	backend := r.backend
	r.mu.Unlock()

	backend.StartRx()
}

// StartTx transmits the configured packet pointer and blocks until
// end-of-packet, only legal from TxIdle (radio_start_tx). Unlike StartRx's
// completion, a TX completion is consumed synchronously here and does not
// invoke the event handler — in the reference firmware radio_start_tx polls
// and clears EVENTS_END directly, never routing through the radio IRQ;
// only an asynchronous RX completion (NotifyRxDone) does that.
func (r *Radio) StartTx() {
	r.mu.Lock()
	if r.state != TxIdle {
		r.mu.Unlock()
		return
	}
	r.state = Tx
	backend := r.backend
	r.mu.Unlock()

	backend.StartTx()

	r.mu.Lock()
	r.state = TxIdle
	r.mu.Unlock()
}

// NotifyRxDone is called by a Backend when an RX packet completes; it
// records which logical address matched and invokes the event handler, then
// returns the radio to RxIdle exactly like the TX path returns to TxIdle
// after TASKS_DISABLE.
func (r *Radio) NotifyRxDone(matchedAddress uint8) {
	r.mu.Lock()
	r.rxMatch = matchedAddress
	r.state = RxIdle
	handler := r.evt
	r.mu.Unlock()

	if handler != nil {
		handler()
	}
}

// Payload returns the buffer installed by SetPacketPtr, for a Backend or
// caller to read received bytes from or write bytes to transmit into.
func (r *Radio) Payload() []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.payload
}

// ReverseAddress reverses the bit order within each byte of a 5-byte logical
// address: the radio shifts addresses out MSB-first but logical addresses
// are conventionally written LSB-first (spec §4.3; reverse_bit_order in
// original_source/nrf24/nrf24.c, applied per-byte to every address byte).
func ReverseAddress(addr [5]byte) [5]byte {
	var out [5]byte
	for i, b := range addr {
		out[i] = reverseBits(b)
	}
	return out
}

func reverseBits(b byte) byte {
	var out byte
	for i := 0; i < 8; i++ {
		if b&(1<<i) != 0 {
			out |= 1 << (7 - i)
		}
	}
	return out
}
