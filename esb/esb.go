// Package esb implements the Enhanced ShockBurst link (spec §4.4), a
// proprietary packet format with a 2-bit PID sequence number, an optional
// NO_ACK flag, a bounded TX FIFO, and timer-driven auto-retransmit/ACK —
// grounded on original_source/nrf24/nrf24.c. It is built directly on
// package radio (the physical layer) and package softtimer (the retransmit
// clock).
//
// Send path: Send pushes a packet onto the TX FIFO; if the FIFO was empty
// the dispatch loop starts immediately, otherwise the packet waits its turn.
// Dispatch transmits, then switches the radio to listen for a zero-length
// ACK and arms a 1ms repeating soft timer; the timer retransmits on every
// tick an ACK hasn't arrived, up to MaxRetries times, after which it gives
// up and reports TxFailed.
//
// Receive path: with ESB enabled, an incoming packet on the peer pipe is
// ACKed unconditionally and, if its PID differs from the last one seen,
// delivered via DataReady; a repeated PID means the peer's previous ACK was
// lost and is delivered only once (Duplicate suppression, spec Testable
// Property #6). The non-ESB variant never ACKs and delivers every packet.
package esb

import (
	"errors"
	"sync"

	"github.com/pdlsurya/nRF52/event"
	"github.com/pdlsurya/nRF52/radio"
	"github.com/pdlsurya/nRF52/softtimer"
	"github.com/pdlsurya/nRF52/ticksrc"
)

// Event IDs published on the NRF24 event group (spec §6).
const (
	TxSuccess event.ID = iota
	TxFailed
	DataReady
	AckSent
	InvalidOperation
)

// FIFODepth is the bounded TX FIFO's capacity (N_TX in spec §8 Testable
// Property #4). The reference firmware's NRF24_TX_FIFO_MAX_SIZE is sized
// for its abundant on-chip RAM (1024); a bounded, small depth is what the
// spec's FIFO-bound property actually exercises, so this module uses a
// depth that makes "push past capacity" reachable in a unit test.
const FIFODepth = 16

// MaxRetries is the maximum number of retransmissions before giving up
// (MAX_RETRIES in nrf24.c).
const MaxRetries = 15

// RetransmitPeriod is T_retx's period (AUTO_RETRANSMIT_DELAY, 1ms).
const RetransmitPeriod = ticksrc.Tick(32) // ~1ms at 32768Hz, rounded to a tick count

// ErrInvalidOperation mirrors the InvalidOperation event, also returned
// synchronously from Send for callers that prefer an error return.
var ErrInvalidOperation = errors.New("esb: send attempted outside TX mode")

// Mode is the link's own current direction, independent of the radio HAL's
// state machine — mirrors nrf24_mode_t. Unlike the radio's own
// Tx/TxIdle/Rx/RxIdle, this tracks which logical role (sender or receiver)
// the application has put the link in; SetMode is how the application (the
// mesh router, in this repo) switches it back to RX after a TX completes.
type Mode int

const (
	ModeRx Mode = iota
	ModeTx
)

// packet is nrf24_packet_t: a PID/NO_ACK header plus the static 32-byte
// payload. With ESB compiled in, S0 carries the PID in its low 2 bits (the
// reference firmware's PID byte also folds in a 6-bit length field per the
// on-air S0 layout in spec §4.3/§6; this struct keeps payload length
// implicit at 32 bytes, matching nrf24_set_pl_size(32)).
type packet struct {
	pid   uint8
	noAck bool
	data  [32]byte
}

// DataReadyHandler receives a delivered ESB payload.
type DataReadyHandler func(payload []byte)

// LogPrintf follows the module-wide convention.
type LogPrintf func(format string, v ...interface{})

// Link is one ESB endpoint: one radio, one retransmit timer, one bounded TX
// FIFO. ESBEnabled selects between the PID/retry variant and the non-ESB
// variant (spec §4.4 "Non-ESB variant": no PID, no retransmit, immediate
// TxSuccess).
type Link struct {
	mu sync.Mutex

	radio *radio.Radio
	sched *softtimer.Scheduler
	retx  softtimer.Node

	esbEnabled bool
	mode       Mode
	seq        uint8 // pid generator for outgoing packets, 2 bits, wraps mod 4
	prevPID    uint8 // last delivered PID low 2 bits; 4 is "never seen" (prev_pid=4 in nrf24.c)

	fifo       [FIFODepth]packet
	writeIndex int
	readIndex  int
	count      int

	retryCount int
	current    packet

	onDataReady DataReadyHandler
	events      *event.Group
	log         LogPrintf
}

// Opts configures a Link.
type Opts struct {
	Radio      *radio.Radio
	Scheduler  *softtimer.Scheduler
	ESBEnabled bool // false selects the non-ESB variant
	Events     *event.Group
	OnDataReady DataReadyHandler
	Logger     LogPrintf
}

// New creates a Link bound to a radio and soft-timer scheduler, and
// registers the radio's end-of-packet handler (nrf24_set_evt_handler /
// radio_set_evt_handler(radio_evnt_handler)).
func New(opts Opts) *Link {
	log := opts.Logger
	if log == nil {
		log = func(string, ...interface{}) {}
	}
	l := &Link{
		radio:       opts.Radio,
		sched:       opts.Scheduler,
		esbEnabled:  opts.ESBEnabled,
		prevPID:     4,
		onDataReady: opts.OnDataReady,
		events:      opts.Events,
		log:         log,
	}
	l.sched.Create(&l.retx, l.onRetransmitTick, softtimer.Periodic)
	opts.Radio.SetEventHandler(l.onRadioEvent)
	return l
}

// OnDataReady registers (or replaces) the delivered-payload callback.
func (l *Link) OnDataReady(h DataReadyHandler) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onDataReady = h
}

// SetMode switches the link's own direction (nrf24_set_mode). Switching to
// RX reconfigures the radio's packet pointer and starts listening;
// switching to TX only records the mode — sending happens via Send.
func (l *Link) SetMode(mode Mode) {
	l.mu.Lock()
	l.mode = mode
	l.mu.Unlock()
	if mode == ModeRx {
		l.radio.Enable(radio.ModeRx)
		l.radio.StartRx()
	}
}

// SetPeerAddress points the radio's TX address at a peer's physical
// address, bit-reversed per byte and written directly into logical address
// 0's PREFIX/BASE registers, exactly as nrf24_set_tx_address does (not
// gated to Disabled — see radio.SetTxPhysicalAddress). This is what lets
// mesh.Router retarget the next hop on every send.
func (l *Link) SetPeerAddress(addr [5]byte) {
	l.radio.SetTxPhysicalAddress(radio.ReverseAddress(addr))
}

// ConfigureRxAddress binds addr (on-air bit order, see ReverseAddress) to
// logical RX address pipe and enables it, mirroring
// original_source/Network/Network.c's network_init, which calls
// nrf24_set_rx_address(node_physical_address, 1) once at startup so that
// peers addressing this node via its own physical address are received. The
// radio must still be Disabled when this is called (see radio.SetAddress).
func (l *Link) ConfigureRxAddress(pipe uint8, addr [5]byte) error {
	if err := l.radio.SetAddress(pipe, radio.ReverseAddress(addr)); err != nil {
		return err
	}
	return l.radio.EnableRxAddress(pipe, true)
}

func (l *Link) fifoFull() bool  { return l.count == FIFODepth }
func (l *Link) fifoEmpty() bool { return l.count == 0 }

func (l *Link) fifoPush(p packet) bool {
	if l.fifoFull() {
		l.log("esb: TX fifo is full")
		return false
	}
	l.fifo[l.writeIndex] = p
	l.writeIndex = (l.writeIndex + 1) % FIFODepth
	l.count++
	return true
}

func (l *Link) fifoPop() packet {
	p := l.fifo[l.readIndex]
	l.readIndex = (l.readIndex + 1) % FIFODepth
	return p
}

// Send queues a payload for transmission (nrf24_send). It must be called
// while the link is in ModeTx; otherwise it publishes InvalidOperation and
// returns ErrInvalidOperation.
func (l *Link) Send(payload []byte) error {
	l.mu.Lock()
	if l.mode != ModeTx {
		l.mu.Unlock()
		if l.events != nil {
			l.events.Trigger(InvalidOperation, nil)
		}
		return ErrInvalidOperation
	}

	var p packet
	if l.esbEnabled {
		p.pid = l.seq
		l.seq = (l.seq + 1) % 4
	}
	copy(p.data[:], payload)

	wasEmpty := l.fifoEmpty()
	l.fifoPush(p)
	l.mu.Unlock()

	if wasEmpty {
		l.dispatch()
	}
	return nil
}

// dispatch pops the head of the FIFO and starts transmitting it
// (nrf24_tx_fifo_execute / egu1_handler, collapsed into a direct call since
// this repo has no separate software-interrupt scheduling primitive).
func (l *Link) dispatch() {
	l.mu.Lock()
	if l.fifoEmpty() {
		l.mu.Unlock()
		return
	}
	p := l.fifoPop()
	l.current = p
	l.mu.Unlock()

	if !l.esbEnabled {
		l.transmitCurrent()
		l.mu.Lock()
		l.count--
		l.mu.Unlock()
		if l.events != nil {
			l.events.Trigger(TxSuccess, nil)
		}
		l.dispatch()
		return
	}

	l.transmitAndWaitForAck()
	l.sched.Start(&l.retx, RetransmitPeriod)
}

// transmitCurrent drives the radio through a blocking TX of l.current's
// payload (the non-ESB variant's whole send path), ramping to TX first
// exactly as radio_set_mode(MODE_TX) precedes every radio_start_tx in
// original_source.
func (l *Link) transmitCurrent() {
	l.radio.Enable(radio.ModeTx)
	buf := l.radio.Payload()
	copy(buf, l.current.data[:])
	l.radio.StartTx()
}

// transmitAndWaitForAck is nrf24_tx_and_wait_for_ack: TX the packet, then
// ramp to RX with a zero-length expectation to catch the peer's ACK.
func (l *Link) transmitAndWaitForAck() {
	l.transmitCurrent()
	l.radio.Enable(radio.ModeRx)
	l.radio.StartRx()
}

// onRetransmitTick is auto_retransmit_handler.
func (l *Link) onRetransmitTick() {
	l.mu.Lock()
	if l.retryCount >= MaxRetries {
		l.retryCount = 0
		l.mu.Unlock()

		l.sched.Stop(&l.retx)
		if l.events != nil {
			l.events.Trigger(TxFailed, nil)
		}
		l.log("esb: TX failed after %d retries", MaxRetries)

		l.mu.Lock()
		l.count--
		l.mu.Unlock()

		l.dispatch()
		return
	}
	l.retryCount++
	l.mu.Unlock()

	l.transmitAndWaitForAck()
}

// onRadioEvent is radio_evnt_handler / nrf24_handle_packet: the radio's
// asynchronous end-of-packet notification, fired only for RX completions
// (see radio.Radio.NotifyRxDone's doc comment). It distinguishes "this was
// our ACK coming back" from "this was a peer's data packet" by which
// logical address matched.
func (l *Link) onRadioEvent() {
	matched := l.radio.RxMatch()

	l.mu.Lock()
	mode := l.mode
	l.mu.Unlock()

	switch mode {
	case ModeRx:
		if matched == 1 {
			l.handleIncomingData()
		}
	case ModeTx:
		if l.esbEnabled && matched == 0 {
			l.handleAckReceived()
		}
	}
}

// handleAckReceived is the ack-rx transition out of WaitAck: stop the
// retransmit timer, reset the retry count, report success, advance the
// FIFO, and start the next dispatch.
func (l *Link) handleAckReceived() {
	l.sched.Stop(&l.retx)

	l.mu.Lock()
	l.retryCount = 0
	l.count--
	l.mu.Unlock()

	if l.events != nil {
		l.events.Trigger(TxSuccess, nil)
	}
	l.dispatch()
}

// handleIncomingData is the receive path. With ESB compiled in, the link
// ACKs unconditionally and delivers only on a PID change (spec Testable
// Property #6, duplicate suppression); the non-ESB variant never ACKs and
// always delivers (nrf24_handle_packet's #else RX branch: straight to
// DATA_READY and back to radio_start_rx, no TX at all).
func (l *Link) handleIncomingData() {
	rx := l.radio.Payload()
	var p packet
	copy(p.data[:], rx)

	if l.esbEnabled {
		if len(rx) > 0 {
			p.pid = rx[0] & 0x03
		}

		// Select the pipe the data matched as the TX target
		// (radio_set_tx_logical_address(1) in nrf24_handle_packet,
		// generalized from its hardcoded pipe 1 to whichever logical
		// address RxMatch reports, since a mesh node's RX table holds
		// more than the one fixed peer the original link assumes),
		// switch to TX, and transmit a zero-length ACK.
		l.radio.SetTxAddress(l.radio.RxMatch())
		l.radio.Enable(radio.ModeTx)
		l.radio.StartTx()
		if l.events != nil {
			l.events.Trigger(AckSent, nil)
		}
	}

	l.mu.Lock()
	isNew := !l.esbEnabled || p.pid != l.prevPID
	if l.esbEnabled {
		l.prevPID = p.pid
	}
	l.mu.Unlock()

	if isNew {
		payload := append([]byte(nil), rx...)
		if l.onDataReady != nil {
			l.onDataReady(payload)
		}
		if l.events != nil {
			l.events.Trigger(DataReady, payload)
		}
	}

	l.radio.Enable(radio.ModeRx)
	l.radio.StartRx()
}

// FIFOCount reports the number of packets currently queued or in flight, for
// tests and diagnostics.
func (l *Link) FIFOCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.count
}

// RetryCount reports the current packet's retransmit count, for tests.
func (l *Link) RetryCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.retryCount
}
