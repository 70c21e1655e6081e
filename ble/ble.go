// Package ble implements the BLE Broadcaster/Scanner (spec §4.5), grounded
// on original_source/nrf52_ble/nrf52_ble.c. A Device assembles
// ADV_NONCONN_IND-style advertising PDUs on a periodic soft timer, hopping
// the three advertising channels {37,38,39} and re-seeding the whitening
// register on every cycle, and can separately run a scan cycle that starts
// one RX per channel and delivers captured PDUs to a caller-registered
// handler. Only one of the advertise or scan cycle is meant to hold the
// radio at a time, by the same application-level convention that keeps C4/
// C5/C6 mutually exclusive (spec §5) — this package does not enforce it.
package ble

import (
	"sync"

	"periph.io/x/periph/conn/physic"

	"github.com/pdlsurya/nRF52/radio"
	"github.com/pdlsurya/nRF52/softtimer"
	"github.com/pdlsurya/nRF52/ticksrc"
)

// channel/frequency are the three advertising channels and their physical
// frequencies (2400+x MHz), per nrf52_ble.c's channel/frequency tables.
var channel = [3]uint8{37, 38, 39}
var frequency = [3]physic.Frequency{
	2402 * physic.MegaHertz,
	2426 * physic.MegaHertz,
	2480 * physic.MegaHertz,
}

// AdvAddr is the BLE advertising access address 0x8E89BED6, padded with a
// leading zero byte to this repo's 5-byte radio address representation:
// radio.Radio has no narrower-than-5-byte address concept, and BLE's 4-byte
// access address simply leaves that extra byte at a fixed value on both the
// broadcaster and scanner side, so address matching between them (and in
// radio.Ether) is unaffected.
var AdvAddr = [5]byte{0x00, 0x8E, 0x89, 0xBE, 0xD6}

// AdvInterval and ScanInterval are ADV_INTERVAL/SCAN_INTERVAL, in ticksrc
// ticks at the 32768Hz tick rate (~100ms/~300ms).
const (
	AdvInterval  = ticksrc.Tick(3277)
	ScanInterval = ticksrc.Tick(9830)
)

// Header is the fixed ADV_NONCONN_IND PDU header byte (TxAdd=random).
const Header = 0x22

const (
	tlvFlags   = 0x01
	tlvName    = 0x09
	tlvSvcData = 0x16
)

// ServiceData is ble_service_data_t: a 16-bit service UUID and one data
// byte, carried as the Service Data TLV's value.
type ServiceData struct {
	UUID uint16
	Data uint8
}

// Config is ble_config_t: the fields assemblePDU folds into the advertising
// payload. AdvName and MAC are fixed for the Device's lifetime; ServiceData
// may be swapped out between cycles via UpdateServiceData.
type Config struct {
	AdvName     string
	Flags       uint8
	ServiceData *ServiceData
	MAC         [6]byte
}

// ScanHandler receives a raw advertising PDU captured while scanning.
type ScanHandler func(pdu []byte)

// LogPrintf follows the module-wide convention.
type LogPrintf func(format string, v ...interface{})

// Device is ble_instance_t: the advertise/scan soft timers and the shared
// radio they drive.
type Device struct {
	mu sync.Mutex

	radio *radio.Radio
	sched *softtimer.Scheduler
	log   LogPrintf

	cfg       Config
	freqIndex int

	advPDU  []byte
	scanBuf []byte

	advTimer  softtimer.Node
	scanTimer softtimer.Node

	onScan ScanHandler
}

// Opts configures a Device.
type Opts struct {
	Radio     *radio.Radio
	Scheduler *softtimer.Scheduler
	Config    Config
	OnScan    ScanHandler
	Logger    LogPrintf
}

// New creates a Device, configures the radio for BLE (4-byte address width,
// 1Mbps, whitening on, the BLE CRC polynomial, little-endian payload —
// ble_begin's radio_set_* sequence), binds logical address 0 to AdvAddr, and
// assembles the initial advertising PDU once to size the radio's packet
// buffer (the PDU's length is fixed by Config; only its content bytes change
// cycle to cycle). The radio must be Disabled.
func New(opts Opts) (*Device, error) {
	log := opts.Logger
	if log == nil {
		log = func(string, ...interface{}) {}
	}
	d := &Device{
		radio:  opts.Radio,
		sched:  opts.Scheduler,
		cfg:    opts.Config,
		onScan: opts.OnScan,
		log:    log,
	}

	d.advPDU = make([]byte, pduLen(d.cfg))
	d.assemblePDU()

	if err := d.radio.Configure(radio.Config{
		Frequency:    frequency[0],
		DataRate:     radio.Rate1Mbps,
		AddressWidth: 4,
		MaxPayload:   uint8(len(d.advPDU)),
		PayloadEnd:   radio.LittleEndian,
		WhiteningOn:  true,
		WhiteningIV:  channel[0],
		CRCLen:       3,
		CRCAdd:       1,
		CRCPoly:      0x100065B,
		CRCInit:      0x555555,
	}); err != nil {
		return nil, err
	}
	if err := d.radio.SetAddress(0, radio.ReverseAddress(AdvAddr)); err != nil {
		return nil, err
	}
	if err := d.radio.SetPacketPtr(d.advPDU); err != nil {
		return nil, err
	}

	d.scanBuf = make([]byte, 72) // ble_set_pl_size(72) in set_ble_mode's SCAN case
	opts.Radio.SetEventHandler(d.onRadioEvent)

	d.sched.Create(&d.advTimer, d.advertiseTick, softtimer.Periodic)
	d.sched.Create(&d.scanTimer, d.scanTick, softtimer.Periodic)
	return d, nil
}

// pduLen computes the fixed on-air length of the advertising PDU: header(1)
// + length(1) + MAC(6) + TLV stream (Flags, Complete Local Name, Service
// Data), each TLV contributing its data plus a length byte and a type byte.
func pduLen(cfg Config) int {
	tlvTotal := (1 + 2) /* flags: 1 data byte */ +
		(len(cfg.AdvName) + 2) /* name */ +
		(3 + 2) /* service data: 2-byte UUID + 1 data byte */
	return 1 + 1 + 6 + tlvTotal
}

// assemblePDU rebuilds advPDU's content in place (assemble_pdu): MAC, then
// TLVs in order Flags(0x01) -> Complete Local Name(0x09) -> Service
// Data(0x16), then the header and total length. Must be called with d.mu
// held — this mirrors assemble_pdu's own __disable_irq() bracket protecting
// the shared scratch buffer from a concurrent hop or reconfiguration.
func (d *Device) assemblePDU() {
	buf := d.advPDU
	copy(buf[2:8], d.cfg.MAC[:])

	i := 8
	buf[i] = 2 // TLV length field = 1 data byte + 1 type byte
	buf[i+1] = tlvFlags
	buf[i+2] = d.cfg.Flags
	i += 3

	name := d.cfg.AdvName
	buf[i] = byte(len(name) + 1)
	buf[i+1] = tlvName
	copy(buf[i+2:], name)
	i += 2 + len(name)

	buf[i] = 4 // TLV length field = 3 data bytes + 1 type byte
	buf[i+1] = tlvSvcData
	if d.cfg.ServiceData != nil {
		buf[i+2] = byte(d.cfg.ServiceData.UUID)
		buf[i+3] = byte(d.cfg.ServiceData.UUID >> 8)
		buf[i+4] = d.cfg.ServiceData.Data
	}
	i += 5

	buf[0] = Header
	buf[1] = byte(i - 2) // payload_length: everything after header+length themselves
}

// UpdateServiceData replaces the service-data payload the next advertise
// cycle will encode (update_service_data).
func (d *Device) UpdateServiceData(sd *ServiceData) {
	d.mu.Lock()
	d.cfg.ServiceData = sd
	d.mu.Unlock()
}

// advertiseTick is adv_timer_handler/ble_advertise: reassemble the PDU,
// transmit it, then hop to the next channel and reseed whitening ahead of
// the following cycle (spec Testable Property #8 / scenario S5).
func (d *Device) advertiseTick() {
	d.mu.Lock()
	d.assemblePDU()
	d.mu.Unlock()

	d.radio.Enable(radio.ModeTx)
	d.radio.StartTx()

	d.hopChannel()
}

// hopChannel is hop_channel: advance to the next of the three advertising
// channels and reseed the whitening register for the cycle after this one.
func (d *Device) hopChannel() {
	d.mu.Lock()
	d.freqIndex = (d.freqIndex + 1) % len(channel)
	idx := d.freqIndex
	d.mu.Unlock()

	d.radio.SetFrequency(frequency[idx])
	d.radio.SetWhiteningIV(channel[idx])
}

// scanTick is scan_timer_handler: start one RX window on the current
// channel, then hop exactly like the advertise cycle. A captured PDU arrives
// asynchronously via onRadioEvent, not from this call directly.
func (d *Device) scanTick() {
	d.radio.Enable(radio.ModeRx)
	d.radio.StartRx()
	d.hopChannel()
}

// onRadioEvent is radio_evt_handler: forward a captured scan PDU to the
// registered handler, unconditionally, exactly like the original's direct
// call to scan_event_handler. It has no effect while advertising, since
// advertiseTick never leaves the radio listening.
func (d *Device) onRadioEvent() {
	d.mu.Lock()
	handler := d.onScan
	d.mu.Unlock()
	if handler == nil {
		return
	}
	handler(append([]byte(nil), d.radio.Payload()...))
}

// StartAdvertising starts the periodic advertise cycle (ble_start_advertising).
func (d *Device) StartAdvertising() error {
	return d.sched.Start(&d.advTimer, AdvInterval)
}

// StopAdvertising stops the advertise cycle (ble_stop_advertising).
func (d *Device) StopAdvertising() {
	d.sched.Stop(&d.advTimer)
}

// StartScanning configures the radio for scanning (set_ble_mode's
// BLE_MODE_SCAN case: bind AdvAddr to RX pipe 1, point the packet pointer at
// the scan buffer) and starts the periodic scan cycle
// (ble_start_scanning). The radio must be Disabled — the caller is
// responsible for disabling it first if advertising was previously active,
// matching the application-level mode switch the original firmware performs
// between BLE_MODE_ADV and BLE_MODE_SCAN.
func (d *Device) StartScanning() error {
	if err := d.radio.SetAddress(1, radio.ReverseAddress(AdvAddr)); err != nil {
		return err
	}
	if err := d.radio.EnableRxAddress(1, true); err != nil {
		return err
	}
	if err := d.radio.SetPacketPtr(d.scanBuf); err != nil {
		return err
	}
	return d.sched.Start(&d.scanTimer, ScanInterval)
}

// StopScanning stops the scan cycle.
func (d *Device) StopScanning() {
	d.sched.Stop(&d.scanTimer)
}
