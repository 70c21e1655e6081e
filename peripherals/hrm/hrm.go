// Package hrm decodes Bluetooth Heart Rate Measurement characteristic
// notifications, grounded on original_source/BLE_hrm/ble_hrm.c's
// ble_hrm_c_ble_evt BLE_GATTC_EVT_HVX case. The GATT connection/discovery
// machinery that case depends on (device discovery, CCCD configuration) has
// no analogue here — a caller feeds this package raw notification payloads
// captured by some other transport (e.g. ble.Device's scan handler, or a
// real central-role GATT client), and Decode reproduces only the
// notification's byte-level decode and event fan-out.
package hrm

import "github.com/pdlsurya/nRF52/event"

// MaxRRIntervals is MAX_RR_CNT: the HRM characteristic carries at most this
// many RR-interval values per notification.
const MaxRRIntervals = 2

// Event IDs triggered on the Group passed to Decode, mirroring
// EDS_EVENT_TRIGGER(BLE_SERVICE_C_HRM, 0, ...) and (..., 1, ...).
const (
	EventHeartRate event.ID = iota
	EventRRIntervals
)

// RRIntervals is rr_interval_t: up to MaxRRIntervals measured beat-to-beat
// intervals, in milliseconds, from one notification.
type RRIntervals struct {
	Values [MaxRRIntervals]uint16
	Count  int
}

// flagHeartRateFormat16Bit and flagRRIntervalPresent are the two HRM flags
// byte bits the decode logic inspects (the rest of the flags byte — sensor
// contact status, energy expended — has no event fan-out in the original
// and is not decoded here).
const (
	flagHeartRateFormat16Bit = 0x01
	flagRRIntervalPresent    = 0x10
)

// Decode parses one raw HRM notification payload (the BLE_GATTC_EVT_HVX
// data bytes) and triggers EventHeartRate, then EventRRIntervals if
// present, on group — exactly the two EDS_EVENT_TRIGGER calls in
// ble_hrm_c_ble_evt. A payload shorter than 2 bytes (flags + at least one
// heart-rate byte) is ignored, matching the original's implicit assumption
// that hvx.len is always at least that long.
func Decode(group *event.Group, data []uint8) {
	if len(data) < 2 {
		return
	}
	flags := data[0]
	index := 1

	var heartRate uint16
	if flags&flagHeartRateFormat16Bit != 0 {
		if index+1 >= len(data) {
			return
		}
		heartRate = uint16(data[index+1])<<8 | uint16(data[index])
		index += 2
	} else {
		heartRate = uint16(data[index])
		index++
	}
	group.Trigger(EventHeartRate, heartRate)

	if flags&flagRRIntervalPresent == 0 {
		return
	}
	// index+1 (not just index) is bounds-checked here: the original reads
	// val[index] and val[index+1] unconditionally once index < dlen, which
	// over-reads by one byte when dlen is odd. Go has no adjacent scratch
	// byte to tolerate that, so the RR loop stops one interval short in
	// that case instead of reading out of bounds.
	var rr RRIntervals
	for rr.Count = 0; rr.Count < MaxRRIntervals; rr.Count++ {
		if index+1 >= len(data) {
			break
		}
		rr.Values[rr.Count] = uint16(data[index+1])<<8 | uint16(data[index])
		index += 2
	}
	group.Trigger(EventRRIntervals, rr)
}
