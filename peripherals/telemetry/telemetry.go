// Package telemetry packs a mesh node's periodic status counters into a
// compact varint-encoded payload for transmission over the mesh (mesh.Router)
// and unpacks them again at the gateway, using internal/varint's
// signed-varint codec (adapted from the teacher's own varint package) in
// place of a fixed-width struct encoding — matching the general JeeLabs-
// radio-network convention of keeping radio payloads small.
package telemetry

import "github.com/pdlsurya/nRF52/internal/varint"

// Sample is one node's counter snapshot. Field order here is the wire
// order: Encode/Decode operate on this fixed layout, not a generic map, so
// every mesh node and the gateway agree on it without a schema exchange.
type Sample struct {
	UptimeSeconds     int
	BatteryMillivolts int
	RSSI              int
	PacketsSent       int
	PacketsDropped    int
}

// fieldCount is len(fields encoded), kept in sync with Encode/Decode by
// construction (both list the same five fields in the same order).
const fieldCount = 5

// Encode packs s into a varint byte stream.
func Encode(s Sample) []byte {
	return varint.Encode([]int{
		s.UptimeSeconds,
		s.BatteryMillivolts,
		s.RSSI,
		s.PacketsSent,
		s.PacketsDropped,
	})
}

// Decode unpacks a varint byte stream produced by Encode. It returns false
// if buf does not decode to exactly fieldCount values (a truncated or
// corrupted payload).
func Decode(buf []byte) (Sample, bool) {
	vals := varint.Decode(buf)
	if len(vals) != fieldCount {
		return Sample{}, false
	}
	return Sample{
		UptimeSeconds:     vals[0],
		BatteryMillivolts: vals[1],
		RSSI:              vals[2],
		PacketsSent:       vals[3],
		PacketsDropped:    vals[4],
	}, true
}
