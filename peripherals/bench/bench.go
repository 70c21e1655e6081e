// Package bench implements a host-side bring-up harness for a connected
// node's peripherals, in the style of cmd/rfm-check and cmd/sx1276-test:
// probe a chip's identity register over SPI and report what's actually
// wired up, rather than assume the board matches its BOM. It runs on a
// periph.io host (Raspberry Pi, BeagleBone, etc.) talking to the target
// node's SPI peripherals, not on the node itself.
package bench

import "fmt"

// Probe is one chip-identification check: read a register at Addr and
// compare its value against the Want/name table (rfm-check's r[1] == 0x23
// "found sx1231" style branch, generalised to an arbitrary register and
// expected-value set).
type Probe struct {
	Name string
	Addr byte
	Want map[byte]string
}

// Result is one Probe's outcome.
type Result struct {
	Probe Probe
	Value byte
	Found string // Want[Value], or "" if Value matched nothing expected
}

func (r Result) String() string {
	if r.Found != "" {
		return fmt.Sprintf("%s: found %s (reg=0x%02X)", r.Probe.Name, r.Found, r.Value)
	}
	return fmt.Sprintf("%s: unexpected reg value 0x%02X", r.Probe.Name, r.Value)
}

// Transactor is the one SPI operation a probe needs: a full-duplex
// transfer. periph.io/x/periph/conn/spi.Conn (and this repo's own
// spimux.Conn, which multiplexes a shared periph bus across chip selects)
// both satisfy this directly, the same shim-interface pattern as this
// repo's top-level shim.go.
type Transactor interface {
	Tx(w, r []byte) error
}

// Harness runs a set of Probes against one SPI connection
// (cmd/rfm-check's spi69/spi96 connections, generalised past a fixed pair
// of named chips).
type Harness struct {
	conn Transactor
}

// New creates a Harness bound to an already-configured SPI connection
// (spiBus.Connect in cmd/rfm-check's call to spimux.New, minus the chip-
// select multiplexing spimux itself already covers).
func New(conn Transactor) *Harness {
	return &Harness{conn: conn}
}

// Run executes every probe in order and returns one Result per probe
// (cmd/rfm-check's sequential "Checking rfm69..."/"Checking rfm96..."
// blocks, generalised into a loop over a table instead of hand-written
// per-chip code).
func (h *Harness) Run(probes []Probe) ([]Result, error) {
	results := make([]Result, 0, len(probes))
	for _, p := range probes {
		tx := []byte{p.Addr, 0}
		rx := make([]byte, 2)
		if err := h.conn.Tx(tx, rx); err != nil {
			return results, fmt.Errorf("bench: probing %s: %w", p.Name, err)
		}
		results = append(results, Result{Probe: p, Value: rx[1], Found: p.Want[rx[1]]})
	}
	return results, nil
}
