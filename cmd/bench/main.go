// Copyright (c) 2016 by Thorsten von Eicken, see LICENSE file for details

// Command bench is a host-side bring-up tool: it opens a local SPI bus
// (muxed across two chip selects the way a board with a single physical CS
// line and an extra demux pin would need), and runs peripherals/bench's
// register-identity probes against whatever is wired up on each leg. It
// supersedes cmd/rfm-check's hand-written "Checking rfm69.../Checking
// rfm96..." sequence with a data-driven probe table.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"periph.io/x/periph/conn/gpio"
	"periph.io/x/periph/conn/spi"
	"periph.io/x/periph/host"

	"github.com/pdlsurya/nRF52/peripherals/bench"
	"github.com/pdlsurya/nRF52/spimux"
)

// knownChips is the probe table this tool ships with, generalising
// cmd/rfm-check's two hard-coded register checks (RegVersion on an rfm69,
// RegVersion on an rfm96/sx1276).
var knownChips = []bench.Probe{
	{Name: "rfm69 (leg A)", Addr: 0x10, Want: map[byte]string{0x23: "sx1231", 0x24: "sx1231h"}},
	{Name: "rfm96 (leg B)", Addr: 0x42, Want: map[byte]string{0x12: "sx1276"}},
}

func main() {
	selPinName := flag.String("cspin", "CSID0", "chip-select mux pin name")
	flag.Parse()

	if _, err := host.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "host.Init: %s\n", err)
		os.Exit(1)
	}

	selPin := gpio.ByName(*selPinName)
	if selPin == nil {
		fmt.Fprintf(os.Stderr, "cannot open pin %s\n", *selPinName)
		os.Exit(1)
	}

	spiBus, err := spi.New(-1, 0)
	if err != nil {
		fmt.Fprintf(os.Stderr, "spi.New: %s\n", err)
		os.Exit(1)
	}
	if err := spiBus.Configure(spi.Mode0, 8); err != nil {
		fmt.Fprintf(os.Stderr, "spi Configure: %s\n", err)
		os.Exit(1)
	}
	spiBus.Speed(1000000)

	legA, legB := spimux.New(spiBus, selPin)

	for _, h := range []*bench.Harness{bench.New(legA), bench.New(legB)} {
		results, err := h.Run(knownChips)
		if err != nil {
			fmt.Fprintf(os.Stderr, "probe failed: %s\n", err)
			os.Exit(1)
		}
		for _, r := range results {
			log.Println(r.String())
		}
	}
}
