// Copyright (c) 2016 by Thorsten von Eicken, see LICENSE file for details

// Command meshnode is the stand-in for original_source's top-level main():
// it brings up one node's full soft-timer/radio/link stack from a TOML
// config file the way cmd/mqttradio brings up a radio-to-MQTT gateway from
// one, and then runs forever servicing it. Exactly one of the bare ESB
// link, the BLE advertiser, or the ESB mesh router is active at a time, selected by Config.Mode — the application-level mode switch spec §5
// requires, since the radio can only ever be driving one protocol.
//
// There is no physical nRF52 radio peripheral underneath package radio (see
// its doc comment); meshnode always drives radio.SimBackend, the same
// backend package radio documents as the "no physical radio attached"
// case. A board-specific build would substitute a register-backed Backend
// at this one construction site and nothing else in this file would change.
package main

import (
	"flag"
	"fmt"
	"io/ioutil"
	"log"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"periph.io/x/periph/conn/physic"

	devices "github.com/pdlsurya/nRF52"
	"github.com/pdlsurya/nRF52/ble"
	"github.com/pdlsurya/nRF52/esb"
	"github.com/pdlsurya/nRF52/event"
	"github.com/pdlsurya/nRF52/mesh"
	"github.com/pdlsurya/nRF52/peripherals/button"
	"github.com/pdlsurya/nRF52/peripherals/hrm"
	"github.com/pdlsurya/nRF52/peripherals/led"
	"github.com/pdlsurya/nRF52/peripherals/telemetry"
	"github.com/pdlsurya/nRF52/radio"
	"github.com/pdlsurya/nRF52/softtimer"
	"github.com/pdlsurya/nRF52/ticksrc"
)

// Config is this node's mqttradio.toml analogue: everything original_source
// fixed at compile time (node address, radio parameters, which protocol
// mode is wired up) expressed as a config file instead, matching
// cmd/mqttradio's Config struct shape.
type Config struct {
	Debug bool
	Mode  string // "esb", "ble", or "mesh"
	Node  NodeConfig
	Radio RadioConfig
	BLE   BLEConfig
	Pins  PinConfig
}

type NodeConfig struct {
	Address     int // mesh.Addr as a TOML integer: 11 is decimal 11 == 0o13; write 0o11 for octal 11
	PeerLogical int `toml:"peer_logical"`
}

type PinConfig struct {
	LED string `toml:"led"`
}

type RadioConfig struct {
	FrequencyMHz int    `toml:"frequency_mhz"`
	Rate         string // "1mbps" or "2mbps"
}

type BLEConfig struct {
	AdvName string `toml:"adv_name"`
	Flags   int
}

// ledPin adapts the top-level devices.GPIO shim (an Out-only level pin) to
// led.GPIO's Toggle, tracking the level itself since devices.GPIO has no
// read-back for an output pin.
type ledPin struct {
	pin   devices.GPIO
	level int
}

func (p *ledPin) Toggle() {
	p.level ^= 1
	p.pin.Out(p.level)
}

func parseRate(s string) radio.DataRate {
	if s == "2mbps" {
		return radio.Rate2Mbps
	}
	return radio.Rate1Mbps
}

func main() {
	configFile := flag.String("config", "meshnode.toml", "path to config file")
	flag.Parse()

	config := &Config{}
	raw, err := ioutil.ReadFile(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Cannot access config file: %s\n", err)
		os.Exit(1)
	}
	if err := toml.Unmarshal(raw, config); err != nil {
		fmt.Fprintf(os.Stderr, "Cannot parse config file: %s\n", err)
		os.Exit(1)
	}

	logger := func(string, ...interface{}) {}
	if config.Debug {
		log.SetFlags(log.LstdFlags | log.Lmicroseconds)
		logger = log.Printf
	}

	// ticksrc -> softtimer, the soft-timer backbone every protocol layer and
	// peripheral in this process shares (spec §2).
	src := ticksrc.New(ticksrc.Opts{Logger: ticksrc.LogPrintf(logger)})
	sched := softtimer.New(src, softtimer.LogPrintf(logger))

	r := radio.New(radio.Opts{Logger: radio.LogPrintf(logger)})
	r.SetBackend(radio.NewSimBackend(r))
	if err := r.SetPacketPtr(make([]byte, 32)); err != nil {
		fmt.Fprintf(os.Stderr, "SetPacketPtr: %s\n", err)
		os.Exit(1)
	}
	if err := r.Configure(radio.Config{
		Frequency:    physic.Frequency(config.Radio.FrequencyMHz) * physic.MegaHertz,
		DataRate:     parseRate(config.Radio.Rate),
		AddressWidth: 5,
		MaxPayload:   32,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "Configure: %s\n", err)
		os.Exit(1)
	}

	src.Start()

	ind := led.New(sched, &ledPin{pin: devices.NewGPIO(config.Pins.LED)})
	ind.SetNormalBlink()

	btn := button.New(sched)
	_ = btn.Register(0, func() { log.Printf("meshnode: button 0 pressed") })

	log.Printf("meshnode: mode=%s addr=0%o", config.Mode, config.Node.Address)

	switch config.Mode {
	case "ble":
		runBLE(r, sched, config, logger)
	case "esb":
		runESB(r, sched, config, logger)
	default:
		runMesh(r, sched, src, config, logger, ind)
	}

	for {
		time.Sleep(time.Hour)
	} // ugh!
}

// runBLE wires the advertiser half of package ble and starts advertising.
// It also registers a heart-rate logger for peripherals/hrm's events on a
// "BLE" event.Group; nothing in this mode publishes to that group.
func runBLE(r *radio.Radio, sched *softtimer.Scheduler, config *Config, logger func(string, ...interface{})) {
	evts := event.NewGroup("BLE")
	evts.Register(func(id event.ID, payload interface{}) {
		if id == hrm.EventHeartRate {
			log.Printf("meshnode: heart rate sample: %+v", payload)
		}
	})

	dev, err := ble.New(ble.Opts{
		Radio:     r,
		Scheduler: sched,
		Config: ble.Config{
			AdvName: config.BLE.AdvName,
			Flags:   uint8(config.BLE.Flags),
		},
		Logger: ble.LogPrintf(logger),
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "ble.New: %s\n", err)
		os.Exit(1)
	}
	if err := dev.StartAdvertising(); err != nil {
		fmt.Fprintf(os.Stderr, "StartAdvertising: %s\n", err)
		os.Exit(1)
	}
}

// runESB wires a bare ESB link with no mesh routing above it — the
// point-to-point mode spec §4.4 describes for a two-node deployment.
func runESB(r *radio.Radio, sched *softtimer.Scheduler, config *Config, logger func(string, ...interface{})) *esb.Link {
	evts := event.NewGroup("NRF24")
	link := esb.New(esb.Opts{
		Radio:      r,
		Scheduler:  sched,
		ESBEnabled: true,
		Events:     evts,
		Logger:     esb.LogPrintf(logger),
	})
	link.SetMode(esb.ModeRx)
	return link
}

// runMesh wires the full mesh.Router stack and starts a periodic telemetry
// broadcast toward the root (spec §6's node status payload), the one
// concrete use of peripherals/telemetry's codec outside its own tests.
func runMesh(r *radio.Radio, sched *softtimer.Scheduler, src *ticksrc.Source, config *Config, logger func(string, ...interface{}), ind *led.Indicator) {
	evts := event.NewGroup("NRF24")
	link := esb.New(esb.Opts{
		Radio:      r,
		Scheduler:  sched,
		ESBEnabled: true,
		Events:     evts,
		Logger:     esb.LogPrintf(logger),
	})

	router, err := mesh.New(mesh.Opts{
		Address: mesh.Addr(config.Node.Address),
		Link:    link,
		Deliver: func(from mesh.Addr, payload []byte) {
			if s, ok := telemetry.Decode(payload); ok {
				log.Printf("meshnode: telemetry from 0%o: %+v", from, s)
				return
			}
			log.Printf("meshnode: %d bytes from 0%o", len(payload), from)
		},
		Events: evts,
		Logger: mesh.LogPrintf(logger),
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "mesh.New: %s\n", err)
		os.Exit(1)
	}
	link.SetMode(esb.ModeRx)

	var beacon softtimer.Node
	sched.Create(&beacon, func() {
		sample := telemetry.Sample{
			UptimeSeconds: int(src.Now() / ticksrc.Tick(ticksrc.Rate)),
		}
		if err := router.Send(mesh.Root, mesh.Data, telemetry.Encode(sample)); err != nil {
			log.Printf("meshnode: telemetry send failed: %s", err)
			ind.SetFastBlink()
		}
	}, softtimer.Periodic)
	sched.Start(&beacon, ticksrc.Tick(ticksrc.Rate*30))
}
