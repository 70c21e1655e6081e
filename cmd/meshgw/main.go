// Copyright (c) 2016 by Thorsten von Eicken, see LICENSE file for details

// Command meshgw bridges a mesh.Router sitting at the tree's root onto an
// MQTT broker, the same "gateway" role cmd/mqttradio plays for LoRa/RFM69
// traffic: telemetry.Sample payloads arriving from any node are republished
// as MQTT messages, and commands published to an MQTT topic are forwarded
// into the mesh as Data packets. Config loading, MQTT wiring, and the
// run-forever main loop all follow cmd/mqttradio/main.go's shape directly.
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

	"github.com/pdlsurya/nRF52/esb"
	"github.com/pdlsurya/nRF52/event"
	"github.com/pdlsurya/nRF52/mesh"
	"github.com/pdlsurya/nRF52/peripherals/telemetry"
	"github.com/pdlsurya/nRF52/radio"
	"github.com/pdlsurya/nRF52/softtimer"
	"github.com/pdlsurya/nRF52/ticksrc"
)

type Config struct {
	Debug     bool
	Mqtt      MqttConfig
	Radio     RadioConfig
	Telemetry TopicConfig
	Command   TopicConfig
}

type MqttConfig struct {
	Host     string
	Port     int
	User     string
	Password string
}

type RadioConfig struct {
	FrequencyMHz int    `toml:"frequency_mhz"`
	Rate         string // "1mbps" or "2mbps"
}

type TopicConfig struct {
	Topic string
}

// commandMsg is the subscription channel element Subscribe requires: a
// Topic string plus a Payload struct (mqttradio/modules.go's convention).
type commandMsg struct {
	Topic   string
	Payload commandPayload
}

// commandPayload addresses a mesh node and carries the raw bytes to send
// it; Data round-trips through JSON as base64 the way encoding/json always
// handles a []byte field.
type commandPayload struct {
	Dest mesh.Addr
	Data []byte
}

func parseRate(s string) radio.DataRate {
	if s == "2mbps" {
		return radio.Rate2Mbps
	}
	return radio.Rate1Mbps
}

func main() {
	configFile := flag.String("config", "meshgw.toml", "path to config file")
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

	mq, err := newMQ(config.Mqtt, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to connect to MQTT broker: %s\n", err)
		os.Exit(2)
	}

	log.Printf("Configuring mesh root")
	router := bringUpRoot(config, logger, mq)

	commandChan := make(chan commandMsg, 10)
	if err := mq.Subscribe(config.Command.Topic, commandChan); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to subscribe to %s: %s\n", config.Command.Topic, err)
		os.Exit(1)
	}
	go forwardCommands(commandChan, router, logger)

	log.Printf("Gateway is ready")
	for {
		time.Sleep(time.Hour)
	} // ugh!
}

// bringUpRoot wires ticksrc -> softtimer -> radio -> esb -> mesh exactly as
// cmd/meshnode's "mesh" mode does, except this Router always sits at
// mesh.Root: its Deliver handler republishes every arriving payload onto
// MQTT instead of acting on it locally.
func bringUpRoot(config *Config, logger func(string, ...interface{}), mq *mq) *mesh.Router {
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

	evts := event.NewGroup("NRF24")
	link := esb.New(esb.Opts{
		Radio:      r,
		Scheduler:  sched,
		ESBEnabled: true,
		Events:     evts,
		Logger:     esb.LogPrintf(logger),
	})

	router, err := mesh.New(mesh.Opts{
		Address: mesh.Root,
		Link:    link,
		Deliver: func(from mesh.Addr, payload []byte) {
			publishDelivery(mq, config.Telemetry.Topic, from, payload, logger)
		},
		Events: evts,
		Logger: mesh.LogPrintf(logger),
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "mesh.New: %s\n", err)
		os.Exit(1)
	}
	link.SetMode(esb.ModeRx)
	return router
}

// publishDelivery decodes a telemetry.Sample when the payload is one (the
// common case, node status beacons) and falls back to publishing the raw
// bytes for anything else, so an unrecognised payload is still visible on
// the broker rather than silently dropped.
func publishDelivery(mq *mq, topic string, from mesh.Addr, payload []byte, logger func(string, ...interface{})) {
	if s, ok := telemetry.Decode(payload); ok {
		mq.Publish(topic, struct {
			From mesh.Addr
			telemetry.Sample
		}{From: from, Sample: s})
		return
	}
	logger("meshgw: %d raw bytes from 0%o, not a telemetry.Sample", len(payload), from)
	mq.Publish(topic, struct {
		From mesh.Addr
		Data []byte
	}{From: from, Data: payload})
}

// forwardCommands drains the command subscription and pushes each one into
// the mesh via router.Send, the down-link half of the bridge.
func forwardCommands(ch <-chan commandMsg, router *mesh.Router, logger func(string, ...interface{})) {
	for msg := range ch {
		if err := router.Send(msg.Payload.Dest, mesh.Data, msg.Payload.Data); err != nil {
			logger("meshgw: send to 0%o failed: %s", msg.Payload.Dest, err)
		}
	}
}
