// Copyright (c) 2016 by Thorsten von Eicken, see LICENSE file for details

package main

import (
	"encoding/json"
	"fmt"
	"hash/fnv"
	"log"
	"os"
	"reflect"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/eclipse/paho.mqtt.golang"
)

// Message describes an MQTT message with a topic and a JSON encoded
// payload, isolating the gateway from the paho client's own types — the
// same role cmd/mqttradio's Message plays for LoRa/RFM69 packets.
type Message struct {
	Topic   string
	Payload interface{}
}

// mq is a handle onto a MQTT broker connection, carried over unchanged from
// cmd/mqttradio/mqtt.go: the de-duplication scheme (mq.dedup) drops the
// broker's echo of a message this gateway itself published to a topic it
// also subscribes to, since Publish already handed that message to the
// local subscription hooks.
type mq struct {
	conn     mqtt.Client
	subHooks []subHook
	dedupMu  sync.Mutex
	dedup    map[uint64]time.Time
}

type subHook struct {
	topic  string
	ch     reflect.Value
	chElem reflect.Type
}

// newMQ connects to a broker and returns a new mq object. The connection
// persists across disconnects; subscriptions are renewed by paho itself.
func newMQ(conf MqttConfig, debug func(string, ...interface{})) (*mq, error) {
	if debug != nil {
		debug("Configuring MQTT: %+v", conf)
	}
	mqtt.ERROR = log.New(os.Stderr, "", 0)
	opts := mqtt.NewClientOptions().
		AddBroker(fmt.Sprintf("tcp://%s:%d", conf.Host, conf.Port))
	opts.ClientID = "meshgw"
	opts.Username = conf.User
	opts.Password = conf.Password

	mqConn := mqtt.NewClient(opts)
	if token := mqConn.Connect(); !token.WaitTimeout(10 * time.Second) {
		return nil, token.Error()
	}
	mq := &mq{conn: mqConn, dedup: make(map[uint64]time.Time)}
	go mq.gc()

	log.Printf("MQTT connected")
	return mq, nil
}

// gc removes de-duplication IDs older than a few minutes: ones for which no
// subscriber ever echoed the message back.
func (mq *mq) gc() {
	for {
		time.Sleep(time.Minute)
		mq.dedupMu.Lock()
		if mq.dedup == nil {
			return
		}
		tooOld := time.Now().Add(-10 * time.Minute)
		for h, t := range mq.dedup {
			if t.Before(tooOld) {
				delete(mq.dedup, h)
			}
		}
		mq.dedupMu.Unlock()
	}
}

// Publish publishes a message, forwarding it immediately to any internal
// subscription hooks and recording its hash for de-dup against an echo.
func (mq *mq) Publish(topic string, payload interface{}) {
	payVal := reflect.Indirect(reflect.ValueOf(payload))
	for _, hook := range mq.subHooks {
		if topic == hook.topic {
			chanMsg := reflect.Indirect(reflect.New(hook.chElem))
			chanMsg.FieldByName("Topic").SetString(topic)
			chanMsg.FieldByName("Payload").Set(payVal)
			hook.ch.Send(chanMsg)
		}
	}
	runtime.Gosched()

	jsonPayload, _ := json.Marshal(payload)
	mq.conn.Publish(topic, 1, false, jsonPayload)
	mq.dedupMu.Lock()
	hash := hashMessage(topic, string(jsonPayload))
	mq.dedup[hash] = time.Now()
	mq.dedupMu.Unlock()
}

// Subscribe subscribes to topic, delivering both external broker traffic
// and anything Published locally to the same topic onto subChan.
func (mq *mq) Subscribe(topic string, subChan interface{}) error {
	chanType := reflect.TypeOf(subChan)
	if chanType.Kind() != reflect.Chan {
		panic("subChan must be a channel")
	}
	chanElemType := chanType.Elem()
	if chanElemType.Kind() != reflect.Struct {
		panic("subChan element must be struct")
	}
	chanValue := reflect.ValueOf(subChan)

	mq.subHooks = append(mq.subHooks, subHook{topic, chanValue, chanElemType})

	handler := func(c mqtt.Client, m mqtt.Message) {
		payload := string(m.Payload())
		hash := hashMessage(topic, payload)
		mq.dedupMu.Lock()
		_, dup := mq.dedup[hash]
		delete(mq.dedup, hash)
		mq.dedupMu.Unlock()
		if dup {
			return
		}

		msg := reflect.New(chanElemType)
		jsonMsg := fmt.Sprintf(`{"Topic":%q, "Payload":%s}`, m.Topic(), payload)
		if err := json.Unmarshal([]byte(jsonMsg), msg.Interface()); err != nil {
			log.Printf("cannot json decode payload for %s: %s", m.Topic(), err)
		} else {
			chanValue.Send(reflect.Indirect(msg))
		}
	}

	if token := mq.conn.Subscribe(topic, 1, handler); !token.WaitTimeout(2 * time.Second) {
		return token.Error()
	}
	return nil
}

func hashMessage(s ...string) uint64 {
	key := strings.Join(s, "ǂ")
	h := fnv.New64()
	h.Write([]byte(key))
	return h.Sum64()
}
