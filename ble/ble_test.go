package ble

import (
	"testing"

	"github.com/pdlsurya/nRF52/radio"
	"github.com/pdlsurya/nRF52/softtimer"
	"github.com/pdlsurya/nRF52/ticksrc"
)

// fakeBackend records every TX/RX start so tests can drive the Device's
// timers deterministically without a real or simulated peer.
type fakeBackend struct {
	txCount int
	rxCount int
}

func (b *fakeBackend) RampUp(radio.Mode) {}
func (b *fakeBackend) Disable()          {}
func (b *fakeBackend) StartRx()          { b.rxCount++ }
func (b *fakeBackend) StartTx()          { b.txCount++ }

func newTestDevice(t *testing.T, cfg Config) (*Device, *fakeBackend, *ticksrc.Source) {
	t.Helper()
	src := ticksrc.New(ticksrc.Opts{})
	sched := softtimer.New(src, nil)
	r := radio.New(radio.Opts{})
	fb := &fakeBackend{}
	r.SetBackend(fb)

	d, err := New(Opts{Radio: r, Scheduler: sched, Config: cfg})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return d, fb, src
}

func testConfig() Config {
	return Config{
		AdvName:     "node",
		Flags:       0x06,
		ServiceData: &ServiceData{UUID: 0x180D, Data: 0},
		MAC:         [6]byte{0xA7, 0x05, 0xD5, 0x7C, 0xBB, 0xFB},
	}
}

func TestPDUAssembly(t *testing.T) {
	cfg := testConfig()
	d, _, _ := newTestDevice(t, cfg)

	buf := d.advPDU
	if buf[0] != Header {
		t.Fatalf("header = 0x%02X, want 0x%02X", buf[0], Header)
	}
	wantLen := len(buf) - 2
	if int(buf[1]) != wantLen {
		t.Fatalf("payload_length = %d, want %d", buf[1], wantLen)
	}
	if got := buf[2:8]; string(got) != string(cfg.MAC[:]) {
		t.Fatalf("mac = %v, want %v", got, cfg.MAC)
	}

	i := 8
	if buf[i] != 2 || buf[i+1] != tlvFlags || buf[i+2] != cfg.Flags {
		t.Fatalf("flags TLV = %v, want [2 0x01 0x%02X]", buf[i:i+3], cfg.Flags)
	}
	i += 3
	if buf[i] != byte(len(cfg.AdvName)+1) || buf[i+1] != tlvName {
		t.Fatalf("name TLV header = %v, want [%d 0x09]", buf[i:i+2], len(cfg.AdvName)+1)
	}
	if string(buf[i+2:i+2+len(cfg.AdvName)]) != cfg.AdvName {
		t.Fatalf("name TLV data = %q, want %q", buf[i+2:i+2+len(cfg.AdvName)], cfg.AdvName)
	}
	i += 2 + len(cfg.AdvName)
	if buf[i] != 4 || buf[i+1] != tlvSvcData {
		t.Fatalf("service data TLV header = %v, want [4 0x16]", buf[i:i+2])
	}
	gotUUID := uint16(buf[i+2]) | uint16(buf[i+3])<<8
	if gotUUID != cfg.ServiceData.UUID {
		t.Fatalf("service data UUID = 0x%04X, want 0x%04X", gotUUID, cfg.ServiceData.UUID)
	}
}

// Testable Property #8 / scenario S5: after k advertise() calls, the active
// (next-cycle) frequency equals frequency[k mod 3].
func TestChannelHop(t *testing.T) {
	d, fb, _ := newTestDevice(t, testConfig())
	// advertiseTick is called directly (rather than through
	// StartAdvertising) so this test drives the cycle count deterministically
	// without depending on the soft-timer scheduler's real-time goroutine.

	if got := d.radio.Config().Frequency; got != frequency[0] {
		t.Fatalf("initial frequency = %v, want %v", got, frequency[0])
	}

	for k := 1; k <= 4; k++ {
		d.advertiseTick()
		if fb.txCount != k {
			t.Fatalf("txCount after %d ticks = %d, want %d", k, fb.txCount, k)
		}
		want := frequency[k%3]
		if got := d.radio.Config().Frequency; got != want {
			t.Fatalf("after %d advertise() calls, frequency = %v, want %v", k, got, want)
		}
		wantIV := channel[k%3]
		if got := d.radio.Config().WhiteningIV; got != wantIV {
			t.Fatalf("after %d advertise() calls, whitening IV = %d, want %d", k, got, wantIV)
		}
	}
}

func TestScanStartsRxAndHops(t *testing.T) {
	d, fb, _ := newTestDevice(t, testConfig())
	if err := d.StartScanning(); err != nil {
		t.Fatalf("StartScanning: %v", err)
	}
	d.scanTick()
	if fb.rxCount != 1 {
		t.Fatalf("rxCount = %d, want 1", fb.rxCount)
	}
	if got := d.radio.Config().Frequency; got != frequency[1] {
		t.Fatalf("frequency after one scan tick = %v, want %v", got, frequency[1])
	}
}

func TestScanDeliversCapturedPDU(t *testing.T) {
	d, _, _ := newTestDevice(t, testConfig())
	var got []byte
	d.onScan = func(pdu []byte) { got = pdu }

	if err := d.StartScanning(); err != nil {
		t.Fatalf("StartScanning: %v", err)
	}
	copy(d.scanBuf, []byte{0x22, 0x05, 0xAA, 0xBB, 0xCC, 0xDD, 0xEE, 0xFF})
	d.radio.NotifyRxDone(1)

	if len(got) == 0 {
		t.Fatal("onScan was not invoked")
	}
	if got[0] != 0x22 {
		t.Fatalf("captured pdu header = 0x%02X, want 0x22", got[0])
	}
}
