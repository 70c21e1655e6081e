package esb

import (
	"testing"

	"github.com/pdlsurya/nRF52/event"
	"github.com/pdlsurya/nRF52/radio"
	"github.com/pdlsurya/nRF52/softtimer"
	"github.com/pdlsurya/nRF52/ticksrc"
)

// fakeBackend is a white-box test double: it records every TX and lets the
// test inject RX completions directly via the Radio's own NotifyRxDone, so
// a test can drive the Link's state machine deterministically without a
// second simulated peer radio.
type fakeBackend struct {
	txCount int
	lastTx  []byte
	radio   *radio.Radio
}

func (b *fakeBackend) RampUp(mode radio.Mode) {}
func (b *fakeBackend) Disable()                {}
func (b *fakeBackend) StartRx()                {}
func (b *fakeBackend) StartTx() {
	b.txCount++
	b.lastTx = append([]byte(nil), b.radio.Payload()...)
}

func newTestLink(esbEnabled bool) (*Link, *fakeBackend, *ticksrc.Source, *event.Group) {
	src := ticksrc.New(ticksrc.Opts{})
	sched := softtimer.New(src, nil)
	r := radio.New(radio.Opts{})
	fb := &fakeBackend{radio: r}
	r.SetBackend(fb)
	r.SetPacketPtr(make([]byte, 32))
	r.Enable(radio.ModeTx) // backend is a no-op, but keep the radio in a sane state
	evts := event.NewGroup("NRF24")
	l := New(Opts{Radio: r, Scheduler: sched, ESBEnabled: esbEnabled, Events: evts})
	return l, fb, src, evts
}

func TestNonESBSendIsImmediateSuccess(t *testing.T) {
	l, fb, _, evts := newTestLink(false)
	var got event.ID = -1
	evts.Register(func(id event.ID, payload interface{}) { got = id })

	l.SetMode(ModeTx)
	if err := l.Send([]byte{1, 2, 3}); err != nil {
		t.Fatal(err)
	}
	if fb.txCount != 1 {
		t.Fatalf("txCount = %d, want 1", fb.txCount)
	}
	if got != TxSuccess {
		t.Fatalf("event = %v, want TxSuccess", got)
	}
	if l.FIFOCount() != 0 {
		t.Fatalf("FIFOCount = %d, want 0", l.FIFOCount())
	}
}

func TestSendOutsideTxModeIsInvalidOperation(t *testing.T) {
	l, _, _, evts := newTestLink(true)
	var got event.ID = -1
	evts.Register(func(id event.ID, payload interface{}) { got = id })

	l.SetMode(ModeRx)
	if err := l.Send([]byte{1}); err != ErrInvalidOperation {
		t.Fatalf("err = %v, want ErrInvalidOperation", err)
	}
	if got != InvalidOperation {
		t.Fatalf("event = %v, want InvalidOperation", got)
	}
}

// S2: the peer ACKs immediately (test injects the ACK by calling
// NotifyRxDone(0) right after the first TX), so exactly one on-air TX and
// one TxSuccess should result.
func TestESBSuccessAfterImmediateAck(t *testing.T) {
	l, fb, _, evts := newTestLink(true)
	var events []event.ID
	evts.Register(func(id event.ID, payload interface{}) { events = append(events, id) })

	l.SetMode(ModeTx)
	if err := l.Send([]byte{0xAA}); err != nil {
		t.Fatal(err)
	}
	if fb.txCount != 1 {
		t.Fatalf("txCount after send = %d, want 1", fb.txCount)
	}

	l.radio.NotifyRxDone(0) // simulate the peer's ACK arriving on pipe 0

	if len(events) != 1 || events[0] != TxSuccess {
		t.Fatalf("events = %v, want [TxSuccess]", events)
	}
	if l.FIFOCount() != 0 {
		t.Fatalf("FIFOCount after success = %d, want 0", l.FIFOCount())
	}
}

// S3: the peer never ACKs; the retransmit timer should retry 15 times and
// then emit exactly one TxFailed, with 16 total on-air TXes (1 + 15).
func TestESBFailureAfterMaxRetries(t *testing.T) {
	l, fb, src, evts := newTestLink(true)
	var events []event.ID
	evts.Register(func(id event.ID, payload interface{}) { events = append(events, id) })

	l.SetMode(ModeTx)
	if err := l.Send([]byte{0xBB}); err != nil {
		t.Fatal(err)
	}

	// drive the 1ms retransmit timer through all 15 retries.
	src.Advance(RetransmitPeriod * (MaxRetries + 2))

	if fb.txCount != MaxRetries+1 {
		t.Fatalf("txCount = %d, want %d", fb.txCount, MaxRetries+1)
	}
	failCount := 0
	for _, id := range events {
		if id == TxFailed {
			failCount++
		}
	}
	if failCount != 1 {
		t.Fatalf("TxFailed fired %d times, want 1", failCount)
	}
	if l.FIFOCount() != 0 {
		t.Fatalf("FIFOCount after failure = %d, want 0", l.FIFOCount())
	}
}

// Property #4: after 2N pushes with no radio present (no ACK ever), count
// never exceeds FIFODepth and excess pushes are dropped.
func TestFIFOBound(t *testing.T) {
	l, _, _, _ := newTestLink(true)
	l.SetMode(ModeTx)

	for i := 0; i < FIFODepth*2; i++ {
		l.Send([]byte{byte(i)})
		if l.FIFOCount() > FIFODepth {
			t.Fatalf("FIFOCount = %d exceeds FIFODepth %d after %d pushes", l.FIFOCount(), FIFODepth, i+1)
		}
	}
}

// Property #6: two consecutive packets with the same PID yield exactly one
// DataReady and two ACKs (two StartTx calls for the ack leg).
func TestDuplicateSuppression(t *testing.T) {
	l, fb, _, evts := newTestLink(true)
	var dataReadyCount int
	evts.Register(func(id event.ID, payload interface{}) {
		if id == DataReady {
			dataReadyCount++
		}
	})

	l.SetMode(ModeRx)

	rxBuf := l.radio.Payload()
	rxBuf[0] = 0x00 // pid low bits = 0
	fb.txCount = 0
	l.radio.NotifyRxDone(1) // first delivery, pid 0
	l.radio.NotifyRxDone(1) // repeat, same pid -> suppressed but still ACKed

	if dataReadyCount != 1 {
		t.Fatalf("DataReady fired %d times, want 1", dataReadyCount)
	}
	if fb.txCount != 2 {
		t.Fatalf("ACK TX count = %d, want 2", fb.txCount)
	}
}
