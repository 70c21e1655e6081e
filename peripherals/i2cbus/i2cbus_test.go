package i2cbus

import "testing"

type fakeTransactor struct {
	lastAddr uint8
	lastData []byte
	ok       bool
}

func (f *fakeTransactor) Write(addr uint8, data []byte) bool {
	f.lastAddr = addr
	f.lastData = append([]byte(nil), data...)
	return f.ok
}

func TestWriteCallsHandlerOnSuccess(t *testing.T) {
	xact := &fakeTransactor{ok: true}
	fired := 0
	b := New(Config{SCLPin: 24, SDAPin: 22, Frequency: 400000}, xact, func() { fired++ })

	if err := b.Write(0x68, []byte{0x01, 0x02}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if fired != 1 {
		t.Fatalf("handler fired %d times, want 1", fired)
	}
	if xact.lastAddr != 0x68 {
		t.Fatalf("address = 0x%02X, want 0x68", xact.lastAddr)
	}
	if string(xact.lastData) != "\x01\x02" {
		t.Fatalf("data = %v, want [1 2]", xact.lastData)
	}
}

func TestWriteReturnsErrOnBusError(t *testing.T) {
	xact := &fakeTransactor{ok: false}
	fired := 0
	b := New(Config{}, xact, func() { fired++ })

	err := b.Write(0x68, []byte{0x01})
	if err != ErrTx {
		t.Fatalf("err = %v, want ErrTx", err)
	}
	// the handler still fires exactly like SPI0_TWI0_IRQHandler, which runs
	// unconditionally regardless of i2c_tx's return value.
	if fired != 1 {
		t.Fatalf("handler fired %d times, want 1", fired)
	}
}
