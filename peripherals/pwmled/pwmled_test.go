package pwmled

import "testing"

type fakePWM struct {
	last uint16
}

func (p *fakePWM) SetDuty(value uint16) { p.last = value }

func TestSetDutyCycleMapsPercentToCounterRange(t *testing.T) {
	cases := []struct {
		percent int
		want    uint16
	}{
		{0, 0},
		{100, CounterTop},
		{50, CounterTop / 2},
	}
	for _, c := range cases {
		p := &fakePWM{}
		d := New(p)
		d.SetDutyCycle(c.percent)
		if p.last != c.want {
			t.Errorf("SetDutyCycle(%d) = %d, want %d", c.percent, p.last, c.want)
		}
	}
}

func TestSetDutyCycleClampsOutOfRange(t *testing.T) {
	p := &fakePWM{}
	d := New(p)

	d.SetDutyCycle(-10)
	if p.last != 0 {
		t.Fatalf("SetDutyCycle(-10) = %d, want 0", p.last)
	}

	d.SetDutyCycle(150)
	if p.last != CounterTop {
		t.Fatalf("SetDutyCycle(150) = %d, want %d", p.last, CounterTop)
	}
}
