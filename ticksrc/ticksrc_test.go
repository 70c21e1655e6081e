package ticksrc

import "testing"

func TestSubModularDistance(t *testing.T) {
	cases := []struct {
		a, b, want Tick
	}{
		{10, 5, 5},
		{5, 10, Mask - 4},
		{0, 0, 0},
		{Mask, 0, Mask},
		{0, Mask, 1},
	}
	for _, c := range cases {
		if got := c.a.Sub(c.b); got != c.want {
			t.Errorf("Tick(%d).Sub(%d) = %d, want %d", c.a, c.b, got, c.want)
		}
	}
}

func TestAdvanceFiresOnce(t *testing.T) {
	s := New(Opts{})
	fired := 0
	s.OnCompare(func() { fired++ })
	s.Arm(10)
	s.Advance(10)
	if fired != 1 {
		t.Fatalf("expected exactly one fire, got %d", fired)
	}
	if s.Now() != 10 {
		t.Fatalf("counter = %d, want 10", s.Now())
	}
}

func TestArmPastDeadlineDoesNotFireOnNextTick(t *testing.T) {
	s := New(Opts{})
	fired := 0
	s.OnCompare(func() { fired++ })
	s.Advance(20) // counter = 20
	s.Arm(5)      // already in the past relative to 20
	s.Advance(1)  // counter wraps... not really, just advances to 21, never equals 5
	if fired != 0 {
		t.Fatalf("expected no fire yet, got %d", fired)
	}
}

func TestWrapAround(t *testing.T) {
	s := New(Opts{})
	s.Advance(Mask) // counter = Mask
	fired := 0
	s.OnCompare(func() { fired++ })
	s.Arm(1) // one tick past wrap
	s.Advance(2)
	if fired != 1 {
		t.Fatalf("expected one fire across wrap, got %d", fired)
	}
	if s.Now() != 1 {
		t.Fatalf("counter after wrap = %d, want 1", s.Now())
	}
}
