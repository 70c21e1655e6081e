package qdec

import "testing"

func TestOnReportFiresOnlyOnChange(t *testing.T) {
	var calls []int16
	d := New(Config{Handler: func(acc int16, dir Direction) { calls = append(calls, acc) }})

	d.OnReport(1)
	d.OnReport(1) // unchanged, must not re-fire
	d.OnReport(2)

	if len(calls) != 2 {
		t.Fatalf("handler called %d times, want 2: %v", len(calls), calls)
	}
	if calls[0] != 1 || calls[1] != 2 {
		t.Fatalf("calls = %v, want [1 2]", calls)
	}
}

func TestOnSampleSetsDirection(t *testing.T) {
	var gotDir Direction
	d := New(Config{Handler: func(acc int16, dir Direction) { gotDir = dir }})

	d.OnSample(1)
	d.OnReport(1)
	if gotDir != DirClockwise {
		t.Fatalf("direction = %v, want DirClockwise", gotDir)
	}

	d.OnSample(-1)
	d.OnReport(2)
	if gotDir != DirAntiClockwise {
		t.Fatalf("direction = %v, want DirAntiClockwise", gotDir)
	}
}

func TestOnSampleZeroLeavesDirectionUnchanged(t *testing.T) {
	d := New(Config{})
	d.OnSample(1)
	d.OnSample(0)
	if d.direction != DirClockwise {
		t.Fatalf("direction = %v, want DirClockwise to be preserved across a zero sample", d.direction)
	}
}
