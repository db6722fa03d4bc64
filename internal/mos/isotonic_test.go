package mos

import (
	"testing"
)

func TestIsotonicMonotonic(t *testing.T) {
	// Noisy but upward-trending outcomes.
	p := []float64{0.05, 0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9}
	y := []float64{0, 0, 1, 0, 0, 1, 0, 1, 1, 1}

	iso, err := FitIsotonic(p, y)
	if err != nil {
		t.Fatalf("FitIsotonic: %v", err)
	}

	prev := -1.0
	for q := 0.0; q <= 1.0; q += 0.01 {
		got := iso.Calibrate(q)
		if got < prev {
			t.Fatalf("Calibrate(%v) = %v < Calibrate(prev) = %v, map not monotonic", q, got, prev)
		}
		if got < 0 || got > 1 {
			t.Fatalf("Calibrate(%v) = %v outside [0,1]", q, got)
		}
		prev = got
	}
}

func TestIsotonicPoolsViolators(t *testing.T) {
	// A perfectly decreasing region collapses into one pooled level.
	p := []float64{0.1, 0.2, 0.3}
	y := []float64{1, 0, 0}
	iso, err := FitIsotonic(p, y)
	if err != nil {
		t.Fatalf("FitIsotonic: %v", err)
	}
	want := 1.0 / 3
	for _, q := range []float64{0.1, 0.2, 0.3} {
		if got := iso.Calibrate(q); got < want-1e-9 || got > want+1e-9 {
			t.Errorf("Calibrate(%v) = %v, want pooled mean %v", q, got, want)
		}
	}
}

func TestIsotonicClipsOutsideSupport(t *testing.T) {
	p := []float64{0.2, 0.4, 0.6}
	y := []float64{0, 1, 1}
	iso, err := FitIsotonic(p, y)
	if err != nil {
		t.Fatalf("FitIsotonic: %v", err)
	}
	if got := iso.Calibrate(0.0); got != iso.Calibrate(0.2) {
		t.Errorf("below support: Calibrate(0) = %v, want clip to %v", got, iso.Calibrate(0.2))
	}
	if got := iso.Calibrate(1.0); got != iso.Calibrate(0.6) {
		t.Errorf("above support: Calibrate(1) = %v, want clip to %v", got, iso.Calibrate(0.6))
	}
}

func TestIsotonicPerfectInputUnchanged(t *testing.T) {
	p := []float64{0.0, 0.25, 0.5, 0.75, 1.0}
	y := []float64{0, 0, 1, 1, 1}
	iso, err := FitIsotonic(p, y)
	if err != nil {
		t.Fatalf("FitIsotonic: %v", err)
	}
	if got := iso.Calibrate(0.25); got != 0 {
		t.Errorf("Calibrate(0.25) = %v, want 0", got)
	}
	if got := iso.Calibrate(0.75); got != 1 {
		t.Errorf("Calibrate(0.75) = %v, want 1", got)
	}
}

func TestIsotonicEmptyInput(t *testing.T) {
	if _, err := FitIsotonic(nil, nil); err == nil {
		t.Error("FitIsotonic(nil) succeeded, want error")
	}
}

func TestIsotonicDuplicateInputs(t *testing.T) {
	p := []float64{0.5, 0.5, 0.5, 0.8}
	y := []float64{0, 1, 1, 1}
	iso, err := FitIsotonic(p, y)
	if err != nil {
		t.Fatalf("FitIsotonic: %v", err)
	}
	got := iso.Calibrate(0.5)
	if got < 2.0/3-1e-9 || got > 2.0/3+1e-9 {
		t.Errorf("Calibrate(0.5) with duplicates = %v, want 2/3", got)
	}
}
