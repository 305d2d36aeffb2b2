package util

import "testing"

func TestMinMax(t *testing.T) {
	specs := []struct {
		a, b     int
		wantMin  int
		wantMax  int
	}{
		{1, 2, 1, 2},
		{2, 1, 1, 2},
		{5, 5, 5, 5},
		{-3, 4, -3, 4},
	}
	for _, spec := range specs {
		if got := Min(spec.a, spec.b); got != spec.wantMin {
			t.Errorf("Min(%d, %d) = %d, want %d", spec.a, spec.b, got, spec.wantMin)
		}
		if got := Max(spec.a, spec.b); got != spec.wantMax {
			t.Errorf("Max(%d, %d) = %d, want %d", spec.a, spec.b, got, spec.wantMax)
		}
	}
}

func TestRoundupRounddown(t *testing.T) {
	specs := []struct {
		v, b     int
		wantUp   int
		wantDown int
	}{
		{0, 8, 0, 0},
		{1, 8, 8, 0},
		{8, 8, 8, 8},
		{9, 8, 16, 8},
		{4095, 4096, 4096, 0},
		{4096, 4096, 4096, 4096},
		{4097, 4096, 8192, 4096},
	}
	for _, spec := range specs {
		if got := Roundup(spec.v, spec.b); got != spec.wantUp {
			t.Errorf("Roundup(%d, %d) = %d, want %d", spec.v, spec.b, got, spec.wantUp)
		}
		if got := Rounddown(spec.v, spec.b); got != spec.wantDown {
			t.Errorf("Rounddown(%d, %d) = %d, want %d", spec.v, spec.b, got, spec.wantDown)
		}
	}
}
