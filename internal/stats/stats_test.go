package stats

import (
	"math"
	"testing"
)

func TestDescriptive(t *testing.T) {
	xs := []float64{2, 4, 4, 4, 5, 5, 7, 9}

	if got := Mean(xs); got != 5 {
		t.Errorf("Mean = %v, want 5", got)
	}
	if got := StdDev(xs); got != 2 {
		t.Errorf("StdDev = %v, want 2", got)
	}
	if cv, ok := CV(xs); !ok || cv != 0.4 {
		t.Errorf("CV = %v %v, want 0.4 true", cv, ok)
	}
	if lo, hi := MinMax(xs); lo != 2 || hi != 9 {
		t.Errorf("MinMax = %v %v, want 2 9", lo, hi)
	}

	if Mean(nil) != 0 || StdDev([]float64{3}) != 0 {
		t.Error("empty and single-value inputs should be zero")
	}
	if _, ok := CV([]float64{0, 0}); ok {
		t.Error("CV of a zero mean should not be ok")
	}
}

func TestHalvesAndChange(t *testing.T) {
	first, second := Halves([]float64{1, 2, 3, 4, 5})
	if len(first) != 2 || len(second) != 2 || second[0] != 4 {
		t.Errorf("Halves dropped the wrong element: %v %v", first, second)
	}

	tests := []struct {
		name string
		xs   []float64
		want float64
	}{
		{"doubling", []float64{1, 1, 2, 2}, 1},
		{"halving", []float64{4, 4, 2, 2}, -0.5},
		{"flat", []float64{3, 3}, 0},
		{"from zero", []float64{0, 0, 1, 2}, 1},
		{"zero to zero", []float64{0, 0}, 0},
		{"too short", []float64{5}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Change(tt.xs); got != tt.want {
				t.Errorf("Change(%v) = %v, want %v", tt.xs, got, tt.want)
			}
		})
	}
}

func TestRatios(t *testing.T) {
	if Ratio(1, 0, 7) != 7 || Ratio(1, 4, 7) != 0.25 {
		t.Error("Ratio mismatch")
	}
	if RatioOrInf(0, 0) != 0 {
		t.Error("zero numerator should be zero")
	}
	if !math.IsInf(RatioOrInf(1, 0), 1) {
		t.Error("positive over zero should be +Inf")
	}
	if Round(2.5) != 3 || Round(-2.5) != -3 {
		t.Error("Round should go half away from zero")
	}
	if Clamp(-4) != 0 || Clamp(140) != 100 || Clamp(55) != 55 {
		t.Error("Clamp mismatch")
	}
}
