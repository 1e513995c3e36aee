package utils

import (
	"math"
	"testing"
)

func TestRound(t *testing.T) {
	tests := []struct {
		in     float64
		places int
		want   float64
	}{
		{0.123456, 4, 0.1235},
		{0.8, 4, 0.8},
		{-0.55555, 2, -0.56},
		{1, 0, 1},
	}
	for _, tt := range tests {
		if got := Round(tt.in, tt.places); math.Abs(got-tt.want) > 1e-12 {
			t.Errorf("Round(%v, %d) = %v, want %v", tt.in, tt.places, got, tt.want)
		}
	}
	if !math.IsNaN(Round(math.NaN(), 2)) {
		t.Error("NaN should pass through")
	}
}

func TestRatio(t *testing.T) {
	if Ratio(1, 0) != 0 {
		t.Error("zero total should give 0")
	}
	if Ratio(1, 4) != 0.25 {
		t.Errorf("Ratio(1, 4) = %v", Ratio(1, 4))
	}
}
