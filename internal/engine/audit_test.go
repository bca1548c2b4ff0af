package engine

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"
)

func TestAuditOutput(t *testing.T) {
	tests := []struct {
		name     string
		data     []float64
		wantNaN  int
		wantInf  int
		extreme  bool
		wantMax  float64
		wantMean float64
	}{
		{"clean", []float64{1, -1, 3, 1}, 0, 0, false, 3, 1},
		{"nan", []float64{1, math.NaN(), 3, 2}, 1, 0, true, 3, 2},
		{"inf", []float64{math.Inf(1), 2, 2, math.Inf(-1)}, 0, 2, true, 2, 2},
		{"extreme", []float64{1e21, 0, 0, 0}, 0, 0, true, 1e21, 2.5e20},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			audit := AuditOutput(mat.NewDense(2, 2, tt.data))
			if audit.NumNaNs != tt.wantNaN || audit.NumInfs != tt.wantInf {
				t.Errorf("nan=%d inf=%d", audit.NumNaNs, audit.NumInfs)
			}
			if audit.HasExtremeValues != tt.extreme {
				t.Errorf("extreme = %v", audit.HasExtremeValues)
			}
			if audit.Max != tt.wantMax || math.Abs(audit.Mean-tt.wantMean) > 1e-9*math.Abs(tt.wantMean) {
				t.Errorf("got %s", audit)
			}
		})
	}
}

func TestAuditNaNPropagation(t *testing.T) {
	tests := []struct {
		name    string
		nans    []int
		pattern string
	}{
		{"clean", []int{0, 0, 0}, ""},
		{"sudden", []int{0, 0, 4}, "sudden"},
		{"gradual", []int{0, 1, 2, 3}, "gradual"},
		{"scattered", []int{2, 0, 1, 0}, "scattered"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logs := make([]BlockLog, len(tt.nans))
			for i, n := range tt.nans {
				logs[i] = BlockLog{Idx: i, NaNCount: n}
			}
			audit := AuditNaNPropagation(logs)
			if audit.Pattern != tt.pattern {
				t.Errorf("pattern = %q, want %q (%s)", audit.Pattern, tt.pattern, audit)
			}
			if audit.HasNaN != (tt.pattern != "") {
				t.Errorf("HasNaN = %v", audit.HasNaN)
			}
		})
	}
}

func TestSummariseCountsNonFinite(t *testing.T) {
	m := mat.NewDense(2, 2, []float64{3, math.NaN(), -4, math.Inf(1)})
	entry := summarise(0, "S4DBlock", m)
	if entry.NaNCount != 1 || entry.InfCount != 1 {
		t.Errorf("nan=%d inf=%d", entry.NaNCount, entry.InfCount)
	}
	if entry.MaxAbs != 4 {
		t.Errorf("MaxAbs = %v", entry.MaxAbs)
	}
	if math.Abs(entry.RMS-math.Sqrt(12.5)) > 1e-12 {
		t.Errorf("RMS = %v", entry.RMS)
	}
	if len(entry.Sample) != 2 || entry.Sample[0] != -4 {
		t.Errorf("Sample = %v", entry.Sample)
	}
}
