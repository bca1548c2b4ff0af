package engine

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// OutputAuditResult contains the results of a sequence range audit
type OutputAuditResult struct {
	Max              float64
	Min              float64
	Mean             float64
	RMS              float64
	HasNaN           bool
	HasInf           bool
	HasExtremeValues bool
	NumNaNs          int
	NumInfs          int
}

// extremeMagnitude flags activations that have effectively diverged.
const extremeMagnitude = 1e20

// AuditOutput inspects a sequence for non-finite or extreme values
func AuditOutput(m mat.Matrix) OutputAuditResult {
	audit := OutputAuditResult{}
	rows, cols := m.Dims()
	if rows == 0 || cols == 0 {
		return audit
	}

	var sum, sumSq float64
	minVal, maxVal := math.MaxFloat64, -math.MaxFloat64
	finite := 0
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			v := m.At(i, j)
			if math.IsNaN(v) {
				audit.HasNaN = true
				audit.HasExtremeValues = true
				audit.NumNaNs++
				continue
			}
			if math.IsInf(v, 0) {
				audit.HasInf = true
				audit.HasExtremeValues = true
				audit.NumInfs++
				continue
			}
			minVal = math.Min(minVal, v)
			maxVal = math.Max(maxVal, v)
			sum += v
			sumSq += v * v
			finite++
		}
	}
	if finite == 0 {
		return audit
	}

	audit.Max = maxVal
	audit.Min = minVal
	audit.Mean = sum / float64(finite)
	audit.RMS = math.Sqrt(sumSq / float64(finite))
	if math.Abs(audit.Max) > extremeMagnitude || math.Abs(audit.Min) > extremeMagnitude {
		audit.HasExtremeValues = true
	}
	return audit
}

// NaNPropagationAuditResult describes where NaNs appear across a stack
type NaNPropagationAuditResult struct {
	HasNaN        bool
	NaNBlockStart int
	NaNBlockEnd   int
	NaNBlocks     []int
	TotalNaNCount int
	Pattern       string // "sudden", "gradual", "scattered"
}

// AuditNaNPropagation detects NaN propagation starting from a specific block
func AuditNaNPropagation(blocks []BlockLog) NaNPropagationAuditResult {
	audit := NaNPropagationAuditResult{
		NaNBlockStart: -1,
		NaNBlockEnd:   -1,
		NaNBlocks:     make([]int, 0),
	}

	for i, b := range blocks {
		if b.NaNCount == 0 {
			continue
		}
		audit.HasNaN = true
		audit.TotalNaNCount += b.NaNCount
		if audit.NaNBlockStart == -1 {
			audit.NaNBlockStart = i
		}
		audit.NaNBlockEnd = i
		audit.NaNBlocks = append(audit.NaNBlocks, i)
	}
	if !audit.HasNaN {
		return audit
	}

	switch {
	case audit.NaNBlockStart == len(blocks)-1:
		audit.Pattern = "sudden"
	case audit.NaNBlockEnd == len(blocks)-1 && len(audit.NaNBlocks) == audit.NaNBlockEnd-audit.NaNBlockStart+1:
		audit.Pattern = "gradual"
	default:
		audit.Pattern = "scattered"
	}
	return audit
}

func (r OutputAuditResult) String() string {
	return fmt.Sprintf("Output{max=%.4f, min=%.4f, mean=%.4f, rms=%.4f, nan=%d, inf=%d}",
		r.Max, r.Min, r.Mean, r.RMS, r.NumNaNs, r.NumInfs)
}

func (r NaNPropagationAuditResult) String() string {
	return fmt.Sprintf("NaNPropagation{hasNaN=%v, start=%d, end=%d, total=%d, pattern=%s}",
		r.HasNaN, r.NaNBlockStart, r.NaNBlockEnd, r.TotalNaNCount, r.Pattern)
}
