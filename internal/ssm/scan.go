package ssm

import (
	"time"

	"github.com/23skdu/longbow-ssm/internal/cpu"
	"github.com/23skdu/longbow-ssm/internal/metrics"
)

// Pair is one element of the first-order recurrence h = A·h_prev + U.
type Pair struct {
	A, U complex128
}

// Combine composes two consecutive recurrence steps, e1 first. It is
// associative but not commutative.
func Combine(e1, e2 Pair) Pair {
	return Pair{
		A: e2.A * e1.A,
		U: e2.A*e1.U + e2.U,
	}
}

// AssociativeScan replaces elems with its inclusive prefix combination,
// elems[i] = elems[0] ∘ ... ∘ elems[i], using an up-sweep over a balanced
// tree followed by a down-sweep. Both sweeps have logarithmic depth; the
// inner loops of each level are independent.
func AssociativeScan(elems []Pair) {
	n := len(elems)
	d := 1
	for ; d < n; d *= 2 {
		for i := 2*d - 1; i < n; i += 2 * d {
			elems[i] = Combine(elems[i-d], elems[i])
		}
	}
	for d /= 2; d >= 1; d /= 2 {
		for i := 3*d - 1; i < n; i += 2 * d {
			elems[i] = Combine(elems[i-d], elems[i])
		}
	}
}

// ScanSSM runs the recurrence h[l] = at[l]·h[l-1] + ut[l] independently for
// every lane. at and ut are row-major (length, lanes); on return ut holds
// h and at holds the cumulative transition. h0 gives the state before step
// 0 per lane; nil means zero.
func ScanSSM(at, ut []complex128, length, lanes int, h0 []complex128) {
	start := time.Now()
	cpu.ParallelFor(lanes, func(jStart, jEnd int) {
		buf := make([]Pair, length)
		for j := jStart; j < jEnd; j++ {
			for l := range buf {
				buf[l] = Pair{A: at[l*lanes+j], U: ut[l*lanes+j]}
			}
			AssociativeScan(buf)
			var h complex128
			if h0 != nil {
				h = h0[j]
			}
			for l, p := range buf {
				at[l*lanes+j] = p.A
				ut[l*lanes+j] = p.A*h + p.U
			}
		}
	})
	metrics.RecordKernelDuration("scan", time.Since(start))
}

// SequentialScan is the step-by-step form of ScanSSM, writing h into ut.
func SequentialScan(at, ut []complex128, length, lanes int, h0 []complex128) {
	for j := 0; j < lanes; j++ {
		var h complex128
		if h0 != nil {
			h = h0[j]
		}
		for l := 0; l < length; l++ {
			h = at[l*lanes+j]*h + ut[l*lanes+j]
			ut[l*lanes+j] = h
		}
	}
}
