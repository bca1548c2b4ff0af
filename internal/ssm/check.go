package ssm

import (
	"math"
	"math/cmplx"
	"math/rand/v2"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/23skdu/longbow-ssm/internal/cpu"
)

const checkTolerance = 1e-8

// CheckResult is the outcome of one numerical self-check.
type CheckResult struct {
	Name      string  `json:"name"`
	MaxAbsErr float64 `json:"max_abs_error"`
	Tolerance float64 `json:"tolerance"`
	Passed    bool    `json:"passed"`
}

// SelfCheck compares the fast paths against their step-by-step references
// on random systems drawn from seed: the convolution kernel (direct and
// FFT) against the recurrence, the parallel scan against the sequential
// one, and a conjugate half-state system against its full expansion.
func SelfCheck(seed uint64, length int) []CheckResult {
	const channels, states = 3, 4
	rng := rand.New(rand.NewPCG(seed, 0x55d))

	d := randomDiagonal(rng, channels, states)
	x := mat.NewDense(length, channels, nil)
	for l := 0; l < length; l++ {
		for c := 0; c < channels; c++ {
			x.Set(l, c, rng.NormFloat64())
		}
	}
	want := d.Recurrence(x)
	k := d.Kernel(length)

	results := []CheckResult{
		result("conv-direct-vs-recurrence", denseErr(cpu.CausalConvolve(x, k, cpu.ConvDirect), want)),
		result("conv-fft-vs-recurrence", denseErr(cpu.CausalConvolve(x, k, cpu.ConvFFT), want)),
		result("scan-vs-sequential", scanErr(rng, length, channels*states)),
	}

	half := randomDiagonal(rng, channels, states/2)
	half.Conjugate = true
	full := conjugateExpansion(half)
	results = append(results,
		result("conjugate-half-vs-full", denseErr(half.Kernel(length), full.Kernel(length))))
	return results
}

// Passed reports whether every check passed.
func Passed(results []CheckResult) bool {
	for _, r := range results {
		if !r.Passed {
			return false
		}
	}
	return true
}

func result(name string, err float64) CheckResult {
	return CheckResult{Name: name, MaxAbsErr: err, Tolerance: checkTolerance, Passed: err <= checkTolerance}
}

func randomDiagonal(rng *rand.Rand, channels, states int) *Diagonal {
	n := channels * states
	d := &Diagonal{
		Channels: channels,
		States:   states,
		A:        make([]complex128, n),
		B:        make([]complex128, n),
		C:        make([]complex128, n),
		Dt:       0.05 + 0.5*rng.Float64(),
	}
	for i := 0; i < n; i++ {
		d.A[i] = complex(-0.1-rng.Float64(), 3*rng.NormFloat64())
		d.B[i] = complex(rng.NormFloat64(), rng.NormFloat64())
		d.C[i] = complex(rng.NormFloat64(), rng.NormFloat64())
	}
	return d
}

// conjugateExpansion returns the full-state system a conjugate half-state
// system stands for: each row holds the stored states then their conjugates.
func conjugateExpansion(half *Diagonal) *Diagonal {
	full := &Diagonal{
		Channels: half.Channels,
		States:   2 * half.States,
		Dt:       half.Dt,
	}
	expand := func(src []complex128) []complex128 {
		out := make([]complex128, 0, 2*len(src))
		for c := 0; c < half.Channels; c++ {
			row := src[c*half.States : (c+1)*half.States]
			out = append(out, row...)
			for _, v := range row {
				out = append(out, cmplx.Conj(v))
			}
		}
		return out
	}
	full.A, full.B, full.C = expand(half.A), expand(half.B), expand(half.C)
	return full
}

func scanErr(rng *rand.Rand, length, lanes int) float64 {
	at := make([]complex128, length*lanes)
	ut := make([]complex128, length*lanes)
	for i := range at {
		at[i] = cmplx.Exp(complex(-0.5*rng.Float64(), rng.NormFloat64()))
		ut[i] = complex(rng.NormFloat64(), rng.NormFloat64())
	}
	h0 := make([]complex128, lanes)
	for j := range h0 {
		h0[j] = complex(rng.NormFloat64(), 0)
	}

	seq := append([]complex128(nil), ut...)
	SequentialScan(at, seq, length, lanes, h0)
	ScanSSM(append([]complex128(nil), at...), ut, length, lanes, h0)

	var worst float64
	for i := range seq {
		worst = math.Max(worst, cmplx.Abs(ut[i]-seq[i]))
	}
	return worst
}

func denseErr(a, b *mat.Dense) float64 {
	return floats.Distance(a.RawMatrix().Data, b.RawMatrix().Data, math.Inf(1))
}
