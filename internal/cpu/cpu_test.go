package cpu

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

func TestWorkspacePoolReuse(t *testing.T) {
	ctx := NewContext()
	defer ctx.Free()

	a := ctx.Complex(64)
	a[3] = complex(1, 2)
	ctx.PutComplex(a)

	b := ctx.Complex(64)
	if &a[0] != &b[0] {
		t.Error("expected pooled buffer to be reused")
	}
	if b[3] != 0 {
		t.Errorf("reused buffer not zeroed: %v", b[3])
	}
	ctx.PutComplex(b)

	f := ctx.Floats(32)
	if len(f) != 32 {
		t.Fatalf("expected 32 floats, got %d", len(f))
	}
	ctx.PutFloats(f)

	if got, want := ctx.Owned(), int64(64*16+32*8); got != want {
		t.Errorf("owned bytes = %d, want %d", got, want)
	}
}

func TestWorkspaceFreeReleasesAccounting(t *testing.T) {
	before := AllocatedBytes()
	ctx := NewContext()
	ctx.PutFloats(ctx.Floats(128))
	if AllocatedBytes()-before != 128*8 {
		t.Errorf("expected %d tracked bytes, got %d", 128*8, AllocatedBytes()-before)
	}
	ctx.Free()
	if AllocatedBytes() != before {
		t.Errorf("Free left %d bytes tracked", AllocatedBytes()-before)
	}
}

func TestParallelForCoversRange(t *testing.T) {
	SetParallelism(3)
	defer SetParallelism(0)

	hits := make([]int, 100)
	ParallelFor(len(hits), func(start, end int) {
		for i := start; i < end; i++ {
			hits[i]++
		}
	})
	for i, h := range hits {
		if h != 1 {
			t.Fatalf("index %d visited %d times", i, h)
		}
	}
}

func TestSoftplusStability(t *testing.T) {
	tests := []struct {
		in, want float64
	}{
		{0, math.Ln2},
		{1000, 1000},
		{-1000, 0},
	}
	for _, tt := range tests {
		got := Softplus(tt.in)
		if math.IsNaN(got) || math.IsInf(got, 0) {
			t.Errorf("Softplus(%v) not finite: %v", tt.in, got)
		}
		if math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("Softplus(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestRMSNormOutput(t *testing.T) {
	x := mat.NewDense(2, 4, []float64{
		1, 2, 3, 4,
		-2, -2, -2, -2,
	})
	scale := []float64{1, 1, 1, 2}
	out := RMSNorm(x, scale, 0)

	rms := math.Sqrt((1 + 4 + 9 + 16) / 4.0)
	want := []float64{1 / rms, 2 / rms, 3 / rms, 8 / rms}
	if !floats.EqualApprox(out.RawRowView(0), want, 1e-12) {
		t.Errorf("row 0 = %v, want %v", out.RawRowView(0), want)
	}
	if !floats.EqualApprox(out.RawRowView(1), []float64{-1, -1, -1, -2}, 1e-12) {
		t.Errorf("row 1 = %v", out.RawRowView(1))
	}
}

func TestLinearAddsBias(t *testing.T) {
	x := mat.NewDense(2, 2, []float64{1, 2, 3, 4})
	kernel := mat.NewDense(2, 3, []float64{
		1, 0, 1,
		0, 1, 1,
	})
	out := Linear(x, kernel, []float64{10, 20, 30})
	want := []float64{11, 22, 33, 13, 24, 37}
	if !floats.Equal(out.RawMatrix().Data, want) {
		t.Errorf("Linear = %v, want %v", out.RawMatrix().Data, want)
	}
}

func TestDepthwiseCausalConv(t *testing.T) {
	x := mat.NewDense(4, 2, []float64{
		1, 10,
		2, 20,
		3, 30,
		4, 40,
	})
	kernel := mat.NewDense(3, 2, []float64{
		1, 0,
		0, 1,
		1, 1,
	})
	out := DepthwiseCausalConv(x, kernel, []float64{0.5, 0})

	// channel 0 taps: t-2 and t; channel 1 taps: t-1 and t
	want := mat.NewDense(4, 2, []float64{
		1.5, 10,
		2.5, 30,
		4.5, 50,
		6.5, 70,
	})
	if !mat.EqualApprox(out, want, 1e-12) {
		t.Errorf("conv =\n%v\nwant\n%v", mat.Formatted(out), mat.Formatted(want))
	}
}

func TestDepthwiseCausalConvNoFutureLeak(t *testing.T) {
	x := mat.NewDense(6, 1, []float64{1, 2, 3, 4, 5, 6})
	kernel := mat.NewDense(4, 1, []float64{0.1, 0.2, 0.3, 0.4})
	base := DepthwiseCausalConv(x, kernel, nil)

	x.Set(4, 0, 100)
	perturbed := DepthwiseCausalConv(x, kernel, nil)
	for t0 := 0; t0 < 4; t0++ {
		if base.At(t0, 0) != perturbed.At(t0, 0) {
			t.Errorf("step %d changed after perturbing step 4", t0)
		}
	}
}

func TestCausalConvolveFFTMatchesDirect(t *testing.T) {
	const length, channels = 97, 3
	x := mat.NewDense(length, channels, nil)
	k := mat.NewDense(length, channels, nil)
	for l := 0; l < length; l++ {
		for c := 0; c < channels; c++ {
			x.Set(l, c, math.Sin(float64(l*(c+1))*0.1))
			k.Set(l, c, math.Exp(-float64(l)*0.05)*float64(c+1))
		}
	}

	direct := CausalConvolve(x, k, ConvDirect)
	fft := CausalConvolve(x, k, ConvFFT)
	if !mat.EqualApprox(direct, fft, 1e-9) {
		t.Error("FFT convolution diverges from direct convolution")
	}
}

func TestCausalConvolveImpulse(t *testing.T) {
	x := mat.NewDense(4, 1, []float64{1, 0, 0, 0})
	k := mat.NewDense(4, 1, []float64{4, 3, 2, 1})
	for _, mode := range []ConvMode{ConvDirect, ConvFFT, ConvAuto} {
		out := CausalConvolve(x, k, mode)
		if !floats.EqualApprox(mat.Col(nil, 0, out), []float64{4, 3, 2, 1}, 1e-12) {
			t.Errorf("%s: impulse response = %v", mode, mat.Col(nil, 0, out))
		}
	}
}

func TestParseConvMode(t *testing.T) {
	for _, s := range []string{"", "auto", "direct", "FFT"} {
		if _, err := ParseConvMode(s); err != nil {
			t.Errorf("ParseConvMode(%q): %v", s, err)
		}
	}
	if _, err := ParseConvMode("winograd"); err == nil {
		t.Error("expected error for unknown mode")
	}
}

func TestCountNonFinite(t *testing.T) {
	m := mat.NewDense(1, 4, []float64{1, math.NaN(), math.Inf(1), math.Inf(-1)})
	nans, infs := CountNonFinite(m)
	if nans != 1 || infs != 2 {
		t.Errorf("got nans=%d infs=%d", nans, infs)
	}
}
