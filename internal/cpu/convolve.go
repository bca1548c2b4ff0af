package cpu

import (
	"fmt"
	"strings"
	"time"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/mat"

	"github.com/23skdu/longbow-ssm/internal/metrics"
)

type ConvMode int

const (
	ConvAuto ConvMode = iota
	ConvDirect
	ConvFFT
)

// fftThreshold is the sequence length above which ConvAuto switches to FFT.
const fftThreshold = 64

func (m ConvMode) String() string {
	switch m {
	case ConvDirect:
		return "direct"
	case ConvFFT:
		return "fft"
	default:
		return "auto"
	}
}

func ParseConvMode(s string) (ConvMode, error) {
	switch strings.ToLower(s) {
	case "", "auto":
		return ConvAuto, nil
	case "direct":
		return ConvDirect, nil
	case "fft":
		return ConvFFT, nil
	}
	return ConvAuto, fmt.Errorf("unknown convolution mode %q", s)
}

func (m ConvMode) resolve(length int) ConvMode {
	if m != ConvAuto {
		return m
	}
	if length > fftThreshold {
		return ConvFFT
	}
	return ConvDirect
}

// CausalConvolve convolves every column of x with the matching column of
// kernel and keeps the first length outputs:
//
//	y[l,c] = Σ_{k<=l} kernel[k,c] · x[l-k,c]
//
// x and kernel are both (length, channels).
func CausalConvolve(x, kernel *mat.Dense, mode ConvMode) *mat.Dense {
	start := time.Now()
	length, channels := x.Dims()
	out := mat.NewDense(length, channels, nil)

	resolved := mode.resolve(length)
	if length < 2 {
		resolved = ConvDirect
	}

	ParallelFor(channels, func(cStart, cEnd int) {
		xs := make([]float64, length)
		ks := make([]float64, length)
		ys := make([]float64, length)
		var plan *fftPlan
		if resolved == ConvFFT {
			plan = newFFTPlan(length)
		}
		for c := cStart; c < cEnd; c++ {
			mat.Col(xs, c, x)
			mat.Col(ks, c, kernel)
			if plan != nil {
				plan.convolve(ys, xs, ks)
			} else {
				convolveDirect(ys, xs, ks)
			}
			out.SetCol(c, ys)
		}
	})

	metrics.RecordKernelDuration("convolve_"+resolved.String(), time.Since(start))
	return out
}

func convolveDirect(dst, x, k []float64) {
	for l := range dst {
		var sum float64
		for j := 0; j <= l; j++ {
			sum += k[j] * x[l-j]
		}
		dst[l] = sum
	}
}

// fftPlan holds a real FFT sized for linear (non-circular) convolution of
// two length-n sequences. Not safe for concurrent use.
type fftPlan struct {
	fft    *fourier.FFT
	xPad   []float64
	kPad   []float64
	xCoeff []complex128
	kCoeff []complex128
	seq    []float64
}

func newFFTPlan(length int) *fftPlan {
	n := 1
	for n < 2*length-1 {
		n <<= 1
	}
	return &fftPlan{
		fft:    fourier.NewFFT(n),
		xPad:   make([]float64, n),
		kPad:   make([]float64, n),
		xCoeff: make([]complex128, n/2+1),
		kCoeff: make([]complex128, n/2+1),
		seq:    make([]float64, n),
	}
}

func (p *fftPlan) convolve(dst, x, k []float64) {
	clear(p.xPad)
	clear(p.kPad)
	copy(p.xPad, x)
	copy(p.kPad, k)
	p.fft.Coefficients(p.xCoeff, p.xPad)
	p.fft.Coefficients(p.kCoeff, p.kPad)
	for i := range p.xCoeff {
		p.xCoeff[i] *= p.kCoeff[i]
	}
	p.fft.Sequence(p.seq, p.xCoeff)
	scale := 1 / float64(len(p.seq))
	for l := range dst {
		dst[l] = p.seq[l] * scale
	}
}
