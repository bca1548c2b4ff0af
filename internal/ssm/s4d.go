package ssm

import (
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/23skdu/longbow-ssm/internal/cpu"
	"github.com/23skdu/longbow-ssm/internal/metrics"
	"github.com/23skdu/longbow-ssm/internal/params"
)

// cStddev is the standard deviation of the C initializer.
const cStddev = 0.01

// S4DReal is a time-invariant diagonal SSM with real negative eigenvalues.
type S4DReal struct {
	StateDim   int
	SampleRate float64
	ConvMode   cpu.ConvMode
}

func (S4DReal) Name() string { return "S4DReal" }

// Params materialises A = -exp(A_param), B and C for the given channel
// count, and dt = 1/SampleRate.
func (m S4DReal) Params(scope *params.Scope, channels int) *Diagonal {
	logNegA := scope.Param("A", channels, m.StateDim, s4dRealInit)
	b := scope.Param("B", channels, m.StateDim, params.Ones)
	c := scope.Param("C", channels, m.StateDim, params.Normal(cStddev))

	n := channels * m.StateDim
	d := &Diagonal{
		Channels: channels,
		States:   m.StateDim,
		A:        make([]complex128, n),
		B:        make([]complex128, n),
		C:        make([]complex128, n),
		Dt:       1 / m.SampleRate,
	}
	for i, v := range logNegA.RawMatrix().Data {
		d.A[i] = complex(negExp(v), 0)
	}
	toComplex(d.B, b)
	toComplex(d.C, c)
	return d
}

func (m S4DReal) Forward(scope *params.Scope, x *mat.Dense) *mat.Dense {
	_, channels := x.Dims()
	return forwardConv(m.Name(), m.Params(scope, channels), x, m.ConvMode)
}

// S4DComplex stores StateDim/2 complex states, each paired implicitly
// with its conjugate.
type S4DComplex struct {
	StateDim   int
	SampleRate float64
	ConvMode   cpu.ConvMode
}

func (S4DComplex) Name() string { return "S4DComplex" }

func (m S4DComplex) Params(scope *params.Scope, channels int) *Diagonal {
	half := m.StateDim / 2
	logNegRe := scope.Param("A", channels, half, s4dLinInit)
	im := scope.Param("A_imag", channels, half, s4dLinImagInit)
	b := scope.Param("B", channels, half, params.Ones)
	c := scope.Param("C", channels, half, params.Normal(cStddev))

	n := channels * half
	d := &Diagonal{
		Channels:  channels,
		States:    half,
		A:         make([]complex128, n),
		B:         make([]complex128, n),
		C:         make([]complex128, n),
		Dt:        1 / m.SampleRate,
		Conjugate: true,
	}
	imData := im.RawMatrix().Data
	for i, v := range logNegRe.RawMatrix().Data {
		d.A[i] = complex(negExp(v), imData[i])
	}
	toComplex(d.B, b)
	toComplex(d.C, c)
	return d
}

func (m S4DComplex) Forward(scope *params.Scope, x *mat.Dense) *mat.Dense {
	_, channels := x.Dims()
	return forwardConv(m.Name(), m.Params(scope, channels), x, m.ConvMode)
}

func forwardConv(name string, d *Diagonal, x *mat.Dense, mode cpu.ConvMode) *mat.Dense {
	start := time.Now()
	length, _ := x.Dims()
	y := cpu.CausalConvolve(x, d.Kernel(length), mode)
	metrics.RecordForward(name, time.Since(start))
	return y
}

func toComplex(dst []complex128, m *mat.Dense) {
	for i, v := range m.RawMatrix().Data {
		dst[i] = complex(v, 0)
	}
}
