package ssm

import (
	"math/cmplx"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/23skdu/longbow-ssm/internal/cpu"
	"github.com/23skdu/longbow-ssm/internal/metrics"
)

// Diagonal is a time-invariant diagonal state-space system. A, B and C are
// row-major (Channels, States). When Conjugate is set each stored state
// stands for itself and its complex conjugate, and outputs are 2·Re.
type Diagonal struct {
	Channels  int
	States    int
	A         []complex128
	B         []complex128
	C         []complex128
	Dt        float64
	Conjugate bool
}

func (d *Diagonal) outputScale() float64 {
	if d.Conjugate {
		return 2
	}
	return 1
}

// DiscreteB returns the zero-order-hold input matrix (exp(A·dt)-1)·B/A.
func (d *Diagonal) DiscreteB() []complex128 {
	out := make([]complex128, len(d.B))
	dt := complex(d.Dt, 0)
	for i, a := range d.A {
		out[i] = (cmplx.Exp(a*dt) - 1) * d.B[i] / a
	}
	return out
}

// KernelComplex returns the (length, Channels) complex kernel
//
//	K[l,c] = Σ_s C[c,s] · exp(A[c,s]·dt·l) · B̄[c,s]
//
// row-major, before conjugate doubling.
func (d *Diagonal) KernelComplex(length int) []complex128 {
	start := time.Now()
	bBar := d.DiscreteB()
	k := make([]complex128, length*d.Channels)
	dt := complex(d.Dt, 0)
	cpu.ParallelFor(d.Channels, func(cStart, cEnd int) {
		for c := cStart; c < cEnd; c++ {
			row := c * d.States
			for s := 0; s < d.States; s++ {
				a := d.A[row+s] * dt
				cb := d.C[row+s] * bBar[row+s]
				for l := 0; l < length; l++ {
					k[l*d.Channels+c] += cb * cmplx.Exp(a*complex(float64(l), 0))
				}
			}
		}
	})
	metrics.RecordKernelDuration("conv_kernel", time.Since(start))
	return k
}

// Kernel is the real (length, Channels) convolution kernel.
func (d *Diagonal) Kernel(length int) *mat.Dense {
	kc := d.KernelComplex(length)
	scale := d.outputScale()
	out := mat.NewDense(length, d.Channels, nil)
	data := out.RawMatrix().Data
	for i, v := range kc {
		data[i] = scale * real(v)
	}
	return out
}

// Recurrence evaluates the discretised system step by step,
// h[l] = exp(A·dt)·h[l-1] + B̄·x[l], y[l] = C·h[l]. It is the reference the
// convolution form is checked against.
func (d *Diagonal) Recurrence(x *mat.Dense) *mat.Dense {
	length, _ := x.Dims()
	bBar := d.DiscreteB()
	dt := complex(d.Dt, 0)
	aBar := make([]complex128, len(d.A))
	for i, a := range d.A {
		aBar[i] = cmplx.Exp(a * dt)
	}
	h := make([]complex128, len(d.A))
	out := mat.NewDense(length, d.Channels, nil)
	scale := d.outputScale()
	for l := 0; l < length; l++ {
		for c := 0; c < d.Channels; c++ {
			u := complex(x.At(l, c), 0)
			var y complex128
			for s := 0; s < d.States; s++ {
				i := c*d.States + s
				h[i] = aBar[i]*h[i] + bBar[i]*u
				y += d.C[i] * h[i]
			}
			out.Set(l, c, scale*real(y))
		}
	}
	return out
}
