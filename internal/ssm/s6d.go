package ssm

import (
	"math/cmplx"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/23skdu/longbow-ssm/internal/cpu"
	"github.com/23skdu/longbow-ssm/internal/metrics"
	"github.com/23skdu/longbow-ssm/internal/nn"
	"github.com/23skdu/longbow-ssm/internal/params"
)

// Selective holds the input-dependent parameters of one S6D evaluation.
// A is (Channels, States); B and C are (Length, States); Dt is
// (Length, Channels). All row-major.
type Selective struct {
	Length    int
	Channels  int
	States    int
	A         []complex128
	B         []complex128
	C         []complex128
	Dt        []float64
	Conjugate bool
}

// Apply discretises the system per step, scans it from initial state h0
// (lane-major (Channels, States), nil for zero) and reads out
// y[l,c] = Σ_s C[l,s]·h[l,c,s]. Scan buffers come from ws when non-nil.
func (s *Selective) Apply(ws *cpu.Context, x *mat.Dense, h0 []complex128) *mat.Dense {
	lanes := s.Channels * s.States
	n := s.Length * lanes
	var at, ut []complex128
	if ws != nil {
		at, ut = ws.Complex(n), ws.Complex(n)
		defer ws.PutComplex(at)
		defer ws.PutComplex(ut)
	} else {
		at, ut = make([]complex128, n), make([]complex128, n)
	}

	cpu.ParallelFor(s.Length, func(lStart, lEnd int) {
		for l := lStart; l < lEnd; l++ {
			for c := 0; c < s.Channels; c++ {
				dt := complex(s.Dt[l*s.Channels+c], 0)
				u := complex(x.At(l, c), 0)
				for st := 0; st < s.States; st++ {
					a := s.A[c*s.States+st]
					e := cmplx.Exp(a * dt)
					i := l*lanes + c*s.States + st
					at[i] = e
					ut[i] = (e - 1) / a * s.B[l*s.States+st] * u
				}
			}
		}
	})

	ScanSSM(at, ut, s.Length, lanes, h0)

	scale := 1.0
	if s.Conjugate {
		scale = 2
	}
	out := mat.NewDense(s.Length, s.Channels, nil)
	cpu.ParallelFor(s.Length, func(lStart, lEnd int) {
		for l := lStart; l < lEnd; l++ {
			cRow := s.C[l*s.States : (l+1)*s.States]
			dst := out.RawRowView(l)
			for c := range dst {
				h := ut[l*lanes+c*s.States : l*lanes+(c+1)*s.States]
				var y complex128
				for st, cv := range cRow {
					y += cv * h[st]
				}
				dst[c] = scale * real(y)
			}
		}
	})
	return out
}

// S6DReal is the selective SSM with real eigenvalues: B, C and dt are
// projections of the input.
type S6DReal struct {
	StateDim   int
	SampleRate float64
}

func (S6DReal) Name() string { return "S6DReal" }

func (m S6DReal) Params(scope *params.Scope, x *mat.Dense) *Selective {
	length, channels := x.Dims()
	logNegA := scope.Param("A", channels, m.StateDim, s4dRealInit)
	s := newSelective(scope, x, m.StateDim, m.SampleRate)
	for i, v := range logNegA.RawMatrix().Data {
		s.A[i] = complex(negExp(v), 0)
	}
	s.Length, s.Channels = length, channels
	return s
}

func (m S6DReal) Forward(scope *params.Scope, x *mat.Dense) *mat.Dense {
	start := time.Now()
	y := m.Params(scope, x).Apply(scope.Store().Workspace(), x, nil)
	metrics.RecordForward(m.Name(), time.Since(start))
	return y
}

// S6DComplex stores StateDim/2 complex states paired with their
// conjugates. The B and C projections are real and enter the scan with a
// zero imaginary part.
type S6DComplex struct {
	StateDim   int
	SampleRate float64
}

func (S6DComplex) Name() string { return "S6DComplex" }

func (m S6DComplex) Params(scope *params.Scope, x *mat.Dense) *Selective {
	length, channels := x.Dims()
	half := m.StateDim / 2
	logNegRe := scope.Param("A", channels, half, s4dLinInit)
	im := scope.Param("A_imag", channels, half, s4dLinImagInit)
	s := newSelective(scope, x, half, m.SampleRate)
	imData := im.RawMatrix().Data
	for i, v := range logNegRe.RawMatrix().Data {
		s.A[i] = complex(negExp(v), imData[i])
	}
	s.Length, s.Channels = length, channels
	s.Conjugate = true
	return s
}

func (m S6DComplex) Forward(scope *params.Scope, x *mat.Dense) *mat.Dense {
	start := time.Now()
	y := m.Params(scope, x).Apply(scope.Store().Workspace(), x, nil)
	metrics.RecordForward(m.Name(), time.Since(start))
	return y
}

// newSelective builds the input-dependent terms shared by both variants:
// B = 1 + Dense(states)(x), C = Dense(states)(x) and
// dt = softplus(1/sampleRate + Dense(channels)(x)). A is left for the
// caller.
func newSelective(scope *params.Scope, x *mat.Dense, states int, sampleRate float64) *Selective {
	_, channels := x.Dims()
	bProj := nn.Dense{Features: states, UseBias: true}.Forward(scope.Child("Dense"), x)
	cProj := nn.Dense{Features: states, UseBias: true}.Forward(scope.Child("Dense"), x)
	dtProj := nn.Dense{Features: channels, UseBias: true}.Forward(scope.Child("Dense"), x)

	bData := bProj.RawMatrix().Data
	cData := cProj.RawMatrix().Data
	s := &Selective{
		States: states,
		A:      make([]complex128, channels*states),
		B:      make([]complex128, len(bData)),
		C:      make([]complex128, len(cData)),
		Dt:     dtProj.RawMatrix().Data,
	}
	for i, v := range bData {
		s.B[i] = complex(1+v, 0)
	}
	for i, v := range cData {
		s.C[i] = complex(v, 0)
	}
	inv := 1 / sampleRate
	for i, v := range s.Dt {
		s.Dt[i] = cpu.Softplus(inv + v)
	}
	return s
}
