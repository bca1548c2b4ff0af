package ssm

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"

	"github.com/23skdu/longbow-ssm/internal/params"
)

// InitAS4DReal returns the S4D-real log-parameter: entry [c,s] = log(s+1),
// so that A = -exp(param) = -(s+1).
func InitAS4DReal(channels, stateDim int) *mat.Dense {
	m := mat.NewDense(channels, stateDim, nil)
	for c := 0; c < channels; c++ {
		row := m.RawRowView(c)
		for s := range row {
			row[s] = math.Log(float64(s + 1))
		}
	}
	return m
}

// InitAS4DLin returns the S4D-lin parameters for half complex states:
// A = -0.5 + i·k for k = 0..half-1, stored as log(0.5) and k.
func InitAS4DLin(channels, half int) (logNegReal, imag *mat.Dense) {
	logNegReal = mat.NewDense(channels, half, nil)
	imag = mat.NewDense(channels, half, nil)
	for c := 0; c < channels; c++ {
		re := logNegReal.RawRowView(c)
		im := imag.RawRowView(c)
		for k := range re {
			re[k] = math.Log(0.5)
			im[k] = float64(k)
		}
	}
	return logNegReal, imag
}

var s4dRealInit = params.Initializer{
	Name: "s4d_real",
	Fn: func(_ *rand.Rand, rows, cols int) []float64 {
		return InitAS4DReal(rows, cols).RawMatrix().Data
	},
}

var s4dLinInit = params.Initializer{
	Name: "s4d_lin",
	Fn: func(_ *rand.Rand, rows, cols int) []float64 {
		re, _ := InitAS4DLin(rows, cols)
		return re.RawMatrix().Data
	},
}

var s4dLinImagInit = params.Initializer{
	Name: "s4d_lin_imag",
	Fn: func(_ *rand.Rand, rows, cols int) []float64 {
		_, im := InitAS4DLin(rows, cols)
		return im.RawMatrix().Data
	},
}

// negExp maps a log-parameter to the strictly negative real part -exp(p).
func negExp(p float64) float64 {
	return -math.Exp(p)
}
