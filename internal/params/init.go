package params

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"
)

// Initializer produces the row-major initial values of a (rows, cols)
// parameter from a per-parameter deterministic source.
type Initializer struct {
	Name string
	Fn   func(rng *rand.Rand, rows, cols int) []float64
}

var Zeros = Initializer{
	Name: "zeros",
	Fn: func(_ *rand.Rand, rows, cols int) []float64 {
		return make([]float64, rows*cols)
	},
}

var Ones = Initializer{
	Name: "ones",
	Fn: func(_ *rand.Rand, rows, cols int) []float64 {
		return Constant(1).Fn(nil, rows, cols)
	},
}

func Constant(v float64) Initializer {
	return Initializer{
		Name: "constant",
		Fn: func(_ *rand.Rand, rows, cols int) []float64 {
			data := make([]float64, rows*cols)
			for i := range data {
				data[i] = v
			}
			return data
		},
	}
}

// Normal draws from N(0, stddev²).
func Normal(stddev float64) Initializer {
	return Initializer{
		Name: "normal",
		Fn: func(rng *rand.Rand, rows, cols int) []float64 {
			dist := distuv.Normal{Mu: 0, Sigma: stddev, Src: rng}
			data := make([]float64, rows*cols)
			for i := range data {
				data[i] = dist.Rand()
			}
			return data
		},
	}
}

// truncatedStd is the standard deviation of a unit normal truncated to
// [-2, 2]; dividing by it restores unit variance after truncation.
const truncatedStd = 0.87962566103423978

// LecunNormal draws from a normal truncated at two standard deviations
// with variance 1/fanIn.
func LecunNormal(fanIn int) Initializer {
	return Initializer{
		Name: "lecun_normal",
		Fn: func(rng *rand.Rand, rows, cols int) []float64 {
			stddev := math.Sqrt(1/float64(fanIn)) / truncatedStd
			dist := distuv.Normal{Mu: 0, Sigma: 1, Src: rng}
			data := make([]float64, rows*cols)
			for i := range data {
				v := dist.Rand()
				for v < -2 || v > 2 {
					v = dist.Rand()
				}
				data[i] = v * stddev
			}
			return data
		},
	}
}

// FromMatrix wraps precomputed values (row-major) as an initializer.
func FromMatrix(name string, data []float64) Initializer {
	return Initializer{
		Name: name,
		Fn: func(_ *rand.Rand, rows, cols int) []float64 {
			out := make([]float64, rows*cols)
			copy(out, data)
			return out
		},
	}
}
