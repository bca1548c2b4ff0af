// Package nn holds the parameterised building blocks shared by the SSM
// layers and the residual blocks. Each module reads its weights from the
// scope it is handed; callers pick the scope with params.Scope.Child.
package nn

import (
	"gonum.org/v1/gonum/mat"

	"github.com/23skdu/longbow-ssm/internal/cpu"
	"github.com/23skdu/longbow-ssm/internal/params"
)

const DefaultEps = 1e-6

// Dense is an affine projection x·kernel + bias with kernel (in, Features).
type Dense struct {
	Features int
	UseBias  bool
}

func (d Dense) Forward(scope *params.Scope, x *mat.Dense) *mat.Dense {
	_, in := x.Dims()
	kernel := scope.Param("kernel", in, d.Features, params.LecunNormal(in))
	var bias []float64
	if d.UseBias {
		bias = scope.Param("bias", 1, d.Features, params.Zeros).RawRowView(0)
	}
	return cpu.Linear(x, kernel, bias)
}

// RMSNorm normalises each time step by its root-mean-square and applies a
// learned per-channel scale.
type RMSNorm struct {
	Eps float64
}

func (n RMSNorm) Forward(scope *params.Scope, x *mat.Dense) *mat.Dense {
	_, channels := x.Dims()
	eps := n.Eps
	if eps == 0 {
		eps = DefaultEps
	}
	scale := scope.Param("scale", 1, channels, params.Ones)
	return cpu.RMSNorm(x, scale.RawRowView(0), eps)
}

// CausalConv is a depthwise convolution over a window of KernelSize steps,
// left padded so step t only sees steps t-KernelSize+1 .. t.
type CausalConv struct {
	KernelSize int
	UseBias    bool
}

func (cc CausalConv) Forward(scope *params.Scope, x *mat.Dense) *mat.Dense {
	_, channels := x.Dims()
	kernel := scope.Param("kernel", cc.KernelSize, channels, params.LecunNormal(cc.KernelSize))
	var bias []float64
	if cc.UseBias {
		bias = scope.Param("bias", 1, channels, params.Zeros).RawRowView(0)
	}
	return cpu.DepthwiseCausalConv(x, kernel, bias)
}

func Silu(x *mat.Dense) *mat.Dense {
	return cpu.SiluDense(x)
}
