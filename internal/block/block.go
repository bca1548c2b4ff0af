// Package block composes SSM layers into residual blocks.
package block

import (
	"fmt"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/23skdu/longbow-ssm/internal/metrics"
	"github.com/23skdu/longbow-ssm/internal/nn"
	"github.com/23skdu/longbow-ssm/internal/params"
	"github.com/23skdu/longbow-ssm/internal/ssm"
)

// Block is a residual sequence-to-sequence module.
type Block interface {
	Name() string
	Forward(scope *params.Scope, x *mat.Dense) *mat.Dense
	// InnerWidth is the channel count the SSM core sees for a block input
	// of the given width.
	InnerWidth(channels int) int
	// Layer returns the SSM core the block runs.
	Layer() ssm.Layer
}

// S4DBlock computes x + Dense(SSM(RMSNorm(x))).
type S4DBlock struct {
	StateDim   int
	SampleRate float64
	Eps        float64
	SSM        ssm.Factory
	Options    ssm.Options
}

func (S4DBlock) Name() string { return "S4DBlock" }

func (S4DBlock) InnerWidth(channels int) int { return channels }

func (b S4DBlock) Forward(scope *params.Scope, x *mat.Dense) *mat.Dense {
	start := time.Now()
	_, channels := x.Dims()

	h := nn.RMSNorm{Eps: b.Eps}.Forward(scope.Child("RMSNorm"), x)
	layer := b.Layer()
	h = layer.Forward(scope.Child(layer.Name()), h)
	h = nn.Dense{Features: channels, UseBias: true}.Forward(scope.Child("Dense"), h)
	h.Add(h, x)

	metrics.RecordForward(b.Name(), time.Since(start))
	return h
}

func (b S4DBlock) Layer() ssm.Layer {
	factory := b.SSM
	if factory == nil {
		factory = mustLookup("s4d-complex")
	}
	return factory(withShape(b.Options, b.StateDim, b.SampleRate))
}

// MambaBlock computes x + Dense(ssm(n) ⊙ gate(n)) with n = RMSNorm(x), where
// the ssm branch is Dense(2C) → causal conv → SiLU → SSM and the gate
// branch is Dense(2C) → SiLU.
type MambaBlock struct {
	StateDim   int
	SampleRate float64
	Eps        float64
	SSM        ssm.Factory
	Options    ssm.Options
}

func (MambaBlock) Name() string { return "MambaBlock" }

func (MambaBlock) InnerWidth(channels int) int { return 2 * channels }

func (b MambaBlock) Forward(scope *params.Scope, x *mat.Dense) *mat.Dense {
	start := time.Now()
	_, channels := x.Dims()

	n := nn.RMSNorm{Eps: b.Eps}.Forward(scope.Child("RMSNorm"), x)

	branch := nn.Dense{Features: 2 * channels}.Forward(scope.Child("Dense"), n)
	branch = nn.CausalConv{KernelSize: b.StateDim, UseBias: true}.Forward(scope.Child("Conv"), branch)
	branch = nn.Silu(branch)
	layer := b.Layer()
	branch = layer.Forward(scope.Child(layer.Name()), branch)

	gate := nn.Dense{Features: 2 * channels}.Forward(scope.Child("Dense"), n)
	gate = nn.Silu(gate)

	branch.MulElem(branch, gate)
	out := nn.Dense{Features: channels}.Forward(scope.Child("Dense"), branch)
	out.Add(out, x)

	metrics.RecordForward(b.Name(), time.Since(start))
	return out
}

func (b MambaBlock) Layer() ssm.Layer {
	factory := b.SSM
	if factory == nil {
		factory = mustLookup("s6d-real")
	}
	return factory(withShape(b.Options, b.StateDim, b.SampleRate))
}

func withShape(opts ssm.Options, stateDim int, sampleRate float64) ssm.Options {
	opts.StateDim = stateDim
	opts.SampleRate = sampleRate
	return opts
}

func mustLookup(name string) ssm.Factory {
	f, err := ssm.Lookup(name)
	if err != nil {
		panic(err)
	}
	return f
}

// Stack applies its blocks in order, each under its own "block_i" scope.
type Stack struct {
	Blocks []Block
}

func (s *Stack) Forward(scope *params.Scope, x *mat.Dense) *mat.Dense {
	return s.ForwardEach(scope, x, nil)
}

// ForwardEach is Forward with a callback after every block; fn may be nil.
func (s *Stack) ForwardEach(scope *params.Scope, x *mat.Dense, fn func(i int, b Block, out *mat.Dense)) *mat.Dense {
	h := x
	for i, b := range s.Blocks {
		h = b.Forward(BlockScope(scope, i, b), h)
		if fn != nil {
			fn(i, b, h)
		}
	}
	return h
}

// BlockScope is the scope block i of a stack reads its parameters from.
func BlockScope(root *params.Scope, i int, b Block) *params.Scope {
	return root.Named(fmt.Sprintf("block_%d", i)).Child(b.Name())
}

func (s *Stack) Len() int {
	return len(s.Blocks)
}
