// Package ssm implements diagonal state-space sequence layers: the
// time-invariant S4D family, evaluated as a causal convolution with a
// kernel derived from (A, B, C, dt), and the selective S6D family whose
// B, C and dt depend on the input and which is evaluated with a parallel
// associative scan. Complex variants store half the states and rely on
// conjugate symmetry.
package ssm

import (
	"fmt"
	"sort"
	"strings"

	"gonum.org/v1/gonum/mat"

	"github.com/23skdu/longbow-ssm/internal/cpu"
	"github.com/23skdu/longbow-ssm/internal/params"
)

// Layer maps a (length, channels) sequence to a sequence of the same shape,
// reading its parameters from scope.
type Layer interface {
	Name() string
	Forward(scope *params.Scope, x *mat.Dense) *mat.Dense
}

// Options configure a layer built by a Factory.
type Options struct {
	StateDim   int
	SampleRate float64
	ConvMode   cpu.ConvMode
}

type Factory func(opts Options) Layer

var registry = map[string]Factory{
	"s4d-real": func(o Options) Layer {
		return S4DReal{StateDim: o.StateDim, SampleRate: o.SampleRate, ConvMode: o.ConvMode}
	},
	"s4d-complex": func(o Options) Layer {
		return S4DComplex{StateDim: o.StateDim, SampleRate: o.SampleRate, ConvMode: o.ConvMode}
	},
	"s6d-real": func(o Options) Layer {
		return S6DReal{StateDim: o.StateDim, SampleRate: o.SampleRate}
	},
	"s6d-complex": func(o Options) Layer {
		return S6DComplex{StateDim: o.StateDim, SampleRate: o.SampleRate}
	},
}

// Lookup resolves a variant name such as "s6d-real" to its Factory.
func Lookup(name string) (Factory, error) {
	f, ok := registry[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("unknown ssm variant %q (known: %s)", name, strings.Join(Variants(), ", "))
	}
	return f, nil
}

func Variants() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
