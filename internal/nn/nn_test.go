package nn

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/23skdu/longbow-ssm/internal/params"
)

func sequence(length, channels int) *mat.Dense {
	x := mat.NewDense(length, channels, nil)
	for l := 0; l < length; l++ {
		for c := 0; c < channels; c++ {
			x.Set(l, c, math.Sin(0.3*float64(l+1)+float64(c)))
		}
	}
	return x
}

func TestDenseShapesAndParams(t *testing.T) {
	tests := []struct {
		name     string
		dense    Dense
		wantKeys []string
	}{
		{"with bias", Dense{Features: 6, UseBias: true}, []string{"Dense_0/bias", "Dense_0/kernel"}},
		{"no bias", Dense{Features: 6}, []string{"Dense_0/kernel"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := params.NewStore(3)
			out := tt.dense.Forward(store.Root().Child("Dense"), sequence(5, 4))
			if r, c := out.Dims(); r != 5 || c != 6 {
				t.Fatalf("output dims (%d, %d)", r, c)
			}
			names := store.Names()
			if len(names) != len(tt.wantKeys) {
				t.Fatalf("params = %v, want %v", names, tt.wantKeys)
			}
			for i := range names {
				if names[i] != tt.wantKeys[i] {
					t.Errorf("param %d = %s, want %s", i, names[i], tt.wantKeys[i])
				}
			}
			kernel, _ := store.Get("Dense_0/kernel")
			if r, c := kernel.Dims(); r != 4 || c != 6 {
				t.Errorf("kernel dims (%d, %d)", r, c)
			}
		})
	}
}

func TestDenseZeroedIsZero(t *testing.T) {
	store := params.NewStore(0)
	Dense{Features: 3, UseBias: true}.Forward(store.Root().Child("Dense"), sequence(4, 2))
	store.Zero("")
	out := Dense{Features: 3, UseBias: true}.Forward(store.Root().Child("Dense"), sequence(4, 2))
	if mat.Norm(out, 1) != 0 {
		t.Errorf("zeroed Dense produced non-zero output")
	}
}

func TestRMSNormUnitRMS(t *testing.T) {
	store := params.NewStore(0)
	out := RMSNorm{}.Forward(store.Root().Child("RMSNorm"), sequence(3, 8))
	for r := 0; r < 3; r++ {
		row := out.RawRowView(r)
		rms := math.Sqrt(floats.Dot(row, row) / float64(len(row)))
		if math.Abs(rms-1) > 1e-5 {
			t.Errorf("row %d rms = %v", r, rms)
		}
	}
	if _, ok := store.Get("RMSNorm_0/scale"); !ok {
		t.Error("scale parameter not created")
	}
}

func TestCausalConvIsCausal(t *testing.T) {
	store := params.NewStore(9)
	conv := CausalConv{KernelSize: 3, UseBias: true}
	x := sequence(8, 2)
	base := conv.Forward(store.Root().Child("Conv"), x)

	x.Set(5, 0, x.At(5, 0)+10)
	x.Set(5, 1, x.At(5, 1)-10)
	perturbed := conv.Forward(store.Root().Child("Conv"), x)

	for l := 0; l < 5; l++ {
		if !floats.Equal(base.RawRowView(l), perturbed.RawRowView(l)) {
			t.Errorf("step %d depends on step 5", l)
		}
	}
	if floats.Equal(base.RawRowView(5), perturbed.RawRowView(5)) {
		t.Error("step 5 did not react to its own input")
	}
	kernel, _ := store.Get("Conv_0/kernel")
	if r, c := kernel.Dims(); r != 3 || c != 2 {
		t.Errorf("kernel dims (%d, %d)", r, c)
	}
}

func TestSilu(t *testing.T) {
	out := Silu(mat.NewDense(1, 2, []float64{0, 100}))
	if out.At(0, 0) != 0 || math.Abs(out.At(0, 1)-100) > 1e-9 {
		t.Errorf("Silu = %v", out.RawRowView(0))
	}
}
