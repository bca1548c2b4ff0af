package params

import (
	"math"
	"math/rand/v2"
	"testing"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

func TestChildNumbering(t *testing.T) {
	root := NewStore(0).Root()
	a := root.Child("Dense")
	b := root.Child("Dense")
	c := root.Child("RMSNorm")
	if a.Path() != "Dense_0" || b.Path() != "Dense_1" || c.Path() != "RMSNorm_0" {
		t.Errorf("unexpected paths: %s %s %s", a.Path(), b.Path(), c.Path())
	}
	if got := a.Child("Inner").Path(); got != "Dense_0/Inner_0" {
		t.Errorf("nested path = %s", got)
	}
}

func TestParamCreatedOnceAndReused(t *testing.T) {
	store := NewStore(1)
	first := store.Root().Child("Dense").Param("kernel", 3, 2, Normal(1))
	second := store.Root().Child("Dense").Param("kernel", 3, 2, Ones)

	if first != second {
		t.Error("second root should resolve the same parameter")
	}
	if store.Len() != 1 {
		t.Errorf("expected 1 parameter, got %d", store.Len())
	}
	if store.Bytes() != 3*2*8 {
		t.Errorf("Bytes = %d", store.Bytes())
	}
}

func TestParamDeterministicPerSeed(t *testing.T) {
	a := NewStore(42).Root().Param("C", 4, 8, Normal(0.01))
	b := NewStore(42).Root().Param("C", 4, 8, Normal(0.01))
	c := NewStore(43).Root().Param("C", 4, 8, Normal(0.01))
	d := NewStore(42).Root().Param("B", 4, 8, Normal(0.01))

	if !mat.Equal(a, b) {
		t.Error("same seed and path should give identical values")
	}
	if mat.Equal(a, c) {
		t.Error("different seeds should differ")
	}
	if mat.Equal(a, d) {
		t.Error("different paths should differ")
	}
}

func TestParamShapeMismatchPanics(t *testing.T) {
	store := NewStore(0)
	store.Root().Param("A", 2, 2, Zeros)

	defer func() {
		if recover() == nil {
			t.Error("expected panic on shape mismatch")
		}
	}()
	store.Root().Param("A", 2, 3, Zeros)
}

func TestSetGetZero(t *testing.T) {
	store := NewStore(0)
	root := store.Root()
	root.Named("block").Param("scale", 1, 3, Ones)
	root.Param("other", 1, 1, Ones)

	store.Zero("block/")
	scale, ok := store.Get("block/scale")
	if !ok {
		t.Fatal("missing block/scale")
	}
	if mat.Sum(scale) != 0 {
		t.Errorf("scale not zeroed: %v", mat.Formatted(scale))
	}
	other, _ := store.Get("other")
	if other.At(0, 0) != 1 {
		t.Error("Zero touched a parameter outside the prefix")
	}

	store.Set("other", mat.NewDense(1, 1, []float64{5}))
	if v, _ := store.Get("other"); v.At(0, 0) != 5 {
		t.Error("Set did not replace the parameter")
	}
	if names := store.Names(); len(names) != 2 || names[0] != "block/scale" {
		t.Errorf("Names = %v", names)
	}
}

func TestLecunNormalStatistics(t *testing.T) {
	const fanIn = 16
	data := LecunNormal(fanIn).Fn(rand.New(rand.NewPCG(7, 0)), 200, 50)

	limit := 2 * math.Sqrt(1.0/fanIn) / truncatedStd
	for _, v := range data {
		if math.Abs(v) > limit+1e-12 {
			t.Fatalf("value %v outside truncation bound %v", v, limit)
		}
	}
	variance := stat.Variance(data, nil)
	if math.Abs(variance-1.0/fanIn) > 0.1/fanIn {
		t.Errorf("variance = %v, want about %v", variance, 1.0/fanIn)
	}
}

func TestConstantAndFromMatrix(t *testing.T) {
	c := Constant(2.5).Fn(nil, 2, 2)
	for _, v := range c {
		if v != 2.5 {
			t.Fatalf("constant value %v", v)
		}
	}
	m := FromMatrix("fixed", []float64{1, 2, 3, 4}).Fn(nil, 2, 2)
	if m[3] != 4 {
		t.Errorf("FromMatrix = %v", m)
	}
}
