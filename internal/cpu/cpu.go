package cpu

import (
	"math"
	"runtime"
	"sync"
	"sync/atomic"

	"gonum.org/v1/gonum/mat"

	"github.com/23skdu/longbow-ssm/internal/metrics"
)

var allocatedBytes int64

func traceAlloc(delta int64) {
	newVal := atomic.AddInt64(&allocatedBytes, delta)
	metrics.RecordWorkspaceBytes(newVal)
}

// AllocatedBytes reports bytes currently owned by all workspace pools.
func AllocatedBytes() int64 {
	return atomic.LoadInt64(&allocatedBytes)
}

var parallelism atomic.Int64

// SetParallelism caps the goroutines used by ParallelFor. n <= 0 restores
// the runtime.NumCPU() default.
func SetParallelism(n int) {
	if n < 0 {
		n = 0
	}
	parallelism.Store(int64(n))
}

func Parallelism() int {
	if p := parallelism.Load(); p > 0 {
		return int(p)
	}
	return runtime.NumCPU()
}

// ParallelFor splits [0, n) into contiguous chunks and runs fn on each
// chunk in its own goroutine.
func ParallelFor(n int, fn func(start, end int)) {
	if n <= 0 {
		return
	}
	p := Parallelism()
	if p > n {
		p = n
	}
	if p <= 1 {
		fn(0, n)
		return
	}
	chunkSize := (n + p - 1) / p
	var wg sync.WaitGroup
	for i := 0; i < n; i += chunkSize {
		end := i + chunkSize
		if end > n {
			end = n
		}
		wg.Add(1)
		go func(start, end int) {
			defer wg.Done()
			fn(start, end)
		}(i, end)
	}
	wg.Wait()
}

// Context is a pooled scratch workspace. Buffers are keyed by length and
// handed out zeroed; callers return them with the matching Put method.
type Context struct {
	mu      sync.Mutex
	floats  map[int][][]float64
	complex map[int][][]complex128
	owned   int64
}

func NewContext() *Context {
	return &Context{
		floats:  make(map[int][][]float64),
		complex: make(map[int][][]complex128),
	}
}

// Free drops every pooled buffer and releases its accounting.
func (c *Context) Free() {
	c.mu.Lock()
	defer c.mu.Unlock()
	traceAlloc(-c.owned)
	c.owned = 0
	c.floats = make(map[int][][]float64)
	c.complex = make(map[int][][]complex128)
}

func (c *Context) Floats(n int) []float64 {
	c.mu.Lock()
	pool := c.floats[n]
	if len(pool) > 0 {
		buf := pool[len(pool)-1]
		c.floats[n] = pool[:len(pool)-1]
		c.mu.Unlock()
		clear(buf)
		return buf
	}
	c.owned += int64(n) * 8
	c.mu.Unlock()
	traceAlloc(int64(n) * 8)
	return make([]float64, n)
}

func (c *Context) PutFloats(buf []float64) {
	if buf == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.floats[len(buf)] = append(c.floats[len(buf)], buf)
}

func (c *Context) Complex(n int) []complex128 {
	c.mu.Lock()
	pool := c.complex[n]
	if len(pool) > 0 {
		buf := pool[len(pool)-1]
		c.complex[n] = pool[:len(pool)-1]
		c.mu.Unlock()
		clear(buf)
		return buf
	}
	c.owned += int64(n) * 16
	c.mu.Unlock()
	traceAlloc(int64(n) * 16)
	return make([]complex128, n)
}

func (c *Context) PutComplex(buf []complex128) {
	if buf == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.complex[len(buf)] = append(c.complex[len(buf)], buf)
}

// Owned reports bytes allocated through this context.
func (c *Context) Owned() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.owned
}

func Sigmoid(x float64) float64 {
	return 1.0 / (1.0 + math.Exp(-x))
}

func Silu(x float64) float64 {
	return x * Sigmoid(x)
}

// Softplus computes log(1+exp(x)) without overflow for large x.
func Softplus(x float64) float64 {
	if x > 30 {
		return x
	}
	return math.Log1p(math.Exp(x))
}

// SiluDense applies SiLU element-wise into a new matrix.
func SiluDense(x mat.Matrix) *mat.Dense {
	var out mat.Dense
	out.Apply(func(_, _ int, v float64) float64 { return Silu(v) }, x)
	return &out
}

// Linear computes x·kernel (+ bias broadcast over rows). kernel is
// (in, out); bias may be nil.
func Linear(x, kernel *mat.Dense, bias []float64) *mat.Dense {
	rows, _ := x.Dims()
	_, cols := kernel.Dims()
	out := mat.NewDense(rows, cols, nil)
	out.Mul(x, kernel)
	if bias != nil {
		ParallelFor(rows, func(start, end int) {
			for r := start; r < end; r++ {
				row := out.RawRowView(r)
				for j := range row {
					row[j] += bias[j]
				}
			}
		})
	}
	return out
}

// RMSNorm scales every row by the reciprocal root-mean-square of that row,
// then multiplies element-wise by scale.
func RMSNorm(x *mat.Dense, scale []float64, eps float64) *mat.Dense {
	rows, cols := x.Dims()
	out := mat.NewDense(rows, cols, nil)
	ParallelFor(rows, func(start, end int) {
		for r := start; r < end; r++ {
			in := x.RawRowView(r)
			dst := out.RawRowView(r)
			var sum float64
			for _, v := range in {
				sum += v * v
			}
			inv := 1.0 / math.Sqrt(sum/float64(cols)+eps)
			for j, v := range in {
				dst[j] = v * inv * scale[j]
			}
		}
	})
	return out
}

// DepthwiseCausalConv convolves each channel with its own window of
// kernel rows (width, channels). Output at step t reads inputs
// t-width+1 .. t only; missing history is zero.
func DepthwiseCausalConv(x, kernel *mat.Dense, bias []float64) *mat.Dense {
	length, channels := x.Dims()
	width, _ := kernel.Dims()
	out := mat.NewDense(length, channels, nil)
	ParallelFor(length, func(start, end int) {
		for t := start; t < end; t++ {
			dst := out.RawRowView(t)
			if bias != nil {
				copy(dst, bias)
			}
			for k := 0; k < width; k++ {
				src := t - (width - 1) + k
				if src < 0 {
					continue
				}
				in := x.RawRowView(src)
				w := kernel.RawRowView(k)
				for c := 0; c < channels; c++ {
					dst[c] += w[c] * in[c]
				}
			}
		}
	})
	return out
}

// CountNonFinite returns the number of NaN and ±Inf entries in m.
func CountNonFinite(m mat.Matrix) (nans, infs int) {
	r, c := m.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			v := m.At(i, j)
			switch {
			case math.IsNaN(v):
				nans++
			case math.IsInf(v, 0):
				infs++
			}
		}
	}
	return nans, infs
}
