package engine

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/23skdu/longbow-ssm/internal/block"
	"github.com/23skdu/longbow-ssm/internal/config"
	"github.com/23skdu/longbow-ssm/internal/cpu"
	"github.com/23skdu/longbow-ssm/internal/logger"
	"github.com/23skdu/longbow-ssm/internal/metrics"
	"github.com/23skdu/longbow-ssm/internal/params"
	"github.com/23skdu/longbow-ssm/internal/ssm"
)

var (
	ErrEmptySequence   = errors.New("empty sequence")
	ErrChannelMismatch = errors.New("channel count mismatch")
	ErrNoKernel        = errors.New("ssm variant has no convolution kernel")
)

// Engine runs a configured stack of residual SSM blocks against a parameter
// store. Forward is safe for concurrent use.
type Engine struct {
	Config    config.Config
	Store     *params.Store
	Stack     *block.Stack
	ActLogger *ActivationLogger

	forwards    atomic.Int64
	lastForward atomic.Int64
	nonFinite   atomic.Int64
}

// Stats is a point-in-time summary for health reporting.
type Stats struct {
	Forwards       int64
	NonFinite      int64
	LastForward    time.Time
	Parameters     int
	ParameterBytes int64
}

// NewEngine validates cfg and builds its block stack over a fresh store
// seeded with cfg.Seed. Parameters are created on the first forward pass.
func NewEngine(cfg config.Config) (*Engine, error) {
	return NewEngineWithStore(cfg, params.NewStore(cfg.Seed))
}

// NewEngineWithStore is NewEngine over a caller-owned store.
func NewEngineWithStore(cfg config.Config, store *params.Store) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	mode, err := cpu.ParseConvMode(cfg.GetConvMode())
	if err != nil {
		return nil, err
	}
	factory, err := ssm.Lookup(cfg.SSMVariant())
	if err != nil {
		return nil, err
	}
	cpu.SetParallelism(cfg.Workers)

	opts := ssm.Options{StateDim: cfg.StateDim, SampleRate: cfg.SampleRate, ConvMode: mode}
	blocks := make([]block.Block, cfg.Layers)
	for i := range blocks {
		switch cfg.GetBlock() {
		case config.BlockMamba:
			blocks[i] = block.MambaBlock{StateDim: cfg.StateDim, SampleRate: cfg.SampleRate, Eps: cfg.Eps, SSM: factory, Options: opts}
		default:
			blocks[i] = block.S4DBlock{StateDim: cfg.StateDim, SampleRate: cfg.SampleRate, Eps: cfg.Eps, SSM: factory, Options: opts}
		}
	}

	e := &Engine{
		Config:    cfg,
		Store:     store,
		Stack:     &block.Stack{Blocks: blocks},
		ActLogger: NewActivationLogger(),
	}
	logger.Log.Info("Engine ready",
		"block", cfg.GetBlock(),
		"variant", cfg.SSMVariant(),
		"layers", cfg.Layers,
		"channels", cfg.Channels,
		"state_dim", cfg.StateDim,
		"conv_mode", mode.String(),
		"workers", cpu.Parallelism())
	return e, nil
}

// Forward maps a (length, channels) sequence through the stack.
func (e *Engine) Forward(x *mat.Dense) (*mat.Dense, error) {
	if x == nil || x.IsEmpty() {
		return nil, ErrEmptySequence
	}
	length, channels := x.Dims()
	if channels != e.Config.Channels {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrChannelMismatch, channels, e.Config.Channels)
	}

	start := time.Now()
	var hook func(int, block.Block, *mat.Dense)
	if e.ActLogger.IsEnabled() {
		e.ActLogger.Enable(x)
		hook = func(i int, b block.Block, out *mat.Dense) {
			e.ActLogger.LogBlock(i, b.Name(), out)
		}
	}
	y := e.Stack.ForwardEach(e.Store.Root(), x, hook)

	if audit := AuditOutput(y); audit.HasNaN || audit.HasInf {
		metrics.RecordNumericalInstability("output", audit.NumNaNs, audit.NumInfs)
		e.nonFinite.Add(1)
		logger.Log.Warn("Non-finite values in forward output",
			"nan", audit.NumNaNs, "inf", audit.NumInfs, "length", length)
	}

	elapsed := time.Since(start)
	metrics.RecordForward("engine", elapsed)
	metrics.RecordSequenceLength(length)
	e.forwards.Add(1)
	e.lastForward.Store(time.Now().UnixNano())
	logger.Log.Debug("Forward complete", "length", length, "duration", elapsed)
	return y, nil
}

type kernelLayer interface {
	Name() string
	Params(scope *params.Scope, channels int) *ssm.Diagonal
}

// Kernel returns the convolution kernel the first block's SSM core would
// apply to a sequence of the given length.
func (e *Engine) Kernel(length int) (*mat.Dense, error) {
	if length <= 0 {
		return nil, ErrEmptySequence
	}
	b := e.Stack.Blocks[0]
	layer, ok := b.Layer().(kernelLayer)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoKernel, e.Config.SSMVariant())
	}
	scope := block.BlockScope(e.Store.Root(), 0, b).Child(layer.Name())
	return layer.Params(scope, b.InnerWidth(e.Config.Channels)).Kernel(length), nil
}

func (e *Engine) Stats() Stats {
	s := Stats{
		Forwards:       e.forwards.Load(),
		NonFinite:      e.nonFinite.Load(),
		Parameters:     e.Store.Len(),
		ParameterBytes: e.Store.Bytes(),
	}
	if ns := e.lastForward.Load(); ns > 0 {
		s.LastForward = time.Unix(0, ns)
	}
	return s
}

// Close releases pooled workspace buffers.
func (e *Engine) Close() {
	e.Store.Workspace().Free()
}
