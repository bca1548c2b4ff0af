package engine

import (
	"fmt"
	"math"
	"os"
	"sync"

	"github.com/goccy/go-json"
	"gonum.org/v1/gonum/mat"
)

const sampleSize = 10

// ActivationLog stores block-by-block activations for debugging
type ActivationLog struct {
	Length   int        `json:"length"`
	Channels int        `json:"channels"`
	Input    BlockLog   `json:"input"`
	Blocks   []BlockLog `json:"blocks"`
}

// BlockLog summarises the output of a single block
type BlockLog struct {
	Idx      int       `json:"idx"`
	Block    string    `json:"block"`
	MaxAbs   float64   `json:"max_abs"`
	RMS      float64   `json:"rms"`
	Sample   []float64 `json:"sample"` // first values of the last step
	NaNCount int       `json:"nan_count"`
	InfCount int       `json:"inf_count"`
}

// ActivationLogger manages activation logging during a forward pass
type ActivationLogger struct {
	mu      sync.Mutex
	enabled bool
	log     *ActivationLog
}

func NewActivationLogger() *ActivationLogger {
	return &ActivationLogger{}
}

// Enable starts a fresh log for the given input.
func (al *ActivationLogger) Enable(x *mat.Dense) {
	al.mu.Lock()
	defer al.mu.Unlock()
	length, channels := x.Dims()
	al.enabled = true
	al.log = &ActivationLog{
		Length:   length,
		Channels: channels,
		Input:    summarise(-1, "input", x),
		Blocks:   make([]BlockLog, 0),
	}
}

func (al *ActivationLogger) Disable() {
	al.mu.Lock()
	al.enabled = false
	al.mu.Unlock()
}

func (al *ActivationLogger) IsEnabled() bool {
	al.mu.Lock()
	defer al.mu.Unlock()
	return al.enabled
}

// LogBlock captures the output of block idx
func (al *ActivationLogger) LogBlock(idx int, name string, out *mat.Dense) {
	al.mu.Lock()
	defer al.mu.Unlock()
	if !al.enabled {
		return
	}
	al.log.Blocks = append(al.log.Blocks, summarise(idx, name, out))
}

// Log returns the current log, or nil when logging was never enabled.
func (al *ActivationLogger) Log() *ActivationLog {
	al.mu.Lock()
	defer al.mu.Unlock()
	return al.log
}

// SaveToFile writes the activation log to a JSON file
func (al *ActivationLogger) SaveToFile(filename string) error {
	al.mu.Lock()
	defer al.mu.Unlock()
	if al.log == nil {
		return fmt.Errorf("no activation log to save")
	}

	data, err := json.MarshalIndent(al.log, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}
	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	return nil
}

func summarise(idx int, name string, m *mat.Dense) BlockLog {
	entry := BlockLog{Idx: idx, Block: name}
	rows, cols := m.Dims()
	var sumSq float64
	var finite int
	for r := 0; r < rows; r++ {
		for _, v := range m.RawRowView(r) {
			switch {
			case math.IsNaN(v):
				entry.NaNCount++
			case math.IsInf(v, 0):
				entry.InfCount++
			default:
				finite++
				sumSq += v * v
				entry.MaxAbs = math.Max(entry.MaxAbs, math.Abs(v))
			}
		}
	}
	if finite > 0 {
		entry.RMS = math.Sqrt(sumSq / float64(finite))
	}
	n := min(cols, sampleSize)
	entry.Sample = make([]float64, n)
	if rows > 0 {
		copy(entry.Sample, m.RawRowView(rows-1)[:n])
	}
	return entry
}
