package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Block kinds.
const (
	BlockS4D   = "s4d"
	BlockMamba = "mamba"
)

// SSM variants.
const (
	VariantS4DReal    = "s4d-real"
	VariantS4DComplex = "s4d-complex"
	VariantS6DReal    = "s6d-real"
	VariantS6DComplex = "s6d-complex"
)

// Convolution modes for the time-invariant layers.
const (
	ConvAuto   = "auto"
	ConvDirect = "direct"
	ConvFFT    = "fft"
)

type Config struct {
	Channels   int     `yaml:"channels"`
	StateDim   int     `yaml:"state_dim"`
	SampleRate float64 `yaml:"sample_rate"`
	Layers     int     `yaml:"layers"`

	// Block selects the residual wrapper; Variant the SSM core inside it.
	// An empty Variant takes the block's default.
	Block   string `yaml:"block"`
	Variant string `yaml:"variant"`

	Eps      float64 `yaml:"eps"`
	Seed     uint64  `yaml:"seed"`
	ConvMode string  `yaml:"conv_mode"`
	Workers  int     `yaml:"workers"`

	LogLevel    string `yaml:"log_level"`
	LogFormat   string `yaml:"log_format"`
	MetricsAddr string `yaml:"metrics_addr"`
	FlightAddr  string `yaml:"flight_addr"`
}

func (c *Config) Validate() error {
	if c.Channels <= 0 {
		return fmt.Errorf("invalid channels: %d (must be positive)", c.Channels)
	}
	if c.StateDim <= 0 {
		return fmt.Errorf("invalid state_dim: %d (must be positive)", c.StateDim)
	}
	if c.SampleRate <= 0 {
		return fmt.Errorf("invalid sample_rate: %v (must be positive)", c.SampleRate)
	}
	if c.Layers <= 0 {
		return fmt.Errorf("invalid layers: %d (must be positive)", c.Layers)
	}
	if c.Eps <= 0 {
		return fmt.Errorf("invalid eps: %v (must be positive)", c.Eps)
	}
	if c.Workers < 0 {
		return fmt.Errorf("invalid workers: %d (must be non-negative)", c.Workers)
	}

	switch c.GetBlock() {
	case BlockS4D, BlockMamba:
	default:
		return fmt.Errorf("unknown block %q (want %s or %s)", c.Block, BlockS4D, BlockMamba)
	}

	switch c.GetConvMode() {
	case ConvAuto, ConvDirect, ConvFFT:
	default:
		return fmt.Errorf("unknown conv_mode %q", c.ConvMode)
	}

	variant := c.SSMVariant()
	switch variant {
	case VariantS4DReal, VariantS6DReal:
	case VariantS4DComplex, VariantS6DComplex:
		if c.StateDim < 2 || c.StateDim%2 != 0 {
			return fmt.Errorf("variant %s needs an even state_dim >= 2, got %d", variant, c.StateDim)
		}
	default:
		return fmt.Errorf("unknown variant %q", c.Variant)
	}
	return nil
}

func (c *Config) GetBlock() string {
	return strings.ToLower(c.Block)
}

func (c *Config) GetConvMode() string {
	if c.ConvMode == "" {
		return ConvAuto
	}
	return strings.ToLower(c.ConvMode)
}

// SSMVariant resolves the SSM core name, falling back to the block default:
// S4DComplex inside S4D blocks and S6DReal inside Mamba blocks.
func (c *Config) SSMVariant() string {
	if c.Variant != "" {
		return strings.ToLower(c.Variant)
	}
	if c.GetBlock() == BlockMamba {
		return VariantS6DReal
	}
	return VariantS4DComplex
}

// IsComplex reports whether the configured core stores half the state.
func (c *Config) IsComplex() bool {
	v := c.SSMVariant()
	return v == VariantS4DComplex || v == VariantS6DComplex
}

func Default() Config {
	return Config{
		Channels:    4,
		StateDim:    16,
		SampleRate:  1.0,
		Layers:      1,
		Block:       BlockS4D,
		Eps:         1e-6,
		ConvMode:    ConvAuto,
		LogLevel:    "info",
		LogFormat:   "console",
		MetricsAddr: ":9090",
		FlightAddr:  "localhost:8815",
	}
}

// Load reads a YAML file over Default(). Keys absent from the file keep
// their default values. The result is not validated.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}
