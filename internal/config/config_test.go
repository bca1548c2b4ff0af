package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.StateDim != 16 {
		t.Errorf("expected StateDim 16, got %d", cfg.StateDim)
	}
	if cfg.Eps != 1e-6 {
		t.Errorf("expected Eps 1e-6, got %v", cfg.Eps)
	}
	if cfg.SampleRate != 1.0 {
		t.Errorf("expected SampleRate 1.0, got %v", cfg.SampleRate)
	}
	if cfg.GetConvMode() != ConvAuto {
		t.Errorf("expected conv mode auto, got %s", cfg.GetConvMode())
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestValidate(t *testing.T) {
	base := Default()
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"valid default", func(c *Config) {}, false},
		{"mamba block", func(c *Config) { c.Block = BlockMamba }, false},
		{"explicit real variant odd state", func(c *Config) { c.Variant = VariantS4DReal; c.StateDim = 3 }, false},
		{"invalid channels", func(c *Config) { c.Channels = 0 }, true},
		{"invalid state dim", func(c *Config) { c.StateDim = -1 }, true},
		{"invalid sample rate", func(c *Config) { c.SampleRate = 0 }, true},
		{"invalid layers", func(c *Config) { c.Layers = 0 }, true},
		{"invalid eps", func(c *Config) { c.Eps = 0 }, true},
		{"negative workers", func(c *Config) { c.Workers = -2 }, true},
		{"unknown block", func(c *Config) { c.Block = "transformer" }, true},
		{"unknown variant", func(c *Config) { c.Variant = "s5" }, true},
		{"unknown conv mode", func(c *Config) { c.ConvMode = "winograd" }, true},
		{"complex needs even state", func(c *Config) { c.Variant = VariantS6DComplex; c.StateDim = 5 }, true},
		{"complex needs two states", func(c *Config) { c.StateDim = 1 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestSSMVariantDefaults(t *testing.T) {
	tests := []struct {
		block   string
		variant string
		want    string
	}{
		{BlockS4D, "", VariantS4DComplex},
		{BlockMamba, "", VariantS6DReal},
		{BlockMamba, "S6D-Complex", VariantS6DComplex},
		{BlockS4D, VariantS4DReal, VariantS4DReal},
	}
	for _, tt := range tests {
		cfg := Config{Block: tt.block, Variant: tt.variant}
		if got := cfg.SSMVariant(); got != tt.want {
			t.Errorf("block %s variant %q: got %s, want %s", tt.block, tt.variant, got, tt.want)
		}
	}
}

func TestIsComplex(t *testing.T) {
	cfg := Config{Block: BlockMamba}
	if cfg.IsComplex() {
		t.Error("mamba default core is real")
	}
	cfg.Variant = VariantS6DComplex
	if !cfg.IsComplex() {
		t.Error("s6d-complex should report complex")
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ssm.yaml")
	body := []byte("channels: 8\nstate_dim: 4\nblock: mamba\nlayers: 2\nseed: 7\n")
	if err := os.WriteFile(path, body, 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Channels != 8 || cfg.StateDim != 4 || cfg.Layers != 2 || cfg.Seed != 7 {
		t.Errorf("unexpected loaded values: %+v", cfg)
	}
	if cfg.GetBlock() != BlockMamba {
		t.Errorf("expected mamba block, got %s", cfg.Block)
	}
	// untouched keys keep defaults
	if cfg.Eps != 1e-6 || cfg.SampleRate != 1.0 {
		t.Errorf("defaults not preserved: eps=%v sample_rate=%v", cfg.Eps, cfg.SampleRate)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("loaded config should validate: %v", err)
	}
}

func TestLoadErrors(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}

	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("channels: [1, 2"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected parse error")
	}
}
