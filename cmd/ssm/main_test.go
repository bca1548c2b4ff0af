package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/goccy/go-json"

	"github.com/23skdu/longbow-ssm/internal/arrowio"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	err := newApp(&out).Run(context.Background(), append([]string{"ssm"}, args...))
	return out.String(), err
}

func TestCheckCommand(t *testing.T) {
	out, err := run(t, "check", "--length", "32", "--seed", "9")
	if err != nil {
		t.Fatal(err)
	}
	var report checkReport
	if err := json.Unmarshal([]byte(out), &report); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if !report.Passed || report.Length != 32 || report.Seed != 9 || len(report.Results) == 0 {
		t.Errorf("unexpected report %+v", report)
	}
}

func TestKernelCommand(t *testing.T) {
	out, err := run(t, "kernel", "--channels", "2", "--state-dim", "4", "--length", "5", "--variant", "s4d-real")
	if err != nil {
		t.Fatal(err)
	}
	var report kernelReport
	if err := json.Unmarshal([]byte(out), &report); err != nil {
		t.Fatal(err)
	}
	if report.Length != 5 || report.Channels != 2 || len(report.Kernel) != 5 || len(report.Kernel[0]) != 2 {
		t.Errorf("unexpected kernel report %+v", report)
	}
	if report.Variant != "s4d-real" || report.Block != "s4d" {
		t.Errorf("model = %s/%s", report.Block, report.Variant)
	}
}

func TestKernelCommandRejectsSelectiveVariant(t *testing.T) {
	if _, err := run(t, "kernel", "--block", "mamba"); err == nil {
		t.Error("expected an error for the input-dependent default Mamba core")
	}
}

func TestForwardCommandWritesIPC(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.arrow")
	out := filepath.Join(dir, "out.arrow")
	trace := filepath.Join(dir, "trace.json")

	f, err := os.Create(in)
	if err != nil {
		t.Fatal(err)
	}
	if err := arrowio.WriteIPC(f, synthetic(10, 3), synthetic(4, 3)); err != nil {
		t.Fatal(err)
	}
	f.Close()

	if _, err := run(t, "forward", "--channels", "3", "--block", "mamba", "--layers", "2",
		"--input", in, "--output", out, "--trace-out", trace); err != nil {
		t.Fatal(err)
	}

	r, err := os.Open(out)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	seqs, err := arrowio.ReadIPC(r)
	if err != nil {
		t.Fatal(err)
	}
	if len(seqs) != 2 {
		t.Fatalf("got %d output sequences", len(seqs))
	}
	if rows, cols := seqs[0].Dims(); rows != 10 || cols != 3 {
		t.Errorf("first output shape (%d, %d)", rows, cols)
	}

	data, err := os.ReadFile(trace)
	if err != nil {
		t.Fatal(err)
	}
	var act struct {
		Length int               `json:"length"`
		Blocks []json.RawMessage `json:"blocks"`
	}
	if err := json.Unmarshal(data, &act); err != nil {
		t.Fatal(err)
	}
	if act.Length != 4 || len(act.Blocks) != 2 {
		t.Errorf("trace length %d with %d blocks", act.Length, len(act.Blocks))
	}
}

func TestForwardCommandSummary(t *testing.T) {
	out, err := run(t, "forward", "--length", "20", "--channels", "2")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "sequence 0: length=20 channels=2") {
		t.Errorf("summary %q", out)
	}
}

func TestForwardCommandValidatesConfig(t *testing.T) {
	if _, err := run(t, "forward", "--variant", "s5"); err == nil {
		t.Error("expected error for unknown variant")
	}
	if _, err := run(t, "forward", "--config", filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing config file")
	}
}

func TestConfigFileWithFlagOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.yaml")
	yaml := "channels: 5\nstate_dim: 2\nblock: s4d\nvariant: s4d-real\n"
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}
	out, err := run(t, "kernel", "--config", path, "--state-dim", "3", "--length", "2")
	if err != nil {
		t.Fatal(err)
	}
	var report kernelReport
	if err := json.Unmarshal([]byte(out), &report); err != nil {
		t.Fatal(err)
	}
	if report.Channels != 5 || report.Variant != "s4d-real" {
		t.Errorf("config file not applied: %+v", report)
	}
}
