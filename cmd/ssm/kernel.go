package main

import (
	"context"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/urfave/cli/v3"
	"gonum.org/v1/gonum/mat"

	"github.com/23skdu/longbow-ssm/internal/engine"
)

type kernelReport struct {
	Block    string      `json:"block"`
	Variant  string      `json:"variant"`
	Length   int         `json:"length"`
	Channels int         `json:"channels"`
	Kernel   [][]float64 `json:"kernel"`
}

func kernelCmd() *cli.Command {
	var length int64
	return &cli.Command{
		Name:  "kernel",
		Usage: "Print the first block's convolution kernel as JSON",
		Flags: withCommonFlags(
			&cli.Int64Flag{Name: "length", Usage: "kernel length", Value: 16, Destination: &length},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if length <= 0 {
				return fmt.Errorf("invalid length: %d (must be positive)", length)
			}
			e, err := engine.NewEngine(cfg)
			if err != nil {
				return err
			}
			defer e.Close()

			k, err := e.Kernel(int(length))
			if err != nil {
				return err
			}
			rows, cols := k.Dims()
			report := kernelReport{
				Block:    cfg.GetBlock(),
				Variant:  cfg.SSMVariant(),
				Length:   rows,
				Channels: cols,
				Kernel:   make([][]float64, rows),
			}
			for l := range report.Kernel {
				report.Kernel[l] = mat.Row(nil, l, k)
			}
			data, err := json.MarshalIndent(report, "", "  ")
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.Root().Writer, string(data))
			return err
		},
	}
}
