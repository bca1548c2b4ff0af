package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/urfave/cli/v3"

	"github.com/23skdu/longbow-ssm/internal/logger"
	"github.com/23skdu/longbow-ssm/internal/ssm"
)

var errCheckFailed = errors.New("self-check failed")

type checkReport struct {
	Seed    uint64            `json:"seed"`
	Length  int               `json:"length"`
	Passed  bool              `json:"passed"`
	Results []ssm.CheckResult `json:"results"`
}

func checkCmd() *cli.Command {
	var (
		length    int64
		checkSeed int64
	)
	return &cli.Command{
		Name:  "check",
		Usage: "Verify the convolution, scan and conjugate paths against their references",
		Flags: append(loggingFlags(),
			&cli.Int64Flag{Name: "length", Usage: "sequence length", Value: 128, Destination: &length},
			&cli.Int64Flag{Name: "seed", Usage: "random system seed", Value: 1, Destination: &checkSeed},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			logger.Setup(logLevel, logFormat)
			if length <= 0 {
				return fmt.Errorf("invalid length: %d (must be positive)", length)
			}
			results := ssm.SelfCheck(uint64(checkSeed), int(length))
			report := checkReport{
				Seed:    uint64(checkSeed),
				Length:  int(length),
				Passed:  ssm.Passed(results),
				Results: results,
			}
			data, err := json.MarshalIndent(report, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.Root().Writer, string(data))
			if !report.Passed {
				for _, r := range results {
					if !r.Passed {
						logger.Log.Error("Check failed", "check", r.Name, "max_abs_error", r.MaxAbsErr)
					}
				}
				return errCheckFailed
			}
			return nil
		},
	}
}
