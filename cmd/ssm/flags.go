package main

import (
	"github.com/urfave/cli/v3"

	"github.com/23skdu/longbow-ssm/internal/config"
	"github.com/23skdu/longbow-ssm/internal/logger"
)

var (
	configPath string
	channels   int64
	stateDim   int64
	layers     int64
	blockKind  string
	variant    string
	seed       int64
	convMode   string
	workers    int64
	logLevel   string
	logFormat  string
)

func modelFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "config",
			Aliases:     []string{"c"},
			Usage:       "path to a YAML model config",
			Destination: &configPath,
		},
		&cli.Int64Flag{Name: "channels", Usage: "input/output channels", Destination: &channels},
		&cli.Int64Flag{Name: "state-dim", Aliases: []string{"n"}, Usage: "SSM state size per channel", Destination: &stateDim},
		&cli.Int64Flag{Name: "layers", Usage: "number of stacked blocks", Destination: &layers},
		&cli.StringFlag{Name: "block", Usage: "residual block (s4d, mamba)", Destination: &blockKind},
		&cli.StringFlag{Name: "variant", Usage: "SSM core (s4d-real, s4d-complex, s6d-real, s6d-complex)", Destination: &variant},
		&cli.Int64Flag{Name: "seed", Usage: "parameter initialisation seed", Destination: &seed},
		&cli.StringFlag{Name: "conv-mode", Usage: "convolution path (auto, direct, fft)", Destination: &convMode},
		&cli.Int64Flag{Name: "workers", Usage: "parallel workers (0 = GOMAXPROCS)", Destination: &workers},
	}
}

func loggingFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "log level (debug, info, warn, error)",
			Destination: &logLevel,
		},
		&cli.StringFlag{
			Name:        "log-format",
			Usage:       "log format (console, json)",
			Destination: &logFormat,
		},
	}
}

func withCommonFlags(extra ...cli.Flag) []cli.Flag {
	flags := append(modelFlags(), loggingFlags()...)
	return append(flags, extra...)
}

// loadConfig builds the model config from --config (or defaults), applies
// explicitly set flags over it and configures logging.
func loadConfig(c *cli.Command) (config.Config, error) {
	cfg := config.Default()
	if configPath != "" {
		loaded, err := config.Load(configPath)
		if err != nil {
			return cfg, err
		}
		cfg = loaded
	}

	if c.IsSet("channels") {
		cfg.Channels = int(channels)
	}
	if c.IsSet("state-dim") {
		cfg.StateDim = int(stateDim)
	}
	if c.IsSet("layers") {
		cfg.Layers = int(layers)
	}
	if c.IsSet("block") {
		cfg.Block = blockKind
	}
	if c.IsSet("variant") {
		cfg.Variant = variant
	}
	if c.IsSet("seed") {
		cfg.Seed = uint64(seed)
	}
	if c.IsSet("conv-mode") {
		cfg.ConvMode = convMode
	}
	if c.IsSet("workers") {
		cfg.Workers = int(workers)
	}
	if c.IsSet("log-level") {
		cfg.LogLevel = logLevel
	}
	if c.IsSet("log-format") {
		cfg.LogFormat = logFormat
	}

	logger.Setup(cfg.LogLevel, cfg.LogFormat)
	return cfg, cfg.Validate()
}
