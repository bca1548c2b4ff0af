package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"

	"github.com/23skdu/longbow-ssm/internal/arrowio"
	"github.com/23skdu/longbow-ssm/internal/engine"
	"github.com/23skdu/longbow-ssm/internal/logger"
	"github.com/23skdu/longbow-ssm/internal/monitoring"
)

// alertingModel raises a health alert whenever a forward pass produces
// non-finite output.
type alertingModel struct {
	engine  *engine.Engine
	monitor *monitoring.HealthMonitor
}

func (m alertingModel) Forward(x *mat.Dense) (*mat.Dense, error) {
	before := m.engine.Stats().NonFinite
	y, err := m.engine.Forward(x)
	if err == nil && m.engine.Stats().NonFinite > before {
		m.monitor.AddAlert("warning", "engine", "non-finite values in forward output")
	}
	return y, err
}

func serveCmd() *cli.Command {
	var flightAddr, metricsAddr string
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the model over Arrow Flight with health and metrics endpoints",
		Flags: withCommonFlags(
			&cli.StringFlag{Name: "flight-addr", Usage: "Flight listen address", Destination: &flightAddr},
			&cli.StringFlag{Name: "metrics-addr", Usage: "health and Prometheus metrics address", Destination: &metricsAddr},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if cmd.IsSet("flight-addr") {
				cfg.FlightAddr = flightAddr
			}
			if cmd.IsSet("metrics-addr") {
				cfg.MetricsAddr = metricsAddr
			}

			e, err := engine.NewEngine(cfg)
			if err != nil {
				return err
			}
			defer e.Close()

			monitor := monitoring.NewHealthMonitor(cfg, e)
			srv := arrowio.NewFlightServer(alertingModel{engine: e, monitor: monitor})
			if err := srv.Init(cfg.FlightAddr); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			g, gctx := errgroup.WithContext(ctx)
			g.Go(srv.Serve)
			g.Go(func() error {
				return monitor.Start(cfg.MetricsAddr)
			})
			g.Go(func() error {
				<-gctx.Done()
				logger.Log.Info("Shutting down")
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown()
				return monitor.Stop(shutdownCtx)
			})
			return g.Wait()
		},
	}
}
