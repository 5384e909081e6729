package main

import (
	"context"
	"fmt"

	"github.com/desertthunder/curate/internal/server"
	"github.com/desertthunder/curate/internal/shared"
	"github.com/urfave/cli/v3"
)

// Serve runs the HTTP entry point until ctx is cancelled.
func (r *Runner) Serve(ctx context.Context, cmd *cli.Command) error {
	engine, err := r.synthesisEngine()
	if err != nil {
		return err
	}

	opts := server.APIOptions{
		Engine:  engine,
		Metrics: r.metricsCollector(),
		Logger:  r.logger,
	}
	if runs, err := r.runStore(); err != nil {
		r.logger.Warn("run history endpoints disabled", "error", err)
	} else {
		opts.Runs = runs
	}
	if r.guard != nil {
		opts.Ready = func(ctx context.Context) error {
			if _, err := r.guard.Session(ctx); err != nil {
				return fmt.Errorf("%w: %v", shared.ErrNoSession, err)
			}
			return nil
		}
	}

	router := server.NewBasicRouter()
	router.Use(server.Recoverer(r.logger), server.RequestLogger(r.logger))
	router.Handler(server.NewAPI(opts))

	addr := cmd.String("addr")
	if addr == "" {
		addr = r.config.ListenAddr()
	}

	r.logger.Info("serving", "addr", addr)
	return server.New(addr, router, r.logger).Run(ctx)
}
