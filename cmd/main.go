package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/desertthunder/placements/internal/shared"
	"github.com/urfave/cli/v3"
)

func main() {
	logger := shared.NewLogger(nil)

	runner := NewRunner(RunnerOpts{
		Config: shared.DefaultConfig(),
		Logger: logger,
	})

	app := &cli.Command{
		Name:     "ptrack",
		Usage:    "Collect songwriting and production credits with streaming and view counts",
		Version:  "0.1.0",
		Commands: runner.register(),
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.Run(ctx, os.Args); err != nil {
		stop()
		if errors.Is(err, shared.ErrCancelled) {
			logger.Warn("run cancelled")
			os.Exit(130)
		}
		logger.Fatalf("application error: %v", err)
	}
}
