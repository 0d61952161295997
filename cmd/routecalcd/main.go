// Command routecalcd runs the Route Calculator API behind the worker-pool
// front-end. Configuration comes from the environment; see
// server.ConfigFromEnv and routecalc.SettingsFromEnv.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/routecalc/prefork/pkg/routecalc"
	"github.com/routecalc/prefork/pkg/server"
)

func main() {
	os.Exit(run())
}

func run() int {
	settings := routecalc.SettingsFromEnv()

	level := slog.LevelInfo
	if settings.Debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	cfg, err := server.ConfigFromEnv()
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		return server.ExitCode(err)
	}
	cfg.Logger = logger

	frontend, err := server.New(cfg, routecalc.NewHandler(settings, logger))
	if err != nil {
		logger.Error("front-end setup failed", "error", err)
		return server.ExitCode(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := frontend.Run(ctx); err != nil {
		logger.Error("front-end exited with error", "error", err)
		return server.ExitCode(err)
	}
	return server.ExitOK
}
