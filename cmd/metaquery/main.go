// Package main is the metaquery gateway: it serves topology metadata queries
// over HTTP and answers each one with a {data, errors} envelope.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/c360/metaquery/config"
)

// Build information, overridden with -ldflags at release time
var (
	Version   = "0.1.0"
	BuildTime = "dev"
)

const appName = "metaquery"

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := run(os.Args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		slog.Error("Application failed", "error", err, "exit_code", 1)
		os.Exit(1)
	}
}

func run(args []string) error {
	cliCfg, err := parseFlags(args, os.Getenv)
	if err != nil {
		return err
	}
	if err := validateFlags(cliCfg); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}
	if cliCfg.ShowVersion {
		fmt.Printf("%s version %s (build %s)\n", appName, Version, BuildTime)
		return nil
	}

	logger := setupLogger(cliCfg.LogLevel, cliCfg.LogFormat)
	slog.SetDefault(logger)

	cfg, err := loadConfig(cliCfg.ConfigPaths, cliCfg.ConfigRoots)
	if err != nil {
		return err
	}
	slog.Info("Starting metaquery",
		"version", Version,
		"build_time", BuildTime,
		"config_paths", cliCfg.ConfigPaths,
		"backend", cfg.Storage.Backend)
	slog.Debug("Effective configuration", "config", cfg.String())

	if cliCfg.Validate {
		slog.Info("Configuration is valid")
		return nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.close(cliCfg.ShutdownTimeout)

	if err := a.run(ctx, cliCfg.ShutdownTimeout); err != nil {
		return fmt.Errorf("serve: %w", err)
	}
	slog.Info("metaquery shutdown complete")
	return nil
}

// loadConfig layers the given files over the defaults and the environment
func loadConfig(paths, roots []string) (*config.Config, error) {
	loader := config.NewLoader()
	loader.AllowRoots(roots...)
	for _, path := range paths {
		loader.AddLayer(path)
	}
	loader.EnableValidation(true)

	cfg, err := loader.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}
