package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"time"
)

// CLIConfig holds command-line configuration
type CLIConfig struct {
	ConfigPaths     []string
	ConfigRoots     []string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration
	ShowVersion     bool
	Validate        bool
}

// layerFlags collects repeated --config flags in order.
type layerFlags []string

func (l *layerFlags) String() string { return fmt.Sprint(*l) }

func (l *layerFlags) Set(value string) error {
	*l = append(*l, value)
	return nil
}

func parseFlags(args []string, getenv func(string) string) (*CLIConfig, error) {
	cfg := &CLIConfig{}
	fs := flag.NewFlagSet(appName, flag.ContinueOnError)

	var layers layerFlags
	fs.Var(&layers, "config",
		"Configuration file, JSON or YAML; repeat to layer files (env: METAQUERY_CONFIG)")
	fs.Var(&layers, "c", "Shorthand for --config")

	var roots layerFlags
	fs.Var(&roots, "config-root",
		"Directory config files must resolve into; repeatable (env: METAQUERY_CONFIG_ROOT, path-list separated)")

	fs.StringVar(&cfg.LogLevel, "log-level",
		envOr(getenv, "METAQUERY_LOG_LEVEL", "info"),
		"Log level: debug, info, warn, error (env: METAQUERY_LOG_LEVEL)")

	fs.StringVar(&cfg.LogFormat, "log-format",
		envOr(getenv, "METAQUERY_LOG_FORMAT", "json"),
		"Log format: json, text (env: METAQUERY_LOG_FORMAT)")

	fs.DurationVar(&cfg.ShutdownTimeout, "shutdown-timeout",
		envDuration(getenv, "METAQUERY_SHUTDOWN_TIMEOUT", 30*time.Second),
		"Graceful shutdown timeout (env: METAQUERY_SHUTDOWN_TIMEOUT)")

	fs.BoolVar(&cfg.ShowVersion, "version", false, "Show version information")
	fs.BoolVar(&cfg.Validate, "validate",
		envBool(getenv, "METAQUERY_VALIDATE", false),
		"Validate configuration and exit")

	fs.Usage = func() { printUsage(fs.Output(), fs) }

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	cfg.ConfigPaths = layers
	if len(cfg.ConfigPaths) == 0 {
		if path := getenv("METAQUERY_CONFIG"); path != "" {
			cfg.ConfigPaths = []string{path}
		}
	}
	cfg.ConfigRoots = roots
	if len(cfg.ConfigRoots) == 0 {
		cfg.ConfigRoots = filepath.SplitList(getenv("METAQUERY_CONFIG_ROOT"))
	}
	return cfg, nil
}

func validateFlags(cfg *CLIConfig) error {
	if cfg.ShowVersion {
		return nil
	}

	for _, path := range cfg.ConfigPaths {
		if _, err := os.Stat(path); err != nil {
			return fmt.Errorf("config file not found: %s", path)
		}
	}

	if !slices.Contains([]string{"debug", "info", "warn", "error"}, cfg.LogLevel) {
		return fmt.Errorf("invalid log level: %s", cfg.LogLevel)
	}
	if !slices.Contains([]string{"json", "text"}, cfg.LogFormat) {
		return fmt.Errorf("invalid log format: %s", cfg.LogFormat)
	}
	if cfg.ShutdownTimeout <= 0 {
		return fmt.Errorf("invalid shutdown timeout: %s", cfg.ShutdownTimeout)
	}
	return nil
}

func printUsage(w io.Writer, fs *flag.FlagSet) {
	_, _ = fmt.Fprintf(w, `%s - topology metadata query gateway

Usage: %s [options]

Options:
`, appName, appName)
	fs.PrintDefaults()
	_, _ = fmt.Fprintf(w, `
Examples:
  # Run against a local Elasticsearch with defaults
  %[1]s

  # Layer a production file over a base file
  %[1]s --config=configs/base.yaml --config=configs/prod.json

  # Run on the in-memory store with readable logs
  METAQUERY_STORAGE_BACKEND=memory %[1]s --log-level=debug --log-format=text

  # Only accept files from the mounted config volume
  %[1]s --config-root=/etc/metaquery --config=/etc/metaquery/prod.yaml

  # Validate configuration only
  %[1]s --config=configs/prod.yaml --validate

Version: %[2]s
Build: %[3]s
`, appName, Version, BuildTime)
}

func envOr(getenv func(string) string, key, defaultValue string) string {
	if value := getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func envBool(getenv func(string) string, key string, defaultValue bool) bool {
	if value := getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func envDuration(getenv func(string) string, key string, defaultValue time.Duration) time.Duration {
	if value := getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
