// Package main is the entry point for the letsplay API gateway.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/letsplay/gateway/internal/config"
	"github.com/letsplay/gateway/internal/observability"
)

// Version information (set at build time).
var (
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

// cliFlags holds command line flags.
type cliFlags struct {
	configPath  string
	logLevel    string
	logFormat   string
	showVersion bool
}

func main() {
	flags, err := parseFlags(os.Args[1:])
	if err != nil {
		os.Exit(2)
	}

	if flags.showVersion {
		printVersion(os.Stdout)
		return
	}

	if err := run(flags); err != nil {
		fmt.Fprintf(os.Stderr, "gateway: %v\n", err)
		os.Exit(1)
	}
}

// parseFlags parses command line flags. Each flag falls back to a GATEWAY_*
// environment variable.
func parseFlags(args []string) (cliFlags, error) {
	fs := flag.NewFlagSet("gateway", flag.ContinueOnError)

	var f cliFlags
	fs.StringVar(&f.configPath, "config", getEnvOrDefault("GATEWAY_CONFIG_PATH", ""),
		"Path to configuration file (built-in defaults when empty)")
	fs.StringVar(&f.logLevel, "log-level", getEnvOrDefault("GATEWAY_LOG_LEVEL", ""),
		"Log level (debug, info, warn, error); overrides the configuration file")
	fs.StringVar(&f.logFormat, "log-format", getEnvOrDefault("GATEWAY_LOG_FORMAT", ""),
		"Log format (json, console); overrides the configuration file")
	fs.BoolVar(&f.showVersion, "version", false, "Show version information")

	if err := fs.Parse(args); err != nil {
		return cliFlags{}, err
	}
	return f, nil
}

func printVersion(w io.Writer) {
	fmt.Fprintf(w, "letsplay gateway version %s\n", version)
	fmt.Fprintf(w, "  Build time: %s\n", buildTime)
	fmt.Fprintf(w, "  Git commit: %s\n", gitCommit)
}

// loadConfig reads the configuration file, or returns the defaults when no
// path is given.
func loadConfig(path string) (*config.GatewayConfig, error) {
	if path == "" {
		return config.DefaultConfig(), nil
	}
	return config.LoadConfig(path)
}

// initLogger builds the logger from the configuration with flag overrides.
func initLogger(flags cliFlags, cfg *config.GatewayConfig) (observability.Logger, error) {
	logCfg := cfg.Spec.Observability.LogConfig()
	if flags.logLevel != "" {
		logCfg.Level = flags.logLevel
	}
	if flags.logFormat != "" {
		logCfg.Format = flags.logFormat
	}
	return observability.NewLogger(logCfg)
}

func run(flags cliFlags) error {
	cfg, err := loadConfig(flags.configPath)
	if err != nil {
		return err
	}

	logger, err := initLogger(flags, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("starting letsplay gateway",
		observability.String("version", version),
		observability.String("config", flags.configPath),
		observability.String("name", cfg.Metadata.Name),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := initApplication(ctx, cfg, logger)
	if err != nil {
		return err
	}

	if err := app.gateway.Start(ctx); err != nil {
		app.close(context.Background())
		return err
	}

	<-ctx.Done()
	logger.Info("received shutdown signal")

	return app.shutdown()
}
