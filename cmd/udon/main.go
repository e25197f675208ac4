// udon supervises the odin4 flasher for Samsung devices.
//
// It runs flash, reboot and redownload commands one at a time, turns the
// flasher's output into log lines and progress, and reports when a device
// in download mode appears or disappears. "udon serve" exposes the same
// operations over HTTP, WebSocket and MQTT; the other commands run once in
// the terminal.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/udon-flasher/udon-core/internal/infrastructure/config"
	"github.com/udon-flasher/udon-core/internal/infrastructure/logging"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

// Global flag names.
const (
	flagConfig   = "config"
	flagLogLevel = "log-level"
)

func main() {
	// Cancel on Ctrl+C and SIGTERM; every command shuts down through ctx.
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newApp().RunContext(ctx, os.Args); err != nil {
		os.Exit(exitCode(err))
	}
}

// newApp builds the command tree.
func newApp() *cli.App {
	return &cli.App{
		Name:    "udon",
		Usage:   "supervise the odin4 flasher",
		Version: fmt.Sprintf("%s (commit %s, built %s)", version, commit, date),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    flagConfig,
				Aliases: []string{"c"},
				Value:   defaultConfigPath,
				Usage:   "path to the YAML configuration file",
				EnvVars: []string{"UDON_CONFIG"},
			},
			&cli.StringFlag{
				Name:  flagLogLevel,
				Usage: "override logging.level ('debug', 'info', 'warn', 'error')",
			},
		},
		Commands: []*cli.Command{
			serveCommand,
			flashCommand,
			rebootCommand,
			redownloadCommand,
			devicesCommand,
			tokenCommand,
		},
		// Exit codes are decided in main so the app stays testable.
		ExitErrHandler: func(*cli.Context, error) {},
	}
}

// exitCode prints err and returns the process exit status for it.
func exitCode(err error) int {
	code := 1
	var ec cli.ExitCoder
	if errors.As(err, &ec) {
		code = ec.ExitCode()
	}
	if msg := err.Error(); msg != "" {
		fmt.Fprintf(os.Stderr, "Error: %v\n", msg)
	}
	return code
}

// loadConfig reads the configuration named by --config.
//
// When strict is false and --config was left at its default, a missing
// file means built-in defaults. An explicit path must always exist.
func loadConfig(c *cli.Context, strict bool) (*config.Config, error) {
	path := c.String(flagConfig)

	var (
		cfg *config.Config
		err error
	)
	if strict || c.IsSet(flagConfig) {
		cfg, err = config.Load(path)
	} else {
		cfg, err = config.LoadOrDefault(path)
	}
	if err != nil {
		return nil, fmt.Errorf("loading config %s: %w", path, err)
	}

	if level := c.String(flagLogLevel); level != "" {
		cfg.Logging.Level = level
	}
	return cfg, nil
}

// cliLogger returns the logger for one-shot commands: text on stderr, so
// stdout carries only flasher output. Without --log-level only warnings
// and errors are shown.
func cliLogger(c *cli.Context, cfg *config.Config) *logging.Logger {
	lc := cfg.Logging
	lc.Format = "text"
	lc.Output = "stderr"
	if !c.IsSet(flagLogLevel) {
		lc.Level = "warn"
	}
	return logging.New(lc, version)
}
