package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/urfave/cli/v2"

	"github.com/udon-flasher/udon-core/internal/flash"
)

// oneShotShutdownTimeout bounds the supervisor shutdown after a run.
const oneShotShutdownTimeout = 10 * time.Second

// Flash flag names.
const (
	flagAP       = "ap"
	flagBL       = "bl"
	flagCP       = "cp"
	flagCSC      = "csc"
	flagNoReboot = "no-reboot"
)

var flashCommand = &cli.Command{
	Name:      "flash",
	Usage:     "flash firmware images to a device in download mode",
	ArgsUsage: " ",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: flagAP, Aliases: []string{"a"}, Usage: "AP image (system, recovery)"},
		&cli.StringFlag{Name: flagBL, Aliases: []string{"b"}, Usage: "BL image (bootloader)"},
		&cli.StringFlag{Name: flagCP, Usage: "CP image (modem)"},
		&cli.StringFlag{Name: flagCSC, Usage: "CSC image (region and carrier)"},
		&cli.BoolFlag{Name: flagNoReboot, Usage: "stay in download mode after flashing"},
	},
	Action: func(c *cli.Context) error {
		req := flash.Request{
			AP:       c.String(flagAP),
			BL:       c.String(flagBL),
			CP:       c.String(flagCP),
			CSC:      c.String(flagCSC),
			NoReboot: c.Bool(flagNoReboot),
		}
		return runOnce(c, func(sup *flash.Supervisor) (flash.Run, error) {
			return sup.StartFlash(req)
		})
	},
}

var rebootCommand = &cli.Command{
	Name:  "reboot",
	Usage: "reboot the device out of download mode",
	Action: func(c *cli.Context) error {
		return runOnce(c, (*flash.Supervisor).RebootDevice)
	},
}

var redownloadCommand = &cli.Command{
	Name:  "redownload",
	Usage: "reboot the device back into download mode",
	Action: func(c *cli.Context) error {
		return runOnce(c, (*flash.Supervisor).RebootToDownloadMode)
	},
}

// runWaiter hands the result of the first finished run to a channel.
type runWaiter struct {
	flash.NopSink
	done chan flash.Result
}

func newRunWaiter() *runWaiter {
	return &runWaiter{done: make(chan flash.Result, 1)}
}

func (w *runWaiter) OnRunFinished(_ flash.Run, res flash.Result) {
	select {
	case w.done <- res:
	default:
	}
}

// runOnce starts a supervisor, issues one command through start and
// renders everything until the run finishes. Interrupting the command
// stops the flasher.
func runOnce(c *cli.Context, start func(*flash.Supervisor) (flash.Run, error)) error {
	cfg, err := loadConfig(c, false)
	if err != nil {
		return err
	}
	log := cliLogger(c, cfg)

	waiter := newRunWaiter()
	term := newTerminalSink(c.App.Writer, c.App.Writer == os.Stdout && !color.NoColor, color.NoColor)

	sup, closeProber, err := newSupervisor(cfg, flash.MultiSink{term, waiter}, log)
	if err != nil {
		return err
	}
	defer closeProber()

	if err := sup.Start(c.Context); err != nil {
		return fmt.Errorf("starting supervisor: %w", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), oneShotShutdownTimeout)
		defer cancel()
		if err := sup.Shutdown(ctx); err != nil {
			log.Warn("supervisor shutdown incomplete", "error", err)
		}
	}()

	// Rejections were already printed by the terminal sink.
	if _, err := start(sup); err != nil {
		return cli.Exit("", 1)
	}

	res := <-waiter.done
	if res.Success() {
		return nil
	}
	code := res.ExitCode
	if code <= 0 {
		code = 1
	}
	return cli.Exit("", code)
}
