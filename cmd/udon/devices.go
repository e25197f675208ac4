package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/fatih/color"
	"github.com/urfave/cli/v2"

	"github.com/udon-flasher/udon-core/internal/device"
)

const flagOnce = "once"

var devicesCommand = &cli.Command{
	Name:  "devices",
	Usage: "watch for devices in download mode",
	Flags: []cli.Flag{
		&cli.BoolFlag{Name: flagOnce, Usage: "probe once and exit; status 2 when no device is present"},
	},
	Action: func(c *cli.Context) error {
		cfg, err := loadConfig(c, false)
		if err != nil {
			return err
		}
		log := cliLogger(c, cfg)

		prober, closeProber, err := newProber(cfg)
		if err != nil {
			return err
		}
		defer closeProber()

		if c.Bool(flagOnce) {
			ctx, cancel := context.WithTimeout(c.Context, cfg.Monitor.Timeout)
			defer cancel()
			return probeOnce(ctx, c, prober)
		}

		monitor := device.NewMonitor(prober, device.Config{
			Interval: cfg.Monitor.Interval,
			Timeout:  cfg.Monitor.Timeout,
		})
		monitor.SetLogger(log)

		events, err := monitor.Start(c.Context)
		if err != nil {
			return err
		}
		defer monitor.Stop()

		term := newTerminalSink(c.App.Writer, false, color.NoColor)
		fmt.Fprintln(c.App.Writer, "Waiting for devices, press Ctrl+C to stop.") //nolint:errcheck // Terminal output
		for ev := range events {
			term.OnDeviceEvent(ev)
		}
		return nil
	},
}

// probeOnce prints the presence of a device.
func probeOnce(ctx context.Context, c *cli.Context, prober device.Prober) error {
	err := prober.Probe(ctx)
	switch {
	case err == nil:
		fmt.Fprintln(c.App.Writer, device.StatePresent) //nolint:errcheck // Terminal output
		return nil
	case errors.Is(err, device.ErrNoDevice):
		fmt.Fprintln(c.App.Writer, device.StateAbsent) //nolint:errcheck // Terminal output
		return cli.Exit("", 2)
	default:
		return fmt.Errorf("probing for devices: %w", err)
	}
}
