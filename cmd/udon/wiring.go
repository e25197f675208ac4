package main

import (
	"fmt"
	"strings"

	"github.com/udon-flasher/udon-core/internal/device"
	"github.com/udon-flasher/udon-core/internal/flash"
	"github.com/udon-flasher/udon-core/internal/infrastructure/config"
	"github.com/udon-flasher/udon-core/internal/infrastructure/logging"
)

// Probe names accepted by monitor.probe.
const (
	probeOdin = "odin"
	probeUSB  = "usb"
)

// newProber builds the presence probe selected by monitor.probe.
// The returned close function releases libusb for the usb probe.
func newProber(cfg *config.Config) (device.Prober, func(), error) {
	switch strings.ToLower(cfg.Monitor.Probe) {
	case probeUSB:
		vendor, err := device.ParseUSBID(cfg.Monitor.USB.VendorID)
		if err != nil {
			return nil, nil, fmt.Errorf("monitor.usb.vendor_id: %w", err)
		}
		product, err := device.ParseUSBID(cfg.Monitor.USB.ProductID)
		if err != nil {
			return nil, nil, fmt.Errorf("monitor.usb.product_id: %w", err)
		}
		probe, err := device.NewUSBProbe(vendor, product)
		if err != nil {
			return nil, nil, err
		}
		return probe, func() { _ = probe.Close() }, nil
	default:
		probe := device.NewOdinProbe(cfg.Odin.Binary)
		if marker := cfg.Odin.Output.NoDevicesMarker; marker != "" {
			probe.NoDevicesMarker = marker
		}
		return probe, func() {}, nil
	}
}

// newSupervisor wires the monitor and supervisor from configuration.
// The returned close function releases the probe.
func newSupervisor(cfg *config.Config, sink flash.Sink, log *logging.Logger) (*flash.Supervisor, func(), error) {
	prober, closeProber, err := newProber(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("creating device probe: %w", err)
	}

	monitor := device.NewMonitor(prober, device.Config{
		Interval: cfg.Monitor.Interval,
		Timeout:  cfg.Monitor.Timeout,
	})
	monitor.SetLogger(log)

	sup, err := flash.NewSupervisor(flash.Options{
		Builder: flash.Builder{
			Elevation: cfg.Odin.Elevation,
			Binary:    cfg.Odin.Binary,
		},
		Rules: flash.Rules{
			SetupMarker: cfg.Odin.Output.SetupMarker,
			NoiseMarker: cfg.Odin.Output.NoiseMarker,
			StripToken:  cfg.Odin.Output.StripToken,
		},
		Monitor:         monitor,
		Sink:            sink,
		Logger:          log,
		GracefulTimeout: cfg.Odin.GracefulTimeout,
	})
	if err != nil {
		closeProber()
		return nil, nil, fmt.Errorf("creating supervisor: %w", err)
	}
	return sup, closeProber, nil
}
