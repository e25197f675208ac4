package device

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// DefaultNoDevicesMarker is printed by odin4 -l when nothing is connected.
const DefaultNoDevicesMarker = "List of known devices"

// probeWaitDelay bounds how long a probe waits for its output pipe after
// the probe process was killed.
const probeWaitDelay = 100 * time.Millisecond

// Prober answers whether a device is currently connected.
// A nil error means present; any error means absent.
type Prober interface {
	Probe(ctx context.Context) error
}

// ProbeFunc adapts a function to the Prober interface.
type ProbeFunc func(ctx context.Context) error

// Probe calls f(ctx).
func (f ProbeFunc) Probe(ctx context.Context) error {
	return f(ctx)
}

// OdinProbe detects devices by running the flasher in list mode.
type OdinProbe struct {
	// Binary is the path to the flasher executable.
	Binary string

	// NoDevicesMarker is output text that means no device is connected.
	NoDevicesMarker string
}

// NewOdinProbe returns a probe for the given flasher binary.
func NewOdinProbe(binary string) *OdinProbe {
	return &OdinProbe{
		Binary:          binary,
		NoDevicesMarker: DefaultNoDevicesMarker,
	}
}

// Probe runs "<binary> -l". The device is present when the command exits
// cleanly with non-empty output that does not contain NoDevicesMarker.
// The caller bounds the probe through ctx.
func (p *OdinProbe) Probe(ctx context.Context) error {
	cmd := exec.CommandContext(ctx, p.Binary, "-l") //nolint:gosec // Binary comes from validated config
	cmd.WaitDelay = probeWaitDelay

	output, err := cmd.Output()
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return ErrProbeTimeout
		}
		if ctx.Err() != nil {
			return fmt.Errorf("%w: %w", ErrProbeFailed, ctx.Err())
		}
		return fmt.Errorf("%w: %s -l: %w", ErrProbeFailed, p.Binary, err)
	}

	text := strings.TrimSpace(string(output))
	if text == "" {
		return ErrNoDevice
	}
	if p.NoDevicesMarker != "" && strings.Contains(text, p.NoDevicesMarker) {
		return ErrNoDevice
	}

	return nil
}
