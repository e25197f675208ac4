package device

import "errors"

var (
	// ErrNoDevice is returned by a Prober when the probe ran but found nothing.
	ErrNoDevice = errors.New("device: no device present")

	// ErrProbeTimeout is returned when a probe did not answer in time.
	ErrProbeTimeout = errors.New("device: probe timed out")

	// ErrProbeFailed wraps failures to run a probe at all.
	ErrProbeFailed = errors.New("device: probe failed")

	// ErrMonitorRunning is returned by Start on a monitor that is already running.
	ErrMonitorRunning = errors.New("device: monitor already running")

	// ErrInvalidUSBID is returned when a vendor or product ID cannot be parsed.
	ErrInvalidUSBID = errors.New("device: invalid USB ID")
)
