package flash

import "errors"

// Command errors. Their messages are shown to the user verbatim.
var (
	// ErrValidation is returned when a flash request names no files.
	ErrValidation = errors.New("Error: Select at least one file.") //nolint:staticcheck // User-facing text

	// ErrAlreadyRunning is returned when a command is started while another runs.
	ErrAlreadyRunning = errors.New("A command is already running.") //nolint:staticcheck // User-facing text

	// ErrShuttingDown is returned for commands issued after Shutdown.
	ErrShuttingDown = errors.New("Supervisor is shutting down.") //nolint:staticcheck // User-facing text
)

// ErrNoMonitor is returned by NewSupervisor without a device monitor.
var ErrNoMonitor = errors.New("flash: device monitor is required")
