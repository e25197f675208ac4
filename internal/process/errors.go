package process

import "errors"

var (
	// ErrAlreadyStarted is returned when Start is called on a used Process.
	ErrAlreadyStarted = errors.New("process: already started")

	// ErrNotStarted is returned by Wait before Start.
	ErrNotStarted = errors.New("process: not started")

	// ErrSpawn wraps failures to launch the executable.
	ErrSpawn = errors.New("process: spawn failed")

	// ErrStopTimeout is returned when the process group survives SIGKILL,
	// typically because it runs as another user.
	ErrStopTimeout = errors.New("process: did not exit after SIGKILL")
)
