package history

import "errors"

// ErrRunNotFound is returned when a run ID has no row.
var ErrRunNotFound = errors.New("history: run not found")
