package history

import (
	"time"

	"github.com/udon-flasher/udon-core/internal/flash"
)

const (
	// DefaultLimit is the page size when none is requested.
	DefaultLimit = 50

	// MaxLimit caps a single List page.
	MaxLimit = 500
)

// Record is a stored run.
type Record struct {
	ID        string          `json:"id"`
	Operation flash.Operation `json:"operation"`
	Args      []string        `json:"args"`
	StartedAt time.Time       `json:"started_at"`

	// Completion fields are nil while the run is active or if the
	// process died with the service.
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	ExitCode   *int       `json:"exit_code,omitempty"`

	Success      bool   `json:"success"`
	Error        string `json:"error,omitempty"`
	LastProgress int    `json:"last_progress"`
	LogLines     int    `json:"log_lines"`
	LastLog      string `json:"last_log,omitempty"`
}

// Finished reports whether the run has a completion row.
func (r *Record) Finished() bool {
	return r.FinishedAt != nil
}

// Outcome is what Finish writes for a completed run.
type Outcome struct {
	FinishedAt   time.Time
	ExitCode     int
	Success      bool
	Error        string
	LastProgress int
	LogLines     int
	LastLog      string
}

// Filter controls which runs List returns.
type Filter struct {
	Operation flash.Operation // optional
	Limit     int             // default 50, max 500
	Offset    int
}

// ListResult is one page of runs, newest first.
type ListResult struct {
	Runs   []Record `json:"runs"`
	Total  int      `json:"total"`
	Limit  int      `json:"limit"`
	Offset int      `json:"offset"`
}
