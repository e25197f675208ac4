package history

import (
	"context"
	"time"

	"github.com/udon-flasher/udon-core/internal/flash"
)

// writeTimeout bounds each database write made from a sink callback.
const writeTimeout = 2 * time.Second

// maxLastLog caps the stored last log line.
const maxLastLog = 512

// Logger defines the logging interface for the recorder.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Recorder is a flash.Sink that writes each run to a Repository.
//
// The supervisor serialises sink calls, so Recorder keeps its per-run
// counters without locking. Write failures are logged and never reach
// the supervisor.
type Recorder struct {
	flash.NopSink

	repo   Repository
	logger Logger

	runID    string
	progress int
	lines    int
	lastLog  string
}

// NewRecorder creates a recorder writing to repo.
func NewRecorder(repo Repository) *Recorder {
	return &Recorder{repo: repo, logger: noopLogger{}}
}

// SetLogger sets the logger for write failures.
func (r *Recorder) SetLogger(logger Logger) {
	r.logger = logger
}

// OnRunStarted inserts the run row and resets the counters.
func (r *Recorder) OnRunStarted(run flash.Run) {
	r.runID = run.ID
	r.progress = 0
	r.lines = 0
	r.lastLog = ""

	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	err := r.repo.Create(ctx, &Record{
		ID:        run.ID,
		Operation: run.Operation,
		Args:      run.Args,
		StartedAt: run.StartedAt,
	})
	if err != nil {
		r.logger.Error("recording run start failed", "run_id", run.ID, "error", err)
	}
}

// OnLog counts lines of the active run. Rejections outside a run are
// not recorded.
func (r *Recorder) OnLog(text string) {
	if r.runID == "" {
		return
	}
	r.lines++
	if len(text) > maxLastLog {
		text = text[:maxLastLog]
	}
	r.lastLog = text
}

// OnProgress tracks the latest percentage of the active run.
func (r *Recorder) OnProgress(percent int) {
	if r.runID == "" {
		return
	}
	r.progress = percent
}

// OnRunFinished writes the outcome.
func (r *Recorder) OnRunFinished(run flash.Run, res flash.Result) {
	out := Outcome{
		FinishedAt:   res.FinishedAt,
		ExitCode:     res.ExitCode,
		Success:      res.Success(),
		LastProgress: r.progress,
		LogLines:     r.lines,
		LastLog:      r.lastLog,
	}
	if res.Err != nil {
		out.Error = res.Err.Error()
	}
	r.runID = ""

	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	if err := r.repo.Finish(ctx, run.ID, out); err != nil {
		r.logger.Error("recording run finish failed", "run_id", run.ID, "error", err)
	}
}
