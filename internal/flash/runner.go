package flash

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/udon-flasher/udon-core/internal/process"
)

const (
	// DefaultGracefulTimeout is how long Stop waits after SIGTERM.
	DefaultGracefulTimeout = 5 * time.Second

	// DefaultStderrTail is how many stderr lines are kept for failed runs.
	DefaultStderrTail = 5

	runnerEventBuffer = 64
)

// ErrEmptyCommand is returned for a CommandSpec without a program.
var ErrEmptyCommand = errors.New("flash: empty command")

// errRunnerUsed is returned when Run is called twice on one Runner.
var errRunnerUsed = errors.New("flash: runner already used")

// RunState is the lifecycle of a Runner.
type RunState int

const (
	RunNotStarted RunState = iota
	RunRunning
	RunFinished
)

// String returns the state name.
func (s RunState) String() string {
	switch s {
	case RunRunning:
		return "running"
	case RunFinished:
		return "finished"
	default:
		return "not_started"
	}
}

// EventKind identifies a runner event.
type EventKind int

const (
	EventLog EventKind = iota
	EventProgress
	EventFinished
)

// Event is one item of a run's output stream.
type Event struct {
	Kind    EventKind
	Text    string
	Percent int
	Result  Result
}

// Result describes how a run ended.
type Result struct {
	// ExitCode is the process exit status, or -1 if it never started or
	// was killed by a signal.
	ExitCode int

	// Err is the spawn or wait error, nil on a clean exit.
	Err error

	// Stopped is set when the run was asked to terminate.
	Stopped bool

	StartedAt  time.Time
	FinishedAt time.Time
}

// Success reports whether the process exited with status 0.
func (r Result) Success() bool {
	return r.Err == nil && r.ExitCode == 0
}

// Duration returns the wall time of the run.
func (r Result) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// MarshalJSON renders the result with the error as text.
func (r Result) MarshalJSON() ([]byte, error) {
	var errText string
	if r.Err != nil {
		errText = r.Err.Error()
	}
	return json.Marshal(struct {
		ExitCode   int       `json:"exit_code"`
		Success    bool      `json:"success"`
		Stopped    bool      `json:"stopped,omitempty"`
		Error      string    `json:"error,omitempty"`
		StartedAt  time.Time `json:"started_at"`
		FinishedAt time.Time `json:"finished_at"`
		DurationMS int64     `json:"duration_ms"`
	}{
		ExitCode:   r.ExitCode,
		Success:    r.Success(),
		Stopped:    r.Stopped,
		Error:      errText,
		StartedAt:  r.StartedAt,
		FinishedAt: r.FinishedAt,
		DurationMS: r.Duration().Milliseconds(),
	})
}

// RunnerConfig tunes a Runner.
type RunnerConfig struct {
	Rules           Rules
	GracefulTimeout time.Duration

	// StderrTail is the number of trailing stderr lines surfaced as log
	// lines when the run fails. Zero means DefaultStderrTail; negative
	// disables it.
	StderrTail int
}

// Runner executes one CommandSpec and streams classified output.
type Runner struct {
	spec   CommandSpec
	config RunnerConfig
	logger Logger

	mu    sync.RWMutex
	state RunState
	proc  *process.Process
}

// NewRunner prepares a runner. Nothing is spawned until Run.
func NewRunner(spec CommandSpec, cfg RunnerConfig) *Runner {
	if cfg.GracefulTimeout <= 0 {
		cfg.GracefulTimeout = DefaultGracefulTimeout
	}
	if cfg.StderrTail == 0 {
		cfg.StderrTail = DefaultStderrTail
	}

	return &Runner{
		spec:   spec,
		config: cfg,
		logger: noopLogger{},
		state:  RunNotStarted,
	}
}

// SetLogger sets the logger for the runner and its process.
func (r *Runner) SetLogger(logger Logger) {
	r.logger = logger
}

// Run spawns the command and returns its event stream. Log and progress
// events arrive in output order, followed by exactly one EventFinished,
// after which the channel is closed. The stream must be drained.
//
// Cancelling ctx stops the process.
func (r *Runner) Run(ctx context.Context) (<-chan Event, error) {
	r.mu.Lock()
	if r.state != RunNotStarted {
		r.mu.Unlock()
		return nil, errRunnerUsed
	}
	r.state = RunRunning
	r.mu.Unlock()

	events := make(chan Event, runnerEventBuffer)
	classifier := NewClassifier(r.config.Rules)
	tail := newLineTail(r.config.StderrTail)

	proc := process.New(process.Config{
		Name:            string(r.spec.Operation),
		Binary:          r.spec.Program(),
		Args:            r.spec.Argv(),
		GracefulTimeout: r.config.GracefulTimeout,
		OnStdout: func(line string) {
			switch c := classifier.Classify(line); c.Kind {
			case KindLog:
				events <- Event{Kind: EventLog, Text: c.Text}
			case KindProgress:
				events <- Event{Kind: EventProgress, Percent: c.Percent}
			}
		},
		OnStderr: tail.add,
	})
	proc.SetLogger(r.logger)

	r.mu.Lock()
	r.proc = proc
	r.mu.Unlock()

	startedAt := time.Now()
	var startErr error
	if r.spec.Program() == "" {
		startErr = ErrEmptyCommand
	} else {
		startErr = proc.Start()
	}

	go r.run(ctx, proc, startErr, startedAt, tail, events)

	return events, nil
}

func (r *Runner) run(ctx context.Context, proc *process.Process, startErr error, startedAt time.Time, tail *lineTail, events chan<- Event) {
	defer close(events)

	if startErr != nil {
		r.logger.Warn("command failed to start", "operation", r.spec.Operation, "error", startErr)
		events <- Event{Kind: EventLog, Text: startErr.Error()}
		r.finish(events, Result{
			ExitCode:   -1,
			Err:        startErr,
			StartedAt:  startedAt,
			FinishedAt: time.Now(),
		})
		return
	}

	stopWatch := context.AfterFunc(ctx, func() {
		if err := proc.Stop(); err != nil {
			r.logger.Warn("stopping command", "operation", r.spec.Operation, "error", err)
		}
	})
	defer stopWatch()

	waitErr := proc.Wait()
	res := Result{
		ExitCode:   proc.ExitCode(),
		Err:        waitErr,
		Stopped:    proc.StopRequested(),
		StartedAt:  startedAt,
		FinishedAt: time.Now(),
	}

	if !res.Success() {
		for _, line := range tail.lines() {
			events <- Event{Kind: EventLog, Text: line}
		}
	}

	r.finish(events, res)
}

func (r *Runner) finish(events chan<- Event, res Result) {
	r.mu.Lock()
	r.state = RunFinished
	r.mu.Unlock()

	events <- Event{Kind: EventFinished, Result: res}
}

// Stop asks the running process group to terminate. It is best-effort:
// a child running as another user may refuse the signal.
func (r *Runner) Stop() error {
	r.mu.RLock()
	proc := r.proc
	r.mu.RUnlock()

	if proc == nil {
		return nil
	}
	if err := proc.Stop(); err != nil {
		return fmt.Errorf("stopping %s: %w", r.spec.Operation, err)
	}
	return nil
}

// State returns the runner's lifecycle state.
func (r *Runner) State() RunState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state
}

// Stats returns a snapshot of the underlying process.
func (r *Runner) Stats() (process.Stats, bool) {
	r.mu.RLock()
	proc := r.proc
	r.mu.RUnlock()

	if proc == nil {
		return process.Stats{}, false
	}
	return proc.Stats(), true
}

// lineTail keeps the last n lines written to it.
type lineTail struct {
	mu  sync.Mutex
	max int
	buf []string
}

func newLineTail(n int) *lineTail {
	if n < 0 {
		n = 0
	}
	return &lineTail{max: n}
}

func (t *lineTail) add(line string) {
	if t.max == 0 || line == "" {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	t.buf = append(t.buf, line)
	if len(t.buf) > t.max {
		t.buf = t.buf[len(t.buf)-t.max:]
	}
}

func (t *lineTail) lines() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.buf...)
}
