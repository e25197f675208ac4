package flash

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/udon-flasher/udon-core/internal/device"
	"github.com/udon-flasher/udon-core/internal/process"
)

// errAlreadyStarted is returned by a second Supervisor.Start.
var errAlreadyStarted = errors.New("flash: supervisor already started")

// Run identifies one command execution.
type Run struct {
	ID        string    `json:"id"`
	Operation Operation `json:"operation"`
	Args      []string  `json:"args"`
	StartedAt time.Time `json:"started_at"`
}

// Status is a snapshot of the supervisor.
type Status struct {
	Device   device.State   `json:"device"`
	Running  bool           `json:"running"`
	Run      *Run           `json:"run,omitempty"`
	Progress int            `json:"progress"`
	Process  *process.Stats `json:"process,omitempty"`
}

// Options configures a Supervisor.
type Options struct {
	Builder Builder
	Rules   Rules
	Monitor *device.Monitor
	Sink    Sink
	Logger  Logger

	// GracefulTimeout is passed to each Runner.
	GracefulTimeout time.Duration
}

type activeRun struct {
	run    Run
	runner *Runner
}

// Supervisor runs flasher commands one at a time and reports device
// presence.
type Supervisor struct {
	builder  Builder
	rules    Rules
	monitor  *device.Monitor
	sink     Sink
	logger   Logger
	graceful time.Duration

	ctx    context.Context
	cancel context.CancelFunc

	// busy is the run slot. Only a successful CompareAndSwap(false, true)
	// may start a run; the run's forwarder releases it on completion.
	busy atomic.Bool

	mu        sync.RWMutex
	active    *activeRun
	progress  int
	started   bool
	closed    bool
	stopAfter func() bool

	wg sync.WaitGroup
}

// NewSupervisor creates a supervisor. Call Start to begin device monitoring.
func NewSupervisor(opts Options) (*Supervisor, error) {
	if opts.Monitor == nil {
		return nil, ErrNoMonitor
	}
	if opts.Builder.Binary == "" {
		opts.Builder = DefaultBuilder()
	}
	if opts.Rules == (Rules{}) {
		opts.Rules = DefaultRules()
	}
	if opts.Sink == nil {
		opts.Sink = NopSink{}
	}
	if opts.Logger == nil {
		opts.Logger = noopLogger{}
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Supervisor{
		builder:  opts.Builder,
		rules:    opts.Rules,
		monitor:  opts.Monitor,
		sink:     &serialSink{sink: opts.Sink},
		logger:   opts.Logger,
		graceful: opts.GracefulTimeout,
		ctx:      ctx,
		cancel:   cancel,
	}, nil
}

// Start begins device monitoring. Cancelling ctx has the same effect on
// running work as Shutdown, but Shutdown must still be called to wait.
func (s *Supervisor) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrShuttingDown
	}
	if s.started {
		return errAlreadyStarted
	}

	events, err := s.monitor.Start(s.ctx)
	if err != nil {
		return err
	}
	s.started = true
	s.stopAfter = context.AfterFunc(ctx, s.cancel)

	s.wg.Add(1)
	go s.forwardDevice(events)

	s.logger.Info("supervisor started",
		"binary", s.builder.Binary,
		"elevation", s.builder.Elevation,
	)
	return nil
}

func (s *Supervisor) forwardDevice(events <-chan device.Event) {
	defer s.wg.Done()

	for ev := range events {
		s.logger.Info("device presence changed", "event", ev.Kind)
		s.sink.OnDeviceEvent(ev)
	}
}

// StartFlash flashes the selected images. An empty request is rejected
// with ErrValidation before anything is spawned.
func (s *Supervisor) StartFlash(req Request) (Run, error) {
	spec, err := s.builder.Flash(req)
	if err != nil {
		s.sink.OnLog(err.Error())
		return Run{}, err
	}
	return s.StartRun(spec)
}

// RebootDevice reboots the device out of download mode.
func (s *Supervisor) RebootDevice() (Run, error) {
	return s.StartRun(s.builder.Reboot())
}

// RebootToDownloadMode reboots the device back into download mode.
func (s *Supervisor) RebootToDownloadMode() (Run, error) {
	return s.StartRun(s.builder.Redownload())
}

// StartRun launches spec unless another run is active, in which case it
// reports ErrAlreadyRunning to the sink and returns it.
func (s *Supervisor) StartRun(spec CommandSpec) (Run, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		s.sink.OnLog(ErrShuttingDown.Error())
		return Run{}, ErrShuttingDown
	}
	if !s.busy.CompareAndSwap(false, true) {
		s.mu.Unlock()
		s.sink.OnLog(ErrAlreadyRunning.Error())
		return Run{}, ErrAlreadyRunning
	}

	run := Run{
		ID:        uuid.NewString(),
		Operation: spec.Operation,
		Args:      append([]string(nil), spec.Args...),
		StartedAt: time.Now().UTC(),
	}
	runner := NewRunner(spec, RunnerConfig{
		Rules:           s.rules,
		GracefulTimeout: s.graceful,
	})
	runner.SetLogger(s.logger)

	s.active = &activeRun{run: run, runner: runner}
	s.progress = 0
	s.wg.Add(1)
	s.mu.Unlock()

	s.logger.Info("starting command",
		"run_id", run.ID,
		"operation", run.Operation,
		"args", run.Args,
	)

	s.sink.OnProgress(0)
	s.sink.OnRunStarted(run)

	events, err := runner.Run(s.ctx)
	if err != nil {
		// Only a reused runner fails here. Close the run so sinks stay
		// balanced, and tell the caller it did not start.
		s.wg.Done()
		s.release(run, Result{ExitCode: -1, Err: err, StartedAt: run.StartedAt, FinishedAt: time.Now()})
		return Run{}, fmt.Errorf("starting %s: %w", run.Operation, err)
	}

	go s.forwardRun(run, events)
	return run, nil
}

func (s *Supervisor) forwardRun(run Run, events <-chan Event) {
	defer s.wg.Done()

	for ev := range events {
		switch ev.Kind {
		case EventLog:
			s.sink.OnLog(strings.TrimSpace(ev.Text))
		case EventProgress:
			s.mu.Lock()
			s.progress = ev.Percent
			s.mu.Unlock()
			s.sink.OnProgress(ev.Percent)
		case EventFinished:
			s.release(run, ev.Result)
		}
	}
}

// release reports completion and then frees the run slot, so a sink sees
// OnRunFinished before anything from the next run.
func (s *Supervisor) release(run Run, res Result) {
	s.logger.Info("command finished",
		"run_id", run.ID,
		"operation", run.Operation,
		"exit_code", res.ExitCode,
		"success", res.Success(),
		"duration", res.Duration(),
		"error", res.Err,
	)

	s.sink.OnRunFinished(run, res)

	s.mu.Lock()
	s.active = nil
	s.mu.Unlock()
	s.busy.Store(false)
}

// IsRunning reports whether a run is active.
func (s *Supervisor) IsRunning() bool {
	return s.busy.Load()
}

// Status returns a snapshot of device and run state.
func (s *Supervisor) Status() Status {
	s.mu.RLock()
	active := s.active
	progress := s.progress
	s.mu.RUnlock()

	st := Status{
		Device:   s.monitor.State(),
		Running:  s.busy.Load(),
		Progress: progress,
	}
	if active != nil {
		run := active.run
		st.Run = &run
		if stats, ok := active.runner.Stats(); ok {
			st.Process = &stats
		}
	}
	return st
}

// Shutdown stops device monitoring, asks an active run to terminate and
// waits for all pending sink calls. Termination of the flasher is
// best-effort; if it outlives ctx, Shutdown returns ctx.Err().
func (s *Supervisor) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	active := s.active
	stopAfter := s.stopAfter
	s.mu.Unlock()

	if stopAfter != nil {
		stopAfter()
	}

	s.logger.Info("supervisor shutting down", "run_active", active != nil)

	s.monitor.Stop()
	// Runners watch s.ctx and signal their process group.
	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("supervisor stopped")
		return nil
	case <-ctx.Done():
		s.logger.Warn("supervisor shutdown incomplete, command may still be running")
		return ctx.Err()
	}
}
