package process

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"
)

// Status represents the lifecycle state of a process.
type Status string

const (
	StatusIdle    Status = "idle"
	StatusRunning Status = "running"
	StatusExited  Status = "exited"
	StatusFailed  Status = "failed"
)

// maxLineSize bounds a single output line. Longer lines end the stream.
const maxLineSize = 1 << 20

// LineFunc receives one line of output without its line terminator.
type LineFunc func(line string)

// Config holds configuration for a process.
type Config struct {
	// Name is a human-readable identifier for logging.
	Name string

	// Binary is the path to the executable.
	Binary string

	// Args are command-line arguments to pass to the binary.
	Args []string

	// Env are additional environment variables (key=value format).
	// If nil, inherits from parent process.
	Env []string

	// WorkDir is the working directory for the process.
	// If empty, inherits from parent process.
	WorkDir string

	// GracefulTimeout is how long Stop waits after SIGTERM before SIGKILL.
	GracefulTimeout time.Duration

	// OnStdout is called for every stdout line, sequentially and in order.
	OnStdout LineFunc

	// OnStderr is called for every stderr line.
	OnStderr LineFunc
}

// Logger defines the logging interface for the process.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Process manages one execution of an external command.
type Process struct {
	config Config
	logger Logger

	mu            sync.RWMutex
	cmd           *exec.Cmd
	status        Status
	exitCode      int
	lastError     error
	startTime     time.Time
	endTime       time.Time
	stopRequested bool

	readers sync.WaitGroup
	done    chan struct{}
}

// New creates a process with the given configuration. Nothing is spawned
// until Start is called.
func New(cfg Config) *Process {
	if cfg.GracefulTimeout == 0 {
		cfg.GracefulTimeout = 5 * time.Second
	}
	if cfg.Name == "" {
		cfg.Name = cfg.Binary
	}

	return &Process{
		config:   cfg,
		logger:   noopLogger{},
		status:   StatusIdle,
		exitCode: -1,
		done:     make(chan struct{}),
	}
}

// SetLogger sets the logger for the process.
func (p *Process) SetLogger(logger Logger) {
	p.logger = logger
}

// Start spawns the command and begins streaming its output.
// A Process can only be started once.
func (p *Process) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.status != StatusIdle {
		return fmt.Errorf("%w: %s", ErrAlreadyStarted, p.config.Name)
	}

	p.logger.Info("starting process",
		"name", p.config.Name,
		"binary", p.config.Binary,
		"args", p.config.Args,
	)

	cmd := exec.Command(p.config.Binary, p.config.Args...) //nolint:gosec // Argument vector is built by the caller from validated config

	// Create a new process group so we can signal all children on shutdown
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if p.config.Env != nil {
		cmd.Env = append(os.Environ(), p.config.Env...)
	}
	if p.config.WorkDir != "" {
		cmd.Dir = p.config.WorkDir
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return p.fail(fmt.Errorf("creating stdout pipe: %w", err))
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return p.fail(fmt.Errorf("creating stderr pipe: %w", err))
	}

	if err := cmd.Start(); err != nil {
		return p.fail(fmt.Errorf("%w: %s: %w", ErrSpawn, p.config.Name, err))
	}

	p.cmd = cmd
	p.status = StatusRunning
	p.startTime = time.Now()

	p.readers.Add(2)
	go p.readLines("stdout", stdout, p.config.OnStdout)
	go p.readLines("stderr", stderr, p.config.OnStderr)

	p.logger.Info("process started",
		"name", p.config.Name,
		"pid", cmd.Process.Pid,
	)

	return nil
}

// fail records a start failure. Caller must hold p.mu.
func (p *Process) fail(err error) error {
	p.status = StatusFailed
	p.lastError = err
	p.endTime = time.Now()
	close(p.done)
	return err
}

// readLines delivers each line of r to fn and drains r to EOF.
func (p *Process) readLines(stream string, r io.Reader, fn LineFunc) {
	defer p.readers.Done()

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 4096), maxLineSize)
	scanner.Split(SplitLines())

	for scanner.Scan() {
		line := scanner.Text()
		if stream == "stderr" {
			p.logger.Debug("process output",
				"name", p.config.Name,
				"stream", stream,
				"output", line,
			)
		}
		if fn != nil {
			fn(line)
		}
	}

	if err := scanner.Err(); err != nil {
		p.logger.Warn("output stream error",
			"name", p.config.Name,
			"stream", stream,
			"error", err,
		)
		// Keep the pipe flowing so the child never blocks on a full buffer.
		io.Copy(io.Discard, r) //nolint:errcheck // Drain only
	}
}

// Wait blocks until the process has exited and both output streams have
// been fully delivered. It returns nil on a zero exit status.
func (p *Process) Wait() error {
	p.mu.RLock()
	cmd := p.cmd
	status := p.status
	p.mu.RUnlock()

	if cmd == nil {
		if status == StatusFailed {
			<-p.done
			return p.LastError()
		}
		return ErrNotStarted
	}

	// Pipes must be fully read before cmd.Wait closes them.
	p.readers.Wait()
	err := cmd.Wait()

	p.mu.Lock()
	select {
	case <-p.done:
		// Wait called twice; the first caller recorded the result.
		err = p.lastError
	default:
		p.endTime = time.Now()
		if cmd.ProcessState != nil {
			p.exitCode = cmd.ProcessState.ExitCode()
		}
		if err != nil {
			p.status = StatusFailed
			p.lastError = err
		} else {
			p.status = StatusExited
		}
		close(p.done)
	}
	p.mu.Unlock()

	p.logger.Info("process exited",
		"name", p.config.Name,
		"exit_code", p.ExitCode(),
		"error", err,
	)

	return err
}

// Done returns a channel that is closed once the process has finished
// (or failed to start).
func (p *Process) Done() <-chan struct{} {
	return p.done
}

// Stop asks the process group to terminate.
// It sends SIGTERM and waits for graceful shutdown, then SIGKILL if needed.
// Someone must be blocked in Wait for Stop to observe the exit.
func (p *Process) Stop() error {
	p.mu.Lock()
	if p.status != StatusRunning {
		p.mu.Unlock()
		return nil
	}
	p.stopRequested = true
	cmd := p.cmd
	p.mu.Unlock()

	pid := cmd.Process.Pid
	p.logger.Info("stopping process", "name", p.config.Name, "pid", pid)

	// Negative PID signals the whole process group (created via Setpgid)
	if err := syscall.Kill(-pid, syscall.SIGTERM); err != nil && !errors.Is(err, syscall.ESRCH) {
		p.logger.Warn("failed to send SIGTERM to process group", "name", p.config.Name, "error", err)
	}

	select {
	case <-p.done:
		p.logger.Info("process stopped gracefully", "name", p.config.Name)
		return nil
	case <-time.After(p.config.GracefulTimeout):
		p.logger.Warn("graceful shutdown timeout, sending SIGKILL",
			"name", p.config.Name,
			"timeout", p.config.GracefulTimeout,
		)
	}

	if err := syscall.Kill(-pid, syscall.SIGKILL); err != nil && !errors.Is(err, syscall.ESRCH) {
		return fmt.Errorf("killing process group %s: %w", p.config.Name, err)
	}

	select {
	case <-p.done:
		p.logger.Info("process killed", "name", p.config.Name)
		return nil
	case <-time.After(p.config.GracefulTimeout):
		return fmt.Errorf("%w: %s", ErrStopTimeout, p.config.Name)
	}
}

// Status returns the current status of the process.
func (p *Process) Status() Status {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.status
}

// IsRunning returns true if the process is currently running.
func (p *Process) IsRunning() bool {
	return p.Status() == StatusRunning
}

// StopRequested reports whether Stop was called while the process ran.
func (p *Process) StopRequested() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.stopRequested
}

// LastError returns the error that ended the process, if any.
func (p *Process) LastError() error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.lastError
}

// ExitCode returns the exit status, or -1 if the process has not exited
// or was terminated by a signal.
func (p *Process) ExitCode() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.exitCode
}

// PID returns the process ID, or 0 if not started.
func (p *Process) PID() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.cmd != nil && p.cmd.Process != nil {
		return p.cmd.Process.Pid
	}
	return 0
}

// Stats holds a snapshot of a process.
type Stats struct {
	Name      string        `json:"name"`
	Status    Status        `json:"status"`
	PID       int           `json:"pid,omitempty"`
	Uptime    time.Duration `json:"uptime,omitempty"`
	ExitCode  int           `json:"exit_code"`
	LastError string        `json:"last_error,omitempty"`
}

// Stats returns current statistics for the process.
func (p *Process) Stats() Stats {
	p.mu.RLock()
	defer p.mu.RUnlock()

	stats := Stats{
		Name:     p.config.Name,
		Status:   p.status,
		ExitCode: p.exitCode,
	}

	if p.cmd != nil && p.cmd.Process != nil {
		stats.PID = p.cmd.Process.Pid
	}

	switch p.status {
	case StatusRunning:
		stats.Uptime = time.Since(p.startTime)
	case StatusExited, StatusFailed:
		if !p.startTime.IsZero() {
			stats.Uptime = p.endTime.Sub(p.startTime)
		}
	}

	if p.lastError != nil {
		stats.LastError = p.lastError.Error()
	}

	return stats
}
