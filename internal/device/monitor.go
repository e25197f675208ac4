package device

import (
	"context"
	"sync"
	"time"
)

const (
	// DefaultInterval is the pause between two probes.
	DefaultInterval = time.Second

	// DefaultTimeout bounds a single probe.
	DefaultTimeout = time.Second

	eventBufferSize = 16
)

// Config holds monitor timing.
type Config struct {
	// Interval is the pause between the end of one probe and the start of
	// the next. Zero means DefaultInterval.
	Interval time.Duration

	// Timeout bounds each probe. Zero means DefaultTimeout.
	Timeout time.Duration
}

// Logger defines the logging interface for the monitor.
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

// Monitor polls a Prober and emits presence transitions.
type Monitor struct {
	prober   Prober
	interval time.Duration
	timeout  time.Duration
	logger   Logger

	mu      sync.RWMutex
	state   State
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewMonitor creates a monitor in the Absent state.
func NewMonitor(prober Prober, cfg Config) *Monitor {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	return &Monitor{
		prober:   prober,
		interval: cfg.Interval,
		timeout:  cfg.Timeout,
		logger:   noopLogger{},
		state:    StateAbsent,
	}
}

// SetLogger sets the logger for the monitor.
func (m *Monitor) SetLogger(logger Logger) {
	m.logger = logger
}

// Start launches the poll loop. The returned channel delivers transitions
// in poll order and is closed when the loop ends, either through Stop or
// through cancellation of ctx.
func (m *Monitor) Start(ctx context.Context) (<-chan Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return nil, ErrMonitorRunning
	}

	loopCtx, cancel := context.WithCancel(ctx)
	events := make(chan Event, eventBufferSize)

	m.running = true
	m.cancel = cancel
	m.done = make(chan struct{})

	go m.run(loopCtx, events, m.done)

	m.logger.Info("device monitor started",
		"interval", m.interval,
		"timeout", m.timeout,
	)

	return events, nil
}

// Stop asks the poll loop to end and waits for it. The loop exits after
// the probe in flight, which is bounded by the probe timeout.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	cancel := m.cancel
	done := m.done
	m.mu.Unlock()

	cancel()
	<-done

	m.logger.Info("device monitor stopped")
}

// State returns the last known presence state.
func (m *Monitor) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// IsRunning reports whether the poll loop is active.
func (m *Monitor) IsRunning() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.running
}

func (m *Monitor) run(ctx context.Context, events chan<- Event, done chan struct{}) {
	defer func() {
		close(events)
		m.mu.Lock()
		m.running = false
		m.mu.Unlock()
		close(done)
	}()

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		if ev, changed := m.poll(ctx); changed {
			select {
			case events <- ev:
			case <-ctx.Done():
				return
			}
		}

		timer.Reset(m.interval)
	}
}

// poll runs one probe and records the result. It returns the transition
// event when the state changed.
func (m *Monitor) poll(ctx context.Context) (Event, bool) {
	probeCtx, cancel := context.WithTimeout(ctx, m.timeout)
	err := m.prober.Probe(probeCtx)
	cancel()

	// A probe interrupted by Stop says nothing about the device.
	if ctx.Err() != nil {
		return Event{}, false
	}

	next := StateAbsent
	if err == nil {
		next = StatePresent
	}

	m.mu.Lock()
	prev := m.state
	m.state = next
	m.mu.Unlock()

	if next == prev {
		return Event{}, false
	}

	ev := Event{Kind: EventDetached, At: time.Now()}
	if next == StatePresent {
		ev.Kind = EventAttached
	}
	m.logger.Debug("device presence changed", "state", next)

	return ev, true
}
