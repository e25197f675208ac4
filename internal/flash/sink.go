package flash

import (
	"sync"

	"github.com/udon-flasher/udon-core/internal/device"
)

// Sink receives everything the Supervisor reports.
//
// The Supervisor never calls a Sink concurrently with itself, but calls
// may come from different goroutines. Implementations must return quickly
// and must not issue Supervisor commands from inside a callback.
type Sink interface {
	// OnLog receives user-facing text: flasher output, rejections, spawn errors.
	OnLog(text string)

	// OnProgress receives a percentage in [0,100]. It is reset to 0 when a
	// run starts.
	OnProgress(percent int)

	// OnDeviceEvent receives device attach and detach transitions.
	OnDeviceEvent(ev device.Event)

	// OnRunStarted is called before any output of the run.
	OnRunStarted(run Run)

	// OnRunFinished is the last call for a run. The run slot is freed only
	// after it returns, so the next run's calls always come later.
	OnRunFinished(run Run, res Result)
}

// NopSink ignores everything. Embed it to implement part of Sink.
type NopSink struct{}

func (NopSink) OnLog(string)               {}
func (NopSink) OnProgress(int)             {}
func (NopSink) OnDeviceEvent(device.Event) {}
func (NopSink) OnRunStarted(Run)           {}
func (NopSink) OnRunFinished(Run, Result)  {}

// MultiSink fans every call out to each sink in order.
type MultiSink []Sink

func (m MultiSink) OnLog(text string) {
	for _, s := range m {
		s.OnLog(text)
	}
}

func (m MultiSink) OnProgress(percent int) {
	for _, s := range m {
		s.OnProgress(percent)
	}
}

func (m MultiSink) OnDeviceEvent(ev device.Event) {
	for _, s := range m {
		s.OnDeviceEvent(ev)
	}
}

func (m MultiSink) OnRunStarted(run Run) {
	for _, s := range m {
		s.OnRunStarted(run)
	}
}

func (m MultiSink) OnRunFinished(run Run, res Result) {
	for _, s := range m {
		s.OnRunFinished(run, res)
	}
}

// serialSink serialises calls into a sink.
type serialSink struct {
	mu   sync.Mutex
	sink Sink
}

func (s *serialSink) OnLog(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sink.OnLog(text)
}

func (s *serialSink) OnProgress(percent int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sink.OnProgress(percent)
}

func (s *serialSink) OnDeviceEvent(ev device.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sink.OnDeviceEvent(ev)
}

func (s *serialSink) OnRunStarted(run Run) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sink.OnRunStarted(run)
}

func (s *serialSink) OnRunFinished(run Run, res Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sink.OnRunFinished(run, res)
}

// Logger defines the logging interface for this package.
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
