package flash

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/udon-flasher/udon-core/internal/device"
)

// writeFlasher creates an executable stand-in for odin4.
func writeFlasher(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "odin4")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755); err != nil { //nolint:gosec // Test helper needs an executable
		t.Fatalf("writing flasher script: %v", err)
	}
	return path
}

// collect drains a runner stream with a deadline.
func collect(t *testing.T, events <-chan Event) []Event {
	t.Helper()
	var out []Event
	timeout := time.After(10 * time.Second)
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return out
			}
			out = append(out, ev)
		case <-timeout:
			t.Fatalf("runner stream not closed; got %d events", len(out))
		}
	}
}

// sinkCall is one recorded Sink invocation.
type sinkCall struct {
	method  string
	text    string
	percent int
	device  device.EventKind
	run     Run
	result  Result
}

// recordingSink records every call and signals run completion.
type recordingSink struct {
	mu       sync.Mutex
	calls    []sinkCall
	finished chan Result
}

func newRecordingSink() *recordingSink {
	return &recordingSink{finished: make(chan Result, 16)}
}

func (s *recordingSink) record(c sinkCall) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, c)
}

func (s *recordingSink) OnLog(text string) { s.record(sinkCall{method: "log", text: text}) }

func (s *recordingSink) OnProgress(percent int) {
	s.record(sinkCall{method: "progress", percent: percent})
}

func (s *recordingSink) OnDeviceEvent(ev device.Event) {
	s.record(sinkCall{method: "device", device: ev.Kind})
}

func (s *recordingSink) OnRunStarted(run Run) { s.record(sinkCall{method: "started", run: run}) }

func (s *recordingSink) OnRunFinished(run Run, res Result) {
	s.record(sinkCall{method: "finished", run: run, result: res})
	s.finished <- res
}

func (s *recordingSink) snapshot() []sinkCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]sinkCall(nil), s.calls...)
}

func (s *recordingSink) logs() []string {
	var out []string
	for _, c := range s.snapshot() {
		if c.method == "log" {
			out = append(out, c.text)
		}
	}
	return out
}

func (s *recordingSink) waitFinished(t *testing.T) Result {
	t.Helper()
	select {
	case res := <-s.finished:
		return res
	case <-time.After(10 * time.Second):
		t.Fatal("run did not finish")
		return Result{}
	}
}

// waitIdle waits until sup has freed its run slot. The slot is released
// only after OnRunFinished returns, so it can lag waitFinished briefly.
func waitIdle(t *testing.T, sup *Supervisor) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for sup.IsRunning() {
		if time.Now().After(deadline) {
			t.Fatal("run slot not released")
		}
		time.Sleep(time.Millisecond)
	}
}
