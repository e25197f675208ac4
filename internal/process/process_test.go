package process

import (
	"bufio"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"testing/iotest"
	"time"
)

// lineRecorder collects lines delivered by a LineFunc.
type lineRecorder struct {
	mu    sync.Mutex
	lines []string
}

func (r *lineRecorder) add(line string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines = append(r.lines, line)
}

func (r *lineRecorder) get() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.lines...)
}

func TestNew_Defaults(t *testing.T) {
	p := New(Config{Binary: "/bin/true"})

	if p.config.Name != "/bin/true" {
		t.Errorf("Name = %q, want %q", p.config.Name, "/bin/true")
	}
	if p.config.GracefulTimeout != 5*time.Second {
		t.Errorf("GracefulTimeout = %v, want %v", p.config.GracefulTimeout, 5*time.Second)
	}
	if p.Status() != StatusIdle {
		t.Errorf("Status() = %v, want %v", p.Status(), StatusIdle)
	}
	if p.ExitCode() != -1 {
		t.Errorf("ExitCode() = %d, want -1", p.ExitCode())
	}
	if p.PID() != 0 {
		t.Errorf("PID() = %d, want 0", p.PID())
	}
}

func TestProcess_StreamsStdoutInOrder(t *testing.T) {
	rec := &lineRecorder{}
	p := New(Config{
		Name:     "printer",
		Binary:   "/bin/sh",
		Args:     []string{"-c", `printf 'one\ntwo\r\nthree\rfour'`},
		OnStdout: rec.add,
	})

	if err := p.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := p.Wait(); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}

	want := []string{"one", "two", "three", "four"}
	got := rec.get()
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Errorf("lines = %q, want %q", got, want)
	}
	if p.Status() != StatusExited {
		t.Errorf("Status() = %v, want %v", p.Status(), StatusExited)
	}
	if p.ExitCode() != 0 {
		t.Errorf("ExitCode() = %d, want 0", p.ExitCode())
	}
}

func TestProcess_StderrSeparate(t *testing.T) {
	stdout := &lineRecorder{}
	stderr := &lineRecorder{}
	p := New(Config{
		Binary:   "/bin/sh",
		Args:     []string{"-c", "echo out; echo err >&2; exit 3"},
		OnStdout: stdout.add,
		OnStderr: stderr.add,
	})

	if err := p.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	err := p.Wait()
	if err == nil {
		t.Fatal("Wait() error = nil, want exit error")
	}

	if got := stdout.get(); len(got) != 1 || got[0] != "out" {
		t.Errorf("stdout = %q, want [out]", got)
	}
	if got := stderr.get(); len(got) != 1 || got[0] != "err" {
		t.Errorf("stderr = %q, want [err]", got)
	}
	if p.ExitCode() != 3 {
		t.Errorf("ExitCode() = %d, want 3", p.ExitCode())
	}
	if p.Status() != StatusFailed {
		t.Errorf("Status() = %v, want %v", p.Status(), StatusFailed)
	}
}

func TestProcess_StartTwice(t *testing.T) {
	p := New(Config{Binary: "/bin/true"})

	if err := p.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer p.Wait() //nolint:errcheck // Test cleanup

	if err := p.Start(); !errors.Is(err, ErrAlreadyStarted) {
		t.Errorf("second Start() error = %v, want %v", err, ErrAlreadyStarted)
	}
}

func TestProcess_StartWithInvalidBinary(t *testing.T) {
	p := New(Config{
		Name:   "missing",
		Binary: "/nonexistent/binary",
	})

	err := p.Start()
	if !errors.Is(err, ErrSpawn) {
		t.Fatalf("Start() error = %v, want %v", err, ErrSpawn)
	}
	if p.Status() != StatusFailed {
		t.Errorf("Status() = %v, want %v", p.Status(), StatusFailed)
	}

	select {
	case <-p.Done():
	default:
		t.Error("Done() not closed after spawn failure")
	}

	if err := p.Wait(); !errors.Is(err, ErrSpawn) {
		t.Errorf("Wait() error = %v, want %v", err, ErrSpawn)
	}
}

func TestProcess_WaitBeforeStart(t *testing.T) {
	p := New(Config{Binary: "/bin/true"})

	if err := p.Wait(); !errors.Is(err, ErrNotStarted) {
		t.Errorf("Wait() error = %v, want %v", err, ErrNotStarted)
	}
}

func TestProcess_StopWhenNotRunning(t *testing.T) {
	p := New(Config{Binary: "/bin/true"})

	if err := p.Stop(); err != nil {
		t.Errorf("Stop() on idle process error = %v", err)
	}
}

func TestProcess_StartAndStop(t *testing.T) {
	p := New(Config{
		Name:            "test-sleep",
		Binary:          "/bin/sleep",
		Args:            []string{"60"},
		GracefulTimeout: 2 * time.Second,
	})

	if err := p.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if !p.IsRunning() {
		t.Fatal("IsRunning() = false after Start")
	}
	if p.PID() == 0 {
		t.Error("PID() = 0 after Start")
	}

	waitErr := make(chan error, 1)
	go func() { waitErr <- p.Wait() }()

	start := time.Now()
	if err := p.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("Stop() took %v, want under 2s for SIGTERM", elapsed)
	}

	if err := <-waitErr; err == nil {
		t.Error("Wait() error = nil, want signal exit")
	}
	if !p.StopRequested() {
		t.Error("StopRequested() = false after Stop")
	}
	if p.ExitCode() != -1 {
		t.Errorf("ExitCode() = %d, want -1 for signalled exit", p.ExitCode())
	}
}

func TestProcess_StopEscalatesToSIGKILL(t *testing.T) {
	p := New(Config{
		Binary:          "/bin/sh",
		Args:            []string{"-c", "trap '' TERM; echo ready; while :; do sleep 0.1; done"},
		GracefulTimeout: 300 * time.Millisecond,
	})

	ready := make(chan struct{})
	var once sync.Once
	p.config.OnStdout = func(string) { once.Do(func() { close(ready) }) }

	if err := p.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	go p.Wait() //nolint:errcheck // Observed through Done

	select {
	case <-ready:
	case <-time.After(5 * time.Second):
		t.Fatal("child never became ready")
	}

	if err := p.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}

	select {
	case <-p.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("process still running after Stop")
	}
}

func TestProcess_Stats(t *testing.T) {
	p := New(Config{
		Name:   "stats",
		Binary: "/bin/sh",
		Args:   []string{"-c", "exit 0"},
	})

	stats := p.Stats()
	if stats.Name != "stats" {
		t.Errorf("Stats().Name = %q, want %q", stats.Name, "stats")
	}
	if stats.Status != StatusIdle {
		t.Errorf("Stats().Status = %v, want %v", stats.Status, StatusIdle)
	}

	if err := p.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := p.Wait(); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}

	stats = p.Stats()
	if stats.Status != StatusExited {
		t.Errorf("Stats().Status = %v, want %v", stats.Status, StatusExited)
	}
	if stats.ExitCode != 0 {
		t.Errorf("Stats().ExitCode = %d, want 0", stats.ExitCode)
	}
	if stats.LastError != "" {
		t.Errorf("Stats().LastError = %q, want empty", stats.LastError)
	}
}

func TestProcess_SetLogger(t *testing.T) {
	p := New(Config{Binary: "/bin/true"})
	p.SetLogger(noopLogger{})

	if p.logger == nil {
		t.Error("logger should not be nil after SetLogger")
	}
}

func TestSplitLines(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{"newlines", "a\nb\n", []string{"a", "b"}},
		{"crlf", "a\r\nb\r\n", []string{"a", "b"}},
		{"bare carriage returns", "10%\r20%\r30%", []string{"10%", "20%", "30%"}},
		{"mixed", "x\ry\r\nz\n", []string{"x", "y", "z"}},
		{"blank lines kept", "a\n\nb", []string{"a", "", "b"}},
		{"trailing cr", "a\r", []string{"a"}},
		{"empty", "", nil},
		{"cr then blank lf line", "a\r\r\nb", []string{"a", "", "b"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, oneByte := range []bool{false, true} {
				var r io.Reader = strings.NewReader(tt.input)
				if oneByte {
					r = iotest.OneByteReader(r)
				}
				scanner := bufio.NewScanner(r)
				scanner.Split(SplitLines())

				var got []string
				for scanner.Scan() {
					got = append(got, scanner.Text())
				}
				if err := scanner.Err(); err != nil {
					t.Fatalf("scanner error = %v", err)
				}
				if strings.Join(got, "|") != strings.Join(tt.want, "|") || len(got) != len(tt.want) {
					t.Errorf("SplitLines(%q, oneByte=%v) = %q, want %q", tt.input, oneByte, got, tt.want)
				}
			}
		})
	}
}
