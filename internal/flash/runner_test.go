package flash

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/udon-flasher/udon-core/internal/process"
)

func TestRunner_SampleStream(t *testing.T) {
	bin := writeFlasher(t, `
echo "Setup Connection OK"
echo "/dev/bus/usb/001/002"
echo "Uploading (37%)"
echo "Done.lz4"`)

	r := NewRunner(CommandSpec{Operation: OpFlash, Args: []string{bin}}, RunnerConfig{Rules: DefaultRules()})
	events, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	got := collect(t, events)
	if len(got) != 3 {
		t.Fatalf("got %d events, want 3: %+v", len(got), got)
	}
	if got[0].Kind != EventProgress || got[0].Percent != 37 {
		t.Errorf("event[0] = %+v, want progress 37", got[0])
	}
	if got[1].Kind != EventLog || got[1].Text != "Done" {
		t.Errorf("event[1] = %+v, want log Done", got[1])
	}
	if got[2].Kind != EventFinished {
		t.Fatalf("event[2] = %+v, want finished", got[2])
	}
	if !got[2].Result.Success() {
		t.Errorf("Result.Success() = false, want true (err %v)", got[2].Result.Err)
	}
	if r.State() != RunFinished {
		t.Errorf("State() = %v, want %v", r.State(), RunFinished)
	}
}

func TestRunner_PassesArguments(t *testing.T) {
	bin := writeFlasher(t, `echo "Setup Connection"; for a in "$@"; do echo "arg=$a"; done`)

	r := NewRunner(CommandSpec{Args: []string{bin, "-a", "/tmp/My AP.tar", "--no-reboot"}}, RunnerConfig{Rules: DefaultRules()})
	events, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	want := []string{"arg=-a", "arg=/tmp/My AP.tar", "arg=--no-reboot"}
	var logs []string
	for _, ev := range collect(t, events) {
		if ev.Kind == EventLog {
			logs = append(logs, ev.Text)
		}
	}
	if len(logs) != len(want) {
		t.Fatalf("logs = %q, want %q", logs, want)
	}
	for i := range want {
		if logs[i] != want[i] {
			t.Errorf("log[%d] = %q, want %q", i, logs[i], want[i])
		}
	}
}

func TestRunner_LiveProgress(t *testing.T) {
	bin := writeFlasher(t, `
echo "Setup Connection"
printf "(10%%)\r"
sleep 0.3
printf "(20%%)\r"
sleep 5`)

	r := NewRunner(CommandSpec{Args: []string{bin}}, RunnerConfig{Rules: DefaultRules(), GracefulTimeout: time.Second})
	events, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	defer func() {
		r.Stop() //nolint:errcheck // Test cleanup
		collect(t, events)
	}()

	for _, want := range []int{10, 20} {
		select {
		case ev := <-events:
			if ev.Kind != EventProgress || ev.Percent != want {
				t.Errorf("event = %+v, want progress %d", ev, want)
			}
		case <-time.After(3 * time.Second):
			t.Fatalf("progress %d not delivered while process runs", want)
		}
	}

	if r.State() != RunRunning {
		t.Errorf("State() = %v, want %v", r.State(), RunRunning)
	}
}

func TestRunner_NonZeroExit(t *testing.T) {
	bin := writeFlasher(t, `
echo "Setup Connection"
echo "Fail request" 
echo "Error executing command as another user: Not authorized" >&2
exit 127`)

	r := NewRunner(CommandSpec{Args: []string{bin}}, RunnerConfig{Rules: DefaultRules()})
	events, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	got := collect(t, events)
	if len(got) != 3 {
		t.Fatalf("got %d events, want 3: %+v", len(got), got)
	}
	if got[1].Kind != EventLog || got[1].Text != "Error executing command as another user: Not authorized" {
		t.Errorf("event[1] = %+v, want stderr tail line", got[1])
	}

	res := got[2].Result
	if res.Success() {
		t.Error("Result.Success() = true, want false")
	}
	if res.ExitCode != 127 {
		t.Errorf("Result.ExitCode = %d, want 127", res.ExitCode)
	}
}

func TestRunner_StderrHiddenOnSuccess(t *testing.T) {
	bin := writeFlasher(t, `echo "Setup Connection"; echo "warning" >&2; echo ok`)

	r := NewRunner(CommandSpec{Args: []string{bin}}, RunnerConfig{Rules: DefaultRules()})
	events, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	got := collect(t, events)
	if len(got) != 2 || got[0].Text != "ok" || got[1].Kind != EventFinished {
		t.Errorf("events = %+v, want [log ok, finished]", got)
	}
}

func TestRunner_SpawnFailure(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "no-such-odin4")

	r := NewRunner(CommandSpec{Args: []string{missing, "--reboot"}}, RunnerConfig{})
	events, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	got := collect(t, events)
	if len(got) != 2 {
		t.Fatalf("got %d events, want 2: %+v", len(got), got)
	}
	if got[0].Kind != EventLog || got[0].Text == "" {
		t.Errorf("event[0] = %+v, want log with spawn error", got[0])
	}
	res := got[1].Result
	if got[1].Kind != EventFinished || res.Success() {
		t.Errorf("event[1] = %+v, want failed finish", got[1])
	}
	if !errors.Is(res.Err, process.ErrSpawn) {
		t.Errorf("Result.Err = %v, want %v", res.Err, process.ErrSpawn)
	}
	if res.ExitCode != -1 {
		t.Errorf("Result.ExitCode = %d, want -1", res.ExitCode)
	}
}

func TestRunner_EmptyCommand(t *testing.T) {
	r := NewRunner(CommandSpec{}, RunnerConfig{})
	events, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	got := collect(t, events)
	if len(got) != 2 || !errors.Is(got[1].Result.Err, ErrEmptyCommand) {
		t.Errorf("events = %+v, want log + finished with %v", got, ErrEmptyCommand)
	}
}

func TestRunner_RunTwice(t *testing.T) {
	bin := writeFlasher(t, `exit 0`)
	r := NewRunner(CommandSpec{Args: []string{bin}}, RunnerConfig{})

	events, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	collect(t, events)

	if _, err := r.Run(context.Background()); !errors.Is(err, errRunnerUsed) {
		t.Errorf("second Run() error = %v, want %v", err, errRunnerUsed)
	}
}

func TestRunner_ContextCancelStopsProcess(t *testing.T) {
	bin := writeFlasher(t, `echo "Setup Connection"; echo started; exec sleep 30`)

	ctx, cancel := context.WithCancel(context.Background())
	r := NewRunner(CommandSpec{Args: []string{bin}}, RunnerConfig{Rules: DefaultRules(), GracefulTimeout: time.Second})
	events, err := r.Run(ctx)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if ev := <-events; ev.Text != "started" {
		t.Fatalf("first event = %+v, want started", ev)
	}
	cancel()

	got := collect(t, events)
	last := got[len(got)-1]
	if last.Kind != EventFinished {
		t.Fatalf("last event = %+v, want finished", last)
	}
	if !last.Result.Stopped {
		t.Error("Result.Stopped = false after cancel")
	}
	if last.Result.Success() {
		t.Error("Result.Success() = true for stopped run")
	}
}

func TestResult_MarshalJSON(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	res := Result{
		ExitCode:   1,
		Err:        errors.New("exit status 1"),
		StartedAt:  start,
		FinishedAt: start.Add(1500 * time.Millisecond),
	}

	data, err := res.MarshalJSON()
	if err != nil {
		t.Fatalf("MarshalJSON() error = %v", err)
	}
	want := `{"exit_code":1,"success":false,"error":"exit status 1","started_at":"2026-03-01T12:00:00Z","finished_at":"2026-03-01T12:00:01.5Z","duration_ms":1500}`
	if string(data) != want {
		t.Errorf("MarshalJSON() = %s, want %s", data, want)
	}
}

func TestLineTail(t *testing.T) {
	tail := newLineTail(2)
	for _, l := range []string{"a", "", "b", "c"} {
		tail.add(l)
	}
	got := tail.lines()
	if len(got) != 2 || got[0] != "b" || got[1] != "c" {
		t.Errorf("lines() = %q, want [b c]", got)
	}

	if got := newLineTail(-1); len(got.lines()) != 0 {
		t.Error("disabled tail kept lines")
	}
}
