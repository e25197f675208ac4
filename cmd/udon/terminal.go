package main

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/slimtoolkit/uiprogress"

	"github.com/udon-flasher/udon-core/internal/device"
	"github.com/udon-flasher/udon-core/internal/flash"
)

const (
	progressRefresh  = 100 * time.Millisecond
	progressBarWidth = 50
)

// terminalSink renders supervisor activity for a person at a terminal.
type terminalSink struct {
	out  io.Writer
	bars bool

	header  *color.Color
	ok      *color.Color
	fail    *color.Color
	attach  *color.Color
	detach  *color.Color
	dimmed  *color.Color
	logLine *color.Color

	mu       sync.Mutex
	progress *uiprogress.Progress
	bar      *uiprogress.Bar
	percent  int
}

// newTerminalSink writes to out. With bars set, progress is drawn as a
// live bar; otherwise each new percentage is printed on its own line.
// plain disables colour.
func newTerminalSink(out io.Writer, bars, plain bool) *terminalSink {
	t := &terminalSink{
		out:     out,
		bars:    bars,
		header:  color.New(color.FgCyan, color.Bold),
		ok:      color.New(color.FgHiGreen, color.Bold),
		fail:    color.New(color.FgHiRed, color.Bold),
		attach:  color.New(color.FgGreen),
		detach:  color.New(color.FgYellow),
		dimmed:  color.New(color.FgHiBlack),
		logLine: color.New(color.Reset),
		percent: -1,
	}
	if plain {
		for _, c := range []*color.Color{t.header, t.ok, t.fail, t.attach, t.detach, t.dimmed, t.logLine} {
			c.DisableColor()
		}
	}
	return t
}

// writer returns where text lines go. While a bar is drawn, lines are
// printed above it.
func (t *terminalSink) writer() io.Writer {
	if t.progress != nil {
		return t.progress.Bypass()
	}
	return t.out
}

func (t *terminalSink) OnLog(text string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.logLine.Fprintln(t.writer(), text) //nolint:errcheck // Terminal output
}

func (t *terminalSink) OnProgress(percent int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if percent == t.percent {
		return
	}
	t.percent = percent

	if t.bar != nil {
		t.bar.Set(percent) //nolint:errcheck // Percent is always within the bar total
		return
	}
	if t.bars {
		// Progress before a run is only the reset to zero.
		return
	}
	t.dimmed.Fprintf(t.out, "progress %d%%\n", percent) //nolint:errcheck // Terminal output
}

func (t *terminalSink) OnDeviceEvent(ev device.Event) {
	t.mu.Lock()
	defer t.mu.Unlock()

	c := t.detach
	if ev.Kind == device.EventAttached {
		c = t.attach
	}
	c.Fprintln(t.writer(), ev.Message()) //nolint:errcheck // Terminal output
}

func (t *terminalSink) OnRunStarted(run flash.Run) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.header.Fprintf(t.out, "==> %s: %s\n", run.Operation, strings.Join(run.Args, " ")) //nolint:errcheck // Terminal output
	t.percent = -1

	if t.bars {
		t.progress = uiprogress.New()
		t.progress.SetOut(t.out)
		t.progress.SetRefreshInterval(progressRefresh)
		t.bar = t.progress.AddBar(100).AppendCompleted().PrependElapsed()
		t.bar.Width = progressBarWidth
		t.progress.Start()
	}
}

func (t *terminalSink) OnRunFinished(run flash.Run, res flash.Result) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.progress != nil {
		t.progress.Stop()
		t.progress = nil
		t.bar = nil
	}

	elapsed := res.Duration().Round(time.Millisecond)
	if res.Success() {
		t.ok.Fprintf(t.out, "==> %s finished in %s\n", run.Operation, elapsed) //nolint:errcheck // Terminal output
		return
	}

	reason := fmt.Sprintf("exit code %d", res.ExitCode)
	if res.Err != nil {
		reason = res.Err.Error()
	}
	t.fail.Fprintf(t.out, "==> %s failed after %s: %s\n", run.Operation, elapsed, reason) //nolint:errcheck // Terminal output
}
