package relay

import (
	"time"

	"github.com/udon-flasher/udon-core/internal/device"
	"github.com/udon-flasher/udon-core/internal/flash"
)

// MetricsWriter stores flashing metrics. *influxdb.Client satisfies it.
type MetricsWriter interface {
	WriteDeviceEvent(event string, present bool, at time.Time)
	WriteProgress(runID, operation string, percent int)
	WriteRun(operation string, success bool, exitCode int, duration time.Duration, at time.Time)
}

// MetricsSink turns supervisor callbacks into time-series points.
// Progress outside a run and repeated percentages are not written.
type MetricsSink struct {
	flash.NopSink

	w       MetricsWriter
	run     *flash.Run
	lastPct int
}

// NewMetricsSink creates a sink writing to w.
func NewMetricsSink(w MetricsWriter) *MetricsSink {
	return &MetricsSink{w: w, lastPct: -1}
}

func (s *MetricsSink) OnDeviceEvent(ev device.Event) {
	s.w.WriteDeviceEvent(string(ev.Kind), ev.State() == device.StatePresent, ev.At)
}

func (s *MetricsSink) OnRunStarted(run flash.Run) {
	s.run = &run
	s.lastPct = -1
}

func (s *MetricsSink) OnProgress(percent int) {
	if s.run == nil || percent == s.lastPct {
		return
	}
	s.lastPct = percent
	s.w.WriteProgress(s.run.ID, string(s.run.Operation), percent)
}

func (s *MetricsSink) OnRunFinished(run flash.Run, res flash.Result) {
	s.run = nil
	at := res.FinishedAt
	if at.IsZero() {
		at = time.Now()
	}
	s.w.WriteRun(string(run.Operation), res.Success(), res.ExitCode, res.Duration(), at)
}
