package relay

import (
	"github.com/udon-flasher/udon-core/internal/device"
	"github.com/udon-flasher/udon-core/internal/flash"
)

// LogSink writes supervisor activity to a structured logger. Flasher
// output is logged at info, progress at debug.
type LogSink struct {
	logger Logger
}

// NewLogSink creates a sink that logs to logger.
func NewLogSink(logger Logger) *LogSink {
	if logger == nil {
		logger = noopLogger{}
	}
	return &LogSink{logger: logger}
}

func (s *LogSink) OnLog(text string) {
	s.logger.Info("flasher output", "text", text)
}

func (s *LogSink) OnProgress(percent int) {
	s.logger.Debug("flasher progress", "percent", percent)
}

func (s *LogSink) OnDeviceEvent(ev device.Event) {
	s.logger.Info(ev.Message(), "event", ev.Kind, "state", ev.State())
}

func (s *LogSink) OnRunStarted(run flash.Run) {
	s.logger.Info("run started", "run_id", run.ID, "operation", run.Operation)
}

func (s *LogSink) OnRunFinished(run flash.Run, res flash.Result) {
	args := []any{
		"run_id", run.ID,
		"operation", run.Operation,
		"exit_code", res.ExitCode,
		"duration", res.Duration(),
	}
	if res.Success() {
		s.logger.Info("run succeeded", args...)
		return
	}
	if res.Err != nil {
		args = append(args, "error", res.Err)
	}
	s.logger.Warn("run failed", args...)
}
