package relay

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/udon-flasher/udon-core/internal/device"
	"github.com/udon-flasher/udon-core/internal/flash"
)

func TestMQTTSink_PublishesRun(t *testing.T) {
	broker := newFakeBroker()
	sink := NewMQTTSink(broker, 0)

	run := flash.Run{ID: "run-1", Operation: flash.OpFlash, StartedAt: time.Now()}
	sink.OnDeviceEvent(device.Event{Kind: device.EventAttached, At: time.Now()})
	sink.OnProgress(0)
	sink.OnRunStarted(run)
	sink.OnLog("Check file : AP.tar.md5")
	sink.OnProgress(10)
	sink.OnProgress(10)
	sink.OnProgress(55)
	sink.OnRunFinished(run, flash.Result{ExitCode: 0})
	sink.Close()

	want := []string{
		"udon/device/state",
		"udon/run/progress",
		"udon/run/started",
		"udon/run/log",
		"udon/run/progress",
		"udon/run/progress",
		"udon/run/finished",
	}
	if got := broker.topics(); strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("topics = %v, want %v", got, want)
	}

	msgs := broker.messages()
	if !msgs[0].retained {
		t.Error("device state should be retained")
	}
	for _, m := range msgs[1:] {
		if m.retained {
			t.Errorf("%s should not be retained", m.topic)
		}
	}

	var state DeviceStateMessage
	if err := json.Unmarshal(msgs[0].payload, &state); err != nil {
		t.Fatalf("Unmarshal(device) error = %v", err)
	}
	if state.State != device.StatePresent || state.Message != "Added!" {
		t.Errorf("device message = %+v", state)
	}

	var logMsg LogMessage
	if err := json.Unmarshal(msgs[3].payload, &logMsg); err != nil {
		t.Fatalf("Unmarshal(log) error = %v", err)
	}
	if logMsg.RunID != "run-1" || logMsg.Text != "Check file : AP.tar.md5" {
		t.Errorf("log message = %+v", logMsg)
	}

	var finished struct {
		Run    flash.Run      `json:"run"`
		Result map[string]any `json:"result"`
	}
	if err := json.Unmarshal(msgs[6].payload, &finished); err != nil {
		t.Fatalf("Unmarshal(finished) error = %v", err)
	}
	if finished.Run.ID != "run-1" || finished.Result["success"] != true {
		t.Errorf("finished message = %+v", finished)
	}
}

func TestMQTTSink_DropsLogsWhenFull(t *testing.T) {
	broker := newFakeBroker()
	broker.block = make(chan struct{})
	sink := NewMQTTSink(broker, 2)

	// The first message is taken by the publisher and blocks it.
	sink.OnLog("line 0")
	time.Sleep(50 * time.Millisecond)
	for i := range 10 {
		sink.OnLog(fmt.Sprintf("line %d", i+1))
	}

	if sink.Dropped() == 0 {
		t.Error("Dropped() = 0, want discarded log lines")
	}

	close(broker.block)
	sink.Close()

	if got := len(broker.messages()); got != 3 {
		t.Errorf("published = %d, want 3 (one in flight, two queued)", got)
	}
}

func TestMQTTSink_PublishErrorsLogged(t *testing.T) {
	broker := newFakeBroker()
	broker.failWith = errors.New("not connected")
	logger := &recordingLogger{}

	sink := NewMQTTSink(broker, 0)
	sink.SetLogger(logger)
	sink.OnLog("hello")
	sink.Close()

	if got := logger.get(); len(got) != 1 || got[0] != "warn: mqtt publish failed" {
		t.Errorf("logs = %v, want one publish warning", got)
	}
}

func TestMQTTSink_CloseIsIdempotent(t *testing.T) {
	broker := newFakeBroker()
	sink := NewMQTTSink(broker, 0)

	sink.Close()
	sink.Close()
	sink.OnLog("after close")

	if got := len(broker.messages()); got != 0 {
		t.Errorf("published = %d after Close, want 0", got)
	}
}
