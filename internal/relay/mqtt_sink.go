package relay

import (
	"sync"
	"time"

	"github.com/udon-flasher/udon-core/internal/device"
	"github.com/udon-flasher/udon-core/internal/flash"
	"github.com/udon-flasher/udon-core/internal/infrastructure/mqtt"
)

// DefaultQueueSize bounds the MQTT publish queue.
const DefaultQueueSize = 256

// Publisher publishes JSON payloads. *mqtt.Client satisfies it.
type Publisher interface {
	PublishJSON(topic string, v any, retained bool) error
	Topics() mqtt.Topics
}

type outbound struct {
	topic    string
	payload  any
	retained bool
}

// MQTTSink publishes supervisor activity to the broker.
//
// Callbacks only enqueue; a single goroutine publishes in order so a slow
// broker never stalls the flasher output. When the queue is full, log and
// progress messages are dropped while state and run messages wait.
type MQTTSink struct {
	pub    Publisher
	topics mqtt.Topics

	logMu  sync.RWMutex
	logger Logger

	mu      sync.Mutex
	closed  bool
	queue   chan outbound
	done    chan struct{}
	runID   string
	lastPct int
	dropped int
}

// NewMQTTSink creates the sink and starts its publisher goroutine.
// Call Close to drain the queue.
func NewMQTTSink(pub Publisher, queueSize int) *MQTTSink {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	s := &MQTTSink{
		pub:     pub,
		topics:  pub.Topics(),
		logger:  noopLogger{},
		queue:   make(chan outbound, queueSize),
		done:    make(chan struct{}),
		lastPct: -1,
	}
	go s.run()
	return s
}

// SetLogger sets the logger for publish failures.
func (s *MQTTSink) SetLogger(logger Logger) {
	s.logMu.Lock()
	defer s.logMu.Unlock()
	s.logger = logger
}

func (s *MQTTSink) run() {
	defer close(s.done)

	for msg := range s.queue {
		if err := s.pub.PublishJSON(msg.topic, msg.payload, msg.retained); err != nil {
			s.logMu.RLock()
			logger := s.logger
			s.logMu.RUnlock()
			logger.Warn("mqtt publish failed", "topic", msg.topic, "error", err)
		}
	}
}

// enqueue adds msg to the queue. Droppable messages are discarded when
// the queue is full.
func (s *MQTTSink) enqueue(msg outbound, droppable bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	if droppable {
		select {
		case s.queue <- msg:
		default:
			s.dropped++
		}
		return
	}
	s.queue <- msg
}

// Dropped returns how many log and progress messages were discarded.
func (s *MQTTSink) Dropped() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

// Close stops accepting messages and waits until the queue is published.
func (s *MQTTSink) Close() {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.queue)
	}
	s.mu.Unlock()
	<-s.done
}

func (s *MQTTSink) OnLog(text string) {
	s.enqueue(outbound{
		topic:   s.topics.RunLog(),
		payload: LogMessage{RunID: s.currentRun(), Text: text, At: time.Now().UTC()},
	}, true)
}

func (s *MQTTSink) OnProgress(percent int) {
	s.mu.Lock()
	if percent == s.lastPct {
		s.mu.Unlock()
		return
	}
	s.lastPct = percent
	runID := s.runID
	s.mu.Unlock()

	s.enqueue(outbound{
		topic:   s.topics.RunProgress(),
		payload: ProgressMessage{RunID: runID, Percent: percent, At: time.Now().UTC()},
	}, true)
}

func (s *MQTTSink) OnDeviceEvent(ev device.Event) {
	s.enqueue(outbound{
		topic:    s.topics.DeviceState(),
		payload:  DeviceStateMessage{State: ev.State(), Message: ev.Message(), At: ev.At.UTC()},
		retained: true,
	}, false)
}

func (s *MQTTSink) OnRunStarted(run flash.Run) {
	s.mu.Lock()
	s.runID = run.ID
	s.mu.Unlock()

	s.enqueue(outbound{
		topic:   s.topics.RunStarted(),
		payload: RunMessage{Run: run},
	}, false)
}

func (s *MQTTSink) OnRunFinished(run flash.Run, res flash.Result) {
	s.mu.Lock()
	s.runID = ""
	s.lastPct = -1
	s.mu.Unlock()

	s.enqueue(outbound{
		topic:   s.topics.RunFinished(),
		payload: RunMessage{Run: run, Result: &res},
	}, false)
}

func (s *MQTTSink) currentRun() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runID
}
