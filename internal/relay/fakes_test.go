package relay

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/udon-flasher/udon-core/internal/flash"
	"github.com/udon-flasher/udon-core/internal/infrastructure/mqtt"
)

type published struct {
	topic    string
	payload  []byte
	retained bool
}

// fakeBroker records publishes and hands out the subscribed handler.
type fakeBroker struct {
	mu        sync.Mutex
	msgs      []published
	handler   mqtt.MessageHandler
	subTopic  string
	unsubbed  bool
	failWith  error
	block     chan struct{}
	published chan struct{}
}

func newFakeBroker() *fakeBroker {
	return &fakeBroker{published: make(chan struct{}, 1024)}
}

func (b *fakeBroker) Topics() mqtt.Topics { return mqtt.Topics{Prefix: "udon"} }
func (b *fakeBroker) QoS() byte           { return 1 }

func (b *fakeBroker) PublishJSON(topic string, v any, retained bool) error {
	if b.block != nil {
		<-b.block
	}
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	b.mu.Lock()
	b.msgs = append(b.msgs, published{topic: topic, payload: payload, retained: retained})
	fail := b.failWith
	b.mu.Unlock()
	b.published <- struct{}{}
	return fail
}

func (b *fakeBroker) Subscribe(topic string, _ byte, handler mqtt.MessageHandler) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subTopic = topic
	b.handler = handler
	return nil
}

func (b *fakeBroker) Unsubscribe(string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.unsubbed = true
	return nil
}

func (b *fakeBroker) messages() []published {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]published(nil), b.msgs...)
}

func (b *fakeBroker) topics() []string {
	var out []string
	for _, m := range b.messages() {
		out = append(out, m.topic)
	}
	return out
}

// fakeController records calls and returns a fixed error.
type fakeController struct {
	mu    sync.Mutex
	calls []string
	req   flash.Request
	err   error
}

func (c *fakeController) record(name string) (flash.Run, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, name)
	if c.err != nil {
		return flash.Run{}, c.err
	}
	return flash.Run{ID: "run-" + name, Operation: flash.Operation(name), StartedAt: time.Now()}, nil
}

func (c *fakeController) StartFlash(req flash.Request) (flash.Run, error) {
	c.mu.Lock()
	c.req = req
	c.mu.Unlock()
	return c.record("flash")
}

func (c *fakeController) RebootDevice() (flash.Run, error) { return c.record("reboot") }

func (c *fakeController) RebootToDownloadMode() (flash.Run, error) {
	return c.record("redownload")
}

func (c *fakeController) snapshot() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.calls...)
}

// recordingLogger keeps messages per level.
type recordingLogger struct {
	mu    sync.Mutex
	lines []string
}

func (l *recordingLogger) add(level, msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lines = append(l.lines, level+": "+msg)
}

func (l *recordingLogger) Debug(msg string, _ ...any) { l.add("debug", msg) }
func (l *recordingLogger) Info(msg string, _ ...any)  { l.add("info", msg) }
func (l *recordingLogger) Warn(msg string, _ ...any)  { l.add("warn", msg) }
func (l *recordingLogger) Error(msg string, _ ...any) { l.add("error", msg) }

func (l *recordingLogger) get() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.lines...)
}
