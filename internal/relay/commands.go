package relay

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/udon-flasher/udon-core/internal/flash"
	"github.com/udon-flasher/udon-core/internal/infrastructure/mqtt"
)

// ErrUnknownCommand is returned for a command topic with no operation.
var ErrUnknownCommand = errors.New("relay: unknown command")

// Controller starts supervisor operations. *flash.Supervisor satisfies it.
type Controller interface {
	StartFlash(req flash.Request) (flash.Run, error)
	RebootDevice() (flash.Run, error)
	RebootToDownloadMode() (flash.Run, error)
}

// Broker is the MQTT surface the listener needs. *mqtt.Client satisfies it.
type Broker interface {
	Publisher
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
	QoS() byte
}

// CommandListener executes commands received on the command topics and
// answers rejections on the rejected topic.
type CommandListener struct {
	broker Broker
	ctrl   Controller
	topics mqtt.Topics
	logger Logger

	// Replies are published off the paho callback goroutine, which must
	// not wait on its own publish tokens.
	replies sync.WaitGroup
}

// NewCommandListener creates a listener. Call Start to subscribe.
func NewCommandListener(broker Broker, ctrl Controller) *CommandListener {
	return &CommandListener{
		broker: broker,
		ctrl:   ctrl,
		topics: broker.Topics(),
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for the listener.
func (l *CommandListener) SetLogger(logger Logger) {
	l.logger = logger
}

// Start subscribes to every command topic.
func (l *CommandListener) Start() error {
	if err := l.broker.Subscribe(l.topics.AllCommands(), l.broker.QoS(), l.handle); err != nil {
		return fmt.Errorf("subscribing to commands: %w", err)
	}
	l.logger.Info("listening for mqtt commands", "topic", l.topics.AllCommands())
	return nil
}

// Stop unsubscribes and waits for pending replies.
func (l *CommandListener) Stop() error {
	err := l.broker.Unsubscribe(l.topics.AllCommands())
	l.replies.Wait()
	if err != nil && !errors.Is(err, mqtt.ErrNotConnected) {
		return fmt.Errorf("unsubscribing from commands: %w", err)
	}
	return nil
}

// handle dispatches one command message.
func (l *CommandListener) handle(topic string, payload []byte) error {
	command := topic[strings.LastIndexByte(topic, '/')+1:]
	if topic == l.topics.CommandRejected() {
		// Our own replies match the wildcard.
		return nil
	}

	run, err := l.dispatch(command, payload)
	if err != nil {
		l.logger.Warn("mqtt command rejected", "command", command, "error", err)
		l.reply(RejectedMessage{Command: command, Error: err.Error(), At: time.Now().UTC()})
		return nil
	}

	l.logger.Info("mqtt command accepted", "command", command, "run_id", run.ID)
	return nil
}

func (l *CommandListener) dispatch(command string, payload []byte) (flash.Run, error) {
	switch flash.Operation(command) {
	case flash.OpFlash:
		var cmd FlashCommand
		if err := json.Unmarshal(payload, &cmd); err != nil {
			return flash.Run{}, fmt.Errorf("invalid flash payload: %w", err)
		}
		return l.ctrl.StartFlash(cmd.Request())
	case flash.OpReboot:
		return l.ctrl.RebootDevice()
	case flash.OpRedownload:
		return l.ctrl.RebootToDownloadMode()
	default:
		return flash.Run{}, fmt.Errorf("%w: %q", ErrUnknownCommand, command)
	}
}

func (l *CommandListener) reply(msg RejectedMessage) {
	l.replies.Add(1)
	go func() {
		defer l.replies.Done()
		if err := l.broker.PublishJSON(l.topics.CommandRejected(), msg, false); err != nil {
			l.logger.Warn("publishing command rejection failed", "error", err)
		}
	}()
}
