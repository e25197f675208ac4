package mqtt

// DefaultTopicPrefix is the root of every udon topic.
const DefaultTopicPrefix = "udon"

// Topics builds udon MQTT topics under a configurable prefix. The zero
// value uses DefaultTopicPrefix.
//
//	topics := mqtt.Topics{Prefix: "bench-3/udon"}
//	topics.DeviceState() // "bench-3/udon/device/state"
type Topics struct {
	Prefix string
}

func (t Topics) join(suffix string) string {
	prefix := t.Prefix
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	return prefix + "/" + suffix
}

// SystemStatus carries retained online/offline status and the LWT.
func (t Topics) SystemStatus() string { return t.join("system/status") }

// DeviceState carries the retained device presence.
func (t Topics) DeviceState() string { return t.join("device/state") }

// RunStarted is published when a run begins.
func (t Topics) RunStarted() string { return t.join("run/started") }

// RunFinished is published with the run result.
func (t Topics) RunFinished() string { return t.join("run/finished") }

// RunLog carries one flasher log line.
func (t Topics) RunLog() string { return t.join("run/log") }

// RunProgress carries the current percentage.
func (t Topics) RunProgress() string { return t.join("run/progress") }

// Command returns the topic that requests an operation, e.g.
// udon/command/flash.
func (t Topics) Command(operation string) string { return t.join("command/" + operation) }

// AllCommands matches every command topic.
func (t Topics) AllCommands() string { return t.join("command/+") }

// CommandRejected reports commands the supervisor refused.
func (t Topics) CommandRejected() string { return t.join("command/rejected") }

// All matches every udon topic.
func (t Topics) All() string { return t.join("#") }
