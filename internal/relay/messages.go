package relay

import (
	"time"

	"github.com/udon-flasher/udon-core/internal/device"
	"github.com/udon-flasher/udon-core/internal/flash"
)

// DeviceStateMessage is published retained on the device state topic.
type DeviceStateMessage struct {
	State   device.State `json:"state"`
	Message string       `json:"message"`
	At      time.Time    `json:"at"`
}

// RunMessage is published when a run starts or finishes.
type RunMessage struct {
	Run    flash.Run     `json:"run"`
	Result *flash.Result `json:"result,omitempty"`
}

// LogMessage carries one line of flasher output. RunID is empty for
// messages outside a run, such as rejections.
type LogMessage struct {
	RunID string    `json:"run_id,omitempty"`
	Text  string    `json:"text"`
	At    time.Time `json:"at"`
}

// ProgressMessage carries the current percentage of a run.
type ProgressMessage struct {
	RunID   string    `json:"run_id,omitempty"`
	Percent int       `json:"percent"`
	At      time.Time `json:"at"`
}

// FlashCommand is the payload of the flash command topic.
type FlashCommand struct {
	AP       string `json:"ap"`
	BL       string `json:"bl"`
	CP       string `json:"cp"`
	CSC      string `json:"csc"`
	NoReboot bool   `json:"no_reboot"`
}

// Request converts the command into a flash request.
func (c FlashCommand) Request() flash.Request {
	return flash.Request{
		AP:       c.AP,
		BL:       c.BL,
		CP:       c.CP,
		CSC:      c.CSC,
		NoReboot: c.NoReboot,
	}
}

// RejectedMessage answers a command the supervisor refused.
type RejectedMessage struct {
	Command string    `json:"command"`
	Error   string    `json:"error"`
	At      time.Time `json:"at"`
}
