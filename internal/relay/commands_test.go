package relay

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/udon-flasher/udon-core/internal/flash"
)

func startListener(t *testing.T, ctrl Controller) (*fakeBroker, *CommandListener) {
	t.Helper()
	broker := newFakeBroker()
	l := NewCommandListener(broker, ctrl)
	if err := l.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if broker.subTopic != "udon/command/+" {
		t.Fatalf("subscribed to %q, want udon/command/+", broker.subTopic)
	}
	return broker, l
}

func TestCommandListener_Dispatch(t *testing.T) {
	tests := []struct {
		topic   string
		payload string
		want    string
	}{
		{"udon/command/flash", `{"ap":"/fw/AP.tar.md5","no_reboot":true}`, "flash"},
		{"udon/command/reboot", ``, "reboot"},
		{"udon/command/redownload", `{}`, "redownload"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			ctrl := &fakeController{}
			broker, l := startListener(t, ctrl)

			if err := broker.handler(tt.topic, []byte(tt.payload)); err != nil {
				t.Fatalf("handler error = %v", err)
			}
			if err := l.Stop(); err != nil {
				t.Fatalf("Stop() error = %v", err)
			}

			if got := ctrl.snapshot(); len(got) != 1 || got[0] != tt.want {
				t.Errorf("calls = %v, want [%s]", got, tt.want)
			}
			if len(broker.messages()) != 0 {
				t.Errorf("unexpected replies: %v", broker.topics())
			}
			if !broker.unsubbed {
				t.Error("Stop() did not unsubscribe")
			}
		})
	}
}

func TestCommandListener_FlashRequest(t *testing.T) {
	ctrl := &fakeController{}
	broker, l := startListener(t, ctrl)

	payload := `{"ap":"AP.tar.md5","bl":"BL.tar.md5","cp":"CP.tar.md5","csc":"CSC.tar.md5","no_reboot":true}`
	if err := broker.handler("udon/command/flash", []byte(payload)); err != nil {
		t.Fatalf("handler error = %v", err)
	}
	l.Stop() //nolint:errcheck // Test cleanup

	want := flash.Request{AP: "AP.tar.md5", BL: "BL.tar.md5", CP: "CP.tar.md5", CSC: "CSC.tar.md5", NoReboot: true}
	if ctrl.req != want {
		t.Errorf("request = %+v, want %+v", ctrl.req, want)
	}
}

func TestCommandListener_Rejections(t *testing.T) {
	tests := []struct {
		name      string
		ctrlErr   error
		topic     string
		payload   string
		wantError string
	}{
		{"already running", flash.ErrAlreadyRunning, "udon/command/reboot", "", "A command is already running."},
		{"validation", flash.ErrValidation, "udon/command/flash", `{}`, "Error: Select at least one file."},
		{"bad json", nil, "udon/command/flash", `{`, ""},
		{"unknown", nil, "udon/command/format", `{}`, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := &fakeController{err: tt.ctrlErr}
			broker, l := startListener(t, ctrl)

			if err := broker.handler(tt.topic, []byte(tt.payload)); err != nil {
				t.Fatalf("handler error = %v", err)
			}
			l.Stop() //nolint:errcheck // Test cleanup

			msgs := broker.messages()
			if len(msgs) != 1 || msgs[0].topic != "udon/command/rejected" {
				t.Fatalf("replies = %v, want one rejection", broker.topics())
			}
			var rej RejectedMessage
			if err := json.Unmarshal(msgs[0].payload, &rej); err != nil {
				t.Fatalf("Unmarshal() error = %v", err)
			}
			if rej.Error == "" {
				t.Error("rejection has empty error")
			}
			if tt.wantError != "" && rej.Error != tt.wantError {
				t.Errorf("Error = %q, want %q", rej.Error, tt.wantError)
			}
		})
	}
}

func TestCommandListener_IgnoresOwnReplies(t *testing.T) {
	ctrl := &fakeController{}
	broker, l := startListener(t, ctrl)

	if err := broker.handler("udon/command/rejected", []byte(`{"command":"x"}`)); err != nil {
		t.Fatalf("handler error = %v", err)
	}
	l.Stop() //nolint:errcheck // Test cleanup

	if len(ctrl.snapshot()) != 0 || len(broker.messages()) != 0 {
		t.Error("rejection message was treated as a command")
	}
}

func TestDispatch_UnknownCommand(t *testing.T) {
	l := NewCommandListener(newFakeBroker(), &fakeController{})

	if _, err := l.dispatch("format", nil); !errors.Is(err, ErrUnknownCommand) {
		t.Errorf("dispatch() error = %v, want %v", err, ErrUnknownCommand)
	}
}

func TestRejectedMessage_Timestamp(t *testing.T) {
	ctrl := &fakeController{err: flash.ErrShuttingDown}
	broker, l := startListener(t, ctrl)

	before := time.Now().UTC().Add(-time.Second)
	broker.handler("udon/command/reboot", nil) //nolint:errcheck // Always nil
	l.Stop()                                   //nolint:errcheck // Test cleanup

	var rej RejectedMessage
	if err := json.Unmarshal(broker.messages()[0].payload, &rej); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if rej.At.Before(before) || rej.Command != "reboot" {
		t.Errorf("rejection = %+v", rej)
	}
}
