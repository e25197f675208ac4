package device

import "time"

// State is the last known presence of a device.
type State string

const (
	StateAbsent  State = "absent"
	StatePresent State = "present"
)

// EventKind identifies a presence transition.
type EventKind string

const (
	EventAttached EventKind = "attached"
	EventDetached EventKind = "detached"
)

// Event is emitted once per presence transition.
type Event struct {
	Kind EventKind `json:"kind"`
	At   time.Time `json:"at"`
}

// State returns the presence state the event transitions into.
func (e Event) State() State {
	if e.Kind == EventAttached {
		return StatePresent
	}
	return StateAbsent
}

// Message returns the short user-facing announcement for the event.
func (e Event) Message() string {
	if e.Kind == EventAttached {
		return "Added!"
	}
	return "Removed!"
}
