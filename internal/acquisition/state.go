package acquisition

import "fmt"

// State is the phase of a tracking session.
type State int

const (
	stateIdle State = iota
	StateRunning
	StateSelectROI
	StateResetROI
	StateStopped
)

func (s State) String() string {
	switch s {
	case stateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateSelectROI:
		return "select_roi"
	case StateResetROI:
		return "reset_roi"
	case StateStopped:
		return "stopped"
	}
	return fmt.Sprintf("State(%d)", int(s))
}
