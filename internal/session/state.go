package session

import (
	"errors"
	"fmt"
	"time"
)

// State is the lifecycle phase of the controller
type State int32

const (
	Idle State = iota
	CapturingBackground
	Running
	Stopping
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case CapturingBackground:
		return "capturing_background"
	case Running:
		return "running"
	case Stopping:
		return "stopping"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

var (
	// ErrBusy is returned by Start while a session is active.
	ErrBusy = errors.New("session already active")
	// ErrStopTimeout is returned by Stop when the worker has not finished
	// within the stop timeout. The worker keeps its resources until it exits.
	ErrStopTimeout = errors.New("worker did not stop in time")
)

// Event is published on every state change and status update.
// Message is human readable and advisory only.
type Event struct {
	State   State
	Message string
	Err     error
	Time    time.Time
}
