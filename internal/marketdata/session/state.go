package session

import (
	"errors"
	"fmt"
)

// State is the connection lifecycle: Idle -> Starting -> Running -> Stopping -> Idle.
// Starting falls back to Idle when the connect fails.
type State int32

const (
	StateIdle State = iota
	StateStarting
	StateRunning
	StateStopping
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateStarting:
		return "Starting"
	case StateRunning:
		return "Running"
	case StateStopping:
		return "Stopping"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// ErrStopped is returned by Start when Stop won the race against the connect.
var ErrStopped = errors.New("session: stopped while starting")

// ConnectionError means the session could not be established. The session is
// back in Idle when Start returns it.
type ConnectionError struct {
	Op  string // dial | subscribe
	URL string
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("session: %s %s: %v", e.Op, e.URL, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }
