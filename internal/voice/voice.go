// Package voice runs real-time voice sessions against a Gemini Live endpoint.
//
// A [Controller] owns at most one session at a time and moves it through
// Idle, Connecting, Active and Closing. Every lifecycle field is owned by the
// controller's single event loop ([Controller.Run]); device acquisition,
// dialing, capture and inbound traffic run on their own goroutines and
// report back to the loop as events tagged with the generation of the
// session that produced them. Events from a session that has already been
// torn down are discarded and any resources they carry are released.
//
// The entry point for the rest of the application is [Controller.Toggle]
// plus an observer registered with [WithObserver].
package voice

import (
	"errors"

	"github.com/alakbarr/Interview-Matrix/internal/capture"
	"github.com/alakbarr/Interview-Matrix/internal/playback"
	"github.com/alakbarr/Interview-Matrix/internal/transport"
)

// Errors reported through [Status.Err]. Match with [errors.Is].
var (
	// ErrPermissionDenied means the input device could not be acquired. The
	// attempt is abandoned without retry.
	ErrPermissionDenied = capture.ErrPermissionDenied

	// ErrOutputUnavailable means the output device could not be opened.
	ErrOutputUnavailable = playback.ErrOutputUnavailable

	// ErrTransport means the channel failed to open or closed unexpectedly.
	ErrTransport = errors.New("voice: transport failure")

	// ErrProtocolDecode marks a single inbound message or audio part that was
	// discarded. It never ends a session.
	ErrProtocolDecode = transport.ErrProtocolDecode
)

// State is the lifecycle state of the controller's session.
type State int32

const (
	StateIdle State = iota
	StateConnecting
	StateActive
	StateClosing
)

// String returns the lower-case state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateActive:
		return "active"
	case StateClosing:
		return "closing"
	default:
		return "unknown"
	}
}

// StatusKind is what the user is told about the session.
type StatusKind int

const (
	StatusIdle StatusKind = iota
	StatusConnecting
	StatusListening
	StatusError
)

// String returns the status name shown to users.
func (k StatusKind) String() string {
	switch k {
	case StatusIdle:
		return "idle"
	case StatusConnecting:
		return "connecting"
	case StatusListening:
		return "listening"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// Status is delivered to the observer on every user-visible change. A failed
// attempt produces exactly one StatusError; the controller is already back in
// [StateIdle] when it is delivered, and no separate StatusIdle follows.
type Status struct {
	Kind      StatusKind
	Err       error
	SessionID string
}

// Message renders s for display.
func (s Status) Message() string {
	if s.Kind == StatusError && s.Err != nil {
		return "error: " + s.Err.Error()
	}
	return s.Kind.String()
}
