package session

import (
	"errors"
	"fmt"
)

var (
	ErrLaunchFailure   = errors.New("browser launch failed")
	ErrCaptureFailure  = errors.New("frame capture failed")
	ErrInputDispatch   = errors.New("input dispatch failed")
	ErrSessionExists   = errors.New("session already exists for connection")
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionStopped  = errors.New("session stopped")
	ErrBusy            = errors.New("session busy")
	ErrNotAttached     = errors.New("connection not attached")
	ErrUnknownInput    = errors.New("unknown input event type")
)

// Error carries the error kind and the session it belongs to.
type Error struct {
	Kind      error
	SessionID string
	Err       error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("session %s: %v", e.SessionID, e.Kind)
	}
	return fmt.Sprintf("session %s: %v: %v", e.SessionID, e.Kind, e.Err)
}

// Is matches the error kind.
func (e *Error) Is(target error) bool {
	return target == e.Kind
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind error, sessionID string, err error) *Error {
	return &Error{Kind: kind, SessionID: sessionID, Err: err}
}
