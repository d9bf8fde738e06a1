package domain

import (
	"errors"
	"fmt"
)

var (
	ErrConnectionFailed = errors.New("connection failed")
	ErrIdentityNotFound = errors.New("bot identity not found")
	ErrChannelNotFound  = errors.New("bot private channel not found")
)

// FatalStartupError aborts the ingestion loop before it reaches Running.
type FatalStartupError struct {
	Stage string // "connect" or "resolve"
	Err   error
}

func (e *FatalStartupError) Error() string {
	return fmt.Sprintf("fatal startup error during %s: %v", e.Stage, e.Err)
}

func (e *FatalStartupError) Unwrap() error { return e.Err }

// TransportError is any steady-state read or write failure against the platform.
type TransportError struct {
	Op  string // e.g. "chat.postMessage", "poll"
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// HandlerError is a contained handler failure. Trace holds the diagnostic
// detail as captured; formatting for humans is left to the reply path.
type HandlerError struct {
	MessageID string
	Kind      string // Go type of the error, or "panic"
	Message   string
	Trace     string
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("handler failed on %s: %s: %s", e.MessageID, e.Kind, e.Message)
}
