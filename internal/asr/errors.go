package asr

import (
	"errors"
	"fmt"
)

// ErrNotInitialized is returned by a Recognizer that failed to load or was
// closed.
var ErrNotInitialized = errors.New("asr not initialized")

// StopReason says why a session ended.
type StopReason string

const (
	StopEOT       StopReason = "eot"
	StopCapacity  StopReason = "capacity"
	StopCancelled StopReason = "cancelled"
	StopError     StopReason = "error"
)

// SessionError aborts a recognition session. Step is the decode step that
// failed, counting from 1; 0 is the encoding pass.
type SessionError struct {
	SessionID string
	Step      int
	Err       error
}

func (e *SessionError) Error() string {
	return fmt.Sprintf("asr session %s step %d: %v", e.SessionID, e.Step, e.Err)
}

func (e *SessionError) Unwrap() error { return e.Err }
