package svc

import (
	"errors"
	"fmt"
)

// ErrIllegalState is returned when a lifecycle context is misused: a
// duplicate Complete/Failed call, or Failed called before Asynchronous.
var ErrIllegalState = errors.New("svc: illegal lifecycle context state")

// StartException carries the cause of a failed start transition. It is
// retained on the controller in START_FAILED and surfaced to listeners.
type StartException struct {
	Cause error
}

func (e *StartException) Error() string {
	return fmt.Sprintf("svc: start failed: %v", e.Cause)
}

func (e *StartException) Unwrap() error {
	return e.Cause
}
