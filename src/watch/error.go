package watch

import (
	"errors"
	"fmt"

	"buildwatch-agent/src/provider"
)

// Reason classifies why a watch ended without a result.
type Reason string

const (
	ReasonTimeout          Reason = "timeout"
	ReasonCancelled        Reason = "cancelled"
	ReasonRetriesExhausted Reason = "retries exhausted"
	ReasonNotFound         Reason = "not found"
	ReasonPollFailed       Reason = "poll failed"
)

// Sentinels for errors.Is checks against *Error values.
var (
	ErrTimeout          = errors.New("watch timeout")
	ErrCancelled        = errors.New("watch cancelled")
	ErrRetriesExhausted = errors.New("poll retry budget exhausted")
)

// Error is a failed watch. It carries the handle, the last status observed
// before the failure, and the number of poll attempts made, so the caller
// can follow up on the remote build manually.
type Error struct {
	Reason     Reason
	Handle     *provider.JobHandle
	LastStatus provider.JobStatus
	Attempts   int
	Err        error
}

func newError(reason Reason, handle *provider.JobHandle, last provider.JobStatus, attempts int, err error) *Error {
	return &Error{
		Reason:     reason,
		Handle:     handle,
		LastStatus: last,
		Attempts:   attempts,
		Err:        err,
	}
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("watch %s/%s: %s after %d polls", e.Handle.Provider, e.Handle.ID, e.Reason, e.Attempts)
	if e.LastStatus != "" {
		msg += fmt.Sprintf(" (last status: %s)", e.LastStatus)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() []error {
	var errs []error
	switch e.Reason {
	case ReasonTimeout:
		errs = append(errs, ErrTimeout)
	case ReasonCancelled:
		errs = append(errs, ErrCancelled)
	case ReasonRetriesExhausted:
		errs = append(errs, ErrRetriesExhausted)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}
