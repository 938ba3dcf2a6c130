package provider

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound        = errors.New("build not found")
	ErrAuthFailed      = errors.New("authentication failed")
	ErrProviderUnknown = errors.New("unknown CI provider")
)

// TriggerError reports a failed build submission. Trigger is never retried:
// a second attempt would create a second remote build.
type TriggerError struct {
	Provider string
	Err      error
}

func (e *TriggerError) Error() string {
	return fmt.Sprintf("%s: trigger failed: %v", e.Provider, e.Err)
}

func (e *TriggerError) Unwrap() error {
	return e.Err
}

// PollError reports a transient status query failure (network error, bad
// gateway, unparseable body). The watch loop retries these up to its budget.
type PollError struct {
	Provider string
	Err      error
}

func (e *PollError) Error() string {
	return fmt.Sprintf("%s: poll failed: %v", e.Provider, e.Err)
}

func (e *PollError) Unwrap() error {
	return e.Err
}

// IsTransient reports whether err may succeed on a later poll.
// ErrNotFound and auth failures are permanent.
func IsTransient(err error) bool {
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrAuthFailed) {
		return false
	}
	var pollErr *PollError
	return errors.As(err, &pollErr)
}

// UserError wraps errors with user-friendly messages
type UserError struct {
	Message string
	Hint    string
	Err     error
}

func (e *UserError) Error() string {
	msg := e.Message
	if e.Hint != "" {
		msg += "\n\nHint: " + e.Hint
	}
	if e.Err != nil {
		msg += fmt.Sprintf("\n\nDetails: %v", e.Err)
	}
	return msg
}

func (e *UserError) Unwrap() error {
	return e.Err
}

// WrapError converts API errors to user-friendly messages
func WrapError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, ErrAuthFailed) {
		return &UserError{
			Message: "Authentication failed",
			Hint:    "Check that your API token is valid and has the correct permissions.\n  - Codemagic: Set CODEMAGIC_API_TOKEN\n  - GitHub: Set GITHUB_TOKEN",
			Err:     err,
		}
	}

	if errors.Is(err, ErrNotFound) {
		return &UserError{
			Message: "Build not found",
			Hint:    "Check that the build ID is correct and was created with the same credentials.",
			Err:     err,
		}
	}

	if errors.Is(err, ErrProviderUnknown) {
		return &UserError{
			Message: "Unknown CI provider",
			Hint:    "Supported providers:\n  - codemagic\n  - github",
			Err:     err,
		}
	}

	return err
}
