package debrid

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrCancelled marks an operation aborted by a newer run or the user.
	ErrCancelled = errors.New("operation cancelled")
	// ErrInvalidInput marks malformed input detected before any remote call.
	ErrInvalidInput = errors.New("invalid input")
	// ErrNotFound marks a missing local association (availability record, batch).
	ErrNotFound = errors.New("not found")

	// ErrNotAuthenticated is returned when no credentials are available.
	ErrNotAuthenticated = errors.New("real-debrid credentials missing")
	// ErrAuthorizationDenied is returned when the user rejects the device code.
	ErrAuthorizationDenied = errors.New("device authorization denied")
	// ErrAuthorizationExpired is returned when the device code expires before approval.
	ErrAuthorizationExpired = errors.New("device authorization expired")
)

// RemoteError is any failure surfaced by the debrid API or its transport.
type RemoteError struct {
	Op         string
	StatusCode int
	Code       int
	Message    string
	Err        error
}

func (e *RemoteError) Error() string {
	msg := e.Op
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (status %d)", e.StatusCode)
	}
	if e.Message != "" {
		msg += ": " + e.Message
		if e.Code != 0 {
			msg += fmt.Sprintf(" [code %d]", e.Code)
		}
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *RemoteError) Unwrap() error {
	return e.Err
}

// IsCancelled reports whether err represents a cancellation.
func IsCancelled(err error) bool {
	return errors.Is(err, ErrCancelled) || errors.Is(err, context.Canceled)
}

// Classify converts err into the error taxonomy at a component boundary.
// Cancellations become ErrCancelled, taxonomy errors pass through and anything
// else is wrapped in a RemoteError carrying op.
func Classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrCancelled) {
		return err
	}
	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("%s: %w", op, ErrCancelled)
	}
	if errors.Is(err, ErrInvalidInput) || errors.Is(err, ErrNotFound) {
		return err
	}
	var remote *RemoteError
	if errors.As(err, &remote) {
		return err
	}
	return &RemoteError{Op: op, Err: err}
}

// Kind names the taxonomy bucket of err, used for metric labels and API responses.
func Kind(err error) string {
	switch {
	case err == nil:
		return "ok"
	case IsCancelled(err):
		return "cancelled"
	case errors.Is(err, ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	default:
		return "remote"
	}
}
