// Package errs defines the error taxonomy shared by the media pipeline:
// validation failures raised before any tool runs, and backend failures
// reported by the external media tool.
package errs

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrValidation is wrapped by every error caused by bad input: a malformed
	// action list, an unreadable source, an existing destination.
	ErrValidation = errors.New("validation error")
	// ErrBackend is matched by every *BackendError.
	ErrBackend = errors.New("backend error")
)

// Validation returns an error wrapping ErrValidation with a formatted message.
func Validation(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// IsValidation reports whether err wraps ErrValidation.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsBackend reports whether err is, or wraps, a *BackendError.
func IsBackend(err error) bool {
	return errors.Is(err, ErrBackend)
}

// BackendError is returned when the external tool exits with a non-zero
// status. Stderr holds the tool's captured error output verbatim.
type BackendError struct {
	Command  string
	ExitCode int
	Stderr   string
	Err      error
}

func (e *BackendError) Error() string {
	msg := strings.TrimSpace(e.Stderr)
	if msg == "" {
		msg = "no error output"
	}
	return fmt.Sprintf("backend error: exit status %d: %s", e.ExitCode, msg)
}

func (e *BackendError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is(err, ErrBackend) match any BackendError.
func (e *BackendError) Is(target error) bool {
	return target == ErrBackend
}
