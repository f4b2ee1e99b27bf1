package exitcodes

import (
	"errors"

	"safe-delete/internal/deletion"
)

// Exit codes for safe-delete.
// These codes form the operational contract with scripts and operators.
const (
	Success         = 0 // Successful execution
	InvalidConfig   = 2 // Configuration file invalid or missing
	SafetyViolation = 3 // Safety validator refused the target
	RuntimeError    = 4 // Runtime error during execution
	DeletionFailed  = 5 // The deletion itself failed
)

// Error carries the exit code a command should terminate with.
type Error struct {
	Code int
	Err  error
}

func (e *Error) Error() string {
	return e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Wrap attaches code to err. A nil err stays nil.
func Wrap(code int, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Err: err}
}

// Code returns the exit code for err: Success for nil, the attached code when
// err carries one and RuntimeError otherwise.
func Code(err error) int {
	if err == nil {
		return Success
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return RuntimeError
}

// ForOutcome maps a deletion outcome to an exit code.
func ForOutcome(out deletion.Outcome) int {
	switch out.Kind {
	case deletion.KindNone:
		return Success
	case deletion.KindRefused:
		return SafetyViolation
	default:
		return DeletionFailed
	}
}
