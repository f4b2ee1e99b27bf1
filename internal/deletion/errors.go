package deletion

import (
	"errors"
	"fmt"
	"io/fs"
	"syscall"
)

var (
	errEmptyPath        = errors.New("path must not be empty")
	errWorkerTerminated = errors.New("deletion worker terminated without a result")
	errNotStarted       = errors.New("request not started")
)

// Error is a classified deletion failure. It wraps the underlying cause so
// callers can still use errors.Is against fs.ErrNotExist and friends.
type Error struct {
	Kind Kind
	Path string
	Err  error
}

func (e *Error) Error() string {
	return e.Kind.label() + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// classify maps an error returned by a removal primitive to a Kind.
// Errors that are already classified pass through unchanged.
func classify(path string, err error) *Error {
	var de *Error
	if errors.As(err, &de) {
		return de
	}

	kind := KindOther
	switch {
	case errors.Is(err, fs.ErrNotExist):
		kind = KindNotFound
	case errors.Is(err, fs.ErrPermission):
		kind = KindPermissionDenied
	case errors.Is(err, syscall.EISDIR),
		errors.Is(err, syscall.ENOTDIR):
		kind = KindTypeMismatch
	}
	return &Error{Kind: kind, Path: path, Err: err}
}

// fault builds the ExecutionFault error for a worker that did not return.
// recovered is the value passed to panic, nil after runtime.Goexit.
func fault(path string, recovered interface{}) *Error {
	err := errWorkerTerminated
	if recovered != nil {
		err = fmt.Errorf("%w: panic: %v", errWorkerTerminated, recovered)
	}
	return &Error{Kind: KindExecutionFault, Path: path, Err: err}
}
