// Package objerrors provides the structured error kinds used across s3fs,
// mirroring how the upstream object-store backend classifies failures so the
// FUSE dispatcher can translate them into a small, fixed set of errno values.
package objerrors

import (
	"errors"
	"fmt"
	"syscall"
)

// Kind classifies an error for translation into a POSIX errno.
type Kind string

const (
	// NotFound means the object-store client returned a 404.
	NotFound Kind = "not_found"
	// Transport means the object-store client raised or exhausted its retry budget.
	Transport Kind = "transport"
	// LocalIO means a cache-store disk operation failed.
	LocalIO Kind = "local_io"
	// BadRequest means the caller supplied an invalid argument (e.g. an empty key).
	BadRequest Kind = "bad_request"
	// Unsupported means the operation has no POSIX-compatible implementation here.
	Unsupported Kind = "unsupported"
	// Internal means a bug or invariant violation, not a user-facing condition.
	Internal Kind = "internal"
)

// Error is the structured error type returned by every s3fs component.
type Error struct {
	Kind  Kind
	Op    string
	Path  string
	Cause error
}

func (e *Error) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s %s: %s: %v", e.Op, e.Path, e.Kind, e.Cause)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Cause)
}

func (e *Error) Unwrap() error { return e.Cause }

// New constructs an Error, allowing Cause to be nil.
func New(kind Kind, op, path string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Path: path, Cause: cause}
}

// KindOf extracts the Kind carried by err, defaulting to Internal.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

// Errno converts an error produced by any s3fs component into the fixed set
// of errno values the kernel FUSE bridge accepts. Errors not wrapped in an
// *Error are reported as EIO.
func Errno(err error) syscall.Errno {
	if err == nil {
		return 0
	}
	switch KindOf(err) {
	case NotFound:
		return syscall.ENOENT
	case BadRequest:
		return syscall.EINVAL
	case Unsupported:
		return syscall.EOPNOTSUPP
	case Transport, LocalIO, Internal:
		return syscall.EIO
	default:
		return syscall.EIO
	}
}
