package core

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind classifies the reason an operation failed, per the storage
// engine's error-handling design. A FUSE or 9P dispatch shim maps each
// Kind to the errno it would report to the kernel.
type Kind int

const (
	// Other is the zero value; used only for errors not otherwise kinded.
	Other Kind = iota
	// NotFound means a path or table entry is missing.
	NotFound
	// AlreadyExists means a create collided with an existing entry.
	AlreadyExists
	// InvalidName means a filename failed validation.
	InvalidName
	// InvalidFormat means an on-disk structure (ls line, entry mode,
	// feature flag) could not be parsed or was not understood.
	InvalidFormat
	// NotSupported means the operation is not permitted, e.g. renaming
	// a directory or mounting without a FUSE binding.
	NotSupported
	// StoreError means the underlying object store failed.
	StoreError
	// IsDirectory means an operation expecting a file found a directory.
	IsDirectory
	// NotDirectory means an operation expecting a directory found a file.
	NotDirectory
)

func (k Kind) String() string {
	switch k {
	case NotFound:
		return "not found"
	case AlreadyExists:
		return "already exists"
	case InvalidName:
		return "invalid name"
	case InvalidFormat:
		return "invalid format"
	case NotSupported:
		return "not supported"
	case StoreError:
		return "store error"
	case IsDirectory:
		return "is a directory"
	case NotDirectory:
		return "not a directory"
	default:
		return "error"
	}
}

// Error is the concrete error type returned across package boundaries.
// Op names the failing operation ("namespace.Create", "inode.Write", ...)
// so that logs and fsck reports can pin down where a failure originated
// without re-parsing the wrapped message.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// Wrap builds a *Error of the given kind, preserving the original cause
// via github.com/pkg/errors.WithStack: printing the wrapped cause (Err)
// with %+v yields a stack trace from the point of failure. The *Error's
// own Error() string does not include that trace.
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: errors.WithStack(err)}
}

// New builds a *Error with no wrapped cause, for validation-style
// failures that originate here rather than bubbling up from a
// collaborator.
func New(kind Kind, op, msg string) error {
	return &Error{Kind: kind, Op: op, Err: errors.New(msg)}
}

// Is reports whether err (or anything in its chain) is a *Error of kind.
func Is(err error, kind Kind) bool {
	var e *Error
	for err != nil {
		if ce, ok := err.(*Error); ok {
			e = ce
			break
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	return e != nil && e.Kind == kind
}
