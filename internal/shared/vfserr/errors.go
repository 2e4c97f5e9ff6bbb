// Package vfserr defines the closed error taxonomy for the VFS API and the
// single translation point from host filesystem errors into it.
package vfserr

import (
	"errors"
	"io/fs"
	"net/http"
	"os"
	"syscall"
)

// Kind classifies a request failure.
type Kind int

const (
	// KindInternal is the catch-all for unexpected failures.
	KindInternal Kind = iota
	// KindValidation covers malformed input (missing fields, bad kind).
	KindValidation
	// KindSecurity covers sandbox escapes. Always fatal to the request.
	KindSecurity
	// KindAuth covers missing, invalid, or expired tokens.
	KindAuth
	// KindNotFound covers paths and records that do not exist.
	KindNotFound
	// KindAlreadyExists covers name collisions.
	KindAlreadyExists
	// KindNotEmpty covers non-recursive deletion of populated directories.
	KindNotEmpty
	// KindIsDirectory covers file operations aimed at a directory.
	KindIsDirectory
)

// Error carries a kind plus a stable client-facing message.
type Error struct {
	Kind    Kind
	Message string
	cause   error
}

func (e *Error) Error() string { return e.Message }

// Unwrap exposes the underlying cause for errors.Is chains.
func (e *Error) Unwrap() error { return e.cause }

// New creates an Error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap creates an Error of the given kind retaining the cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, cause: cause}
}

// Validation creates a validation error.
func Validation(message string) *Error { return New(KindValidation, message) }

// Security creates a sandbox-escape error.
func Security(message string) *Error { return New(KindSecurity, message) }

// Auth is the uniform authentication failure. A single message for every
// auth failure mode prevents user enumeration.
var Auth = New(KindAuth, "invalid or expired credentials")

// NotFound creates a not-found error.
func NotFound(message string) *Error { return New(KindNotFound, message) }

// AlreadyExists creates a conflict error.
func AlreadyExists(message string) *Error { return New(KindAlreadyExists, message) }

// NotEmpty creates a non-empty-directory error.
func NotEmpty(message string) *Error { return New(KindNotEmpty, message) }

// IsDirectory creates a directory-where-file-expected error.
func IsDirectory(message string) *Error { return New(KindIsDirectory, message) }

// Internal wraps an unexpected failure. The cause stays server-side.
func Internal(cause error) *Error {
	return Wrap(KindInternal, "internal server error", cause)
}

// KindOf extracts the Kind from any error. Non-taxonomy errors map to
// KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// FromOS translates a host filesystem error into the taxonomy. This is the
// only place os error codes are interpreted; callers supply the message used
// for the common cases so responses stay stable per operation.
func FromOS(err error, notFoundMsg string) error {
	switch {
	case err == nil:
		return nil
	case os.IsNotExist(err):
		return Wrap(KindNotFound, notFoundMsg, err)
	case os.IsExist(err):
		return Wrap(KindAlreadyExists, "item already exists", err)
	case errors.Is(err, syscall.ENOTEMPTY):
		return Wrap(KindNotEmpty, "directory is not empty", err)
	case errors.Is(err, syscall.EISDIR):
		return Wrap(KindIsDirectory, "path is a directory", err)
	case errors.Is(err, syscall.ENOTDIR):
		return Wrap(KindNotFound, notFoundMsg, err)
	case errors.Is(err, fs.ErrPermission):
		return Wrap(KindSecurity, "access denied", err)
	default:
		return Internal(err)
	}
}

// HTTPStatus maps a Kind to the wire status code.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindValidation:
		return http.StatusBadRequest
	case KindAuth:
		return http.StatusForbidden
	case KindSecurity:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindAlreadyExists:
		return http.StatusConflict
	case KindNotEmpty:
		return http.StatusBadRequest
	case KindIsDirectory:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
