package services

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a failure so the HTTP layer can pick a status code.
type ErrorKind string

const (
	KindValidation     ErrorKind = "validation"
	KindAuthentication ErrorKind = "authentication"
	KindAuthorization  ErrorKind = "authorization"
	KindNotFound       ErrorKind = "not_found"
	KindConflict       ErrorKind = "conflict"
	KindUpload         ErrorKind = "upload"
	KindInternal       ErrorKind = "internal"
)

// Error is a business-rule failure whose Message is safe to show to the caller.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches sentinel errors by kind and message so wrapped copies still compare equal.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind && e.Message == t.Message
}

func newError(kind ErrorKind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// ValidationError builds a 400-class error.
func ValidationError(message string) *Error { return newError(KindValidation, message) }

// UploadError builds an upload rejection, passing the storage layer's message through.
func UploadError(message string) *Error { return newError(KindUpload, message) }

// internalError wraps an unexpected failure; the cause is only logged.
func internalError(message string, err error) *Error {
	return &Error{Kind: KindInternal, Message: message, Err: err}
}

// KindOf returns the kind of err, treating unknown errors as internal.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

var (
	ErrDuplicateEmail   = newError(KindValidation, "there is already an account with this email")
	ErrWeakPassword     = newError(KindValidation, "password is required and must be at least 6 characters long")
	ErrPasswordMismatch = newError(KindValidation, "passwords do not match")
	ErrInvalidAdminKey  = newError(KindAuthorization, "invalid admin key")
	ErrUserNotFound     = newError(KindNotFound, "no user found with this email")
	ErrBadPassword      = newError(KindAuthentication, "invalid email or password")
	ErrNotAdminAccount  = newError(KindAuthorization, "not an admin account")
	ErrUnauthenticated  = newError(KindAuthentication, "not authorized, no valid session")

	ErrProjectNotFound = newError(KindNotFound, "project not found")
	ErrNotOwner        = newError(KindAuthorization, "not authorized to update this project")
	ErrNotAdmin        = newError(KindAuthorization, "admin access required")
	ErrNotAuthorized   = newError(KindAuthorization, "not authorized to access this project")
	ErrMissingFile     = newError(KindValidation, "project file is required")
	ErrFileMissing     = newError(KindNotFound, "project file not found")
	ErrInvalidStatus   = newError(KindValidation, "status must be one of: approved, rejected")
	ErrInvalidRating   = newError(KindValidation, "rating must be between 1 and 5")
	ErrVersionConflict = newError(KindConflict, "project was modified concurrently, reload and try again")
	ErrEmptyComment    = newError(KindValidation, "comment content is required")
)
