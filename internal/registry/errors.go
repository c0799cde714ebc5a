package registry

import (
	"errors"
	"fmt"
)

// Error kinds. Every *Error matches exactly one of these with errors.Is.
var (
	ErrValidation = errors.New("validation error")
	ErrConflict   = errors.New("conflict")
	ErrNotFound   = errors.New("not found")
	ErrTransient  = errors.New("transient store error")
)

const (
	CodeInvalidEmail         = "INVALID_EMAIL"
	CodeInvalidUsername      = "INVALID_USERNAME"
	CodeInvalidProfileID     = "INVALID_PROFILE_ID"
	CodeInvalidAccountID     = "INVALID_ACCOUNT_ID"
	CodeInvalidStatus        = "INVALID_STATUS"
	CodeAccountExists        = "ACCOUNT_EXISTS"
	CodePendingProfileExists = "PENDING_PROFILE_EXISTS"
	CodeUsernameTaken        = "USERNAME_TAKEN"
	CodeProfileNotFound      = "PROFILE_NOT_FOUND"
	CodeAccountNotFound      = "ACCOUNT_NOT_FOUND"
	CodeProfileNotPending    = "PROFILE_NOT_PENDING"
	CodeAlreadyClaimed       = "ALREADY_CLAIMED"
	CodeEmailMismatch        = "EMAIL_MISMATCH"
	CodeStoreContention      = "STORE_CONTENTION"
)

type Error struct {
	Kind    error
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Is(target error) bool {
	return e != nil && e.Kind == target
}

func (e *Error) Unwrap() error {
	return e.Err
}

func validationError(code, message string) *Error {
	return &Error{Kind: ErrValidation, Code: code, Message: message}
}

func conflictError(code, message string) *Error {
	return &Error{Kind: ErrConflict, Code: code, Message: message}
}

func notFoundError(code, message string) *Error {
	return &Error{Kind: ErrNotFound, Code: code, Message: message}
}

// CodeOf returns the code of err if it is a registry error.
func CodeOf(err error) string {
	var regErr *Error
	if errors.As(err, &regErr) {
		return regErr.Code
	}
	return ""
}
