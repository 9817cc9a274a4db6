package common

import (
	"errors"
	"net/http"
	"strings"
)

// Kind classifies a failure so transports can map it without inspecting
// package sentinels.
type Kind int

const (
	// KindInternal covers infrastructure faults and anything unclassified.
	KindInternal Kind = iota
	// KindValidation is a malformed input or a violated business rule.
	KindValidation
	// KindNotFound means a referenced entity does not exist.
	KindNotFound
	// KindConflict is a recoverable state conflict.
	KindConflict
	// KindUnauthorized means the caller may not touch the resource.
	KindUnauthorized
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindUnauthorized:
		return "unauthorized"
	default:
		return "internal"
	}
}

// HTTPStatus maps the kind onto a response status.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindUnauthorized:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// AppError is a classified failure carrying an ordered list of human-readable
// messages. Err usually wraps a package sentinel so errors.Is keeps working.
type AppError struct {
	Kind     Kind
	Code     string
	Messages []string
	Err      error
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e == nil {
		return ""
	}
	if len(e.Messages) > 0 {
		return strings.Join(e.Messages, "; ")
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Kind.String()
}

// Unwrap allows errors.Is/As to inspect the underlying error.
func (e *AppError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Message returns the first message, or the error text when none is set.
func (e *AppError) Message() string {
	if e == nil {
		return ""
	}
	if len(e.Messages) > 0 {
		return e.Messages[0]
	}
	return e.Error()
}

// NewAppError constructs an AppError.
func NewAppError(kind Kind, code string, err error, messages ...string) *AppError {
	return &AppError{Kind: kind, Code: code, Messages: messages, Err: err}
}

// Validation builds a KindValidation error.
func Validation(code string, err error, messages ...string) *AppError {
	return NewAppError(KindValidation, code, err, messages...)
}

// NotFound builds a KindNotFound error.
func NotFound(code string, err error, messages ...string) *AppError {
	return NewAppError(KindNotFound, code, err, messages...)
}

// Conflict builds a KindConflict error.
func Conflict(code string, err error, messages ...string) *AppError {
	return NewAppError(KindConflict, code, err, messages...)
}

// Unauthorized builds a KindUnauthorized error.
func Unauthorized(code string, err error, messages ...string) *AppError {
	return NewAppError(KindUnauthorized, code, err, messages...)
}

// KindOf reports the kind of err; unclassified errors are internal.
func KindOf(err error) Kind {
	var target *AppError
	if errors.As(err, &target) {
		return target.Kind
	}
	return KindInternal
}

// IsNotAuthorized reports whether err is an authorization failure.
func IsNotAuthorized(err error) bool {
	return err != nil && KindOf(err) == KindUnauthorized
}

// IsNotFound reports whether err is a missing-entity failure.
func IsNotFound(err error) bool {
	return err != nil && KindOf(err) == KindNotFound
}

// Messages returns the ordered messages attached to err.
func Messages(err error) []string {
	var target *AppError
	if errors.As(err, &target) {
		return append([]string(nil), target.Messages...)
	}
	return nil
}
