// Package errors defines the coded domain errors shared by the HTTP and
// realtime paths.
//
// Services return *Error values; handlers translate them with HTTPStatus and
// the websocket session turns them into notifications. Match with errors.Is
// against the sentinels, which compares codes only:
//
//	if errors.Is(err, errors.ErrPasswordIncorrect) { ... }
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
	New    = errors.New
)

// Code is the machine-readable part of an error, sent to clients as "code".
type Code string

const (
	CodeUnauthenticated   Code = "UNAUTHENTICATED"
	CodePasswordRequired  Code = "PASSWORD_REQUIRED"
	CodePasswordIncorrect Code = "PASSWORD_INCORRECT"
	CodeNotAMember        Code = "NOT_A_MEMBER"
	CodeForbidden         Code = "FORBIDDEN"
	CodeValidation        Code = "VALIDATION"
	CodeEmptyMessage      Code = "EMPTY_MESSAGE"
	CodeRoomNotFound      Code = "ROOM_NOT_FOUND"
	CodeNotFound          Code = "NOT_FOUND"
	CodeConflict          Code = "CONFLICT"
	CodeGone              Code = "GONE"
	CodeRateLimited       Code = "RATE_LIMITED"
	CodeUpstream          Code = "UPSTREAM"
)

func (c Code) HTTPStatus() int {
	switch c {
	case CodeUnauthenticated:
		return http.StatusUnauthorized
	case CodePasswordRequired, CodePasswordIncorrect, CodeNotAMember, CodeForbidden:
		return http.StatusForbidden
	case CodeValidation, CodeEmptyMessage:
		return http.StatusBadRequest
	case CodeRoomNotFound, CodeNotFound:
		return http.StatusNotFound
	case CodeConflict:
		return http.StatusConflict
	case CodeGone:
		return http.StatusGone
	case CodeRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

type Error struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.cause
}

// Is matches any *Error carrying the same code.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Code == t.Code
	}
	return false
}

func (e *Error) HTTPStatus() int {
	return e.Code.HTTPStatus()
}

func (e *Error) WithCause(err error) *Error {
	return &Error{Code: e.Code, Message: e.Message, cause: err}
}

var (
	ErrUnauthenticated   = &Error{Code: CodeUnauthenticated, Message: "Unauthorized"}
	ErrPasswordRequired  = &Error{Code: CodePasswordRequired, Message: "Room password required"}
	ErrPasswordIncorrect = &Error{Code: CodePasswordIncorrect, Message: "Incorrect room password"}
	ErrNotAMember        = &Error{Code: CodeNotAMember, Message: "Join the room before sending messages"}
	ErrForbidden         = &Error{Code: CodeForbidden, Message: "Forbidden"}
	ErrValidation        = &Error{Code: CodeValidation, Message: "Invalid request"}
	ErrEmptyMessage      = &Error{Code: CodeEmptyMessage, Message: "Message content is required"}
	ErrRoomNotFound      = &Error{Code: CodeRoomNotFound, Message: "Room not found"}
	ErrNotFound          = &Error{Code: CodeNotFound, Message: "Not found"}
	ErrConflict          = &Error{Code: CodeConflict, Message: "Conflict"}
	ErrGone              = &Error{Code: CodeGone, Message: "Gone"}
	ErrRateLimited       = &Error{Code: CodeRateLimited, Message: "Too many attempts, try again later"}
	ErrUpstream          = &Error{Code: CodeUpstream, Message: "Internal server error"}
)

func Validation(msg string) *Error {
	return &Error{Code: CodeValidation, Message: msg}
}

func Validationf(format string, args ...any) *Error {
	return &Error{Code: CodeValidation, Message: fmt.Sprintf(format, args...)}
}

func NotFound(msg string) *Error {
	return &Error{Code: CodeNotFound, Message: msg}
}

func Forbidden(msg string) *Error {
	return &Error{Code: CodeForbidden, Message: msg}
}

func Conflict(msg string) *Error {
	return &Error{Code: CodeConflict, Message: msg}
}

func Gone(msg string) *Error {
	return &Error{Code: CodeGone, Message: msg}
}

func Unauthenticated(msg string) *Error {
	return &Error{Code: CodeUnauthenticated, Message: msg}
}

// Upstream wraps a storage or provider failure. The message stays generic;
// the cause is only for logs.
func Upstream(err error, msg string) *Error {
	return &Error{Code: CodeUpstream, Message: msg, cause: err}
}

// CodeOf returns the code of the first *Error in err's chain, or
// CodeUpstream when there is none.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeUpstream
}
