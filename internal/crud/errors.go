package crud

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes client-caused errors.
type ErrorCode string

const (
	// CodeInvalidInput covers empty payloads, unknown filter fields,
	// disallowed operators and unresolvable join paths.
	CodeInvalidInput ErrorCode = "INVALID_INPUT"

	// CodeNotFound means an identity lookup matched nothing.
	CodeNotFound ErrorCode = "NOT_FOUND"
)

// Error is a tagged client error for the transport layer to map to a status.
type Error struct {
	Code ErrorCode

	// Message is safe to show to the caller.
	Message string

	// Entity is the entity the request targeted.
	Entity string

	// Field names the offending field or join segment, when there is one.
	Field string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IsInvalidInput reports whether err is an *Error with CodeInvalidInput.
func IsInvalidInput(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Code == CodeInvalidInput
}

// IsNotFound reports whether err is an *Error with CodeNotFound.
func IsNotFound(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Code == CodeNotFound
}

// MsgEmptyPayload is returned for empty creates.
const MsgEmptyPayload = "Empty data. Nothing to save."

func invalidInput(entity, field, format string, args ...any) *Error {
	return &Error{
		Code:    CodeInvalidInput,
		Message: fmt.Sprintf(format, args...),
		Entity:  entity,
		Field:   field,
	}
}

func notFound(entity string) *Error {
	return &Error{
		Code:    CodeNotFound,
		Message: entity + " not found",
		Entity:  entity,
	}
}
