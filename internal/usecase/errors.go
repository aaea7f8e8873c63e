package usecase

import (
	"errors"
	"fmt"
)

type ErrorCode string

const (
	ErrorMalformedRequest      ErrorCode = "MALFORMED_REQUEST"
	ErrorUpstreamUnavailable   ErrorCode = "UPSTREAM_UNAVAILABLE"
	ErrorUpstreamEmptyResponse ErrorCode = "UPSTREAM_EMPTY_RESPONSE"
	ErrorInternal              ErrorCode = "INTERNAL_ERROR"
)

// ReasonNoContent is the reason attached to ErrorUpstreamEmptyResponse.
const ReasonNoContent = "no response content from the model"

type Error struct {
	Code   ErrorCode
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return fmt.Sprintf("usecase: %s (%s)", e.Code, e.Reason)
	}
	return fmt.Sprintf("usecase: %s (%s): %v", e.Code, e.Reason, e.Err)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// NewError returns an *Error with the given code and reason.
func NewError(code ErrorCode, reason string, err error) *Error {
	return &Error{Code: code, Reason: reason, Err: err}
}

// CodeOf returns the taxonomy code carried by err, or ErrorInternal when err
// is not a *Error.
func CodeOf(err error) ErrorCode {
	var ue *Error
	if errors.As(err, &ue) && ue != nil {
		return ue.Code
	}
	return ErrorInternal
}
