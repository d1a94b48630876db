package apierr

import (
	"errors"
	"fmt"
	"net/http"
)

const (
	CodeInvalidRequest   = "invalid_request"
	CodePredictionFailed = "prediction_failed"
	CodeUnauthorized     = "unauthorized"
	CodeRateLimited      = "rate_limited"
	CodeUnavailable      = "unavailable"
	CodeInternal         = "internal_error"
)

type Error struct {
	Status int
	Code   string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	if e.Code != "" {
		return e.Code
	}
	if e.Status != 0 {
		return fmt.Sprintf("api error (%d)", e.Status)
	}
	return "api error"
}

func (e *Error) Unwrap() error { return e.Err }

func New(status int, code string, err error) *Error {
	return &Error{Status: status, Code: code, Err: err}
}

func BadRequest(format string, args ...any) *Error {
	return New(http.StatusBadRequest, CodeInvalidRequest, fmt.Errorf(format, args...))
}

func Internal(code string, err error) *Error {
	if code == "" {
		code = CodeInternal
	}
	return New(http.StatusInternalServerError, code, err)
}

// StatusOf reports the HTTP status and code carried by err. Errors that are
// not *Error map to 500/internal_error.
func StatusOf(err error) (int, string) {
	var ae *Error
	if errors.As(err, &ae) && ae != nil {
		status := ae.Status
		if status == 0 {
			status = http.StatusInternalServerError
		}
		code := ae.Code
		if code == "" {
			code = CodeInternal
		}
		return status, code
	}
	return http.StatusInternalServerError, CodeInternal
}
