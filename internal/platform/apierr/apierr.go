package apierr

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/yungbote/decisiontrace-backend/internal/domain/tracegraph"
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

// StatusClientClosedRequest is the nginx convention for a caller that went away.
const StatusClientClosedRequest = 499

// FromError maps a core error onto an HTTP status and stable error code.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr
	}
	code := tracegraph.CodeOf(err)
	return New(StatusFor(code), string(code), err)
}

func StatusFor(code tracegraph.ErrorCode) int {
	switch code {
	case tracegraph.CodeValidation:
		return http.StatusBadRequest
	case tracegraph.CodeNotFound:
		return http.StatusNotFound
	case tracegraph.CodeDependencyTimeout:
		return http.StatusGatewayTimeout
	case tracegraph.CodeDependencyUnavailable:
		return http.StatusServiceUnavailable
	case tracegraph.CodeCanceled:
		return StatusClientClosedRequest
	default:
		return http.StatusInternalServerError
	}
}
