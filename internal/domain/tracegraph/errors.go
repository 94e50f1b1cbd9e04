package tracegraph

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrorCode standardizes failure semantics across the graph core and its adapters.
type ErrorCode string

const (
	CodeValidation            ErrorCode = "validation"
	CodeNotFound              ErrorCode = "not_found"
	CodeDependencyTimeout     ErrorCode = "dependency_timeout"
	CodeDependencyUnavailable ErrorCode = "dependency_unavailable"
	CodeInconsistentData      ErrorCode = "inconsistent_data"
	// CodeCanceled means the caller gave up; no dependency is at fault.
	CodeCanceled              ErrorCode = "canceled"
	CodeInternal              ErrorCode = "internal"
)

// Error is the canonical graph-core error wrapper.
type Error struct {
	Code    ErrorCode
	Op      string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	op := strings.TrimSpace(e.Op)
	msg := strings.TrimSpace(e.Message)
	switch {
	case op != "" && msg != "":
		return fmt.Sprintf("%s: %s (%s)", op, msg, e.Code)
	case op != "":
		return fmt.Sprintf("%s (%s)", op, e.Code)
	case msg != "":
		return fmt.Sprintf("%s (%s)", msg, e.Code)
	default:
		return string(e.Code)
	}
}

func (e *Error) Unwrap() error { return e.Cause }

// Retryable reports whether the failure is safe to retry. All core operations are pure reads.
func (e *Error) Retryable() bool {
	if e == nil {
		return false
	}
	return e.Code == CodeDependencyTimeout || e.Code == CodeDependencyUnavailable
}

func NewError(code ErrorCode, op, message string, cause error) error {
	return &Error{
		Code:    code,
		Op:      strings.TrimSpace(op),
		Message: strings.TrimSpace(message),
		Cause:   cause,
	}
}

func Wrap(code ErrorCode, op string, err error) error {
	if err == nil {
		return nil
	}
	return NewError(code, op, err.Error(), err)
}

func Validation(op, format string, args ...any) error {
	return NewError(CodeValidation, op, fmt.Sprintf(format, args...), nil)
}

func NotFound(op, kind, id string) error {
	return NewError(CodeNotFound, op, fmt.Sprintf("%s %q not found", kind, id), nil)
}

// IsCode checks whether err (or wrapped err) carries the given code.
func IsCode(err error, code ErrorCode) bool {
	var tgErr *Error
	if !errors.As(err, &tgErr) {
		return false
	}
	return tgErr.Code == code
}

// CodeOf extracts the error code; unclassified non-nil errors report CodeInternal.
func CodeOf(err error) ErrorCode {
	if err == nil {
		return ""
	}
	var tgErr *Error
	if !errors.As(err, &tgErr) {
		return CodeInternal
	}
	return tgErr.Code
}

type timeoutError interface {
	Timeout() bool
}

// FromContext classifies a context error: cancellation by the caller is kept apart
// from an expired deadline.
func FromContext(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.Canceled):
		return NewError(CodeCanceled, op, "caller canceled", err)
	case errors.Is(err, context.DeadlineExceeded):
		return NewError(CodeDependencyTimeout, op, "deadline exceeded", err)
	default:
		return ClassifyDependency(op, err)
	}
}

// ClassifyDependency converts a raw adapter failure into dependency_timeout or
// dependency_unavailable. Errors that already carry a code pass through unchanged.
func ClassifyDependency(op string, err error) error {
	if err == nil {
		return nil
	}
	var tgErr *Error
	if errors.As(err, &tgErr) {
		return err
	}
	if errors.Is(err, context.Canceled) {
		return NewError(CodeCanceled, op, err.Error(), err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return NewError(CodeDependencyTimeout, op, err.Error(), err)
	}
	var te timeoutError
	if errors.As(err, &te) && te.Timeout() {
		return NewError(CodeDependencyTimeout, op, err.Error(), err)
	}
	return NewError(CodeDependencyUnavailable, op, err.Error(), err)
}
