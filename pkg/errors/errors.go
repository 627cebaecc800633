// Package errors defines AppError, the error type every layer of the
// combinator returns.  Its ErrorCode decides the HTTP status, the CLI exit
// message and whether the queue worker retries.
package errors

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
)

const stackDepth = 32

// ─────────────────────────────────────────────────────────────────────────────
// AppError
// ─────────────────────────────────────────────────────────────────────────────

// AppError is a coded error.  errors.Is matches two AppErrors by code, so a
// zero-message value works as a sentinel:
//
//	errors.Is(err, &errors.AppError{Code: errors.ErrCodeEnumerationCancelled})
type AppError struct {
	Code    ErrorCode
	Message string

	// Detail pinpoints the input at fault, e.g. the SMILES and offset of a
	// syntax error.  It is returned to API clients on 4xx responses.
	Detail string

	Cause error

	pcs []uintptr
}

// Error formats as "[<code>] <message>" with ": <detail>" appended when set.
func (e *AppError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Code, e.Message, e.Detail)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error { return e.Cause }

// Is matches target by code, and by message too when target has one.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok || t == nil {
		return false
	}
	return e.Code == t.Code && (t.Message == "" || e.Message == t.Message)
}

// WithDetail returns a copy with Detail set.  Nil stays nil.
func (e *AppError) WithDetail(detail string) *AppError {
	if e == nil {
		return nil
	}
	clone := *e
	clone.Detail = detail
	return &clone
}

// WithDetailf is WithDetail with formatting.
func (e *AppError) WithDetailf(format string, args ...interface{}) *AppError {
	return e.WithDetail(fmt.Sprintf(format, args...))
}

// WithCause returns a copy with Cause set.  Nil stays nil.
func (e *AppError) WithCause(err error) *AppError {
	if e == nil {
		return nil
	}
	clone := *e
	clone.Cause = err
	return &clone
}

// StackTrace renders the frames captured where the error was created, one
// per line, with runtime frames omitted.
func (e *AppError) StackTrace() string {
	if e == nil || len(e.pcs) == 0 {
		return ""
	}
	frames := runtime.CallersFrames(e.pcs)
	var sb strings.Builder
	for {
		f, more := frames.Next()
		if !strings.HasPrefix(f.Function, "runtime.") {
			fmt.Fprintf(&sb, "%s\n\t%s:%d\n", f.Function, f.File, f.Line)
		}
		if !more {
			break
		}
	}
	return sb.String()
}

// callers records the stack above the constructor that called it.
func callers() []uintptr {
	pcs := make([]uintptr, stackDepth)
	n := runtime.Callers(3, pcs)
	return pcs[:n]
}

// ─────────────────────────────────────────────────────────────────────────────
// Constructors
// ─────────────────────────────────────────────────────────────────────────────

func New(code ErrorCode, message string) *AppError {
	return &AppError{Code: code, Message: message, pcs: callers()}
}

func Newf(code ErrorCode, format string, args ...interface{}) *AppError {
	return &AppError{Code: code, Message: fmt.Sprintf(format, args...), pcs: callers()}
}

// Wrap returns nil for a nil err.  With CodeUnknown the code of the first
// AppError in err's chain is kept.
func Wrap(err error, code ErrorCode, message string) *AppError {
	if err == nil {
		return nil
	}
	if code == CodeUnknown {
		var ae *AppError
		if errors.As(err, &ae) {
			code = ae.Code
		}
	}
	return &AppError{Code: code, Message: message, Cause: err, pcs: callers()}
}

func NotFound(message string) *AppError {
	return &AppError{Code: CodeNotFound, Message: message, pcs: callers()}
}

func InvalidParam(message string) *AppError {
	return &AppError{Code: CodeInvalidParam, Message: message, pcs: callers()}
}

func Internal(message string) *AppError {
	return &AppError{Code: CodeInternal, Message: message, pcs: callers()}
}

// ─────────────────────────────────────────────────────────────────────────────
// Inspection
// ─────────────────────────────────────────────────────────────────────────────

// IsCode reports whether any AppError in err's tree carries code, not only
// the outermost one.  Joined errors are searched branch by branch.
func IsCode(err error, code ErrorCode) bool {
	switch e := err.(type) {
	case nil:
		return false
	case *AppError:
		if e == nil {
			return false
		}
		return e.Code == code || IsCode(e.Cause, code)
	case interface{ Unwrap() []error }:
		for _, inner := range e.Unwrap() {
			if IsCode(inner, code) {
				return true
			}
		}
		return false
	case interface{ Unwrap() error }:
		return IsCode(e.Unwrap(), code)
	default:
		return false
	}
}

func IsNotFound(err error) bool {
	return IsCode(err, CodeNotFound)
}

// IsClient reports whether err is the caller's fault: resubmitting the same
// input fails the same way.
func IsClient(err error) bool {
	code := GetCode(err)
	if code == CodeOK || code == CodeUnknown {
		return false
	}
	return IsClientError(code)
}

// GetCode returns the code of the outermost AppError in err's chain,
// CodeUnknown when there is none and CodeOK for nil.
func GetCode(err error) ErrorCode {
	if err == nil {
		return CodeOK
	}
	var ae *AppError
	if errors.As(err, &ae) {
		return ae.Code
	}
	return CodeUnknown
}

// HTTPStatus is HTTPStatusForCode(GetCode(err)).
func HTTPStatus(err error) int {
	return HTTPStatusForCode(GetCode(err))
}

// Is re-exports the standard library helper for callers importing this
// package as "errors".
func Is(err, target error) bool { return errors.Is(err, target) }

func As(err error, target interface{}) bool { return errors.As(err, target) }

//Personal.AI order the ending
