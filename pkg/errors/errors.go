// Package errors defines the coded errors returned by every poflow package.
package errors

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Code classifies an error for programmatic handling.
type Code string

const (
	// Input errors (1xx)
	CodeInvalidFormat   Code = "E101"
	CodeMissingHeader   Code = "E102"
	CodeEmptyFile       Code = "E103"
	CodeInvalidArgument Code = "E104"

	// Row validation errors (2xx). Recovered per row, never abort a batch.
	CodeMissingField  Code = "E201"
	CodeInvalidAmount Code = "E202"
	CodeInvalidDate   Code = "E203"

	// Storage errors (3xx)
	CodeStorageUnavailable Code = "E301"
	CodeTransientRead      Code = "E302"
	CodeWriteFailed        Code = "E303"
	CodeNotFound           Code = "E304"
	CodeQueueFull          Code = "E305"

	// Authorization and state errors (4xx)
	CodeCrossTenant          Code = "E401"
	CodeConfirmationRequired Code = "E402"
	CodeJobInProgress        Code = "E403"

	// Query errors (5xx)
	CodeEngineInit  Code = "E501"
	CodeQueryFailed Code = "E502"

	CodeUnknown Code = "E999"
)

// PoflowError carries a Code, a human message and an optional cause.
// Context holds the parameters that produced the error; the HTTP layer
// returns them to the caller for client errors.
type PoflowError struct {
	Code    Code
	Message string
	Cause   error
	Context map[string]interface{}
}

func (e *PoflowError) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "[%s] %s", e.Code, e.Message)
	if len(e.Context) > 0 {
		keys := make([]string, 0, len(e.Context))
		for k := range e.Context {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		pairs := make([]string, len(keys))
		for i, k := range keys {
			pairs[i] = fmt.Sprintf("%s=%v", k, e.Context[k])
		}
		fmt.Fprintf(&sb, " (%s)", strings.Join(pairs, ", "))
	}
	if e.Cause != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Cause.Error())
	}
	return sb.String()
}

func (e *PoflowError) Unwrap() error {
	return e.Cause
}

// Is matches another PoflowError by code, so errors.Is(err,
// &PoflowError{Code: CodeNotFound}) works through wrapping.
func (e *PoflowError) Is(target error) bool {
	t, ok := target.(*PoflowError)
	return ok && e.Code == t.Code
}

// WithContext records a parameter on the error and returns it.
func (e *PoflowError) WithContext(key string, value interface{}) *PoflowError {
	if e.Context == nil {
		e.Context = make(map[string]interface{}, 2)
	}
	e.Context[key] = value
	return e
}

func New(code Code, message string) *PoflowError {
	return &PoflowError{Code: code, Message: message}
}

func Newf(code Code, format string, args ...interface{}) *PoflowError {
	return New(code, fmt.Sprintf(format, args...))
}

// Wrap attaches a code and message to err. It returns nil when err is nil.
func Wrap(err error, code Code, message string) *PoflowError {
	if err == nil {
		return nil
	}
	return &PoflowError{Code: code, Message: message, Cause: err}
}

func Wrapf(err error, code Code, format string, args ...interface{}) *PoflowError {
	if err == nil {
		return nil
	}
	return Wrap(err, code, fmt.Sprintf(format, args...))
}

// CrossTenant reports an attempt to touch data owned by another tenant.
func CrossTenant(resource, id string) *PoflowError {
	return New(CodeCrossTenant, "resource belongs to another tenant").
		WithContext("resource", resource).
		WithContext("id", id)
}

// NotFound reports a missing resource.
func NotFound(resource, id string) *PoflowError {
	return New(CodeNotFound, resource+" not found").
		WithContext("id", id)
}

// InvalidArgument reports a bad caller-supplied parameter.
func InvalidArgument(name string, value interface{}, reason string) *PoflowError {
	return New(CodeInvalidArgument, reason).
		WithContext("param", name).
		WithContext("value", value)
}

// IsCode reports whether the outermost PoflowError in err's chain has code.
func IsCode(err error, code Code) bool {
	return GetCode(err) == code
}

// GetCode returns the code of the outermost PoflowError in err's chain, or
// CodeUnknown.
func GetCode(err error) Code {
	var pfErr *PoflowError
	if errors.As(err, &pfErr) {
		return pfErr.Code
	}
	return CodeUnknown
}

// GetContext returns the context of the outermost PoflowError in err's chain.
func GetContext(err error) map[string]interface{} {
	var pfErr *PoflowError
	if errors.As(err, &pfErr) {
		return pfErr.Context
	}
	return nil
}

// IsRetryable reports whether the same request may succeed later.
func IsRetryable(err error) bool {
	switch GetCode(err) {
	case CodeTransientRead, CodeStorageUnavailable, CodeQueueFull, CodeJobInProgress:
		return true
	default:
		return false
	}
}

// IsInput reports whether c blames the caller's file or parameters
// (the 1xx and 2xx codes).
func (c Code) IsInput() bool {
	return strings.HasPrefix(string(c), "E1") || strings.HasPrefix(string(c), "E2")
}

// MultiError collects the failures of independent steps that all run
// regardless of earlier errors.
type MultiError struct {
	Errors []error
}

func (m *MultiError) Error() string {
	switch len(m.Errors) {
	case 0:
		return "no errors"
	case 1:
		return m.Errors[0].Error()
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "%d errors occurred:\n", len(m.Errors))
	for i, err := range m.Errors {
		fmt.Fprintf(&sb, "  %d. %s\n", i+1, err)
	}
	return sb.String()
}

// Unwrap exposes the collected errors to errors.Is and errors.As.
func (m *MultiError) Unwrap() []error {
	return m.Errors
}

// Add records err if it is non-nil.
func (m *MultiError) Add(err error) {
	if err != nil {
		m.Errors = append(m.Errors, err)
	}
}

func (m *MultiError) HasErrors() bool {
	return len(m.Errors) > 0
}

// Combined returns nil, the single collected error, or m.
func (m *MultiError) Combined() error {
	switch len(m.Errors) {
	case 0:
		return nil
	case 1:
		return m.Errors[0]
	}
	return m
}
