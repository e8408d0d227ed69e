// Package errs provides structured error types and helpers for the sreplay engine.
package errs

import (
	"strconv"
	"strings"
)

// Code identifies an engine error category.
type Code string

const (
	// CodeInvalidTransition indicates a mode transition requested outside its required mode.
	CodeInvalidTransition Code = "invalid_transition"
	// CodeInvalidRecording indicates a nil or empty recording supplied for playback.
	CodeInvalidRecording Code = "invalid_recording"
	// CodeMissingData indicates a poll for data absent from the replayed recording.
	CodeMissingData Code = "missing_data"
	// CodeIncompatibleEvent indicates an event kind outside the recordable whitelist.
	CodeIncompatibleEvent Code = "incompatible_event"
	// CodeCorruptRecording indicates a recording whose streams violate engine invariants.
	CodeCorruptRecording Code = "corrupt_recording"
	// CodeInvalid indicates invalid input provided by the caller.
	CodeInvalid Code = "invalid_request"
	// CodeNotFound indicates a missing resource.
	CodeNotFound Code = "not_found"
	// CodeUnavailable indicates the engine cannot service the request right now.
	CodeUnavailable Code = "unavailable"
)

// E captures structured error information produced across the sreplay stack.
type E struct {
	Scope       string
	Code        Code
	Message     string
	Remediation string

	cause error
}

// Option configures an error envelope.
type Option func(*E)

// New constructs an error envelope for the scope and error code.
func New(scope string, code Code, opts ...Option) *E {
	e := &E{
		Scope:       strings.TrimSpace(scope),
		Code:        code,
		Message:     "",
		Remediation: "",
		cause:       nil,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// WithMessage attaches a human-readable message to the error.
func WithMessage(message string) Option {
	trimmed := strings.TrimSpace(message)
	return func(e *E) {
		e.Message = trimmed
	}
}

// WithRemediation attaches remediation guidance to the error.
func WithRemediation(remediation string) Option {
	trimmed := strings.TrimSpace(remediation)
	return func(e *E) {
		e.Remediation = trimmed
	}
}

// WithCause sets the underlying cause error.
func WithCause(err error) Option {
	return func(e *E) {
		e.cause = err
	}
}

func (e *E) Error() string {
	if e == nil {
		return "<nil>"
	}
	var parts []string

	scope := strings.TrimSpace(e.Scope)
	if scope == "" {
		scope = "unknown"
	}
	parts = append(parts, "scope="+scope)

	code := strings.TrimSpace(string(e.Code))
	if code == "" {
		code = "unknown"
	}
	parts = append(parts, "code="+code)

	if e.Message != "" {
		parts = append(parts, "message="+strconv.Quote(e.Message))
	}
	if e.Remediation != "" {
		parts = append(parts, "remediation="+strconv.Quote(e.Remediation))
	}
	if e.cause != nil {
		parts = append(parts, "cause="+strconv.Quote(e.cause.Error()))
	}

	return strings.Join(parts, " ")
}

func (e *E) Unwrap() error { return e.cause }

// Is reports whether target carries the same code, enabling errors.Is matching.
func (e *E) Is(target error) bool {
	other, ok := target.(*E)
	if !ok {
		return false
	}
	return e != nil && other != nil && e.Code == other.Code
}

// Is reports whether err is an engine error carrying code. Unwrapping walks
// the cause chain so wrapped envelopes still match.
func Is(err error, code Code) bool {
	for err != nil {
		if e, ok := err.(*E); ok && e != nil {
			return e.Code == code
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// CodeOf extracts the engine error code, or empty when err is not an *E.
func CodeOf(err error) Code {
	e, ok := err.(*E)
	if !ok || e == nil {
		return ""
	}
	return e.Code
}
