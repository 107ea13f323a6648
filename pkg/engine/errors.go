package engine

import (
	"errors"
	"fmt"
)

// ErrorClass classifies an internal engine failure. Plan problems are never reported this
// way; they are Diagnostics.
type ErrorClass string

const (
	// ErrorClassInput indicates an unreadable or undecodable input (symbol table, plan).
	ErrorClassInput ErrorClass = "input"

	// ErrorClassRejected indicates a plan that produced fatal diagnostics.
	ErrorClassRejected ErrorClass = "rejected"

	// ErrorClassHook indicates a failure inside a user-supplied hook (naming script, policy).
	ErrorClassHook ErrorClass = "hook"

	// ErrorClassCanceled indicates the caller's context ended the run.
	ErrorClassCanceled ErrorClass = "canceled"

	// ErrorClassInternal indicates a broken engine invariant.
	ErrorClassInternal ErrorClass = "internal"
)

// EngineError represents a classified error with context.
// nolint:revive // EngineError is intentionally named to distinguish from standard errors
type EngineError struct {
	// Class is the error classification.
	Class ErrorClass `json:"class"`

	// Message is the human-readable error message.
	Message string `json:"message"`

	// Code is an optional error code for programmatic handling.
	Code string `json:"code,omitempty"`

	// Stage is the pipeline stage that failed (validate, graph, bind, lint, store).
	Stage string `json:"stage,omitempty"`

	// Entry is the plan entry involved, if any.
	Entry string `json:"entry,omitempty"`

	// Err is the underlying error that caused this error.
	Err error `json:"-"`

	// Details contains additional context-specific information.
	Details map[string]interface{} `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *EngineError) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Class, e.Message)
	switch {
	case e.Stage != "" && e.Entry != "":
		msg = fmt.Sprintf("%s (stage=%s, entry=%s)", msg, e.Stage, e.Entry)
	case e.Stage != "":
		msg = fmt.Sprintf("%s (stage=%s)", msg, e.Stage)
	case e.Entry != "":
		msg = fmt.Sprintf("%s (entry=%s)", msg, e.Entry)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying error for error chain inspection.
func (e *EngineError) Unwrap() error {
	return e.Err
}

// Is implements error equality checking for errors.Is.
func (e *EngineError) Is(target error) bool {
	t, ok := target.(*EngineError)
	if !ok {
		return false
	}
	return e.Class == t.Class && e.Code == t.Code
}

func newError(class ErrorClass, message string, err error) *EngineError {
	return &EngineError{Class: class, Message: message, Err: err}
}

// NewInputError creates an error for unreadable input.
func NewInputError(message string, err error) *EngineError {
	return newError(ErrorClassInput, message, err)
}

// NewRejectedError wraps the fatal diagnostics of a run.
func NewRejectedError(diags Diagnostics) *EngineError {
	return newError(ErrorClassRejected, "plan rejected", &DiagnosticsError{Diagnostics: diags}).
		WithCode(ErrCodeRejected).
		WithDetail("diagnostics", len(diags))
}

// NewHookError creates an error raised by a user hook.
func NewHookError(message string, err error) *EngineError {
	return newError(ErrorClassHook, message, err)
}

// NewCanceledError creates an error for a canceled run.
func NewCanceledError(stage string, err error) *EngineError {
	return newError(ErrorClassCanceled, "generation canceled", err).WithStage(stage).WithCode(ErrCodeCanceled)
}

// NewInternalError creates an error for a broken invariant.
func NewInternalError(message string, err error) *EngineError {
	return newError(ErrorClassInternal, message, err).WithCode(ErrCodeInternal)
}

// WithStage adds pipeline stage context to an error.
func (e *EngineError) WithStage(stage string) *EngineError {
	e.Stage = stage
	return e
}

// WithEntry adds plan entry context to an error.
func (e *EngineError) WithEntry(entry string) *EngineError {
	e.Entry = entry
	return e
}

// WithCode adds an error code to an error.
func (e *EngineError) WithCode(code string) *EngineError {
	e.Code = code
	return e
}

// WithDetail adds a detail field to the error context.
func (e *EngineError) WithDetail(key string, value interface{}) *EngineError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

func hasClass(err error, class ErrorClass) bool {
	var e *EngineError
	if errors.As(err, &e) {
		return e.Class == class
	}
	return false
}

// IsRejected returns true if the run failed on fatal diagnostics.
func IsRejected(err error) bool { return hasClass(err, ErrorClassRejected) }

// IsInput returns true if the run failed reading its inputs.
func IsInput(err error) bool { return hasClass(err, ErrorClassInput) }

// IsHook returns true if a user hook failed.
func IsHook(err error) bool { return hasClass(err, ErrorClassHook) }

// DiagnosticsOf extracts the diagnostics carried by a rejected-run error.
func DiagnosticsOf(err error) (Diagnostics, bool) {
	var de *DiagnosticsError
	if errors.As(err, &de) {
		return de.Diagnostics, true
	}
	return nil, false
}

// Common error codes.
const (
	ErrCodeRejected    = "PLAN_REJECTED"
	ErrCodeDecode      = "DECODE_ERROR"
	ErrCodeSchema      = "SCHEMA_ERROR"
	ErrCodeNamingHook  = "NAMING_HOOK_FAILED"
	ErrCodePolicy      = "POLICY_FAILED"
	ErrCodeCanceled    = "CANCELED"
	ErrCodeInternal    = "INTERNAL_ERROR"
	ErrCodeStoreFailed = "STORE_FAILED"
)
