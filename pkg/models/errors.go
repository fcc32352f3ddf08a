package models

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a gateway failure. Every failure that crosses a
// component boundary carries a stable kind and code; stack traces never do.
type ErrorKind string

const (
	KindUnsupportedProtocol ErrorKind = "unsupported_protocol"
	KindParseError          ErrorKind = "parse_error"
	KindNormalizeError      ErrorKind = "normalize_error"
	KindNoMatch             ErrorKind = "no_match"
	KindDimensionMismatch   ErrorKind = "dimension_mismatch"
	KindRoutingError        ErrorKind = "routing_error"
	KindTimeout             ErrorKind = "timeout"
	KindExecutionError      ErrorKind = "execution_error"
	KindPoolExhausted       ErrorKind = "pool_exhausted"
	KindCredentialMissing   ErrorKind = "credential_missing"
	KindAuditHandlerError   ErrorKind = "audit_handler_error"
)

// Error is the gateway's boundary error: a stable code, a human message,
// and an optional suggestion. NoMatch errors additionally carry up to
// three below-threshold candidates so the caller can reprompt or escalate.
type Error struct {
	Kind         ErrorKind   `json:"kind"`
	Code         string      `json:"code"`
	Message      string      `json:"message"`
	Suggestion   string      `json:"suggestion,omitempty"`
	Alternatives []ToolScore `json:"alternatives,omitempty"`

	cause error
}

// NewError creates a gateway error.
func NewError(kind ErrorKind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

// WrapError creates a gateway error wrapping an underlying cause.
func WrapError(kind ErrorKind, code, message string, cause error) *Error {
	return &Error{Kind: kind, Code: code, Message: message, cause: cause}
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes the underlying cause for errors.Is/As chains.
func (e *Error) Unwrap() error { return e.cause }

// WithSuggestion attaches a remediation hint and returns the error.
func (e *Error) WithSuggestion(s string) *Error {
	e.Suggestion = s
	return e
}

// IsKind reports whether err is (or wraps) a gateway Error of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Kind == kind
	}
	return false
}

// AsError extracts the gateway Error from err, or wraps err as an
// execution error so callers always see the boundary shape.
func AsError(err error) *Error {
	var ge *Error
	if errors.As(err, &ge) {
		return ge
	}
	return WrapError(KindExecutionError, "INTERNAL", "internal error", err)
}
