// Package errors provides the unified error model used across all layers.
// Every failure is classified by a Kind; transports map kinds to status
// codes and wire payloads without inspecting messages.
package errors

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error for handling and response mapping.
type Kind string

const (
	// Caller errors, surfaced directly.
	KindInvalidIdentifier Kind = "invalid_identifier"
	KindMissingEndpoint   Kind = "missing_endpoint"
	KindNotFound          Kind = "not_found"

	// Subscriber stream conditions.
	KindLagExceeded   Kind = "lag_exceeded"
	KindFanoutDropped Kind = "fanout_dropped"

	// Ingestion failures; the engine keeps serving the prior graph.
	KindParserError     Kind = "parser_error"
	KindBatchRolledBack Kind = "batch_rolled_back"

	// Operation-level; no state change.
	KindCancelled        Kind = "cancelled"
	KindDeadlineExceeded Kind = "deadline_exceeded"

	// Unexpected. Logged with context, never leaked verbatim.
	KindInternal Kind = "internal"
)

// Error carries a kind, a human-readable message, optional details for the
// wire, and an optional underlying cause.
type Error struct {
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
	Cause   error  `json:"-"`
}

func (e *Error) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Kind, e.Message, e.Details)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

// Unwrap lets errors.Is and errors.As reach the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// New constructs an error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf constructs an error of the given kind with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind and message to an underlying cause. A nil cause
// yields nil so call sites can wrap unconditionally.
func Wrap(cause error, kind Kind, message string) *Error {
	if cause == nil {
		return nil
	}
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// WithDetails returns a copy carrying wire-safe detail text.
func (e *Error) WithDetails(details string) *Error {
	clone := *e
	clone.Details = details
	return &clone
}

func InvalidIdentifier(message string) *Error { return New(KindInvalidIdentifier, message) }
func MissingEndpoint(message string) *Error   { return New(KindMissingEndpoint, message) }
func NotFound(message string) *Error          { return New(KindNotFound, message) }
func ParserError(message string) *Error       { return New(KindParserError, message) }
func BatchRolledBack(message string) *Error   { return New(KindBatchRolledBack, message) }
func Internal(message string) *Error          { return New(KindInternal, message) }

// KindOf reports the kind of err, or KindInternal for foreign errors.
// Context errors are translated to their operation-level kinds.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	if errors.Is(err, context.Canceled) {
		return KindCancelled
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindDeadlineExceeded
	}
	return KindInternal
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// HTTPStatus maps an error kind to a response status.
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindInvalidIdentifier, KindMissingEndpoint:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindCancelled:
		return 499
	case KindDeadlineExceeded:
		return http.StatusGatewayTimeout
	case KindParserError, KindBatchRolledBack:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
