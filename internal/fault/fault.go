// Package fault defines the error taxonomy shared by every Sensoria surface.
//
// Errors carry a machine-readable Kind, a human message, an optional hint and
// the trace ID of the request that produced them. Wrap low-level errors with
// [Wrap] so the kind survives the usual fmt.Errorf("%w") chains; recover the
// kind at the edge with [KindOf].
package fault

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error for callers and for HTTP status mapping.
type Kind string

const (
	InvalidArgument     Kind = "invalid_argument"
	NotFound            Kind = "not_found"
	Unauthorized        Kind = "unauthorized"
	QuotaExceeded       Kind = "quota_exceeded"
	Incompatible        Kind = "incompatible"
	Timeout             Kind = "timeout"
	UpstreamUnavailable Kind = "upstream_unavailable"
	Internal            Kind = "internal"
)

// Error is the concrete error type carried across component boundaries.
type Error struct {
	// Kind classifies the failure.
	Kind Kind `json:"kind"`

	// Message is safe to show to clients.
	Message string `json:"message"`

	// Hint optionally tells the caller how to fix the request.
	Hint string `json:"hint,omitempty"`

	// TraceID links the error to the request trace. Filled in by the
	// gateway when absent.
	TraceID string `json:"trace_id,omitempty"`

	// cause is the wrapped error, if any. Never serialized.
	cause error
}

// New creates an Error with the given kind and formatted message.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap annotates err with a kind and message while keeping it unwrappable.
// A nil err returns nil.
func Wrap(kind Kind, err error, format string, args ...any) *Error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), cause: err}
}

// WithHint returns a copy of e carrying the given hint.
func (e *Error) WithHint(hint string) *Error {
	cp := *e
	cp.Hint = hint
	return &cp
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap exposes the cause for errors.Is / errors.As chains.
func (e *Error) Unwrap() error { return e.cause }

// KindOf extracts the Kind from an error chain. Context deadline errors map
// to Timeout; everything unrecognised is Internal.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Timeout
	}
	return Internal
}

// IsTransient reports whether an error of this kind is worth retrying.
// Permanent kinds (incompatible, unauthorized, invalid_argument, not_found,
// quota_exceeded) must not be retried.
func (k Kind) IsTransient() bool {
	switch k {
	case Timeout, UpstreamUnavailable, Internal:
		return true
	}
	return false
}

// HTTPStatus maps a kind to its HTTP status code.
func (k Kind) HTTPStatus() int {
	switch k {
	case InvalidArgument:
		return http.StatusBadRequest
	case NotFound:
		return http.StatusNotFound
	case Unauthorized:
		return http.StatusUnauthorized
	case QuotaExceeded:
		return http.StatusTooManyRequests
	case Incompatible:
		return http.StatusUnprocessableEntity
	case Timeout:
		return http.StatusGatewayTimeout
	case UpstreamUnavailable:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
