// Package apperr defines the error kinds surfaced by the order and analytics services.
package apperr

import (
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"
)

// Kind is a stable, client-visible error category.
type Kind string

const (
	KindValidation          Kind = "ValidationError"
	KindNotFound            Kind = "NotFoundError"
	KindUnauthorized        Kind = "Unauthorized"
	KindInvalidTransition   Kind = "InvalidTransition"
	KindPaymentRequired     Kind = "PaymentRequired"
	KindConflict            Kind = "Conflict"
	KindInsufficientData    Kind = "InsufficientData"
	KindExternalProcess     Kind = "ExternalProcessError"
	KindParse               Kind = "ParseError"
	KindForecastComputation Kind = "ForecastComputationError"
	KindRateLimited         Kind = "RateLimited"
	KindInternal            Kind = "InternalError"
)

// Error carries a Kind together with a human readable message.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is an *Error of the same kind, so callers can write
// errors.Is(err, apperr.New(apperr.KindConflict, "")).
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

// New builds an Error with a formatted message.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind and message to an underlying error.
func Wrap(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

func Validation(format string, args ...any) *Error { return New(KindValidation, format, args...) }
func NotFound(format string, args ...any) *Error   { return New(KindNotFound, format, args...) }
func Unauthorized(format string, args ...any) *Error {
	return New(KindUnauthorized, format, args...)
}
func InvalidTransition(format string, args ...any) *Error {
	return New(KindInvalidTransition, format, args...)
}
func PaymentRequired(format string, args ...any) *Error {
	return New(KindPaymentRequired, format, args...)
}
func Conflict(format string, args ...any) *Error { return New(KindConflict, format, args...) }

// KindOf returns the kind of err, or KindInternal for errors that carry none.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// IsKind reports whether err (or anything it wraps) has the given kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// MessageOf returns the client-facing message for err. Errors without a kind
// are reported generically so internals do not leak.
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return "Internal server error"
}

// HTTPStatus maps a kind onto the status code returned by the API.
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindValidation:
		return fiber.StatusBadRequest
	case KindUnauthorized:
		return fiber.StatusForbidden
	case KindNotFound:
		return fiber.StatusNotFound
	case KindInvalidTransition, KindConflict:
		return fiber.StatusConflict
	case KindPaymentRequired:
		return fiber.StatusPaymentRequired
	case KindInsufficientData:
		return fiber.StatusUnprocessableEntity
	case KindRateLimited:
		return fiber.StatusTooManyRequests
	case KindExternalProcess, KindParse, KindForecastComputation:
		return fiber.StatusBadGateway
	default:
		return fiber.StatusInternalServerError
	}
}
