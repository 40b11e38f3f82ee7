// Package apperr is the error taxonomy shared by services and the HTTP error
// boundary. Every kind is a *goerrors.Error carrying a category, an HTTP code
// and a stable text code.
package apperr

import (
	"errors"
	"net/http"
	"sync/atomic"

	goerrors "github.com/goliatone/go-errors"
)

const (
	CodeValidation       = "VALIDATION_ERROR"
	CodeDuplicate        = "DUPLICATE_VALUE"
	CodeBadInput         = "INVALID_INPUT"
	CodeNotFound         = "NOT_FOUND"
	CodeUnauthenticated  = "UNAUTHENTICATED"
	CodeExpiredToken     = "EXPIRED_TOKEN"
	CodeInvalidToken     = "INVALID_TOKEN"
	CodeForbidden        = "FORBIDDEN"
	CodeConflict         = "CONFLICT"
	CodeInvalidSignature = "INVALID_SIGNATURE"
	CodeOperational      = "OPERATIONAL_ERROR"
	CodeRateLimited      = "RATE_LIMIT_EXCEEDED"
	CodeInternal         = "INTERNAL_ERROR"
)

var stackTraces atomic.Bool

// SetStackTraces makes every constructor below record the caller's stack.
func SetStackTraces(on bool) {
	stackTraces.Store(on)
}

func traced(e *goerrors.Error) *goerrors.Error {
	if stackTraces.Load() {
		e.StackTrace = goerrors.CaptureStackTrace(2)
	}
	return e
}

// Validation reports every violated rule at once.
func Validation(message string, fields ...goerrors.FieldError) *goerrors.Error {
	return traced(goerrors.NewValidation(message, fields...).
		WithCode(http.StatusBadRequest).
		WithTextCode(CodeValidation).
		WithSeverity(goerrors.SeverityError))
}

func Field(field, message string) goerrors.FieldError {
	return goerrors.FieldError{Field: field, Message: message}
}

// Duplicate is the ValidationError a uniqueness violation turns into.
func Duplicate(field string) *goerrors.Error {
	msg := "Duplicate field value: " + field + ". Please use another value"
	return traced(goerrors.NewValidation(msg, Field(field, "already in use")).
		WithCode(http.StatusBadRequest).
		WithTextCode(CodeDuplicate))
}

func BadInput(message string) *goerrors.Error {
	return traced(goerrors.New(message, goerrors.CategoryBadInput).
		WithCode(http.StatusBadRequest).
		WithTextCode(CodeBadInput))
}

func NotFound(message string) *goerrors.Error {
	return traced(goerrors.New(message, goerrors.CategoryNotFound).
		WithCode(http.StatusNotFound).
		WithTextCode(CodeNotFound))
}

func Unauthenticated(message string) *goerrors.Error {
	return traced(goerrors.New(message, goerrors.CategoryAuth).
		WithCode(http.StatusUnauthorized).
		WithTextCode(CodeUnauthenticated))
}

func Forbidden(message string) *goerrors.Error {
	return traced(goerrors.New(message, goerrors.CategoryAuthz).
		WithCode(http.StatusForbidden).
		WithTextCode(CodeForbidden))
}

func Conflict(message string) *goerrors.Error {
	return traced(goerrors.New(message, goerrors.CategoryConflict).
		WithCode(http.StatusConflict).
		WithTextCode(CodeConflict))
}

func InvalidSignature(source error) *goerrors.Error {
	return traced(goerrors.Wrap(source, goerrors.CategoryBadInput, "Webhook error: "+source.Error()).
		WithCode(http.StatusBadRequest).
		WithTextCode(CodeInvalidSignature))
}

// Operational marks an expected failure of a collaborator (mail, payments).
// Its message is safe to show the caller.
func Operational(source error, message string) *goerrors.Error {
	if source == nil {
		source = errors.New(message)
	}
	return traced(goerrors.Wrap(source, goerrors.CategoryOperation, message).
		WithCode(http.StatusInternalServerError).
		WithTextCode(CodeOperational))
}

func RateLimited(message string) *goerrors.Error {
	return traced(goerrors.New(message, goerrors.CategoryRateLimit).
		WithCode(http.StatusTooManyRequests).
		WithTextCode(CodeRateLimited))
}

func Internal(source error, message string) *goerrors.Error {
	if source == nil {
		source = errors.New(message)
	}
	return traced(goerrors.Wrap(source, goerrors.CategoryInternal, message).
		WithCode(http.StatusInternalServerError).
		WithTextCode(CodeInternal))
}

// From finds the taxonomy error in err's chain.
func From(err error) (*goerrors.Error, bool) {
	var rich *goerrors.Error
	if err == nil || !goerrors.As(err, &rich) {
		return nil, false
	}
	return rich, true
}

// Status maps an error to its HTTP status; unknown errors are 500.
func Status(err error) int {
	rich, ok := From(err)
	if !ok {
		return http.StatusInternalServerError
	}
	if rich.Code != 0 {
		return rich.Code
	}
	switch rich.Category {
	case goerrors.CategoryValidation, goerrors.CategoryBadInput:
		return http.StatusBadRequest
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryAuth:
		return http.StatusUnauthorized
	case goerrors.CategoryAuthz:
		return http.StatusForbidden
	case goerrors.CategoryConflict:
		return http.StatusConflict
	case goerrors.CategoryRateLimit:
		return http.StatusTooManyRequests
	case goerrors.CategoryExternal:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// IsOperational reports whether err's message may cross the API boundary.
// Internal and unclassified errors are not.
func IsOperational(err error) bool {
	rich, ok := From(err)
	if !ok {
		return false
	}
	return rich.Category != goerrors.CategoryInternal
}

func Is(err error, category goerrors.Category) bool {
	rich, ok := From(err)
	return ok && rich.Category == category
}
