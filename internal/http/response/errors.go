package response

import (
	"errors"
	"net/http"
	"sync/atomic"

	goerrors "github.com/goliatone/go-errors"

	"github.com/diagnosis/tourbook/internal/apperr"
	"github.com/diagnosis/tourbook/pkg/logger"
)

const msgUnexpected = "Something went wrong!"

var development atomic.Bool

// SetDevelopment makes error responses carry the underlying error text.
func SetDevelopment(on bool) {
	development.Store(on)
}

// ErrorResponse is the body of every failed request. Status is "fail" for
// client errors and "error" for server errors.
type ErrorResponse struct {
	Status  string       `json:"status"`
	Message string       `json:"message"`
	Code    string       `json:"code,omitempty"`
	Errors  []FieldError `json:"errors,omitempty"`
	Detail  string       `json:"detail,omitempty"`
}

type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func statusWord(code int) string {
	if code >= 500 {
		return "error"
	}
	return "fail"
}

// Error is the single error boundary. Classified errors keep their message;
// anything else is logged and answered with a generic 500.
func Error(w http.ResponseWriter, r *http.Request, err error) {
	if err == nil {
		return
	}

	var maxBytes *http.MaxBytesError
	if errors.As(err, &maxBytes) {
		err = apperr.BadInput("Request body too large")
	}

	status := apperr.Status(err)
	body := ErrorResponse{Status: statusWord(status), Message: msgUnexpected, Code: apperr.CodeInternal}

	rich, ok := apperr.From(err)
	if ok && apperr.IsOperational(err) {
		body.Message = rich.Message
		if rich.TextCode != "" {
			body.Code = rich.TextCode
		}
		for _, fe := range rich.AllValidationErrors() {
			body.Errors = append(body.Errors, FieldError{Field: fe.Field, Message: fe.Message})
		}
	}

	if status >= 500 {
		logger.ErrorContext(r.Context(), "Request failed",
			"error", err,
			"status", status,
			"method", r.Method,
			"path", r.URL.Path,
		)
	} else {
		logger.DebugContext(r.Context(), "Request rejected", "error", err.Error(), "status", status)
	}

	if development.Load() {
		body.Detail = detail(err)
	}
	JSON(w, status, body)
}

// detail is the error text followed by the stack it was raised from, or the
// stack of the failing handler when the error carries none.
func detail(err error) string {
	stack := goerrors.CaptureStackTrace(2)
	if rich, ok := apperr.From(err); ok && len(rich.StackTrace) > 0 {
		stack = rich.StackTrace
	}
	return err.Error() + "\n\nStack Trace:\n" + stack.String()
}

// Fail writes a client error without going through the taxonomy.
func Fail(w http.ResponseWriter, status int, message string) {
	JSON(w, status, ErrorResponse{Status: statusWord(status), Message: message})
}
