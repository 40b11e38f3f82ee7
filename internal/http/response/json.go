// Package response writes the JSON envelopes every handler answers with.
package response

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/diagnosis/tourbook/internal/apperr"
	"github.com/diagnosis/tourbook/pkg/logger"
)

// Envelope is the success body: {"status":"success","results":n,"data":{...}}.
type Envelope struct {
	Status  string `json:"status"`
	Token   string `json:"token,omitempty"`
	Results *int   `json:"results,omitempty"`
	Data    any    `json:"data"`
}

func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("Failed to encode response", "error", err)
	}
}

// Success wraps one document as {"data":{"data":doc}}.
func Success(w http.ResponseWriter, status int, doc any) {
	JSON(w, status, Envelope{Status: "success", Data: map[string]any{"data": doc}})
}

// Named wraps data under a chosen key, e.g. {"data":{"user":u}}.
func Named(w http.ResponseWriter, status int, key string, doc any) {
	JSON(w, status, Envelope{Status: "success", Data: map[string]any{key: doc}})
}

func List(w http.ResponseWriter, docs any, count int) {
	JSON(w, http.StatusOK, Envelope{Status: "success", Results: &count, Data: map[string]any{"data": docs}})
}

// WithToken answers an authentication call: token at the top level, the
// user under data.
func WithToken(w http.ResponseWriter, status int, token string, user any) {
	JSON(w, status, Envelope{Status: "success", Token: token, Data: map[string]any{"user": user}})
}

func NoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

// ReadBody returns the raw request body. An empty body is not an error.
func ReadBody(r *http.Request) ([]byte, error) {
	if r.Body == nil {
		return nil, nil
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var maxBytes *http.MaxBytesError
		if errors.As(err, &maxBytes) {
			return nil, apperr.BadInput("Request body too large")
		}
		return nil, apperr.BadInput("Could not read request body")
	}
	return body, nil
}

// Decode reads a JSON body into dst. An empty body leaves dst untouched.
func Decode(r *http.Request, dst any) error {
	body, err := ReadBody(r)
	if err != nil {
		return err
	}
	if len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return apperr.BadInput("Invalid JSON body: " + err.Error())
	}
	return nil
}
