package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"fmt"
	"net/http"
	"time"

	"github.com/diagnosis/tourbook/pkg/logger"
)

const IdempotencyTTL = 24 * time.Hour

type CachedResponse struct {
	Status int
	Body   string
}

// IdempotencyStore keeps the first successful response per key. Get returns
// nil, nil for a key it has not seen.
type IdempotencyStore interface {
	Get(ctx context.Context, keyHash string) (*CachedResponse, error)
	Set(ctx context.Context, keyHash string, resp CachedResponse, ttl time.Duration) error
}

// IdempotencyMiddleware replays the stored response for a POST carrying an
// already-seen Idempotency-Key header. Keys are scoped to the request path.
func IdempotencyMiddleware(store IdempotencyStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				next.ServeHTTP(w, r)
				return
			}

			key := r.Header.Get("Idempotency-Key")
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}

			// Hash the key for privacy
			hashedKey := fmt.Sprintf("%x", sha256.Sum256([]byte(r.URL.Path+"\x00"+key)))

			existing, err := store.Get(r.Context(), hashedKey)
			if err != nil {
				logger.WarnContext(r.Context(), "idempotency lookup failed", "error", err)
			}
			if existing != nil {
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("Idempotent-Replayed", "true")
				w.WriteHeader(existing.Status)
				w.Write([]byte(existing.Body))
				return
			}

			recorder := &responseRecorder{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(recorder, r)

			if recorder.statusCode >= 200 && recorder.statusCode < 300 {
				resp := CachedResponse{Status: recorder.statusCode, Body: recorder.body.String()}
				if err := store.Set(r.Context(), hashedKey, resp, IdempotencyTTL); err != nil {
					logger.WarnContext(r.Context(), "idempotency store failed", "error", err)
				}
			}
		})
	}
}

type responseRecorder struct {
	http.ResponseWriter
	statusCode int
	body       bytes.Buffer
}

func (r *responseRecorder) WriteHeader(statusCode int) {
	r.statusCode = statusCode
	r.ResponseWriter.WriteHeader(statusCode)
}

func (r *responseRecorder) Write(body []byte) (int, error) {
	r.body.Write(body)
	return r.ResponseWriter.Write(body)
}
