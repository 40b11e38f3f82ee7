package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/diagnosis/tourbook/internal/apperr"
	"github.com/diagnosis/tourbook/internal/domain"
	"github.com/diagnosis/tourbook/internal/http/response"
	"github.com/diagnosis/tourbook/pkg/logger"
)

const CookieName = "jwt"

const msgNoPermission = "You do not have permission to perform this action"

type ctxKey string

const ctxUser ctxKey = "user"

// Authenticator resolves a session token to its active user.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*domain.User, error)
}

// TokenFrom reads the bearer header first, then the session cookie.
func TokenFrom(r *http.Request) string {
	if authz := r.Header.Get("Authorization"); strings.HasPrefix(authz, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(authz, "Bearer "))
	}
	if c, err := r.Cookie(CookieName); err == nil {
		return c.Value
	}
	return ""
}

func withUser(r *http.Request, u *domain.User) *http.Request {
	ctx := context.WithValue(r.Context(), ctxUser, u)
	ctx = context.WithValue(ctx, logger.UserIDKey, u.ID)
	return r.WithContext(ctx)
}

// Protect rejects requests without a valid session.
func Protect(auth Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, err := auth.Authenticate(r.Context(), TokenFrom(r))
			if err != nil {
				response.Error(w, r, err)
				return
			}
			next.ServeHTTP(w, withUser(r, user))
		})
	}
}

// IsLoggedIn attaches the user when the session is valid and never rejects.
func IsLoggedIn(auth Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := TokenFrom(r)
			if token == "" || token == "loggedout" {
				next.ServeHTTP(w, r)
				return
			}
			if user, err := auth.Authenticate(r.Context(), token); err == nil {
				r = withUser(r, user)
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RestrictTo must run after Protect.
func RestrictTo(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user := CurrentUser(r.Context())
			if user == nil || !user.HasRole(roles...) {
				response.Error(w, r, apperr.Forbidden(msgNoPermission))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func CurrentUser(ctx context.Context) *domain.User {
	u, _ := ctx.Value(ctxUser).(*domain.User)
	return u
}

// WithUser is for tests and internal callers that already hold a user.
func WithUser(ctx context.Context, u *domain.User) context.Context {
	return context.WithValue(ctx, ctxUser, u)
}
