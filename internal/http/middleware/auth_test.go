package middleware_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/diagnosis/tourbook/internal/apperr"
	"github.com/diagnosis/tourbook/internal/domain"
	"github.com/diagnosis/tourbook/internal/http/middleware"
	"github.com/diagnosis/tourbook/pkg/logger"
)

// ---------- Mocks ----------

type mockAuth struct {
	users map[string]*domain.User // token -> user
	calls int
}

func (m *mockAuth) Authenticate(_ context.Context, token string) (*domain.User, error) {
	m.calls++
	if token == "" {
		return nil, apperr.Unauthenticated("You're not logged in! Please log in to get access")
	}
	if u, ok := m.users[token]; ok {
		return u, nil
	}
	return nil, apperr.Unauthenticated("Invalid token, please log in again!")
}

func newRouter(auth *mockAuth) chi.Router {
	whoami := func(w http.ResponseWriter, r *http.Request) {
		u := middleware.CurrentUser(r.Context())
		name := "anonymous"
		if u != nil {
			name = u.Name
			if r.Context().Value(logger.UserIDKey) != u.ID {
				name += " (no log field)"
			}
		}
		_, _ = w.Write([]byte(name))
	}

	r := chi.NewRouter()
	r.With(middleware.IsLoggedIn(auth)).Get("/view", whoami)
	r.Group(func(r chi.Router) {
		r.Use(middleware.Protect(auth))
		r.Get("/me", whoami)
		r.With(middleware.RestrictTo(domain.RoleAdmin, domain.RoleLeadGuide)).Delete("/tours/1", whoami)
	})
	return r
}

func fixture() *mockAuth {
	return &mockAuth{users: map[string]*domain.User{
		"user-token":  {ID: 7, Name: "Laura", Role: domain.RoleUser},
		"admin-token": {ID: 1, Name: "Jonas", Role: domain.RoleAdmin},
	}}
}

func do(t *testing.T, srv *httptest.Server, method, path string, prep func(*http.Request)) (*http.Response, string) {
	t.Helper()
	req, err := http.NewRequest(method, srv.URL+path, nil)
	require.NoError(t, err)
	if prep != nil {
		prep(req)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(body)
}

func bearer(token string) func(*http.Request) {
	return func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+token) }
}

func TestProtect(t *testing.T) {
	srv := httptest.NewServer(newRouter(fixture()))
	defer srv.Close()

	resp, body := do(t, srv, http.MethodGet, "/me", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	var fail map[string]any
	require.NoError(t, json.Unmarshal([]byte(body), &fail))
	assert.Equal(t, "fail", fail["status"])
	assert.Equal(t, "You're not logged in! Please log in to get access", fail["message"])

	resp, _ = do(t, srv, http.MethodGet, "/me", bearer("forged"))
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, body = do(t, srv, http.MethodGet, "/me", bearer("user-token"))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Laura", body)

	resp, body = do(t, srv, http.MethodGet, "/me", func(r *http.Request) {
		r.AddCookie(&http.Cookie{Name: middleware.CookieName, Value: "admin-token"})
	})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Jonas", body)
}

func TestRestrictTo(t *testing.T) {
	srv := httptest.NewServer(newRouter(fixture()))
	defer srv.Close()

	resp, body := do(t, srv, http.MethodDelete, "/tours/1", bearer("user-token"))
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Contains(t, body, "You do not have permission to perform this action")

	resp, _ = do(t, srv, http.MethodDelete, "/tours/1", bearer("admin-token"))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestIsLoggedIn_NeverRejects(t *testing.T) {
	auth := fixture()
	srv := httptest.NewServer(newRouter(auth))
	defer srv.Close()

	resp, body := do(t, srv, http.MethodGet, "/view", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "anonymous", body)
	assert.Zero(t, auth.calls)

	resp, body = do(t, srv, http.MethodGet, "/view", func(r *http.Request) {
		r.AddCookie(&http.Cookie{Name: middleware.CookieName, Value: "loggedout"})
	})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "anonymous", body)

	_, body = do(t, srv, http.MethodGet, "/view", bearer("garbage"))
	assert.Equal(t, "anonymous", body)

	_, body = do(t, srv, http.MethodGet, "/view", bearer("user-token"))
	assert.Equal(t, "Laura", body)
}

func TestTokenFrom_PrefersHeader(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer header-token")
	req.AddCookie(&http.Cookie{Name: middleware.CookieName, Value: "cookie-token"})
	assert.Equal(t, "header-token", middleware.TokenFrom(req))
}
