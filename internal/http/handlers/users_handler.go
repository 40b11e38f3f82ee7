package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/diagnosis/tourbook/internal/crud"
	"github.com/diagnosis/tourbook/internal/domain"
	"github.com/diagnosis/tourbook/internal/http/middleware"
	"github.com/diagnosis/tourbook/internal/http/response"
	"github.com/diagnosis/tourbook/internal/service"
	"github.com/diagnosis/tourbook/pkg/config"
	"github.com/diagnosis/tourbook/pkg/logger"
)

const loggedOut = "loggedout"

// UserHandler serves /api/v1/users: the account lifecycle for everyone and
// user administration for admins.
type UserHandler struct {
	auth   service.AuthService
	crud   Resource[domain.User]
	config *config.Config
}

func NewUserHandler(auth service.AuthService, engine *crud.Engine[domain.User], config *config.Config) *UserHandler {
	return &UserHandler{auth: auth, crud: Resource[domain.User]{Engine: engine}, config: config}
}

func (h *UserHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/signup", h.signup)
	r.Post("/login", h.login)
	r.Get("/logout", h.logout)
	r.Post("/forgotPassword", h.forgotPassword)
	r.Patch("/resetPassword/{token}", h.resetPassword)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Protect(h.auth))
		r.Patch("/updateMyPassword", h.updatePassword)
		r.Get("/me", h.me)
		r.Patch("/updateMe", h.updateMe)
		r.Delete("/deleteMe", h.deleteMe)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RestrictTo(domain.RoleAdmin))
			r.Get("/", h.crud.List)
			r.Post("/", h.createDisabled)
			r.Get("/{id}", h.crud.Get)
			r.Patch("/{id}", h.crud.Update)
			r.Delete("/{id}", h.crud.Delete)
		})
	})
	return r
}

func (h *UserHandler) setCookie(w http.ResponseWriter, value string, ttl time.Duration) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.CookieName,
		Value:    value,
		Path:     "/",
		Expires:  time.Now().Add(ttl),
		HttpOnly: true,
		Secure:   !h.config.IsDevelopment(),
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *UserHandler) sendToken(w http.ResponseWriter, status int, user *domain.User, token string) {
	ttl := h.config.Auth.CookieTTL
	if ttl <= 0 {
		ttl = h.auth.TokenTTL()
	}
	h.setCookie(w, token, ttl)
	response.WithToken(w, status, token, user)
}

func (h *UserHandler) signup(w http.ResponseWriter, r *http.Request) {
	var req domain.SignupRequest
	if err := response.Decode(r, &req); err != nil {
		response.Error(w, r, err)
		return
	}
	user, token, err := h.auth.Signup(r.Context(), req)
	if err != nil {
		response.Error(w, r, err)
		return
	}
	logger.InfoContext(r.Context(), "User signed up", "user_id", user.ID)
	h.sendToken(w, http.StatusCreated, user, token)
}

func (h *UserHandler) login(w http.ResponseWriter, r *http.Request) {
	var req domain.LoginRequest
	if err := response.Decode(r, &req); err != nil {
		response.Error(w, r, err)
		return
	}
	user, token, err := h.auth.Login(r.Context(), req)
	if err != nil {
		response.Error(w, r, err)
		return
	}
	h.sendToken(w, http.StatusOK, user, token)
}

func (h *UserHandler) logout(w http.ResponseWriter, _ *http.Request) {
	h.setCookie(w, loggedOut, 10*time.Second)
	response.JSON(w, http.StatusOK, map[string]string{"status": "success"})
}

func (h *UserHandler) forgotPassword(w http.ResponseWriter, r *http.Request) {
	var req domain.ForgotPasswordRequest
	if err := response.Decode(r, &req); err != nil {
		response.Error(w, r, err)
		return
	}
	if err := h.auth.ForgotPassword(r.Context(), req.Email); err != nil {
		response.Error(w, r, err)
		return
	}
	response.JSON(w, http.StatusOK, map[string]string{"status": "success", "message": "Token sent to email!"})
}

func (h *UserHandler) resetPassword(w http.ResponseWriter, r *http.Request) {
	var req domain.ResetPasswordRequest
	if err := response.Decode(r, &req); err != nil {
		response.Error(w, r, err)
		return
	}
	user, token, err := h.auth.ResetPassword(r.Context(), chi.URLParam(r, "token"), req)
	if err != nil {
		response.Error(w, r, err)
		return
	}
	h.sendToken(w, http.StatusOK, user, token)
}

func (h *UserHandler) updatePassword(w http.ResponseWriter, r *http.Request) {
	var req domain.UpdatePasswordRequest
	if err := response.Decode(r, &req); err != nil {
		response.Error(w, r, err)
		return
	}
	user, token, err := h.auth.UpdatePassword(r.Context(), middleware.CurrentUser(r.Context()), req)
	if err != nil {
		response.Error(w, r, err)
		return
	}
	h.sendToken(w, http.StatusOK, user, token)
}

func (h *UserHandler) me(w http.ResponseWriter, r *http.Request) {
	user, err := h.crud.Engine.GetOne(r.Context(), middleware.CurrentUser(r.Context()).ID, false)
	if err != nil {
		response.Error(w, r, err)
		return
	}
	response.Success(w, http.StatusOK, user)
}

func (h *UserHandler) updateMe(w http.ResponseWriter, r *http.Request) {
	var req domain.UpdateMeRequest
	if err := response.Decode(r, &req); err != nil {
		response.Error(w, r, err)
		return
	}
	user, err := h.auth.UpdateMe(r.Context(), middleware.CurrentUser(r.Context()), req)
	if err != nil {
		response.Error(w, r, err)
		return
	}
	response.Named(w, http.StatusOK, "user", user)
}

func (h *UserHandler) deleteMe(w http.ResponseWriter, r *http.Request) {
	if err := h.auth.DeleteMe(r.Context(), middleware.CurrentUser(r.Context()).ID); err != nil {
		response.Error(w, r, err)
		return
	}
	response.NoContent(w)
}

func (h *UserHandler) createDisabled(w http.ResponseWriter, _ *http.Request) {
	response.Fail(w, http.StatusBadRequest, "This route is not defined! Please use /signup instead")
}
