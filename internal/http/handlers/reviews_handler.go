package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/diagnosis/tourbook/internal/crud"
	"github.com/diagnosis/tourbook/internal/domain"
	"github.com/diagnosis/tourbook/internal/http/middleware"
	"github.com/diagnosis/tourbook/internal/http/response"
	"github.com/diagnosis/tourbook/internal/query"
	"github.com/diagnosis/tourbook/internal/service"
)

// ReviewWriter applies the ownership and booking rules to review writes.
type ReviewWriter interface {
	Create(ctx context.Context, user *domain.User, tourID int64, body []byte) (*domain.Review, error)
	Update(ctx context.Context, user *domain.User, id int64, body []byte) (*domain.Review, error)
	Delete(ctx context.Context, user *domain.User, id int64) error
}

// ReviewHandler serves /api/v1/reviews and /api/v1/tours/{tourId}/reviews.
type ReviewHandler struct {
	crud    Resource[domain.Review]
	reviews ReviewWriter
	auth    middleware.Authenticator
}

func NewReviewHandler(engine *crud.Engine[domain.Review], reviews ReviewWriter, auth middleware.Authenticator) *ReviewHandler {
	return &ReviewHandler{
		crud: Resource[domain.Review]{
			Engine: engine,
			Base: func(r *http.Request) (query.Filter, error) {
				tourID, err := optionalID(r, "tourId")
				if err != nil {
					return nil, err
				}
				return service.TourFilter(tourID), nil
			},
		},
		reviews: reviews,
		auth:    auth,
	}
}

func (h *ReviewHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Protect(h.auth))

	r.Get("/", h.crud.List)
	r.With(middleware.RestrictTo(domain.RoleUser)).Post("/", h.create)
	r.Get("/{id}", h.crud.Get)
	r.With(middleware.RestrictTo(domain.RoleUser, domain.RoleAdmin)).Patch("/{id}", h.update)
	r.With(middleware.RestrictTo(domain.RoleUser, domain.RoleAdmin)).Delete("/{id}", h.delete)
	return r
}

func (h *ReviewHandler) create(w http.ResponseWriter, r *http.Request) {
	tourID, err := optionalID(r, "tourId")
	if err != nil {
		response.Error(w, r, err)
		return
	}
	body, err := response.ReadBody(r)
	if err != nil {
		response.Error(w, r, err)
		return
	}
	review, err := h.reviews.Create(r.Context(), middleware.CurrentUser(r.Context()), tourID, body)
	if err != nil {
		response.Error(w, r, err)
		return
	}
	response.Success(w, http.StatusCreated, review)
}

func (h *ReviewHandler) update(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		response.Error(w, r, err)
		return
	}
	body, err := response.ReadBody(r)
	if err != nil {
		response.Error(w, r, err)
		return
	}
	review, err := h.reviews.Update(r.Context(), middleware.CurrentUser(r.Context()), id, body)
	if err != nil {
		response.Error(w, r, err)
		return
	}
	response.Success(w, http.StatusOK, review)
}

func (h *ReviewHandler) delete(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		response.Error(w, r, err)
		return
	}
	if err := h.reviews.Delete(r.Context(), middleware.CurrentUser(r.Context()), id); err != nil {
		response.Error(w, r, err)
		return
	}
	response.NoContent(w)
}
