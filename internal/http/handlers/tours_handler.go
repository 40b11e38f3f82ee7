package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/diagnosis/tourbook/internal/crud"
	"github.com/diagnosis/tourbook/internal/domain"
	"github.com/diagnosis/tourbook/internal/http/middleware"
	"github.com/diagnosis/tourbook/internal/http/response"
)

// TourQueries is everything about tours beyond plain CRUD.
type TourQueries interface {
	Get(ctx context.Context, id int64) (*domain.Tour, error)
	BySlug(ctx context.Context, slug string) (*domain.Tour, error)
	Stats(ctx context.Context) ([]domain.TourStats, error)
	MonthlyPlan(ctx context.Context, year string) ([]domain.MonthlyPlan, error)
	Within(ctx context.Context, distance, latlng, unit string) ([]*domain.Tour, error)
	Distances(ctx context.Context, latlng, unit string) ([]domain.TourDistance, error)
}

type TourHandler struct {
	crud    Resource[domain.Tour]
	tours   TourQueries
	reviews *ReviewHandler
	auth    middleware.Authenticator
}

func NewTourHandler(engine *crud.Engine[domain.Tour], tours TourQueries, reviews *ReviewHandler, auth middleware.Authenticator) *TourHandler {
	return &TourHandler{
		crud:    Resource[domain.Tour]{Engine: engine},
		tours:   tours,
		reviews: reviews,
		auth:    auth,
	}
}

func (h *TourHandler) Routes() chi.Router {
	protect := middleware.Protect(h.auth)
	staff := middleware.RestrictTo(domain.RoleAdmin, domain.RoleLeadGuide)

	r := chi.NewRouter()
	r.Mount("/{tourId}/reviews", h.reviews.Routes())

	r.Get("/top-5-cheap", h.topCheap)
	r.Get("/tour-stats", h.stats)
	r.With(protect, middleware.RestrictTo(domain.RoleAdmin, domain.RoleLeadGuide, domain.RoleGuide)).
		Get("/monthly-plan/{year}", h.monthlyPlan)
	r.Get("/tours-within/{distance}/center/{latlng}/unit/{unit}", h.within)
	r.Get("/distances/{latlng}/unit/{unit}", h.distances)

	r.Get("/", h.crud.List)
	r.With(protect, staff).Post("/", h.crud.Create)
	r.Get("/{id}", h.get)
	r.With(protect, staff).Patch("/{id}", h.crud.Update)
	r.With(protect, staff).Delete("/{id}", h.crud.Delete)
	return r
}

// topCheap presets the listing query and hands over to the list endpoint.
func (h *TourHandler) topCheap(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	q.Set("limit", "5")
	q.Set("sort", "-ratingsAverage,price")
	q.Set("fields", "name,price,ratingsAverage,summary,difficulty")
	r.URL.RawQuery = q.Encode()
	h.crud.List(w, r)
}

func (h *TourHandler) get(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		response.Error(w, r, err)
		return
	}
	tour, err := h.tours.Get(r.Context(), id)
	if err != nil {
		response.Error(w, r, err)
		return
	}
	response.Success(w, http.StatusOK, tour)
}

func (h *TourHandler) stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.tours.Stats(r.Context())
	if err != nil {
		response.Error(w, r, err)
		return
	}
	response.Named(w, http.StatusOK, "stats", stats)
}

func (h *TourHandler) monthlyPlan(w http.ResponseWriter, r *http.Request) {
	plan, err := h.tours.MonthlyPlan(r.Context(), chi.URLParam(r, "year"))
	if err != nil {
		response.Error(w, r, err)
		return
	}
	response.Named(w, http.StatusOK, "plan", plan)
}

func (h *TourHandler) within(w http.ResponseWriter, r *http.Request) {
	tours, err := h.tours.Within(r.Context(),
		chi.URLParam(r, "distance"), chi.URLParam(r, "latlng"), chi.URLParam(r, "unit"))
	if err != nil {
		response.Error(w, r, err)
		return
	}
	response.List(w, tours, len(tours))
}

func (h *TourHandler) distances(w http.ResponseWriter, r *http.Request) {
	out, err := h.tours.Distances(r.Context(), chi.URLParam(r, "latlng"), chi.URLParam(r, "unit"))
	if err != nil {
		response.Error(w, r, err)
		return
	}
	response.Named(w, http.StatusOK, "data", out)
}
