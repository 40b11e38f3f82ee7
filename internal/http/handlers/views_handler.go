package handlers

import (
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"github.com/diagnosis/tourbook/internal/crud"
	"github.com/diagnosis/tourbook/internal/domain"
	"github.com/diagnosis/tourbook/internal/http/middleware"
	"github.com/diagnosis/tourbook/internal/http/response"
)

var alerts = map[string]string{
	"booking": "Your booking was successful! Please check your email for a confirmation. " +
		"If your booking doesn't show up here immediately, please come back later.",
}

// Page is the model a front end renders for one view.
type Page struct {
	Title string         `json:"title"`
	User  *domain.User   `json:"user,omitempty"`
	Alert string         `json:"alert,omitempty"`
	Tour  *domain.Tour   `json:"tour,omitempty"`
	Tours []*domain.Tour `json:"tours,omitempty"`
}

// ViewHandler serves page models for the site routes.
type ViewHandler struct {
	tours    *crud.Engine[domain.Tour]
	queries  TourQueries
	bookings BookingWorkflow
	auth     middleware.Authenticator
}

func NewViewHandler(tours *crud.Engine[domain.Tour], queries TourQueries, bookings BookingWorkflow, auth middleware.Authenticator) *ViewHandler {
	return &ViewHandler{tours: tours, queries: queries, bookings: bookings, auth: auth}
}

func (h *ViewHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Group(func(r chi.Router) {
		r.Use(middleware.IsLoggedIn(h.auth))
		r.Get("/", h.overview)
		r.Get("/tour/{slug}", h.tour)
		r.Get("/login", h.login)
	})
	r.Group(func(r chi.Router) {
		r.Use(middleware.Protect(h.auth))
		r.Get("/me", h.account)
		r.Get("/my-tours", h.myTours)
	})
	return r
}

func (h *ViewHandler) render(w http.ResponseWriter, r *http.Request, page Page) {
	page.User = middleware.CurrentUser(r.Context())
	page.Alert = alerts[r.URL.Query().Get("alert")]
	response.Named(w, http.StatusOK, "page", page)
}

func (h *ViewHandler) overview(w http.ResponseWriter, r *http.Request) {
	all, err := h.tours.GetAll(r.Context(), url.Values{}, nil, false)
	if err != nil {
		response.Error(w, r, err)
		return
	}
	h.render(w, r, Page{Title: "All Tours", Tours: all.Results})
}

func (h *ViewHandler) tour(w http.ResponseWriter, r *http.Request) {
	tour, err := h.queries.BySlug(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		response.Error(w, r, err)
		return
	}
	h.render(w, r, Page{Title: tour.Name + " Tour", Tour: tour})
}

func (h *ViewHandler) login(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, Page{Title: "Log into your account"})
}

func (h *ViewHandler) account(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, Page{Title: "Your account"})
}

func (h *ViewHandler) myTours(w http.ResponseWriter, r *http.Request) {
	tours, err := h.bookings.MyTours(r.Context(), middleware.CurrentUser(r.Context()))
	if err != nil {
		response.Error(w, r, err)
		return
	}
	h.render(w, r, Page{Title: "My Tours", Tours: tours})
}
