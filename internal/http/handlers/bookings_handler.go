package handlers

import (
	"context"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	goerrors "github.com/goliatone/go-errors"

	"github.com/diagnosis/tourbook/internal/apperr"
	"github.com/diagnosis/tourbook/internal/crud"
	"github.com/diagnosis/tourbook/internal/domain"
	"github.com/diagnosis/tourbook/internal/http/middleware"
	"github.com/diagnosis/tourbook/internal/http/response"
)

// maxWebhookBytes matches the provider's documented payload ceiling.
const maxWebhookBytes = 65536

// BookingWorkflow is the paid-booking flow: checkout, the provider's
// confirmation, and the traveller's booked tours.
type BookingWorkflow interface {
	CreateCheckoutSession(ctx context.Context, user *domain.User, tourID int64) (domain.CheckoutSession, error)
	HandleWebhook(ctx context.Context, payload []byte, signature string) error
	MyTours(ctx context.Context, user *domain.User) ([]*domain.Tour, error)
}

type BookingHandler struct {
	crud        Resource[domain.Booking]
	bookings    BookingWorkflow
	auth        middleware.Authenticator
	idempotency func(http.Handler) http.Handler
}

// NewBookingHandler wires the booking routes. idempotency wraps manual
// creation and may be nil.
func NewBookingHandler(engine *crud.Engine[domain.Booking], bookings BookingWorkflow, auth middleware.Authenticator, idempotency func(http.Handler) http.Handler) *BookingHandler {
	if idempotency == nil {
		idempotency = func(next http.Handler) http.Handler { return next }
	}
	return &BookingHandler{
		crud:        Resource[domain.Booking]{Engine: engine},
		bookings:    bookings,
		auth:        auth,
		idempotency: idempotency,
	}
}

func (h *BookingHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Protect(h.auth))

	r.Get("/checkout-session/{tourId}", h.checkoutSession)

	r.Group(func(r chi.Router) {
		r.Use(middleware.RestrictTo(domain.RoleAdmin, domain.RoleLeadGuide))
		r.Get("/", h.crud.List)
		r.With(h.idempotency).Post("/", h.crud.Create)
		r.Get("/{id}", h.crud.Get)
		r.Patch("/{id}", h.crud.Update)
		r.Delete("/{id}", h.crud.Delete)
	})
	return r
}

func (h *BookingHandler) checkoutSession(w http.ResponseWriter, r *http.Request) {
	tourID, err := idParam(r, "tourId")
	if err != nil {
		response.Error(w, r, err)
		return
	}
	sess, err := h.bookings.CreateCheckoutSession(r.Context(), middleware.CurrentUser(r.Context()), tourID)
	if err != nil {
		response.Error(w, r, err)
		return
	}
	response.JSON(w, http.StatusOK, map[string]any{"status": "success", "session": sess})
}

// Webhook receives the provider's signed events. It must see the raw body,
// so it is mounted outside the JSON body limit.
func (h *BookingHandler) Webhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBytes))
	if err != nil {
		http.Error(w, "Webhook error: "+err.Error(), http.StatusBadRequest)
		return
	}

	err = h.bookings.HandleWebhook(r.Context(), payload, r.Header.Get("Stripe-Signature"))
	if err != nil {
		if apperr.Is(err, goerrors.CategoryBadInput) {
			rich, _ := apperr.From(err)
			http.Error(w, rich.Message, http.StatusBadRequest)
			return
		}
		response.Error(w, r, err)
		return
	}
	response.JSON(w, http.StatusOK, map[string]bool{"received": true})
}
