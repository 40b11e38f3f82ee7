package service

import (
	"context"
	"fmt"
	"strconv"

	qs "github.com/google/go-querystring/query"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/diagnosis/tourbook/internal/apperr"
	"github.com/diagnosis/tourbook/internal/crud"
	"github.com/diagnosis/tourbook/internal/domain"
	"github.com/diagnosis/tourbook/internal/platform/payments"
	"github.com/diagnosis/tourbook/internal/repo/postgres"
	"github.com/diagnosis/tourbook/pkg/config"
	"github.com/diagnosis/tourbook/pkg/events"
	"github.com/diagnosis/tourbook/pkg/logger"
)

const (
	SourceCheckout = "checkout"
	SourceAdmin    = "admin"
)

var (
	bookingsCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tourbook_bookings_created_total",
		Help: "Bookings written, by source.",
	}, []string{"source"})

	webhookEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tourbook_webhook_events_total",
		Help: "Payment webhooks received, by event type and outcome.",
	}, []string{"type", "outcome"})
)

type TourGetter interface {
	GetOne(ctx context.Context, id int64, populate bool) (*domain.Tour, error)
}

type TourNamer interface {
	Names(ctx context.Context, ids []int64) (map[int64]string, error)
}

type BookedTours interface {
	BookedBy(ctx context.Context, userID int64) ([]*domain.Tour, error)
}

type UserByEmail interface {
	FindByEmail(ctx context.Context, email string) (*domain.User, error)
}

// NewBookingEntity describes bookings to the admin CRUD endpoints.
func NewBookingEntity(users UserDirectory, tours TourNamer, eventBus events.Publisher) crud.Entity[domain.Booking] {
	return crud.Entity[domain.Booking]{
		Name:     "booking",
		Schema:   postgres.BookingSchema,
		New:      func() *domain.Booking { return &domain.Booking{Paid: true} },
		Validate: func(b *domain.Booking) error { return domain.Validate(b) },
		Prepare: func(ctx context.Context, b, prev *domain.Booking) error {
			if prev != nil {
				b.ID = prev.ID
				b.CreatedAt = prev.CreatedAt
			}
			return checkReferences(ctx, users, tours, b, prev)
		},
		Populate: func(ctx context.Context, bookings []*domain.Booking) error {
			return populateBookings(ctx, users, tours, bookings)
		},
		Committed: func(ctx context.Context, op crud.Op, b *domain.Booking) {
			if op != crud.OpCreate {
				return
			}
			bookingsCreated.WithLabelValues(SourceAdmin).Inc()
			if err := populateBookings(ctx, users, tours, []*domain.Booking{b}); err != nil {
				logger.WarnContext(ctx, "Failed to populate booking for event", "error", err, "booking_id", b.ID)
			}
			publishBooking(ctx, eventBus, b, SourceAdmin)
		},
	}
}

// checkReferences rejects a booking whose tour or user does not exist. Zero
// ids are left to field validation.
func checkReferences(ctx context.Context, users UserDirectory, tours TourNamer, b, prev *domain.Booking) error {
	if b.Tour != 0 && (prev == nil || prev.Tour != b.Tour) {
		names, err := tours.Names(ctx, []int64{b.Tour})
		if err != nil {
			return fmt.Errorf("check tour: %w", err)
		}
		if _, ok := names[b.Tour]; !ok {
			return apperr.Validation("Invalid tour: no such record", apperr.Field("tour", "does not exist"))
		}
	}
	if b.User != 0 && (prev == nil || prev.User != b.User) {
		found, err := users.Summaries(ctx, []int64{b.User})
		if err != nil {
			return fmt.Errorf("check user: %w", err)
		}
		if _, ok := found[b.User]; !ok {
			return apperr.Validation("Invalid user: no such record", apperr.Field("user", "does not exist"))
		}
	}
	return nil
}

func populateBookings(ctx context.Context, users UserDirectory, tours TourNamer, bookings []*domain.Booking) error {
	userIDs := make([]int64, 0, len(bookings))
	tourIDs := make([]int64, 0, len(bookings))
	for _, b := range bookings {
		userIDs = append(userIDs, b.User)
		tourIDs = append(tourIDs, b.Tour)
	}
	customers, err := users.Summaries(ctx, userIDs)
	if err != nil {
		return fmt.Errorf("load customers: %w", err)
	}
	names, err := tours.Names(ctx, tourIDs)
	if err != nil {
		return fmt.Errorf("load tour names: %w", err)
	}
	for _, b := range bookings {
		if c, ok := customers[b.User]; ok {
			b.Customer = &c
		}
		b.TourName = names[b.Tour]
	}
	return nil
}

func publishBooking(ctx context.Context, eventBus events.Publisher, b *domain.Booking, source string) {
	ev := events.BookingCreatedEvent{
		BookingID: b.ID,
		TourID:    b.Tour,
		TourName:  b.TourName,
		UserID:    b.User,
		Price:     b.Price,
		Source:    source,
		CreatedAt: b.CreatedAt,
	}
	if b.Customer != nil {
		ev.CustomerName = b.Customer.Name
		ev.CustomerEmail = b.Customer.Email
	}
	if err := eventBus.Publish(ctx, events.BookingCreated, ev); err != nil {
		logger.WarnContext(ctx, "Failed to publish booking event", "error", err, "booking_id", b.ID)
	}
}

type successQuery struct {
	Alert string `url:"alert"`
}

type BookingService struct {
	*crud.Engine[domain.Booking]
	bookings postgres.BookingRepo
	tours    TourGetter
	names    TourNamer
	booked   BookedTours
	users    UserByEmail
	summary  UserDirectory
	payments payments.Provider
	eventBus events.Publisher
	config   *config.Config
}

func NewBookingService(
	engine *crud.Engine[domain.Booking],
	bookings postgres.BookingRepo,
	tours TourGetter,
	toursRepo postgres.ToursRepo,
	users postgres.UsersRepo,
	provider payments.Provider,
	eventBus events.Publisher,
	config *config.Config,
) *BookingService {
	return &BookingService{
		Engine:   engine,
		bookings: bookings,
		tours:    tours,
		names:    toursRepo,
		booked:   toursRepo,
		users:    users,
		summary:  users,
		payments: provider,
		eventBus: eventBus,
		config:   config,
	}
}

// CreateCheckoutSession opens a hosted payment page for one seat on a tour.
// No booking exists until the provider confirms payment.
func (s *BookingService) CreateCheckoutSession(ctx context.Context, user *domain.User, tourID int64) (domain.CheckoutSession, error) {
	tour, err := s.tours.GetOne(ctx, tourID, false)
	if err != nil {
		return domain.CheckoutSession{}, err
	}

	base := s.config.Server.BaseURL
	values, err := qs.Values(successQuery{Alert: "booking"})
	if err != nil {
		return domain.CheckoutSession{}, fmt.Errorf("encode success url: %w", err)
	}

	sess, err := s.payments.CreateCheckoutSession(ctx, payments.CheckoutRequest{
		SuccessURL:        base + "/my-tours?" + values.Encode(),
		CancelURL:         base + "/tour/" + tour.Slug,
		CustomerEmail:     user.Email,
		ClientReferenceID: strconv.FormatInt(tour.ID, 10),
		Currency:          s.config.Stripe.Currency,
		Items: []payments.LineItem{{
			Name:        tour.Name + " Tour",
			Description: tour.Summary,
			ImageURL:    base + "/img/tours/" + tour.ImageCover,
			UnitAmount:  int64(tour.Price*100 + 0.5),
			Quantity:    1,
		}},
	})
	if err != nil {
		return domain.CheckoutSession{}, err
	}
	logger.InfoContext(ctx, "Checkout session created", "session_id", sess.ID, "tour_id", tour.ID, "user_id", user.ID)
	return sess, nil
}

// HandleWebhook verifies a provider event and records the booking for a
// completed checkout. Redelivered sessions are acknowledged without a second
// booking; events for unknown customers are acknowledged and skipped.
func (s *BookingService) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	ev, err := s.payments.ParseWebhook(payload, signature)
	if err != nil {
		webhookEvents.WithLabelValues("unknown", "rejected").Inc()
		return err
	}
	if ev.Completed == nil {
		webhookEvents.WithLabelValues(ev.Type, "ignored").Inc()
		return nil
	}

	c := *ev.Completed
	user, err := s.users.FindByEmail(ctx, c.CustomerEmail)
	if err != nil {
		webhookEvents.WithLabelValues(ev.Type, "error").Inc()
		return fmt.Errorf("find customer: %w", err)
	}
	if user == nil {
		webhookEvents.WithLabelValues(ev.Type, "skipped").Inc()
		logger.WarnContext(ctx, "Checkout completed for unknown customer", "session_id", c.SessionID, "event_id", ev.ID)
		return nil
	}

	b, created, err := s.bookings.InsertFromCheckout(ctx, c, user.ID)
	if err != nil {
		webhookEvents.WithLabelValues(ev.Type, "error").Inc()
		return fmt.Errorf("record booking: %w", err)
	}
	if !created {
		webhookEvents.WithLabelValues(ev.Type, "duplicate").Inc()
		logger.InfoContext(ctx, "Checkout already recorded", "session_id", c.SessionID)
		return nil
	}

	webhookEvents.WithLabelValues(ev.Type, "booked").Inc()
	bookingsCreated.WithLabelValues(SourceCheckout).Inc()
	if err := populateBookings(ctx, s.summary, s.names, []*domain.Booking{b}); err != nil {
		logger.WarnContext(ctx, "Failed to populate booking for event", "error", err, "booking_id", b.ID)
	}
	publishBooking(ctx, s.eventBus, b, SourceCheckout)
	logger.InfoContext(ctx, "Booking created from checkout", "booking_id", b.ID, "session_id", c.SessionID)
	return nil
}

func (s *BookingService) MyTours(ctx context.Context, user *domain.User) ([]*domain.Tour, error) {
	tours, err := s.booked.BookedBy(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("booked tours: %w", err)
	}
	if tours == nil {
		tours = []*domain.Tour{}
	}
	return tours, nil
}
