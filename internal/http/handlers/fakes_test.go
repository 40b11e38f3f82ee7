package handlers_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/diagnosis/tourbook/internal/apperr"
	"github.com/diagnosis/tourbook/internal/crud"
	"github.com/diagnosis/tourbook/internal/crud/crudtest"
	"github.com/diagnosis/tourbook/internal/domain"
	"github.com/diagnosis/tourbook/internal/http/handlers"
	"github.com/diagnosis/tourbook/internal/repo/postgres"
	"github.com/diagnosis/tourbook/internal/service"
	"github.com/diagnosis/tourbook/pkg/config"
	"github.com/diagnosis/tourbook/pkg/events"
)

// ---------- Mocks ----------

var (
	traveller = &domain.User{ID: 7, Name: "Laura Wilson", Email: "laura@example.com", Role: domain.RoleUser}
	admin     = &domain.User{ID: 1, Name: "Jonas Schmedtmann", Email: "admin@example.com", Role: domain.RoleAdmin}
	guide     = &domain.User{ID: 3, Name: "Lisa Brown", Email: "lisa@example.com", Role: domain.RoleGuide}
)

type fakeAuth struct {
	sessions map[string]*domain.User

	signupReq   domain.SignupRequest
	forgotEmail string
	updateMe    domain.UpdateMeRequest
	deleted     int64
}

func newFakeAuth() *fakeAuth {
	return &fakeAuth{sessions: map[string]*domain.User{
		"user-token":  traveller,
		"admin-token": admin,
		"guide-token": guide,
	}}
}

func (f *fakeAuth) Signup(_ context.Context, req domain.SignupRequest) (*domain.User, string, error) {
	f.signupReq = req
	if req.Password != req.PasswordConfirm {
		return nil, "", apperr.Validation("Invalid input data. Passwords are not the same!",
			apperr.Field("passwordConfirm", "Passwords are not the same!"))
	}
	return &domain.User{ID: 42, Name: req.Name, Email: req.Email, Role: domain.RoleUser}, "new-token", nil
}

func (f *fakeAuth) Login(_ context.Context, req domain.LoginRequest) (*domain.User, string, error) {
	if req.Email == "" || req.Password == "" {
		return nil, "", apperr.BadInput("Please provide email and password!")
	}
	if req.Email != traveller.Email || req.Password != "pass1234" {
		return nil, "", apperr.Unauthenticated("Incorrect email or password")
	}
	return traveller, "user-token", nil
}

func (f *fakeAuth) Authenticate(_ context.Context, token string) (*domain.User, error) {
	if token == "" {
		return nil, apperr.Unauthenticated("You're not logged in! Please log in to get access")
	}
	if u, ok := f.sessions[token]; ok {
		return u, nil
	}
	return nil, apperr.Unauthenticated("Invalid token, please log in again!")
}

func (f *fakeAuth) ForgotPassword(_ context.Context, email string) error {
	f.forgotEmail = email
	if email != traveller.Email {
		return apperr.NotFound("There is no user with that email address")
	}
	return nil
}

func (f *fakeAuth) ResetPassword(_ context.Context, token string, _ domain.ResetPasswordRequest) (*domain.User, string, error) {
	if token != "reset-me" {
		return nil, "", apperr.NotFound("The token is invalid or it has expired!")
	}
	return traveller, "user-token", nil
}

func (f *fakeAuth) UpdatePassword(_ context.Context, user *domain.User, req domain.UpdatePasswordRequest) (*domain.User, string, error) {
	if req.PasswordCurrent != "pass1234" {
		return nil, "", apperr.Unauthenticated("Your current password is wrong!")
	}
	return user, "fresh-token", nil
}

func (f *fakeAuth) UpdateMe(_ context.Context, user *domain.User, req domain.UpdateMeRequest) (*domain.User, error) {
	f.updateMe = req
	if req.TouchesPassword() {
		return nil, apperr.BadInput("This route is not for password updates. Please use /updateMyPassword")
	}
	out := *user
	if req.Name != nil {
		out.Name = *req.Name
	}
	return &out, nil
}

func (f *fakeAuth) DeleteMe(_ context.Context, userID int64) error {
	f.deleted = userID
	return nil
}

func (f *fakeAuth) TokenTTL() time.Duration { return time.Hour }

var _ service.AuthService = (*fakeAuth)(nil)

type directory map[int64]domain.UserSummary

func (d directory) Summaries(_ context.Context, ids []int64) (map[int64]domain.UserSummary, error) {
	out := map[int64]domain.UserSummary{}
	for _, id := range ids {
		if s, ok := d[id]; ok {
			out[id] = s
		}
	}
	return out, nil
}

type fakeTourQueries struct {
	engine *crud.Engine[domain.Tour]
	within []string
	year   string
}

func (f *fakeTourQueries) Get(ctx context.Context, id int64) (*domain.Tour, error) {
	return f.engine.GetOne(ctx, id, false)
}

func (f *fakeTourQueries) BySlug(ctx context.Context, slug string) (*domain.Tour, error) {
	page, err := f.engine.GetAll(ctx, nil, nil, false)
	if err != nil {
		return nil, err
	}
	for _, t := range page.Results {
		if t.Slug == slug {
			return t, nil
		}
	}
	return nil, apperr.NotFound("There is no tour with that name")
}

func (f *fakeTourQueries) Stats(context.Context) ([]domain.TourStats, error) {
	return []domain.TourStats{{Difficulty: "EASY", NumTours: 1}}, nil
}

func (f *fakeTourQueries) MonthlyPlan(_ context.Context, year string) ([]domain.MonthlyPlan, error) {
	f.year = year
	return []domain.MonthlyPlan{}, nil
}

func (f *fakeTourQueries) Within(_ context.Context, distance, latlng, unit string) ([]*domain.Tour, error) {
	f.within = []string{distance, latlng, unit}
	if !strings.Contains(latlng, ",") {
		return nil, apperr.BadInput("Please provide latitude and longitude in the format lat,lng.")
	}
	return []*domain.Tour{}, nil
}

func (f *fakeTourQueries) Distances(context.Context, string, string) ([]domain.TourDistance, error) {
	return []domain.TourDistance{{ID: 1, Name: "The Forest Hiker", Distance: 12.5}}, nil
}

type fakeReviews struct {
	engine *crud.Engine[domain.Review]
	tourID int64
}

func (f *fakeReviews) Create(ctx context.Context, user *domain.User, tourID int64, body []byte) (*domain.Review, error) {
	f.tourID = tourID
	rec := f.engine.Blank()
	if err := crud.MergeJSON[domain.Review](body)(rec); err != nil {
		return nil, err
	}
	if tourID != 0 {
		rec.Tour = tourID
	}
	rec.User = user.ID
	return f.engine.Create(ctx, rec)
}

func (f *fakeReviews) Update(ctx context.Context, _ *domain.User, id int64, body []byte) (*domain.Review, error) {
	return f.engine.UpdateOne(ctx, id, crud.MergeJSON[domain.Review](body))
}

func (f *fakeReviews) Delete(ctx context.Context, user *domain.User, id int64) error {
	rec, err := f.engine.Load(ctx, id)
	if err != nil {
		return err
	}
	if rec.User != user.ID && !user.HasRole(domain.RoleAdmin) {
		return apperr.Forbidden("You cannot edit or delete someone else's review.")
	}
	return f.engine.DeleteOne(ctx, id)
}

type fakeWorkflow struct {
	checkoutTour int64
	payload      string
	myTours      []*domain.Tour
}

func (f *fakeWorkflow) CreateCheckoutSession(_ context.Context, _ *domain.User, tourID int64) (domain.CheckoutSession, error) {
	f.checkoutTour = tourID
	if tourID == 999 {
		return domain.CheckoutSession{}, apperr.NotFound("No tour found with that ID")
	}
	return domain.CheckoutSession{ID: "cs_test_1", URL: "https://checkout.example/cs_test_1"}, nil
}

func (f *fakeWorkflow) HandleWebhook(_ context.Context, payload []byte, signature string) error {
	f.payload = string(payload)
	switch signature {
	case "":
		return apperr.InvalidSignature(errors.New("no signatures found"))
	case "broken":
		return errors.New("database unavailable")
	}
	return nil
}

func (f *fakeWorkflow) MyTours(context.Context, *domain.User) ([]*domain.Tour, error) {
	return f.myTours, nil
}

// ---------- Fixture ----------

type app struct {
	srv      *httptest.Server
	auth     *fakeAuth
	tours    *crud.Engine[domain.Tour]
	queries  *fakeTourQueries
	reviews  *fakeReviews
	workflow *fakeWorkflow
	bookings *crudtest.Store[domain.Booking]
}

func newApp(t *testing.T) *app {
	t.Helper()
	users := directory{
		traveller.ID: {ID: traveller.ID, Name: traveller.Name, Email: traveller.Email},
		guide.ID:     {ID: guide.ID, Name: guide.Name, Role: domain.RoleGuide},
	}

	tourStore := crudtest.New(
		func(t *domain.Tour) *int64 { return &t.ID },
		func(t *domain.Tour, field string) any {
			switch field {
			case "secretTour":
				return t.SecretTour
			case "difficulty":
				return t.Difficulty
			}
			return nil
		},
	)
	reviewStore := crudtest.New(
		func(r *domain.Review) *int64 { return &r.ID },
		func(r *domain.Review, field string) any {
			if field == "tour" {
				return r.Tour
			}
			return nil
		},
	)
	userStore := crudtest.New(
		func(u *domain.User) *int64 { return &u.ID },
		func(u *domain.User, field string) any {
			if field == "active" {
				return u.Active
			}
			return nil
		},
	)
	bookingStore := crudtest.New(
		func(b *domain.Booking) *int64 { return &b.ID },
		func(*domain.Booking, string) any { return nil },
	)

	a := &app{auth: newFakeAuth(), workflow: &fakeWorkflow{}, bookings: bookingStore}
	a.tours = crud.New(service.NewTourEntity(users), tourStore)
	a.queries = &fakeTourQueries{engine: a.tours}

	reviewEngine := crud.New(crud.Entity[domain.Review]{
		Name:     "review",
		Schema:   postgres.ReviewSchema,
		Validate: func(r *domain.Review) error { return domain.Validate(r) },
	}, reviewStore)
	a.reviews = &fakeReviews{engine: reviewEngine}

	cfg := &config.Config{
		Server: config.ServerConfig{Env: "production"},
		Auth:   config.AuthConfig{CookieTTL: 90 * 24 * time.Hour},
	}

	reviewHandler := handlers.NewReviewHandler(reviewEngine, a.reviews, a.auth)
	bookingHandler := handlers.NewBookingHandler(
		crud.New(service.NewBookingEntity(users, tourNames{a.tours}, events.Nop{}), bookingStore), a.workflow, a.auth, nil)

	r := chi.NewRouter()
	r.Mount("/", handlers.NewViewHandler(a.tours, a.queries, a.workflow, a.auth).Routes())
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/bookings/webhook-checkout", bookingHandler.Webhook)
		r.Mount("/tours", handlers.NewTourHandler(a.tours, a.queries, reviewHandler, a.auth).Routes())
		r.Mount("/users", handlers.NewUserHandler(a.auth, crud.New(service.NewUserEntity(), userStore), cfg).Routes())
		r.Mount("/reviews", reviewHandler.Routes())
		r.Mount("/bookings", bookingHandler.Routes())
	})

	a.srv = httptest.NewServer(r)
	t.Cleanup(a.srv.Close)
	return a
}

type tourNames struct{ engine *crud.Engine[domain.Tour] }

func (n tourNames) Names(ctx context.Context, ids []int64) (map[int64]string, error) {
	out := map[int64]string{}
	for _, id := range ids {
		if t, err := n.engine.Load(ctx, id); err == nil {
			out[id] = t.Name
		}
	}
	return out, nil
}

func forestHiker() *domain.Tour {
	return &domain.Tour{
		Name:         "The Forest Hiker",
		Duration:     5,
		MaxGroupSize: 25,
		Difficulty:   domain.DifficultyEasy,
		Price:        397,
		Summary:      "Breathtaking hike through the Canadian Banff National Park",
		ImageCover:   "tour-1-cover.jpg",
	}
}

func (a *app) seedTour(t *testing.T, tour *domain.Tour) *domain.Tour {
	t.Helper()
	created, err := a.tours.Create(context.Background(), tour)
	if err != nil {
		t.Fatalf("seed tour: %v", err)
	}
	return created
}

func (a *app) request(t *testing.T, method, path, token, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, a.srv.URL+path, strings.NewReader(body))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}
