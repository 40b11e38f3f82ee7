package service_test

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/diagnosis/tourbook/internal/domain"
	"github.com/diagnosis/tourbook/internal/platform/mailer"
	"github.com/diagnosis/tourbook/internal/platform/payments"
	"github.com/diagnosis/tourbook/internal/query"
)

// ---------- Mocks ----------

type fakeHasher struct{}

func (fakeHasher) Hash(_ context.Context, plain string) (string, error) {
	return "hashed:" + plain, nil
}

func (fakeHasher) Verify(_ context.Context, plain, digest string) (bool, error) {
	return digest == "hashed:"+plain, nil
}

type fakeUsers struct {
	mu     sync.Mutex
	nextID int64
	byID   map[int64]*domain.User
}

func newFakeUsers() *fakeUsers {
	return &fakeUsers{byID: map[int64]*domain.User{}}
}

func (f *fakeUsers) add(u domain.User) *domain.User {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	u.ID = f.nextID
	if u.Role == "" {
		u.Role = domain.RoleUser
	}
	u.Active = true
	u.CreatedAt = time.Now()
	f.byID[u.ID] = &u
	cp := u
	return &cp
}

func (f *fakeUsers) get(id int64) *domain.User {
	f.mu.Lock()
	defer f.mu.Unlock()
	if u, ok := f.byID[id]; ok {
		cp := *u
		return &cp
	}
	return nil
}

func (f *fakeUsers) Create(_ context.Context, u *domain.User) (*domain.User, error) {
	for _, existing := range f.byID {
		if existing.Email == u.Email {
			return nil, errors.New("duplicate email")
		}
	}
	return f.add(*u), nil
}

func (f *fakeUsers) find(match func(u *domain.User) bool) *domain.User {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.byID {
		if u.Active && match(u) {
			cp := *u
			return &cp
		}
	}
	return nil
}

func (f *fakeUsers) FindByEmail(_ context.Context, email string) (*domain.User, error) {
	return f.find(func(u *domain.User) bool { return u.Email == email }), nil
}

func (f *fakeUsers) FindActiveByID(_ context.Context, id int64) (*domain.User, error) {
	return f.find(func(u *domain.User) bool { return u.ID == id }), nil
}

func (f *fakeUsers) FindByResetToken(_ context.Context, hashed string, now time.Time) (*domain.User, error) {
	return f.find(func(u *domain.User) bool {
		return u.PasswordResetToken != nil && *u.PasswordResetToken == hashed &&
			u.PasswordResetExpires != nil && u.PasswordResetExpires.After(now)
	}), nil
}

func (f *fakeUsers) SetResetToken(_ context.Context, id int64, hashed *string, expires *time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u := f.byID[id]
	u.PasswordResetToken = hashed
	u.PasswordResetExpires = expires
	return nil
}

func (f *fakeUsers) SetPassword(_ context.Context, id int64, hash string, changedAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u := f.byID[id]
	u.PasswordHash = hash
	u.PasswordChangedAt = &changedAt
	u.PasswordResetToken = nil
	u.PasswordResetExpires = nil
	return nil
}

func (f *fakeUsers) UpdateProfile(_ context.Context, id int64, name, email string) (*domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.byID[id]
	if !ok || !u.Active {
		return nil, nil
	}
	u.Name, u.Email = name, email
	cp := *u
	return &cp, nil
}

func (f *fakeUsers) Deactivate(_ context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if u, ok := f.byID[id]; ok {
		u.Active = false
	}
	return nil
}

func (f *fakeUsers) Summaries(_ context.Context, ids []int64) (map[int64]domain.UserSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := map[int64]domain.UserSummary{}
	for _, id := range ids {
		if u, ok := f.byID[id]; ok {
			out[id] = domain.UserSummary{ID: u.ID, Name: u.Name, Email: u.Email, Photo: u.Photo, Role: u.Role}
		}
	}
	return out, nil
}

func (f *fakeUsers) ClearExpiredResetTokens(_ context.Context, now time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, u := range f.byID {
		if u.PasswordResetExpires != nil && !u.PasswordResetExpires.After(now) {
			u.PasswordResetToken, u.PasswordResetExpires = nil, nil
			n++
		}
	}
	return n, nil
}

type fakeMailer struct {
	mu       sync.Mutex
	resetTo  string
	resetURL string
	err      error
}

func (m *fakeMailer) SendWelcome(context.Context, mailer.Recipient, string) error { return m.err }

func (m *fakeMailer) SendPasswordReset(_ context.Context, to mailer.Recipient, resetURL string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resetTo, m.resetURL = to.Email, resetURL
	return m.err
}

func (m *fakeMailer) SendBookingConfirmation(context.Context, mailer.Recipient, mailer.BookingMail) error {
	return m.err
}

type published struct {
	subject string
	data    any
}

type recordingBus struct {
	mu     sync.Mutex
	events []published
}

func (b *recordingBus) Publish(_ context.Context, subject string, data interface{}) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, published{subject, data})
	return nil
}

func (b *recordingBus) Close() error { return nil }

func (b *recordingBus) subjects() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, len(b.events))
	for i, e := range b.events {
		out[i] = e.subject
	}
	return out
}

// memStore is a crud.Store over a map. Conditions are matched on the
// record's JSON-named fields through get; only eq and IN are understood.
type memStore[T any] struct {
	mu     sync.Mutex
	nextID int64
	rows   map[int64]T
	id     func(*T) *int64
	get    func(*T, string) any
}

func newMemStore[T any](id func(*T) *int64, get func(*T, string) any) *memStore[T] {
	return &memStore[T]{rows: map[int64]T{}, id: id, get: get}
}

func (m *memStore[T]) matches(rec *T, filters ...query.Filter) bool {
	for _, f := range filters {
		for _, c := range f {
			v := m.get(rec, c.Field)
			switch c.Op {
			case query.Eq:
				if v != c.Value {
					return false
				}
			default:
				return false
			}
		}
	}
	return true
}

func (m *memStore[T]) Insert(_ context.Context, rec *T) (*T, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	cp := *rec
	*m.id(&cp) = m.nextID
	m.rows[m.nextID] = cp
	out := cp
	return &out, nil
}

func (m *memStore[T]) FindByID(_ context.Context, id int64, _ []string, scope query.Filter) (*T, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.rows[id]
	if !ok || !m.matches(&rec, scope) {
		return nil, nil
	}
	return &rec, nil
}

func (m *memStore[T]) Find(_ context.Context, _ query.Query, base query.Filter) ([]*T, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]int64, 0, len(m.rows))
	for id := range m.rows {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var out []*T
	for _, id := range ids {
		rec := m.rows[id]
		if m.matches(&rec, base) {
			out = append(out, &rec)
		}
	}
	return out, nil
}

func (m *memStore[T]) Update(_ context.Context, id int64, rec *T) (*T, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rows[id]; !ok {
		return nil, nil
	}
	cp := *rec
	*m.id(&cp) = id
	m.rows[id] = cp
	return &cp, nil
}

func (m *memStore[T]) Delete(_ context.Context, id int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rows[id]; !ok {
		return false, nil
	}
	delete(m.rows, id)
	return true, nil
}

func newTourStore() *memStore[domain.Tour] {
	return newMemStore(
		func(t *domain.Tour) *int64 { return &t.ID },
		func(t *domain.Tour, field string) any {
			switch field {
			case "id":
				return t.ID
			case "secretTour":
				return t.SecretTour
			case "name":
				return t.Name
			}
			return nil
		},
	)
}

func newReviewStore() *memStore[domain.Review] {
	return newMemStore(
		func(r *domain.Review) *int64 { return &r.ID },
		func(r *domain.Review, field string) any {
			switch field {
			case "id":
				return r.ID
			case "tour":
				return r.Tour
			case "user":
				return r.User
			}
			return nil
		},
	)
}

func newBookingStore() *memStore[domain.Booking] {
	return newMemStore(
		func(b *domain.Booking) *int64 { return &b.ID },
		func(b *domain.Booking, field string) any {
			switch field {
			case "id":
				return b.ID
			case "tour":
				return b.Tour
			case "user":
				return b.User
			}
			return nil
		},
	)
}

// fakeTours serves the aggregate queries from a tour store and a review
// store.
type fakeTours struct {
	tours   *memStore[domain.Tour]
	reviews *memStore[domain.Review]
	booked  map[int64][]int64 // user -> tour ids

	within     []float64 // lat, lng, radius of the last call
	multiplier float64
}

func (f *fakeTours) Stats(context.Context) ([]domain.TourStats, error) { return nil, nil }

func (f *fakeTours) MonthlyPlan(_ context.Context, year int) ([]domain.MonthlyPlan, error) {
	return []domain.MonthlyPlan{{Month: 7, NumTourStarts: year % 10}}, nil
}

func (f *fakeTours) Within(_ context.Context, lat, lng, radius float64) ([]*domain.Tour, error) {
	f.within = []float64{lat, lng, radius}
	return nil, nil
}

func (f *fakeTours) Distances(_ context.Context, _, _ float64, multiplier float64) ([]domain.TourDistance, error) {
	f.multiplier = multiplier
	return nil, nil
}

func (f *fakeTours) FindBySlug(ctx context.Context, slug string) (*domain.Tour, error) {
	all, _ := f.tours.Find(ctx, query.Query{}, nil)
	for _, t := range all {
		if t.Slug == slug && !t.SecretTour {
			return t, nil
		}
	}
	return nil, nil
}

func (f *fakeTours) BookedBy(ctx context.Context, userID int64) ([]*domain.Tour, error) {
	var out []*domain.Tour
	for _, id := range f.booked[userID] {
		if t, _ := f.tours.FindByID(ctx, id, nil, nil); t != nil {
			out = append(out, t)
		}
	}
	return out, nil
}

func (f *fakeTours) Names(ctx context.Context, ids []int64) (map[int64]string, error) {
	out := map[int64]string{}
	for _, id := range ids {
		if t, _ := f.tours.FindByID(ctx, id, nil, nil); t != nil {
			out[id] = t.Name
		}
	}
	return out, nil
}

func (f *fakeTours) RecomputeRatings(ctx context.Context, tourID int64) (domain.RatingStats, error) {
	t, _ := f.tours.FindByID(ctx, tourID, nil, nil)
	if t == nil {
		return domain.RatingStats{}, nil
	}
	reviews, _ := f.reviews.Find(ctx, query.Query{}, query.Filter{query.Equals("tour", tourID)})

	stats := domain.RatingStats{Quantity: len(reviews), Average: domain.DefaultRatingsAverage}
	if len(reviews) > 0 {
		sum := 0
		for _, r := range reviews {
			sum += r.Rating
		}
		avg := float64(sum) / float64(len(reviews))
		stats.Average = float64(int(avg*10+0.5)) / 10
	}
	t.RatingsQuantity, t.RatingsAverage = stats.Quantity, stats.Average
	_, _ = f.tours.Update(ctx, t.ID, t)
	return stats, nil
}

type fakeBookings struct {
	mu       sync.Mutex
	bySess   map[string]*domain.Booking
	has      map[[2]int64]bool
	inserted int
}

func newFakeBookings() *fakeBookings {
	return &fakeBookings{bySess: map[string]*domain.Booking{}, has: map[[2]int64]bool{}}
}

func (f *fakeBookings) InsertFromCheckout(_ context.Context, c domain.CheckoutCompleted, userID int64) (*domain.Booking, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.bySess[c.SessionID]; ok {
		return nil, false, nil
	}
	f.inserted++
	sess := c.SessionID
	b := &domain.Booking{
		ID:                int64(f.inserted),
		Tour:              c.TourID,
		User:              userID,
		Price:             c.Price(),
		Paid:              true,
		CheckoutSessionID: &sess,
		CreatedAt:         time.Now(),
	}
	f.bySess[c.SessionID] = b
	f.has[[2]int64{userID, c.TourID}] = true
	return b, true, nil
}

func (f *fakeBookings) HasBooked(_ context.Context, userID, tourID int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.has[[2]int64{userID, tourID}], nil
}

type fakePayments struct {
	last  payments.CheckoutRequest
	event payments.Event
	err   error
}

func (f *fakePayments) CreateCheckoutSession(_ context.Context, req payments.CheckoutRequest) (domain.CheckoutSession, error) {
	f.last = req
	return domain.CheckoutSession{ID: "cs_test_1", URL: "https://checkout.example/cs_test_1"}, f.err
}

func (f *fakePayments) ParseWebhook(_ []byte, signature string) (payments.Event, error) {
	if f.err != nil {
		return payments.Event{}, f.err
	}
	if !strings.HasPrefix(signature, "t=") {
		return payments.Event{}, errors.New("bad signature")
	}
	return f.event, nil
}
