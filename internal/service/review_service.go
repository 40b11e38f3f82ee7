package service

import (
	"context"
	"fmt"
	"net/url"

	"github.com/diagnosis/tourbook/internal/apperr"
	"github.com/diagnosis/tourbook/internal/crud"
	"github.com/diagnosis/tourbook/internal/domain"
	"github.com/diagnosis/tourbook/internal/query"
	"github.com/diagnosis/tourbook/internal/repo/postgres"
)

// BookingChecker answers whether a user has booked a tour.
type BookingChecker interface {
	HasBooked(ctx context.Context, userID, tourID int64) (bool, error)
}

// NewReviewEntity describes reviews to the CRUD engine. A review's tour and
// author are fixed once written, and every committed change re-derives the
// tour's rating.
func NewReviewEntity(users UserDirectory, ratings *RatingAggregator) crud.Entity[domain.Review] {
	return crud.Entity[domain.Review]{
		Name:     "review",
		Schema:   postgres.ReviewSchema,
		Validate: func(r *domain.Review) error { return domain.Validate(r) },
		Prepare: func(_ context.Context, r, prev *domain.Review) error {
			if prev != nil {
				r.ID = prev.ID
				r.Tour = prev.Tour
				r.User = prev.User
				r.CreatedAt = prev.CreatedAt
			}
			return nil
		},
		Populate: func(ctx context.Context, reviews []*domain.Review) error {
			return populateAuthors(ctx, users, reviews)
		},
		Committed: func(ctx context.Context, op crud.Op, r *domain.Review) {
			ratings.ReviewChanged(ctx, string(op), r)
		},
	}
}

func populateAuthors(ctx context.Context, users UserDirectory, reviews []*domain.Review) error {
	ids := make([]int64, 0, len(reviews))
	for _, r := range reviews {
		ids = append(ids, r.User)
	}
	found, err := users.Summaries(ctx, ids)
	if err != nil {
		return fmt.Errorf("load authors: %w", err)
	}
	for _, r := range reviews {
		if u, ok := found[r.User]; ok {
			r.Author = &domain.UserSummary{ID: u.ID, Name: u.Name, Photo: u.Photo}
		}
	}
	return nil
}

type ReviewService struct {
	*crud.Engine[domain.Review]
	bookings BookingChecker
}

func NewReviewService(engine *crud.Engine[domain.Review], bookings BookingChecker) *ReviewService {
	return &ReviewService{Engine: engine, bookings: bookings}
}

// Create writes a review by user for tourID. Only travellers who booked the
// tour may review it.
func (s *ReviewService) Create(ctx context.Context, user *domain.User, tourID int64, body []byte) (*domain.Review, error) {
	rec := s.Blank()
	if err := crud.MergeJSON[domain.Review](body)(rec); err != nil {
		return nil, err
	}
	if tourID != 0 {
		rec.Tour = tourID
	}
	rec.User = user.ID

	if rec.Tour != 0 {
		booked, err := s.bookings.HasBooked(ctx, user.ID, rec.Tour)
		if err != nil {
			return nil, fmt.Errorf("check booking: %w", err)
		}
		if !booked {
			return nil, apperr.Forbidden("You can only review tours you have booked")
		}
	}
	return s.Engine.Create(ctx, rec)
}

// Authorize loads a review for modification by user. Only its author or an
// admin may change it.
func (s *ReviewService) Authorize(ctx context.Context, user *domain.User, id int64) (*domain.Review, error) {
	rec, err := s.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec.User != user.ID && !user.HasRole(domain.RoleAdmin) {
		return nil, apperr.Forbidden("You cannot edit or delete someone else's review.")
	}
	return rec, nil
}

func (s *ReviewService) Update(ctx context.Context, user *domain.User, id int64, body []byte) (*domain.Review, error) {
	if _, err := s.Authorize(ctx, user, id); err != nil {
		return nil, err
	}
	return s.UpdateOne(ctx, id, crud.MergeJSON[domain.Review](body))
}

func (s *ReviewService) Delete(ctx context.Context, user *domain.User, id int64) error {
	if _, err := s.Authorize(ctx, user, id); err != nil {
		return err
	}
	return s.DeleteOne(ctx, id)
}

// ForTour lists a tour's reviews, newest first, with authors.
func (s *ReviewService) ForTour(ctx context.Context, tourID int64) ([]domain.Review, error) {
	q, err := query.Parse(url.Values{}, s.Entity().Schema)
	if err != nil {
		return nil, err
	}
	page, err := s.Find(ctx, q, query.Filter{query.Equals("tour", tourID)}, true)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Review, 0, len(page.Results))
	for _, r := range page.Results {
		out = append(out, *r)
	}
	return out, nil
}

// TourFilter narrows a review listing to one tour when nested under it.
func TourFilter(tourID int64) query.Filter {
	if tourID == 0 {
		return nil
	}
	return query.Filter{query.Equals("tour", tourID)}
}
