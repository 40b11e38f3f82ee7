package service

import (
	"context"
	"fmt"
	"strconv"

	"github.com/gosimple/slug"
	"golang.org/x/sync/errgroup"

	"github.com/diagnosis/tourbook/internal/apperr"
	"github.com/diagnosis/tourbook/internal/crud"
	"github.com/diagnosis/tourbook/internal/domain"
	"github.com/diagnosis/tourbook/internal/query"
	"github.com/diagnosis/tourbook/internal/repo/postgres"
	"github.com/diagnosis/tourbook/internal/utils"
)

const (
	earthRadiusMiles = 3963.2
	earthRadiusKm    = 6378.1
	metresToMiles    = 0.000621371
	metresToKm       = 0.001
)

// UserDirectory resolves user ids to their public summaries.
type UserDirectory interface {
	Summaries(ctx context.Context, ids []int64) (map[int64]domain.UserSummary, error)
}

// TourReviews lists a tour's reviews with their authors attached.
type TourReviews interface {
	ForTour(ctx context.Context, tourID int64) ([]domain.Review, error)
}

// NewTourEntity describes tours to the CRUD engine. Secret tours are outside
// every read, and ratings are only ever written by the aggregator.
func NewTourEntity(users UserDirectory) crud.Entity[domain.Tour] {
	return crud.Entity[domain.Tour]{
		Name:   "tour",
		Schema: postgres.TourSchema,
		New: func() *domain.Tour {
			return &domain.Tour{RatingsAverage: domain.DefaultRatingsAverage}
		},
		Validate: func(t *domain.Tour) error { return domain.Validate(t) },
		Prepare: func(_ context.Context, t, prev *domain.Tour) error {
			t.Normalize()
			if prev == nil {
				t.RatingsAverage = domain.DefaultRatingsAverage
				t.RatingsQuantity = 0
			} else {
				t.ID = prev.ID
				t.CreatedAt = prev.CreatedAt
				t.RatingsAverage = prev.RatingsAverage
				t.RatingsQuantity = prev.RatingsQuantity
			}
			t.Slug = slug.Make(t.Name)
			return nil
		},
		Scope: query.Filter{query.Equals("secretTour", false)},
		Populate: func(ctx context.Context, tours []*domain.Tour) error {
			return populateGuides(ctx, users, tours)
		},
	}
}

func populateGuides(ctx context.Context, users UserDirectory, tours []*domain.Tour) error {
	seen := map[int64]bool{}
	var ids []int64
	for _, t := range tours {
		for _, id := range t.Guides {
			if !seen[id] {
				seen[id] = true
				ids = append(ids, id)
			}
		}
	}
	if len(ids) == 0 {
		return nil
	}

	found, err := users.Summaries(ctx, ids)
	if err != nil {
		return fmt.Errorf("load guides: %w", err)
	}
	for _, t := range tours {
		t.GuideDetails = make([]domain.UserSummary, 0, len(t.Guides))
		for _, id := range t.Guides {
			if g, ok := found[id]; ok {
				t.GuideDetails = append(t.GuideDetails, g)
			}
		}
	}
	return nil
}

type TourService struct {
	*crud.Engine[domain.Tour]
	repo    postgres.ToursRepo
	users   UserDirectory
	reviews TourReviews
}

func NewTourService(engine *crud.Engine[domain.Tour], repo postgres.ToursRepo, users UserDirectory, reviews TourReviews) *TourService {
	return &TourService{Engine: engine, repo: repo, users: users, reviews: reviews}
}

// Get loads one tour with its guides and reviews, fetched concurrently.
func (s *TourService) Get(ctx context.Context, id int64) (*domain.Tour, error) {
	tour, err := s.GetOne(ctx, id, false)
	if err != nil {
		return nil, err
	}
	return tour, s.withRelations(ctx, tour)
}

func (s *TourService) BySlug(ctx context.Context, name string) (*domain.Tour, error) {
	tour, err := s.repo.FindBySlug(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("find tour by slug: %w", err)
	}
	if tour == nil {
		return nil, apperr.NotFound("There is no tour with that name")
	}
	return tour, s.withRelations(ctx, tour)
}

func (s *TourService) withRelations(ctx context.Context, tour *domain.Tour) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return populateGuides(gctx, s.users, []*domain.Tour{tour})
	})

	var reviews []domain.Review
	g.Go(func() error {
		var err error
		reviews, err = s.reviews.ForTour(gctx, tour.ID)
		return err
	})
	if err := g.Wait(); err != nil {
		return fmt.Errorf("populate tour %d: %w", tour.ID, err)
	}
	tour.Reviews = reviews
	return nil
}

func (s *TourService) Stats(ctx context.Context) ([]domain.TourStats, error) {
	stats, err := s.repo.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("tour stats: %w", err)
	}
	return stats, nil
}

func (s *TourService) MonthlyPlan(ctx context.Context, year string) ([]domain.MonthlyPlan, error) {
	y, err := strconv.Atoi(year)
	if err != nil || y < 1 || y > 9999 {
		return nil, apperr.Validation("Invalid year: "+year+".", apperr.Field("year", "must be a calendar year"))
	}
	plan, err := s.repo.MonthlyPlan(ctx, y)
	if err != nil {
		return nil, fmt.Errorf("monthly plan %d: %w", y, err)
	}
	return plan, nil
}

func parseCenter(latlng string) (lat, lng float64, err error) {
	lat, lng, err = utils.ParseLatLng(latlng)
	if err != nil {
		return 0, 0, apperr.BadInput("Please provide latitude and longitude in the format lat,lng.")
	}
	return lat, lng, nil
}

// Within lists tours starting within distance of the centre. Any unit other
// than "mi" is read as kilometres.
func (s *TourService) Within(ctx context.Context, distance, latlng, unit string) ([]*domain.Tour, error) {
	lat, lng, err := parseCenter(latlng)
	if err != nil {
		return nil, err
	}
	d, err := strconv.ParseFloat(distance, 64)
	if err != nil || d < 0 {
		return nil, apperr.Validation("Invalid distance: "+distance+".", apperr.Field("distance", "must be a non-negative number"))
	}

	radius := d / earthRadiusKm
	if unit == "mi" {
		radius = d / earthRadiusMiles
	}
	tours, err := s.repo.Within(ctx, lat, lng, radius)
	if err != nil {
		return nil, fmt.Errorf("tours within: %w", err)
	}
	if tours == nil {
		tours = []*domain.Tour{}
	}
	return tours, nil
}

func (s *TourService) Distances(ctx context.Context, latlng, unit string) ([]domain.TourDistance, error) {
	lat, lng, err := parseCenter(latlng)
	if err != nil {
		return nil, err
	}
	multiplier := metresToKm
	if unit == "mi" {
		multiplier = metresToMiles
	}
	out, err := s.repo.Distances(ctx, lat, lng, multiplier)
	if err != nil {
		return nil, fmt.Errorf("tour distances: %w", err)
	}
	if out == nil {
		out = []domain.TourDistance{}
	}
	return out, nil
}
