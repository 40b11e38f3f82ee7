package service

import (
	"context"
	"fmt"

	"github.com/diagnosis/tourbook/internal/domain"
	"github.com/diagnosis/tourbook/pkg/events"
	"github.com/diagnosis/tourbook/pkg/logger"
)

// RatingWriter derives and stores a tour's rating fields in one statement.
type RatingWriter interface {
	RecomputeRatings(ctx context.Context, tourID int64) (domain.RatingStats, error)
}

// RatingAggregator keeps ratingsQuantity and ratingsAverage in step with a
// tour's reviews.
type RatingAggregator struct {
	tours    RatingWriter
	eventBus events.Publisher
}

func NewRatingAggregator(tours RatingWriter, eventBus events.Publisher) *RatingAggregator {
	return &RatingAggregator{tours: tours, eventBus: eventBus}
}

func (a *RatingAggregator) Recompute(ctx context.Context, tourID int64) (domain.RatingStats, error) {
	stats, err := a.tours.RecomputeRatings(ctx, tourID)
	if err != nil {
		return domain.RatingStats{}, fmt.Errorf("recompute ratings for tour %d: %w", tourID, err)
	}
	logger.DebugContext(ctx, "Ratings recomputed", "tour_id", tourID, "quantity", stats.Quantity, "average", stats.Average)
	return stats, nil
}

// ReviewChanged recomputes the reviewed tour and announces the new figures.
// Failures are logged; the review write has already committed.
func (a *RatingAggregator) ReviewChanged(ctx context.Context, op string, r *domain.Review) {
	stats, err := a.Recompute(ctx, r.Tour)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to recompute ratings", "error", err, "review_id", r.ID)
		return
	}
	if err := a.eventBus.Publish(ctx, events.ReviewChanged, events.ReviewChangedEvent{
		ReviewID:        r.ID,
		TourID:          r.Tour,
		Op:              op,
		RatingsQuantity: stats.Quantity,
		RatingsAverage:  stats.Average,
	}); err != nil {
		logger.WarnContext(ctx, "Failed to publish review event", "error", err, "review_id", r.ID)
	}
}
