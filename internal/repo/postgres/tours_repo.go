package postgres

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/diagnosis/tourbook/internal/domain"
	"github.com/diagnosis/tourbook/internal/query"
)

// EarthRadiusMeters matches the sphere the distance figures are quoted on.
const EarthRadiusMeters = 6378100.0

// ToursRepo holds the queries that do not fit the generic Table: aggregates,
// geo lookups and the rating write.
type ToursRepo interface {
	Stats(ctx context.Context) ([]domain.TourStats, error)
	MonthlyPlan(ctx context.Context, year int) ([]domain.MonthlyPlan, error)
	Within(ctx context.Context, lat, lng, radiusRad float64) ([]*domain.Tour, error)
	Distances(ctx context.Context, lat, lng, multiplier float64) ([]domain.TourDistance, error)
	FindBySlug(ctx context.Context, slug string) (*domain.Tour, error)
	BookedBy(ctx context.Context, userID int64) ([]*domain.Tour, error)
	Names(ctx context.Context, ids []int64) (map[int64]string, error)
	RecomputeRatings(ctx context.Context, tourID int64) (domain.RatingStats, error)
}

type ToursRepoImpl struct {
	db    DB
	table *Table[domain.Tour]
}

func NewToursRepo(db DB) *ToursRepoImpl {
	return &ToursRepoImpl{db: db, table: NewToursTable(db)}
}

func visibleTourCols() string {
	return strings.Join(query.Columns(TourSchema, TourSchema.Visible()), ", ")
}

// centralAngle is the haversine angle in radians between a tour's start
// location and ($1 lat, $2 lng).
const centralAngle = `(2 * asin(least(1, sqrt(
  power(sin((radians((start_location->'coordinates'->>1)::float8) - radians($1)) / 2), 2) +
  cos(radians($1)) * cos(radians((start_location->'coordinates'->>1)::float8)) *
  power(sin((radians((start_location->'coordinates'->>0)::float8) - radians($2)) / 2), 2)))))`

func (r *ToursRepoImpl) Stats(ctx context.Context) ([]domain.TourStats, error) {
	const q = `
SELECT upper(difficulty) AS difficulty,
       count(*)::int AS num_tours,
       coalesce(sum(ratings_quantity), 0)::int AS num_ratings,
       avg(ratings_average) AS avg_rating,
       avg(price) AS avg_price,
       min(price) AS min_price,
       max(price) AS max_price
FROM tours
WHERE ratings_average >= 4.5 AND NOT secret_tour
GROUP BY upper(difficulty)
ORDER BY avg_price`
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	rows, err := r.db.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowToStructByName[domain.TourStats])
}

func (r *ToursRepoImpl) MonthlyPlan(ctx context.Context, year int) ([]domain.MonthlyPlan, error) {
	const q = `
SELECT extract(month FROM d)::int AS month,
       count(*)::int AS num_tour_starts,
       array_agg(t.name ORDER BY t.name) AS tours
FROM tours t, unnest(t.start_dates) AS d
WHERE d >= $1 AND d < $2 AND NOT t.secret_tour
GROUP BY 1
ORDER BY num_tour_starts DESC, month
LIMIT 12`
	from := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(1, 0, 0)

	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	rows, err := r.db.Query(ctx, q, from, to)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowToStructByName[domain.MonthlyPlan])
}

func (r *ToursRepoImpl) Within(ctx context.Context, lat, lng, radiusRad float64) ([]*domain.Tour, error) {
	q := `SELECT ` + visibleTourCols() + ` FROM tours
WHERE start_location IS NOT NULL AND NOT secret_tour AND ` + centralAngle + ` <= $3
ORDER BY id`
	return r.table.many(ctx, q, lat, lng, radiusRad)
}

// Distances reports every tour's distance from the point, in metres times
// multiplier, nearest first.
func (r *ToursRepoImpl) Distances(ctx context.Context, lat, lng, multiplier float64) ([]domain.TourDistance, error) {
	q := `SELECT id, name, ` + centralAngle + ` * $3 AS distance FROM tours
WHERE start_location IS NOT NULL AND NOT secret_tour
ORDER BY distance, id`
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	rows, err := r.db.Query(ctx, q, lat, lng, EarthRadiusMeters*multiplier)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowToStructByName[domain.TourDistance])
}

func (r *ToursRepoImpl) FindBySlug(ctx context.Context, slug string) (*domain.Tour, error) {
	q := `SELECT ` + visibleTourCols() + ` FROM tours WHERE slug=$1 AND NOT secret_tour`
	return r.table.one(ctx, q, slug)
}

// BookedBy lists the distinct tours a user holds bookings for.
func (r *ToursRepoImpl) BookedBy(ctx context.Context, userID int64) ([]*domain.Tour, error) {
	q := `SELECT ` + visibleTourCols() + ` FROM tours
WHERE id IN (SELECT tour_id FROM bookings WHERE user_id=$1)
ORDER BY name`
	return r.table.many(ctx, q, userID)
}

func (r *ToursRepoImpl) Names(ctx context.Context, ids []int64) (map[int64]string, error) {
	out := make(map[int64]string, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	rows, err := r.db.Query(ctx, `SELECT id, name FROM tours WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			id   int64
			name string
		)
		if err := rows.Scan(&id, &name); err != nil {
			return nil, err
		}
		out[id] = name
	}
	return out, rows.Err()
}

// RecomputeRatings derives the tour's rating fields from its reviews in one
// statement, so concurrent review writes cannot interleave a stale average.
// No reviews resets the tour to the default rating.
func (r *ToursRepoImpl) RecomputeRatings(ctx context.Context, tourID int64) (domain.RatingStats, error) {
	const q = `
UPDATE tours t
SET ratings_quantity = s.quantity,
    ratings_average = CASE WHEN s.quantity = 0 THEN $2
                           ELSE round(s.average::numeric, 1)::float8 END
FROM (SELECT count(*)::int AS quantity, coalesce(avg(rating), 0)::float8 AS average
      FROM reviews WHERE tour_id = $1) s
WHERE t.id = $1
RETURNING t.ratings_quantity AS quantity, t.ratings_average AS average`
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	rows, err := r.db.Query(ctx, q, tourID, domain.DefaultRatingsAverage)
	if err != nil {
		return domain.RatingStats{}, err
	}
	stats, err := pgx.CollectExactlyOneRow(rows, pgx.RowToStructByName[domain.RatingStats])
	if errors.Is(err, pgx.ErrNoRows) {
		// the tour itself is gone
		return domain.RatingStats{}, nil
	}
	if err != nil {
		return domain.RatingStats{}, err
	}
	return stats, nil
}

var _ ToursRepo = (*ToursRepoImpl)(nil)
