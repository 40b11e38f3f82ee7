package domain

import "time"

type Review struct {
	ID        int64     `json:"id" db:"id"`
	Review    string    `json:"review" db:"review" validate:"required"`
	Rating    int       `json:"rating" db:"rating" validate:"required,min=1,max=5"`
	Tour      int64     `json:"tour" db:"tour_id" validate:"required"`
	User      int64     `json:"user" db:"user_id" validate:"required"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`

	Author *UserSummary `json:"author,omitempty" db:"-"`
}

// RatingStats is the aggregate the tour's rating fields are derived from.
type RatingStats struct {
	Quantity int     `db:"quantity"`
	Average  float64 `db:"average"`
}
