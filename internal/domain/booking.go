package domain

import "time"

type Booking struct {
	ID                int64     `json:"id" db:"id"`
	Tour              int64     `json:"tour" db:"tour_id" validate:"required"`
	User              int64     `json:"user" db:"user_id" validate:"required"`
	Price             float64   `json:"price" db:"price" validate:"required,gt=0"`
	Paid              bool      `json:"paid" db:"paid"`
	CheckoutSessionID *string   `json:"checkoutSessionId,omitempty" db:"checkout_session_id"`
	CreatedAt         time.Time `json:"createdAt" db:"created_at"`

	TourName string       `json:"tourName,omitempty" db:"-"`
	Customer *UserSummary `json:"customer,omitempty" db:"-"`
}

// CheckoutCompleted is what a paid checkout session tells us.
type CheckoutCompleted struct {
	SessionID     string
	TourID        int64
	CustomerEmail string
	AmountTotal   int64 // smallest currency unit
}

func (c CheckoutCompleted) Price() float64 {
	return float64(c.AmountTotal) / 100
}

type CheckoutSession struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}
