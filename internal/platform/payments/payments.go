// Package payments wraps the card-payment provider behind a small interface:
// open a hosted checkout, and turn a signed webhook into a typed event.
package payments

import (
	"context"

	"github.com/diagnosis/tourbook/internal/domain"
)

const EventCheckoutCompleted = "checkout.session.completed"

type LineItem struct {
	Name        string
	Description string
	ImageURL    string
	UnitAmount  int64 // cents
	Quantity    int64
}

type CheckoutRequest struct {
	SuccessURL        string
	CancelURL         string
	CustomerEmail     string
	ClientReferenceID string
	Currency          string
	Items             []LineItem
}

// Event is a verified webhook. Completed is set only for completed checkouts.
type Event struct {
	ID        string
	Type      string
	Completed *domain.CheckoutCompleted
}

type Provider interface {
	CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (domain.CheckoutSession, error)
	// ParseWebhook verifies the signature header before decoding anything.
	ParseWebhook(payload []byte, signature string) (Event, error)
}
