package mailer

import "context"

type Recipient struct {
	Email string
	Name  string
}

// Sender delivers one message and returns the provider's message id when
// there is one.
type Sender interface {
	Send(ctx context.Context, to Recipient, subject, text, html string) (string, error)
}

// Service is the set of emails the application sends.
type Service interface {
	SendWelcome(ctx context.Context, to Recipient, accountURL string) error
	SendPasswordReset(ctx context.Context, to Recipient, resetURL string) error
	SendBookingConfirmation(ctx context.Context, to Recipient, b BookingMail) error
}

type BookingMail struct {
	BookingID int64
	TourName  string
	Price     float64
	ToursURL  string
}
