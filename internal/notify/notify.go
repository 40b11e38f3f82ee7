// Package notify turns domain events into customer emails.
package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/diagnosis/tourbook/internal/platform/mailer"
	"github.com/diagnosis/tourbook/pkg/events"
	"github.com/diagnosis/tourbook/pkg/logger"
)

// Queue groups notify workers so each event is mailed once.
const Queue = "notify"

type Notifier struct {
	mailer  mailer.Service
	baseURL string
}

func New(m mailer.Service, baseURL string) *Notifier {
	return &Notifier{mailer: m, baseURL: strings.TrimRight(baseURL, "/")}
}

func (n *Notifier) UserSignedUp(ctx context.Context, msg *events.Message) error {
	var ev events.UserSignedUpEvent
	if err := msg.Decode(&ev); err != nil {
		return err
	}
	if ev.Email == "" {
		return fmt.Errorf("%s %s: missing email", msg.Subject, msg.ID)
	}
	return n.mailer.SendWelcome(ctx, mailer.Recipient{Email: ev.Email, Name: ev.Name}, n.baseURL+"/me")
}

func (n *Notifier) BookingCreated(ctx context.Context, msg *events.Message) error {
	var ev events.BookingCreatedEvent
	if err := msg.Decode(&ev); err != nil {
		return err
	}
	if ev.CustomerEmail == "" {
		return fmt.Errorf("%s %s: missing customer email", msg.Subject, msg.ID)
	}
	return n.mailer.SendBookingConfirmation(ctx,
		mailer.Recipient{Email: ev.CustomerEmail, Name: ev.CustomerName},
		mailer.BookingMail{
			BookingID: ev.BookingID,
			TourName:  ev.TourName,
			Price:     ev.Price,
			ToursURL:  n.baseURL + "/my-tours?alert=booking",
		})
}

// Subscribe registers both handlers on the queue group. Failures are logged;
// the message is not redelivered.
func (n *Notifier) Subscribe(ctx context.Context, sub events.Subscriber) error {
	handlers := map[string]func(context.Context, *events.Message) error{
		events.UserSignedUp:   n.UserSignedUp,
		events.BookingCreated: n.BookingCreated,
	}
	for subject, handle := range handlers {
		handle := handle
		err := sub.QueueSubscribe(subject, Queue, func(msg *events.Message) {
			if err := handle(ctx, msg); err != nil {
				logger.ErrorContext(ctx, "Failed to send notification", "subject", msg.Subject, "event_id", msg.ID, "error", err)
				return
			}
			logger.InfoContext(ctx, "Notification sent", "subject", msg.Subject, "event_id", msg.ID)
		})
		if err != nil {
			return fmt.Errorf("subscribe %s: %w", subject, err)
		}
	}
	return nil
}
