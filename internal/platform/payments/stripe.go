package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"

	"github.com/diagnosis/tourbook/internal/apperr"
	"github.com/diagnosis/tourbook/internal/domain"
)

var ErrNotConfigured = errors.New("payments are not configured")

type Stripe struct {
	api           *client.API
	webhookSecret string
	enabled       bool
}

func NewStripe(secretKey, webhookSecret string) *Stripe {
	s := &Stripe{webhookSecret: webhookSecret, enabled: secretKey != ""}
	if s.enabled {
		s.api = &client.API{}
		s.api.Init(secretKey, nil)
	}
	return s
}

func (s *Stripe) CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (domain.CheckoutSession, error) {
	if !s.enabled {
		return domain.CheckoutSession{}, apperr.Operational(ErrNotConfigured, "Payments are currently unavailable, try again later!")
	}

	params := &stripe.CheckoutSessionParams{
		Mode:               stripe.String(string(stripe.CheckoutSessionModePayment)),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		SuccessURL:         stripe.String(req.SuccessURL),
		CancelURL:          stripe.String(req.CancelURL),
		CustomerEmail:      stripe.String(req.CustomerEmail),
		ClientReferenceID:  stripe.String(req.ClientReferenceID),
	}
	for _, item := range req.Items {
		product := &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
			Name:        stripe.String(item.Name),
			Description: stripe.String(item.Description),
		}
		if item.ImageURL != "" {
			product.Images = stripe.StringSlice([]string{item.ImageURL})
		}
		params.LineItems = append(params.LineItems, &stripe.CheckoutSessionLineItemParams{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:    stripe.String(req.Currency),
				UnitAmount:  stripe.Int64(item.UnitAmount),
				ProductData: product,
			},
			Quantity: stripe.Int64(item.Quantity),
		})
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	params.Context = ctx

	sess, err := s.api.CheckoutSessions.New(params)
	if err != nil {
		return domain.CheckoutSession{}, apperr.Operational(fmt.Errorf("stripe checkout: %w", err),
			"There was an error creating the checkout session, try again later!")
	}
	return domain.CheckoutSession{ID: sess.ID, URL: sess.URL}, nil
}

func (s *Stripe) ParseWebhook(payload []byte, signature string) (Event, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signature, s.webhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return Event{}, apperr.InvalidSignature(err)
	}

	out := Event{ID: event.ID, Type: string(event.Type)}
	if out.Type != EventCheckoutCompleted {
		return out, nil
	}

	var sess stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
		return Event{}, apperr.BadInput("Webhook error: malformed checkout session")
	}
	tourID, err := strconv.ParseInt(sess.ClientReferenceID, 10, 64)
	if err != nil {
		return Event{}, apperr.BadInput("Webhook error: invalid client_reference_id " + strconv.Quote(sess.ClientReferenceID))
	}
	email := sess.CustomerEmail
	if email == "" && sess.CustomerDetails != nil {
		email = sess.CustomerDetails.Email
	}
	out.Completed = &domain.CheckoutCompleted{
		SessionID:     sess.ID,
		TourID:        tourID,
		CustomerEmail: email,
		AmountTotal:   sess.AmountTotal,
	}
	return out, nil
}

var _ Provider = (*Stripe)(nil)
