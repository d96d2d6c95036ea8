package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
)

// Stripe adapts the Stripe PaymentIntents API to Gateway. Every request
// carries the caller's context; the HTTP client timeout is a backstop for
// callers that pass a context without a deadline.
type Stripe struct {
	api *client.API
}

func NewStripe(secretKey string, timeout time.Duration) *Stripe {
	httpClient := &http.Client{Timeout: timeout}
	return &Stripe{api: client.New(secretKey, stripe.NewBackends(httpClient))}
}

func (s *Stripe) CreateIntent(ctx context.Context, req CreateIntentRequest) (*Intent, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(req.AmountCents),
		Currency: stripe.String(req.Currency),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}
	pi, err := s.api.PaymentIntents.New(params)
	if err != nil {
		return nil, mapStripeErr(err)
	}
	return fromPaymentIntent(pi), nil
}

func (s *Stripe) GetIntent(ctx context.Context, intentID string) (*Intent, error) {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	params.AddExpand("latest_charge")
	pi, err := s.api.PaymentIntents.Get(intentID, params)
	if err != nil {
		return nil, mapStripeErr(err)
	}
	return fromPaymentIntent(pi), nil
}

func (s *Stripe) Refund(ctx context.Context, intentID, reason string) (*Refund, error) {
	in, err := s.GetIntent(ctx, intentID)
	if err != nil {
		return nil, err
	}
	switch in.Status {
	case StatusCanceled, StatusRefunded:
		return &Refund{ID: intentID, IntentID: intentID}, nil
	case StatusAuthorized:
		params := &stripe.PaymentIntentCancelParams{
			CancellationReason: stripe.String(string(stripe.PaymentIntentCancellationReasonRequestedByCustomer)),
		}
		params.Context = ctx
		if _, err := s.api.PaymentIntents.Cancel(intentID, params); err != nil {
			return nil, mapStripeErr(err)
		}
		// releasing an uncaptured intent has no refund object; the intent id stands in
		return &Refund{ID: intentID, IntentID: intentID}, nil
	}

	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(intentID),
		Reason:        stripe.String(string(stripe.RefundReasonRequestedByCustomer)),
	}
	params.Context = ctx
	params.AddMetadata("reason", reason)
	params.SetIdempotencyKey("refund-" + intentID)
	rf, err := s.api.Refunds.New(params)
	if err != nil {
		var se *stripe.Error
		if errors.As(err, &se) && se.Code == stripe.ErrorCodeChargeAlreadyRefunded {
			return &Refund{ID: intentID, IntentID: intentID}, nil
		}
		return nil, mapStripeErr(err)
	}
	return &Refund{ID: rf.ID, IntentID: intentID}, nil
}

func fromPaymentIntent(pi *stripe.PaymentIntent) *Intent {
	in := &Intent{
		ID:          pi.ID,
		ClientToken: pi.ClientSecret,
		AmountCents: pi.Amount,
		Currency:    string(pi.Currency),
		Metadata:    pi.Metadata,
	}
	switch pi.Status {
	case stripe.PaymentIntentStatusSucceeded:
		in.Status = StatusCaptured
	case stripe.PaymentIntentStatusRequiresCapture:
		in.Status = StatusAuthorized
	case stripe.PaymentIntentStatusCanceled:
		in.Status = StatusCanceled
	default:
		in.Status = StatusPending
	}
	if pi.LatestCharge != nil {
		in.ReceiptRef = pi.LatestCharge.ID
		if pi.LatestCharge.Refunded {
			in.Status = StatusRefunded
		}
	}
	return in
}

func mapStripeErr(err error) error {
	var se *stripe.Error
	if errors.As(err, &se) {
		switch {
		case se.HTTPStatusCode == http.StatusNotFound:
			return fmt.Errorf("%w: %s", ErrIntentNotFound, se.Msg)
		case se.HTTPStatusCode == http.StatusTooManyRequests, se.HTTPStatusCode >= 500:
			return fmt.Errorf("%w: %s", ErrUnavailable, se.Msg)
		}
		return fmt.Errorf("stripe: %s", se.Msg)
	}
	// transport errors and deadline expiry
	return fmt.Errorf("%w: %w", ErrUnavailable, err)
}
