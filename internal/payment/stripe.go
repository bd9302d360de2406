package payment

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/affordeals/storefront/internal/models"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
)

// Stripe creates PaymentIntents; the client confirms them with the returned secret
type Stripe struct {
	api *client.API
}

// NewStripe creates a Stripe provider. backends may be nil for the defaults.
func NewStripe(secretKey string, backends *stripe.Backends) *Stripe {
	return &Stripe{api: client.New(secretKey, backends)}
}

// CreatePaymentIntent creates one intent per order; retries reuse it through the idempotency key
func (s *Stripe) CreatePaymentIntent(ctx context.Context, req Request) (*Handle, error) {
	amount, err := MinorUnits(req.Amount, req.Currency)
	if err != nil {
		return nil, err
	}

	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(amount),
		Currency: stripe.String(strings.ToLower(req.Currency)),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	if req.CustomerEmail != "" {
		params.ReceiptEmail = stripe.String(req.CustomerEmail)
	}
	params.Context = ctx
	params.AddMetadata("order_id", strconv.FormatInt(req.OrderID, 10))
	params.SetIdempotencyKey(fmt.Sprintf("order-%d-%d-%s", req.OrderID, amount, strings.ToLower(req.Currency)))

	intent, err := s.api.PaymentIntents.New(params)
	if err != nil {
		return nil, fmt.Errorf("stripe: %w: %w", models.ErrUnavailable, err)
	}

	return &Handle{
		Provider:     "stripe",
		Reference:    intent.ID,
		ClientSecret: intent.ClientSecret,
	}, nil
}
