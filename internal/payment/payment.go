// Package payment is the boundary to external payment processors.
package payment

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/affordeals/storefront/internal/models"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// ErrNotConfigured is returned when no payment processor is set up
var ErrNotConfigured = errors.New("payment provider not configured")

// Request describes the funds to collect for one order
type Request struct {
	OrderID       int64
	Amount        decimal.Decimal
	Currency      string
	CustomerEmail string
}

// Handle is what the client needs to complete payment with the processor
type Handle struct {
	Provider     string `json:"provider"`
	Reference    string `json:"reference"`
	RedirectURL  string `json:"redirect_url,omitempty"`
	ClientSecret string `json:"client_secret,omitempty"`
}

// Provider creates a payment intent for an order
type Provider interface {
	CreatePaymentIntent(ctx context.Context, req Request) (*Handle, error)
}

// Noop rejects every request; used when PAYMENT_PROVIDER=none
type Noop struct{}

// CreatePaymentIntent always fails with ErrNotConfigured
func (Noop) CreatePaymentIntent(context.Context, Request) (*Handle, error) {
	return nil, ErrNotConfigured
}

// zero-decimal currencies are charged in whole units
var zeroDecimalCurrencies = map[string]bool{
	"bif": true, "clp": true, "djf": true, "gnf": true, "jpy": true, "kmf": true,
	"krw": true, "mga": true, "pyg": true, "rwf": true, "ugx": true, "vnd": true,
	"vuv": true, "xaf": true, "xof": true, "xpf": true,
}

// MinorUnits converts an amount to the smallest currency unit (cents for USD)
func MinorUnits(amount decimal.Decimal, currency string) (int64, error) {
	if !amount.IsPositive() {
		return 0, fmt.Errorf("%w: amount must be positive, got %s", models.ErrInvalidArgument, amount)
	}

	shifted := amount.Shift(2)
	if zeroDecimalCurrencies[strings.ToLower(currency)] {
		shifted = amount
	}
	if !shifted.IsInteger() {
		return 0, fmt.Errorf("%w: %s %s has too many decimal places", models.ErrInvalidArgument, amount, currency)
	}
	return shifted.IntPart(), nil
}

// NewHTTPClient returns a client that traces outbound processor calls
func NewHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout:   timeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
}
