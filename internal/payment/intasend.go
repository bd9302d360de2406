package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/affordeals/storefront/internal/models"
)

// IntaSend creates hosted checkout sessions and returns their redirect URL
type IntaSend struct {
	baseURL     string
	publicKey   string
	redirectURL string
	client      *http.Client
}

// NewIntaSend creates an IntaSend provider against baseURL
func NewIntaSend(baseURL, publicKey, redirectURL string, client *http.Client) *IntaSend {
	return &IntaSend{
		baseURL:     strings.TrimRight(baseURL, "/"),
		publicKey:   publicKey,
		redirectURL: redirectURL,
		client:      client,
	}
}

type intaSendCheckoutRequest struct {
	PublicKey   string `json:"public_key"`
	Amount      string `json:"amount"`
	Currency    string `json:"currency"`
	Email       string `json:"email,omitempty"`
	APIRef      string `json:"api_ref"`
	RedirectURL string `json:"redirect_url,omitempty"`
}

type intaSendCheckoutResponse struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// CreatePaymentIntent opens a checkout session for the order amount
func (p *IntaSend) CreatePaymentIntent(ctx context.Context, req Request) (*Handle, error) {
	if !req.Amount.IsPositive() {
		return nil, fmt.Errorf("%w: amount must be positive, got %s", models.ErrInvalidArgument, req.Amount)
	}

	body, err := json.Marshal(intaSendCheckoutRequest{
		PublicKey:   p.publicKey,
		Amount:      req.Amount.StringFixed(2),
		Currency:    strings.ToUpper(req.Currency),
		Email:       req.CustomerEmail,
		APIRef:      "order-" + strconv.FormatInt(req.OrderID, 10),
		RedirectURL: p.redirectURL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode checkout request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/api/v1/checkout/", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build checkout request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("intasend: %w: %w", models.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("intasend: %w: status %d: %s", models.ErrUnavailable, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var out intaSendCheckoutResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("intasend: %w: invalid response: %w", models.ErrUnavailable, err)
	}
	if out.URL == "" {
		return nil, fmt.Errorf("intasend: %w: response has no checkout url", models.ErrUnavailable)
	}

	return &Handle{
		Provider:    "intasend",
		Reference:   out.ID,
		RedirectURL: out.URL,
	}, nil
}
