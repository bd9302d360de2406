package services

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/affordeals/storefront/internal/auth"
	"github.com/affordeals/storefront/internal/metrics"
	"github.com/affordeals/storefront/internal/models"
	"github.com/affordeals/storefront/internal/payment"
	"github.com/affordeals/storefront/internal/store"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func checkoutFixture(t *testing.T) (*fixture, *models.Order) {
	t.Helper()
	f := newFixture(t)
	f.fillCart(t)

	order, err := f.orders.Checkout(context.Background(), customer, models.CreateOrderRequest{CartID: f.cartID.String()})
	require.NoError(t, err)
	return f, order
}

func TestCheckoutCreatesPendingOrderAndDeletesCart(t *testing.T) {
	f, order := checkoutFixture(t)
	ctx := context.Background()

	assert.Equal(t, models.PaymentPending, order.PaymentStatus)
	assert.Equal(t, "25.00", order.TotalPrice.StringFixed(2))
	require.Len(t, order.Items, 2)
	assert.Equal(t, f.shirt.ID, order.Items[0].ProductID)
	assert.Equal(t, 2, order.Items[0].Quantity)
	assert.Equal(t, "10.00", order.Items[0].UnitPrice.StringFixed(2))
	assert.Equal(t, "Shirt", order.Items[0].ProductName)
	assert.Equal(t, f.socks.ID, order.Items[1].ProductID)

	profile, err := f.profiles.Me(ctx, customer)
	require.NoError(t, err)
	assert.Equal(t, profile.ID, order.ProfileID)

	_, err = f.carts.GetCart(ctx, f.cartID)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestCheckoutRejectsBadCarts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	missing := uuid.New()
	tests := []struct {
		name    string
		cartID  string
		message string
		cause   error
	}{
		{"malformed id", "not-a-uuid", "This not-a-uuid is an invalid id.", models.ErrInvalidArgument},
		{"unknown cart", missing.String(), "This " + missing.String() + " is an invalid id.", models.ErrNotFound},
		{"empty cart", f.cartID.String(), f.cartID.String() + ": is empty", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.orders.Checkout(ctx, customer, models.CreateOrderRequest{CartID: tt.cartID})
			require.ErrorIs(t, err, models.ErrValidation)
			if tt.cause != nil {
				assert.ErrorIs(t, err, tt.cause)
			}

			var verr *models.ValidationError
			require.True(t, errors.As(err, &verr))
			assert.Equal(t, []string{tt.message}, verr.Fields["cart_id"])
		})
	}

	orders, err := f.repo.ListOrders(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, orders)

	_, err = f.carts.GetCart(ctx, f.cartID)
	assert.NoError(t, err)
}

func TestCheckoutRequiresIdentity(t *testing.T) {
	f := newFixture(t)
	f.fillCart(t)

	_, err := f.orders.Checkout(context.Background(), nil, models.CreateOrderRequest{CartID: f.cartID.String()})
	assert.ErrorIs(t, err, models.ErrUnauthenticated)

	_, err = f.orders.Checkout(context.Background(), callback, models.CreateOrderRequest{CartID: f.cartID.String()})
	assert.ErrorIs(t, err, models.ErrForbidden)

	_, err = f.carts.GetCart(context.Background(), f.cartID)
	assert.NoError(t, err)
}

func TestOrderKeepsPriceSnapshot(t *testing.T) {
	f, order := checkoutFixture(t)
	ctx := context.Background()

	_, err := f.catalog.UpdateProductPrice(ctx, staff, f.shirt.ID, decimal.RequireFromString("99.00"))
	require.NoError(t, err)

	reread, err := f.orders.GetOrder(ctx, customer, order.ID)
	require.NoError(t, err)
	assert.Equal(t, "10.00", reread.Items[0].UnitPrice.StringFixed(2))
	assert.Equal(t, "25.00", reread.TotalPrice.StringFixed(2))
}

// failingItemsRepo fails the order items insert inside the checkout transaction
type failingItemsRepo struct {
	store.Repository
}

func (r failingItemsRepo) WithTx(ctx context.Context, fn func(store.Repository) error) error {
	return r.Repository.WithTx(ctx, func(tx store.Repository) error {
		return fn(failingItemsRepo{tx})
	})
}

func (r failingItemsRepo) InsertOrderItems(context.Context, int64, []models.OrderItem) error {
	return models.Unavailable("failed to insert order items", errors.New("connection reset"))
}

func TestCheckoutRollsBackOnFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fillCart(t)

	orders := NewOrderService(failingItemsRepo{f.repo}, metrics.NewNoop("storefront-test"), auth.Policy{}, payment.Noop{}, "USD")
	_, err := orders.Checkout(ctx, customer, models.CreateOrderRequest{CartID: f.cartID.String()})
	require.ErrorIs(t, err, models.ErrUnavailable)

	cart, err := f.carts.GetCart(ctx, f.cartID)
	require.NoError(t, err)
	assert.Len(t, cart.Items, 2)
	assert.Equal(t, "25.00", cart.TotalPrice.StringFixed(2))

	all, err := f.repo.ListOrders(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestConcurrentCheckoutCreatesOneOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fillCart(t)

	const workers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		failures  []error
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.orders.Checkout(ctx, customer, models.CreateOrderRequest{CartID: f.cartID.String()})
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				successes++
				return
			}
			failures = append(failures, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	for _, err := range failures {
		assert.ErrorIs(t, err, models.ErrValidation)
		assert.ErrorIs(t, err, models.ErrNotFound)
	}

	all, err := f.repo.ListOrders(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestUpdatePaymentStatus(t *testing.T) {
	tests := []struct {
		name    string
		caller  *auth.Identity
		status  string
		want    models.PaymentStatus
		wantErr error
	}{
		{"staff completes", staff, "complete", models.PaymentComplete, nil},
		{"staff fails with letter code", staff, "F", models.PaymentFailed, nil},
		{"callback completes", callback, "completed", models.PaymentComplete, nil},
		{"back to pending", staff, "pending", "", models.ErrInvalidArgument},
		{"unknown status", staff, "refunded", "", models.ErrInvalidArgument},
		{"customer", customer, "complete", "", models.ErrForbidden},
		{"anonymous", nil, "complete", "", models.ErrUnauthenticated},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, order := checkoutFixture(t)

			updated, err := f.orders.UpdatePaymentStatus(context.Background(), tt.caller, order.ID, tt.status)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				stored, err := f.repo.GetOrder(context.Background(), order.ID)
				require.NoError(t, err)
				assert.Equal(t, models.PaymentPending, stored.PaymentStatus)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, updated.PaymentStatus)
		})
	}
}

func TestTerminalOrderCannotMove(t *testing.T) {
	f, order := checkoutFixture(t)
	ctx := context.Background()

	_, err := f.orders.UpdatePaymentStatus(ctx, staff, order.ID, "complete")
	require.NoError(t, err)

	_, err = f.orders.UpdatePaymentStatus(ctx, staff, order.ID, "failed")
	assert.ErrorIs(t, err, models.ErrInvalidState)
	_, err = f.orders.UpdatePaymentStatus(ctx, callback, order.ID, "complete")
	assert.ErrorIs(t, err, models.ErrInvalidState)
	_, err = f.orders.UpdatePaymentStatus(ctx, staff, order.ID, "pending")
	assert.ErrorIs(t, err, models.ErrInvalidState)
	assert.NotErrorIs(t, err, models.ErrInvalidArgument)

	_, err = f.orders.UpdatePaymentStatus(ctx, staff, order.ID+1000, "complete")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestOrderVisibility(t *testing.T) {
	f, order := checkoutFixture(t)
	ctx := context.Background()

	_, err := f.orders.GetOrder(ctx, customer, order.ID)
	assert.NoError(t, err)
	_, err = f.orders.GetOrder(ctx, staff, order.ID)
	assert.NoError(t, err)
	_, err = f.orders.GetOrder(ctx, otherCustomer, order.ID)
	assert.ErrorIs(t, err, models.ErrNotFound)
	_, err = f.orders.GetOrder(ctx, nil, order.ID)
	assert.ErrorIs(t, err, models.ErrUnauthenticated)

	own, err := f.orders.ListOrders(ctx, customer)
	require.NoError(t, err)
	assert.Len(t, own, 1)

	others, err := f.orders.ListOrders(ctx, otherCustomer)
	require.NoError(t, err)
	assert.Empty(t, others)

	all, err := f.orders.ListOrders(ctx, staff)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestOrderReadsDoNotCreateProfiles(t *testing.T) {
	f, order := checkoutFixture(t)
	ctx := context.Background()

	_, err := f.orders.GetOrder(ctx, otherCustomer, order.ID)
	assert.ErrorIs(t, err, models.ErrNotFound)
	orders, err := f.orders.ListOrders(ctx, otherCustomer)
	require.NoError(t, err)
	assert.NotNil(t, orders)
	assert.Empty(t, orders)

	_, err = f.repo.GetProfile(ctx, otherCustomer.UserID)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestStartPayment(t *testing.T) {
	f, order := checkoutFixture(t)
	ctx := context.Background()

	handle, err := f.orders.StartPayment(ctx, customer, order.ID)
	require.NoError(t, err)
	assert.Equal(t, "ref-1", handle.Reference)

	require.Len(t, f.payments.requests, 1)
	req := f.payments.requests[0]
	assert.Equal(t, order.ID, req.OrderID)
	assert.Equal(t, "25.00", req.Amount.StringFixed(2))
	assert.Equal(t, "USD", req.Currency)
	assert.Equal(t, customer.Email, req.CustomerEmail)

	_, err = f.orders.StartPayment(ctx, otherCustomer, order.ID)
	assert.ErrorIs(t, err, models.ErrNotFound)

	_, err = f.orders.UpdatePaymentStatus(ctx, staff, order.ID, "complete")
	require.NoError(t, err)
	_, err = f.orders.StartPayment(ctx, customer, order.ID)
	assert.ErrorIs(t, err, models.ErrInvalidState)
	assert.Len(t, f.payments.requests, 1)
}

func TestStartPaymentWithoutProvider(t *testing.T) {
	f, order := checkoutFixture(t)

	orders := NewOrderService(f.repo, metrics.NewNoop("storefront-test"), auth.Policy{}, payment.Noop{}, "USD")
	_, err := orders.StartPayment(context.Background(), customer, order.ID)

	assert.ErrorIs(t, err, models.ErrUnavailable)
	assert.ErrorIs(t, err, payment.ErrNotConfigured)
}
