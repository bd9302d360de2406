package services

import (
	"context"
	"testing"

	"github.com/affordeals/storefront/internal/auth"
	"github.com/affordeals/storefront/internal/metrics"
	"github.com/affordeals/storefront/internal/models"
	"github.com/affordeals/storefront/internal/payment"
	"github.com/affordeals/storefront/internal/store"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

var (
	customer      = &auth.Identity{UserID: 10, Email: "ann@example.com"}
	otherCustomer = &auth.Identity{UserID: 11, Email: "bob@example.com"}
	staff         = &auth.Identity{UserID: 1, Email: "ops@example.com", Staff: true}
	callback      = &auth.Identity{PaymentCallback: true}
)

type fixture struct {
	repo     *store.Memory
	carts    *CartService
	orders   *OrderService
	catalog  *CatalogService
	reviews  *ReviewService
	profiles *ProfileService
	payments *fakeProvider

	shirt  models.Product // 10.00
	socks  models.Product // 5.00
	cartID uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	repo := store.NewMemory()
	m := metrics.NewNoop("storefront-test")
	authz := auth.Policy{}
	provider := &fakeProvider{}

	f := &fixture{
		repo:     repo,
		carts:    NewCartService(repo, m),
		orders:   NewOrderService(repo, m, authz, provider, "USD"),
		catalog:  NewCatalogService(repo, m, authz),
		reviews:  NewReviewService(repo, m),
		profiles: NewProfileService(repo, authz),
		payments: provider,
	}

	category := &models.Category{Name: "Clothing"}
	require.NoError(t, repo.CreateCategory(ctx, category))

	f.shirt = models.Product{Name: "Shirt", CategoryID: category.ID, UnitPrice: decimal.RequireFromString("10.00"), QuantityInStock: 40}
	require.NoError(t, repo.CreateProduct(ctx, &f.shirt))
	f.socks = models.Product{Name: "Socks", CategoryID: category.ID, UnitPrice: decimal.RequireFromString("5.00"), QuantityInStock: 90}
	require.NoError(t, repo.CreateProduct(ctx, &f.socks))

	cart, err := f.carts.CreateCart(ctx)
	require.NoError(t, err)
	f.cartID = cart.ID

	return f
}

// fillCart puts 2 shirts and 1 pair of socks in the fixture cart
func (f *fixture) fillCart(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	_, err := f.carts.AddItem(ctx, f.cartID, models.AddCartItemRequest{ProductID: f.shirt.ID, Quantity: 2})
	require.NoError(t, err)
	_, err = f.carts.AddItem(ctx, f.cartID, models.AddCartItemRequest{ProductID: f.socks.ID, Quantity: 1})
	require.NoError(t, err)
}

type fakeProvider struct {
	requests []payment.Request
	err      error
}

func (p *fakeProvider) CreatePaymentIntent(_ context.Context, req payment.Request) (*payment.Handle, error) {
	p.requests = append(p.requests, req)
	if p.err != nil {
		return nil, p.err
	}
	return &payment.Handle{Provider: "fake", Reference: "ref-1", ClientSecret: "secret-1"}, nil
}
