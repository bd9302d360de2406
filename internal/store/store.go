// Package store holds the repositories behind the storefront use cases.
// MySQL is the production backend; Memory keeps the same contract in-process.
package store

import (
	"context"

	"github.com/affordeals/storefront/internal/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CatalogRepository reads and administers products and categories
type CatalogRepository interface {
	GetProduct(ctx context.Context, id int64) (*models.Product, error)
	ListProducts(ctx context.Context, limit, offset int) ([]models.Product, error)
	CreateProduct(ctx context.Context, p *models.Product) error
	UpdateProductPrice(ctx context.Context, id int64, price decimal.Decimal) error
	DeleteProduct(ctx context.Context, id int64) error
	ListCategories(ctx context.Context) ([]models.Category, error)
	CreateCategory(ctx context.Context, c *models.Category) error
}

// CartRepository stores carts and their lines.
// At most one line exists per (cart, product).
type CartRepository interface {
	CreateCart(ctx context.Context, cart *models.Cart) error
	// GetCart returns the cart without lines. forUpdate locks the row until the transaction ends.
	GetCart(ctx context.Context, id uuid.UUID, forUpdate bool) (*models.Cart, error)
	// ListCartLines returns lines in insertion order, priced at the products' current prices.
	ListCartLines(ctx context.Context, cartID uuid.UUID) ([]models.CartLine, error)
	FindCartItem(ctx context.Context, cartID uuid.UUID, productID int64, forUpdate bool) (*models.CartItem, error)
	GetCartItem(ctx context.Context, cartID uuid.UUID, itemID int64) (*models.CartItem, error)
	// InsertCartItem fails with ErrConflict when the product already has a line in the cart.
	InsertCartItem(ctx context.Context, item *models.CartItem) error
	SetCartItemQuantity(ctx context.Context, itemID int64, quantity int) error
	DeleteCartItem(ctx context.Context, cartID uuid.UUID, itemID int64) error
	DeleteCart(ctx context.Context, id uuid.UUID) error
	CountActiveCarts(ctx context.Context) (int, error)
}

// OrderRepository stores orders and their price-snapshotted items
type OrderRepository interface {
	CreateOrder(ctx context.Context, o *models.Order) error
	InsertOrderItems(ctx context.Context, orderID int64, items []models.OrderItem) error
	GetOrder(ctx context.Context, id int64) (*models.Order, error)
	// ListOrders returns orders newest first; profileID 0 lists every order.
	ListOrders(ctx context.Context, profileID int64) ([]models.Order, error)
	// UpdatePaymentStatus moves an order from one status to another, failing with
	// ErrInvalidState when the stored status is no longer from.
	UpdatePaymentStatus(ctx context.Context, id int64, from, to models.PaymentStatus) error
}

// ReviewRepository stores product reviews
type ReviewRepository interface {
	CreateReview(ctx context.Context, r *models.Review) error
	ListReviews(ctx context.Context, productID int64) ([]models.Review, error)
}

// ProfileRepository stores site profiles keyed by the identity's user id
type ProfileRepository interface {
	GetOrCreateProfile(ctx context.Context, userID int64) (*models.Profile, error)
	// GetProfile fails with ErrNotFound when the user has never checked out or opened a profile.
	GetProfile(ctx context.Context, userID int64) (*models.Profile, error)
	UpdateProfile(ctx context.Context, p *models.Profile) error
}

// Repository is the full storage contract used by the services
type Repository interface {
	CatalogRepository
	CartRepository
	OrderRepository
	ReviewRepository
	ProfileRepository

	// WithTx runs fn in one transaction. The Repository passed to fn is bound to
	// it; fn returning an error rolls everything back.
	WithTx(ctx context.Context, fn func(Repository) error) error
}

var (
	_ Repository = (*MySQL)(nil)
	_ Repository = (*Memory)(nil)
)
