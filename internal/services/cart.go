package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/affordeals/storefront/internal/metrics"
	"github.com/affordeals/storefront/internal/models"
	"github.com/affordeals/storefront/internal/store"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// CartService handles cart-related operations
type CartService struct {
	repo    store.Repository
	metrics *metrics.AppMetrics
}

// NewCartService creates a new cart service
func NewCartService(repo store.Repository, metrics *metrics.AppMetrics) *CartService {
	return &CartService{
		repo:    repo,
		metrics: metrics,
	}
}

// MonitorActiveCarts periodically updates the active carts gauge until ctx is cancelled
func (s *CartService) MonitorActiveCarts(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.recordActiveCarts(ctx)
		}
	}
}

func (s *CartService) recordActiveCarts(ctx context.Context) {
	count, err := s.repo.CountActiveCarts(ctx)
	if err != nil {
		log.Printf("[CART] Failed to count active carts: %v", err)
		return
	}
	s.metrics.ActiveCartsCount.Record(ctx, int64(count), metric.WithAttributes(s.metrics.WithServiceName([]attribute.KeyValue{})...))
}

// CreateCart creates an empty anonymous cart
func (s *CartService) CreateCart(ctx context.Context) (*models.Cart, error) {
	cart := &models.Cart{
		ID:         uuid.New(),
		CreatedAt:  time.Now().UTC().Truncate(time.Second),
		Items:      []models.CartLine{},
		TotalPrice: decimal.Zero,
	}
	if err := s.repo.CreateCart(ctx, cart); err != nil {
		return nil, err
	}

	log.Printf("[CART] Cart created: cart_id=%s", cart.ID)
	return cart, nil
}

// GetCart returns the cart with its lines priced at the current product prices
func (s *CartService) GetCart(ctx context.Context, id uuid.UUID) (*models.Cart, error) {
	cart, err := s.repo.GetCart(ctx, id, false)
	if err != nil {
		return nil, err
	}

	lines, err := s.repo.ListCartLines(ctx, id)
	if err != nil {
		return nil, err
	}
	cart.Items = lines
	cart.Price()

	return cart, nil
}

// AddItem adds quantity of a product to the cart. A product already in the
// cart has its line incremented instead of getting a second line.
func (s *CartService) AddItem(ctx context.Context, cartID uuid.UUID, req models.AddCartItemRequest) (*models.CartItem, error) {
	if err := checkQuantity(req.Quantity); err != nil {
		return nil, err
	}

	var item *models.CartItem
	err := s.repo.WithTx(ctx, func(tx store.Repository) error {
		if _, err := tx.GetCart(ctx, cartID, false); err != nil {
			return err
		}
		if _, err := tx.GetProduct(ctx, req.ProductID); err != nil {
			return err
		}

		existing, err := tx.FindCartItem(ctx, cartID, req.ProductID, true)
		if err != nil && !errors.Is(err, models.ErrNotFound) {
			return err
		}

		if existing == nil {
			item = &models.CartItem{CartID: cartID, ProductID: req.ProductID, Quantity: req.Quantity}
			return tx.InsertCartItem(ctx, item)
		}

		quantity := existing.Quantity + req.Quantity
		if err := checkQuantity(quantity); err != nil {
			return err
		}
		if err := tx.SetCartItemQuantity(ctx, existing.ID, quantity); err != nil {
			return err
		}
		existing.Quantity = quantity
		item = existing
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Printf("[CART] Item added: cart_id=%s, product_id=%d, quantity=%d", cartID, item.ProductID, item.Quantity)
	s.updateCartItemsCount(ctx, cartID)

	return item, nil
}

// UpdateItemQuantity replaces the quantity of one cart line
func (s *CartService) UpdateItemQuantity(ctx context.Context, cartID uuid.UUID, itemID int64, req models.UpdateCartItemRequest) (*models.CartItem, error) {
	if err := checkQuantity(req.Quantity); err != nil {
		return nil, err
	}

	var item *models.CartItem
	err := s.repo.WithTx(ctx, func(tx store.Repository) error {
		var err error
		if item, err = tx.GetCartItem(ctx, cartID, itemID); err != nil {
			return err
		}
		if err := tx.SetCartItemQuantity(ctx, itemID, req.Quantity); err != nil {
			return err
		}
		item.Quantity = req.Quantity
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.updateCartItemsCount(ctx, cartID)
	return item, nil
}

// RemoveItem removes a line from the cart
func (s *CartService) RemoveItem(ctx context.Context, cartID uuid.UUID, itemID int64) error {
	if err := s.repo.DeleteCartItem(ctx, cartID, itemID); err != nil {
		return err
	}

	s.updateCartItemsCount(ctx, cartID)
	return nil
}

// DeleteCart deletes the cart and all of its lines
func (s *CartService) DeleteCart(ctx context.Context, id uuid.UUID) error {
	if err := s.repo.DeleteCart(ctx, id); err != nil {
		return err
	}

	log.Printf("[CART] Cart deleted: cart_id=%s", id)
	return nil
}

// updateCartItemsCount updates the cart items count gauge metric
func (s *CartService) updateCartItemsCount(ctx context.Context, cartID uuid.UUID) {
	lines, err := s.repo.ListCartLines(ctx, cartID)
	if err != nil {
		log.Printf("[CART] Could not read cart for metrics: cart_id=%s, err=%v", cartID, err)
		return
	}

	count := 0
	for _, line := range lines {
		count += line.Quantity
	}
	cartAttrs := s.metrics.WithServiceName([]attribute.KeyValue{
		attribute.String("cart_id", cartID.String()),
	})
	s.metrics.CartItemsCount.Record(ctx, int64(count), metric.WithAttributes(cartAttrs...))
}

func checkQuantity(quantity int) error {
	if quantity < 1 {
		return fmt.Errorf("%w: quantity must be at least 1, got %d", models.ErrInvalidArgument, quantity)
	}
	if quantity > models.MaxLineQuantity {
		return fmt.Errorf("%w: quantity must be at most %d, got %d", models.ErrInvalidArgument, models.MaxLineQuantity, quantity)
	}
	return nil
}
