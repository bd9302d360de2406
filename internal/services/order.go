package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/affordeals/storefront/internal/auth"
	"github.com/affordeals/storefront/internal/metrics"
	"github.com/affordeals/storefront/internal/models"
	"github.com/affordeals/storefront/internal/payment"
	"github.com/affordeals/storefront/internal/store"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// OrderService handles checkout and order payment state
type OrderService struct {
	repo     store.Repository
	metrics  *metrics.AppMetrics
	authz    auth.Authorizer
	payments payment.Provider
	currency string
}

// NewOrderService creates a new order service
func NewOrderService(repo store.Repository, metrics *metrics.AppMetrics, authz auth.Authorizer, payments payment.Provider, currency string) *OrderService {
	return &OrderService{
		repo:     repo,
		metrics:  metrics,
		authz:    authz,
		payments: payments,
		currency: currency,
	}
}

// Checkout turns a cart into a pending order owned by the caller. The order,
// its items and the cart deletion commit together or not at all.
func (s *OrderService) Checkout(ctx context.Context, caller *auth.Identity, req models.CreateOrderRequest) (*models.Order, error) {
	if err := s.authz.Authorize(caller, auth.Checkout); err != nil {
		return nil, err
	}

	raw := strings.TrimSpace(req.CartID)
	cartID, err := uuid.Parse(raw)
	if err != nil {
		return nil, models.NewValidationError("cart_id", fmt.Sprintf("This %s is an invalid id.", raw), models.ErrInvalidArgument)
	}

	var orderID int64
	var itemCount int
	err = s.repo.WithTx(ctx, func(tx store.Repository) error {
		if _, err := tx.GetCart(ctx, cartID, true); err != nil {
			if errors.Is(err, models.ErrNotFound) {
				return models.NewValidationError("cart_id", fmt.Sprintf("This %s is an invalid id.", cartID), err)
			}
			return err
		}

		lines, err := tx.ListCartLines(ctx, cartID)
		if err != nil {
			return err
		}
		if len(lines) == 0 {
			return models.NewValidationError("cart_id", fmt.Sprintf("%s: is empty", cartID), nil)
		}

		profile, err := tx.GetOrCreateProfile(ctx, caller.UserID)
		if err != nil {
			return err
		}

		order := &models.Order{
			CreatedAt:     time.Now().UTC().Truncate(time.Second),
			ProfileID:     profile.ID,
			PaymentStatus: models.PaymentPending,
		}
		if err := tx.CreateOrder(ctx, order); err != nil {
			return err
		}

		items := make([]models.OrderItem, 0, len(lines))
		for _, line := range lines {
			items = append(items, models.OrderItem{
				ProductID: line.ProductID,
				Quantity:  line.Quantity,
				UnitPrice: line.UnitPrice,
			})
		}
		if err := tx.InsertOrderItems(ctx, order.ID, items); err != nil {
			return err
		}

		if err := tx.DeleteCart(ctx, cartID); err != nil {
			if errors.Is(err, models.ErrNotFound) {
				return fmt.Errorf("%w: cart %s was checked out concurrently", models.ErrConflict, cartID)
			}
			return err
		}

		orderID = order.ID
		itemCount = len(items)
		return nil
	})
	if err != nil {
		return nil, err
	}

	order, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}

	orderAttrs := s.metrics.WithServiceName([]attribute.KeyValue{
		attribute.String("payment_status", string(order.PaymentStatus)),
	})
	s.metrics.OrdersCreated.Add(ctx, 1, metric.WithAttributes(orderAttrs...))

	log.Printf("[ORDER] Order created: order_id=%d, cart_id=%s, items=%d, total=%s, status=%s",
		order.ID, cartID, itemCount, order.TotalPrice.StringFixed(2), order.PaymentStatus)

	return order, nil
}

// GetOrder returns an order the caller owns; staff may read any order.
// Orders owned by someone else are reported as not found.
func (s *OrderService) GetOrder(ctx context.Context, caller *auth.Identity, id int64) (*models.Order, error) {
	if err := s.authz.Authorize(caller, auth.ReadOwnOrders); err != nil {
		return nil, err
	}

	order, err := s.repo.GetOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	if s.authz.Authorize(caller, auth.ReadAnyOrder) == nil {
		return order, nil
	}

	profile, err := s.repo.GetProfile(ctx, caller.UserID)
	if errors.Is(err, models.ErrNotFound) {
		return nil, models.NotFoundf("order %d", id)
	}
	if err != nil {
		return nil, err
	}
	if order.ProfileID != profile.ID {
		return nil, models.NotFoundf("order %d", id)
	}
	return order, nil
}

// ListOrders returns the caller's orders, or every order for staff
func (s *OrderService) ListOrders(ctx context.Context, caller *auth.Identity) ([]models.Order, error) {
	if err := s.authz.Authorize(caller, auth.ReadOwnOrders); err != nil {
		return nil, err
	}
	if s.authz.Authorize(caller, auth.ReadAnyOrder) == nil {
		return s.repo.ListOrders(ctx, 0)
	}

	profile, err := s.repo.GetProfile(ctx, caller.UserID)
	if errors.Is(err, models.ErrNotFound) {
		return []models.Order{}, nil
	}
	if err != nil {
		return nil, err
	}
	return s.repo.ListOrders(ctx, profile.ID)
}

// UpdatePaymentStatus moves a pending order to complete or failed
func (s *OrderService) UpdatePaymentStatus(ctx context.Context, caller *auth.Identity, id int64, status string) (*models.Order, error) {
	if err := s.authz.Authorize(caller, auth.WriteAnyOrder); err != nil {
		return nil, err
	}

	to, err := models.ParsePaymentStatus(status)
	if err != nil {
		return nil, err
	}

	order, err := s.repo.GetOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	from := order.PaymentStatus
	if err := models.CheckTransition(from, to); err != nil {
		return nil, err
	}
	if err := s.repo.UpdatePaymentStatus(ctx, id, from, to); err != nil {
		return nil, err
	}
	order.PaymentStatus = to

	source := "staff"
	if caller.PaymentCallback {
		source = "payment_callback"
	}
	transitionAttrs := s.metrics.WithServiceName([]attribute.KeyValue{
		attribute.String("from_status", string(from)),
		attribute.String("to_status", string(to)),
		attribute.String("source", source),
	})
	s.metrics.PaymentTransitions.Add(ctx, 1, metric.WithAttributes(transitionAttrs...))

	if to == models.PaymentComplete {
		revenueAttrs := s.metrics.WithServiceName([]attribute.KeyValue{
			attribute.String("currency", s.currency),
		})
		s.metrics.RevenueTotal.Add(ctx, order.TotalPrice.InexactFloat64(), metric.WithAttributes(revenueAttrs...))
	}

	log.Printf("[ORDER] Payment status updated: order_id=%d, %s -> %s, source=%s, total=%s",
		id, from, to, source, order.TotalPrice.StringFixed(2))

	return order, nil
}

// StartPayment asks the payment provider to collect the total of a pending order
func (s *OrderService) StartPayment(ctx context.Context, caller *auth.Identity, id int64) (*payment.Handle, error) {
	order, err := s.GetOrder(ctx, caller, id)
	if err != nil {
		return nil, err
	}
	if order.PaymentStatus != models.PaymentPending {
		return nil, fmt.Errorf("%w: order %d payment is already %s", models.ErrInvalidState, id, order.PaymentStatus)
	}

	handle, err := s.payments.CreatePaymentIntent(ctx, payment.Request{
		OrderID:       order.ID,
		Amount:        order.TotalPrice,
		Currency:      s.currency,
		CustomerEmail: caller.Email,
	})

	provider := "none"
	if handle != nil {
		provider = handle.Provider
	}
	intentAttrs := s.metrics.WithServiceName([]attribute.KeyValue{
		attribute.String("provider", provider),
		attribute.Bool("success", err == nil),
	})
	s.metrics.PaymentIntents.Add(ctx, 1, metric.WithAttributes(intentAttrs...))

	if err != nil {
		log.Printf("[PAYMENT] Payment intent failed: order_id=%d, err=%v", id, err)
		if errors.Is(err, payment.ErrNotConfigured) {
			return nil, fmt.Errorf("%w: %w", models.ErrUnavailable, err)
		}
		return nil, err
	}

	log.Printf("[PAYMENT] Payment intent created: order_id=%d, provider=%s, reference=%s, amount=%s %s",
		id, handle.Provider, handle.Reference, order.TotalPrice.StringFixed(2), s.currency)
	return handle, nil
}
