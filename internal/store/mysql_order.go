package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/affordeals/storefront/internal/models"
)

const orderColumns = "id, created_at, site_user_id, payment_status"

// CreateOrder inserts the order row and sets its ID
func (s *MySQL) CreateOrder(ctx context.Context, o *models.Order) error {
	start := time.Now()
	query := "INSERT INTO orders (created_at, site_user_id, payment_status) VALUES (?, ?, ?)"

	result, err := s.q.ExecContext(ctx, query, o.CreatedAt, o.ProfileID, o.PaymentStatus)
	s.record(ctx, "INSERT", "orders", query, start, err)
	if err != nil {
		return models.Unavailable("failed to create order", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return models.Unavailable("failed to get order ID", err)
	}
	o.ID = id
	return nil
}

// InsertOrderItems writes all items with a single multi-row INSERT
func (s *MySQL) InsertOrderItems(ctx context.Context, orderID int64, items []models.OrderItem) error {
	if len(items) == 0 {
		return nil
	}

	placeholders := make([]string, len(items))
	args := make([]any, 0, len(items)*4)
	for i, item := range items {
		placeholders[i] = "(?, ?, ?, ?)"
		args = append(args, orderID, item.ProductID, item.Quantity, item.UnitPrice)
	}

	start := time.Now()
	query := "INSERT INTO order_items (order_id, product_id, quantity, unit_price) VALUES " + strings.Join(placeholders, ", ")
	_, err := s.q.ExecContext(ctx, query, args...)
	s.record(ctx, "INSERT", "order_items", query, start, err)
	if err != nil {
		if mysqlErrorNumber(err) == errNoReferencedRow {
			return models.NotFoundf("a product in order %d no longer exists", orderID)
		}
		return models.Unavailable("failed to create order items", err)
	}
	return nil
}

// GetOrder returns an order with its items
func (s *MySQL) GetOrder(ctx context.Context, id int64) (*models.Order, error) {
	start := time.Now()
	query := "SELECT " + orderColumns + " FROM orders WHERE id = ?"

	var order models.Order
	err := s.q.QueryRowContext(ctx, query, id).Scan(&order.ID, &order.CreatedAt, &order.ProfileID, &order.PaymentStatus)
	s.record(ctx, "SELECT", "orders", query, start, err)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.NotFoundf("order %d", id)
	}
	if err != nil {
		return nil, models.Unavailable("failed to get order", err)
	}

	if err := s.loadOrderItems(ctx, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

// ListOrders returns orders newest first, with items
func (s *MySQL) ListOrders(ctx context.Context, profileID int64) ([]models.Order, error) {
	start := time.Now()
	query := "SELECT " + orderColumns + " FROM orders"
	var args []any
	if profileID != 0 {
		query += " WHERE site_user_id = ?"
		args = append(args, profileID)
	}
	query += " ORDER BY created_at DESC, id DESC"

	rows, err := s.q.QueryContext(ctx, query, args...)
	s.record(ctx, "SELECT", "orders", query, start, err)
	if err != nil {
		return nil, models.Unavailable("failed to query orders", err)
	}

	orders := []models.Order{}
	for rows.Next() {
		var order models.Order
		if err := rows.Scan(&order.ID, &order.CreatedAt, &order.ProfileID, &order.PaymentStatus); err != nil {
			rows.Close()
			return nil, models.Unavailable("failed to scan order", err)
		}
		orders = append(orders, order)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, models.Unavailable("failed to read orders", err)
	}

	for i := range orders {
		if err := s.loadOrderItems(ctx, &orders[i]); err != nil {
			return nil, err
		}
	}
	return orders, nil
}

func (s *MySQL) loadOrderItems(ctx context.Context, order *models.Order) error {
	start := time.Now()
	query := `
		SELECT oi.id, oi.order_id, oi.product_id, p.name, oi.quantity, oi.unit_price
		FROM order_items oi
		JOIN products p ON oi.product_id = p.id
		WHERE oi.order_id = ?
		ORDER BY oi.id
	`
	rows, err := s.q.QueryContext(ctx, query, order.ID)
	s.record(ctx, "SELECT", "order_items", query, start, err)
	if err != nil {
		return models.Unavailable("failed to get order items", err)
	}
	defer rows.Close()

	order.Items = []models.OrderItem{}
	for rows.Next() {
		var item models.OrderItem
		if err := rows.Scan(&item.ID, &item.OrderID, &item.ProductID, &item.ProductName, &item.Quantity, &item.UnitPrice); err != nil {
			return models.Unavailable("failed to scan order item", err)
		}
		order.Items = append(order.Items, item)
	}
	if err := rows.Err(); err != nil {
		return models.Unavailable("failed to read order items", err)
	}

	order.Price()
	return nil
}

// UpdatePaymentStatus applies the change only while the stored status is still from
func (s *MySQL) UpdatePaymentStatus(ctx context.Context, id int64, from, to models.PaymentStatus) error {
	start := time.Now()
	query := "UPDATE orders SET payment_status = ? WHERE id = ? AND payment_status = ?"

	result, err := s.q.ExecContext(ctx, query, to, id, from)
	s.record(ctx, "UPDATE", "orders", query, start, err)
	if err != nil {
		return models.Unavailable("failed to update order status", err)
	}

	n, err := rowsAffected(result)
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}

	current, err := s.GetOrder(ctx, id)
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: order %d payment is %s", models.ErrInvalidState, id, current.PaymentStatus)
}
