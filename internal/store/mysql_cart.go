package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/affordeals/storefront/internal/models"
	"github.com/google/uuid"
)

// CreateCart inserts a cart with the ID and timestamp already set on it
func (s *MySQL) CreateCart(ctx context.Context, cart *models.Cart) error {
	start := time.Now()
	query := "INSERT INTO carts (id, created_at) VALUES (?, ?)"

	_, err := s.q.ExecContext(ctx, query, cart.ID, cart.CreatedAt)
	s.record(ctx, "INSERT", "carts", query, start, err)
	if err != nil {
		if mysqlErrorNumber(err) == errDuplicateEntry {
			return fmt.Errorf("%w: cart %s already exists", models.ErrConflict, cart.ID)
		}
		return models.Unavailable("failed to create cart", err)
	}
	return nil
}

// GetCart returns the cart row
func (s *MySQL) GetCart(ctx context.Context, id uuid.UUID, forUpdate bool) (*models.Cart, error) {
	start := time.Now()
	query := "SELECT id, created_at FROM carts WHERE id = ?" + lockClause(forUpdate)

	var cart models.Cart
	err := s.q.QueryRowContext(ctx, query, id).Scan(&cart.ID, &cart.CreatedAt)
	s.record(ctx, "SELECT", "carts", query, start, err)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.NotFoundf("cart %s", id)
	}
	if err != nil {
		return nil, models.Unavailable("failed to get cart", err)
	}
	return &cart, nil
}

// ListCartLines returns the cart's lines joined to current product data
func (s *MySQL) ListCartLines(ctx context.Context, cartID uuid.UUID) ([]models.CartLine, error) {
	start := time.Now()
	query := `
		SELECT ci.id, ci.product_id, p.name, p.unit_price, ci.quantity
		FROM cart_items ci
		JOIN products p ON ci.product_id = p.id
		WHERE ci.cart_id = ?
		ORDER BY ci.id
	`
	rows, err := s.q.QueryContext(ctx, query, cartID)
	s.record(ctx, "SELECT", "cart_items", query, start, err)
	if err != nil {
		return nil, models.Unavailable("failed to get cart items", err)
	}
	defer rows.Close()

	lines := []models.CartLine{}
	for rows.Next() {
		var line models.CartLine
		if err := rows.Scan(&line.ID, &line.ProductID, &line.ProductName, &line.UnitPrice, &line.Quantity); err != nil {
			return nil, models.Unavailable("failed to scan cart item", err)
		}
		lines = append(lines, line)
	}
	if err := rows.Err(); err != nil {
		return nil, models.Unavailable("failed to read cart items", err)
	}
	return lines, nil
}

// FindCartItem returns the line holding productID in the cart
func (s *MySQL) FindCartItem(ctx context.Context, cartID uuid.UUID, productID int64, forUpdate bool) (*models.CartItem, error) {
	start := time.Now()
	query := "SELECT id, cart_id, product_id, quantity FROM cart_items WHERE cart_id = ? AND product_id = ?" + lockClause(forUpdate)

	var item models.CartItem
	err := s.q.QueryRowContext(ctx, query, cartID, productID).Scan(&item.ID, &item.CartID, &item.ProductID, &item.Quantity)
	s.record(ctx, "SELECT", "cart_items", query, start, err)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.NotFoundf("product %d is not in cart %s", productID, cartID)
	}
	if err != nil {
		return nil, models.Unavailable("failed to check cart item", err)
	}
	return &item, nil
}

// GetCartItem returns a line by ID, scoped to its cart
func (s *MySQL) GetCartItem(ctx context.Context, cartID uuid.UUID, itemID int64) (*models.CartItem, error) {
	start := time.Now()
	query := "SELECT id, cart_id, product_id, quantity FROM cart_items WHERE id = ? AND cart_id = ?"

	var item models.CartItem
	err := s.q.QueryRowContext(ctx, query, itemID, cartID).Scan(&item.ID, &item.CartID, &item.ProductID, &item.Quantity)
	s.record(ctx, "SELECT", "cart_items", query, start, err)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.NotFoundf("cart item %d in cart %s", itemID, cartID)
	}
	if err != nil {
		return nil, models.Unavailable("failed to get cart item", err)
	}
	return &item, nil
}

// InsertCartItem inserts a new line and sets its ID
func (s *MySQL) InsertCartItem(ctx context.Context, item *models.CartItem) error {
	start := time.Now()
	query := "INSERT INTO cart_items (cart_id, product_id, quantity) VALUES (?, ?, ?)"

	result, err := s.q.ExecContext(ctx, query, item.CartID, item.ProductID, item.Quantity)
	s.record(ctx, "INSERT", "cart_items", query, start, err)
	if err != nil {
		switch mysqlErrorNumber(err) {
		case errDuplicateEntry:
			return fmt.Errorf("%w: product %d already has a line in cart %s", models.ErrConflict, item.ProductID, item.CartID)
		case errNoReferencedRow:
			return models.NotFoundf("cart %s or product %d", item.CartID, item.ProductID)
		}
		return models.Unavailable("failed to add item to cart", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return models.Unavailable("failed to get cart item ID", err)
	}
	item.ID = id
	return nil
}

// SetCartItemQuantity replaces a line's quantity
func (s *MySQL) SetCartItemQuantity(ctx context.Context, itemID int64, quantity int) error {
	start := time.Now()
	query := "UPDATE cart_items SET quantity = ? WHERE id = ?"

	_, err := s.q.ExecContext(ctx, query, quantity, itemID)
	s.record(ctx, "UPDATE", "cart_items", query, start, err)
	if err != nil {
		return models.Unavailable("failed to update cart item", err)
	}
	return nil
}

// DeleteCartItem removes one line from the cart
func (s *MySQL) DeleteCartItem(ctx context.Context, cartID uuid.UUID, itemID int64) error {
	start := time.Now()
	query := "DELETE FROM cart_items WHERE id = ? AND cart_id = ?"

	result, err := s.q.ExecContext(ctx, query, itemID, cartID)
	s.record(ctx, "DELETE", "cart_items", query, start, err)
	if err != nil {
		return models.Unavailable("failed to remove item from cart", err)
	}

	n, err := rowsAffected(result)
	if err != nil {
		return err
	}
	if n == 0 {
		return models.NotFoundf("cart item %d in cart %s", itemID, cartID)
	}
	return nil
}

// DeleteCart removes the cart; its lines go with it through the foreign key
func (s *MySQL) DeleteCart(ctx context.Context, id uuid.UUID) error {
	start := time.Now()
	query := "DELETE FROM carts WHERE id = ?"

	result, err := s.q.ExecContext(ctx, query, id)
	s.record(ctx, "DELETE", "carts", query, start, err)
	if err != nil {
		return models.Unavailable("failed to delete cart", err)
	}

	n, err := rowsAffected(result)
	if err != nil {
		return err
	}
	if n == 0 {
		return models.NotFoundf("cart %s", id)
	}
	return nil
}

// CountActiveCarts counts carts holding at least one line
func (s *MySQL) CountActiveCarts(ctx context.Context) (int, error) {
	start := time.Now()
	query := "SELECT COUNT(DISTINCT cart_id) FROM cart_items"

	var count int
	err := s.q.QueryRowContext(ctx, query).Scan(&count)
	s.record(ctx, "SELECT", "cart_items", query, start, err)
	if err != nil {
		return 0, models.Unavailable("failed to count active carts", err)
	}
	return count, nil
}
