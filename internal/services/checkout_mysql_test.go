package services

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
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

func newMySQLOrderService(t *testing.T) (*OrderService, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	m := metrics.NewNoop("storefront-test")
	repo := store.NewMySQL(db, m)
	return NewOrderService(repo, m, auth.Policy{}, payment.Noop{}, "USD"), mock
}

// expectCheckoutUntilItems queues the statements checkout issues before the order items insert
func expectCheckoutUntilItems(mock sqlmock.Sqlmock, cartID uuid.UUID) {
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, created_at FROM carts WHERE id = ? FOR UPDATE")).
		WithArgs(cartID.String()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(cartID.String(), now))
	mock.ExpectQuery(regexp.QuoteMeta("FROM cart_items ci")).
		WithArgs(cartID.String()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "product_id", "name", "unit_price", "quantity"}).
			AddRow(int64(1), int64(3), "Shirt", "10.00", 2).
			AddRow(int64(2), int64(4), "Socks", "5.00", 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT IGNORE INTO site_users (user_id) VALUES (?)")).
		WithArgs(customer.UserID).
		WillReturnResult(sqlmock.NewResult(6, 1))
	mock.ExpectQuery(regexp.QuoteMeta("FROM site_users WHERE user_id = ?")).
		WithArgs(customer.UserID).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "phone_number", "birth_date", "created_at", "updated_at"}).
			AddRow(int64(6), customer.UserID, "", nil, now, now))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO orders (created_at, site_user_id, payment_status) VALUES (?, ?, ?)")).
		WithArgs(sqlmock.AnyArg(), int64(6), "pending").
		WillReturnResult(sqlmock.NewResult(31, 1))
}

func TestCheckoutOnMySQLLocksCartAndCommits(t *testing.T) {
	orders, mock := newMySQLOrderService(t)
	cartID := uuid.New()

	expectCheckoutUntilItems(mock, cartID)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO order_items (order_id, product_id, quantity, unit_price) VALUES (?, ?, ?, ?), (?, ?, ?, ?)")).
		WithArgs(int64(31), int64(3), 2, sqlmock.AnyArg(), int64(31), int64(4), 1, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(100, 2))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM carts WHERE id = ?")).
		WithArgs(cartID.String()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	mock.ExpectQuery(regexp.QuoteMeta("FROM orders WHERE id = ?")).
		WithArgs(int64(31)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "site_user_id", "payment_status"}).
			AddRow(int64(31), time.Now(), int64(6), "pending"))
	mock.ExpectQuery(regexp.QuoteMeta("FROM order_items oi")).
		WithArgs(int64(31)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "order_id", "product_id", "name", "quantity", "unit_price"}).
			AddRow(int64(100), int64(31), int64(3), "Shirt", 2, "10.00").
			AddRow(int64(101), int64(31), int64(4), "Socks", 1, "5.00"))

	order, err := orders.Checkout(context.Background(), customer, models.CreateOrderRequest{CartID: cartID.String()})
	require.NoError(t, err)

	assert.Equal(t, int64(31), order.ID)
	assert.Equal(t, models.PaymentPending, order.PaymentStatus)
	assert.True(t, decimal.RequireFromString("25.00").Equal(order.TotalPrice))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCheckoutOnMySQLRollsBackWhenItemsFail(t *testing.T) {
	orders, mock := newMySQLOrderService(t)
	cartID := uuid.New()

	expectCheckoutUntilItems(mock, cartID)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO order_items")).
		WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	_, err := orders.Checkout(context.Background(), customer, models.CreateOrderRequest{CartID: cartID.String()})
	assert.ErrorIs(t, err, models.ErrUnavailable)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCheckoutOnMySQLLockedOutCartIsInvalid(t *testing.T) {
	orders, mock := newMySQLOrderService(t)
	cartID := uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, created_at FROM carts WHERE id = ? FOR UPDATE")).
		WithArgs(cartID.String()).
		WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	_, err := orders.Checkout(context.Background(), customer, models.CreateOrderRequest{CartID: cartID.String()})
	assert.ErrorIs(t, err, models.ErrValidation)
	assert.ErrorIs(t, err, models.ErrNotFound)

	var verr *models.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "cart_id")
	assert.NoError(t, mock.ExpectationsWereMet())
}
