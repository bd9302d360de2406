package store

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/affordeals/storefront/internal/metrics"
	"github.com/affordeals/storefront/internal/models"
	"github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockStore(t *testing.T) (*MySQL, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewMySQL(db, metrics.NewNoop("test")), mock
}

func TestMySQLGetProduct(t *testing.T) {
	s, mock := newMockStore(t)
	ctx := context.Background()

	mock.ExpectQuery(regexp.QuoteMeta("FROM products WHERE id = ?")).
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "category_id", "unit_price", "quantity_in_stock", "description", "image"}).
			AddRow(int64(7), "Kettle", int64(1), "10.50", 4, "steel", nil))

	p, err := s.GetProduct(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, "Kettle", p.Name)
	assert.True(t, decimal.RequireFromString("10.50").Equal(p.UnitPrice))
	assert.Nil(t, p.Image)

	mock.ExpectQuery(regexp.QuoteMeta("FROM products WHERE id = ?")).
		WithArgs(int64(8)).
		WillReturnError(sql.ErrNoRows)

	_, err = s.GetProduct(ctx, 8)
	assert.ErrorIs(t, err, models.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMySQLInsertCartItemDuplicateIsConflict(t *testing.T) {
	s, mock := newMockStore(t)
	cartID := uuid.New()

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO cart_items")).
		WithArgs(cartID.String(), int64(3), 2).
		WillReturnError(&mysql.MySQLError{Number: errDuplicateEntry, Message: "Duplicate entry"})

	err := s.InsertCartItem(context.Background(), &models.CartItem{CartID: cartID, ProductID: 3, Quantity: 2})
	assert.ErrorIs(t, err, models.ErrConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMySQLWithTxCommitsAndRollsBack(t *testing.T) {
	s, mock := newMockStore(t)
	ctx := context.Background()
	cartID := uuid.New()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM carts WHERE id = ?")).
		WithArgs(cartID.String()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := s.WithTx(ctx, func(tx Repository) error {
		return tx.DeleteCart(ctx, cartID)
	})
	require.NoError(t, err)

	boom := errors.New("boom")
	mock.ExpectBegin()
	mock.ExpectRollback()

	err = s.WithTx(ctx, func(tx Repository) error {
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMySQLInsertOrderItemsSingleStatement(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO order_items (order_id, product_id, quantity, unit_price) VALUES (?, ?, ?, ?), (?, ?, ?, ?)")).
		WithArgs(int64(5), int64(1), 2, sqlmock.AnyArg(), int64(5), int64(2), 1, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(10, 2))

	err := s.InsertOrderItems(context.Background(), 5, []models.OrderItem{
		{ProductID: 1, Quantity: 2, UnitPrice: decimal.RequireFromString("10.00")},
		{ProductID: 2, Quantity: 1, UnitPrice: decimal.RequireFromString("5.00")},
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMySQLUpdatePaymentStatusTerminal(t *testing.T) {
	s, mock := newMockStore(t)
	ctx := context.Background()

	mock.ExpectExec(regexp.QuoteMeta("UPDATE orders SET payment_status = ? WHERE id = ? AND payment_status = ?")).
		WithArgs("failed", int64(9), "pending").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("FROM orders WHERE id = ?")).
		WithArgs(int64(9)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "site_user_id", "payment_status"}).
			AddRow(int64(9), time.Now(), int64(1), "complete"))
	mock.ExpectQuery(regexp.QuoteMeta("FROM order_items oi")).
		WithArgs(int64(9)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "order_id", "product_id", "name", "quantity", "unit_price"}))

	err := s.UpdatePaymentStatus(ctx, 9, models.PaymentPending, models.PaymentFailed)
	assert.ErrorIs(t, err, models.ErrInvalidState)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMySQLGetOrderTotalsSnapshotPrices(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("FROM orders WHERE id = ?")).
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "site_user_id", "payment_status"}).
			AddRow(int64(1), time.Now(), int64(4), "pending"))
	mock.ExpectQuery(regexp.QuoteMeta("FROM order_items oi")).
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "order_id", "product_id", "name", "quantity", "unit_price"}).
			AddRow(int64(1), int64(1), int64(1), "A", 2, "10.00").
			AddRow(int64(2), int64(1), int64(2), "B", 1, "5.00"))

	order, err := s.GetOrder(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentPending, order.PaymentStatus)
	require.Len(t, order.Items, 2)
	assert.True(t, decimal.RequireFromString("25.00").Equal(order.TotalPrice))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMySQLDeleteOrderedProductIsConflict(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM products WHERE id = ?")).
		WithArgs(int64(2)).
		WillReturnError(&mysql.MySQLError{Number: errRowIsReferenced})

	err := s.DeleteProduct(context.Background(), 2)
	assert.ErrorIs(t, err, models.ErrConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMySQLBackendFailureIsUnavailable(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(DISTINCT cart_id) FROM cart_items")).
		WillReturnError(errors.New("connection reset"))

	_, err := s.CountActiveCarts(context.Background())
	assert.ErrorIs(t, err, models.ErrUnavailable)
	assert.NoError(t, mock.ExpectationsWereMet())
}
