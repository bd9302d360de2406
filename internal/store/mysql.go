package store

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"time"

	"github.com/affordeals/storefront/internal/metrics"
	"github.com/affordeals/storefront/internal/models"
	"github.com/go-sql-driver/mysql"
)

// MySQL error numbers the repository translates
const (
	errDuplicateEntry  = 1062
	errRowIsReferenced = 1451
	errNoReferencedRow = 1452
)

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// MySQL implements Repository with plain parameterized queries
type MySQL struct {
	db      *sql.DB
	q       querier
	tx      *sql.Tx
	metrics *metrics.AppMetrics
}

// NewMySQL creates a repository over an open connection pool
func NewMySQL(db *sql.DB, metrics *metrics.AppMetrics) *MySQL {
	return &MySQL{
		db:      db,
		q:       db,
		metrics: metrics,
	}
}

// WithTx runs fn inside a database transaction. Nested calls join the outer one.
func (s *MySQL) WithTx(ctx context.Context, fn func(Repository) error) error {
	if s.tx != nil {
		return fn(s)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return models.Unavailable("failed to begin transaction", err)
	}

	txStore := &MySQL{db: s.db, q: tx, tx: tx, metrics: s.metrics}
	if err := fn(txStore); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			log.Printf("[DB] Rollback failed: %v", rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return models.Unavailable("failed to commit transaction", err)
	}
	return nil
}

func (s *MySQL) record(ctx context.Context, operation, table, query string, start time.Time, err error) {
	s.metrics.RecordDBQuery(ctx, operation, table, query, start, err == nil || errors.Is(err, sql.ErrNoRows))
}

func lockClause(forUpdate bool) string {
	if forUpdate {
		return " FOR UPDATE"
	}
	return ""
}

func mysqlErrorNumber(err error) uint16 {
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number
	}
	return 0
}

func rowsAffected(result sql.Result) (int64, error) {
	n, err := result.RowsAffected()
	if err != nil {
		return 0, models.Unavailable("failed to get rows affected", err)
	}
	return n, nil
}
