package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/affordeals/storefront/internal/models"
	"github.com/shopspring/decimal"
)

const productColumns = "id, name, category_id, unit_price, quantity_in_stock, description, image"

func scanProduct(row interface{ Scan(...any) error }, p *models.Product) error {
	var image sql.NullString
	if err := row.Scan(&p.ID, &p.Name, &p.CategoryID, &p.UnitPrice, &p.QuantityInStock, &p.Description, &image); err != nil {
		return err
	}
	if image.Valid {
		p.Image = &image.String
	}
	return nil
}

// GetProduct returns a product by ID
func (s *MySQL) GetProduct(ctx context.Context, id int64) (*models.Product, error) {
	start := time.Now()
	query := "SELECT " + productColumns + " FROM products WHERE id = ?"

	var p models.Product
	err := scanProduct(s.q.QueryRowContext(ctx, query, id), &p)
	s.record(ctx, "SELECT", "products", query, start, err)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.NotFoundf("product %d", id)
	}
	if err != nil {
		return nil, models.Unavailable("failed to get product", err)
	}
	return &p, nil
}

// ListProducts returns a page of products ordered by id
func (s *MySQL) ListProducts(ctx context.Context, limit, offset int) ([]models.Product, error) {
	start := time.Now()
	query := "SELECT " + productColumns + " FROM products ORDER BY id LIMIT ? OFFSET ?"

	rows, err := s.q.QueryContext(ctx, query, limit, offset)
	s.record(ctx, "SELECT", "products", query, start, err)
	if err != nil {
		return nil, models.Unavailable("failed to query products", err)
	}
	defer rows.Close()

	products := []models.Product{}
	for rows.Next() {
		var p models.Product
		if err := scanProduct(rows, &p); err != nil {
			return nil, models.Unavailable("failed to scan product", err)
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, models.Unavailable("failed to read products", err)
	}
	return products, nil
}

// CreateProduct inserts a product and sets its ID
func (s *MySQL) CreateProduct(ctx context.Context, p *models.Product) error {
	start := time.Now()
	query := "INSERT INTO products (name, category_id, unit_price, quantity_in_stock, description, image) VALUES (?, ?, ?, ?, ?, ?)"

	result, err := s.q.ExecContext(ctx, query, p.Name, p.CategoryID, p.UnitPrice, p.QuantityInStock, p.Description, p.Image)
	s.record(ctx, "INSERT", "products", query, start, err)
	if err != nil {
		if mysqlErrorNumber(err) == errNoReferencedRow {
			return models.NotFoundf("category %d", p.CategoryID)
		}
		return models.Unavailable("failed to create product", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return models.Unavailable("failed to get product ID", err)
	}
	p.ID = id
	return nil
}

// UpdateProductPrice changes the catalog price. Order items keep their snapshot.
func (s *MySQL) UpdateProductPrice(ctx context.Context, id int64, price decimal.Decimal) error {
	start := time.Now()
	query := "UPDATE products SET unit_price = ? WHERE id = ?"

	result, err := s.q.ExecContext(ctx, query, price, id)
	s.record(ctx, "UPDATE", "products", query, start, err)
	if err != nil {
		return models.Unavailable("failed to update product price", err)
	}

	n, err := rowsAffected(result)
	if err != nil {
		return err
	}
	if n == 0 {
		// MySQL reports 0 affected rows when the price is unchanged
		if _, err := s.GetProduct(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

// DeleteProduct removes a product. Cart lines and reviews cascade and
// highlighted-product pointers are nulled; ordered products cannot be deleted.
func (s *MySQL) DeleteProduct(ctx context.Context, id int64) error {
	start := time.Now()
	query := "DELETE FROM products WHERE id = ?"

	result, err := s.q.ExecContext(ctx, query, id)
	s.record(ctx, "DELETE", "products", query, start, err)
	if err != nil {
		if mysqlErrorNumber(err) == errRowIsReferenced {
			return fmt.Errorf("%w: product %d is referenced by orders", models.ErrConflict, id)
		}
		return models.Unavailable("failed to delete product", err)
	}

	n, err := rowsAffected(result)
	if err != nil {
		return err
	}
	if n == 0 {
		return models.NotFoundf("product %d", id)
	}
	return nil
}

// ListCategories returns all categories with their product counts
func (s *MySQL) ListCategories(ctx context.Context) ([]models.Category, error) {
	start := time.Now()
	query := `
		SELECT c.id, c.name, c.highlighted_product_id, COUNT(p.id)
		FROM categories c
		LEFT JOIN products p ON p.category_id = c.id
		GROUP BY c.id, c.name, c.highlighted_product_id
		ORDER BY c.id
	`
	rows, err := s.q.QueryContext(ctx, query)
	s.record(ctx, "SELECT", "categories", query, start, err)
	if err != nil {
		return nil, models.Unavailable("failed to query categories", err)
	}
	defer rows.Close()

	categories := []models.Category{}
	for rows.Next() {
		var c models.Category
		var highlighted sql.NullInt64
		if err := rows.Scan(&c.ID, &c.Name, &highlighted, &c.ProductCount); err != nil {
			return nil, models.Unavailable("failed to scan category", err)
		}
		if highlighted.Valid {
			c.HighlightedProductID = &highlighted.Int64
		}
		categories = append(categories, c)
	}
	if err := rows.Err(); err != nil {
		return nil, models.Unavailable("failed to read categories", err)
	}
	return categories, nil
}

// CreateCategory inserts a category and sets its ID
func (s *MySQL) CreateCategory(ctx context.Context, c *models.Category) error {
	start := time.Now()
	query := "INSERT INTO categories (name, highlighted_product_id) VALUES (?, ?)"

	result, err := s.q.ExecContext(ctx, query, c.Name, c.HighlightedProductID)
	s.record(ctx, "INSERT", "categories", query, start, err)
	if err != nil {
		if mysqlErrorNumber(err) == errNoReferencedRow {
			return models.NotFoundf("highlighted product %d", *c.HighlightedProductID)
		}
		return models.Unavailable("failed to create category", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return models.Unavailable("failed to get category ID", err)
	}
	c.ID = id
	return nil
}
