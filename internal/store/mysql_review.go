package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/affordeals/storefront/internal/models"
)

// CreateReview inserts a review and sets its ID
func (s *MySQL) CreateReview(ctx context.Context, r *models.Review) error {
	start := time.Now()
	query := "INSERT INTO reviews (product_id, name, description, created_at) VALUES (?, ?, ?, ?)"

	result, err := s.q.ExecContext(ctx, query, r.ProductID, r.Name, r.Description, r.CreatedAt)
	s.record(ctx, "INSERT", "reviews", query, start, err)
	if err != nil {
		if mysqlErrorNumber(err) == errNoReferencedRow {
			return models.NotFoundf("product %d", r.ProductID)
		}
		return models.Unavailable("failed to create review", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return models.Unavailable("failed to get review ID", err)
	}
	r.ID = id
	return nil
}

// ListReviews returns a product's reviews, newest first
func (s *MySQL) ListReviews(ctx context.Context, productID int64) ([]models.Review, error) {
	start := time.Now()
	query := "SELECT id, product_id, name, description, created_at FROM reviews WHERE product_id = ? ORDER BY created_at DESC, id DESC"

	rows, err := s.q.QueryContext(ctx, query, productID)
	s.record(ctx, "SELECT", "reviews", query, start, err)
	if err != nil {
		return nil, models.Unavailable("failed to query reviews", err)
	}
	defer rows.Close()

	reviews := []models.Review{}
	for rows.Next() {
		var r models.Review
		if err := rows.Scan(&r.ID, &r.ProductID, &r.Name, &r.Description, &r.CreatedAt); err != nil {
			return nil, models.Unavailable("failed to scan review", err)
		}
		reviews = append(reviews, r)
	}
	if err := rows.Err(); err != nil {
		return nil, models.Unavailable("failed to read reviews", err)
	}
	return reviews, nil
}

// GetOrCreateProfile returns the profile for userID, inserting it on first use
func (s *MySQL) GetOrCreateProfile(ctx context.Context, userID int64) (*models.Profile, error) {
	start := time.Now()
	insertQuery := "INSERT IGNORE INTO site_users (user_id) VALUES (?)"
	_, err := s.q.ExecContext(ctx, insertQuery, userID)
	s.record(ctx, "INSERT", "site_users", insertQuery, start, err)
	if err != nil {
		return nil, models.Unavailable("failed to create profile", err)
	}

	return s.GetProfile(ctx, userID)
}

// GetProfile returns the profile for userID without creating one
func (s *MySQL) GetProfile(ctx context.Context, userID int64) (*models.Profile, error) {
	start := time.Now()
	query := "SELECT id, user_id, phone_number, birth_date, created_at, updated_at FROM site_users WHERE user_id = ?"

	var p models.Profile
	var birthDate sql.NullTime
	err := s.q.QueryRowContext(ctx, query, userID).Scan(&p.ID, &p.UserID, &p.PhoneNumber, &birthDate, &p.CreatedAt, &p.UpdatedAt)
	s.record(ctx, "SELECT", "site_users", query, start, err)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.NotFoundf("profile for user %d", userID)
	}
	if err != nil {
		return nil, models.Unavailable("failed to get profile", err)
	}
	if birthDate.Valid {
		p.BirthDate = &birthDate.Time
	}
	return &p, nil
}

// UpdateProfile stores the editable profile fields
func (s *MySQL) UpdateProfile(ctx context.Context, p *models.Profile) error {
	start := time.Now()
	query := "UPDATE site_users SET phone_number = ?, birth_date = ? WHERE id = ?"

	_, err := s.q.ExecContext(ctx, query, p.PhoneNumber, p.BirthDate, p.ID)
	s.record(ctx, "UPDATE", "site_users", query, start, err)
	if err != nil {
		return models.Unavailable("failed to update profile", err)
	}
	p.UpdatedAt = time.Now()
	return nil
}
