package services

import (
	"context"
	"log"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/affordeals/storefront/internal/metrics"
	"github.com/affordeals/storefront/internal/models"
	"github.com/affordeals/storefront/internal/store"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// ReviewService handles product reviews
type ReviewService struct {
	repo    store.Repository
	metrics *metrics.AppMetrics
}

// NewReviewService creates a new review service
func NewReviewService(repo store.Repository, metrics *metrics.AppMetrics) *ReviewService {
	return &ReviewService{
		repo:    repo,
		metrics: metrics,
	}
}

// AddReview stores a review for an existing product. Duplicate reviews are allowed.
func (s *ReviewService) AddReview(ctx context.Context, productID int64, req models.CreateReviewRequest) (*models.Review, error) {
	fields := map[string][]string{}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		fields["name"] = append(fields["name"], "This field may not be blank.")
	} else if utf8.RuneCountInString(name) > 255 {
		fields["name"] = append(fields["name"], "Ensure this field has no more than 255 characters.")
	}
	if strings.TrimSpace(req.Description) == "" {
		fields["description"] = append(fields["description"], "This field may not be blank.")
	}
	if len(fields) > 0 {
		return nil, &models.ValidationError{Fields: fields, Err: models.ErrInvalidArgument}
	}

	review := &models.Review{
		ProductID:   productID,
		Name:        name,
		Description: req.Description,
		CreatedAt:   time.Now().UTC().Truncate(time.Second),
	}
	if err := s.repo.CreateReview(ctx, review); err != nil {
		return nil, err
	}

	reviewAttrs := s.metrics.WithServiceName([]attribute.KeyValue{
		attribute.Int64("product_id", productID),
	})
	s.metrics.ReviewsSubmitted.Add(ctx, 1, metric.WithAttributes(reviewAttrs...))
	log.Printf("[REVIEW] Review submitted: review_id=%d, product_id=%d", review.ID, productID)

	return review, nil
}

// ListReviews returns a product's reviews, newest first
func (s *ReviewService) ListReviews(ctx context.Context, productID int64) ([]models.Review, error) {
	if _, err := s.repo.GetProduct(ctx, productID); err != nil {
		return nil, err
	}
	return s.repo.ListReviews(ctx, productID)
}
