package services

import (
	"context"
	"log"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/affordeals/storefront/internal/auth"
	"github.com/affordeals/storefront/internal/metrics"
	"github.com/affordeals/storefront/internal/models"
	"github.com/affordeals/storefront/internal/store"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
	productCacheTTL = 5 * time.Minute
)

// unit prices are DECIMAL(6,2) in the catalog
var maxUnitPrice = decimal.RequireFromString("9999.99")

// ProductCache holds cached products; catalog writes evict their entry
type ProductCache struct {
	mu    sync.RWMutex
	items map[int64]cachedProduct
	ttl   time.Duration
}

type cachedProduct struct {
	product models.Product
	expires time.Time
}

// NewProductCache creates an empty cache with the given entry lifetime
func NewProductCache(ttl time.Duration) *ProductCache {
	return &ProductCache{
		items: make(map[int64]cachedProduct),
		ttl:   ttl,
	}
}

func (c *ProductCache) get(id int64) (models.Product, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	cached, ok := c.items[id]
	if !ok || time.Now().After(cached.expires) {
		return models.Product{}, false
	}
	return cached.product, true
}

func (c *ProductCache) put(p models.Product) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[p.ID] = cachedProduct{product: p, expires: time.Now().Add(c.ttl)}
}

func (c *ProductCache) evict(id int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, id)
}

// CatalogService handles product and category operations
type CatalogService struct {
	repo    store.Repository
	metrics *metrics.AppMetrics
	authz   auth.Authorizer
	cache   *ProductCache
}

// NewCatalogService creates a new catalog service
func NewCatalogService(repo store.Repository, metrics *metrics.AppMetrics, authz auth.Authorizer) *CatalogService {
	return &CatalogService{
		repo:    repo,
		metrics: metrics,
		authz:   authz,
		cache:   NewProductCache(productCacheTTL),
	}
}

// ListProducts returns a page of products ordered by id
func (s *CatalogService) ListProducts(ctx context.Context, limit, offset int) ([]models.Product, error) {
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	if offset < 0 {
		offset = 0
	}
	return s.repo.ListProducts(ctx, limit, offset)
}

// GetProduct returns a product by ID
func (s *CatalogService) GetProduct(ctx context.Context, id int64) (*models.Product, error) {
	p, ok := s.cache.get(id)
	if !ok {
		stored, err := s.repo.GetProduct(ctx, id)
		if err != nil {
			return nil, err
		}
		p = *stored
		s.cache.put(p)
	}

	viewAttrs := s.metrics.WithServiceName([]attribute.KeyValue{
		attribute.Int64("product_id", id),
		attribute.Int64("category_id", p.CategoryID),
		attribute.Bool("cache_hit", ok),
	})
	s.metrics.ProductsViewed.Add(ctx, 1, metric.WithAttributes(viewAttrs...))
	s.recordInventory(ctx, p)

	return &p, nil
}

// CreateProduct adds a product to the catalog
func (s *CatalogService) CreateProduct(ctx context.Context, caller *auth.Identity, req models.CreateProductRequest) (*models.Product, error) {
	if err := s.authz.Authorize(caller, auth.ManageCatalog); err != nil {
		return nil, err
	}

	fields := map[string][]string{}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		fields["name"] = append(fields["name"], "This field may not be blank.")
	} else if utf8.RuneCountInString(name) > 100 {
		fields["name"] = append(fields["name"], "Ensure this field has no more than 100 characters.")
	}
	if msg := checkUnitPrice(req.UnitPrice); msg != "" {
		fields["unit_price"] = append(fields["unit_price"], msg)
	}
	if req.CategoryID <= 0 {
		fields["category_id"] = append(fields["category_id"], "This field is required.")
	}
	if len(fields) > 0 {
		return nil, &models.ValidationError{Fields: fields, Err: models.ErrInvalidArgument}
	}

	p := &models.Product{
		Name:            name,
		CategoryID:      req.CategoryID,
		UnitPrice:       req.UnitPrice,
		QuantityInStock: req.QuantityInStock,
		Description:     req.Description,
		Image:           req.Image,
	}
	if err := s.repo.CreateProduct(ctx, p); err != nil {
		return nil, err
	}

	log.Printf("[CATALOG] Product created: product_id=%d, name=%q, unit_price=%s", p.ID, p.Name, p.UnitPrice.StringFixed(2))
	s.recordInventory(ctx, *p)
	return p, nil
}

// UpdateProductPrice changes a product's catalog price. Existing order items keep their snapshot.
func (s *CatalogService) UpdateProductPrice(ctx context.Context, caller *auth.Identity, id int64, price decimal.Decimal) (*models.Product, error) {
	if err := s.authz.Authorize(caller, auth.ManageCatalog); err != nil {
		return nil, err
	}
	if msg := checkUnitPrice(price); msg != "" {
		return nil, models.NewValidationError("unit_price", msg, models.ErrInvalidArgument)
	}

	if err := s.repo.UpdateProductPrice(ctx, id, price); err != nil {
		return nil, err
	}
	s.cache.evict(id)

	p, err := s.repo.GetProduct(ctx, id)
	if err != nil {
		return nil, err
	}

	log.Printf("[CATALOG] Product price updated: product_id=%d, unit_price=%s", id, p.UnitPrice.StringFixed(2))
	return p, nil
}

// DeleteProduct removes a product that no order refers to
func (s *CatalogService) DeleteProduct(ctx context.Context, caller *auth.Identity, id int64) error {
	if err := s.authz.Authorize(caller, auth.ManageCatalog); err != nil {
		return err
	}
	if err := s.repo.DeleteProduct(ctx, id); err != nil {
		return err
	}
	s.cache.evict(id)

	log.Printf("[CATALOG] Product deleted: product_id=%d", id)
	return nil
}

// ListCategories returns all categories with their product counts
func (s *CatalogService) ListCategories(ctx context.Context) ([]models.Category, error) {
	return s.repo.ListCategories(ctx)
}

// CreateCategory adds a category, optionally pointing at a highlighted product
func (s *CatalogService) CreateCategory(ctx context.Context, caller *auth.Identity, req models.CreateCategoryRequest) (*models.Category, error) {
	if err := s.authz.Authorize(caller, auth.ManageCatalog); err != nil {
		return nil, err
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, models.NewValidationError("name", "This field may not be blank.", models.ErrInvalidArgument)
	}
	if utf8.RuneCountInString(name) > 100 {
		return nil, models.NewValidationError("name", "Ensure this field has no more than 100 characters.", models.ErrInvalidArgument)
	}

	c := &models.Category{Name: name, HighlightedProductID: req.HighlightedProductID}
	if err := s.repo.CreateCategory(ctx, c); err != nil {
		return nil, err
	}

	log.Printf("[CATALOG] Category created: category_id=%d, name=%q", c.ID, c.Name)
	return c, nil
}

func (s *CatalogService) recordInventory(ctx context.Context, p models.Product) {
	invAttrs := s.metrics.WithServiceName([]attribute.KeyValue{
		attribute.Int64("product_id", p.ID),
	})
	s.metrics.InventoryLevel.Record(ctx, int64(p.QuantityInStock), metric.WithAttributes(invAttrs...))
}

// checkUnitPrice returns a field message when price does not fit the catalog column
func checkUnitPrice(price decimal.Decimal) string {
	switch {
	case price.IsNegative():
		return "Ensure this value is greater than or equal to 0."
	case price.Exponent() < -2 && !price.Equal(price.Round(2)):
		return "Ensure that there are no more than 2 decimal places."
	case price.GreaterThan(maxUnitPrice):
		return "Ensure that there are no more than 6 digits in total."
	}
	return ""
}
