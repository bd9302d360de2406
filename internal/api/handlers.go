package api

import (
	"context"
	"net/http"
	"time"

	"github.com/affordeals/storefront/internal/auth"
	"github.com/affordeals/storefront/internal/metrics"
	"github.com/affordeals/storefront/internal/middleware"
	"github.com/affordeals/storefront/internal/models"
	"github.com/affordeals/storefront/internal/services"
	"github.com/affordeals/storefront/pkg/config"
	"github.com/gorilla/mux"
)

// Pinger reports whether the backing database is reachable
type Pinger interface {
	PingContext(ctx context.Context) error
}

// App holds application dependencies
type App struct {
	config   *config.Config
	db       Pinger
	metrics  *metrics.AppMetrics
	verifier *auth.TokenVerifier
	catalog  *services.CatalogService
	carts    *services.CartService
	orders   *services.OrderService
	reviews  *services.ReviewService
	profiles *services.ProfileService
}

// NewApp creates a new application instance. database may be nil for the in-memory store.
func NewApp(
	cfg *config.Config,
	database Pinger,
	m *metrics.AppMetrics,
	catalog *services.CatalogService,
	carts *services.CartService,
	orders *services.OrderService,
	reviews *services.ReviewService,
	profiles *services.ProfileService,
) *App {
	return &App{
		config:   cfg,
		db:       database,
		metrics:  m,
		verifier: auth.NewTokenVerifier(cfg.JWTSecret),
		catalog:  catalog,
		carts:    carts,
		orders:   orders,
		reviews:  reviews,
		profiles: profiles,
	}
}

// SetupRoutes configures the HTTP routes
func (a *App) SetupRoutes(r *mux.Router) {
	r.Use(middleware.RequestIDMiddleware)
	r.Use(middleware.ErrorHandlerMiddleware)
	r.Use(middleware.MetricsMiddleware(a.metrics))
	r.Use(middleware.AuthMiddleware(a.verifier, a.config.PaymentCallbackSecret))

	api := r.PathPrefix("/api/v1").Subrouter()

	// Catalog
	api.HandleFunc("/products", a.ListProductsHandler).Methods("GET")
	api.HandleFunc("/products", a.CreateProductHandler).Methods("POST")
	api.HandleFunc("/products/{id}", a.GetProductHandler).Methods("GET")
	api.HandleFunc("/products/{id}", a.UpdateProductPriceHandler).Methods("PATCH")
	api.HandleFunc("/products/{id}", a.DeleteProductHandler).Methods("DELETE")
	api.HandleFunc("/categories", a.ListCategoriesHandler).Methods("GET")
	api.HandleFunc("/categories", a.CreateCategoryHandler).Methods("POST")

	// Reviews
	api.HandleFunc("/products/{id}/reviews", a.ListReviewsHandler).Methods("GET")
	api.HandleFunc("/products/{id}/reviews", a.CreateReviewHandler).Methods("POST")

	// Carts
	api.HandleFunc("/carts", a.CreateCartHandler).Methods("POST")
	api.HandleFunc("/carts/{id}", a.GetCartHandler).Methods("GET")
	api.HandleFunc("/carts/{id}", a.DeleteCartHandler).Methods("DELETE")
	api.HandleFunc("/carts/{id}/items", a.AddCartItemHandler).Methods("POST")
	api.HandleFunc("/carts/{id}/items/{item_id}", a.UpdateCartItemHandler).Methods("PATCH")
	api.HandleFunc("/carts/{id}/items/{item_id}", a.RemoveCartItemHandler).Methods("DELETE")

	// Orders
	api.HandleFunc("/orders", a.CreateOrderHandler).Methods("POST")
	api.HandleFunc("/orders", a.ListOrdersHandler).Methods("GET")
	api.HandleFunc("/orders/{id}", a.GetOrderHandler).Methods("GET")
	api.HandleFunc("/orders/{id}", a.UpdateOrderHandler).Methods("PATCH")
	api.HandleFunc("/orders/{id}/payment", a.StartPaymentHandler).Methods("POST")
	api.HandleFunc("/payments/callback", a.PaymentCallbackHandler).Methods("POST")

	// Profiles
	api.HandleFunc("/profiles/me", a.GetProfileHandler).Methods("GET")
	api.HandleFunc("/profiles/me", a.UpdateProfileHandler).Methods("PUT")

	// Health
	r.HandleFunc("/health", a.HealthHandler).Methods("GET")
}

// Handler returns the routed application. CORS wraps the router so preflight
// requests are answered even though no route accepts OPTIONS.
func (a *App) Handler() http.Handler {
	r := mux.NewRouter()
	a.SetupRoutes(r)
	return middleware.CORSMiddleware(r)
}

// HealthHandler handles health check requests
func (a *App) HealthHandler(w http.ResponseWriter, r *http.Request) {
	if a.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := a.db.PingContext(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy", "error": err.Error()})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// ListProductsHandler handles GET /api/v1/products
func (a *App) ListProductsHandler(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 20)
	if err != nil {
		writeError(w, r, err)
		return
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil {
		writeError(w, r, err)
		return
	}

	products, err := a.catalog.ListProducts(r.Context(), limit, offset)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, products)
}

// GetProductHandler handles GET /api/v1/products/{id}
func (a *App) GetProductHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt64(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}

	product, err := a.catalog.GetProduct(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, product)
}

// CreateProductHandler handles POST /api/v1/products
func (a *App) CreateProductHandler(w http.ResponseWriter, r *http.Request) {
	var req models.CreateProductRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	product, err := a.catalog.CreateProduct(r.Context(), auth.FromContext(r.Context()), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, product)
}

// UpdateProductPriceHandler handles PATCH /api/v1/products/{id}
func (a *App) UpdateProductPriceHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt64(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req models.UpdateProductPriceRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	product, err := a.catalog.UpdateProductPrice(r.Context(), auth.FromContext(r.Context()), id, req.UnitPrice)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, product)
}

// DeleteProductHandler handles DELETE /api/v1/products/{id}
func (a *App) DeleteProductHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt64(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}

	if err := a.catalog.DeleteProduct(r.Context(), auth.FromContext(r.Context()), id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListCategoriesHandler handles GET /api/v1/categories
func (a *App) ListCategoriesHandler(w http.ResponseWriter, r *http.Request) {
	categories, err := a.catalog.ListCategories(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, categories)
}

// CreateCategoryHandler handles POST /api/v1/categories
func (a *App) CreateCategoryHandler(w http.ResponseWriter, r *http.Request) {
	var req models.CreateCategoryRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	category, err := a.catalog.CreateCategory(r.Context(), auth.FromContext(r.Context()), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, category)
}

// ListReviewsHandler handles GET /api/v1/products/{id}/reviews
func (a *App) ListReviewsHandler(w http.ResponseWriter, r *http.Request) {
	productID, err := pathInt64(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}

	reviews, err := a.reviews.ListReviews(r.Context(), productID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, reviews)
}

// CreateReviewHandler handles POST /api/v1/products/{id}/reviews
func (a *App) CreateReviewHandler(w http.ResponseWriter, r *http.Request) {
	productID, err := pathInt64(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req models.CreateReviewRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	review, err := a.reviews.AddReview(r.Context(), productID, req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, review)
}

// CreateCartHandler handles POST /api/v1/carts
func (a *App) CreateCartHandler(w http.ResponseWriter, r *http.Request) {
	cart, err := a.carts.CreateCart(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, cart)
}

// GetCartHandler handles GET /api/v1/carts/{id}
func (a *App) GetCartHandler(w http.ResponseWriter, r *http.Request) {
	cartID, err := pathCartID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	cart, err := a.carts.GetCart(r.Context(), cartID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cart)
}

// DeleteCartHandler handles DELETE /api/v1/carts/{id}
func (a *App) DeleteCartHandler(w http.ResponseWriter, r *http.Request) {
	cartID, err := pathCartID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	if err := a.carts.DeleteCart(r.Context(), cartID); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// AddCartItemHandler handles POST /api/v1/carts/{id}/items
func (a *App) AddCartItemHandler(w http.ResponseWriter, r *http.Request) {
	cartID, err := pathCartID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req models.AddCartItemRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	item, err := a.carts.AddItem(r.Context(), cartID, req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, item)
}

// UpdateCartItemHandler handles PATCH /api/v1/carts/{id}/items/{item_id}
func (a *App) UpdateCartItemHandler(w http.ResponseWriter, r *http.Request) {
	cartID, err := pathCartID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	itemID, err := pathInt64(r, "item_id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req models.UpdateCartItemRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	item, err := a.carts.UpdateItemQuantity(r.Context(), cartID, itemID, req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

// RemoveCartItemHandler handles DELETE /api/v1/carts/{id}/items/{item_id}
func (a *App) RemoveCartItemHandler(w http.ResponseWriter, r *http.Request) {
	cartID, err := pathCartID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	itemID, err := pathInt64(r, "item_id")
	if err != nil {
		writeError(w, r, err)
		return
	}

	if err := a.carts.RemoveItem(r.Context(), cartID, itemID); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// CreateOrderHandler handles POST /api/v1/orders
func (a *App) CreateOrderHandler(w http.ResponseWriter, r *http.Request) {
	var req models.CreateOrderRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	order, err := a.orders.Checkout(r.Context(), auth.FromContext(r.Context()), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, order)
}

// ListOrdersHandler handles GET /api/v1/orders
func (a *App) ListOrdersHandler(w http.ResponseWriter, r *http.Request) {
	orders, err := a.orders.ListOrders(r.Context(), auth.FromContext(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, orders)
}

// GetOrderHandler handles GET /api/v1/orders/{id}
func (a *App) GetOrderHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt64(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}

	order, err := a.orders.GetOrder(r.Context(), auth.FromContext(r.Context()), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

// UpdateOrderHandler handles PATCH /api/v1/orders/{id}
func (a *App) UpdateOrderHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt64(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req models.UpdateOrderRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	order, err := a.orders.UpdatePaymentStatus(r.Context(), auth.FromContext(r.Context()), id, req.PaymentStatus)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

// StartPaymentHandler handles POST /api/v1/orders/{id}/payment
func (a *App) StartPaymentHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt64(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}

	handle, err := a.orders.StartPayment(r.Context(), auth.FromContext(r.Context()), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, handle)
}

// PaymentCallbackHandler handles POST /api/v1/payments/callback.
// Only the payment integration, identified by its shared secret, may call it.
func (a *App) PaymentCallbackHandler(w http.ResponseWriter, r *http.Request) {
	caller := auth.FromContext(r.Context())
	if caller == nil {
		writeError(w, r, models.ErrUnauthenticated)
		return
	}
	if !caller.PaymentCallback {
		writeError(w, r, models.ErrForbidden)
		return
	}

	var req models.PaymentCallbackRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.OrderID <= 0 {
		writeError(w, r, models.NewValidationError("order_id", "This field is required.", models.ErrInvalidArgument))
		return
	}

	order, err := a.orders.UpdatePaymentStatus(r.Context(), caller, req.OrderID, req.PaymentStatus)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

// GetProfileHandler handles GET /api/v1/profiles/me
func (a *App) GetProfileHandler(w http.ResponseWriter, r *http.Request) {
	profile, err := a.profiles.Me(r.Context(), auth.FromContext(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

// UpdateProfileHandler handles PUT /api/v1/profiles/me
func (a *App) UpdateProfileHandler(w http.ResponseWriter, r *http.Request) {
	var req models.UpdateProfileRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	profile, err := a.profiles.UpdateMe(r.Context(), auth.FromContext(r.Context()), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}
