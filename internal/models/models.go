package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MaxLineQuantity is the largest quantity a single cart line may hold.
const MaxLineQuantity = 32767

// Product represents a product in the catalog
type Product struct {
	ID              int64           `json:"id"`
	Name            string          `json:"name"`
	CategoryID      int64           `json:"category_id"`
	UnitPrice       decimal.Decimal `json:"unit_price"`
	QuantityInStock int             `json:"quantity_in_stock"`
	Description     string          `json:"description"`
	Image           *string         `json:"image,omitempty"`
}

// Category groups products. HighlightedProductID is nulled when that product is deleted.
type Category struct {
	ID                   int64  `json:"id"`
	Name                 string `json:"name"`
	HighlightedProductID *int64 `json:"highlighted_product_id"`
	ProductCount         int    `json:"product_count"`
}

// Profile is the site-level record an order is owned by
type Profile struct {
	ID          int64      `json:"id"`
	UserID      int64      `json:"user_id"`
	PhoneNumber string     `json:"phone_number"`
	BirthDate   *time.Time `json:"birth_date"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Cart represents a shopping cart with its lines priced at read time
type Cart struct {
	ID         uuid.UUID       `json:"id"`
	CreatedAt  time.Time       `json:"created_at"`
	Items      []CartLine      `json:"items"`
	TotalPrice decimal.Decimal `json:"total_price"`
}

// CartItem represents a stored cart line
type CartItem struct {
	ID        int64     `json:"id"`
	CartID    uuid.UUID `json:"cart_id"`
	ProductID int64     `json:"product_id"`
	Quantity  int       `json:"quantity"`
}

// CartLine is a cart item enriched with the product's current name and price
type CartLine struct {
	ID          int64           `json:"id"`
	ProductID   int64           `json:"product_id"`
	ProductName string          `json:"product_name"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Quantity    int             `json:"quantity"`
	TotalPrice  decimal.Decimal `json:"total_price"`
}

// Order represents a placed order
type Order struct {
	ID            int64           `json:"id"`
	CreatedAt     time.Time       `json:"created_at"`
	ProfileID     int64           `json:"owner"`
	PaymentStatus PaymentStatus   `json:"payment_status"`
	Items         []OrderItem     `json:"items"`
	TotalPrice    decimal.Decimal `json:"total_price"`
}

// OrderItem represents an item in an order. UnitPrice is the price at checkout.
type OrderItem struct {
	ID          int64           `json:"id"`
	OrderID     int64           `json:"order_id"`
	ProductID   int64           `json:"product_id"`
	ProductName string          `json:"product_name"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	TotalPrice  decimal.Decimal `json:"total_price"`
}

// Review is a free-form product review
type Review struct {
	ID          int64     `json:"id"`
	ProductID   int64     `json:"product_id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"date"`
}

// LineTotal returns quantity × unit price
func LineTotal(quantity int, unitPrice decimal.Decimal) decimal.Decimal {
	return unitPrice.Mul(decimal.NewFromInt(int64(quantity)))
}

// Price fills line totals and the cart total from the lines' current unit prices
func (c *Cart) Price() {
	total := decimal.Zero
	for i := range c.Items {
		c.Items[i].TotalPrice = LineTotal(c.Items[i].Quantity, c.Items[i].UnitPrice)
		total = total.Add(c.Items[i].TotalPrice)
	}
	c.TotalPrice = total
}

// Price fills line totals and the order total from the snapshotted unit prices
func (o *Order) Price() {
	total := decimal.Zero
	for i := range o.Items {
		o.Items[i].TotalPrice = LineTotal(o.Items[i].Quantity, o.Items[i].UnitPrice)
		total = total.Add(o.Items[i].TotalPrice)
	}
	o.TotalPrice = total
}

// AddCartItemRequest represents a request to add an item to a cart
type AddCartItemRequest struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}

// UpdateCartItemRequest represents a request to change a line's quantity
type UpdateCartItemRequest struct {
	Quantity int `json:"quantity"`
}

// CreateOrderRequest represents a request to check out a cart
type CreateOrderRequest struct {
	CartID string `json:"cart_id"`
}

// UpdateOrderRequest represents a payment status change
type UpdateOrderRequest struct {
	PaymentStatus string `json:"payment_status"`
}

// PaymentCallbackRequest is posted by the payment provider integration
type PaymentCallbackRequest struct {
	OrderID       int64  `json:"order_id"`
	PaymentStatus string `json:"payment_status"`
}

// CreateReviewRequest represents a new review
type CreateReviewRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// CreateProductRequest represents a new catalog product
type CreateProductRequest struct {
	Name            string          `json:"name"`
	CategoryID      int64           `json:"category_id"`
	UnitPrice       decimal.Decimal `json:"unit_price"`
	QuantityInStock int             `json:"quantity_in_stock"`
	Description     string          `json:"description"`
	Image           *string         `json:"image,omitempty"`
}

// UpdateProductPriceRequest changes a product's unit price
type UpdateProductPriceRequest struct {
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// CreateCategoryRequest represents a new category
type CreateCategoryRequest struct {
	Name                 string `json:"name"`
	HighlightedProductID *int64 `json:"highlighted_product_id"`
}

// UpdateProfileRequest updates the caller's profile
type UpdateProfileRequest struct {
	PhoneNumber string     `json:"phone_number"`
	BirthDate   *time.Time `json:"birth_date"`
}
