package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/affordeals/storefront/internal/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Memory is an in-process Repository. Transactions are serialised and
// roll back by restoring a snapshot, so the checkout contract holds as on MySQL.
type Memory struct {
	mu   *sync.Mutex
	st   *memState
	inTx bool
}

type memState struct {
	nextID     int64
	products   map[int64]models.Product
	categories map[int64]models.Category
	carts      map[uuid.UUID]models.Cart
	cartItems  map[int64]models.CartItem
	orders     map[int64]models.Order
	orderItems map[int64]models.OrderItem
	reviews    map[int64]models.Review
	profiles   map[int64]models.Profile
}

// NewMemory creates an empty in-process repository
func NewMemory() *Memory {
	return &Memory{
		mu: &sync.Mutex{},
		st: &memState{
			products:   map[int64]models.Product{},
			categories: map[int64]models.Category{},
			carts:      map[uuid.UUID]models.Cart{},
			cartItems:  map[int64]models.CartItem{},
			orders:     map[int64]models.Order{},
			orderItems: map[int64]models.OrderItem{},
			reviews:    map[int64]models.Review{},
			profiles:   map[int64]models.Profile{},
		},
	}
}

func (st *memState) clone() *memState {
	c := *st
	c.products = cloneMap(st.products)
	c.categories = cloneMap(st.categories)
	c.carts = cloneMap(st.carts)
	c.cartItems = cloneMap(st.cartItems)
	c.orders = cloneMap(st.orders)
	c.orderItems = cloneMap(st.orderItems)
	c.reviews = cloneMap(st.reviews)
	c.profiles = cloneMap(st.profiles)
	return &c
}

func cloneMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (st *memState) id() int64 {
	st.nextID++
	return st.nextID
}

func (m *Memory) lock() func() {
	if m.inTx {
		return func() {}
	}
	m.mu.Lock()
	return m.mu.Unlock
}

// WithTx runs fn with exclusive access and restores the prior state if it fails
func (m *Memory) WithTx(ctx context.Context, fn func(Repository) error) error {
	if m.inTx {
		return fn(m)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return models.Unavailable("failed to begin transaction", err)
	}

	snapshot := m.st.clone()
	if err := fn(&Memory{mu: m.mu, st: m.st, inTx: true}); err != nil {
		*m.st = *snapshot
		return err
	}
	return nil
}

// GetProduct returns a product by ID
func (m *Memory) GetProduct(_ context.Context, id int64) (*models.Product, error) {
	defer m.lock()()
	p, ok := m.st.products[id]
	if !ok {
		return nil, models.NotFoundf("product %d", id)
	}
	return &p, nil
}

// ListProducts returns a page of products ordered by id
func (m *Memory) ListProducts(_ context.Context, limit, offset int) ([]models.Product, error) {
	defer m.lock()()
	products := sortedValues(m.st.products, func(a, b models.Product) bool { return a.ID < b.ID })
	if offset >= len(products) {
		return []models.Product{}, nil
	}
	products = products[offset:]
	if limit >= 0 && limit < len(products) {
		products = products[:limit]
	}
	return products, nil
}

// CreateProduct inserts a product and sets its ID
func (m *Memory) CreateProduct(_ context.Context, p *models.Product) error {
	defer m.lock()()
	if _, ok := m.st.categories[p.CategoryID]; !ok {
		return models.NotFoundf("category %d", p.CategoryID)
	}
	p.ID = m.st.id()
	m.st.products[p.ID] = *p
	return nil
}

// UpdateProductPrice changes the catalog price
func (m *Memory) UpdateProductPrice(_ context.Context, id int64, price decimal.Decimal) error {
	defer m.lock()()
	p, ok := m.st.products[id]
	if !ok {
		return models.NotFoundf("product %d", id)
	}
	p.UnitPrice = price
	m.st.products[id] = p
	return nil
}

// DeleteProduct mirrors the MySQL foreign keys: order items protect the product,
// cart lines and reviews cascade, highlighted pointers are nulled.
func (m *Memory) DeleteProduct(_ context.Context, id int64) error {
	defer m.lock()()
	if _, ok := m.st.products[id]; !ok {
		return models.NotFoundf("product %d", id)
	}
	for _, item := range m.st.orderItems {
		if item.ProductID == id {
			return fmt.Errorf("%w: product %d is referenced by orders", models.ErrConflict, id)
		}
	}

	delete(m.st.products, id)
	for itemID, item := range m.st.cartItems {
		if item.ProductID == id {
			delete(m.st.cartItems, itemID)
		}
	}
	for reviewID, r := range m.st.reviews {
		if r.ProductID == id {
			delete(m.st.reviews, reviewID)
		}
	}
	for catID, c := range m.st.categories {
		if c.HighlightedProductID != nil && *c.HighlightedProductID == id {
			c.HighlightedProductID = nil
			m.st.categories[catID] = c
		}
	}
	return nil
}

// ListCategories returns all categories with their product counts
func (m *Memory) ListCategories(_ context.Context) ([]models.Category, error) {
	defer m.lock()()
	categories := sortedValues(m.st.categories, func(a, b models.Category) bool { return a.ID < b.ID })
	for i := range categories {
		categories[i].ProductCount = 0
		for _, p := range m.st.products {
			if p.CategoryID == categories[i].ID {
				categories[i].ProductCount++
			}
		}
	}
	return categories, nil
}

// CreateCategory inserts a category and sets its ID
func (m *Memory) CreateCategory(_ context.Context, c *models.Category) error {
	defer m.lock()()
	if c.HighlightedProductID != nil {
		if _, ok := m.st.products[*c.HighlightedProductID]; !ok {
			return models.NotFoundf("highlighted product %d", *c.HighlightedProductID)
		}
	}
	c.ID = m.st.id()
	m.st.categories[c.ID] = *c
	return nil
}

// CreateCart stores a cart with the ID already set on it
func (m *Memory) CreateCart(_ context.Context, cart *models.Cart) error {
	defer m.lock()()
	if _, ok := m.st.carts[cart.ID]; ok {
		return fmt.Errorf("%w: cart %s already exists", models.ErrConflict, cart.ID)
	}
	m.st.carts[cart.ID] = models.Cart{ID: cart.ID, CreatedAt: cart.CreatedAt}
	return nil
}

// GetCart returns the cart without lines; forUpdate is implied by the transaction lock
func (m *Memory) GetCart(_ context.Context, id uuid.UUID, _ bool) (*models.Cart, error) {
	defer m.lock()()
	cart, ok := m.st.carts[id]
	if !ok {
		return nil, models.NotFoundf("cart %s", id)
	}
	return &cart, nil
}

// ListCartLines returns the cart's lines in insertion order with current prices
func (m *Memory) ListCartLines(_ context.Context, cartID uuid.UUID) ([]models.CartLine, error) {
	defer m.lock()()
	items := sortedValues(m.st.cartItems, func(a, b models.CartItem) bool { return a.ID < b.ID })
	lines := []models.CartLine{}
	for _, item := range items {
		if item.CartID != cartID {
			continue
		}
		p, ok := m.st.products[item.ProductID]
		if !ok {
			continue
		}
		lines = append(lines, models.CartLine{
			ID:          item.ID,
			ProductID:   item.ProductID,
			ProductName: p.Name,
			UnitPrice:   p.UnitPrice,
			Quantity:    item.Quantity,
		})
	}
	return lines, nil
}

// FindCartItem returns the line holding productID in the cart
func (m *Memory) FindCartItem(_ context.Context, cartID uuid.UUID, productID int64, _ bool) (*models.CartItem, error) {
	defer m.lock()()
	for _, item := range m.st.cartItems {
		if item.CartID == cartID && item.ProductID == productID {
			return &item, nil
		}
	}
	return nil, models.NotFoundf("product %d is not in cart %s", productID, cartID)
}

// GetCartItem returns a line by ID, scoped to its cart
func (m *Memory) GetCartItem(_ context.Context, cartID uuid.UUID, itemID int64) (*models.CartItem, error) {
	defer m.lock()()
	item, ok := m.st.cartItems[itemID]
	if !ok || item.CartID != cartID {
		return nil, models.NotFoundf("cart item %d in cart %s", itemID, cartID)
	}
	return &item, nil
}

// InsertCartItem inserts a new line, enforcing the (cart, product) uniqueness
func (m *Memory) InsertCartItem(_ context.Context, item *models.CartItem) error {
	defer m.lock()()
	if _, ok := m.st.carts[item.CartID]; !ok {
		return models.NotFoundf("cart %s", item.CartID)
	}
	if _, ok := m.st.products[item.ProductID]; !ok {
		return models.NotFoundf("product %d", item.ProductID)
	}
	for _, existing := range m.st.cartItems {
		if existing.CartID == item.CartID && existing.ProductID == item.ProductID {
			return fmt.Errorf("%w: product %d already has a line in cart %s", models.ErrConflict, item.ProductID, item.CartID)
		}
	}
	item.ID = m.st.id()
	m.st.cartItems[item.ID] = *item
	return nil
}

// SetCartItemQuantity replaces a line's quantity
func (m *Memory) SetCartItemQuantity(_ context.Context, itemID int64, quantity int) error {
	defer m.lock()()
	item, ok := m.st.cartItems[itemID]
	if !ok {
		return models.NotFoundf("cart item %d", itemID)
	}
	item.Quantity = quantity
	m.st.cartItems[itemID] = item
	return nil
}

// DeleteCartItem removes one line from the cart
func (m *Memory) DeleteCartItem(_ context.Context, cartID uuid.UUID, itemID int64) error {
	defer m.lock()()
	item, ok := m.st.cartItems[itemID]
	if !ok || item.CartID != cartID {
		return models.NotFoundf("cart item %d in cart %s", itemID, cartID)
	}
	delete(m.st.cartItems, itemID)
	return nil
}

// DeleteCart removes the cart and its lines
func (m *Memory) DeleteCart(_ context.Context, id uuid.UUID) error {
	defer m.lock()()
	if _, ok := m.st.carts[id]; !ok {
		return models.NotFoundf("cart %s", id)
	}
	delete(m.st.carts, id)
	for itemID, item := range m.st.cartItems {
		if item.CartID == id {
			delete(m.st.cartItems, itemID)
		}
	}
	return nil
}

// CountActiveCarts counts carts holding at least one line
func (m *Memory) CountActiveCarts(_ context.Context) (int, error) {
	defer m.lock()()
	active := map[uuid.UUID]struct{}{}
	for _, item := range m.st.cartItems {
		active[item.CartID] = struct{}{}
	}
	return len(active), nil
}

// CreateOrder stores the order row and sets its ID
func (m *Memory) CreateOrder(_ context.Context, o *models.Order) error {
	defer m.lock()()
	if _, ok := m.st.profiles[o.ProfileID]; !ok {
		return models.NotFoundf("profile %d", o.ProfileID)
	}
	o.ID = m.st.id()
	m.st.orders[o.ID] = models.Order{
		ID:            o.ID,
		CreatedAt:     o.CreatedAt,
		ProfileID:     o.ProfileID,
		PaymentStatus: o.PaymentStatus,
	}
	return nil
}

// InsertOrderItems stores all items or none of them
func (m *Memory) InsertOrderItems(_ context.Context, orderID int64, items []models.OrderItem) error {
	defer m.lock()()
	if _, ok := m.st.orders[orderID]; !ok {
		return models.NotFoundf("order %d", orderID)
	}
	for _, item := range items {
		if _, ok := m.st.products[item.ProductID]; !ok {
			return models.NotFoundf("a product in order %d no longer exists", orderID)
		}
	}
	for _, item := range items {
		item.ID = m.st.id()
		item.OrderID = orderID
		item.ProductName = ""
		item.TotalPrice = decimal.Zero
		m.st.orderItems[item.ID] = item
	}
	return nil
}

// GetOrder returns an order with its items
func (m *Memory) GetOrder(_ context.Context, id int64) (*models.Order, error) {
	defer m.lock()()
	order, ok := m.st.orders[id]
	if !ok {
		return nil, models.NotFoundf("order %d", id)
	}
	m.fillOrder(&order)
	return &order, nil
}

// ListOrders returns orders newest first; profileID 0 lists all
func (m *Memory) ListOrders(_ context.Context, profileID int64) ([]models.Order, error) {
	defer m.lock()()
	all := sortedValues(m.st.orders, func(a, b models.Order) bool {
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID > b.ID
	})
	orders := []models.Order{}
	for _, o := range all {
		if profileID != 0 && o.ProfileID != profileID {
			continue
		}
		m.fillOrder(&o)
		orders = append(orders, o)
	}
	return orders, nil
}

func (m *Memory) fillOrder(order *models.Order) {
	items := sortedValues(m.st.orderItems, func(a, b models.OrderItem) bool { return a.ID < b.ID })
	order.Items = []models.OrderItem{}
	for _, item := range items {
		if item.OrderID != order.ID {
			continue
		}
		item.ProductName = m.st.products[item.ProductID].Name
		order.Items = append(order.Items, item)
	}
	order.Price()
}

// UpdatePaymentStatus applies the change only while the stored status is still from
func (m *Memory) UpdatePaymentStatus(_ context.Context, id int64, from, to models.PaymentStatus) error {
	defer m.lock()()
	order, ok := m.st.orders[id]
	if !ok {
		return models.NotFoundf("order %d", id)
	}
	if order.PaymentStatus != from {
		return fmt.Errorf("%w: order %d payment is %s", models.ErrInvalidState, id, order.PaymentStatus)
	}
	order.PaymentStatus = to
	m.st.orders[id] = order
	return nil
}

// CreateReview stores a review and sets its ID
func (m *Memory) CreateReview(_ context.Context, r *models.Review) error {
	defer m.lock()()
	if _, ok := m.st.products[r.ProductID]; !ok {
		return models.NotFoundf("product %d", r.ProductID)
	}
	r.ID = m.st.id()
	m.st.reviews[r.ID] = *r
	return nil
}

// ListReviews returns a product's reviews, newest first
func (m *Memory) ListReviews(_ context.Context, productID int64) ([]models.Review, error) {
	defer m.lock()()
	all := sortedValues(m.st.reviews, func(a, b models.Review) bool {
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID > b.ID
	})
	reviews := []models.Review{}
	for _, r := range all {
		if r.ProductID == productID {
			reviews = append(reviews, r)
		}
	}
	return reviews, nil
}

// GetOrCreateProfile returns the profile for userID, creating it on first use
func (m *Memory) GetOrCreateProfile(_ context.Context, userID int64) (*models.Profile, error) {
	defer m.lock()()
	for _, p := range m.st.profiles {
		if p.UserID == userID {
			return &p, nil
		}
	}
	now := time.Now().UTC()
	p := models.Profile{ID: m.st.id(), UserID: userID, CreatedAt: now, UpdatedAt: now}
	m.st.profiles[p.ID] = p
	return &p, nil
}

// GetProfile returns the profile for userID without creating one
func (m *Memory) GetProfile(_ context.Context, userID int64) (*models.Profile, error) {
	defer m.lock()()
	for _, p := range m.st.profiles {
		if p.UserID == userID {
			return &p, nil
		}
	}
	return nil, models.NotFoundf("profile for user %d", userID)
}

// UpdateProfile stores the editable profile fields
func (m *Memory) UpdateProfile(_ context.Context, p *models.Profile) error {
	defer m.lock()()
	stored, ok := m.st.profiles[p.ID]
	if !ok {
		return models.NotFoundf("profile %d", p.ID)
	}
	stored.PhoneNumber = p.PhoneNumber
	stored.BirthDate = p.BirthDate
	stored.UpdatedAt = time.Now().UTC()
	m.st.profiles[p.ID] = stored
	p.UpdatedAt = stored.UpdatedAt
	return nil
}

func sortedValues[K comparable, V any](m map[K]V, less func(a, b V) bool) []V {
	out := make([]V, 0, len(m))
	for _, v := range m {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return less(out[i], out[j]) })
	return out
}
