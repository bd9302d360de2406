// Package auth resolves who is calling and decides what they may do.
// Every use case asks the Authorizer for a capability instead of checking roles itself.
package auth

import (
	"context"
	"fmt"

	"github.com/affordeals/storefront/internal/models"
)

// Identity is the caller attached to a request
type Identity struct {
	UserID          int64
	Email           string
	Staff           bool
	PaymentCallback bool
}

// Capability names an action a caller may be allowed to take
type Capability string

const (
	Checkout      Capability = "orders:checkout"
	ReadOwnOrders Capability = "orders:read-own"
	ReadAnyOrder  Capability = "orders:read-any"
	WriteAnyOrder Capability = "orders:write-any"
	ManageCatalog Capability = "catalog:manage"
	ManageProfile Capability = "profile:manage"
)

// Authorizer decides whether an identity holds a capability
type Authorizer interface {
	Authorize(id *Identity, c Capability) error
}

// Policy is the storefront's role policy: customers act on their own
// orders and profile, staff administer everything, the payment callback may
// only write order status.
type Policy struct{}

// Authorize returns ErrUnauthenticated or ErrForbidden when the capability is missing
func (Policy) Authorize(id *Identity, c Capability) error {
	if id == nil {
		return fmt.Errorf("%w: %s", models.ErrUnauthenticated, c)
	}

	switch c {
	case Checkout, ReadOwnOrders, ManageProfile:
		if id.UserID != 0 {
			return nil
		}
	case ReadAnyOrder, ManageCatalog:
		if id.Staff {
			return nil
		}
	case WriteAnyOrder:
		if id.Staff || id.PaymentCallback {
			return nil
		}
	}

	if id.UserID == 0 && !id.PaymentCallback {
		return fmt.Errorf("%w: %s", models.ErrUnauthenticated, c)
	}
	return fmt.Errorf("%w: %s", models.ErrForbidden, c)
}

type contextKey struct{}

// WithIdentity attaches the caller to ctx
func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, contextKey{}, id)
}

// FromContext returns the caller, or nil for anonymous requests
func FromContext(ctx context.Context) *Identity {
	id, _ := ctx.Value(contextKey{}).(*Identity)
	return id
}
