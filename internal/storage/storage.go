package storage

import (
	"context"
	"errors"
)

// Keys shared by the cart store and the session manager.
// Only the cart store writes KeyCart; only the session side writes the
// credential keys. KeyCheckoutDraft belongs to the checkout flow.
const (
	KeyCart          = "cart"
	KeyAccessToken   = "token"
	KeyRefreshToken  = "rt"
	KeyUser          = "user"
	KeyCheckoutDraft = "checkout_draft"
)

var (
	ErrNotFound      = errors.New("key not found")
	ErrUnknownDriver = errors.New("unknown storage driver")
)

// Storage is a durable key -> string value store.
// Writes are last-writer-wins per key.
type Storage interface {
	// Get returns ErrNotFound when the key is absent
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	// Delete removes the keys; missing keys are not an error
	Delete(ctx context.Context, keys ...string) error
	Close() error
}
