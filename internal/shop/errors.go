package shop

import "errors"

var (
	ErrEmptyCart       = errors.New("cart is empty, nothing to order")
	ErrMissingAddress  = errors.New("shipping address is required")
	ErrUnknownVariant  = errors.New("product has no such variant")
	ErrInvalidQuantity = errors.New("quantity must be positive")
)
