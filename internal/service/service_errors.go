package service

import "errors"

var (
	ErrEmptyBasket      = errors.New("order must contain at least one item")
	ErrInvalidQuantity  = errors.New("quantity must be between 1 and 2147483647")
	ErrDuplicateProduct = errors.New("product listed more than once in basket")
	ErrInvalidStatus    = errors.New("unknown order status")
	ErrInvalidVersion   = errors.New("expected version must be non-negative")
	ErrInvalidPrice     = errors.New("price must be positive and at most 9999999999.99")
	ErrInvalidStock     = errors.New("stock must be between 0 and 2147483647")
	ErrTotalTooLarge    = errors.New("order total exceeds 999999999999.99")
	ErrProductDeleted   = errors.New("product is deleted")
)
