package domain

import "errors"

// Errors
var (
	ErrInvalidItemID    = errors.New("invalid item id")
	ErrItemNotFound     = errors.New("item not found")
	ErrMalformedDetails = errors.New("malformed item details")
)
