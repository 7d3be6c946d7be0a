package cart

import "errors"

var (
	// -- Authentication/Authorization --
	ErrUnauthenticated = errors.New("user not authenticated")

	// -- Validation & Input --
	ErrInvalidQuantity   = errors.New("invalid cart quantity")
	ErrEmptyProductID    = errors.New("product ID is required")
	ErrInsufficientStock = errors.New("insufficient stock")

	// -- Resource State --
	ErrCartItemNotFound = errors.New("cart item not found")
	ErrSessionChanged   = errors.New("session changed while request was in flight")

	// -- Remote Failures --
	ErrTransport         = errors.New("cart service request failed")
	ErrProductResolution = errors.New("failed to resolve cart product")
)
