package domain

import "errors"

var (
	ErrInvalidOrder          = errors.New("invalid order parameters")
	ErrInvalidQuantity       = errors.New("quantity must be greater than zero")
	ErrInvalidSide           = errors.New("invalid order side")
	ErrInvalidPrice          = errors.New("price must be greater than zero")
	ErrInsufficientFunds     = errors.New("insufficient funds")
	ErrShortSellingDisabled  = errors.New("short selling is disabled")
	ErrPositionNotFound      = errors.New("position not found")
	ErrPositionAlreadyClosed = errors.New("position already closed")
	ErrPriceUnavailable      = errors.New("no price data available")
	ErrInvalidDays           = errors.New("days must not be negative")

	ErrPersistenceWriteFailed = errors.New("persistence write failed")
	ErrPersistenceReadCorrupt = errors.New("persisted state is corrupt")

	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
)
