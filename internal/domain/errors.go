package domain

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrNotFound             = errors.New("not found")
	ErrInvalidAmount        = errors.New("amount must be positive")
	ErrInsufficientQuantity = errors.New("insufficient quantity")
	ErrInvalidCategory      = errors.New("invalid category")
	ErrUnsupportedCurrency  = errors.New("unsupported currency")
	ErrMissingFXRate        = errors.New("missing fx rate")
	ErrNoTicker             = errors.New("holding has no ticker")
	ErrInvalidInput         = errors.New("invalid input")
)

// InsufficientFundsError is returned when a cash debit exceeds the balance.
type InsufficientFundsError struct {
	Required  decimal.Decimal
	Available decimal.Decimal
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds: required %s, available %s",
		FormatYen(e.Required), FormatYen(e.Available))
}

// QuoteUnavailableError wraps a failed quote lookup for one symbol.
type QuoteUnavailableError struct {
	Symbol string
	Err    error
}

func (e *QuoteUnavailableError) Error() string {
	return fmt.Sprintf("quote unavailable for %s: %v", e.Symbol, e.Err)
}

func (e *QuoteUnavailableError) Unwrap() error { return e.Err }

// DuplicateSnapshotError is returned when a snapshot already exists for a date.
type DuplicateSnapshotError struct {
	Date time.Time
}

func (e *DuplicateSnapshotError) Error() string {
	return fmt.Sprintf("snapshot for %s already exists", e.Date.Format(DateLayout))
}
