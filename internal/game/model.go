package game

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	CurrencyName = "Growcoin"

	// Amounts strictly above this pay the high tax tier.
	HighTaxThreshold = int64(100_000)
	HighTaxPercent   = int64(3)
	LowTaxPercent    = int64(2)

	MaxTopLimit     = 30
	DefaultTopLimit = 10

	maxItemNameLen = 64
)

var (
	ErrValidation           = errors.New("invalid request")
	ErrNotRegistered        = errors.New("not registered")
	ErrAlreadyRegistered    = errors.New("already registered")
	ErrInsufficientFunds    = errors.New("insufficient funds")
	ErrInsufficientQuantity = errors.New("insufficient quantity")
	ErrOutOfStock           = errors.New("out of stock")
	ErrItemNotBuyable       = errors.New("item not found or not buyable")
	ErrNotOwned             = errors.New("item not owned")
	ErrInProgress           = errors.New("another activity is in progress")
	ErrNotTrading           = errors.New("not trading with anyone")
	ErrDeclined             = errors.New("declined")
	ErrInvalidCareer        = errors.New("invalid career id")
	ErrUnemployed           = errors.New("no career selected")
	ErrNotWorking           = errors.New("not working")
	ErrRateLimited          = errors.New("rate limited")
	ErrTxConflict           = errors.New("transaction conflict, retry")
)

type RateLimitedError struct {
	Action     string
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("%s is on cooldown, retry in %s", e.Action, e.RetryAfter.Round(time.Second))
}

func (e *RateLimitedError) Is(target error) bool {
	return target == ErrRateLimited
}

var recoverable = []error{
	ErrValidation,
	ErrNotRegistered,
	ErrAlreadyRegistered,
	ErrInsufficientFunds,
	ErrInsufficientQuantity,
	ErrOutOfStock,
	ErrItemNotBuyable,
	ErrNotOwned,
	ErrInProgress,
	ErrNotTrading,
	ErrDeclined,
	ErrInvalidCareer,
	ErrUnemployed,
	ErrNotWorking,
	ErrRateLimited,
	ErrTxConflict,
}

// IsRecoverable reports whether err is a user-facing failure that left no
// state behind. Anything else is internal and should be logged.
func IsRecoverable(err error) bool {
	for _, target := range recoverable {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// NormalizeItemName lower-cases and trims an item name for catalog lookups.
func NormalizeItemName(name string) (string, error) {
	clean := strings.ToLower(strings.Join(strings.Fields(name), " "))
	if clean == "" {
		return "", Validationf("item name is required")
	}
	if len(clean) > maxItemNameLen {
		return "", Validationf("item name too long (max %d chars)", maxItemNameLen)
	}
	return clean, nil
}

func ClampTopLimit(limit int) int {
	if limit <= 0 {
		return DefaultTopLimit
	}
	if limit > MaxTopLimit {
		return MaxTopLimit
	}
	return limit
}
