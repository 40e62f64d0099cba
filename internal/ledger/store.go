package ledger

import (
	"context"
	"errors"
	"time"

	"growtube/internal/game"
)

var ErrNotFound = errors.New("not found")

// Reader serves queries that need no transaction beyond the store's own
// consistency.
type Reader interface {
	Account(ctx context.Context, userID int64) (game.Account, error)
	Item(ctx context.Context, itemID int64) (game.Item, error)
	Holdings(ctx context.Context, userID int64) ([]game.Holding, error)
	HoldingByName(ctx context.Context, userID int64, name string) (game.Holding, error)
	BuyableItems(ctx context.Context) ([]game.Item, error)
	TopAccounts(ctx context.Context, limit int) ([]game.Account, error)
	Careers(ctx context.Context) ([]game.Career, error)
	Position(ctx context.Context, positionID int64) (game.Position, error)
	EntryPosition(ctx context.Context, careerID int64) (game.Position, error)
	WorkSessions(ctx context.Context) ([]game.WorkSession, error)
}

// Tx is the write side. Every Lock* call re-reads the authoritative row and
// holds it until the transaction ends.
type Tx interface {
	CreateAccount(ctx context.Context, userID int64) error
	LockAccount(ctx context.Context, userID int64) (game.Account, error)
	// LockAccounts locks in ascending id order.
	LockAccounts(ctx context.Context, userIDs ...int64) (map[int64]game.Account, error)
	AddCurrency(ctx context.Context, userID, delta int64) (int64, error)

	LockItemByName(ctx context.Context, name string) (game.Item, error)
	ApplyItemDelta(ctx context.Context, itemID, demand, supply, stock int64) (game.Item, error)

	LockHolding(ctx context.Context, userID, itemID int64) (int64, error)
	LockHoldingByName(ctx context.Context, userID int64, name string) (game.Holding, error)
	// AdjustHolding inserts, updates or deletes so that no row is left at zero.
	AdjustHolding(ctx context.Context, userID, itemID, delta int64) (int64, error)

	SetCareer(ctx context.Context, userID, careerID, positionID int64) error
	// SetWorkStarted records a shift and the channel it began in; a nil at
	// clears both.
	SetWorkStarted(ctx context.Context, userID int64, at *time.Time, channelID string) error
}

type Store interface {
	Reader
	InTx(ctx context.Context, fn func(tx Tx) error) error
	Close()
}
