// Package market runs the account, inventory and marketplace commands.
package market

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	mathrand "math/rand"
	"sync"
	"time"

	"growtube/internal/cooldown"
	"growtube/internal/game"
	"growtube/internal/ledger"
)

const defaultNotifyTimeout = 5 * time.Second

// TradeRegistry reports whether a user has an open trade session.
type TradeRegistry interface {
	IsTrading(userID int64) bool
}

// Publisher broadcasts committed price changes.
type Publisher interface {
	Publish(ctx context.Context, change game.PriceChange) error
}

type Options struct {
	Publisher     Publisher
	Trades        TradeRegistry
	Cooldowns     *cooldown.Limiter
	NotifyTimeout time.Duration
	Seed          int64
}

type Engine struct {
	store  ledger.Store
	log    *slog.Logger
	pub    Publisher
	trades TradeRegistry
	limits *cooldown.Limiter

	notifyTimeout time.Duration
	pending       sync.WaitGroup

	mu   sync.Mutex
	rand *mathrand.Rand
}

func NewEngine(store ledger.Store, logger *slog.Logger, opts Options) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Cooldowns == nil {
		opts.Cooldowns = cooldown.New()
	}
	if opts.NotifyTimeout <= 0 {
		opts.NotifyTimeout = defaultNotifyTimeout
	}
	if opts.Seed == 0 {
		opts.Seed = time.Now().UnixNano()
	}
	return &Engine{
		store:         store,
		log:           logger,
		pub:           opts.Publisher,
		trades:        opts.Trades,
		limits:        opts.Cooldowns,
		notifyTimeout: opts.NotifyTimeout,
		rand:          mathrand.New(mathrand.NewSource(opts.Seed)),
	}
}

// SetTradeRegistry attaches the trade manager after construction; the two
// depend on each other through the bot wiring.
func (e *Engine) SetTradeRegistry(r TradeRegistry) {
	e.trades = r
}

func (e *Engine) Register(ctx context.Context, userID int64) error {
	err := e.store.InTx(ctx, func(tx ledger.Tx) error {
		return tx.CreateAccount(ctx, userID)
	})
	if err == nil {
		e.log.Info("account registered", "user", userID)
	}
	return err
}

func (e *Engine) Wallet(ctx context.Context, userID int64) (game.Account, error) {
	return e.store.Account(ctx, userID)
}

// Collect grants one random item from the collectable set.
func (e *Engine) Collect(ctx context.Context, userID int64) (game.Item, error) {
	if _, err := e.store.Account(ctx, userID); err != nil {
		return game.Item{}, err
	}
	if err := e.limits.Take("collect", userID, cooldown.Collect); err != nil {
		return game.Item{}, err
	}

	itemID := ledger.CollectableItemIDs[pickWeighted(e.nextFloat(), ledger.CollectWeights)]
	err := e.store.InTx(ctx, func(tx ledger.Tx) error {
		if _, err := tx.LockAccount(ctx, userID); err != nil {
			return err
		}
		_, err := tx.AdjustHolding(ctx, userID, itemID, 1)
		return err
	})
	if err != nil {
		e.limits.Refund("collect", userID)
		return game.Item{}, err
	}
	return e.store.Item(ctx, itemID)
}

func (e *Engine) Inventory(ctx context.Context, userID int64) (game.InventoryView, error) {
	out := game.InventoryView{UserID: userID}
	if _, err := e.store.Account(ctx, userID); err != nil {
		return out, err
	}
	holdings, err := e.store.Holdings(ctx, userID)
	if err != nil {
		return out, err
	}
	for _, h := range holdings {
		value, ok := game.Notional(game.SellUnitPrice(h.Item), h.Quantity)
		if !ok {
			value = math.MaxInt64
		}
		out.Lines = append(out.Lines, game.InventoryLine{Name: h.Item.Name, Quantity: h.Quantity, EstimatedValue: value})
		if out.TotalValue+value < out.TotalValue {
			out.TotalValue = math.MaxInt64
		} else {
			out.TotalValue += value
		}
	}
	return out, nil
}

func (e *Engine) Sell(ctx context.Context, in game.SellInput) (game.SellResult, error) {
	var out game.SellResult
	if !in.All && in.Quantity <= 0 {
		return out, game.Validationf("quantity must be > 0")
	}
	name, err := game.NormalizeItemName(in.ItemName)
	if err != nil {
		return out, err
	}
	if e.isTrading(in.UserID) {
		return out, fmt.Errorf("%w: finish or cancel your trade first", game.ErrInProgress)
	}

	err = e.store.InTx(ctx, func(tx ledger.Tx) error {
		if _, err := tx.LockAccount(ctx, in.UserID); err != nil {
			return err
		}
		held, err := tx.LockHoldingByName(ctx, in.UserID, name)
		if errors.Is(err, ledger.ErrNotFound) {
			return fmt.Errorf("%w: %s", game.ErrNotOwned, name)
		}
		if err != nil {
			return err
		}
		qty := in.Quantity
		if in.All {
			qty = held.Quantity
		}
		if qty > held.Quantity {
			return fmt.Errorf("%w: you only have %d %s", game.ErrInsufficientQuantity, held.Quantity, held.Item.Name)
		}

		item, err := tx.LockItemByName(ctx, held.Item.Name)
		if err != nil {
			return err
		}
		unit := game.SellUnitPrice(item)
		gross, ok := game.Notional(unit, qty)
		if !ok {
			return game.Validationf("order too large")
		}
		net, tax := game.SellProceeds(gross)

		if _, err := tx.AdjustHolding(ctx, in.UserID, item.ID, -qty); err != nil {
			return err
		}
		updated, err := tx.ApplyItemDelta(ctx, item.ID, 0, 1, qty)
		if err != nil {
			return err
		}
		balance, err := tx.AddCurrency(ctx, in.UserID, net)
		if err != nil {
			return err
		}
		out = game.SellResult{
			Item:       updated,
			Quantity:   qty,
			UnitPrice:  unit,
			Proceeds:   net,
			TaxPercent: tax,
			Balance:    balance,
		}
		return nil
	})
	if err != nil {
		return game.SellResult{}, err
	}
	e.log.Info("item sold", "user", in.UserID, "item", out.Item.ID, "qty", out.Quantity, "proceeds", out.Proceeds)
	e.announce(out.Item)
	return out, nil
}

func (e *Engine) Buy(ctx context.Context, in game.BuyInput) (game.BuyResult, error) {
	var out game.BuyResult
	if in.Quantity <= 0 {
		return out, game.Validationf("quantity must be > 0")
	}
	name, err := game.NormalizeItemName(in.ItemName)
	if err != nil {
		return out, err
	}
	if e.isTrading(in.UserID) {
		return out, fmt.Errorf("%w: finish or cancel your trade first", game.ErrInProgress)
	}

	err = e.store.InTx(ctx, func(tx ledger.Tx) error {
		acct, err := tx.LockAccount(ctx, in.UserID)
		if err != nil {
			return err
		}
		item, err := tx.LockItemByName(ctx, name)
		if errors.Is(err, ledger.ErrNotFound) {
			return fmt.Errorf("%w: %s", game.ErrItemNotBuyable, name)
		}
		if err != nil {
			return err
		}
		if !item.Buyable {
			return fmt.Errorf("%w: %s", game.ErrItemNotBuyable, item.Name)
		}
		if item.Stock == 0 || item.Stock < in.Quantity {
			return fmt.Errorf("%w: %d %s left", game.ErrOutOfStock, item.Stock, item.Name)
		}

		unit := game.BuyUnitPrice(item)
		notional, ok := game.Notional(unit, in.Quantity)
		if !ok {
			return game.Validationf("order too large")
		}
		total, tax := game.ComputeTransaction(notional)
		if acct.Currency < total {
			return fmt.Errorf("%w: need %d, have %d", game.ErrInsufficientFunds, total, acct.Currency)
		}

		balance, err := tx.AddCurrency(ctx, in.UserID, -total)
		if err != nil {
			return err
		}
		if _, err := tx.AdjustHolding(ctx, in.UserID, item.ID, in.Quantity); err != nil {
			return err
		}
		updated, err := tx.ApplyItemDelta(ctx, item.ID, 1, 0, -in.Quantity)
		if err != nil {
			return err
		}
		out = game.BuyResult{
			Item:       updated,
			Quantity:   in.Quantity,
			UnitPrice:  unit,
			Total:      total,
			TaxPercent: tax,
			Balance:    balance,
		}
		return nil
	})
	if err != nil {
		return game.BuyResult{}, err
	}
	e.log.Info("item bought", "user", in.UserID, "item", out.Item.ID, "qty", out.Quantity, "total", out.Total)
	e.announce(out.Item)
	return out, nil
}

// Transfer moves currency between two accounts and returns the sender's
// new balance.
func (e *Engine) Transfer(ctx context.Context, senderID, recipientID, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, game.Validationf("amount must be > 0")
	}
	if senderID == recipientID {
		return 0, game.Validationf("cannot transfer to yourself")
	}
	var balance int64
	err := e.store.InTx(ctx, func(tx ledger.Tx) error {
		accts, err := tx.LockAccounts(ctx, senderID, recipientID)
		if err != nil {
			return err
		}
		if have := accts[senderID].Currency; have < amount {
			return fmt.Errorf("%w: have %d", game.ErrInsufficientFunds, have)
		}
		if balance, err = tx.AddCurrency(ctx, senderID, -amount); err != nil {
			return err
		}
		_, err = tx.AddCurrency(ctx, recipientID, amount)
		return err
	})
	if err != nil {
		return 0, err
	}
	e.log.Info("currency transferred", "from", senderID, "to", recipientID, "amount", amount)
	return balance, nil
}

func (e *Engine) Market(ctx context.Context) ([]game.Listing, error) {
	items, err := e.store.BuyableItems(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]game.Listing, 0, len(items))
	for _, it := range items {
		out = append(out, game.Listing{ID: it.ID, Name: it.Name, Price: game.BuyUnitPrice(it), Stock: it.Stock})
	}
	return out, nil
}

func (e *Engine) Top(ctx context.Context, limit int) ([]game.LeaderboardRow, error) {
	accts, err := e.store.TopAccounts(ctx, game.ClampTopLimit(limit))
	if err != nil {
		return nil, err
	}
	out := make([]game.LeaderboardRow, 0, len(accts))
	for i, a := range accts {
		out = append(out, game.LeaderboardRow{Rank: int64(i + 1), UserID: a.UserID, Currency: a.Currency})
	}
	return out, nil
}

// Wait blocks until in-flight price notifications have finished.
func (e *Engine) Wait() {
	e.pending.Wait()
}

func (e *Engine) isTrading(userID int64) bool {
	return e.trades != nil && e.trades.IsTrading(userID)
}

func (e *Engine) announce(it game.Item) {
	if e.pub == nil {
		return
	}
	change := game.PriceChangeOf(it)
	e.pending.Add(1)
	go func() {
		defer e.pending.Done()
		ctx, cancel := context.WithTimeout(context.Background(), e.notifyTimeout)
		defer cancel()
		if err := e.pub.Publish(ctx, change); err != nil {
			e.log.Warn("price notify failed", "item", change.ID, "err", err)
		}
	}()
}

func (e *Engine) nextFloat() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rand.Float64()
}

// pickWeighted maps r in [0,1) onto an index of weights.
func pickWeighted(r float64, weights []int) int {
	total := 0
	for _, w := range weights {
		total += w
	}
	target := r * float64(total)
	acc := 0.0
	for i, w := range weights {
		acc += float64(w)
		if target < acc {
			return i
		}
	}
	return len(weights) - 1
}
