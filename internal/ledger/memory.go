package ledger

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"growtube/internal/game"
)

// Memory is a process-local Store. Transactions run one at a time against a
// copy of the state that replaces the live state only on success, so a
// failed callback leaves nothing behind. Published states are never mutated,
// which lets readers work on a snapshot without holding the lock.
type Memory struct {
	mu    sync.Mutex
	state *memState
}

type holdingKey struct {
	userID int64
	itemID int64
}

type memState struct {
	accounts  map[int64]game.Account
	items     map[int64]game.Item
	holdings  map[holdingKey]int64
	careers   map[int64]game.Career
	positions map[int64]game.Position
}

func NewMemory(cat Catalog) *Memory {
	st := &memState{
		accounts:  make(map[int64]game.Account),
		items:     make(map[int64]game.Item, len(cat.Items)),
		holdings:  make(map[holdingKey]int64),
		careers:   make(map[int64]game.Career, len(cat.Careers)),
		positions: make(map[int64]game.Position, len(cat.Positions)),
	}
	for _, it := range cat.Items {
		st.items[it.ID] = it
	}
	for _, c := range cat.Careers {
		st.careers[c.ID] = c
	}
	for _, p := range cat.Positions {
		st.positions[p.ID] = p
	}
	return &Memory{state: st}
}

func (m *Memory) Close() {}

func (m *Memory) InTx(ctx context.Context, fn func(tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	work := m.state.clone()
	if err := fn(&memTx{st: work}); err != nil {
		return err
	}
	m.state = work
	return nil
}

// PutItem upserts a catalog row. Used for seeding.
func (m *Memory) PutItem(it game.Item) {
	m.mu.Lock()
	defer m.mu.Unlock()
	next := m.state.clone()
	next.items[it.ID] = it
	m.state = next
}

func (m *Memory) Item(_ context.Context, itemID int64) (game.Item, error) {
	it, ok := m.read().items[itemID]
	if !ok {
		return game.Item{}, ErrNotFound
	}
	return it, nil
}

func (m *Memory) read() *memState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Memory) Account(_ context.Context, userID int64) (game.Account, error) {
	st := m.read()
	a, ok := st.accounts[userID]
	if !ok {
		return game.Account{}, game.ErrNotRegistered
	}
	return a, nil
}

func (m *Memory) Holdings(_ context.Context, userID int64) ([]game.Holding, error) {
	st := m.read()
	var out []game.Holding
	for k, qty := range st.holdings {
		if k.userID != userID {
			continue
		}
		out = append(out, game.Holding{Item: st.items[k.itemID], Quantity: qty})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Quantity != out[j].Quantity {
			return out[i].Quantity > out[j].Quantity
		}
		return out[i].Item.ID < out[j].Item.ID
	})
	return out, nil
}

func (m *Memory) HoldingByName(_ context.Context, userID int64, name string) (game.Holding, error) {
	return m.read().holdingByName(userID, name)
}

func (m *Memory) BuyableItems(_ context.Context) ([]game.Item, error) {
	st := m.read()
	var out []game.Item
	for _, it := range st.items {
		if it.Buyable {
			out = append(out, it)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) TopAccounts(_ context.Context, limit int) ([]game.Account, error) {
	st := m.read()
	out := make([]game.Account, 0, len(st.accounts))
	for _, a := range st.accounts {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Currency != out[j].Currency {
			return out[i].Currency > out[j].Currency
		}
		return out[i].UserID < out[j].UserID
	})
	if limit >= 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) Careers(_ context.Context) ([]game.Career, error) {
	st := m.read()
	counts := make(map[int64]int64)
	for _, p := range st.positions {
		counts[p.CareerID]++
	}
	var out []game.Career
	for _, c := range st.careers {
		if counts[c.ID] == 0 {
			continue
		}
		c.Positions = counts[c.ID]
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) Position(_ context.Context, positionID int64) (game.Position, error) {
	st := m.read()
	p, ok := st.positions[positionID]
	if !ok {
		return game.Position{}, ErrNotFound
	}
	p.Career = st.careers[p.CareerID].Name
	return p, nil
}

func (m *Memory) EntryPosition(_ context.Context, careerID int64) (game.Position, error) {
	st := m.read()
	var best game.Position
	found := false
	for _, p := range st.positions {
		if p.CareerID != careerID {
			continue
		}
		if !found || p.Privilege > best.Privilege || (p.Privilege == best.Privilege && p.ID < best.ID) {
			best = p
			found = true
		}
	}
	if !found {
		return game.Position{}, ErrNotFound
	}
	best.Career = st.careers[careerID].Name
	return best, nil
}

func (m *Memory) WorkSessions(_ context.Context) ([]game.WorkSession, error) {
	st := m.read()
	var out []game.WorkSession
	for _, a := range st.accounts {
		if a.WorkStarted == nil || a.PositionID == 0 {
			continue
		}
		p := st.positions[a.PositionID]
		p.Career = st.careers[p.CareerID].Name
		out = append(out, game.WorkSession{UserID: a.UserID, Position: p, StartedAt: *a.WorkStarted, ChannelID: a.WorkChannel})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

func (st *memState) clone() *memState {
	out := &memState{
		accounts:  make(map[int64]game.Account, len(st.accounts)),
		items:     make(map[int64]game.Item, len(st.items)),
		holdings:  make(map[holdingKey]int64, len(st.holdings)),
		careers:   st.careers,
		positions: st.positions,
	}
	for k, v := range st.accounts {
		out.accounts[k] = v
	}
	for k, v := range st.items {
		out.items[k] = v
	}
	for k, v := range st.holdings {
		out.holdings[k] = v
	}
	return out
}

func (st *memState) itemByName(name string) (game.Item, bool) {
	for _, it := range st.items {
		if strings.EqualFold(it.Name, name) {
			return it, true
		}
	}
	return game.Item{}, false
}

func (st *memState) holdingByName(userID int64, name string) (game.Holding, error) {
	it, ok := st.itemByName(name)
	if !ok {
		return game.Holding{}, ErrNotFound
	}
	qty, ok := st.holdings[holdingKey{userID, it.ID}]
	if !ok {
		return game.Holding{}, ErrNotFound
	}
	return game.Holding{Item: it, Quantity: qty}, nil
}

type memTx struct {
	st *memState
}

func (t *memTx) CreateAccount(_ context.Context, userID int64) error {
	if _, ok := t.st.accounts[userID]; ok {
		return game.ErrAlreadyRegistered
	}
	t.st.accounts[userID] = game.Account{UserID: userID}
	return nil
}

func (t *memTx) LockAccount(_ context.Context, userID int64) (game.Account, error) {
	a, ok := t.st.accounts[userID]
	if !ok {
		return game.Account{}, game.ErrNotRegistered
	}
	return a, nil
}

func (t *memTx) LockAccounts(ctx context.Context, userIDs ...int64) (map[int64]game.Account, error) {
	out := make(map[int64]game.Account, len(userIDs))
	for _, id := range userIDs {
		a, err := t.LockAccount(ctx, id)
		if err != nil {
			return nil, err
		}
		out[id] = a
	}
	return out, nil
}

func (t *memTx) AddCurrency(_ context.Context, userID, delta int64) (int64, error) {
	a, ok := t.st.accounts[userID]
	if !ok {
		return 0, game.ErrNotRegistered
	}
	next := a.Currency + delta
	if next < 0 {
		return 0, fmt.Errorf("%w: balance would drop to %d", game.ErrInsufficientFunds, next)
	}
	a.Currency = next
	t.st.accounts[userID] = a
	return next, nil
}

func (t *memTx) LockItemByName(_ context.Context, name string) (game.Item, error) {
	it, ok := t.st.itemByName(name)
	if !ok {
		return game.Item{}, ErrNotFound
	}
	return it, nil
}

func (t *memTx) ApplyItemDelta(_ context.Context, itemID, demand, supply, stock int64) (game.Item, error) {
	it, ok := t.st.items[itemID]
	if !ok {
		return game.Item{}, ErrNotFound
	}
	if it.Stock+stock < 0 {
		return game.Item{}, fmt.Errorf("%w: %d left", game.ErrOutOfStock, it.Stock)
	}
	it.Demand += demand
	it.Supply += supply
	it.Stock += stock
	t.st.items[itemID] = it
	return it, nil
}

func (t *memTx) LockHolding(_ context.Context, userID, itemID int64) (int64, error) {
	return t.st.holdings[holdingKey{userID, itemID}], nil
}

func (t *memTx) LockHoldingByName(_ context.Context, userID int64, name string) (game.Holding, error) {
	return t.st.holdingByName(userID, name)
}

func (t *memTx) AdjustHolding(_ context.Context, userID, itemID, delta int64) (int64, error) {
	if _, ok := t.st.items[itemID]; !ok {
		return 0, ErrNotFound
	}
	if _, ok := t.st.accounts[userID]; !ok {
		return 0, game.ErrNotRegistered
	}
	key := holdingKey{userID, itemID}
	next := t.st.holdings[key] + delta
	switch {
	case next < 0:
		return 0, fmt.Errorf("%w: holding %d", game.ErrInsufficientQuantity, t.st.holdings[key])
	case next == 0:
		delete(t.st.holdings, key)
	default:
		t.st.holdings[key] = next
	}
	return next, nil
}

func (t *memTx) SetCareer(_ context.Context, userID, careerID, positionID int64) error {
	a, ok := t.st.accounts[userID]
	if !ok {
		return game.ErrNotRegistered
	}
	a.CareerID = careerID
	a.PositionID = positionID
	t.st.accounts[userID] = a
	return nil
}

func (t *memTx) SetWorkStarted(_ context.Context, userID int64, at *time.Time, channelID string) error {
	a, ok := t.st.accounts[userID]
	if !ok {
		return game.ErrNotRegistered
	}
	if at != nil {
		v := *at
		at = &v
	} else {
		channelID = ""
	}
	a.WorkStarted = at
	a.WorkChannel = channelID
	t.st.accounts[userID] = a
	return nil
}
