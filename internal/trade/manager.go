// Package trade runs two-party trade sessions: invite, staging offers,
// mutual acceptance and an atomic settlement against the ledger.
package trade

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"growtube/internal/game"
	"growtube/internal/interact"
	"growtube/internal/ledger"

	"github.com/google/uuid"
)

const (
	DefaultInviteTimeout = 30 * time.Second
	DefaultAcceptTimeout = 30 * time.Second
)

type AcceptResult int

const (
	Retracted AcceptResult = iota + 1
	Completed
)

type Options struct {
	InviteTimeout time.Duration
	AcceptTimeout time.Duration
}

type Manager struct {
	store ledger.Store
	log   *slog.Logger
	opts  Options

	mu       sync.Mutex
	sessions map[int64]*session
}

func NewManager(store ledger.Store, logger *slog.Logger, opts Options) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.InviteTimeout <= 0 {
		opts.InviteTimeout = DefaultInviteTimeout
	}
	if opts.AcceptTimeout <= 0 {
		opts.AcceptTimeout = DefaultAcceptTimeout
	}
	return &Manager{
		store:    store,
		log:      logger,
		opts:     opts,
		sessions: make(map[int64]*session),
	}
}

func (m *Manager) IsTrading(userID int64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.sessions[userID]
	return ok
}

func (m *Manager) Session(userID int64) (View, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[userID]
	if !ok {
		return View{}, false
	}
	return s.view(), true
}

// Propose invites b to trade with a and blocks until b answers.
func (m *Manager) Propose(ctx context.Context, conv interact.Conversation, a, b int64) (View, error) {
	if a == b {
		return View{}, game.Validationf("you cannot trade with yourself")
	}
	if m.IsTrading(a) || m.IsTrading(b) {
		return View{}, fmt.Errorf("%w: one of you is already trading", game.ErrInProgress)
	}
	if _, err := m.store.Account(ctx, a); err != nil {
		return View{}, err
	}
	if _, err := m.store.Account(ctx, b); err != nil {
		return View{}, fmt.Errorf("%w: <@%d> has no account", err, b)
	}

	s := newSession(uuid.NewString(), conv, a, b)
	m.mu.Lock()
	if _, busy := m.sessions[a]; busy {
		m.mu.Unlock()
		return View{}, fmt.Errorf("%w: you are already trading", game.ErrInProgress)
	}
	if _, busy := m.sessions[b]; busy {
		m.mu.Unlock()
		return View{}, fmt.Errorf("%w: <@%d> is already trading", game.ErrInProgress, b)
	}
	m.sessions[a] = s
	m.mu.Unlock()

	ok, err := conv.Confirm(ctx, b, fmt.Sprintf("<@%d>, <@%d> wants to trade with you. Accept?", b, a), m.opts.InviteTimeout)

	m.mu.Lock()
	if s.state != Proposed {
		m.mu.Unlock()
		return View{}, fmt.Errorf("%w: the invite was withdrawn", game.ErrDeclined)
	}
	if err != nil || !ok {
		m.release(s)
		s.finish(Cancelled)
		m.mu.Unlock()
		if err != nil {
			return View{}, err
		}
		return View{}, fmt.Errorf("%w: <@%d> did not accept the trade", game.ErrDeclined, b)
	}
	if _, busy := m.sessions[b]; busy {
		m.release(s)
		s.finish(Cancelled)
		m.mu.Unlock()
		return View{}, fmt.Errorf("%w: <@%d> started another trade", game.ErrInProgress, b)
	}
	m.sessions[b] = s
	s.state = Open
	v := s.view()
	m.mu.Unlock()

	m.log.Info("trade opened", "trade", s.id, "a", a, "b", b)
	msg, err := conv.Send(ctx, Render(v))
	if err != nil {
		m.log.Warn("trade summary send failed", "trade", s.id, "err", err)
		return v, nil
	}
	m.mu.Lock()
	s.summary = msg
	m.mu.Unlock()
	return v, nil
}

// Add stages more currency or items from userID's side.
func (m *Manager) Add(ctx context.Context, userID int64, c Change) (View, error) {
	if c.Amount <= 0 {
		return View{}, game.Validationf("amount must be > 0")
	}
	if _, err := m.editable(userID); err != nil {
		return View{}, err
	}

	// Read the ledger outside the registry lock; the staged total is
	// compared again once the lock is held.
	var available int64
	var staged StagedItem
	if c.IsCurrency() {
		acct, err := m.store.Account(ctx, userID)
		if err != nil {
			return View{}, err
		}
		available = acct.Currency
	} else {
		name, err := game.NormalizeItemName(c.ItemName)
		if err != nil {
			return View{}, err
		}
		h, err := m.store.HoldingByName(ctx, userID, name)
		if errors.Is(err, ledger.ErrNotFound) {
			return View{}, fmt.Errorf("%w: %s", game.ErrNotOwned, name)
		}
		if err != nil {
			return View{}, err
		}
		available = h.Quantity
		staged = StagedItem{ItemID: h.Item.ID, Name: h.Item.Name}
	}

	m.mu.Lock()
	s, err := m.editableLocked(userID)
	if err != nil {
		m.mu.Unlock()
		return View{}, err
	}
	if c.IsCurrency() {
		next := s.currency[userID] + c.Amount
		if next > available {
			m.mu.Unlock()
			return View{}, fmt.Errorf("%w: you have %d %s", game.ErrInsufficientFunds, available, game.CurrencyName)
		}
		s.currency[userID] = next
	} else {
		staged.Quantity = s.stagedItem(userID, staged.ItemID) + c.Amount
		if staged.Quantity > available {
			m.mu.Unlock()
			return View{}, fmt.Errorf("%w: you have %d %s", game.ErrInsufficientQuantity, available, staged.Name)
		}
		s.items[userID][staged.ItemID] = staged
	}
	v, msg := s.view(), s.summary
	m.mu.Unlock()

	m.refresh(ctx, msg, v)
	return v, nil
}

// Remove takes staged currency or items back.
func (m *Manager) Remove(ctx context.Context, userID int64, c Change) (View, error) {
	if c.Amount <= 0 {
		return View{}, game.Validationf("amount must be > 0")
	}
	var name string
	if !c.IsCurrency() {
		var err error
		if name, err = game.NormalizeItemName(c.ItemName); err != nil {
			return View{}, err
		}
	}

	m.mu.Lock()
	s, err := m.editableLocked(userID)
	if err != nil {
		m.mu.Unlock()
		return View{}, err
	}
	if c.IsCurrency() {
		have := s.currency[userID]
		if have < c.Amount {
			m.mu.Unlock()
			return View{}, game.Validationf("only %d %s staged", have, game.CurrencyName)
		}
		s.currency[userID] = have - c.Amount
	} else {
		var found *StagedItem
		for _, it := range s.items[userID] {
			if equalFoldName(it.Name, name) {
				it := it
				found = &it
				break
			}
		}
		if found == nil || found.Quantity < c.Amount {
			m.mu.Unlock()
			return View{}, game.Validationf("not enough %s staged", name)
		}
		found.Quantity -= c.Amount
		if found.Quantity == 0 {
			delete(s.items[userID], found.ItemID)
		} else {
			s.items[userID][found.ItemID] = *found
		}
	}
	v, msg := s.view(), s.summary
	m.mu.Unlock()

	m.refresh(ctx, msg, v)
	return v, nil
}

// Accept confirms userID's side of the trade. Calling it again while
// waiting for the counterparty withdraws the acceptance. The first party
// blocks until the second confirms, declines or the session ends; the
// second party performs the settlement and both receive its result.
func (m *Manager) Accept(ctx context.Context, userID int64) (AcceptResult, error) {
	m.mu.Lock()
	s, ok := m.sessions[userID]
	if !ok {
		m.mu.Unlock()
		return 0, game.ErrNotTrading
	}
	switch s.state {
	case Proposed, Settling:
		m.mu.Unlock()
		return 0, fmt.Errorf("%w: trade is %s", game.ErrInProgress, s.state)
	case AwaitingConfirmation:
		if s.acceptor == userID {
			m.resetRound(s)
			v, conv, msg := s.view(), s.conv, s.summary
			m.mu.Unlock()
			m.announce(ctx, conv, fmt.Sprintf("<@%d> withdrew their acceptance.", userID))
			m.refresh(ctx, msg, v)
			return Retracted, nil
		}
	}
	rnd, conv := s.round, s.conv
	m.mu.Unlock()

	confirmed, err := conv.Confirm(ctx, userID, fmt.Sprintf("<@%d>, confirm the trade as shown?", userID), m.opts.AcceptTimeout)
	if err != nil {
		confirmed = false
	}

	m.mu.Lock()
	if m.sessions[userID] != s || s.round != rnd {
		m.mu.Unlock()
		return 0, fmt.Errorf("%w: the trade changed, accept again", game.ErrDeclined)
	}
	switch {
	case s.state == Open && !confirmed:
		m.mu.Unlock()
		if err != nil {
			return 0, err
		}
		return 0, fmt.Errorf("%w: acceptance not confirmed", game.ErrDeclined)

	case s.state == AwaitingConfirmation && s.acceptor != userID && !confirmed:
		first := s.acceptor
		m.resetRound(s)
		v, msg := s.view(), s.summary
		m.mu.Unlock()
		m.announce(ctx, conv, fmt.Sprintf("<@%d>, <@%d> declined the trade.", first, userID))
		m.refresh(ctx, msg, v)
		if err != nil {
			return 0, err
		}
		return 0, fmt.Errorf("%w: trade declined", game.ErrDeclined)

	case s.state == Open:
		s.state = AwaitingConfirmation
		s.acceptor = userID
		v, msg := s.view(), s.summary
		m.mu.Unlock()
		m.announce(ctx, conv, fmt.Sprintf("<@%d> accepted. Waiting for <@%d>.", userID, s.other(userID)))
		m.refresh(ctx, msg, v)
		return m.waitSettlement(ctx, s, rnd, userID)

	case s.state == AwaitingConfirmation && s.acceptor != userID:
		s.state = Settling
		close(rnd.accepted)
		v, msg := s.view(), s.summary
		m.mu.Unlock()
		m.refresh(ctx, msg, v)
		return m.settle(ctx, s, rnd)

	default:
		state := s.state
		m.mu.Unlock()
		return 0, fmt.Errorf("%w: trade is %s", game.ErrInProgress, state)
	}
}

// Cancel ends userID's session unless it is already settling.
func (m *Manager) Cancel(ctx context.Context, userID int64) error {
	m.mu.Lock()
	s, ok := m.sessions[userID]
	if !ok {
		m.mu.Unlock()
		return game.ErrNotTrading
	}
	if s.state == Settling {
		m.mu.Unlock()
		return fmt.Errorf("%w: trade is settling", game.ErrInProgress)
	}
	m.release(s)
	s.acceptor = 0
	s.finish(Cancelled)
	v, msg, conv := s.view(), s.summary, s.conv
	m.mu.Unlock()

	m.log.Info("trade cancelled", "trade", s.id, "by", userID)
	if msg != nil {
		m.refresh(ctx, msg, v)
	} else {
		m.announce(ctx, conv, Render(v))
	}
	return nil
}

func (m *Manager) waitSettlement(ctx context.Context, s *session, rnd *round, userID int64) (AcceptResult, error) {
	select {
	case <-rnd.accepted:
		<-rnd.settled
		if rnd.result != nil {
			return 0, rnd.result
		}
		return Completed, nil
	case <-rnd.cancelled:
		return 0, fmt.Errorf("%w: acceptance withdrawn", game.ErrDeclined)
	case <-s.done:
		return 0, fmt.Errorf("%w: trade cancelled", game.ErrDeclined)
	case <-ctx.Done():
		m.mu.Lock()
		if s.round == rnd && s.state == AwaitingConfirmation && s.acceptor == userID {
			m.resetRound(s)
		}
		m.mu.Unlock()
		return 0, ctx.Err()
	}
}

func (m *Manager) settle(ctx context.Context, s *session, rnd *round) (AcceptResult, error) {
	m.mu.Lock()
	a, b := s.parties[0], s.parties[1]
	offerA, offerB := s.offer(a), s.offer(b)
	conv := s.conv
	m.mu.Unlock()

	err := m.store.InTx(ctx, func(tx ledger.Tx) error {
		accts, err := tx.LockAccounts(ctx, a, b)
		if err != nil {
			return err
		}
		if err := moveItems(ctx, tx, a, b, offerA.Items); err != nil {
			return err
		}
		if err := moveItems(ctx, tx, b, a, offerB.Items); err != nil {
			return err
		}
		if accts[a].Currency < offerA.Currency {
			return fmt.Errorf("%w: <@%d> no longer has %d %s", game.ErrInsufficientFunds, a, offerA.Currency, game.CurrencyName)
		}
		if accts[b].Currency < offerB.Currency {
			return fmt.Errorf("%w: <@%d> no longer has %d %s", game.ErrInsufficientFunds, b, offerB.Currency, game.CurrencyName)
		}
		net := offerB.Currency - offerA.Currency
		if net == 0 {
			return nil
		}
		payer, payee, amount := a, b, -net
		if net > 0 {
			payer, payee, amount = b, a, net
		}
		if _, err := tx.AddCurrency(ctx, payer, -amount); err != nil {
			return err
		}
		_, err = tx.AddCurrency(ctx, payee, amount)
		return err
	})

	m.mu.Lock()
	rnd.result = err
	if err != nil {
		s.state = Open
		s.acceptor = 0
		s.round = newRound()
	} else {
		m.release(s)
		s.acceptor = 0
		s.finish(Settled)
	}
	close(rnd.settled)
	v, msg := s.view(), s.summary
	m.mu.Unlock()

	m.refresh(ctx, msg, v)
	if err != nil {
		m.log.Warn("trade settlement failed", "trade", s.id, "err", err)
		text := "Trade failed, it is open again."
		if game.IsRecoverable(err) {
			text = fmt.Sprintf("Trade failed: %v. It is open again.", err)
		}
		m.announce(ctx, conv, text)
		return 0, err
	}
	m.log.Info("trade settled", "trade", s.id, "a", a, "b", b)
	m.announce(ctx, conv, fmt.Sprintf("<@%d> and <@%d>, your trade is complete!", a, b))
	return Completed, nil
}

func moveItems(ctx context.Context, tx ledger.Tx, from, to int64, items []StagedItem) error {
	for _, it := range items {
		held, err := tx.LockHolding(ctx, from, it.ItemID)
		if err != nil {
			return err
		}
		if held < it.Quantity {
			return fmt.Errorf("%w: <@%d> no longer has %d %s", game.ErrInsufficientQuantity, from, it.Quantity, it.Name)
		}
		if _, err := tx.AdjustHolding(ctx, from, it.ItemID, -it.Quantity); err != nil {
			return err
		}
		if _, err := tx.AdjustHolding(ctx, to, it.ItemID, it.Quantity); err != nil {
			return err
		}
	}
	return nil
}

func (m *Manager) editable(userID int64) (*session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.editableLocked(userID)
}

func (m *Manager) editableLocked(userID int64) (*session, error) {
	s, ok := m.sessions[userID]
	if !ok {
		return nil, game.ErrNotTrading
	}
	if s.state != Open {
		return nil, fmt.Errorf("%w: trade is %s", game.ErrInProgress, s.state)
	}
	return s, nil
}

// resetRound abandons the current accept round. Caller holds m.mu.
func (m *Manager) resetRound(s *session) {
	close(s.round.cancelled)
	s.round = newRound()
	s.acceptor = 0
	s.state = Open
}

// release drops both registry entries that point at s. Caller holds m.mu.
func (m *Manager) release(s *session) {
	for _, p := range s.parties {
		if m.sessions[p] == s {
			delete(m.sessions, p)
		}
	}
}

func (m *Manager) refresh(ctx context.Context, msg interact.Message, v View) {
	if msg == nil {
		return
	}
	if err := msg.Edit(ctx, Render(v)); err != nil {
		m.log.Warn("trade summary edit failed", "trade", v.ID, "err", err)
	}
}

func (m *Manager) announce(ctx context.Context, conv interact.Conversation, text string) {
	if _, err := conv.Send(ctx, text); err != nil {
		m.log.Warn("trade notice failed", "err", err)
	}
}

func equalFoldName(a, b string) bool {
	na, _ := game.NormalizeItemName(a)
	nb, _ := game.NormalizeItemName(b)
	return na == nb
}
