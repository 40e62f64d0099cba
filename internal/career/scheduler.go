// Package career handles jobs: choosing a career, timed work sessions and
// their payouts.
package career

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"growtube/internal/cooldown"
	"growtube/internal/game"
	"growtube/internal/interact"
	"growtube/internal/ledger"
)

const (
	DefaultConfirmTimeout = 60 * time.Second
	payoutTimeout         = 10 * time.Second
)

type Options struct {
	Cooldowns      *cooldown.Limiter
	ConfirmTimeout time.Duration
	Now            func() time.Time
	// Channel reopens the conversation a shift started in when it is resumed
	// after a restart.
	Channel func(channelID string) interact.Conversation
	// Announce receives completion notices for resumed shifts whose channel
	// is unknown.
	Announce interact.Conversation
}

type Info struct {
	UserID       int64         `json:"user_id"`
	Employed     bool          `json:"employed"`
	Position     game.Position `json:"position"`
	WorkingSince *time.Time    `json:"working_since,omitempty"`
	Remaining    time.Duration `json:"remaining,omitempty"`
}

type Scheduler struct {
	store ledger.Store
	log   *slog.Logger
	opts  Options

	mu      sync.Mutex
	timers  map[int64]*shift
	closed  bool
	running sync.WaitGroup
}

// shift is one armed work session.
type shift struct {
	userID    int64
	position  game.Position
	startedAt time.Time
	conv      interact.Conversation
	cancel    context.CancelFunc
}

func NewScheduler(store ledger.Store, logger *slog.Logger, opts Options) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Cooldowns == nil {
		opts.Cooldowns = cooldown.New()
	}
	if opts.ConfirmTimeout <= 0 {
		opts.ConfirmTimeout = DefaultConfirmTimeout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Announce == nil {
		opts.Announce = interact.Nop{}
	}
	return &Scheduler{
		store:  store,
		log:    logger,
		opts:   opts,
		timers: make(map[int64]*shift),
	}
}

func (s *Scheduler) List(ctx context.Context) ([]game.Career, error) {
	return s.store.Careers(ctx)
}

func (s *Scheduler) Info(ctx context.Context, userID int64) (Info, error) {
	out := Info{UserID: userID}
	acct, err := s.store.Account(ctx, userID)
	if err != nil {
		return out, err
	}
	if !acct.Employed() {
		return out, nil
	}
	pos, err := s.store.Position(ctx, acct.PositionID)
	if err != nil {
		return out, err
	}
	out.Employed = true
	out.Position = pos
	if acct.WorkStarted != nil {
		started := *acct.WorkStarted
		out.WorkingSince = &started
		if left := started.Add(pos.Duration).Sub(s.opts.Now()); left > 0 {
			out.Remaining = left
		}
	}
	return out, nil
}

// Change moves userID into the entry position of careerID. Career 0 quits.
func (s *Scheduler) Change(ctx context.Context, conv interact.Conversation, userID, careerID int64) (game.Position, error) {
	acct, err := s.store.Account(ctx, userID)
	if err != nil {
		return game.Position{}, err
	}
	if acct.Working() {
		return game.Position{}, fmt.Errorf("%w: stop working first", game.ErrInProgress)
	}

	var pos game.Position
	var prompt string
	switch {
	case careerID == 0:
		if !acct.Employed() {
			return game.Position{}, game.ErrUnemployed
		}
		prompt = fmt.Sprintf("<@%d>, quit your current career?", userID)
	case careerID < 0:
		return game.Position{}, game.ErrInvalidCareer
	default:
		pos, err = s.store.EntryPosition(ctx, careerID)
		if errors.Is(err, ledger.ErrNotFound) {
			return game.Position{}, fmt.Errorf("%w: %d", game.ErrInvalidCareer, careerID)
		}
		if err != nil {
			return game.Position{}, err
		}
		prompt = fmt.Sprintf("<@%d>, become a %s (%s)? You will earn %d %s per %s shift.",
			userID, pos.Name, pos.Career, pos.Pay, game.CurrencyName, pos.Duration)
	}

	ok, err := conv.Confirm(ctx, userID, prompt, s.opts.ConfirmTimeout)
	if err != nil {
		return game.Position{}, err
	}
	if !ok {
		return game.Position{}, fmt.Errorf("%w: career unchanged", game.ErrDeclined)
	}

	err = s.store.InTx(ctx, func(tx ledger.Tx) error {
		a, err := tx.LockAccount(ctx, userID)
		if err != nil {
			return err
		}
		if a.Working() {
			return fmt.Errorf("%w: stop working first", game.ErrInProgress)
		}
		return tx.SetCareer(ctx, userID, pos.CareerID, pos.ID)
	})
	if err != nil {
		return game.Position{}, err
	}
	s.log.Info("career changed", "user", userID, "career", pos.CareerID, "position", pos.ID)
	return pos, nil
}

// Begin starts a work shift that pays out when the position's duration
// elapses.
func (s *Scheduler) Begin(ctx context.Context, conv interact.Conversation, userID int64) (game.WorkSession, error) {
	acct, err := s.store.Account(ctx, userID)
	if err != nil {
		return game.WorkSession{}, err
	}
	if !acct.Employed() {
		return game.WorkSession{}, game.ErrUnemployed
	}
	if acct.Working() {
		return game.WorkSession{}, fmt.Errorf("%w: already working", game.ErrInProgress)
	}
	if err := s.opts.Cooldowns.Take("career.begin", userID, cooldown.CareerBegin); err != nil {
		return game.WorkSession{}, err
	}
	pos, err := s.store.Position(ctx, acct.PositionID)
	if err != nil {
		s.opts.Cooldowns.Refund("career.begin", userID)
		return game.WorkSession{}, err
	}

	prompt := fmt.Sprintf("<@%d>, start a %s shift as %s? You will earn %d %s.",
		userID, pos.Duration, pos.Name, pos.Pay, game.CurrencyName)
	ok, err := conv.Confirm(ctx, userID, prompt, s.opts.ConfirmTimeout)
	if err != nil {
		return game.WorkSession{}, err
	}
	if !ok {
		return game.WorkSession{}, fmt.Errorf("%w: shift not started", game.ErrDeclined)
	}

	// Postgres keeps microseconds; completion matches on this value.
	started := s.opts.Now().Truncate(time.Microsecond)
	err = s.store.InTx(ctx, func(tx ledger.Tx) error {
		a, err := tx.LockAccount(ctx, userID)
		if err != nil {
			return err
		}
		if a.Working() {
			return fmt.Errorf("%w: already working", game.ErrInProgress)
		}
		if a.PositionID != pos.ID {
			return fmt.Errorf("%w: career changed", game.ErrInProgress)
		}
		return tx.SetWorkStarted(ctx, userID, &started, conv.ChannelID())
	})
	if err != nil {
		return game.WorkSession{}, err
	}

	s.arm(&shift{userID: userID, position: pos, startedAt: started, conv: conv}, pos.Duration)
	s.log.Info("work started", "user", userID, "position", pos.ID, "duration", pos.Duration.String())
	return game.WorkSession{UserID: userID, Position: pos, StartedAt: started}, nil
}

// Stop ends a shift early and pays the elapsed fraction of the wage.
func (s *Scheduler) Stop(ctx context.Context, conv interact.Conversation, userID int64) (int64, error) {
	acct, err := s.store.Account(ctx, userID)
	if err != nil {
		return 0, err
	}
	if !acct.Working() {
		return 0, game.ErrNotWorking
	}
	if err := s.opts.Cooldowns.Take("career.stop", userID, cooldown.CareerStop); err != nil {
		return 0, err
	}
	pos, err := s.store.Position(ctx, acct.PositionID)
	if err != nil {
		s.opts.Cooldowns.Refund("career.stop", userID)
		return 0, err
	}

	estimate := ProratedPay(pos.Pay, s.opts.Now().Sub(*acct.WorkStarted), pos.Duration)
	prompt := fmt.Sprintf("<@%d>, stop working now? You will be paid about %d %s.", userID, estimate, game.CurrencyName)
	ok, err := conv.Confirm(ctx, userID, prompt, s.opts.ConfirmTimeout)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, fmt.Errorf("%w: still working", game.ErrDeclined)
	}

	s.disarm(userID)
	var paid int64
	err = s.store.InTx(ctx, func(tx ledger.Tx) error {
		a, err := tx.LockAccount(ctx, userID)
		if err != nil {
			return err
		}
		if !a.Working() {
			return game.ErrNotWorking
		}
		paid = ProratedPay(pos.Pay, s.opts.Now().Sub(*a.WorkStarted), pos.Duration)
		if _, err := tx.AddCurrency(ctx, userID, paid); err != nil {
			return err
		}
		return tx.SetWorkStarted(ctx, userID, nil, "")
	})
	if err != nil {
		return 0, err
	}
	s.log.Info("work stopped", "user", userID, "paid", paid)
	return paid, nil
}

// Resume re-arms timers for shifts persisted before a restart. Shifts that
// are already overdue pay out immediately.
func (s *Scheduler) Resume(ctx context.Context) (int, error) {
	sessions, err := s.store.WorkSessions(ctx)
	if err != nil {
		return 0, err
	}
	n := 0
	now := s.opts.Now()
	for _, ws := range sessions {
		if s.armed(ws.UserID) {
			continue
		}
		remaining := ws.StartedAt.Add(ws.Position.Duration).Sub(now)
		if remaining < 0 {
			remaining = 0
		}
		s.arm(&shift{userID: ws.UserID, position: ws.Position, startedAt: ws.StartedAt, conv: s.conversation(ws)}, remaining)
		n++
	}
	if n > 0 {
		s.log.Info("work sessions resumed", "count", n)
	}
	return n, nil
}

// Reconcile pays out overdue shifts that have no live timer.
func (s *Scheduler) Reconcile(ctx context.Context) (int, error) {
	sessions, err := s.store.WorkSessions(ctx)
	if err != nil {
		return 0, err
	}
	n := 0
	now := s.opts.Now()
	for _, ws := range sessions {
		if s.armed(ws.UserID) || now.Before(ws.StartedAt.Add(ws.Position.Duration)) {
			continue
		}
		sh := &shift{userID: ws.UserID, position: ws.Position, startedAt: ws.StartedAt, conv: s.conversation(ws)}
		paid, err := s.complete(ctx, sh)
		if err != nil {
			s.log.Error("reconcile payout failed", "user", ws.UserID, "err", err)
			continue
		}
		if paid {
			n++
		}
	}
	return n, nil
}

// Close stops every timer without paying. Persisted shifts are picked up
// again by Resume.
func (s *Scheduler) Close() {
	s.mu.Lock()
	s.closed = true
	for id, sh := range s.timers {
		sh.cancel()
		delete(s.timers, id)
	}
	s.mu.Unlock()
	s.running.Wait()
}

// ProratedPay is round(pay * elapsed / duration) with elapsed clamped to
// [0, duration].
func ProratedPay(pay int64, elapsed, duration time.Duration) int64 {
	if duration <= 0 || elapsed >= duration {
		return pay
	}
	if elapsed <= 0 {
		return 0
	}
	return int64(math.Round(float64(pay) * float64(elapsed) / float64(duration)))
}

func (s *Scheduler) conversation(ws game.WorkSession) interact.Conversation {
	if ws.ChannelID == "" || s.opts.Channel == nil {
		return s.opts.Announce
	}
	return s.opts.Channel(ws.ChannelID)
}

func (s *Scheduler) armed(userID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.timers[userID]
	return ok
}

func (s *Scheduler) arm(sh *shift, after time.Duration) {
	ctx, cancel := context.WithCancel(context.Background())
	sh.cancel = cancel

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		cancel()
		return
	}
	if prev, ok := s.timers[sh.userID]; ok {
		prev.cancel()
	}
	s.timers[sh.userID] = sh
	s.running.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.running.Done()
		timer := time.NewTimer(after)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		s.mu.Lock()
		if s.timers[sh.userID] == sh {
			delete(s.timers, sh.userID)
		}
		s.mu.Unlock()

		payCtx, cancelPay := context.WithTimeout(ctx, payoutTimeout)
		defer cancelPay()
		if _, err := s.complete(payCtx, sh); err != nil {
			s.log.Error("work payout failed", "user", sh.userID, "err", err)
		}
	}()
}

func (s *Scheduler) disarm(userID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sh, ok := s.timers[userID]; ok {
		sh.cancel()
		delete(s.timers, userID)
	}
}

// complete pays the full wage if the shift is still the one on record.
func (s *Scheduler) complete(ctx context.Context, sh *shift) (bool, error) {
	paid := false
	err := s.store.InTx(ctx, func(tx ledger.Tx) error {
		paid = false
		a, err := tx.LockAccount(ctx, sh.userID)
		if err != nil {
			return err
		}
		if a.WorkStarted == nil || !a.WorkStarted.Equal(sh.startedAt) {
			return nil
		}
		if _, err := tx.AddCurrency(ctx, sh.userID, sh.position.Pay); err != nil {
			return err
		}
		if err := tx.SetWorkStarted(ctx, sh.userID, nil, ""); err != nil {
			return err
		}
		paid = true
		return nil
	})
	if err != nil || !paid {
		return false, err
	}
	s.log.Info("work completed", "user", sh.userID, "position", sh.position.ID, "paid", sh.position.Pay)
	text := fmt.Sprintf("<@%d>, you finished your shift as %s and earned %d %s!",
		sh.userID, sh.position.Name, sh.position.Pay, game.CurrencyName)
	if _, err := sh.conv.Send(ctx, text); err != nil {
		s.log.Warn("work completion notice failed", "user", sh.userID, "err", err)
	}
	return true, nil
}
