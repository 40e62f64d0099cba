package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"growtube/internal/game"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	accountColumns  = `id, currency, COALESCE(career, 0), COALESCE(position, 0), work_started, COALESCE(work_channel, '')`
	itemColumns     = `i.id, i.name, i.value, i.demand, i.supply, i.stock, i.buyable`
	positionColumns = `p.id, p.career, c.name, p.name, p.privilege, p.pay, p.duration_seconds`
)

type Postgres struct {
	db  *pgxpool.Pool
	log *slog.Logger
}

func NewPostgres(db *pgxpool.Pool, logger *slog.Logger) *Postgres {
	if logger == nil {
		logger = slog.Default()
	}
	return &Postgres{db: db, log: logger}
}

func (p *Postgres) Close() {
	p.db.Close()
}

// InTx runs fn in a serializable transaction, retrying serialization
// failures with back-off. fn may therefore run more than once.
func (p *Postgres) InTx(ctx context.Context, fn func(tx Tx) error) error {
	const maxAttempts = 8
	retryDelay := 75 * time.Millisecond
	for attempt := 0; attempt < maxAttempts; attempt++ {
		tx, err := p.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
		if err != nil {
			return err
		}
		err = func() error {
			defer tx.Rollback(ctx)
			if err := fn(&pgTx{tx: tx}); err != nil {
				return err
			}
			return tx.Commit(ctx)
		}()
		if err == nil {
			return nil
		}
		if !isRetryable(err) {
			return err
		}
		if attempt == maxAttempts-1 {
			return game.ErrTxConflict
		}
		p.log.Debug("ledger tx retry", "attempt", attempt+1, "delay", retryDelay.String(), "err", err)
		if err := sleepWithContext(ctx, retryDelay); err != nil {
			return err
		}
		if retryDelay < 1200*time.Millisecond {
			retryDelay *= 2
		}
	}
	return game.ErrTxConflict
}

func (p *Postgres) Account(ctx context.Context, userID int64) (game.Account, error) {
	a, err := scanAccount(p.db.QueryRow(ctx, `SELECT `+accountColumns+` FROM users WHERE id = $1`, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return a, game.ErrNotRegistered
	}
	return a, err
}

func (p *Postgres) Item(ctx context.Context, itemID int64) (game.Item, error) {
	var it game.Item
	err := p.db.QueryRow(ctx, `SELECT `+itemColumns+` FROM items i WHERE i.id = $1`, itemID).Scan(itemDest(&it)...)
	if errors.Is(err, pgx.ErrNoRows) {
		return it, ErrNotFound
	}
	return it, err
}

func (p *Postgres) Holdings(ctx context.Context, userID int64) ([]game.Holding, error) {
	rows, err := p.db.Query(ctx, `
		SELECT `+itemColumns+`, inv.quantity
		FROM inventory inv
		JOIN items i ON i.id = inv.item_id
		WHERE inv.user_id = $1
		ORDER BY inv.quantity DESC, i.id
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []game.Holding
	for rows.Next() {
		var h game.Holding
		if err := rows.Scan(itemDest(&h.Item, &h.Quantity)...); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

func (p *Postgres) HoldingByName(ctx context.Context, userID int64, name string) (game.Holding, error) {
	return holdingByName(ctx, p.db, userID, name, false)
}

func (p *Postgres) BuyableItems(ctx context.Context) ([]game.Item, error) {
	rows, err := p.db.Query(ctx, `SELECT `+itemColumns+` FROM items i WHERE i.buyable ORDER BY i.id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []game.Item
	for rows.Next() {
		var it game.Item
		if err := rows.Scan(itemDest(&it)...); err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

func (p *Postgres) TopAccounts(ctx context.Context, limit int) ([]game.Account, error) {
	rows, err := p.db.Query(ctx, `
		SELECT `+accountColumns+`
		FROM users
		ORDER BY currency DESC, id
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []game.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (p *Postgres) Careers(ctx context.Context) ([]game.Career, error) {
	rows, err := p.db.Query(ctx, `
		SELECT c.id, c.name, COUNT(p.id)
		FROM careers c
		JOIN positions p ON p.career = c.id
		GROUP BY c.id, c.name
		ORDER BY c.id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []game.Career
	for rows.Next() {
		var c game.Career
		if err := rows.Scan(&c.ID, &c.Name, &c.Positions); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (p *Postgres) Position(ctx context.Context, positionID int64) (game.Position, error) {
	pos, err := scanPosition(p.db.QueryRow(ctx, `
		SELECT `+positionColumns+`
		FROM positions p
		JOIN careers c ON c.id = p.career
		WHERE p.id = $1
	`, positionID))
	if errors.Is(err, pgx.ErrNoRows) {
		return pos, ErrNotFound
	}
	return pos, err
}

func (p *Postgres) EntryPosition(ctx context.Context, careerID int64) (game.Position, error) {
	pos, err := scanPosition(p.db.QueryRow(ctx, `
		SELECT `+positionColumns+`
		FROM positions p
		JOIN careers c ON c.id = p.career
		WHERE p.career = $1
		ORDER BY p.privilege DESC, p.id
		LIMIT 1
	`, careerID))
	if errors.Is(err, pgx.ErrNoRows) {
		return pos, ErrNotFound
	}
	return pos, err
}

func (p *Postgres) WorkSessions(ctx context.Context) ([]game.WorkSession, error) {
	rows, err := p.db.Query(ctx, `
		SELECT u.id, u.work_started, COALESCE(u.work_channel, ''), `+positionColumns+`
		FROM users u
		JOIN positions p ON p.id = u.position
		JOIN careers c ON c.id = p.career
		WHERE u.work_started IS NOT NULL
		ORDER BY u.id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []game.WorkSession
	for rows.Next() {
		var ws game.WorkSession
		var seconds int64
		pos := &ws.Position
		if err := rows.Scan(&ws.UserID, &ws.StartedAt, &ws.ChannelID, &pos.ID, &pos.CareerID, &pos.Career, &pos.Name, &pos.Privilege, &pos.Pay, &seconds); err != nil {
			return nil, err
		}
		pos.Duration = time.Duration(seconds) * time.Second
		out = append(out, ws)
	}
	return out, rows.Err()
}

type queryer interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type scanner interface {
	Scan(dest ...any) error
}

func holdingByName(ctx context.Context, q queryer, userID int64, name string, lock bool) (game.Holding, error) {
	query := `
		SELECT ` + itemColumns + `, inv.quantity
		FROM inventory inv
		JOIN items i ON i.id = inv.item_id
		WHERE inv.user_id = $1 AND LOWER(i.name) = LOWER($2)
	`
	if lock {
		query += " FOR UPDATE OF inv"
	}
	var h game.Holding
	err := q.QueryRow(ctx, query, userID, name).Scan(itemDest(&h.Item, &h.Quantity)...)
	if errors.Is(err, pgx.ErrNoRows) {
		return h, ErrNotFound
	}
	return h, err
}

func scanAccount(row scanner) (game.Account, error) {
	var a game.Account
	err := row.Scan(&a.UserID, &a.Currency, &a.CareerID, &a.PositionID, &a.WorkStarted, &a.WorkChannel)
	return a, err
}

func scanPosition(row scanner) (game.Position, error) {
	var pos game.Position
	var seconds int64
	err := row.Scan(&pos.ID, &pos.CareerID, &pos.Career, &pos.Name, &pos.Privilege, &pos.Pay, &seconds)
	pos.Duration = time.Duration(seconds) * time.Second
	return pos, err
}

func itemDest(it *game.Item, extra ...any) []any {
	dest := []any{&it.ID, &it.Name, &it.Value, &it.Demand, &it.Supply, &it.Stock, &it.Buyable}
	return append(dest, extra...)
}

type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) CreateAccount(ctx context.Context, userID int64) error {
	cmd, err := t.tx.Exec(ctx, `
		INSERT INTO users (id, currency)
		VALUES ($1, 0)
		ON CONFLICT (id) DO NOTHING
	`, userID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return game.ErrAlreadyRegistered
	}
	return nil
}

func (t *pgTx) LockAccount(ctx context.Context, userID int64) (game.Account, error) {
	a, err := scanAccount(t.tx.QueryRow(ctx, `SELECT `+accountColumns+` FROM users WHERE id = $1 FOR UPDATE`, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return a, game.ErrNotRegistered
	}
	return a, err
}

func (t *pgTx) LockAccounts(ctx context.Context, userIDs ...int64) (map[int64]game.Account, error) {
	ids := append([]int64(nil), userIDs...)
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	out := make(map[int64]game.Account, len(ids))
	for _, id := range ids {
		if _, ok := out[id]; ok {
			continue
		}
		a, err := t.LockAccount(ctx, id)
		if err != nil {
			return nil, err
		}
		out[id] = a
	}
	return out, nil
}

func (t *pgTx) AddCurrency(ctx context.Context, userID, delta int64) (int64, error) {
	var balance int64
	err := t.tx.QueryRow(ctx, `
		UPDATE users
		SET currency = currency + $1
		WHERE id = $2 AND currency + $1 >= 0
		RETURNING currency
	`, delta, userID).Scan(&balance)
	if err == nil {
		return balance, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, err
	}
	a, err := t.LockAccount(ctx, userID)
	if err != nil {
		return 0, err
	}
	return 0, fmt.Errorf("%w: balance %d, change %d", game.ErrInsufficientFunds, a.Currency, delta)
}

func (t *pgTx) LockItemByName(ctx context.Context, name string) (game.Item, error) {
	var it game.Item
	err := t.tx.QueryRow(ctx, `
		SELECT `+itemColumns+`
		FROM items i
		WHERE LOWER(i.name) = LOWER($1)
		FOR UPDATE
	`, name).Scan(itemDest(&it)...)
	if errors.Is(err, pgx.ErrNoRows) {
		return it, ErrNotFound
	}
	return it, err
}

func (t *pgTx) ApplyItemDelta(ctx context.Context, itemID, demand, supply, stock int64) (game.Item, error) {
	var it game.Item
	err := t.tx.QueryRow(ctx, `
		UPDATE items i
		SET demand = demand + $1, supply = supply + $2, stock = stock + $3
		WHERE i.id = $4 AND i.stock + $3 >= 0
		RETURNING `+itemColumns+`
	`, demand, supply, stock, itemID).Scan(itemDest(&it)...)
	if errors.Is(err, pgx.ErrNoRows) {
		return it, game.ErrOutOfStock
	}
	return it, err
}

func (t *pgTx) LockHolding(ctx context.Context, userID, itemID int64) (int64, error) {
	var qty int64
	err := t.tx.QueryRow(ctx, `
		SELECT quantity
		FROM inventory
		WHERE user_id = $1 AND item_id = $2
		FOR UPDATE
	`, userID, itemID).Scan(&qty)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	return qty, err
}

func (t *pgTx) LockHoldingByName(ctx context.Context, userID int64, name string) (game.Holding, error) {
	return holdingByName(ctx, t.tx, userID, name, true)
}

func (t *pgTx) AdjustHolding(ctx context.Context, userID, itemID, delta int64) (int64, error) {
	current, err := t.LockHolding(ctx, userID, itemID)
	if err != nil {
		return 0, err
	}
	next := current + delta
	switch {
	case next < 0:
		return 0, fmt.Errorf("%w: holding %d", game.ErrInsufficientQuantity, current)
	case next == current:
		return next, nil
	case next == 0:
		_, err = t.tx.Exec(ctx, `DELETE FROM inventory WHERE user_id = $1 AND item_id = $2`, userID, itemID)
	case current == 0:
		_, err = t.tx.Exec(ctx, `
			INSERT INTO inventory (item_id, user_id, quantity)
			VALUES ($1, $2, $3)
		`, itemID, userID, next)
	default:
		_, err = t.tx.Exec(ctx, `
			UPDATE inventory
			SET quantity = $1
			WHERE user_id = $2 AND item_id = $3
		`, next, userID, itemID)
	}
	return next, err
}

func (t *pgTx) SetCareer(ctx context.Context, userID, careerID, positionID int64) error {
	cmd, err := t.tx.Exec(ctx, `
		UPDATE users
		SET career = NULLIF($1::bigint, 0), position = NULLIF($2::bigint, 0)
		WHERE id = $3
	`, careerID, positionID, userID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return game.ErrNotRegistered
	}
	return nil
}

func (t *pgTx) SetWorkStarted(ctx context.Context, userID int64, at *time.Time, channelID string) error {
	if at == nil {
		channelID = ""
	}
	cmd, err := t.tx.Exec(ctx, `
		UPDATE users
		SET work_started = $1, work_channel = NULLIF($2, '')
		WHERE id = $3
	`, at, channelID, userID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return game.ErrNotRegistered
	}
	return nil
}

func isRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	// serialization_failure, deadlock_detected
	return pgErr.Code == "40001" || pgErr.Code == "40P01"
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
