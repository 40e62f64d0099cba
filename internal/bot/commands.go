package bot

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"growtube/internal/career"
	"growtube/internal/game"
	"growtube/internal/interact"
	"growtube/internal/market"
	"growtube/internal/trade"
)

// Request is one parsed chat command.
type Request struct {
	Author int64
	Name   string
	Args   []string
	Conv   interact.Conversation
}

func (r *Request) reply(ctx context.Context, text string) error {
	_, err := r.Conv.Send(ctx, text)
	return err
}

type handlerFunc func(ctx context.Context, r *Request) error

type command struct {
	name    string
	aliases []string
	run     handlerFunc
	owner   bool
}

var errUnknownCommand = errors.New("unknown command")

// Commands routes parsed requests to the economy core.
type Commands struct {
	market  *market.Engine
	trades  *trade.Manager
	careers *career.Scheduler
	owners  map[int64]bool
	started time.Time
	now     func() time.Time
	latency func() time.Duration
	index   map[string]*command
}

type Deps struct {
	Market  *market.Engine
	Trades  *trade.Manager
	Careers *career.Scheduler
	Owners  []int64
	Started time.Time
	Latency func() time.Duration
}

func NewCommands(d Deps) *Commands {
	c := &Commands{
		market:  d.Market,
		trades:  d.Trades,
		careers: d.Careers,
		owners:  make(map[int64]bool, len(d.Owners)),
		started: d.Started,
		now:     time.Now,
		latency: d.Latency,
		index:   make(map[string]*command),
	}
	if c.started.IsZero() {
		c.started = c.now()
	}
	if c.latency == nil {
		c.latency = func() time.Duration { return 0 }
	}
	for _, id := range d.Owners {
		c.owners[id] = true
	}
	for _, cmd := range []*command{
		{name: "register", run: c.register},
		{name: "wallet", aliases: []string{"bal", "balance", "bank"}, run: c.wallet},
		{name: "collect", aliases: []string{"clt"}, run: c.collect},
		{name: "inventory", aliases: []string{"inv"}, run: c.inventory},
		{name: "sell", run: c.sell},
		{name: "buy", run: c.buy},
		{name: "market", aliases: []string{"mkt", "ma"}, run: c.marketList},
		{name: "top", run: c.top},
		{name: "transfer", run: c.transfer},
		{name: "trade", run: c.trade},
		{name: "career", aliases: []string{"job"}, run: c.career},
		{name: "ping", run: c.ping},
		{name: "uptime", run: c.uptime},
		{name: "reconcile", run: c.reconcile, owner: true},
	} {
		c.index[cmd.name] = cmd
		for _, alias := range cmd.aliases {
			c.index[alias] = cmd
		}
	}
	return c
}

// Names lists the primary command names.
func (c *Commands) Names() []string {
	var out []string
	for key, cmd := range c.index {
		if key == cmd.name {
			out = append(out, key)
		}
	}
	sort.Strings(out)
	return out
}

// Run executes r. Owner-only commands are invisible to everyone else.
func (c *Commands) Run(ctx context.Context, r *Request) error {
	cmd, ok := c.index[r.Name]
	if !ok || (cmd.owner && !c.owners[r.Author]) {
		return fmt.Errorf("%w: %s", errUnknownCommand, r.Name)
	}
	return cmd.run(ctx, r)
}

func (c *Commands) register(ctx context.Context, r *Request) error {
	if err := c.market.Register(ctx, r.Author); err != nil {
		return err
	}
	return r.reply(ctx, "Registered!")
}

func (c *Commands) wallet(ctx context.Context, r *Request) error {
	userID := r.Author
	if len(r.Args) > 0 {
		id, err := parseUserID(r.Args[0])
		if err != nil {
			return err
		}
		userID = id
	}
	acct, err := c.market.Wallet(ctx, userID)
	if err != nil {
		if errors.Is(err, game.ErrNotRegistered) && userID != r.Author {
			return fmt.Errorf("%w: <@%d> does not have an account", game.ErrNotRegistered, userID)
		}
		return err
	}
	return r.reply(ctx, fmt.Sprintf("<@%d> has **%s**", userID, money(acct.Currency)))
}

func (c *Commands) collect(ctx context.Context, r *Request) error {
	it, err := c.market.Collect(ctx, r.Author)
	if err != nil {
		return err
	}
	return r.reply(ctx, fmt.Sprintf("You found **%s** from the street", it.Name))
}

func (c *Commands) inventory(ctx context.Context, r *Request) error {
	inv, err := c.market.Inventory(ctx, r.Author)
	if err != nil {
		return err
	}
	if len(inv.Lines) == 0 {
		return r.reply(ctx, "```\nEmpty....```")
	}
	var b strings.Builder
	b.WriteString("```\n")
	for _, line := range inv.Lines {
		fmt.Fprintf(&b, "%s: %s | Estimated Value: %s\n", line.Name, commaInt(line.Quantity), commaInt(line.EstimatedValue))
	}
	fmt.Fprintf(&b, "\nEstimated Total Values: %s```", commaInt(inv.TotalValue))
	return r.reply(ctx, b.String())
}

func (c *Commands) sell(ctx context.Context, r *Request) error {
	in, err := parseSell(r.Author, r.Args)
	if err != nil {
		return err
	}
	res, err := c.market.Sell(ctx, in)
	if err != nil {
		return err
	}
	return r.reply(ctx, fmt.Sprintf("Sold **%s** %s for **%s**", commaInt(res.Quantity), res.Item.Name, money(res.Proceeds)))
}

func (c *Commands) buy(ctx context.Context, r *Request) error {
	in, err := parseBuy(r.Author, r.Args)
	if err != nil {
		return err
	}
	res, err := c.market.Buy(ctx, in)
	if err != nil {
		return err
	}
	return r.reply(ctx, fmt.Sprintf("Bought **%s** %s for **%s**", commaInt(res.Quantity), res.Item.Name, money(res.Total)))
}

func (c *Commands) marketList(ctx context.Context, r *Request) error {
	listings, err := c.market.Market(ctx)
	if err != nil {
		return err
	}
	var b strings.Builder
	b.WriteString("```\n")
	for _, l := range listings {
		fmt.Fprintf(&b, "[%d]%s(%d)(%d)\n", l.ID, l.Name, l.Price, l.Stock)
	}
	b.WriteString("```")
	return r.reply(ctx, b.String())
}

func (c *Commands) top(ctx context.Context, r *Request) error {
	limit := game.DefaultTopLimit
	if len(r.Args) > 0 {
		n, err := parseInt(r.Args[0])
		if err != nil {
			return err
		}
		limit = int(n)
	}
	rows, err := c.market.Top(ctx, limit)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return r.reply(ctx, "Nobody is registered yet.")
	}
	lines := make([]string, 0, len(rows))
	for _, row := range rows {
		lines = append(lines, fmt.Sprintf("**#%d** <@%d>: __%s__", row.Rank, row.UserID, money(row.Currency)))
	}
	return r.reply(ctx, strings.Join(lines, "\n"))
}

func (c *Commands) transfer(ctx context.Context, r *Request) error {
	if len(r.Args) != 2 {
		return usage("transfer <user> <amount>")
	}
	to, err := parseUserID(r.Args[0])
	if err != nil {
		return err
	}
	amount, err := parseInt(r.Args[1])
	if err != nil {
		return err
	}
	if _, err := c.market.Transfer(ctx, r.Author, to, amount); err != nil {
		return err
	}
	return r.reply(ctx, fmt.Sprintf("Transferred **%s** to <@%d>", money(amount), to))
}

func (c *Commands) trade(ctx context.Context, r *Request) error {
	if len(r.Args) == 0 {
		return usage("trade <user> | trade add|remove [quantity] [item] | trade accept | trade cancel")
	}
	switch verb := strings.ToLower(r.Args[0]); verb {
	case "add", "remove":
		change, err := parseTradeChange(verb, r.Args[1:])
		if err != nil {
			return err
		}
		if verb == "add" {
			_, err = c.trades.Add(ctx, r.Author, change)
		} else {
			_, err = c.trades.Remove(ctx, r.Author, change)
		}
		return err
	case "accept":
		_, err := c.trades.Accept(ctx, r.Author)
		return err
	case "cancel":
		return c.trades.Cancel(ctx, r.Author)
	default:
		other, err := parseUserID(r.Args[0])
		if err != nil {
			return err
		}
		_, err = c.trades.Propose(ctx, r.Conv, r.Author, other)
		return err
	}
}

func (c *Commands) career(ctx context.Context, r *Request) error {
	if len(r.Args) == 0 {
		return usage("career list | info [user] | change <id> | begin | stop")
	}
	switch strings.ToLower(r.Args[0]) {
	case "list":
		careers, err := c.careers.List(ctx)
		if err != nil {
			return err
		}
		lines := []string{"`[0]` Unemployed"}
		for _, cr := range careers {
			lines = append(lines, fmt.Sprintf("`[%d]` %s (%d positions)", cr.ID, cr.Name, cr.Positions))
		}
		return r.reply(ctx, strings.Join(lines, "\n"))
	case "info":
		userID := r.Author
		if len(r.Args) > 1 {
			id, err := parseUserID(r.Args[1])
			if err != nil {
				return err
			}
			userID = id
		}
		info, err := c.careers.Info(ctx, userID)
		if err != nil {
			return err
		}
		return r.reply(ctx, describeCareer(info))
	case "change":
		if len(r.Args) != 2 {
			return usage("career change <id>")
		}
		id, err := parseInt(r.Args[1])
		if err != nil {
			return err
		}
		pos, err := c.careers.Change(ctx, r.Conv, r.Author, id)
		if err != nil {
			return err
		}
		if id == 0 {
			return r.reply(ctx, "You are now unemployed.")
		}
		return r.reply(ctx, fmt.Sprintf("You are now a **%s** (%s).", pos.Name, pos.Career))
	case "begin", "start":
		ws, err := c.careers.Begin(ctx, r.Conv, r.Author)
		if err != nil {
			return err
		}
		return r.reply(ctx, fmt.Sprintf("Shift started as **%s**, come back in %s.", ws.Position.Name, humanDuration(ws.Position.Duration)))
	case "stop":
		paid, err := c.careers.Stop(ctx, r.Conv, r.Author)
		if err != nil {
			return err
		}
		return r.reply(ctx, fmt.Sprintf("You stopped working and earned **%s**.", money(paid)))
	default:
		return usage("career list | info [user] | change <id> | begin | stop")
	}
}

func describeCareer(info career.Info) string {
	if !info.Employed {
		return fmt.Sprintf("<@%d> is unemployed.", info.UserID)
	}
	p := info.Position
	text := fmt.Sprintf("<@%d> works as **%s** (%s), earning %s per %s shift.",
		info.UserID, p.Name, p.Career, money(p.Pay), humanDuration(p.Duration))
	if info.WorkingSince != nil {
		if info.Remaining > 0 {
			text += fmt.Sprintf("\nOn shift, %s left.", humanDuration(info.Remaining))
		} else {
			text += "\nShift finished, payout pending."
		}
	}
	return text
}

func (c *Commands) ping(ctx context.Context, r *Request) error {
	return r.reply(ctx, fmt.Sprintf("Pong! %dms", c.latency().Milliseconds()))
}

func (c *Commands) uptime(ctx context.Context, r *Request) error {
	return r.reply(ctx, "Up for "+humanDuration(c.now().Sub(c.started)))
}

func (c *Commands) reconcile(ctx context.Context, r *Request) error {
	n, err := c.careers.Reconcile(ctx)
	if err != nil {
		return err
	}
	return r.reply(ctx, fmt.Sprintf("Paid %d overdue shift(s).", n))
}

// ErrorReply turns err into the text shown to the user. internal reports
// whether err should also be logged.
func ErrorReply(err error, prefix string) (text string, internal bool) {
	var rl *game.RateLimitedError
	var ue *usageError
	switch {
	case errors.As(err, &rl):
		return "Please try again in " + humanDuration(rl.RetryAfter), false
	case errors.As(err, &ue):
		return "Usage: `" + prefix + ue.usage + "`", false
	case errors.Is(err, errUnknownCommand):
		return fmt.Sprintf("No command named `%s`", strings.TrimPrefix(err.Error(), errUnknownCommand.Error()+": ")), false
	case game.IsRecoverable(err):
		return capitalize(err.Error()), false
	default:
		return "Oops, an error has occurred. It has been reported.", true
	}
}
