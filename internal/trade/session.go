package trade

import (
	"fmt"
	"sort"
	"strings"

	"growtube/internal/game"
	"growtube/internal/interact"
)

type State int

const (
	Proposed State = iota
	Open
	AwaitingConfirmation
	Settling
	Settled
	Cancelled
)

func (s State) String() string {
	switch s {
	case Proposed:
		return "proposed"
	case Open:
		return "open"
	case AwaitingConfirmation:
		return "awaiting confirmation"
	case Settling:
		return "settling"
	case Settled:
		return "settled"
	case Cancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Change is a staged currency amount when ItemName is empty, otherwise a
// quantity of the named item.
type Change struct {
	ItemName string
	Amount   int64
}

func Currency(amount int64) Change { return Change{Amount: amount} }

func Item(name string, amount int64) Change { return Change{ItemName: name, Amount: amount} }

func (c Change) IsCurrency() bool { return c.ItemName == "" }

type StagedItem struct {
	ItemID   int64  `json:"item_id"`
	Name     string `json:"name"`
	Quantity int64  `json:"quantity"`
}

type Offer struct {
	Currency int64        `json:"currency"`
	Items    []StagedItem `json:"items"`
}

func (o Offer) Empty() bool { return o.Currency == 0 && len(o.Items) == 0 }

// View is a point-in-time copy of a session.
type View struct {
	ID       string          `json:"id"`
	Parties  [2]int64        `json:"parties"`
	State    State           `json:"state"`
	Acceptor int64           `json:"acceptor,omitempty"`
	Offers   map[int64]Offer `json:"offers"`
}

// Other returns the counterparty of userID.
func (v View) Other(userID int64) int64 {
	if v.Parties[0] == userID {
		return v.Parties[1]
	}
	return v.Parties[0]
}

// round is one accept attempt. Each round gets fresh channels so a stale
// waiter can never observe a later round's signal.
type round struct {
	accepted  chan struct{}
	cancelled chan struct{}
	settled   chan struct{}
	result    error
}

func newRound() *round {
	return &round{
		accepted:  make(chan struct{}),
		cancelled: make(chan struct{}),
		settled:   make(chan struct{}),
	}
}

// session fields are guarded by Manager.mu.
type session struct {
	id       string
	parties  [2]int64
	conv     interact.Conversation
	summary  interact.Message
	state    State
	currency map[int64]int64
	items    map[int64]map[int64]StagedItem
	acceptor int64
	round    *round
	done     chan struct{}
}

func newSession(id string, conv interact.Conversation, a, b int64) *session {
	return &session{
		id:       id,
		parties:  [2]int64{a, b},
		conv:     conv,
		state:    Proposed,
		currency: map[int64]int64{a: 0, b: 0},
		items:    map[int64]map[int64]StagedItem{a: {}, b: {}},
		round:    newRound(),
		done:     make(chan struct{}),
	}
}

func (s *session) other(userID int64) int64 {
	if s.parties[0] == userID {
		return s.parties[1]
	}
	return s.parties[0]
}

func (s *session) stagedItem(userID, itemID int64) int64 {
	return s.items[userID][itemID].Quantity
}

func (s *session) offer(userID int64) Offer {
	o := Offer{Currency: s.currency[userID]}
	for _, it := range s.items[userID] {
		o.Items = append(o.Items, it)
	}
	sort.Slice(o.Items, func(i, j int) bool { return o.Items[i].ItemID < o.Items[j].ItemID })
	return o
}

func (s *session) view() View {
	return View{
		ID:       s.id,
		Parties:  s.parties,
		State:    s.state,
		Acceptor: s.acceptor,
		Offers: map[int64]Offer{
			s.parties[0]: s.offer(s.parties[0]),
			s.parties[1]: s.offer(s.parties[1]),
		},
	}
}

// finish ends the session and wakes every waiter.
func (s *session) finish(state State) {
	s.state = state
	close(s.done)
}

func Render(v View) string {
	var b strings.Builder
	fmt.Fprintf(&b, "**Trade** `%s`\n", shortID(v.ID))
	for _, p := range v.Parties {
		fmt.Fprintf(&b, "<@%d> offers: %s\n", p, describeOffer(v.Offers[p]))
	}
	switch v.State {
	case Proposed:
		b.WriteString("Status: waiting for the invite to be accepted")
	case Open:
		b.WriteString("Status: open")
	case AwaitingConfirmation:
		fmt.Fprintf(&b, "Status: <@%d> accepted, waiting for <@%d>", v.Acceptor, v.Other(v.Acceptor))
	case Settling:
		b.WriteString("Status: settling")
	case Settled:
		b.WriteString("Trade Complete")
	case Cancelled:
		b.WriteString("Trade Cancelled")
	}
	return b.String()
}

func describeOffer(o Offer) string {
	if o.Empty() {
		return "nothing"
	}
	var parts []string
	if o.Currency > 0 {
		parts = append(parts, fmt.Sprintf("%d %s", o.Currency, game.CurrencyName))
	}
	for _, it := range o.Items {
		parts = append(parts, fmt.Sprintf("%dx %s", it.Quantity, it.Name))
	}
	return strings.Join(parts, ", ")
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
