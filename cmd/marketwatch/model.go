package main

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"growtube/internal/game"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

const (
	refreshInterval = 30 * time.Second
	fetchTimeout    = 10 * time.Second
)

type marketSource interface {
	Market(ctx context.Context) ([]game.Listing, error)
}

type keyMap struct {
	Quit    key.Binding
	Refresh key.Binding
}

var keys = keyMap{
	Quit:    key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	Refresh: key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "refresh")),
}

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86"))
	headerStyle = lipgloss.NewStyle().Bold(true).Underline(true)
	upStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	downStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	errStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
)

type (
	marketMsg struct {
		listings []game.Listing
		err      error
	}
	priceMsg   game.PriceChange
	feedErrMsg struct{ err error }
	refreshMsg struct{}
)

type row struct {
	listing game.Listing
	// change is the last price movement seen on the feed.
	change  int64
	updated time.Time
}

type model struct {
	source   marketSource
	now      func() time.Time
	rows     map[int64]*row
	viewport viewport.Model
	ready    bool
	status   string
	err      error
	lastSync time.Time
}

func newModel(source marketSource, now func() time.Time) model {
	return model{
		source: source,
		now:    now,
		rows:   make(map[int64]*row),
		status: "loading market...",
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(fetchMarket(m.source), scheduleRefresh())
}

func fetchMarket(source marketSource) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), fetchTimeout)
		defer cancel()
		listings, err := source.Market(ctx)
		return marketMsg{listings: listings, err: err}
	}
}

func scheduleRefresh() tea.Cmd {
	return tea.Tick(refreshInterval, func(time.Time) tea.Msg { return refreshMsg{} })
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.viewport = viewport.New(msg.Width, max(msg.Height-3, 1))
		m.ready = true

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, keys.Refresh):
			m.status = "refreshing..."
			cmds = append(cmds, fetchMarket(m.source))
		}

	case refreshMsg:
		cmds = append(cmds, fetchMarket(m.source), scheduleRefresh())

	case marketMsg:
		if msg.err != nil {
			m.err = msg.err
			m.status = "market unavailable"
			break
		}
		m.err = nil
		m.lastSync = m.now()
		m.status = fmt.Sprintf("%d items", len(msg.listings))
		seen := make(map[int64]bool, len(msg.listings))
		for _, l := range msg.listings {
			seen[l.ID] = true
			if r, ok := m.rows[l.ID]; ok {
				r.listing = l
				continue
			}
			m.rows[l.ID] = &row{listing: l}
		}
		for id := range m.rows {
			if !seen[id] {
				delete(m.rows, id)
			}
		}

	case priceMsg:
		m.applyChange(game.PriceChange(msg))

	case feedErrMsg:
		m.err = msg.err
		m.status = "live feed lost"
	}

	if m.ready {
		m.viewport.SetContent(m.table())
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		cmds = append(cmds, cmd)
	}
	return m, tea.Batch(cmds...)
}

func (m *model) applyChange(c game.PriceChange) {
	it := game.Item{ID: c.ID, Name: c.Name, Value: c.Value, Demand: c.Demand, Supply: c.Supply, Stock: c.Stock, Buyable: true}
	price := game.BuyUnitPrice(it)
	r, ok := m.rows[c.ID]
	if !ok {
		r = &row{listing: game.Listing{ID: c.ID, Name: c.Name}}
		m.rows[c.ID] = r
	} else {
		r.change = price - r.listing.Price
	}
	r.listing.Price = price
	r.listing.Stock = c.Stock
	r.updated = m.now()
}

func (m model) sortedRows() []*row {
	out := make([]*row, 0, len(m.rows))
	for _, r := range m.rows {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].listing.ID < out[j].listing.ID })
	return out
}

func (m model) table() string {
	var b strings.Builder
	b.WriteString(headerStyle.Render(fmt.Sprintf("%-4s %-20s %12s %8s %10s", "ID", "ITEM", "PRICE", "STOCK", "CHANGE")))
	b.WriteByte('\n')
	for _, r := range m.sortedRows() {
		change := dimStyle.Render(fmt.Sprintf("%10s", "-"))
		switch {
		case r.change > 0:
			change = upStyle.Render(fmt.Sprintf("%+10d", r.change))
		case r.change < 0:
			change = downStyle.Render(fmt.Sprintf("%+10d", r.change))
		}
		fmt.Fprintf(&b, "%-4d %-20s %12d %8d %s\n", r.listing.ID, truncate(r.listing.Name, 20), r.listing.Price, r.listing.Stock, change)
	}
	return b.String()
}

func (m model) View() string {
	if !m.ready {
		return m.status
	}
	footer := dimStyle.Render(m.status)
	if !m.lastSync.IsZero() {
		footer = dimStyle.Render(fmt.Sprintf("%s, synced %s", m.status, m.lastSync.Format("15:04:05")))
	}
	if m.err != nil {
		footer = errStyle.Render(m.status + ": " + m.err.Error())
	}
	return lipgloss.JoinVertical(lipgloss.Left,
		titleStyle.Render("GrowTube Market")+"  "+dimStyle.Render("r refresh, q quit"),
		m.viewport.View(),
		footer,
	)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-1] + "~"
}
