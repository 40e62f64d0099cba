package main

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"growtube/internal/game"

	tea "github.com/charmbracelet/bubbletea"
)

type staticSource struct {
	listings []game.Listing
	err      error
}

func (s staticSource) Market(context.Context) ([]game.Listing, error) {
	return s.listings, s.err
}

func fixedNow() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }

func sized(t *testing.T, m model) model {
	t.Helper()
	next, _ := m.Update(tea.WindowSizeMsg{Width: 80, Height: 20})
	return next.(model)
}

func TestModelShowsMarket(t *testing.T) {
	src := staticSource{listings: []game.Listing{
		{ID: 2, Name: "Rock", Price: 12, Stock: 100},
		{ID: 1, Name: "Dirt", Price: 10, Stock: 100},
	}}
	m := sized(t, newModel(src, fixedNow))

	msg := fetchMarket(src)()
	next, _ := m.Update(msg)
	m = next.(model)

	view := m.View()
	if !strings.Contains(view, "Dirt") || !strings.Contains(view, "Rock") {
		t.Fatalf("view missing items:\n%s", view)
	}
	if strings.Index(view, "Dirt") > strings.Index(view, "Rock") {
		t.Fatalf("rows not ordered by id:\n%s", view)
	}
	if !strings.Contains(view, "2 items") {
		t.Fatalf("status missing:\n%s", view)
	}
}

func TestModelAppliesPriceChange(t *testing.T) {
	m := sized(t, newModel(staticSource{}, fixedNow))
	next, _ := m.Update(marketMsg{listings: []game.Listing{{ID: 1, Name: "Dirt", Price: 10, Stock: 100}}})
	m = next.(model)

	next, _ = m.Update(priceMsg(game.PriceChange{ID: 1, Name: "Dirt", Value: 10, Demand: 3, Supply: 1, Stock: 90}))
	m = next.(model)

	r := m.rows[1]
	want := game.BuyUnitPrice(game.Item{Value: 10, Demand: 3, Supply: 1, Stock: 90, Buyable: true})
	if r.listing.Price != want || r.listing.Stock != 90 {
		t.Fatalf("row = %+v, want price %d", r.listing, want)
	}
	if r.change != want-10 {
		t.Fatalf("change = %d, want %d", r.change, want-10)
	}
}

func TestModelDropsDelistedAndReportsErrors(t *testing.T) {
	m := sized(t, newModel(staticSource{}, fixedNow))
	next, _ := m.Update(marketMsg{listings: []game.Listing{{ID: 1, Name: "Dirt"}, {ID: 2, Name: "Rock"}}})
	m = next.(model)
	next, _ = m.Update(marketMsg{listings: []game.Listing{{ID: 2, Name: "Rock"}}})
	m = next.(model)
	if _, ok := m.rows[1]; ok {
		t.Fatal("delisted row kept")
	}

	next, _ = m.Update(marketMsg{err: errors.New("connection refused")})
	m = next.(model)
	if !strings.Contains(m.View(), "connection refused") {
		t.Fatalf("error not shown:\n%s", m.View())
	}
}

func TestQuitKey(t *testing.T) {
	m := newModel(staticSource{}, fixedNow)
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	if cmd == nil {
		t.Fatal("expected quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Fatal("expected tea.QuitMsg")
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("Legendary Wings Of Doom", 10); got != "Legendary~" {
		t.Fatalf("truncate = %q", got)
	}
	if got := truncate("Dirt", 10); got != "Dirt" {
		t.Fatalf("truncate = %q", got)
	}
}
