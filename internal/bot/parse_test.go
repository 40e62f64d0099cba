package bot

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"growtube/internal/game"
	"growtube/internal/trade"
)

func TestSplitCommand(t *testing.T) {
	tests := []struct {
		content string
		name    string
		args    []string
		ok      bool
	}{
		{content: "g!sell all Dirt", name: "sell", args: []string{"all", "Dirt"}, ok: true},
		{content: "  G!BAL  ", name: "bal", args: []string{}, ok: true},
		{content: "g!", ok: false},
		{content: "hello g!sell", ok: false},
	}
	for _, tc := range tests {
		name, args, ok := splitCommand(tc.content, "g!")
		if ok != tc.ok || name != tc.name {
			t.Fatalf("splitCommand(%q) = %q %v, want %q %v", tc.content, name, ok, tc.name, tc.ok)
		}
		if ok && len(args) != len(tc.args) {
			t.Fatalf("splitCommand(%q) args = %v, want %v", tc.content, args, tc.args)
		}
	}
}

func TestParseUserID(t *testing.T) {
	for _, in := range []string{"<@42>", "<@!42>", "42"} {
		id, err := parseUserID(in)
		if err != nil || id != 42 {
			t.Fatalf("parseUserID(%q) = %d, %v", in, id, err)
		}
	}
	if _, err := parseUserID("<#42>"); !errors.Is(err, game.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestParseSell(t *testing.T) {
	tests := []struct {
		args []string
		want game.SellInput
	}{
		{args: []string{"dirt"}, want: game.SellInput{UserID: 1, ItemName: "dirt", Quantity: 1}},
		{args: []string{"5", "golden", "seed"}, want: game.SellInput{UserID: 1, ItemName: "golden seed", Quantity: 5}},
		{args: []string{"ALL", "dirt"}, want: game.SellInput{UserID: 1, ItemName: "dirt", Quantity: 1, All: true}},
	}
	for _, tc := range tests {
		got, err := parseSell(1, tc.args)
		if err != nil {
			t.Fatalf("parseSell(%v): %v", tc.args, err)
		}
		if got != tc.want {
			t.Fatalf("parseSell(%v) = %+v, want %+v", tc.args, got, tc.want)
		}
	}
	var ue *usageError
	if _, err := parseSell(1, []string{"all"}); !errors.As(err, &ue) {
		t.Fatalf("expected usage error, got %v", err)
	}
}

func TestParseBuy(t *testing.T) {
	got, err := parseBuy(7, []string{"3", "Dirt"})
	if err != nil || got != (game.BuyInput{UserID: 7, ItemName: "Dirt", Quantity: 3}) {
		t.Fatalf("parseBuy = %+v, %v", got, err)
	}
	if _, err := parseBuy(7, []string{"3"}); err == nil {
		t.Fatal("expected usage error for missing item")
	}
}

func TestParseTradeChange(t *testing.T) {
	tests := []struct {
		args []string
		want trade.Change
	}{
		{args: []string{"100"}, want: trade.Currency(100)},
		{args: []string{"2", "dirt"}, want: trade.Item("dirt", 2)},
		{args: []string{"golden", "seed"}, want: trade.Item("golden seed", 1)},
	}
	for _, tc := range tests {
		got, err := parseTradeChange("add", tc.args)
		if err != nil || !reflect.DeepEqual(got, tc.want) {
			t.Fatalf("parseTradeChange(%v) = %+v, %v want %+v", tc.args, got, err, tc.want)
		}
	}
	if _, err := parseTradeChange("remove", nil); err == nil || err.Error() != "usage: trade remove [quantity] [item]" {
		t.Fatalf("unexpected error %v", err)
	}
}

func TestHumanDuration(t *testing.T) {
	tests := map[time.Duration]string{
		0:                "1 second",
		time.Second:      "1 second",
		30 * time.Second: "30 seconds",
		5 * time.Minute:  "5 minutes",
	}
	for d, want := range tests {
		if got := humanDuration(d); got != want {
			t.Fatalf("humanDuration(%v) = %q, want %q", d, got, want)
		}
	}
}

func TestMoney(t *testing.T) {
	if got := money(1234567); got != "1,234,567 Growcoin" {
		t.Fatalf("money = %q", got)
	}
}

func TestCustomID(t *testing.T) {
	id, yes, ok := parseCustomID(customID("abc", true))
	if !ok || !yes || id != "abc" {
		t.Fatalf("round trip failed: %q %v %v", id, yes, ok)
	}
	for _, bad := range []string{"", "confirm::yes", "confirm:abc:maybe", "other:abc:yes"} {
		if _, _, ok := parseCustomID(bad); ok {
			t.Fatalf("parseCustomID(%q) should fail", bad)
		}
	}
}

func TestPromptsResolve(t *testing.T) {
	p := newPrompts()
	id, answer := p.open(5)

	if res, responder := p.resolve(id, 6, true); res != resolveWrongUser || responder != 5 {
		t.Fatalf("wrong user: %v %d", res, responder)
	}
	if res, _ := p.resolve(id, 5, true); res != resolveOK {
		t.Fatalf("resolve = %v", res)
	}
	if !<-answer {
		t.Fatal("expected yes")
	}
	if res, _ := p.resolve(id, 5, false); res != resolveUnknown {
		t.Fatalf("second click = %v", res)
	}

	id2, _ := p.open(5)
	p.close(id2)
	if p.len() != 0 {
		t.Fatalf("pending = %d", p.len())
	}
}
