package game

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"testing"
	"time"
)

func TestPrice(t *testing.T) {
	tests := []struct {
		name                                  string
		base, demand, supply, dDelta, sDelta  int64
		want                                  int64
	}{
		{name: "zero supply falls back to base", base: 100, want: 100},
		{name: "floor division", base: 50, demand: 2, supply: 10, want: 10},
		{name: "zero demand", base: 100, supply: 10, want: 0},
		{name: "truncates fraction", base: 7, demand: 1, supply: 2, want: 3},
		{name: "deltas applied", base: 10, demand: 1, supply: 1, dDelta: 1, sDelta: 3, want: 5},
		{name: "delta cancels supply", base: 100, demand: 5, supply: 2, sDelta: -2, want: 100},
		{name: "negative numerator floors down", base: 10, demand: -1, supply: 3, want: -4},
		{name: "negative denominator floors down", base: 10, demand: 1, supply: -3, want: -4},
		{name: "saturates on overflow", base: math.MaxInt64, demand: 4, supply: 1, want: math.MaxInt64},
	}
	for _, tc := range tests {
		got := Price(tc.base, tc.demand, tc.supply, tc.dDelta, tc.sDelta)
		if got != tc.want {
			t.Fatalf("%s: got %d want %d", tc.name, got, tc.want)
		}
	}
}

func TestPriceFloorLaw(t *testing.T) {
	r := rand.New(rand.NewSource(42))
	for i := 0; i < 5000; i++ {
		base := r.Int63n(1_000_000)
		demand := r.Int63n(10_000)
		supply := r.Int63n(10_000) + 1
		want := (base * demand) / supply
		if got := Price(base, demand, supply, 0, 0); got != want {
			t.Fatalf("base=%d demand=%d supply=%d got=%d want=%d", base, demand, supply, got, want)
		}
	}
}

func TestComputeTransaction(t *testing.T) {
	tests := []struct {
		amount, total, tax int64
	}{
		{amount: 100_001, total: 103_001, tax: 3},
		{amount: 100_000, total: 102_000, tax: 2},
		{amount: 100, total: 102, tax: 2},
		{amount: 49, total: 49, tax: 2},
		{amount: 0, total: 0, tax: 2},
	}
	for _, tc := range tests {
		total, tax := ComputeTransaction(tc.amount)
		if total != tc.total || tax != tc.tax {
			t.Fatalf("amount=%d got (%d, %d%%) want (%d, %d%%)", tc.amount, total, tax, tc.total, tc.tax)
		}
	}
}

func TestSellProceeds(t *testing.T) {
	net, tax := SellProceeds(50)
	if net != 49 || tax != 2 {
		t.Fatalf("got (%d, %d) want (49, 2)", net, tax)
	}
	net, tax = SellProceeds(200_000)
	if net != 194_000 || tax != 3 {
		t.Fatalf("got (%d, %d) want (194000, 3)", net, tax)
	}
}

func TestFeeNeverCreatesValue(t *testing.T) {
	for _, amount := range []int64{0, 1, 49, 50, 99_999, 100_000, 100_001, 5_000_000} {
		total, _ := ComputeTransaction(amount)
		net, _ := SellProceeds(amount)
		if total < amount || net > amount {
			t.Fatalf("amount=%d total=%d net=%d", amount, total, net)
		}
	}
}

func TestUnitPriceClamps(t *testing.T) {
	free := Item{Value: 100, Demand: 0, Supply: 10}
	if got := BuyUnitPrice(free); got != 1 {
		t.Fatalf("buy price got %d want 1", got)
	}
	if got := SellUnitPrice(free); got != 0 {
		t.Fatalf("sell price got %d want 0", got)
	}
	negative := Item{Value: 10, Demand: -5, Supply: 1}
	if got := SellUnitPrice(negative); got != 0 {
		t.Fatalf("sell price got %d want 0", got)
	}
}

func TestNormalizeItemName(t *testing.T) {
	got, err := NormalizeItemName("  Dirt   Seed ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "dirt seed" {
		t.Fatalf("got %q", got)
	}
	if _, err := NormalizeItemName("   "); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestIsRecoverable(t *testing.T) {
	rl := &RateLimitedError{Action: "collect", RetryAfter: 12 * time.Second}
	if !errors.Is(rl, ErrRateLimited) {
		t.Fatalf("rate limit error should match sentinel")
	}
	cases := []struct {
		err  error
		want bool
	}{
		{err: fmt.Errorf("%w: need 5", ErrInsufficientFunds), want: true},
		{err: rl, want: true},
		{err: errors.New("connection refused"), want: false},
	}
	for _, tc := range cases {
		if got := IsRecoverable(tc.err); got != tc.want {
			t.Fatalf("err=%v got=%v want=%v", tc.err, got, tc.want)
		}
	}
}

func TestClampTopLimit(t *testing.T) {
	for in, want := range map[int]int{0: 10, -3: 10, 5: 5, 30: 30, 99: 30} {
		if got := ClampTopLimit(in); got != want {
			t.Fatalf("limit=%d got=%d want=%d", in, got, want)
		}
	}
}
