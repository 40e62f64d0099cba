package game

import (
	"math"
	"math/big"
)

var bigOne = big.NewInt(1)

// Price computes floor(base*(demand+demandDelta)/(supply+supplyDelta)).
// A zero denominator yields base. Results are not clamped; buyers floor the
// unit price at 1 and sellers at 0.
func Price(base, demand, supply, demandDelta, supplyDelta int64) int64 {
	den := supply + supplyDelta
	if den == 0 {
		return base
	}
	num := new(big.Int).Mul(big.NewInt(base), big.NewInt(demand+demandDelta))
	return floorDivBig(num, big.NewInt(den))
}

// ComputeTransaction returns amount plus the tiered fee and the tax percent
// applied. Amounts above HighTaxThreshold pay HighTaxPercent.
func ComputeTransaction(amount int64) (total, taxPercent int64) {
	taxPercent = taxTier(amount)
	return saturatingAdd(amount, feeOf(amount, taxPercent)), taxPercent
}

// SellProceeds is the sell-side mirror of ComputeTransaction: the fee is
// taken out of gross instead of added on top.
func SellProceeds(gross int64) (net, taxPercent int64) {
	taxPercent = taxTier(gross)
	return gross - feeOf(gross, taxPercent), taxPercent
}

// Notional multiplies a unit price by a quantity, failing on overflow.
func Notional(unit, qty int64) (int64, bool) {
	v := new(big.Int).Mul(big.NewInt(unit), big.NewInt(qty))
	if !v.IsInt64() {
		return 0, false
	}
	return v.Int64(), true
}

func BuyUnitPrice(it Item) int64 {
	p := it.CurrentPrice()
	if p < 1 {
		return 1
	}
	return p
}

func SellUnitPrice(it Item) int64 {
	p := it.CurrentPrice()
	if p < 0 {
		return 0
	}
	return p
}

func taxTier(amount int64) int64 {
	if amount > HighTaxThreshold {
		return HighTaxPercent
	}
	return LowTaxPercent
}

func feeOf(amount, taxPercent int64) int64 {
	num := new(big.Int).Mul(big.NewInt(amount), big.NewInt(taxPercent))
	return floorDivBig(num, big.NewInt(100))
}

func floorDivBig(num, den *big.Int) int64 {
	q, m := new(big.Int).QuoRem(num, den, new(big.Int))
	if m.Sign() != 0 && (m.Sign() < 0) != (den.Sign() < 0) {
		q.Sub(q, bigOne)
	}
	if !q.IsInt64() {
		if q.Sign() > 0 {
			return math.MaxInt64
		}
		return math.MinInt64
	}
	return q.Int64()
}

func saturatingAdd(a, b int64) int64 {
	s := a + b
	if a > 0 && b > 0 && s < 0 {
		return math.MaxInt64
	}
	if a < 0 && b < 0 && s >= 0 {
		return math.MinInt64
	}
	return s
}
