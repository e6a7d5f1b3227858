package assess

import (
	"math"

	"github.com/shopspring/decimal"
)

// roundUnit rounds v to the nearest multiple of unit, halves away from zero.
func roundUnit(v decimal.Decimal, unit int64) int64 {
	u := decimal.NewFromInt(unit)
	return clampInt64(v.Div(u).Round(0).Mul(u))
}

// floorUnit rounds n/d down to a multiple of unit.
func floorUnit(n, d, unit int64) int64 {
	if d <= 0 {
		return 0
	}
	u := decimal.NewFromInt(unit)
	q := decimal.NewFromInt(n).Div(decimal.NewFromInt(d))
	return clampInt64(q.Div(u).Floor().Mul(u))
}

// ceilUnit rounds n/d up to a multiple of unit.
func ceilUnit(n, d, unit int64) int64 {
	if d <= 0 {
		return 0
	}
	u := decimal.NewFromInt(unit)
	q := decimal.NewFromInt(n).Div(decimal.NewFromInt(d))
	return clampInt64(q.Div(u).Ceil().Mul(u))
}

// applyRate returns v × rate rounded to the nearest unit.
func applyRate(v int64, rate float64, unit int64) int64 {
	return roundUnit(decimal.NewFromInt(v).Mul(decimal.NewFromFloat(rate)), unit)
}

// ceilDiv is ⌈a/b⌉ for non-negative a and positive b.
func ceilDiv(a, b int64) int64 {
	if b <= 0 {
		return 0
	}
	q := a / b
	if a%b != 0 {
		q++
	}
	return q
}

// addSat adds non-negative values without wrapping.
func addSat(vals ...int64) int64 {
	var sum int64
	for _, v := range vals {
		if v <= 0 {
			continue
		}
		if sum > math.MaxInt64-v {
			return math.MaxInt64
		}
		sum += v
	}
	return sum
}

// subFloor returns max(0, a-b).
func subFloor(a, b int64) int64 {
	if a <= b {
		return 0
	}
	return a - b
}

// mulSat multiplies a non-negative payment by a month count without wrapping.
func mulSat(p int64, m int) int64 {
	if p <= 0 || m <= 0 {
		return 0
	}
	if p > math.MaxInt64/int64(m) {
		return math.MaxInt64
	}
	return p * int64(m)
}

func clampInt64(d decimal.Decimal) int64 {
	if d.Sign() <= 0 {
		return 0
	}
	if d.GreaterThan(decimal.NewFromInt(math.MaxInt64)) {
		return math.MaxInt64
	}
	return d.IntPart()
}
