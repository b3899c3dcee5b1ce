// Package quant maps prices onto the exchange tick grid and splits order
// quantities into venue-compliant chunks. All price math uses
// shopspring/decimal: the tick boundaries sit exactly on decimal values,
// and binary floating point misclassifies prices near them, which the
// exchange answers with a rejection.
package quant

import (
	"github.com/shopspring/decimal"
)

var (
	one     = decimal.New(1, 0)
	minTick = decimal.New(1, -2) // 0.01, the smallest tick the venue uses
)

// TickSize returns the minimum legal price increment at the given price.
// The venue's tick table follows a power-of-ten pattern with a quinary
// subdivision: within the decade [10^k, 10^(k+1)) the tick is 5*10^(k-3)
// until the leading digit reaches 5, where it doubles to 10^(k-2).
// Everything below 10 bottoms out at 0.01. This yields the published
// table: 0.01 below 10, 0.05 below 50, 0.1 below 100, 0.5 below 500,
// 1 below 1000, 5 above.
func TickSize(price decimal.Decimal) decimal.Decimal {
	if price.LessThan(one) {
		return minTick
	}

	// Decade exponent: largest k with 10^k <= price. Session prices stay
	// far below 10^8.
	k := int32(0)
	for price.GreaterThanOrEqual(decimal.New(1, k+1)) {
		k++
	}

	var tick decimal.Decimal
	if price.GreaterThanOrEqual(decimal.New(5, k)) {
		tick = decimal.New(1, k-2)
	} else {
		tick = decimal.New(5, k-3)
	}
	if tick.LessThan(minTick) {
		return minTick
	}
	return tick
}

// CeilToTick rounds price up to the nearest legal tick. On-tick input is
// returned unchanged.
func CeilToTick(price decimal.Decimal) decimal.Decimal {
	tick := TickSize(price)
	return price.Div(tick).Ceil().Mul(tick)
}

// FloorToTick rounds price down to the nearest legal tick. On-tick input
// is returned unchanged.
func FloorToTick(price decimal.Decimal) decimal.Decimal {
	tick := TickSize(price)
	return price.Div(tick).Floor().Mul(tick)
}

// RoundToTick rounds to a legal tick in the requested direction: up when
// entering favorably on the buy side, down otherwise.
func RoundToTick(price decimal.Decimal, up bool) decimal.Decimal {
	if up {
		return CeilToTick(price)
	}
	return FloorToTick(price)
}

// ClampToBand clamps price into the daily [limitDown, limitUp] band.
func ClampToBand(price, limitUp, limitDown decimal.Decimal) decimal.Decimal {
	if price.GreaterThan(limitUp) {
		return limitUp
	}
	if price.LessThan(limitDown) {
		return limitDown
	}
	return price
}

// TickCountBetween returns the number of tick steps from p0 to p1, signed
// by direction. Off-tick inputs are floored onto the grid first. The grid
// is walked step by step because the tick size changes inside a span that
// crosses a decade or quinary boundary; dividing the span by a single
// tick size over-counts or under-counts there.
func TickCountBetween(p0, p1 decimal.Decimal) int {
	lo, hi, sign := p0, p1, 1
	if p0.GreaterThan(p1) {
		lo, hi, sign = p1, p0, -1
	}
	lo = FloorToTick(lo)
	hi = FloorToTick(hi)

	count := 0
	for cur := lo; cur.LessThan(hi); count++ {
		cur = cur.Add(TickSize(cur))
	}
	return count * sign
}

// OffsetByTicks moves an on-tick price by n tick steps (negative n moves
// down), re-reading the tick size at every step so decade boundaries are
// crossed exactly. The result is clamped at the venue minimum tick.
func OffsetByTicks(price decimal.Decimal, n int) decimal.Decimal {
	cur := FloorToTick(price)
	for ; n > 0; n-- {
		cur = cur.Add(TickSize(cur))
	}
	for ; n < 0; n++ {
		// Step below a boundary uses the tick of the level underneath.
		next := cur.Sub(TickSize(cur))
		if TickSize(next).LessThan(TickSize(cur)) {
			next = cur.Sub(TickSize(next))
		}
		if next.LessThan(minTick) {
			return minTick
		}
		cur = next
	}
	return cur
}

// SplitByThreshold splits a signed quantity into chunks of magnitude at
// most threshold, preserving sign, the last chunk carrying the remainder.
// The chunks always sum to quantity. A quantity that divides the
// threshold exactly yields no trailing zero chunk.
func SplitByThreshold(quantity, threshold int64) []int64 {
	if quantity == 0 || threshold <= 0 {
		return nil
	}
	sign := int64(1)
	abs := quantity
	if quantity < 0 {
		sign, abs = -1, -quantity
	}

	chunks := make([]int64, 0, abs/threshold+1)
	for abs > threshold {
		chunks = append(chunks, sign*threshold)
		abs -= threshold
	}
	return append(chunks, sign*abs)
}

// SplitEvenly splits a signed quantity into parts chunks as evenly as
// possible: earlier chunks take the ceiling share, later ones the floor
// share, magnitudes differing by at most one, sum exact.
func SplitEvenly(quantity int64, parts int) []int64 {
	if parts <= 0 {
		return nil
	}
	sign := int64(1)
	abs := quantity
	if quantity < 0 {
		sign, abs = -1, -quantity
	}

	base := abs / int64(parts)
	rem := abs % int64(parts)
	chunks := make([]int64, parts)
	for i := range chunks {
		chunks[i] = sign * base
		if int64(i) < rem {
			chunks[i] += sign
		}
	}
	return chunks
}
