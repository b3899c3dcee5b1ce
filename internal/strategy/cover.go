package strategy

import (
	"day_trader/internal/core"
	"day_trader/internal/quant"

	"github.com/shopspring/decimal"
)

// CoverPolicy prices the close-out order for a position still holding
// openQuantity (signed) at the end of the session. Implementations must
// not block; they are called under the position's lock.
type CoverPolicy interface {
	Name() string
	CoverPrice(contract *core.Contract, openQuantity int64, snap *core.Snapshot) (decimal.Decimal, core.PriceType)
}

// ExtremeCover prices the cover at the adverse band extreme: limit-down
// for a long being sold, limit-up for a short being bought back. The
// order can never be better than the market, so it executes with
// priority before the close.
type ExtremeCover struct{}

func (ExtremeCover) Name() string { return "extreme" }

func (ExtremeCover) CoverPrice(contract *core.Contract, openQuantity int64, _ *core.Snapshot) (decimal.Decimal, core.PriceType) {
	if openQuantity > 0 {
		return contract.LimitDown, core.PriceTypeLimit
	}
	return contract.LimitUp, core.PriceTypeLimit
}

// SnapshotCover prices the cover at the last traded price, falling back
// to the band extreme when no tick has been seen. Tighter than
// ExtremeCover but can miss the fill if the market runs away.
type SnapshotCover struct{}

func (SnapshotCover) Name() string { return "snapshot" }

func (SnapshotCover) CoverPrice(contract *core.Contract, openQuantity int64, snap *core.Snapshot) (decimal.Decimal, core.PriceType) {
	if snap == nil || snap.Price.IsZero() {
		return ExtremeCover{}.CoverPrice(contract, openQuantity, nil)
	}
	price := quant.ClampToBand(quant.RoundToTick(snap.Price, openQuantity < 0), contract.LimitUp, contract.LimitDown)
	return price, core.PriceTypeLimit
}

// PolicyByName resolves a configured policy name, defaulting to extreme.
func PolicyByName(name string) CoverPolicy {
	if name == "snapshot" {
		return SnapshotCover{}
	}
	return ExtremeCover{}
}
