// Package strategy turns target positions into entry and exit price
// schedules, and prices the close-out cover through a pluggable policy.
package strategy

import (
	"day_trader/internal/core"
	"day_trader/internal/quant"

	"github.com/shopspring/decimal"
)

// EntryPlan is the computed schedule for one instrument: where to enter
// and where the stop legs sit. Quantities are signed; the stop legs carry
// the closing direction (opposite sign to the target).
type EntryPlan struct {
	Contract   *core.Contract
	Quantity   int64
	Entry      []*core.PricePoint
	StopLoss   []*core.PricePoint
	StopProfit []*core.PricePoint
}

// Params are the percentage offsets applied to the reference price.
type Params struct {
	EntryPct      float64
	StopLossPct   float64
	StopProfitPct float64
}

// Basic is the default single-leg day-trade strategy: enter at a
// favorable offset from reference, stop out at fixed percentages either
// side. Its name doubles as the engine's order tag.
type Basic struct {
	params    Params
	contracts map[string]*core.Contract
	logger    core.ILogger
}

// NewBasic creates the strategy over a contract book.
func NewBasic(params Params, contracts map[string]*core.Contract, logger core.ILogger) *Basic {
	return &Basic{
		params:    params,
		contracts: contracts,
		logger:    logger.WithField("component", "strategy"),
	}
}

// Name identifies orders placed by this strategy on a shared session.
func (s *Basic) Name() string { return "dt1" }

// offsetPrice computes reference*(1+sign*pct), rounds it onto the tick
// grid in the given direction, and clamps it into the daily band.
func offsetPrice(c *core.Contract, pct float64, up bool) decimal.Decimal {
	factor := decimal.NewFromInt(1).Add(decimal.NewFromFloat(pct))
	price := quant.RoundToTick(c.Reference.Mul(factor), up)
	return quant.ClampToBand(price, c.LimitUp, c.LimitDown)
}

// EntryPositions computes the entry/stop schedule for every target.
// Unknown instrument codes are reported as warnings and skipped; the
// session proceeds for the rest.
func (s *Basic) EntryPositions(targets map[string]int64) []*EntryPlan {
	plans := make([]*EntryPlan, 0, len(targets))
	for code, qty := range targets {
		if qty == 0 {
			continue
		}
		contract, ok := s.contracts[code]
		if !ok {
			s.logger.Warn("Unknown instrument code, skipping", "code", code)
			continue
		}

		long := qty > 0
		sign := 1.0
		if long {
			sign = -1.0
		}

		// Entry sits on the favorable side of reference; the stop legs
		// round toward the level that triggers first.
		entry := offsetPrice(contract, sign*s.params.EntryPct, long)
		stopLoss := offsetPrice(contract, sign*s.params.StopLossPct, long)
		stopProfit := offsetPrice(contract, -sign*s.params.StopProfitPct, !long)

		plans = append(plans, &EntryPlan{
			Contract: contract,
			Quantity: qty,
			Entry: []*core.PricePoint{
				{Price: entry, Quantity: qty, PriceType: core.PriceTypeLimit},
			},
			StopLoss: []*core.PricePoint{
				{Price: stopLoss, Quantity: -qty, PriceType: core.PriceTypeMarket},
			},
			StopProfit: []*core.PricePoint{
				{Price: stopProfit, Quantity: -qty, PriceType: core.PriceTypeMarket},
			},
		})
	}
	return plans
}
