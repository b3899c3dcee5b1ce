package trader

import (
	"context"
	"fmt"
	"time"

	"day_trader/internal/core"
	"day_trader/pkg/metrics"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
)

// Run executes the full session against the configured schedule: place
// entries, monitor the pre-open window, arm the intraday stops at the
// open, force the close-out at cover time, and reconcile at the close.
// Phase times already in the past run immediately, so a late restart
// catches up instead of skipping phases.
func (t *Trader) Run(ctx context.Context, targets map[string]int64) error {
	if err := waitUntil(ctx, t.cfg.EntryTime); err != nil {
		return err
	}
	if err := t.PlaceEntryOrders(ctx, targets); err != nil {
		return fmt.Errorf("entry phase: %w", err)
	}

	if err := waitUntil(ctx, t.cfg.OpenTime); err != nil {
		return err
	}
	t.setPhase(t.intradayHandler)
	t.logger.Info("Intraday monitoring armed")

	if err := waitUntil(ctx, t.cfg.CoverTime); err != nil {
		return err
	}
	if err := t.CloseOut(ctx); err != nil {
		return fmt.Errorf("close-out phase: %w", err)
	}

	if err := waitUntil(ctx, t.cfg.CloseTime); err != nil {
		return err
	}
	if err := t.broker.UpdateStatus(); err != nil {
		t.logger.Error("Final reconciliation failed", "error", err)
	}
	t.report()
	return nil
}

// CloseOut flattens whatever the day left behind: it disarms the stop
// handlers, cancels every live order, waits for the cancellations and
// straggling fills to settle, then covers any remaining open quantity
// at the policy price.
func (t *Trader) CloseOut(ctx context.Context) error {
	t.setPhase(func(*core.Tick) {})
	t.logger.Info("Close-out started")

	if err := t.broker.UpdateStatus(); err != nil {
		t.logger.Error("Pre-cancel reconciliation failed", "error", err)
	}
	for _, pos := range t.ledger.All() {
		for _, trade := range pos.Trades() {
			if trade.Status().Terminal() {
				continue
			}
			t.cancelTrade(trade)
		}
	}

	// Cancellations settle asynchronously; poll until no acknowledged
	// quantity is outstanding, bounded so a dead session cannot stall
	// the close.
	settle := retrypolicy.NewBuilder[int64]().
		HandleIf(func(pending int64, err error) bool {
			return err != nil || pending != 0
		}).
		WithDelay(250 * time.Millisecond).
		WithMaxRetries(40).
		Build()
	pending, err := failsafe.With[int64](settle).Get(func() (int64, error) {
		if err := t.broker.UpdateStatus(); err != nil {
			return 0, err
		}
		return t.outstanding(), nil
	})
	if err != nil || pending != 0 {
		t.logger.Error("Proceeding to cover with unsettled orders",
			"pending_quantity", pending, "error", err)
	}

	for _, pos := range t.ledger.All() {
		pos.Mu.Lock()
		flatten := -(pos.Status.OpenQuantity + pos.Status.CoverOrderQuantity)
		if flatten == 0 {
			pos.Mu.Unlock()
			continue
		}
		open := pos.Status.OpenQuantity
		price, priceType := t.cover.CoverPrice(pos.Contract, open, t.snapshot(pos.Contract.Code))
		point := &core.PricePoint{
			Price:     price,
			Quantity:  flatten,
			PriceType: priceType,
			InTransit: flatten,
		}
		pos.Cond.CoverPrices = append(pos.Cond.CoverPrices, point)
		pos.Mu.Unlock()

		metrics.CoverTriggers.WithLabelValues("close_out").Inc()
		t.logger.Warn("Forcing close-out cover",
			"code", pos.Contract.Code, "open", open,
			"quantity", flatten, "price", price.String())
		if err := t.placeOrders(ctx, pos, point, flatten, "cover"); err != nil {
			t.logger.Error("Close-out cover failed", "code", pos.Contract.Code, "error", err)
		}
	}
	return nil
}

// outstanding sums the acknowledged-but-unsettled order quantity across
// all positions.
func (t *Trader) outstanding() int64 {
	total := int64(0)
	for _, pos := range t.ledger.All() {
		st := pos.StatusSnapshot()
		total += abs(st.EntryOrderQuantity) + abs(st.CoverOrderQuantity)
	}
	return total
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}

func (t *Trader) report() {
	for _, pos := range t.ledger.All() {
		st := pos.StatusSnapshot()
		t.logger.Info("Session result",
			"code", pos.Contract.Code,
			"target", pos.Cond.Quantity,
			"entry_quantity", st.EntryQuantity,
			"cover_quantity", st.CoverQuantity,
			"open_quantity", st.OpenQuantity,
			"cancel_quantity", st.CancelQuantity,
			"cancel_preorder", st.CancelPreorder)
		if st.OpenQuantity != 0 {
			t.logger.Error("Position not flat at close",
				"code", pos.Contract.Code, "open_quantity", st.OpenQuantity)
		}
	}
}

// waitUntil sleeps until the wall-clock deadline, returning early only
// on context cancellation. Zero and past deadlines return immediately.
func waitUntil(ctx context.Context, at time.Time) error {
	if at.IsZero() {
		return ctx.Err()
	}
	d := time.Until(at)
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
