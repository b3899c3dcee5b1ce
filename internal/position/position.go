// Package position owns the per-instrument position aggregate and the
// accounting state machine driven by broker confirmations. Each Position
// carries its own mutex; that lock is the only synchronization for its
// status and order lists, so different instruments progress independently.
package position

import (
	"fmt"
	"sync"

	"day_trader/internal/core"
)

// Status is the live accounting of one position. All quantities are
// signed with the same convention as the target (negative = short).
//
//   - OpenQuantity: net filled quantity currently held.
//   - EntryOrderQuantity / CoverOrderQuantity: acknowledged-but-not-yet-
//     filled-or-cancelled order exposure, moved by acks, moved back by
//     cancels and fills.
//   - EntryQuantity / CoverQuantity: accumulated fills per purpose.
//   - CancelQuantity: magnitude of every confirmed cancellation,
//     monotonically non-decreasing.
//   - CancelPreorder: set when the pre-open cancel window fired.
type Status struct {
	CancelPreorder     bool
	CancelQuantity     int64
	EntryOrderQuantity int64
	EntryQuantity      int64
	OpenQuantity       int64
	CoverOrderQuantity int64
	CoverQuantity      int64
}

// Cond is the immutable order plan for one position. CoverPrices is the
// exception: it is appended at close-out time, never replaced for legs
// already triggered.
type Cond struct {
	Quantity         int64
	EntryPrices      []*core.PricePoint
	StopLossPrices   []*core.PricePoint
	StopProfitPrices []*core.PricePoint
	CoverPrices      []*core.PricePoint
}

// Position is the aggregate for one instrument: contract reference, the
// session plan, the live status, and every order submitted. Mu guards
// Status, Cond.CoverPrices, the trade lists, and the in-transit counters
// on the plan's price points; broker callbacks and tick handlers must
// hold it for any read-modify-write.
type Position struct {
	Contract *core.Contract
	Cond     Cond
	Status   Status

	EntryTrades []*core.Trade
	CoverTrades []*core.Trade

	Mu sync.Mutex

	seen map[string]struct{}
}

// New creates a position for a contract with its fixed condition.
func New(contract *core.Contract, cond Cond) *Position {
	return &Position{
		Contract: contract,
		Cond:     cond,
		seen:     make(map[string]struct{}),
	}
}

// IsEntry reports whether an order direction opens (rather than closes)
// this position: buys enter a long target, sells enter a short one.
func (p *Position) IsEntry(action core.Action) bool {
	if p.Cond.Quantity > 0 {
		return action == core.ActionBuy
	}
	return action == core.ActionSell
}

// markSeen records an event identity, reporting false on a duplicate.
// Callers must hold Mu. The broker session can redeliver confirmations;
// without this set a duplicate ack or deal double-counts.
func (p *Position) markSeen(key string) bool {
	if _, dup := p.seen[key]; dup {
		return false
	}
	p.seen[key] = struct{}{}
	return true
}

// ErrDuplicateEvent marks a redelivered confirmation; the event must be
// dropped without touching any counter.
var ErrDuplicateEvent = fmt.Errorf("duplicate order event")

// ApplyOrderAck applies a new-order acknowledgment: the outstanding
// counter for the order's purpose moves by the signed acked quantity.
func (p *Position) ApplyOrderAck(ev *core.OrderAck) error {
	p.Mu.Lock()
	defer p.Mu.Unlock()

	if !p.markSeen("ack:" + ev.Seqno) {
		return ErrDuplicateEvent
	}

	delta := ev.Quantity
	if ev.Action == core.ActionSell {
		delta = -delta
	}
	if p.IsEntry(ev.Action) {
		p.Status.EntryOrderQuantity += delta
	} else {
		p.Status.CoverOrderQuantity += delta
	}
	return nil
}

// ApplyCancelAck applies a cancellation acknowledgment: the outstanding
// counter moves back by the signed cancelled quantity and CancelQuantity
// accumulates its magnitude. A too-late cancel carries zero quantity and
// is a no-op beyond de-dup bookkeeping.
func (p *Position) ApplyCancelAck(ev *core.OrderCancelAck) error {
	p.Mu.Lock()
	defer p.Mu.Unlock()

	if !p.markSeen("cancel:" + ev.Seqno) {
		return ErrDuplicateEvent
	}

	delta := ev.CancelQuantity
	if ev.Action == core.ActionSell {
		delta = -delta
	}
	if p.IsEntry(ev.Action) {
		p.Status.EntryOrderQuantity -= delta
	} else {
		p.Status.CoverOrderQuantity -= delta
	}
	if ev.CancelQuantity > 0 {
		p.Status.CancelQuantity += ev.CancelQuantity
	}
	return nil
}

// ApplyDeal applies a fill: OpenQuantity and the purpose's filled counter
// move by the signed quantity, and the purpose's outstanding counter
// moves back toward zero by the same amount.
func (p *Position) ApplyDeal(ev *core.Deal) error {
	p.Mu.Lock()
	defer p.Mu.Unlock()

	if !p.markSeen("deal:" + ev.DealID) {
		return ErrDuplicateEvent
	}

	delta := ev.SignedQuantity()
	p.Status.OpenQuantity += delta
	if p.IsEntry(ev.Action) {
		p.Status.EntryQuantity += delta
		p.Status.EntryOrderQuantity -= delta
	} else {
		p.Status.CoverQuantity += delta
		p.Status.CoverOrderQuantity -= delta
	}
	return nil
}

// StatusSnapshot returns a copy of the status taken under the lock.
func (p *Position) StatusSnapshot() Status {
	p.Mu.Lock()
	defer p.Mu.Unlock()
	return p.Status
}

// Trades returns a copy of the combined entry and cover order lists.
func (p *Position) Trades() []*core.Trade {
	p.Mu.Lock()
	defer p.Mu.Unlock()
	out := make([]*core.Trade, 0, len(p.EntryTrades)+len(p.CoverTrades))
	out = append(out, p.EntryTrades...)
	return append(out, p.CoverTrades...)
}
