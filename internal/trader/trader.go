// Package trader orchestrates one trading day: entry placement before
// the open, pre-open cancellation and re-entry, intraday stop
// monitoring, and the forced close-out. All broker confirmations funnel
// through a single handler that drives the position state machine; tick
// handling is phase-dependent and swapped atomically as the session
// advances.
package trader

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"day_trader/internal/core"
	"day_trader/internal/journal"
	"day_trader/internal/position"
	"day_trader/internal/quant"
	"day_trader/internal/strategy"
	"day_trader/pkg/concurrency"
	"day_trader/pkg/metrics"

	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"
)

// Config holds the session schedule and order-placement limits. Zero
// phase times mean "run that phase immediately".
type Config struct {
	EntryTime time.Time
	OpenTime  time.Time
	CoverTime time.Time
	CloseTime time.Time

	// MaxOrderQuantity is the venue's per-order size cap; larger legs
	// are split into chunks below it.
	MaxOrderQuantity int64

	// OrderRate is the sustained order submission rate per second.
	OrderRate float64
}

// Trader runs the day session for a set of target positions.
type Trader struct {
	broker   core.Broker
	strategy *strategy.Basic
	cover    strategy.CoverPolicy
	ledger   *position.Ledger
	journal  *journal.Journal
	pool     *concurrency.WorkerPool
	limiter  *rate.Limiter
	logger   core.ILogger
	cfg      Config
	tag      string

	snapMu    sync.Mutex
	snapshots map[string]*core.Snapshot
	openPrice map[string]decimal.Decimal

	phase atomic.Value // core.TickHandler for the current session phase
}

// New wires a trader to its broker. The journal may be nil when
// persistence is disabled.
func New(broker core.Broker, strat *strategy.Basic, cover strategy.CoverPolicy,
	jnl *journal.Journal, pool *concurrency.WorkerPool, logger core.ILogger, cfg Config) *Trader {
	if cfg.MaxOrderQuantity <= 0 {
		cfg.MaxOrderQuantity = 499
	}
	if cfg.OrderRate <= 0 {
		cfg.OrderRate = 4
	}
	t := &Trader{
		broker:    broker,
		strategy:  strat,
		cover:     cover,
		ledger:    position.NewLedger(),
		journal:   jnl,
		pool:      pool,
		limiter:   rate.NewLimiter(rate.Limit(cfg.OrderRate), int(cfg.OrderRate)+1),
		logger:    logger.WithField("component", "trader"),
		cfg:       cfg,
		tag:       strat.Name(),
		snapshots: make(map[string]*core.Snapshot),
		openPrice: make(map[string]decimal.Decimal),
	}
	t.setPhase(func(*core.Tick) {})
	broker.SetTickHandler(t.HandleTick)
	broker.SetOrderEventHandler(t.HandleOrderEvent)
	return t
}

// Ledger exposes the position book for reporting and tests.
func (t *Trader) Ledger() *position.Ledger { return t.ledger }

func (t *Trader) setPhase(h core.TickHandler) {
	t.phase.Store(h)
}

// HandleTick records the latest traded price and forwards the tick to
// the handler of the current session phase.
func (t *Trader) HandleTick(tick *core.Tick) {
	if !tick.Indicative {
		t.snapMu.Lock()
		if snap, ok := t.snapshots[tick.Code]; ok {
			snap.Price = tick.Price
		} else {
			t.snapshots[tick.Code] = &core.Snapshot{Price: tick.Price}
		}
		t.snapMu.Unlock()
	}
	if h, ok := t.phase.Load().(core.TickHandler); ok {
		h(tick)
	}
}

func (t *Trader) snapshot(code string) *core.Snapshot {
	t.snapMu.Lock()
	defer t.snapMu.Unlock()
	if snap, ok := t.snapshots[code]; ok {
		copied := *snap
		return &copied
	}
	return nil
}

// PlaceEntryOrders computes the session plan for every target, registers
// the positions, subscribes their feeds, and works the entry legs. It
// leaves the trader in the pre-open phase, watching for the cancel
// window.
func (t *Trader) PlaceEntryOrders(ctx context.Context, targets map[string]int64) error {
	plans := t.strategy.EntryPositions(targets)
	if len(plans) == 0 {
		return fmt.Errorf("no tradable targets among %d entries", len(targets))
	}

	for _, plan := range plans {
		pos := position.New(plan.Contract, position.Cond{
			Quantity:         plan.Quantity,
			EntryPrices:      plan.Entry,
			StopLossPrices:   plan.StopLoss,
			StopProfitPrices: plan.StopProfit,
		})
		t.ledger.Set(pos)
		if err := t.broker.Subscribe(plan.Contract); err != nil {
			t.logger.Error("Subscribe failed", "code", plan.Contract.Code, "error", err)
		}
	}
	t.setPhase(t.preOpenHandler)

	for _, pos := range t.ledger.All() {
		for _, point := range pos.Cond.EntryPrices {
			qty := t.claim(pos, point)
			if qty == 0 {
				continue
			}
			if err := t.placeOrders(ctx, pos, point, qty, "entry"); err != nil {
				return fmt.Errorf("entry for %s: %w", pos.Contract.Code, err)
			}
		}
	}
	t.logger.Info("Entry orders placed", "positions", t.ledger.Len())
	return nil
}

// claim reserves the unsubmitted remainder of a leg under the position
// lock, so concurrent triggers never submit the same quantity twice.
func (t *Trader) claim(pos *position.Position, point *core.PricePoint) int64 {
	pos.Mu.Lock()
	defer pos.Mu.Unlock()
	qty := point.Remaining()
	point.InTransit += qty
	return qty
}

// placeOrders submits a claimed signed quantity against a leg, split
// into venue-sized chunks under the rate limit. On a placement failure
// the unplaced remainder is released back to the leg.
func (t *Trader) placeOrders(ctx context.Context, pos *position.Position, point *core.PricePoint, quantity int64, purpose string) error {
	placed := int64(0)
	for _, chunk := range quant.SplitByThreshold(quantity, t.cfg.MaxOrderQuantity) {
		if err := t.limiter.Wait(ctx); err != nil {
			t.release(pos, point, quantity-placed)
			return err
		}

		action := core.ActionFor(chunk)
		size := chunk
		if size < 0 {
			size = -size
		}
		order := core.Order{
			Price:       point.Price,
			Quantity:    size,
			Action:      action,
			PriceType:   point.PriceType,
			TimeInForce: core.TimeInForceROD,
			CustomTag:   t.tag,
		}

		trade, err := t.broker.PlaceOrder(pos.Contract, order)
		if err != nil {
			t.release(pos, point, quantity-placed)
			return fmt.Errorf("place %s %s x%d: %w", action, pos.Contract.Code, size, err)
		}
		placed += chunk

		pos.Mu.Lock()
		if pos.IsEntry(action) {
			pos.EntryTrades = append(pos.EntryTrades, trade)
		} else {
			pos.CoverTrades = append(pos.CoverTrades, trade)
		}
		pos.Mu.Unlock()

		metrics.OrdersPlaced.WithLabelValues(string(action), purpose).Inc()
		t.journalOrder(trade)
		t.logger.Info("Order placed",
			"code", pos.Contract.Code, "action", string(action),
			"price", point.Price.String(), "quantity", size,
			"price_type", string(order.PriceType), "purpose", purpose)
	}
	return nil
}

func (t *Trader) release(pos *position.Position, point *core.PricePoint, unplaced int64) {
	pos.Mu.Lock()
	point.InTransit -= unplaced
	pos.Mu.Unlock()
}

func (t *Trader) cancelTrade(trade *core.Trade) {
	if err := t.broker.CancelOrder(trade); err != nil {
		t.logger.Error("Cancel request failed",
			"code", trade.Contract.Code, "order_id", trade.ID, "error", err)
		return
	}
	metrics.CancelsRequested.Inc()
	t.logger.Info("Cancel requested", "code", trade.Contract.Code, "order_id", trade.ID)
}

// preOpenHandler watches the pre-open auction previews. A short target
// whose indicative price pins at limit-up cannot be opened at an
// acceptable price, so its resting entry orders are pulled before the
// auction can match them.
func (t *Trader) preOpenHandler(tick *core.Tick) {
	if !tick.Indicative {
		return
	}
	pos, ok := t.ledger.Get(tick.Code)
	if !ok || pos.Cond.Quantity >= 0 {
		return
	}
	if !tick.Price.Equal(pos.Contract.LimitUp) {
		return
	}

	pos.Mu.Lock()
	if pos.Status.CancelPreorder {
		pos.Mu.Unlock()
		return
	}
	pos.Status.CancelPreorder = true
	trades := append([]*core.Trade(nil), pos.EntryTrades...)
	pos.Mu.Unlock()

	t.logger.Warn("Pre-open price at limit-up, pulling short entry",
		"code", tick.Code, "price", tick.Price.String())
	for _, trade := range trades {
		if trade.Status().Terminal() {
			continue
		}
		t.cancelTrade(trade)
	}
}

// intradayHandler monitors live ticks: it re-enters a position whose
// pre-open orders were pulled when the open proves safe, and fires the
// stop legs when price crosses them.
func (t *Trader) intradayHandler(tick *core.Tick) {
	if tick.Indicative {
		return
	}
	pos, ok := t.ledger.Get(tick.Code)
	if !ok {
		return
	}

	t.snapMu.Lock()
	_, seen := t.openPrice[tick.Code]
	if !seen {
		t.openPrice[tick.Code] = tick.Price
	}
	t.snapMu.Unlock()
	if !seen {
		t.reEntry(pos, tick)
	}

	t.checkStops(pos, tick)
}

// reEntry runs once, on the instrument's first real trade. A position
// whose entry was pulled during the pre-open window is re-entered at
// market if the opening price is still on the safe side of its
// stop-loss.
func (t *Trader) reEntry(pos *position.Position, tick *core.Tick) {
	pos.Mu.Lock()
	if !pos.Status.CancelPreorder || len(pos.Cond.StopLossPrices) == 0 {
		pos.Mu.Unlock()
		return
	}
	stopLoss := pos.Cond.StopLossPrices[0].Price
	safe := tick.Price.LessThan(stopLoss)
	if pos.Cond.Quantity > 0 {
		safe = tick.Price.GreaterThan(stopLoss)
	}
	remaining := pos.Cond.Quantity - pos.Status.EntryOrderQuantity - pos.Status.EntryQuantity
	if !safe || remaining == 0 {
		pos.Mu.Unlock()
		return
	}
	point := &core.PricePoint{
		Price:     tick.Price,
		Quantity:  remaining,
		PriceType: core.PriceTypeMarket,
		InTransit: remaining,
	}
	pos.Cond.EntryPrices = append(pos.Cond.EntryPrices, point)
	pos.Mu.Unlock()

	metrics.CoverTriggers.WithLabelValues("re_entry").Inc()
	t.logger.Info("Re-entering after pre-open cancel",
		"code", pos.Contract.Code, "open", tick.Price.String(), "quantity", remaining)
	t.submitAsync(pos, point, remaining, "entry")
}

// checkStops fires a stop leg when the tick crosses it. The flatten
// quantity is derived from what entry has filled minus what cover has
// already been submitted, so a re-crossing tick while confirmations are
// still in flight never double-covers.
func (t *Trader) checkStops(pos *position.Position, tick *core.Tick) {
	short := pos.Cond.Quantity < 0

	pos.Mu.Lock()
	reason := ""
	var triggered *core.PricePoint
	for _, p := range pos.Cond.StopLossPrices {
		if crossed(tick.Price, p.Price, short) && p.Remaining() != 0 {
			reason, triggered = "stop_loss", p
		}
	}
	if triggered == nil {
		for _, p := range pos.Cond.StopProfitPrices {
			if crossed(tick.Price, p.Price, !short) && p.Remaining() != 0 {
				reason, triggered = "stop_profit", p
			}
		}
	}
	if triggered == nil {
		pos.Mu.Unlock()
		return
	}

	submittedCover := int64(0)
	for _, cp := range pos.Cond.CoverPrices {
		submittedCover += cp.InTransit
	}
	flatten := -(pos.Status.EntryQuantity + submittedCover)
	if flatten == 0 {
		pos.Mu.Unlock()
		return
	}
	triggered.InTransit += flatten
	point := &core.PricePoint{
		Price:     tick.Price,
		Quantity:  flatten,
		PriceType: core.PriceTypeMarket,
		InTransit: flatten,
	}
	pos.Cond.CoverPrices = append(pos.Cond.CoverPrices, point)
	entryTrades := append([]*core.Trade(nil), pos.EntryTrades...)
	pos.Mu.Unlock()

	metrics.CoverTriggers.WithLabelValues(reason).Inc()
	t.logger.Warn("Stop triggered",
		"code", pos.Contract.Code, "reason", reason,
		"price", tick.Price.String(), "quantity", flatten)

	for _, trade := range entryTrades {
		if trade.Status().Terminal() {
			continue
		}
		t.cancelTrade(trade)
	}
	t.submitAsync(pos, point, flatten, "cover")
}

// crossed reports whether price has reached a trigger that sits above
// (short positions stop out upward) or below it.
func crossed(price, trigger decimal.Decimal, above bool) bool {
	if above {
		return price.GreaterThanOrEqual(trigger)
	}
	return price.LessThanOrEqual(trigger)
}

// submitAsync moves a claimed placement off the tick path; the rate
// limiter may block and tick handlers must not.
func (t *Trader) submitAsync(pos *position.Position, point *core.PricePoint, quantity int64, purpose string) {
	if err := t.pool.Submit(func() {
		if err := t.placeOrders(context.Background(), pos, point, quantity, purpose); err != nil {
			t.logger.Error("Order placement failed",
				"code", pos.Contract.Code, "purpose", purpose, "error", err)
		}
	}); err != nil {
		t.release(pos, point, quantity)
		t.logger.Error("Order placement rejected by pool",
			"code", pos.Contract.Code, "purpose", purpose, "error", err)
	}
}

// HandleOrderEvent drives the position state machine from broker
// confirmations. Events for other tags, unknown instruments, failed
// operations, and duplicates are dropped before any counter moves.
func (t *Trader) HandleOrderEvent(ev core.OrderEvent) {
	if ev.EventTag() != t.tag {
		metrics.EventsDropped.WithLabelValues("foreign_tag").Inc()
		t.logger.Debug("Ignoring event for foreign tag", "tag", ev.EventTag(), "code", ev.EventCode())
		return
	}
	pos, ok := t.ledger.Get(ev.EventCode())
	if !ok {
		metrics.EventsDropped.WithLabelValues("no_position").Inc()
		t.logger.Error("Confirmation for untracked instrument", "code", ev.EventCode())
		return
	}

	var err error
	switch e := ev.(type) {
	case *core.OrderAck:
		if e.OpCode != core.OpCodeOK {
			metrics.EventsDropped.WithLabelValues("op_code").Inc()
			t.logger.Error("Order rejected",
				"code", e.Code, "seqno", e.Seqno, "op_code", e.OpCode, "op_msg", e.OpMsg)
			t.failTrade(pos, e.Seqno)
			return
		}
		err = pos.ApplyOrderAck(e)

	case *core.OrderCancelAck:
		if e.OpCode != core.OpCodeOK && e.OpCode != core.OpCodeTooLate {
			metrics.EventsDropped.WithLabelValues("op_code").Inc()
			t.logger.Error("Cancel rejected",
				"code", e.Code, "seqno", e.Seqno, "op_code", e.OpCode, "op_msg", e.OpMsg)
			return
		}
		err = pos.ApplyCancelAck(e)

	case *core.Deal:
		err = pos.ApplyDeal(e)
		if err == nil {
			metrics.DealsReceived.WithLabelValues(string(e.Action)).Inc()
			t.journalDeal(e)
			t.updateOpenGauge()
			t.logger.Info("Deal",
				"code", e.Code, "action", string(e.Action),
				"price", e.Price.String(), "quantity", e.Quantity)
		}

	default:
		t.logger.Error("Unknown order event", "code", ev.EventCode())
		return
	}

	if err == position.ErrDuplicateEvent {
		metrics.EventsDropped.WithLabelValues("duplicate").Inc()
		t.logger.Debug("Dropped duplicate confirmation", "code", ev.EventCode())
	} else if err != nil {
		t.logger.Error("Failed to apply confirmation", "code", ev.EventCode(), "error", err)
	}
}

func (t *Trader) failTrade(pos *position.Position, seqno string) {
	for _, trade := range pos.Trades() {
		if trade.Seqno == seqno {
			trade.SetStatus(core.StatusFailed)
			return
		}
	}
}

func (t *Trader) updateOpenGauge() {
	open := 0
	for _, pos := range t.ledger.All() {
		if pos.StatusSnapshot().OpenQuantity != 0 {
			open++
		}
	}
	metrics.OpenPositions.Set(float64(open))
}

func (t *Trader) journalOrder(trade *core.Trade) {
	if t.journal == nil {
		return
	}
	if err := t.pool.Submit(func() {
		if err := t.journal.RecordOrder(context.Background(), trade); err != nil {
			t.logger.Error("Journal order write failed", "order_id", trade.ID, "error", err)
		}
	}); err != nil {
		t.logger.Error("Journal order write rejected by pool", "order_id", trade.ID, "error", err)
	}
}

func (t *Trader) journalDeal(deal *core.Deal) {
	if t.journal == nil {
		return
	}
	if err := t.pool.Submit(func() {
		if err := t.journal.RecordDeal(context.Background(), deal); err != nil {
			t.logger.Error("Journal deal write failed", "deal_id", deal.DealID, "error", err)
		}
	}); err != nil {
		t.logger.Error("Journal deal write rejected by pool", "deal_id", deal.DealID, "error", err)
	}
}
