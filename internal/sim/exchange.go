// Package sim is the broker substitute for dry-run and tests. It
// reproduces the real session's two-stage asynchronous contract: an
// order is acknowledged first and filled later, with every confirmation
// delivered from a bounded worker pool rather than the calling
// goroutine. Market orders fill at the latest snapshot price; limit
// orders rest in a per-instrument book and fill when a tick crosses
// them. This models price-crossing execution only, not book depth or
// queue priority.
package sim

import (
	"fmt"
	"sync"
	"time"

	"day_trader/internal/core"
	"day_trader/pkg/concurrency"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Broker implements core.Broker against an in-memory book.
type Broker struct {
	pool       *concurrency.WorkerPool
	logger     core.ILogger
	ackLatency time.Duration

	mu         sync.Mutex
	snapshots  map[string]*core.Snapshot
	resting    map[string]map[string]*core.Trade // code -> trade id -> trade
	subscribed map[string]bool
	seqno      int64

	handlerMu    sync.RWMutex
	tickHandler  core.TickHandler
	orderHandler core.OrderEventHandler

	inflight sync.WaitGroup
}

var _ core.Broker = (*Broker)(nil)

// Option configures the simulated broker.
type Option func(*Broker)

// WithAckLatency sets the simulated network/exchange delay before each
// acknowledgment.
func WithAckLatency(d time.Duration) Option {
	return func(b *Broker) { b.ackLatency = d }
}

// New creates a simulated broker delivering callbacks on the given pool.
func New(pool *concurrency.WorkerPool, logger core.ILogger, opts ...Option) *Broker {
	b := &Broker{
		pool:       pool,
		logger:     logger.WithField("component", "sim_broker"),
		ackLatency: 50 * time.Millisecond,
		snapshots:  make(map[string]*core.Snapshot),
		resting:    make(map[string]map[string]*core.Trade),
		subscribed: make(map[string]bool),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscribe begins tick delivery for an instrument. The simulated feed
// is whatever the caller pushes through QuoteCallback, so this only
// records interest.
func (b *Broker) Subscribe(contract *core.Contract) error {
	b.mu.Lock()
	b.subscribed[contract.Code] = true
	b.mu.Unlock()
	return nil
}

// SetTickHandler installs the consumer of the tick stream.
func (b *Broker) SetTickHandler(h core.TickHandler) {
	b.handlerMu.Lock()
	b.tickHandler = h
	b.handlerMu.Unlock()
}

// SetOrderEventHandler installs the consumer of order confirmations.
func (b *Broker) SetOrderEventHandler(h core.OrderEventHandler) {
	b.handlerMu.Lock()
	b.orderHandler = h
	b.handlerMu.Unlock()
}

func (b *Broker) emit(ev core.OrderEvent) {
	b.handlerMu.RLock()
	h := b.orderHandler
	b.handlerMu.RUnlock()
	if h != nil {
		h(ev)
	}
}

// PlaceOrder returns a pending trade handle immediately and confirms it
// asynchronously: ack first, then for market orders a fill at the latest
// snapshot price (the limit price when no tick has been seen yet), for
// limit orders a slot in the resting book. Ack and fill for one order
// are emitted from a single pool task, which preserves per-order
// submission order without promising anything across instruments.
func (b *Broker) PlaceOrder(contract *core.Contract, order core.Order) (*core.Trade, error) {
	b.mu.Lock()
	b.seqno++
	seqno := fmt.Sprintf("%06d", b.seqno)
	b.mu.Unlock()

	trade := core.NewTrade(uuid.NewString(), seqno, contract, order)

	b.inflight.Add(1)
	if err := b.pool.Submit(func() {
		defer b.inflight.Done()
		b.confirmOrder(trade)
	}); err != nil {
		b.inflight.Done()
		return nil, err
	}
	return trade, nil
}

func (b *Broker) confirmOrder(trade *core.Trade) {
	time.Sleep(b.ackLatency)

	if trade.Status() == core.StatusPreSubmitted {
		trade.SetStatus(core.StatusSubmitted)
	}
	b.emit(&core.OrderAck{
		OrderID:   trade.ID,
		Seqno:     trade.Seqno,
		Code:      trade.Contract.Code,
		CustomTag: trade.Order.CustomTag,
		Action:    trade.Order.Action,
		Price:     trade.Order.Price,
		Quantity:  trade.Order.Quantity,
		OpCode:    core.OpCodeOK,
		Time:      time.Now(),
	})

	time.Sleep(b.ackLatency / 5)
	if trade.Status() == core.StatusCancelled {
		return
	}

	if trade.Order.PriceType == core.PriceTypeMarket {
		b.mu.Lock()
		price := trade.Order.Price
		if snap, ok := b.snapshots[trade.Contract.Code]; ok {
			price = snap.Price
		}
		b.mu.Unlock()
		b.fill(trade, trade.Order.Quantity, price)
		return
	}

	b.mu.Lock()
	book, ok := b.resting[trade.Contract.Code]
	if !ok {
		book = make(map[string]*core.Trade)
		b.resting[trade.Contract.Code] = book
	}
	book[trade.ID] = trade
	b.mu.Unlock()
}

func (b *Broker) fill(trade *core.Trade, quantity int64, price decimal.Decimal) {
	trade.AddDealQuantity(quantity)
	b.emit(&core.Deal{
		DealID:    uuid.NewString(),
		OrderID:   trade.ID,
		Seqno:     trade.Seqno,
		Code:      trade.Contract.Code,
		CustomTag: trade.Order.CustomTag,
		Action:    trade.Order.Action,
		Price:     price,
		Quantity:  quantity,
		Time:      time.Now(),
	})
}

// CancelOrder acknowledges asynchronously. An order that already filled
// gets a too-late acknowledgment with zero cancelled quantity.
func (b *Broker) CancelOrder(trade *core.Trade) error {
	b.inflight.Add(1)
	if err := b.pool.Submit(func() {
		defer b.inflight.Done()
		b.confirmCancel(trade)
	}); err != nil {
		b.inflight.Done()
		return err
	}
	return nil
}

func (b *Broker) confirmCancel(trade *core.Trade) {
	time.Sleep(b.ackLatency)

	ack := &core.OrderCancelAck{
		OrderID:   trade.ID,
		Seqno:     trade.Seqno,
		Code:      trade.Contract.Code,
		CustomTag: trade.Order.CustomTag,
		Action:    trade.Order.Action,
		Time:      time.Now(),
	}

	if trade.Status() == core.StatusFilled {
		ack.OpCode = core.OpCodeTooLate
		ack.CancelQuantity = 0
		b.emit(ack)
		return
	}

	b.mu.Lock()
	if book, ok := b.resting[trade.Contract.Code]; ok {
		delete(book, trade.ID)
		if len(book) == 0 {
			delete(b.resting, trade.Contract.Code)
		}
	}
	b.mu.Unlock()

	remaining := trade.Order.Quantity - trade.DealQuantity()
	trade.SetCancelQuantity(remaining)
	trade.SetStatus(core.StatusCancelled)

	ack.OpCode = core.OpCodeOK
	ack.CancelQuantity = remaining
	b.emit(ack)
}

// QuoteCallback is the market-data feed-through: callers push every tick
// here. Non-indicative ticks update the price snapshot and execute any
// resting limit order the tick crosses, at the tick price. The tick is
// then forwarded to the installed tick handler.
func (b *Broker) QuoteCallback(tick *core.Tick) {
	if !tick.Indicative {
		b.mu.Lock()
		if snap, ok := b.snapshots[tick.Code]; ok {
			snap.Price = tick.Price
		} else {
			b.snapshots[tick.Code] = &core.Snapshot{Price: tick.Price}
		}

		var crossed []*core.Trade
		if book, ok := b.resting[tick.Code]; ok {
			for id, trade := range book {
				buyCross := trade.Order.Action == core.ActionBuy && tick.Price.LessThanOrEqual(trade.Order.Price)
				sellCross := trade.Order.Action == core.ActionSell && tick.Price.GreaterThanOrEqual(trade.Order.Price)
				if buyCross || sellCross {
					crossed = append(crossed, trade)
					delete(book, id)
				}
			}
			if len(book) == 0 {
				delete(b.resting, tick.Code)
			}
		}
		b.mu.Unlock()

		for _, trade := range crossed {
			trade := trade
			b.inflight.Add(1)
			if err := b.pool.Submit(func() {
				defer b.inflight.Done()
				b.fill(trade, trade.Order.Quantity-trade.DealQuantity(), tick.Price)
			}); err != nil {
				b.inflight.Done()
				b.logger.Error("Failed to schedule resting-order fill", "code", tick.Code, "error", err)
			}
		}
	}

	b.handlerMu.RLock()
	h := b.tickHandler
	b.handlerMu.RUnlock()
	if h != nil {
		h(tick)
	}
}

// Snapshot returns the latest known price for a code, or nil.
func (b *Broker) Snapshot(code string) *core.Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	if snap, ok := b.snapshots[code]; ok {
		copied := *snap
		return &copied
	}
	return nil
}

// UpdateStatus blocks until every confirmation already scheduled has
// been delivered, giving callers a synchronous reconciliation point
// before close-out accounting.
func (b *Broker) UpdateStatus() error {
	b.inflight.Wait()
	return nil
}
