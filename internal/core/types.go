package core

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// Action is the order direction.
type Action string

const (
	ActionBuy  Action = "BUY"
	ActionSell Action = "SELL"
)

// ActionFor returns the order direction for a signed quantity.
func ActionFor(quantity int64) Action {
	if quantity > 0 {
		return ActionBuy
	}
	return ActionSell
}

// PriceType selects limit or market execution.
type PriceType string

const (
	PriceTypeLimit  PriceType = "LMT"
	PriceTypeMarket PriceType = "MKT"
)

// TimeInForce is the order validity window. ROD (rest of day) is the only
// validity this engine uses: orders stay live until filled, cancelled, or
// session end.
type TimeInForce string

const TimeInForceROD TimeInForce = "ROD"

// OrderStatus is the broker-side lifecycle state of a single order.
type OrderStatus string

const (
	StatusPreSubmitted OrderStatus = "PreSubmitted"
	StatusSubmitted    OrderStatus = "Submitted"
	StatusPartFilled   OrderStatus = "PartFilled"
	StatusFilled       OrderStatus = "Filled"
	StatusCancelled    OrderStatus = "Cancelled"
	StatusFailed       OrderStatus = "Failed"
)

// Terminal reports whether no further fills or cancels can happen.
func (s OrderStatus) Terminal() bool {
	return s == StatusFilled || s == StatusCancelled || s == StatusFailed
}

// Contract is read-only instrument reference data for one session.
type Contract struct {
	Code      string
	Name      string
	Unit      int64
	Reference decimal.Decimal
	LimitUp   decimal.Decimal
	LimitDown decimal.Decimal
}

// Tick is one market-data event. Indicative ticks come from the pre-open
// auction preview period and never represent a real trade.
type Tick struct {
	Code       string
	Price      decimal.Decimal
	Volume     int64
	Indicative bool
	Time       time.Time
}

// Snapshot holds the last known traded price for an instrument. It has a
// single writer (the tick stream) and tolerates slightly stale reads.
type Snapshot struct {
	Price decimal.Decimal
	Bid   decimal.Decimal
	Ask   decimal.Decimal
}

// PricePoint is one leg of an order plan: a price level with the signed
// quantity to work there. InTransit counts quantity already submitted for
// this leg so a re-triggered leg is never submitted twice;
// |InTransit| <= |Quantity| always.
type PricePoint struct {
	Price     decimal.Decimal
	Quantity  int64
	PriceType PriceType
	InTransit int64
}

// Remaining returns the not-yet-submitted quantity of the leg.
func (p *PricePoint) Remaining() int64 {
	return p.Quantity - p.InTransit
}

// Order is the request sent to the broker. Quantity is always positive;
// direction lives in Action. CustomTag identifies orders owned by this
// engine on a possibly shared broker session.
type Order struct {
	Price       decimal.Decimal
	Quantity    int64
	Action      Action
	PriceType   PriceType
	TimeInForce TimeInForce
	CustomTag   string
}

// SignedQuantity returns the order quantity with the direction folded in.
func (o Order) SignedQuantity() int64 {
	if o.Action == ActionSell {
		return -o.Quantity
	}
	return o.Quantity
}

// Trade is the live handle for one submitted order. The broker (real or
// simulated) mutates its status as confirmations arrive; all access goes
// through the locked accessors.
type Trade struct {
	ID       string
	Seqno    string
	Contract *Contract
	Order    Order

	mu             sync.Mutex
	status         OrderStatus
	dealQuantity   int64
	cancelQuantity int64
}

// NewTrade creates a pending trade handle.
func NewTrade(id, seqno string, contract *Contract, order Order) *Trade {
	return &Trade{
		ID:       id,
		Seqno:    seqno,
		Contract: contract,
		Order:    order,
		status:   StatusPreSubmitted,
	}
}

// Status returns the current lifecycle state.
func (t *Trade) Status() OrderStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

// SetStatus overwrites the lifecycle state.
func (t *Trade) SetStatus(s OrderStatus) {
	t.mu.Lock()
	t.status = s
	t.mu.Unlock()
}

// DealQuantity returns the accumulated filled quantity (unsigned).
func (t *Trade) DealQuantity() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.dealQuantity
}

// AddDealQuantity accumulates a fill and moves the state to PartFilled or
// Filled depending on whether the order is complete.
func (t *Trade) AddDealQuantity(q int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.dealQuantity += q
	if t.dealQuantity >= t.Order.Quantity {
		t.status = StatusFilled
	} else {
		t.status = StatusPartFilled
	}
}

// SetCancelQuantity records the quantity confirmed cancelled.
func (t *Trade) SetCancelQuantity(q int64) {
	t.mu.Lock()
	t.cancelQuantity = q
	t.mu.Unlock()
}

// CancelQuantity returns the quantity confirmed cancelled.
func (t *Trade) CancelQuantity() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cancelQuantity
}
