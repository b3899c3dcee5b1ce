package core

import (
	"time"

	"github.com/shopspring/decimal"
)

// Operation codes reported on order confirmations. Anything other than
// OpCodeOK means the broker rejected or could not perform the operation.
const (
	OpCodeOK          = "00"
	OpCodeTooLate     = "11" // cancel arrived after the order fully filled
	OpCodeUnavailable = "88"
)

// OrderEvent is a broker confirmation. It is a closed set of variants:
// OrderAck, OrderCancelAck, and Deal. Every variant carries the instrument
// code and the engine tag so handlers can ignore events that belong to
// other users of a shared session.
type OrderEvent interface {
	EventCode() string
	EventTag() string
	orderEvent()
}

// OrderAck confirms that the broker accepted a new order.
type OrderAck struct {
	OrderID   string
	Seqno     string
	Code      string
	CustomTag string
	Action    Action
	Price     decimal.Decimal
	Quantity  int64
	OpCode    string
	OpMsg     string
	Time      time.Time
}

// OrderCancelAck confirms a cancellation. CancelQuantity is zero when the
// cancel arrived too late (OpCode "11").
type OrderCancelAck struct {
	OrderID        string
	Seqno          string
	Code           string
	CustomTag      string
	Action         Action
	CancelQuantity int64
	OpCode         string
	OpMsg          string
	Time           time.Time
}

// Deal reports an execution. DealID is unique per fill and is the handle
// for duplicate-delivery detection.
type Deal struct {
	DealID    string
	OrderID   string
	Seqno     string
	Code      string
	CustomTag string
	Action    Action
	Price     decimal.Decimal
	Quantity  int64
	Time      time.Time
}

func (e *OrderAck) EventCode() string       { return e.Code }
func (e *OrderAck) EventTag() string        { return e.CustomTag }
func (e *OrderAck) orderEvent()             {}
func (e *OrderCancelAck) EventCode() string { return e.Code }
func (e *OrderCancelAck) EventTag() string  { return e.CustomTag }
func (e *OrderCancelAck) orderEvent()       {}
func (e *Deal) EventCode() string           { return e.Code }
func (e *Deal) EventTag() string            { return e.CustomTag }
func (e *Deal) orderEvent()                 {}

// SignedQuantity returns the fill quantity signed by direction.
func (e *Deal) SignedQuantity() int64 {
	if e.Action == ActionSell {
		return -e.Quantity
	}
	return e.Quantity
}
