// Package core defines the domain types and collaborator seams for the
// day-trading engine.
package core

// TickHandler consumes one market-data tick.
type TickHandler func(tick *Tick)

// OrderEventHandler consumes one broker confirmation.
type OrderEventHandler func(ev OrderEvent)

// Broker is the session boundary to the brokerage, real or simulated. All
// order operations are fire-and-acknowledge-later: PlaceOrder and
// CancelOrder return before the broker confirms, and confirmations arrive
// on the registered OrderEventHandler.
type Broker interface {
	// Subscribe begins tick delivery for an instrument.
	Subscribe(contract *Contract) error

	// PlaceOrder submits an order and returns its pending trade handle.
	PlaceOrder(contract *Contract, order Order) (*Trade, error)

	// CancelOrder requests cancellation of an outstanding order.
	CancelOrder(trade *Trade) error

	// SetTickHandler installs the consumer of the tick stream.
	SetTickHandler(h TickHandler)

	// SetOrderEventHandler installs the consumer of order confirmations.
	SetOrderEventHandler(h OrderEventHandler)

	// UpdateStatus forces a synchronous reconciliation poll of all
	// outstanding orders, flushing any confirmations the session has not
	// yet delivered.
	UpdateStatus() error
}

// PositionSource provides the desired net positions for the session.
type PositionSource interface {
	// ReadTargetPositions returns instrument code -> signed quantity,
	// failing if the source does not exist.
	ReadTargetPositions(source string) (map[string]int64, error)
}

// ILogger defines the interface for logging
type ILogger interface {
	Debug(msg string, fields ...interface{})
	Info(msg string, fields ...interface{})
	Warn(msg string, fields ...interface{})
	Error(msg string, fields ...interface{})
	Fatal(msg string, fields ...interface{})
	WithField(key string, value interface{}) ILogger
	WithFields(fields map[string]interface{}) ILogger
}
