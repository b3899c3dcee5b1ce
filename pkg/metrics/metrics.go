// Package metrics exposes Prometheus counters for the trading session and
// serves them over HTTP.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// OrdersPlaced counts orders submitted to the broker, by direction
	// and purpose (entry|cover).
	OrdersPlaced = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trader_orders_placed_total",
			Help: "Orders submitted to the broker",
		},
		[]string{"action", "purpose"},
	)

	// CancelsRequested counts cancellation requests sent to the broker.
	CancelsRequested = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "trader_cancels_requested_total",
			Help: "Order cancellations requested",
		},
	)

	// DealsReceived counts fill confirmations, by direction.
	DealsReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trader_deals_received_total",
			Help: "Fill confirmations received",
		},
		[]string{"action"},
	)

	// CoverTriggers counts trigger-driven order submissions, by reason
	// (stop_loss|stop_profit|close_out|re_entry).
	CoverTriggers = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trader_cover_triggers_total",
			Help: "Trigger-driven order submissions by reason",
		},
		[]string{"reason"},
	)

	// EventsDropped counts broker events dropped before any state
	// mutation, by cause (duplicate|foreign_tag|op_code|no_position).
	EventsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trader_events_dropped_total",
			Help: "Broker events dropped without state mutation",
		},
		[]string{"cause"},
	)

	// OpenPositions tracks instruments with a non-flat open quantity.
	OpenPositions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "trader_open_positions",
			Help: "Instruments currently holding a non-flat position",
		},
	)
)
