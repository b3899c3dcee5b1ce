package trader

import (
	"context"
	"testing"
	"time"

	"day_trader/internal/core"
	"day_trader/internal/sim"
	"day_trader/internal/strategy"
	"day_trader/pkg/concurrency"
	"day_trader/pkg/logging"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func testContracts() map[string]*core.Contract {
	return map[string]*core.Contract{
		"1605": {
			Code: "1605", Name: "華新", Unit: 1000,
			Reference: d("39.4"), LimitUp: d("43.3"), LimitDown: d("35.5"),
		},
		"6290": {
			Code: "6290", Name: "良維", Unit: 1000,
			Reference: d("57.3"), LimitUp: d("63.0"), LimitDown: d("51.6"),
		},
	}
}

type fixture struct {
	trader *Trader
	broker *sim.Broker
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := logging.NewNop()
	pool := concurrency.NewWorkerPool(concurrency.PoolConfig{
		Name: "trader-test", MaxWorkers: 8, MaxCapacity: 256,
	}, logger)
	t.Cleanup(pool.Stop)

	broker := sim.New(pool, logger, sim.WithAckLatency(2*time.Millisecond))
	strat := strategy.NewBasic(strategy.Params{
		EntryPct:      0.05,
		StopLossPct:   0.085,
		StopProfitPct: 0.09,
	}, testContracts(), logger)

	tr := New(broker, strat, strategy.ExtremeCover{}, nil, pool, logger, Config{
		MaxOrderQuantity: 499,
		OrderRate:        1000, // tests should not sit in the limiter
	})
	return &fixture{trader: tr, broker: broker}
}

// settle blocks until every confirmation the sim has scheduled so far is
// delivered and applied.
func (f *fixture) settle(t *testing.T) {
	t.Helper()
	require.NoError(t, f.broker.UpdateStatus())
}

// enter places the entry orders and waits until they are acknowledged
// and resting in the sim book.
func (f *fixture) enter(t *testing.T, targets map[string]int64) {
	t.Helper()
	require.NoError(t, f.trader.PlaceEntryOrders(context.Background(), targets))
	f.settle(t)
}

func TestShortEntryLifecycle(t *testing.T) {
	f := newFixture(t)
	f.enter(t, map[string]int64{"1605": -1})

	pos, ok := f.trader.Ledger().Get("1605")
	require.True(t, ok)
	st := pos.StatusSnapshot()
	assert.Equal(t, int64(-1), st.EntryOrderQuantity, "ack lands before any fill")
	assert.Equal(t, int64(0), st.OpenQuantity)

	// The entry is a sell limit at 41.35; a tick at that price crosses it.
	f.broker.QuoteCallback(&core.Tick{Code: "1605", Price: d("41.35")})
	f.settle(t)

	st = pos.StatusSnapshot()
	assert.Equal(t, int64(-1), st.OpenQuantity)
	assert.Equal(t, int64(-1), st.EntryQuantity)
	assert.Equal(t, int64(0), st.EntryOrderQuantity, "fill settles the outstanding entry")
	assert.Equal(t, int64(0), st.CoverQuantity)
}

func TestStopLossCoversShort(t *testing.T) {
	f := newFixture(t)
	f.enter(t, map[string]int64{"1605": -1})
	pos, _ := f.trader.Ledger().Get("1605")

	f.broker.QuoteCallback(&core.Tick{Code: "1605", Price: d("41.35")})
	f.settle(t)
	require.Equal(t, int64(-1), pos.StatusSnapshot().OpenQuantity)

	f.trader.setPhase(f.trader.intradayHandler)

	// First live tick below the 42.70 stop: no trigger.
	f.broker.QuoteCallback(&core.Tick{Code: "1605", Price: d("42.0")})
	f.settle(t)
	assert.Equal(t, int64(-1), pos.StatusSnapshot().OpenQuantity)

	// Crossing the stop-loss buys the short back at market.
	f.broker.QuoteCallback(&core.Tick{Code: "1605", Price: d("42.7")})
	require.Eventually(t, func() bool {
		st := pos.StatusSnapshot()
		return st.OpenQuantity == 0 && st.CoverQuantity == 1
	}, 2*time.Second, 2*time.Millisecond)

	// A further adverse tick must not double-cover.
	f.broker.QuoteCallback(&core.Tick{Code: "1605", Price: d("43.0")})
	f.settle(t)
	assert.Equal(t, int64(0), pos.StatusSnapshot().OpenQuantity)
	assert.Equal(t, int64(1), pos.StatusSnapshot().CoverQuantity)
}

func TestStopProfitCoversLong(t *testing.T) {
	f := newFixture(t)
	f.enter(t, map[string]int64{"1605": 2})
	pos, _ := f.trader.Ledger().Get("1605")

	// Long entry is a buy limit at 37.45; a lower tick crosses it.
	f.broker.QuoteCallback(&core.Tick{Code: "1605", Price: d("37.4")})
	f.settle(t)
	require.Equal(t, int64(2), pos.StatusSnapshot().OpenQuantity)

	f.trader.setPhase(f.trader.intradayHandler)

	// Stop-profit for the long sits at 42.90.
	f.broker.QuoteCallback(&core.Tick{Code: "1605", Price: d("42.9")})
	require.Eventually(t, func() bool {
		st := pos.StatusSnapshot()
		return st.OpenQuantity == 0 && st.CoverQuantity == -2
	}, 2*time.Second, 2*time.Millisecond)
}

func TestPreOpenCancelAndReEntry(t *testing.T) {
	f := newFixture(t)
	f.enter(t, map[string]int64{"1605": -1})
	pos, _ := f.trader.Ledger().Get("1605")

	// Indicative price pinned at limit-up: the short entry is pulled.
	f.broker.QuoteCallback(&core.Tick{Code: "1605", Price: d("43.3"), Indicative: true})
	f.settle(t)

	st := pos.StatusSnapshot()
	require.True(t, st.CancelPreorder)
	assert.Equal(t, int64(0), st.EntryOrderQuantity)
	assert.Equal(t, int64(1), st.CancelQuantity)

	// The open prints below the stop-loss: safe, so the short re-enters at
	// market and fills at the opening price.
	f.trader.setPhase(f.trader.intradayHandler)
	f.broker.QuoteCallback(&core.Tick{Code: "1605", Price: d("41.0")})
	require.Eventually(t, func() bool {
		st := pos.StatusSnapshot()
		return st.OpenQuantity == -1 && st.EntryQuantity == -1
	}, 2*time.Second, 2*time.Millisecond)
}

func TestPreOpenCancelNoReEntryWhenUnsafe(t *testing.T) {
	f := newFixture(t)
	f.enter(t, map[string]int64{"1605": -1})
	pos, _ := f.trader.Ledger().Get("1605")

	f.broker.QuoteCallback(&core.Tick{Code: "1605", Price: d("43.3"), Indicative: true})
	f.settle(t)
	require.True(t, pos.StatusSnapshot().CancelPreorder)

	// The open prints at the stop-loss: entering would stop straight out.
	f.trader.setPhase(f.trader.intradayHandler)
	f.broker.QuoteCallback(&core.Tick{Code: "1605", Price: d("42.7")})
	f.settle(t)
	assert.Equal(t, int64(0), pos.StatusSnapshot().OpenQuantity)
	assert.Equal(t, int64(0), pos.StatusSnapshot().EntryQuantity)
}

func TestCloseOutFlattensRemainder(t *testing.T) {
	f := newFixture(t)
	f.enter(t, map[string]int64{"6290": 2})
	pos, _ := f.trader.Ledger().Get("6290")

	// Long entry at 54.45 fills on a crossing tick.
	f.broker.QuoteCallback(&core.Tick{Code: "6290", Price: d("54.4")})
	f.settle(t)
	require.Equal(t, int64(2), pos.StatusSnapshot().OpenQuantity)

	require.NoError(t, f.trader.CloseOut(context.Background()))
	f.settle(t)

	// ExtremeCover parks a sell at limit-down; it executes on the next tick.
	f.broker.QuoteCallback(&core.Tick{Code: "6290", Price: d("54.0")})
	f.settle(t)

	st := pos.StatusSnapshot()
	assert.Equal(t, int64(0), st.OpenQuantity)
	assert.Equal(t, int64(-2), st.CoverQuantity)
}

func TestCloseOutCancelsUnfilledEntry(t *testing.T) {
	f := newFixture(t)
	f.enter(t, map[string]int64{"1605": -2})
	pos, _ := f.trader.Ledger().Get("1605")
	require.Equal(t, int64(-2), pos.StatusSnapshot().EntryOrderQuantity)

	// No tick ever crossed the entry, so close-out only needs to cancel it.
	require.NoError(t, f.trader.CloseOut(context.Background()))

	st := pos.StatusSnapshot()
	assert.Equal(t, int64(0), st.EntryOrderQuantity)
	assert.Equal(t, int64(2), st.CancelQuantity)
	assert.Equal(t, int64(0), st.OpenQuantity)

	pos.Mu.Lock()
	defer pos.Mu.Unlock()
	assert.Empty(t, pos.Cond.CoverPrices, "nothing open, nothing to cover")
}

func TestForeignTagEventIgnored(t *testing.T) {
	f := newFixture(t)
	f.enter(t, map[string]int64{"1605": -1})
	pos, _ := f.trader.Ledger().Get("1605")

	before := pos.StatusSnapshot()
	f.trader.HandleOrderEvent(&core.Deal{
		DealID:    "foreign-1",
		Code:      "1605",
		CustomTag: "someone_else",
		Action:    core.ActionSell,
		Price:     d("41.35"),
		Quantity:  5,
	})
	assert.Equal(t, before, pos.StatusSnapshot())
}

func TestDuplicateDealAppliedOnce(t *testing.T) {
	f := newFixture(t)
	f.enter(t, map[string]int64{"1605": -1})
	pos, _ := f.trader.Ledger().Get("1605")

	dup := &core.Deal{
		DealID:    "d-dup",
		Seqno:     "sim-replay",
		Code:      "1605",
		CustomTag: "dt1",
		Action:    core.ActionSell,
		Price:     d("41.35"),
		Quantity:  1,
	}
	f.trader.HandleOrderEvent(dup)
	f.trader.HandleOrderEvent(dup)

	st := pos.StatusSnapshot()
	assert.Equal(t, int64(-1), st.OpenQuantity)
	assert.Equal(t, int64(-1), st.EntryQuantity)
}

func TestEntrySplitsLargeQuantity(t *testing.T) {
	f := newFixture(t)
	f.enter(t, map[string]int64{"1605": -1024})
	pos, _ := f.trader.Ledger().Get("1605")

	require.Equal(t, int64(-1024), pos.StatusSnapshot().EntryOrderQuantity)

	pos.Mu.Lock()
	defer pos.Mu.Unlock()
	require.Len(t, pos.EntryTrades, 3)
	assert.Equal(t, int64(499), pos.EntryTrades[0].Order.Quantity)
	assert.Equal(t, int64(499), pos.EntryTrades[1].Order.Quantity)
	assert.Equal(t, int64(26), pos.EntryTrades[2].Order.Quantity)
	for _, trade := range pos.EntryTrades {
		assert.Equal(t, core.ActionSell, trade.Order.Action)
	}
}
