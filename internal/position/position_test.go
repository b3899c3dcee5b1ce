package position

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"day_trader/internal/core"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testContract() *core.Contract {
	return &core.Contract{
		Code:      "1605",
		Name:      "華新",
		Unit:      1000,
		Reference: decimal.RequireFromString("39.4"),
		LimitUp:   decimal.RequireFromString("43.3"),
		LimitDown: decimal.RequireFromString("35.5"),
	}
}

func shortPosition(quantity int64) *Position {
	return New(testContract(), Cond{Quantity: quantity})
}

func ack(seqno string, action core.Action, quantity int64) *core.OrderAck {
	return &core.OrderAck{
		Seqno:    seqno,
		Code:     "1605",
		Action:   action,
		Quantity: quantity,
		OpCode:   core.OpCodeOK,
		Time:     time.Now(),
	}
}

func deal(id, seqno string, action core.Action, quantity int64) *core.Deal {
	return &core.Deal{
		DealID:   id,
		Seqno:    seqno,
		Code:     "1605",
		Action:   action,
		Price:    decimal.RequireFromString("41.35"),
		Quantity: quantity,
		Time:     time.Now(),
	}
}

func TestShortEntryAckThenFill(t *testing.T) {
	pos := shortPosition(-1)

	require.NoError(t, pos.ApplyOrderAck(ack("000001", core.ActionSell, 1)))
	st := pos.StatusSnapshot()
	assert.Equal(t, int64(-1), st.EntryOrderQuantity)
	assert.Equal(t, int64(0), st.OpenQuantity)

	require.NoError(t, pos.ApplyDeal(deal("d1", "000001", core.ActionSell, 1)))
	st = pos.StatusSnapshot()
	assert.Equal(t, int64(-1), st.OpenQuantity)
	assert.Equal(t, int64(-1), st.EntryQuantity)
	assert.Equal(t, int64(0), st.EntryOrderQuantity, "fill must settle the outstanding entry quantity")
}

func TestCancelRestoresOutstanding(t *testing.T) {
	pos := shortPosition(-3)

	require.NoError(t, pos.ApplyOrderAck(ack("000001", core.ActionSell, 3)))
	require.NoError(t, pos.ApplyCancelAck(&core.OrderCancelAck{
		Seqno:          "000001",
		Code:           "1605",
		Action:         core.ActionSell,
		CancelQuantity: 3,
		OpCode:         core.OpCodeOK,
	}))

	st := pos.StatusSnapshot()
	assert.Equal(t, int64(0), st.EntryOrderQuantity)
	assert.Equal(t, int64(3), st.CancelQuantity)
	assert.Equal(t, int64(0), st.OpenQuantity)
}

func TestTooLateCancelIsNoOp(t *testing.T) {
	pos := shortPosition(-1)

	require.NoError(t, pos.ApplyOrderAck(ack("000001", core.ActionSell, 1)))
	require.NoError(t, pos.ApplyDeal(deal("d1", "000001", core.ActionSell, 1)))
	require.NoError(t, pos.ApplyCancelAck(&core.OrderCancelAck{
		Seqno:          "000001",
		Code:           "1605",
		Action:         core.ActionSell,
		CancelQuantity: 0,
		OpCode:         core.OpCodeTooLate,
	}))

	st := pos.StatusSnapshot()
	assert.Equal(t, int64(0), st.EntryOrderQuantity)
	assert.Equal(t, int64(0), st.CancelQuantity)
	assert.Equal(t, int64(-1), st.OpenQuantity)
}

func TestCoverFillFlattens(t *testing.T) {
	pos := shortPosition(-1)

	require.NoError(t, pos.ApplyOrderAck(ack("000001", core.ActionSell, 1)))
	require.NoError(t, pos.ApplyDeal(deal("d1", "000001", core.ActionSell, 1)))

	// Buying back a short is a cover, not a new entry.
	require.NoError(t, pos.ApplyOrderAck(ack("000002", core.ActionBuy, 1)))
	st := pos.StatusSnapshot()
	assert.Equal(t, int64(1), st.CoverOrderQuantity)

	require.NoError(t, pos.ApplyDeal(deal("d2", "000002", core.ActionBuy, 1)))
	st = pos.StatusSnapshot()
	assert.Equal(t, int64(0), st.OpenQuantity)
	assert.Equal(t, int64(1), st.CoverQuantity)
	assert.Equal(t, int64(0), st.CoverOrderQuantity)
	assert.Equal(t, int64(-1), st.EntryQuantity)
}

func TestPartialFillThenCancelRemainder(t *testing.T) {
	pos := shortPosition(-3)

	require.NoError(t, pos.ApplyOrderAck(ack("000001", core.ActionSell, 3)))
	require.NoError(t, pos.ApplyDeal(deal("d1", "000001", core.ActionSell, 1)))
	st := pos.StatusSnapshot()
	assert.Equal(t, int64(-1), st.OpenQuantity)
	assert.Equal(t, int64(-2), st.EntryOrderQuantity)

	require.NoError(t, pos.ApplyCancelAck(&core.OrderCancelAck{
		Seqno:          "000001",
		Code:           "1605",
		Action:         core.ActionSell,
		CancelQuantity: 2,
		OpCode:         core.OpCodeOK,
	}))
	st = pos.StatusSnapshot()
	assert.Equal(t, int64(0), st.EntryOrderQuantity)
	assert.Equal(t, int64(2), st.CancelQuantity)
	assert.Equal(t, int64(-1), st.OpenQuantity)
}

func TestDuplicateEventsAreDropped(t *testing.T) {
	pos := shortPosition(-1)

	require.NoError(t, pos.ApplyOrderAck(ack("000001", core.ActionSell, 1)))
	assert.ErrorIs(t, pos.ApplyOrderAck(ack("000001", core.ActionSell, 1)), ErrDuplicateEvent)

	require.NoError(t, pos.ApplyDeal(deal("d1", "000001", core.ActionSell, 1)))
	assert.ErrorIs(t, pos.ApplyDeal(deal("d1", "000001", core.ActionSell, 1)), ErrDuplicateEvent)

	st := pos.StatusSnapshot()
	assert.Equal(t, int64(-1), st.OpenQuantity)
	assert.Equal(t, int64(-1), st.EntryQuantity)
	assert.Equal(t, int64(0), st.EntryOrderQuantity)
}

func TestIsEntry(t *testing.T) {
	long := New(testContract(), Cond{Quantity: 2})
	assert.True(t, long.IsEntry(core.ActionBuy))
	assert.False(t, long.IsEntry(core.ActionSell))

	short := New(testContract(), Cond{Quantity: -2})
	assert.True(t, short.IsEntry(core.ActionSell))
	assert.False(t, short.IsEntry(core.ActionBuy))
}

func TestConcurrentDeals(t *testing.T) {
	const n = 100
	pos := New(testContract(), Cond{Quantity: n})
	require.NoError(t, pos.ApplyOrderAck(ack("000001", core.ActionBuy, n)))

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = pos.ApplyDeal(deal(fmt.Sprintf("d%d", i), "000001", core.ActionBuy, 1))
		}(i)
	}
	wg.Wait()

	st := pos.StatusSnapshot()
	assert.Equal(t, int64(n), st.OpenQuantity)
	assert.Equal(t, int64(n), st.EntryQuantity)
	assert.Equal(t, int64(0), st.EntryOrderQuantity)
}

func TestLedger(t *testing.T) {
	l := NewLedger()
	assert.Equal(t, 0, l.Len())

	pos := shortPosition(-1)
	l.Set(pos)

	got, ok := l.Get("1605")
	require.True(t, ok)
	assert.Same(t, pos, got)

	_, ok = l.Get("9999")
	assert.False(t, ok)
	assert.Len(t, l.All(), 1)
}
