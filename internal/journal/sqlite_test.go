package journal

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"day_trader/internal/core"
	"day_trader/pkg/logging"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestJournal(t *testing.T) *Journal {
	t.Helper()
	j, err := Open(filepath.Join(t.TempDir(), "session.db"), logging.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { j.Close() })
	return j
}

func testTrade(id string) *core.Trade {
	contract := &core.Contract{Code: "1605", Reference: decimal.RequireFromString("39.4")}
	return core.NewTrade(id, "000001", contract, core.Order{
		Price:       decimal.RequireFromString("41.35"),
		Quantity:    1,
		Action:      core.ActionSell,
		PriceType:   core.PriceTypeLimit,
		TimeInForce: core.TimeInForceROD,
		CustomTag:   "dt1",
	})
}

func TestRecordOrder(t *testing.T) {
	j := openTestJournal(t)
	ctx := context.Background()

	require.NoError(t, j.RecordOrder(ctx, testTrade("o1")))
	require.NoError(t, j.RecordOrder(ctx, testTrade("o2")))

	n, err := j.OrderCount(ctx, "1605")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = j.OrderCount(ctx, "9999")
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestRecordDeal(t *testing.T) {
	j := openTestJournal(t)
	ctx := context.Background()

	deal := &core.Deal{
		DealID:   "d1",
		OrderID:  "o1",
		Code:     "1605",
		Action:   core.ActionSell,
		Price:    decimal.RequireFromString("41.35"),
		Quantity: 1,
		Time:     time.Now(),
	}
	require.NoError(t, j.RecordDeal(ctx, deal))

	// Redelivery of the same deal id is absorbed, matching the engine.
	require.NoError(t, j.RecordDeal(ctx, deal))

	n, err := j.DealCount(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestDuplicateOrderIgnored(t *testing.T) {
	j := openTestJournal(t)
	ctx := context.Background()

	require.NoError(t, j.RecordOrder(ctx, testTrade("o1")))
	require.NoError(t, j.RecordOrder(ctx, testTrade("o1")))

	n, err := j.OrderCount(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
