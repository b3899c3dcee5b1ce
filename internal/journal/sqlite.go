// Package journal persists the day's order flow to SQLite so a session
// can be audited after the fact. It is write-mostly: the trading path
// records orders and deals as they happen, and the read side exists for
// post-session reporting and tests.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"day_trader/internal/core"

	_ "github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS orders (
	order_id    TEXT PRIMARY KEY,
	seqno       TEXT NOT NULL,
	code        TEXT NOT NULL,
	tag         TEXT NOT NULL,
	action      TEXT NOT NULL,
	price_type  TEXT NOT NULL,
	price       TEXT NOT NULL,
	quantity    INTEGER NOT NULL,
	placed_at   TIMESTAMP NOT NULL
);
CREATE TABLE IF NOT EXISTS deals (
	deal_id     TEXT PRIMARY KEY,
	order_id    TEXT NOT NULL,
	code        TEXT NOT NULL,
	action      TEXT NOT NULL,
	price       TEXT NOT NULL,
	quantity    INTEGER NOT NULL,
	dealt_at    TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_orders_code ON orders(code);
CREATE INDEX IF NOT EXISTS idx_deals_code ON deals(code);
`

// Journal is a SQLite-backed order and deal log.
type Journal struct {
	db     *sql.DB
	logger core.ILogger
}

// Open creates or opens the journal database at path. WAL mode keeps the
// writer from blocking the read side during the session.
func Open(path string, logger core.ILogger) (*Journal, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open journal %q: %w", path, err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL on %q: %w", path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create journal schema: %w", err)
	}
	return &Journal{db: db, logger: logger.WithField("component", "journal")}, nil
}

// RecordOrder writes one placed order.
func (j *Journal) RecordOrder(ctx context.Context, trade *core.Trade) error {
	_, err := j.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO orders
		 (order_id, seqno, code, tag, action, price_type, price, quantity, placed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		trade.ID, trade.Seqno, trade.Contract.Code, trade.Order.CustomTag,
		string(trade.Order.Action), string(trade.Order.PriceType),
		trade.Order.Price.String(), trade.Order.Quantity, time.Now())
	if err != nil {
		return fmt.Errorf("record order %s: %w", trade.ID, err)
	}
	return nil
}

// RecordDeal writes one fill. Duplicate deal ids are ignored, matching
// the engine's own de-duplication.
func (j *Journal) RecordDeal(ctx context.Context, deal *core.Deal) error {
	_, err := j.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO deals
		 (deal_id, order_id, code, action, price, quantity, dealt_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		deal.DealID, deal.OrderID, deal.Code, string(deal.Action),
		deal.Price.String(), deal.Quantity, deal.Time)
	if err != nil {
		return fmt.Errorf("record deal %s: %w", deal.DealID, err)
	}
	return nil
}

// OrderCount returns the number of journaled orders for a code, or all
// orders when code is empty.
func (j *Journal) OrderCount(ctx context.Context, code string) (int, error) {
	return j.count(ctx, "orders", code)
}

// DealCount returns the number of journaled deals for a code, or all
// deals when code is empty.
func (j *Journal) DealCount(ctx context.Context, code string) (int, error) {
	return j.count(ctx, "deals", code)
}

func (j *Journal) count(ctx context.Context, table, code string) (int, error) {
	query := "SELECT COUNT(*) FROM " + table
	args := []interface{}{}
	if code != "" {
		query += " WHERE code = ?"
		args = append(args, code)
	}
	var n int
	if err := j.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", table, err)
	}
	return n, nil
}

// Close flushes and closes the database.
func (j *Journal) Close() error {
	return j.db.Close()
}
