package source

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"day_trader/internal/core"

	"github.com/shopspring/decimal"
)

// TimedTick is one replay event: a tick plus its offset from replay
// start.
type TimedTick struct {
	Offset time.Duration
	Tick   *core.Tick
}

// ReadTicks parses a dry-run tick tape from a CSV with header
// "offset_ms,code,price,volume,indicative". Rows must be ordered by
// offset; the replay driver sleeps the gaps between them.
func ReadTicks(path string) ([]TimedTick, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("tick tape %q not found: %w", path, err)
	}
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("tick tape %q: %w", path, err)
	}

	ticks := make([]TimedTick, 0, len(rows))
	last := time.Duration(-1)
	for i, row := range rows {
		if i == 0 {
			continue
		}
		if len(row) < 5 {
			return nil, fmt.Errorf("tick tape %q: malformed row %d", path, i+1)
		}
		offsetMS, err := strconv.ParseInt(strings.TrimSpace(row[0]), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("tick tape %q: bad offset on row %d: %w", path, i+1, err)
		}
		offset := time.Duration(offsetMS) * time.Millisecond
		if offset < last {
			return nil, fmt.Errorf("tick tape %q: out-of-order offset on row %d", path, i+1)
		}
		last = offset

		price, err := decimal.NewFromString(strings.TrimSpace(row[2]))
		if err != nil {
			return nil, fmt.Errorf("tick tape %q: bad price on row %d: %w", path, i+1, err)
		}
		volume, err := strconv.ParseInt(strings.TrimSpace(row[3]), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("tick tape %q: bad volume on row %d: %w", path, i+1, err)
		}
		indicative, err := strconv.ParseBool(strings.TrimSpace(row[4]))
		if err != nil {
			return nil, fmt.Errorf("tick tape %q: bad indicative flag on row %d: %w", path, i+1, err)
		}

		ticks = append(ticks, TimedTick{
			Offset: offset,
			Tick: &core.Tick{
				Code:       strings.TrimSpace(row[1]),
				Price:      price,
				Volume:     volume,
				Indicative: indicative,
			},
		})
	}
	return ticks, nil
}
