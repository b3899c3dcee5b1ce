package source

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"strings"

	"day_trader/internal/core"

	"github.com/shopspring/decimal"
)

// ReadContracts parses instrument reference data from a CSV with header
// "code,name,unit,reference,limit_up,limit_down". Prices are parsed as
// decimals; a row that fails to parse fails the whole load, since a
// session with a wrong daily band misprices every order.
func ReadContracts(path string) (map[string]*core.Contract, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("contract source %q not found: %w", path, err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("contract source %q: %w", path, err)
	}

	contracts := make(map[string]*core.Contract, len(rows))
	for i, row := range rows {
		if i == 0 {
			continue
		}
		if len(row) < 6 {
			return nil, fmt.Errorf("contract source %q: malformed row %d", path, i+1)
		}
		unit, err := strconv.ParseInt(strings.TrimSpace(row[2]), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("contract source %q: bad unit on row %d: %w", path, i+1, err)
		}
		prices := make([]decimal.Decimal, 3)
		for j, field := range row[3:6] {
			p, err := decimal.NewFromString(strings.TrimSpace(field))
			if err != nil {
				return nil, fmt.Errorf("contract source %q: bad price on row %d: %w", path, i+1, err)
			}
			prices[j] = p
		}
		code := strings.TrimSpace(row[0])
		contracts[code] = &core.Contract{
			Code:      code,
			Name:      strings.TrimSpace(row[1]),
			Unit:      unit,
			Reference: prices[0],
			LimitUp:   prices[1],
			LimitDown: prices[2],
		}
	}
	return contracts, nil
}
