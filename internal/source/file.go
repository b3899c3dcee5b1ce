// Package source reads target-position files. Two formats exist: a plain
// TSV of code and signed quantity, and a CSV export that adds per-code
// stop-loss tick counts and a closing-auction cover percentage.
package source

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"day_trader/internal/core"
)

// FileSource implements core.PositionSource over local files.
type FileSource struct{}

var _ core.PositionSource = FileSource{}

// ReadTargetPositions parses a TSV file of "code<TAB>quantity" lines.
// Quantities may be written as floats ("18.0") and are truncated to
// integers. A missing file is a hard error: a session without targets is
// an operator mistake, not an empty day.
func (FileSource) ReadTargetPositions(path string) (map[string]int64, error) {
	return ReadPositions(path)
}

// ReadPositions is the function form of ReadTargetPositions.
func ReadPositions(path string) (map[string]int64, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("position source %q not found: %w", path, err)
	}

	targets := make(map[string]int64)
	for i, line := range strings.Split(string(content), "\n") {
		line = strings.TrimRight(line, "\r")
		if line == "" {
			continue
		}
		fields := strings.Split(line, "\t")
		if len(fields) < 2 {
			return nil, fmt.Errorf("position source %q: malformed line %d: %q", path, i+1, line)
		}
		qty, err := strconv.ParseFloat(strings.TrimSpace(fields[1]), 64)
		if err != nil {
			return nil, fmt.Errorf("position source %q: bad quantity on line %d: %w", path, i+1, err)
		}
		targets[strings.TrimSpace(fields[0])] = int64(qty)
	}
	return targets, nil
}

// CSVTarget is one row of the extended CSV position format.
type CSVTarget struct {
	Quantity     int64
	StopLossTick int
	CoverPct     int
}

// ReadCSVPositions parses the four-column CSV variant (code, quantity,
// stop-loss ticks, cover percent). The first line is a header and is
// skipped.
func ReadCSVPositions(path string) (map[string]CSVTarget, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("position source %q not found: %w", path, err)
	}

	targets := make(map[string]CSVTarget)
	lines := strings.Split(string(content), "\n")
	for i, line := range lines {
		line = strings.TrimRight(line, "\r")
		if i == 0 || line == "" {
			continue
		}
		fields := strings.Split(line, ",")
		if len(fields) < 4 {
			return nil, fmt.Errorf("position source %q: malformed line %d: %q", path, i+1, line)
		}
		qty, err := strconv.ParseInt(strings.TrimSpace(fields[1]), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("position source %q: bad quantity on line %d: %w", path, i+1, err)
		}
		slTick, err := strconv.Atoi(strings.TrimSpace(fields[2]))
		if err != nil {
			return nil, fmt.Errorf("position source %q: bad stop-loss ticks on line %d: %w", path, i+1, err)
		}
		coverPct, err := strconv.Atoi(strings.TrimSpace(fields[3]))
		if err != nil {
			return nil, fmt.Errorf("position source %q: bad cover percent on line %d: %w", path, i+1, err)
		}
		targets[strings.TrimSpace(fields[0])] = CSVTarget{
			Quantity:     qty,
			StopLossTick: slTick,
			CoverPct:     coverPct,
		}
	}
	return targets, nil
}
