package position

import "sync"

// Ledger maps instrument code to its Position. The internal lock guards
// only the map; it is never held while a Position mutates, so instruments
// never contend with each other.
type Ledger struct {
	mu        sync.RWMutex
	positions map[string]*Position
}

// NewLedger creates an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{positions: make(map[string]*Position)}
}

// Set registers the position for its contract code.
func (l *Ledger) Set(p *Position) {
	l.mu.Lock()
	l.positions[p.Contract.Code] = p
	l.mu.Unlock()
}

// Get returns the position for a code.
func (l *Ledger) Get(code string) (*Position, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	p, ok := l.positions[code]
	return p, ok
}

// All returns a snapshot slice of every position.
func (l *Ledger) All() []*Position {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]*Position, 0, len(l.positions))
	for _, p := range l.positions {
		out = append(out, p)
	}
	return out
}

// Len returns the number of tracked positions.
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.positions)
}
