package executor

import (
	"sync"

	"github.com/ducminhle1904/leverage-trade-engine/pkg/types"
)

// PositionBook is the engine's in-memory view of open positions. The
// journal holds history; the book holds only what is currently at risk.
type PositionBook struct {
	mu        sync.RWMutex
	positions map[string]types.Position // by position ID
}

// NewPositionBook creates an empty book.
func NewPositionBook() *PositionBook {
	return &PositionBook{positions: make(map[string]types.Position)}
}

// Add inserts an open position.
func (b *PositionBook) Add(p types.Position) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.positions[p.ID] = p
}

// Update replaces a position's record if it is still in the book.
func (b *PositionBook) Update(p types.Position) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.positions[p.ID]; ok {
		b.positions[p.ID] = p
	}
}

// Remove drops a position from the book, returning whether it was present.
func (b *PositionBook) Remove(id string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.positions[id]
	delete(b.positions, id)
	return ok
}

// Get returns a position by ID.
func (b *PositionBook) Get(id string) (types.Position, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	p, ok := b.positions[id]
	return p, ok
}

// OpenPositions returns every open position.
func (b *PositionBook) OpenPositions() []types.Position {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]types.Position, 0, len(b.positions))
	for _, p := range b.positions {
		out = append(out, p)
	}
	return out
}

// BySymbol returns the open positions for one symbol.
func (b *PositionBook) BySymbol(symbol string) []types.Position {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var out []types.Position
	for _, p := range b.positions {
		if p.Symbol == symbol {
			out = append(out, p)
		}
	}
	return out
}
