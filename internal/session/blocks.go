package session

import (
	"sync"
	"time"

	"github.com/ducminhle1904/leverage-trade-engine/pkg/types"
)

// BlockRegistry holds active trading blocks. Blocks are only ever added
// and swept; expiry is decided against the clock on every read so a block
// lapses the moment its end time passes, with no sweeper involved.
type BlockRegistry struct {
	mu     sync.RWMutex
	blocks []types.TradingBlock
}

// NewBlockRegistry creates an empty registry.
func NewBlockRegistry() *BlockRegistry {
	return &BlockRegistry{}
}

// Add registers a new block.
func (r *BlockRegistry) Add(block types.TradingBlock) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.blocks = append(r.blocks, block)
	r.sweepLocked(time.Now())
}

// ActiveBlock returns the first block covering the symbol at the given
// time, or nil.
func (r *BlockRegistry) ActiveBlock(symbol string, now time.Time) *types.TradingBlock {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for i := range r.blocks {
		if r.blocks[i].Covers(symbol) && r.blocks[i].ActiveAt(now) {
			block := r.blocks[i]
			return &block
		}
	}
	return nil
}

// Blocked reports whether the symbol is suppressed at the given time.
func (r *BlockRegistry) Blocked(symbol string, now time.Time) bool {
	return r.ActiveBlock(symbol, now) != nil
}

// Active returns every block still active at the given time.
func (r *BlockRegistry) Active(now time.Time) []types.TradingBlock {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var active []types.TradingBlock
	for _, b := range r.blocks {
		if b.ActiveAt(now) {
			active = append(active, b)
		}
	}
	return active
}

// sweepLocked drops expired blocks. Caller holds the write lock.
func (r *BlockRegistry) sweepLocked(now time.Time) {
	kept := r.blocks[:0]
	for _, b := range r.blocks {
		if now.Before(b.EndTime) {
			kept = append(kept, b)
		}
	}
	r.blocks = kept
}
