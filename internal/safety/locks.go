package safety

import "sync"

// SymbolLocks serializes mutating operations per symbol. The executor and
// the circuit breaker share one instance, so an entry can never interleave
// with an emergency close on the same symbol.
type SymbolLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewSymbolLocks creates an empty lock set.
func NewSymbolLocks() *SymbolLocks {
	return &SymbolLocks{locks: make(map[string]*sync.Mutex)}
}

// Lock acquires the symbol's mutex, creating it on first use.
func (s *SymbolLocks) Lock(symbol string) {
	s.mu.Lock()
	lock, ok := s.locks[symbol]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[symbol] = lock
	}
	s.mu.Unlock()
	lock.Lock()
}

// Unlock releases the symbol's mutex.
func (s *SymbolLocks) Unlock(symbol string) {
	s.mu.Lock()
	lock := s.locks[symbol]
	s.mu.Unlock()
	if lock != nil {
		lock.Unlock()
	}
}
