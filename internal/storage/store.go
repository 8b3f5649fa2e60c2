package storage

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ducminhle1904/leverage-trade-engine/pkg/types"
)

// CloseEvent is the realized outcome appended when a position closes.
type CloseEvent struct {
	PositionID string            `json:"position_id"`
	Symbol     string            `json:"symbol"`
	PnL        float64           `json:"pnl"`
	Reason     types.CloseReason `json:"reason"`
	ClosedAt   time.Time         `json:"closed_at"`
}

const (
	tradesFile    = "trades.jsonl"
	closesFile    = "closes.jsonl"
	positionsFile = "positions.jsonl"
)

// Store is the engine's append-only trade journal. Records are held in
// memory and appended to JSONL files; nothing is ever rewritten, so a
// crash can lose at most the record being written.
type Store struct {
	dir string

	mu        sync.RWMutex
	trades    []types.TradeRecord
	closes    []CloseEvent
	positions []types.Position
}

// Open loads the journal from dir, creating it when absent.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	s := &Store{dir: dir}
	if err := loadLines(filepath.Join(dir, tradesFile), &s.trades); err != nil {
		return nil, err
	}
	if err := loadLines(filepath.Join(dir, closesFile), &s.closes); err != nil {
		return nil, err
	}
	if err := loadLines(filepath.Join(dir, positionsFile), &s.positions); err != nil {
		return nil, err
	}
	return s, nil
}

// loadLines reads a JSONL file into a slice, tolerating a missing file.
func loadLines[T any](path string, out *[]T) error {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var record T
		if err := json.Unmarshal(line, &record); err != nil {
			return fmt.Errorf("corrupt record in %s: %w", path, err)
		}
		*out = append(*out, record)
	}
	return scanner.Err()
}

// appendLine writes one JSON record and a newline.
func (s *Store) appendLine(file string, record interface{}) error {
	f, err := os.OpenFile(filepath.Join(s.dir, file), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", file, err)
	}
	defer f.Close()

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}
	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to append record: %w", err)
	}
	return nil
}

// AppendTrade journals an accepted trade.
func (s *Store) AppendTrade(record types.TradeRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.appendLine(tradesFile, record); err != nil {
		return err
	}
	s.trades = append(s.trades, record)
	return nil
}

// HasRecentEntry reports whether a trade with the same symbol, strategy
// and direction was journaled at or after the cutoff.
func (s *Store) HasRecentEntry(symbol, strategyName string, direction types.Direction, cutoff time.Time) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := len(s.trades) - 1; i >= 0; i-- {
		t := s.trades[i]
		if t.TradeTime.Before(cutoff) {
			return false
		}
		if t.Symbol == symbol && t.Strategy == strategyName && t.Direction == direction {
			return true
		}
	}
	return false
}

// Trades returns a copy of every journaled trade, oldest first.
func (s *Store) Trades() []types.TradeRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]types.TradeRecord, len(s.trades))
	copy(out, s.trades)
	return out
}

// RecordClose journals a realized close.
func (s *Store) RecordClose(event CloseEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.appendLine(closesFile, event); err != nil {
		return err
	}
	s.closes = append(s.closes, event)
	return nil
}

// DailyRealizedPnL sums realized PnL for the UTC day containing the given
// time.
func (s *Store) DailyRealizedPnL(day time.Time) (float64, error) {
	dayStart := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	dayEnd := dayStart.Add(24 * time.Hour)

	s.mu.RLock()
	defer s.mu.RUnlock()
	var total float64
	for _, c := range s.closes {
		closed := c.ClosedAt.UTC()
		if !closed.Before(dayStart) && closed.Before(dayEnd) {
			total += c.PnL
		}
	}
	return total, nil
}

// SnapshotPosition journals a position lifecycle snapshot (open, modified
// or closed).
func (s *Store) SnapshotPosition(position types.Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.appendLine(positionsFile, position); err != nil {
		return err
	}
	s.positions = append(s.positions, position)
	return nil
}

// PositionHistory returns the latest journaled snapshot of every position,
// newest first. With an empty symbol all positions are returned.
func (s *Store) PositionHistory(symbol string) []types.Position {
	s.mu.RLock()
	defer s.mu.RUnlock()

	latest := make(map[string]types.Position)
	var order []string
	for _, p := range s.positions {
		if symbol != "" && p.Symbol != symbol {
			continue
		}
		if _, seen := latest[p.ID]; !seen {
			order = append(order, p.ID)
		}
		latest[p.ID] = p
	}

	out := make([]types.Position, 0, len(order))
	for i := len(order) - 1; i >= 0; i-- {
		out = append(out, latest[order[i]])
	}
	return out
}
