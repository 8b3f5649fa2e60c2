package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/ducminhle1904/leverage-trade-engine/internal/strategy"
	"github.com/ducminhle1904/leverage-trade-engine/pkg/types"
)

func at(hour, minute int) time.Time {
	return time.Date(2026, 3, 10, hour, minute, 0, 0, time.UTC)
}

func TestActiveSessions(t *testing.T) {
	m := NewManager()

	assert.Equal(t, []string{"london"}, m.ActiveSessions(at(8, 0)))
	assert.Equal(t, []string{"london", "newyork"}, m.ActiveSessions(at(13, 0)))
	assert.Equal(t, []string{"newyork"}, m.ActiveSessions(at(18, 0)))
	assert.Equal(t, []string{"asia"}, m.ActiveSessions(at(23, 0)))

	// Asia spans midnight.
	assert.Equal(t, []string{"asia"}, m.ActiveSessions(at(3, 0)))

	// Dead zone between newyork close and asia open.
	assert.Empty(t, m.ActiveSessions(at(21, 30)))
}

func TestInPrimarySession(t *testing.T) {
	m := NewManager()

	assert.True(t, m.InPrimarySession(at(8, 0)))
	assert.True(t, m.InPrimarySession(at(18, 0)))
	// Asia-only hours are not primary.
	assert.False(t, m.InPrimarySession(at(23, 0)))
	assert.False(t, m.InPrimarySession(at(3, 0)))
}

func TestInTransition(t *testing.T) {
	m := NewManager()

	// Around london open at 06:00.
	assert.True(t, m.InTransition(at(5, 56)))
	assert.True(t, m.InTransition(at(6, 4)))
	assert.False(t, m.InTransition(at(6, 10)))

	// Around newyork close at 21:00.
	assert.True(t, m.InTransition(at(20, 57)))
	assert.False(t, m.InTransition(at(20, 30)))
}

func TestFormationWindow(t *testing.T) {
	m := NewManager()

	assert.True(t, m.InFormationWindow(strategy.StrategyBrinksBox, at(14, 30)))
	assert.False(t, m.InFormationWindow(strategy.StrategyBrinksBox, at(15, 30)))
	assert.False(t, m.InFormationWindow(strategy.StrategyMarketCycle, at(14, 30)))

	// Unknown strategies inherit brinks_box settings, window included.
	assert.True(t, m.InFormationWindow("mystery", at(14, 30)))
}

func TestCheckEntryOrder(t *testing.T) {
	m := NewManager()

	// Formation window wins over an otherwise-tradeable time.
	d := m.CheckEntry(strategy.StrategyBrinksBox, at(14, 30))
	assert.False(t, d.Allowed)
	assert.Contains(t, d.Reason, "formation window")

	// Transition edge.
	d = m.CheckEntry(strategy.StrategyMarketCycle, at(12, 2))
	assert.False(t, d.Allowed)
	assert.Contains(t, d.Reason, "transition")

	// Dead zone.
	d = m.CheckEntry(strategy.StrategyMarketCycle, at(21, 30))
	assert.False(t, d.Allowed)
	assert.Contains(t, d.Reason, "no market session")

	// Clean mid-session time.
	d = m.CheckEntry(strategy.StrategyMarketCycle, at(17, 0))
	assert.True(t, d.Allowed)
}

func TestBlockRegistry(t *testing.T) {
	r := NewBlockRegistry()
	now := time.Now()

	r.Add(types.TradingBlock{
		Symbol:    "BTCUSDT",
		Reason:    "drawdown limit breached",
		StartTime: now,
		EndTime:   now.Add(time.Hour),
	})

	assert.True(t, r.Blocked("BTCUSDT", now.Add(time.Minute)))
	assert.False(t, r.Blocked("ETHUSDT", now.Add(time.Minute)))
	assert.False(t, r.Blocked("BTCUSDT", now.Add(2*time.Hour)))

	block := r.ActiveBlock("BTCUSDT", now.Add(time.Minute))
	assert.NotNil(t, block)
	assert.True(t, block.EndTime.After(now))
}

func TestGlobalBlockCoversEverySymbol(t *testing.T) {
	r := NewBlockRegistry()
	now := time.Now()

	r.Add(types.TradingBlock{
		Reason:    "system instability",
		StartTime: now,
		EndTime:   now.Add(30 * time.Minute),
	})

	assert.True(t, r.Blocked("BTCUSDT", now.Add(time.Minute)))
	assert.True(t, r.Blocked("ETHUSDT", now.Add(time.Minute)))
}

func TestExpiredBlocksAreSwept(t *testing.T) {
	r := NewBlockRegistry()
	now := time.Now()

	r.Add(types.TradingBlock{
		Symbol:    "BTCUSDT",
		Reason:    "old",
		StartTime: now.Add(-2 * time.Hour),
		EndTime:   now.Add(-time.Hour),
	})
	// Adding a fresh block sweeps the expired one.
	r.Add(types.TradingBlock{
		Symbol:    "ETHUSDT",
		Reason:    "fresh",
		StartTime: now,
		EndTime:   now.Add(time.Hour),
	})

	active := r.Active(now.Add(time.Minute))
	assert.Len(t, active, 1)
	assert.Equal(t, "ETHUSDT", active[0].Symbol)
}
