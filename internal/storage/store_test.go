package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ducminhle1904/leverage-trade-engine/pkg/types"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	return s
}

func TestAppendTradeAndReload(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	require.NoError(t, err)

	record := types.TradeRecord{
		ID:        "t1",
		Symbol:    "BTCUSDT",
		Strategy:  "brinks_box",
		Direction: types.DirectionLong,
		Size:      1.5,
		TradeTime: time.Now().UTC().Truncate(time.Second),
	}
	require.NoError(t, s.AppendTrade(record))

	// A fresh store over the same directory sees the journaled trade.
	reopened, err := Open(dir)
	require.NoError(t, err)
	trades := reopened.Trades()
	require.Len(t, trades, 1)
	assert.Equal(t, "t1", trades[0].ID)
	assert.Equal(t, 1.5, trades[0].Size)
}

func TestHasRecentEntry(t *testing.T) {
	s := openTestStore(t)
	now := time.Now().UTC()

	require.NoError(t, s.AppendTrade(types.TradeRecord{
		ID: "old", Symbol: "BTCUSDT", Strategy: "brinks_box",
		Direction: types.DirectionLong, TradeTime: now.Add(-2 * time.Hour),
	}))
	require.NoError(t, s.AppendTrade(types.TradeRecord{
		ID: "recent", Symbol: "BTCUSDT", Strategy: "brinks_box",
		Direction: types.DirectionLong, TradeTime: now.Add(-10 * time.Minute),
	}))

	cutoff := now.Add(-time.Hour)
	assert.True(t, s.HasRecentEntry("BTCUSDT", "brinks_box", types.DirectionLong, cutoff))

	// Different direction, strategy or symbol does not match.
	assert.False(t, s.HasRecentEntry("BTCUSDT", "brinks_box", types.DirectionShort, cutoff))
	assert.False(t, s.HasRecentEntry("BTCUSDT", "market_cycle", types.DirectionLong, cutoff))
	assert.False(t, s.HasRecentEntry("ETHUSDT", "brinks_box", types.DirectionLong, cutoff))

	// Only the stale entry exists before the cutoff window.
	assert.False(t, s.HasRecentEntry("BTCUSDT", "brinks_box", types.DirectionLong, now.Add(-5*time.Minute)))
}

func TestDailyRealizedPnL(t *testing.T) {
	s := openTestStore(t)
	today := time.Date(2026, 8, 31, 14, 0, 0, 0, time.UTC)

	require.NoError(t, s.RecordClose(CloseEvent{PositionID: "p1", PnL: -120, ClosedAt: today}))
	require.NoError(t, s.RecordClose(CloseEvent{PositionID: "p2", PnL: 40, ClosedAt: today.Add(time.Hour)}))
	require.NoError(t, s.RecordClose(CloseEvent{PositionID: "p3", PnL: -999, ClosedAt: today.Add(-24 * time.Hour)}))

	pnl, err := s.DailyRealizedPnL(today)
	require.NoError(t, err)
	assert.Equal(t, -80.0, pnl)

	pnl, err = s.DailyRealizedPnL(today.Add(-24 * time.Hour))
	require.NoError(t, err)
	assert.Equal(t, -999.0, pnl)
}

func TestPositionHistoryKeepsLatestSnapshot(t *testing.T) {
	s := openTestStore(t)

	open := types.Position{ID: "p1", Symbol: "BTCUSDT", Status: types.PositionOpen}
	require.NoError(t, s.SnapshotPosition(open))

	closed := open
	closed.Status = types.PositionClosed
	pnl := 55.0
	closed.PnL = &pnl
	require.NoError(t, s.SnapshotPosition(closed))

	require.NoError(t, s.SnapshotPosition(types.Position{ID: "p2", Symbol: "ETHUSDT", Status: types.PositionOpen}))

	history := s.PositionHistory("")
	require.Len(t, history, 2)
	// Newest first.
	assert.Equal(t, "p2", history[0].ID)
	assert.Equal(t, "p1", history[1].ID)
	assert.Equal(t, types.PositionClosed, history[1].Status)
	require.NotNil(t, history[1].PnL)
	assert.Equal(t, 55.0, *history[1].PnL)

	onlyBTC := s.PositionHistory("BTCUSDT")
	require.Len(t, onlyBTC, 1)
	assert.Equal(t, "p1", onlyBTC[0].ID)
}
