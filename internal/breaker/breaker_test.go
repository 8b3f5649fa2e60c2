package breaker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ducminhle1904/leverage-trade-engine/internal/monitoring"
	"github.com/ducminhle1904/leverage-trade-engine/internal/notifications"
	"github.com/ducminhle1904/leverage-trade-engine/internal/session"
	"github.com/ducminhle1904/leverage-trade-engine/pkg/types"
)

type fakeAccount struct {
	balance float64
	err     error
}

func (f *fakeAccount) GetBalance(ctx context.Context, asset string) (*types.Balance, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &types.Balance{Asset: asset, Total: f.balance, Available: f.balance}, nil
}

type fakeMarket struct {
	bySymbol map[string][]types.OHLCV
	err      error
}

func (f *fakeMarket) GetKlines(ctx context.Context, symbol, interval string, limit int) ([]types.OHLCV, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.bySymbol[symbol], nil
}

type fakeFlattener struct {
	mu      sync.Mutex
	symbols []string
}

func (f *fakeFlattener) EmergencyFlatten(ctx context.Context, symbol string, reason types.CloseReason) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.symbols = append(f.symbols, symbol)
	return nil
}

func (f *fakeFlattener) flattened() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.symbols...)
}

type fakePositions struct{ list []types.Position }

func (f *fakePositions) OpenPositions() []types.Position { return f.list }

type fakeHealth struct{ snap monitoring.Snapshot }

func (f *fakeHealth) Snapshot() monitoring.Snapshot { return f.snap }

type fakeAlerts struct {
	mu       sync.Mutex
	messages []string
}

func (f *fakeAlerts) Notify(severity notifications.Severity, title, message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, message)
	return nil
}

func (f *fakeAlerts) all() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.messages...)
}

// candles builds a constant-range hourly series long enough for the ATR.
func candles(n int, high, low float64) []types.OHLCV {
	out := make([]types.OHLCV, n)
	ts := time.Now().Add(-time.Duration(n) * time.Hour)
	for i := range out {
		out[i] = types.OHLCV{
			Open: 100, High: high, Low: low, Close: 100,
			Volume:    1000,
			Timestamp: ts.Add(time.Duration(i) * time.Hour),
		}
	}
	return out
}

type fixture struct {
	breaker   *Breaker
	account   *fakeAccount
	market    *fakeMarket
	flattener *fakeFlattener
	positions *fakePositions
	health    *fakeHealth
	blocks    *session.BlockRegistry
	alerts    *fakeAlerts
}

func newFixture() *fixture {
	account := &fakeAccount{balance: 10000}
	market := &fakeMarket{bySymbol: map[string][]types.OHLCV{}}
	flattener := &fakeFlattener{}
	positions := &fakePositions{}
	health := &fakeHealth{snap: monitoring.Snapshot{FillSuccessRate: 1}}
	blocks := session.NewBlockRegistry()
	alerts := &fakeAlerts{}

	limits := Limits{
		MaxAccountDrawdown: 10,
		MaxVolatilityPct:   8,
		MaxAPILatency:      3 * time.Second,
		MaxRecentErrors:    10,
		MinFillSuccessRate: 0.8,
		Cooldown:           time.Hour,
	}
	b := New(limits, "USDT", time.Minute, account, market, flattener, positions, health, blocks, alerts, nil)
	return &fixture{
		breaker: b, account: account, market: market, flattener: flattener,
		positions: positions, health: health, blocks: blocks, alerts: alerts,
	}
}

func TestDrawdownBreachFlattensEverythingAndBlocks(t *testing.T) {
	f := newFixture()
	f.positions.list = []types.Position{
		{ID: "p1", Symbol: "BTCUSDT", Direction: types.DirectionLong, EntryPrice: 100, Size: 1, Leverage: 1, Status: types.PositionOpen},
		{ID: "p2", Symbol: "ETHUSDT", Direction: types.DirectionLong, EntryPrice: 100, Size: 1, Leverage: 1, Status: types.PositionOpen},
	}
	f.market.bySymbol["BTCUSDT"] = candles(30, 100.5, 99.5)
	f.market.bySymbol["ETHUSDT"] = candles(30, 100.5, 99.5)

	// First pass records the high-water mark.
	f.breaker.RunOnce(context.Background())
	assert.Empty(t, f.flattener.flattened())

	// 12% off the peak against a 10% limit.
	f.account.balance = 8800
	f.breaker.RunOnce(context.Background())

	assert.ElementsMatch(t, []string{"BTCUSDT", "ETHUSDT"}, f.flattener.flattened())

	now := time.Now()
	block := f.blocks.ActiveBlock("BTCUSDT", now)
	require.NotNil(t, block)
	assert.Equal(t, "", block.Symbol) // global
	assert.True(t, block.EndTime.After(now))
	assert.Contains(t, block.Reason, "drawdown")
}

func TestUnreadableBalanceBlocksWithoutFlattening(t *testing.T) {
	f := newFixture()
	f.positions.list = []types.Position{
		{ID: "p1", Symbol: "BTCUSDT", Direction: types.DirectionLong, EntryPrice: 100, Size: 1, Leverage: 1, Status: types.PositionOpen},
	}
	f.market.bySymbol["BTCUSDT"] = candles(30, 100.5, 99.5)
	f.account.err = errors.New("wallet endpoint timeout")

	f.breaker.RunOnce(context.Background())

	// A measurement failure must not liquidate the account.
	assert.Empty(t, f.flattener.flattened())
	block := f.blocks.ActiveBlock("BTCUSDT", time.Now())
	require.NotNil(t, block)
	assert.Contains(t, block.Reason, "Failed to verify")

	// The alert classifies the condition as instability, not a breach.
	messages := f.alerts.all()
	require.Len(t, messages, 1)
	assert.Contains(t, messages[0], "SYSTEM_UNSTABLE")
}

func TestVolatilityTripIsScopedToTheSymbol(t *testing.T) {
	f := newFixture()
	f.positions.list = []types.Position{
		{ID: "p1", Symbol: "BTCUSDT", Direction: types.DirectionLong, EntryPrice: 100, Size: 1, Leverage: 1, Status: types.PositionOpen},
		{ID: "p2", Symbol: "ETHUSDT", Direction: types.DirectionLong, EntryPrice: 100, Size: 1, Leverage: 1, Status: types.PositionOpen},
	}
	// 10% ATR on BTC against an 8% ceiling; ETH stays quiet at 1%.
	f.market.bySymbol["BTCUSDT"] = candles(30, 110, 100)
	f.market.bySymbol["ETHUSDT"] = candles(30, 100.5, 99.5)

	f.breaker.RunOnce(context.Background())

	assert.Equal(t, []string{"BTCUSDT"}, f.flattener.flattened())
	require.NotNil(t, f.blocks.ActiveBlock("BTCUSDT", time.Now()))
	assert.Nil(t, f.blocks.ActiveBlock("ETHUSDT", time.Now()))
}

func TestUnverifiableVolatilityBlocksWithoutFlattening(t *testing.T) {
	f := newFixture()
	f.positions.list = []types.Position{
		{ID: "p1", Symbol: "BTCUSDT", Direction: types.DirectionLong, EntryPrice: 100, Size: 1, Leverage: 1, Status: types.PositionOpen},
	}
	f.market.err = errors.New("kline endpoint down")

	f.breaker.RunOnce(context.Background())

	assert.Empty(t, f.flattener.flattened())
	block := f.blocks.ActiveBlock("BTCUSDT", time.Now())
	require.NotNil(t, block)
	assert.Contains(t, block.Reason, "Failed to verify")
}

func TestDegradedHealthBlocksNewEntriesOnly(t *testing.T) {
	f := newFixture()
	f.health.snap = monitoring.Snapshot{
		RecentErrors:    25,
		FillAttempts:    10,
		FillSuccessRate: 0.5,
		APILatency:      5 * time.Second,
		APILatencyKnown: true,
	}

	f.breaker.RunOnce(context.Background())

	assert.Empty(t, f.flattener.flattened())
	require.NotNil(t, f.blocks.ActiveBlock("BTCUSDT", time.Now()))
}

func TestTripFiresOncePerCooldown(t *testing.T) {
	f := newFixture()
	f.positions.list = []types.Position{
		{ID: "p1", Symbol: "BTCUSDT", Direction: types.DirectionLong, EntryPrice: 100, Size: 1, Leverage: 1, Status: types.PositionOpen},
	}
	f.market.bySymbol["BTCUSDT"] = candles(30, 100.5, 99.5)

	f.breaker.RunOnce(context.Background())
	f.account.balance = 8000

	f.breaker.RunOnce(context.Background())
	f.breaker.RunOnce(context.Background())

	// Still blocked from the first breach: no second flatten sweep.
	assert.Equal(t, []string{"BTCUSDT"}, f.flattener.flattened())
}
