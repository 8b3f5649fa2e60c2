package risk

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ducminhle1904/leverage-trade-engine/pkg/types"
)

type stubAccount struct {
	balance *types.Balance
	err     error
}

func (s *stubAccount) GetBalance(ctx context.Context, asset string) (*types.Balance, error) {
	return s.balance, s.err
}

func (s *stubAccount) GetPositions(ctx context.Context, symbol string) ([]types.ExchangePosition, error) {
	return nil, nil
}

type stubMarket struct {
	candles []types.OHLCV
	err     error
}

func (s *stubMarket) GetKlines(ctx context.Context, symbol, interval string, limit int) ([]types.OHLCV, error) {
	return s.candles, s.err
}

type stubPnL struct {
	pnl float64
	err error
}

func (s *stubPnL) DailyRealizedPnL(day time.Time) (float64, error) {
	return s.pnl, s.err
}

type stubBook struct{}

func (stubBook) OpenPositions() []types.Position { return nil }

// trendingCandles builds a rising series with alternating up and down
// moves: the EMA stack points up while the RSI stays mid-range. The last
// candle carries a volume spike.
func trendingCandles(n int) []types.OHLCV {
	out := make([]types.OHLCV, n)
	price := 100.0
	ts := time.Now().Add(-time.Duration(n) * time.Hour)
	for i := range out {
		if i%2 == 0 {
			price += 2
		} else {
			price -= 1
		}
		out[i] = types.OHLCV{
			Open:      price - 1,
			High:      price + 0.5,
			Low:       price - 1.5,
			Close:     price,
			Volume:    1000,
			Timestamp: ts.Add(time.Duration(i) * time.Hour),
		}
	}
	out[n-1].Volume = 2500
	return out
}

func newTestGate(market *stubMarket) *Gate {
	account := &stubAccount{balance: &types.Balance{Asset: "USDT", Total: 10000, Available: 8000}}
	return NewGate(defaultLimits(), "USDT", account, market, &stubPnL{pnl: -100}, stubBook{}, nil)
}

// bareSignal carries no technicals at all: everything must come off the
// candles.
func bareSignal() types.Signal {
	return types.Signal{
		Symbol:    "BTCUSDT",
		Direction: types.DirectionLong,
		Strategy:  "brinks_box",
		Structure: types.MarketStructure{Trend: types.TrendUp},
	}
}

func TestGateDerivesTechnicalsFromCandles(t *testing.T) {
	g := newTestGate(&stubMarket{candles: trendingCandles(technicalsLookback)})

	facts := g.gather(context.Background(), bareSignal())
	tech := facts.Signal.Technicals
	require.Greater(t, tech.EMA50, tech.EMA200, "rising closes must stack the EMAs upward")
	assert.Greater(t, tech.RSI, 30.0)
	assert.Less(t, tech.RSI, 70.0)
	assert.Greater(t, tech.Volume, tech.AvgVolume)
	assert.True(t, facts.VolatilityKnown)
	assert.True(t, facts.PriceKnown)

	v := g.Check(context.Background(), bareSignal())
	assert.True(t, v.Valid, "unexpected failures: %v", v.Messages())
}

func TestGateKeepsSignalSuppliedTechnicals(t *testing.T) {
	g := newTestGate(&stubMarket{candles: trendingCandles(technicalsLookback)})
	signal := bareSignal()
	signal.Technicals = types.Technicals{
		EMA50: 51000, EMA200: 49000, RSI: 55, Volume: 1200, AvgVolume: 1000,
	}

	// Upstream values win; candles only fill gaps.
	facts := g.gather(context.Background(), signal)
	assert.Equal(t, 51000.0, facts.Signal.Technicals.EMA50)
	assert.Equal(t, 55.0, facts.Signal.Technicals.RSI)
	assert.Equal(t, 1200.0, facts.Signal.Technicals.Volume)
}

func TestGateFailsClosedWhenMarketDataUnavailable(t *testing.T) {
	g := newTestGate(&stubMarket{err: errors.New("kline endpoint down")})

	v := g.Check(context.Background(), bareSignal())
	require.False(t, v.Valid)
	names := failedNames(v)
	assert.Contains(t, names, CheckVolatility)
	assert.Contains(t, names, CheckTechnicals)
}
