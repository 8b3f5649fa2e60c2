package risk

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ducminhle1904/leverage-trade-engine/pkg/types"
)

func defaultLimits() Limits {
	return Limits{
		MaxDailyLossPct:          3,
		MinMarginRatio:           1.5,
		MaxPairExposurePct:       30,
		MaxCorrelatedExposurePct: 50,
		MaxVolatilityPct:         5,
	}
}

// healthyFacts builds facts that pass every check for a long BTCUSDT signal.
func healthyFacts() Facts {
	return Facts{
		Signal: types.Signal{
			Symbol:    "BTCUSDT",
			Direction: types.DirectionLong,
			Strategy:  "brinks_box",
			Technicals: types.Technicals{
				EMA50:     50500,
				EMA200:    49000,
				RSI:       55,
				Volume:    1200,
				AvgVolume: 1000,
			},
			Structure: types.MarketStructure{Trend: types.TrendUp},
		},
		Balance:          10000,
		BalanceKnown:     true,
		DailyRealizedPnL: -100,
		DailyPnLKnown:    true,
		AvailableMargin:  8000,
		UsedMargin:       2000,
		MarginKnown:      true,
		ExposureBySymbol: map[string]float64{},
		ExposureKnown:    true,
		ATRPercent:       2,
		VolatilityKnown:  true,
		Trend:            types.TrendUp,
		TrendKnown:       true,
	}
}

func failedNames(v types.RiskVerdict) []string {
	names := make([]string, 0, len(v.FailedChecks))
	for _, c := range v.FailedChecks {
		names = append(names, c.Name)
	}
	return names
}

func TestHealthyFactsPassEverything(t *testing.T) {
	v := Evaluate(healthyFacts(), defaultLimits())
	assert.True(t, v.Valid)
	assert.Empty(t, v.FailedChecks)
}

func TestVolatilityAboveLimitFails(t *testing.T) {
	// ATR at 6% of price against a 5% ceiling.
	f := healthyFacts()
	f.ATRPercent = 6

	v := Evaluate(f, defaultLimits())
	require.False(t, v.Valid)
	assert.Equal(t, []string{CheckVolatility}, failedNames(v))
	assert.Contains(t, v.FailedChecks[0].Message, "6.00%")
}

func TestAllFailuresCollected(t *testing.T) {
	f := healthyFacts()
	f.DailyRealizedPnL = -500 // 5% loss vs 3% limit
	f.ATRPercent = 9
	f.Trend = types.TrendChoppy

	v := Evaluate(f, defaultLimits())
	require.False(t, v.Valid)
	assert.ElementsMatch(t,
		[]string{CheckDailyLoss, CheckVolatility, CheckTrend},
		failedNames(v))
}

func TestMissingDataFailsClosed(t *testing.T) {
	f := healthyFacts()
	f.DailyPnLKnown = false
	f.VolatilityKnown = false

	v := Evaluate(f, defaultLimits())
	require.False(t, v.Valid)
	assert.ElementsMatch(t, []string{CheckDailyLoss, CheckVolatility}, failedNames(v))
	for _, c := range v.FailedChecks {
		assert.Contains(t, c.Message, "Failed to verify")
	}
}

func TestRiskRewardOnExplicitLevels(t *testing.T) {
	// Brinks requires at least 2:1. Stop 100 below, target 150 above: 1.5.
	f := healthyFacts()
	f.Price = 50000
	f.PriceKnown = true
	f.Signal.StopLoss = 49900
	f.Signal.TakeProfit = 50150

	v := Evaluate(f, defaultLimits())
	require.False(t, v.Valid)
	assert.Equal(t, []string{CheckRiskReward}, failedNames(v))
	assert.Contains(t, v.FailedChecks[0].Message, "risk:reward")

	// Target 200 above makes exactly 2:1.
	f.Signal.TakeProfit = 50200
	assert.True(t, Evaluate(f, defaultLimits()).Valid)
}

func TestRiskRewardFailsClosedWithoutPrice(t *testing.T) {
	f := healthyFacts()
	f.Signal.StopLoss = 49900
	f.Signal.TakeProfit = 50200
	f.PriceKnown = false

	v := Evaluate(f, defaultLimits())
	require.False(t, v.Valid)
	assert.Equal(t, []string{CheckRiskReward}, failedNames(v))
	assert.Contains(t, v.FailedChecks[0].Message, "Failed to verify")
}

func TestMarginRatio(t *testing.T) {
	f := healthyFacts()
	f.AvailableMargin = 2000
	f.UsedMargin = 2000 // ratio 1.0 vs 1.5 floor

	v := Evaluate(f, defaultLimits())
	require.False(t, v.Valid)
	assert.Equal(t, []string{CheckMarginRatio}, failedNames(v))

	// No open margin means nothing to protect.
	f.UsedMargin = 0
	assert.True(t, Evaluate(f, defaultLimits()).Valid)
}

func TestPairExposure(t *testing.T) {
	f := healthyFacts()
	f.ExposureBySymbol["BTCUSDT"] = 3500 // 35% vs 30% limit

	v := Evaluate(f, defaultLimits())
	require.False(t, v.Valid)
	assert.Equal(t, []string{CheckPairExposure}, failedNames(v))
}

func TestCorrelatedExposureAggregatesGroup(t *testing.T) {
	f := healthyFacts()
	// Each under the 30% pair limit but together over the 50% group limit.
	f.ExposureBySymbol["BTCUSDT"] = 2800
	f.ExposureBySymbol["ETHBTC"] = 2800

	v := Evaluate(f, defaultLimits())
	require.False(t, v.Valid)
	assert.Equal(t, []string{CheckCorrelatedExposure}, failedNames(v))
}

func TestTechnicalsRSIBands(t *testing.T) {
	f := healthyFacts()
	f.Signal.Technicals.RSI = 72

	v := Evaluate(f, defaultLimits())
	require.False(t, v.Valid)
	assert.Equal(t, []string{CheckTechnicals}, failedNames(v))

	// Shorts reject oversold, not overbought.
	f = healthyFacts()
	f.Signal.Direction = types.DirectionShort
	f.Signal.Technicals.RSI = 72
	f.Signal.Technicals.EMA50 = 48000
	f.Signal.Technicals.EMA200 = 49000
	f.Trend = types.TrendDown
	assert.True(t, Evaluate(f, defaultLimits()).Valid)

	f.Signal.Technicals.RSI = 25
	v = Evaluate(f, defaultLimits())
	require.False(t, v.Valid)
	assert.Equal(t, []string{CheckTechnicals}, failedNames(v))
}

func TestVolumeMustExceedAverage(t *testing.T) {
	f := healthyFacts()
	f.Signal.Technicals.Volume = 1000
	f.Signal.Technicals.AvgVolume = 1000

	v := Evaluate(f, defaultLimits())
	require.False(t, v.Valid)
	assert.Equal(t, []string{CheckTechnicals}, failedNames(v))
	assert.Contains(t, v.FailedChecks[0].Message, "volume")
}

func TestTrendAlignment(t *testing.T) {
	f := healthyFacts()
	f.Trend = types.TrendDown

	v := Evaluate(f, defaultLimits())
	require.False(t, v.Valid)
	assert.Equal(t, []string{CheckTrend}, failedNames(v))

	f.Trend = types.TrendChoppy
	v = Evaluate(f, defaultLimits())
	require.False(t, v.Valid)
	assert.Contains(t, v.FailedChecks[0].Message, "choppy")
}
