package strategy

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSettingsFor(t *testing.T) {
	s := SettingsFor(StrategyBrinksBox)
	assert.Equal(t, "15m", s.Timeframe)
	assert.Equal(t, 50.0, s.DefaultLeverage)
	assert.Equal(t, 75.0, s.MaxLeverage)
	assert.Equal(t, 2.0, s.RiskPercentage)

	s = SettingsFor(StrategyMarketCycle)
	assert.Equal(t, "1h", s.Timeframe)
	assert.Equal(t, 1.0, s.RiskPercentage)
}

func TestSettingsForUnknownFallsBack(t *testing.T) {
	s := SettingsFor("no_such_strategy")
	assert.Equal(t, StrategyBrinksBox, s.Name)
	assert.False(t, Known("no_such_strategy"))
	assert.True(t, Known(StrategyLiquiditySweep))
}

func TestCorrelatedSymbols(t *testing.T) {
	got := CorrelatedSymbols("BTCUSDT")
	assert.Contains(t, got, "BTCUSDT")
	assert.Contains(t, got, "ETHBTC")
	assert.Contains(t, got, "BTCBUSD")
	assert.NotContains(t, got, "ETHUSDT")

	// ETHBTC sits in both groups.
	got = CorrelatedSymbols("ETHBTC")
	assert.Contains(t, got, "BTCUSDT")
	assert.Contains(t, got, "ETHUSDT")

	// Ungrouped symbols correlate only with themselves.
	got = CorrelatedSymbols("SOLUSDT")
	assert.Equal(t, []string{"SOLUSDT"}, got)
}
