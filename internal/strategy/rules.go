package strategy

// Settings are the per-strategy trading parameters. Strategies are
// identified by name on incoming signals; unknown names fall back to
// brinks_box so a misconfigured upstream never trades with zero limits.
type Settings struct {
	Name               string
	Timeframe          string
	DefaultLeverage    float64
	MaxLeverage        float64
	RiskPercentage     float64 // % of balance risked per trade
	MinRiskRewardRatio float64

	// Position size shrinks once ATR as a percent of price exceeds the
	// threshold.
	VolatilityThresholdPct float64
}

const (
	StrategyBrinksBox      = "brinks_box"
	StrategyMarketCycle    = "market_cycle"
	StrategyLiquiditySweep = "liquidity_sweeps"
)

// Formation window for the Brinks box, GMT. Entries are suppressed while
// the box is still forming.
const (
	BrinksBoxStart = "14:00"
	BrinksBoxEnd   = "15:00"
)

var settings = map[string]Settings{
	StrategyBrinksBox: {
		Name:                   StrategyBrinksBox,
		Timeframe:              "15m",
		DefaultLeverage:        50,
		MaxLeverage:            75,
		RiskPercentage:         2,
		MinRiskRewardRatio:     2,
		VolatilityThresholdPct: 5,
	},
	StrategyMarketCycle: {
		Name:                   StrategyMarketCycle,
		Timeframe:              "1h",
		DefaultLeverage:        20,
		MaxLeverage:            30,
		RiskPercentage:         1,
		MinRiskRewardRatio:     3,
		VolatilityThresholdPct: 3,
	},
	StrategyLiquiditySweep: {
		Name:                   StrategyLiquiditySweep,
		Timeframe:              "5m",
		DefaultLeverage:        30,
		MaxLeverage:            50,
		RiskPercentage:         1.5,
		MinRiskRewardRatio:     1.5,
		VolatilityThresholdPct: 4,
	},
}

// SettingsFor returns the settings for the named strategy, falling back to
// brinks_box for unknown names.
func SettingsFor(name string) Settings {
	if s, ok := settings[name]; ok {
		return s
	}
	return settings[StrategyBrinksBox]
}

// Known reports whether the strategy name has explicit settings.
func Known(name string) bool {
	_, ok := settings[name]
	return ok
}

// correlationGroups maps a group key to the symbols whose exposure is
// aggregated under the correlated-exposure limit.
var correlationGroups = map[string][]string{
	"BTC": {"BTCUSDT", "ETHBTC", "BTCBUSD"},
	"ETH": {"ETHUSDT", "ETHBTC", "ETHBUSD"},
}

// CorrelatedSymbols returns every symbol sharing a correlation group with
// the given symbol, including the symbol itself. A symbol in no group
// correlates only with itself.
func CorrelatedSymbols(symbol string) []string {
	seen := map[string]bool{symbol: true}
	out := []string{symbol}
	for _, members := range correlationGroups {
		var inGroup bool
		for _, m := range members {
			if m == symbol {
				inGroup = true
				break
			}
		}
		if !inGroup {
			continue
		}
		for _, m := range members {
			if !seen[m] {
				seen[m] = true
				out = append(out, m)
			}
		}
	}
	return out
}
