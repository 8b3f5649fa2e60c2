package risk

import (
	"fmt"
	"math"

	"github.com/ducminhle1904/leverage-trade-engine/internal/strategy"
	"github.com/ducminhle1904/leverage-trade-engine/pkg/types"
)

// Limits are the account-level risk ceilings, all percentages of balance
// unless noted.
type Limits struct {
	MaxDailyLossPct          float64
	MinMarginRatio           float64 // ratio, not percent
	MaxPairExposurePct       float64
	MaxCorrelatedExposurePct float64
	MaxVolatilityPct         float64
}

// Facts are the gathered inputs one evaluation runs against. Every field
// a check needs has a matching *Known flag; a check whose facts could not
// be gathered fails closed.
type Facts struct {
	Signal types.Signal

	Balance      float64
	BalanceKnown bool

	DailyRealizedPnL float64
	DailyPnLKnown    bool

	AvailableMargin float64
	UsedMargin      float64
	MarginKnown     bool

	// Leveraged notional per open symbol.
	ExposureBySymbol map[string]float64
	ExposureKnown    bool

	ATRPercent      float64 // ATR as percent of price
	VolatilityKnown bool

	Price      float64 // latest close on the strategy timeframe
	PriceKnown bool

	Trend      types.TrendState
	TrendKnown bool
}

// Check names, stable across log lines and metrics labels.
const (
	CheckDailyLoss          = "daily_loss"
	CheckMarginRatio        = "margin_ratio"
	CheckRiskReward         = "risk_reward"
	CheckPairExposure       = "pair_exposure"
	CheckCorrelatedExposure = "correlated_exposure"
	CheckVolatility         = "volatility"
	CheckTechnicals         = "technicals"
	CheckTrend              = "trend"
)

// failedToVerify is the fail-closed result for a check whose inputs could
// not be gathered.
func failedToVerify(name string) types.CheckResult {
	return types.CheckResult{
		Name:    name,
		Valid:   false,
		Message: fmt.Sprintf("Failed to verify %s", name),
	}
}

func pass(name string) types.CheckResult {
	return types.CheckResult{Name: name, Valid: true}
}

func fail(name, format string, args ...interface{}) types.CheckResult {
	return types.CheckResult{Name: name, Valid: false, Message: fmt.Sprintf(format, args...)}
}

// checkDailyLoss rejects once realized losses for the day reach the cap.
func checkDailyLoss(f Facts, limits Limits) types.CheckResult {
	if !f.DailyPnLKnown || !f.BalanceKnown || f.Balance <= 0 {
		return failedToVerify(CheckDailyLoss)
	}
	if f.DailyRealizedPnL >= 0 {
		return pass(CheckDailyLoss)
	}
	lossPct := -f.DailyRealizedPnL / f.Balance * 100
	if lossPct >= limits.MaxDailyLossPct {
		return fail(CheckDailyLoss,
			"daily loss %.2f%% at or beyond limit %.2f%%", lossPct, limits.MaxDailyLossPct)
	}
	return pass(CheckDailyLoss)
}

// checkMarginRatio rejects when free margin against used margin falls
// below the floor. With nothing at risk the check passes.
func checkMarginRatio(f Facts, limits Limits) types.CheckResult {
	if !f.MarginKnown {
		return failedToVerify(CheckMarginRatio)
	}
	if f.UsedMargin <= 0 {
		return pass(CheckMarginRatio)
	}
	ratio := f.AvailableMargin / f.UsedMargin
	if ratio < limits.MinMarginRatio {
		return fail(CheckMarginRatio,
			"margin ratio %.2f below minimum %.2f", ratio, limits.MinMarginRatio)
	}
	return pass(CheckMarginRatio)
}

// checkRiskReward validates caller-proposed exit levels against the
// strategy's minimum reward multiple. Signals without explicit levels
// pass: derived exits sit at the minimum by construction.
func checkRiskReward(f Facts, _ Limits) types.CheckResult {
	s := f.Signal
	if s.StopLoss <= 0 && s.TakeProfit <= 0 {
		return pass(CheckRiskReward)
	}
	if s.StopLoss <= 0 || s.TakeProfit <= 0 || !f.PriceKnown || f.Price <= 0 {
		return failedToVerify(CheckRiskReward)
	}

	risk := math.Abs(f.Price - s.StopLoss)
	if risk <= 0 {
		return fail(CheckRiskReward, "stop loss sits at entry price %.2f", f.Price)
	}
	reward := math.Abs(s.TakeProfit - f.Price)
	minRR := strategy.SettingsFor(s.Strategy).MinRiskRewardRatio
	if ratio := reward / risk; ratio < minRR {
		return fail(CheckRiskReward,
			"risk:reward %.2f below minimum %.2f", ratio, minRR)
	}
	return pass(CheckRiskReward)
}

// checkPairExposure rejects when the symbol's open notional already eats
// its share of the balance.
func checkPairExposure(f Facts, limits Limits) types.CheckResult {
	if !f.ExposureKnown || !f.BalanceKnown || f.Balance <= 0 {
		return failedToVerify(CheckPairExposure)
	}
	exposurePct := f.ExposureBySymbol[f.Signal.Symbol] / f.Balance * 100
	if exposurePct >= limits.MaxPairExposurePct {
		return fail(CheckPairExposure,
			"%s exposure %.2f%% at or beyond limit %.2f%%",
			f.Signal.Symbol, exposurePct, limits.MaxPairExposurePct)
	}
	return pass(CheckPairExposure)
}

// checkCorrelatedExposure aggregates exposure across the symbol's
// correlation group.
func checkCorrelatedExposure(f Facts, limits Limits) types.CheckResult {
	if !f.ExposureKnown || !f.BalanceKnown || f.Balance <= 0 {
		return failedToVerify(CheckCorrelatedExposure)
	}
	var total float64
	for _, symbol := range strategy.CorrelatedSymbols(f.Signal.Symbol) {
		total += f.ExposureBySymbol[symbol]
	}
	exposurePct := total / f.Balance * 100
	if exposurePct >= limits.MaxCorrelatedExposurePct {
		return fail(CheckCorrelatedExposure,
			"correlated exposure %.2f%% at or beyond limit %.2f%%",
			exposurePct, limits.MaxCorrelatedExposurePct)
	}
	return pass(CheckCorrelatedExposure)
}

// checkVolatility rejects when ATR relative to price exceeds the ceiling.
func checkVolatility(f Facts, limits Limits) types.CheckResult {
	if !f.VolatilityKnown {
		return failedToVerify(CheckVolatility)
	}
	if f.ATRPercent > limits.MaxVolatilityPct {
		return fail(CheckVolatility,
			"volatility %.2f%% exceeds limit %.2f%%", f.ATRPercent, limits.MaxVolatilityPct)
	}
	return pass(CheckVolatility)
}

// checkTechnicals validates the signal's indicator alignment: RSI not
// exhausted in the trade direction, EMA stack agreeing with the
// direction, and volume above its average.
func checkTechnicals(f Facts, _ Limits) types.CheckResult {
	t := f.Signal.Technicals
	if t.EMA50 <= 0 || t.EMA200 <= 0 || t.AvgVolume <= 0 {
		return failedToVerify(CheckTechnicals)
	}

	if f.Signal.Direction == types.DirectionLong {
		if t.RSI >= 70 {
			return fail(CheckTechnicals, "RSI %.1f overbought for long entry", t.RSI)
		}
		if t.EMA50 <= t.EMA200 {
			return fail(CheckTechnicals,
				"EMA50 %.2f below EMA200 %.2f, no long alignment", t.EMA50, t.EMA200)
		}
	} else {
		if t.RSI <= 30 {
			return fail(CheckTechnicals, "RSI %.1f oversold for short entry", t.RSI)
		}
		if t.EMA50 >= t.EMA200 {
			return fail(CheckTechnicals,
				"EMA50 %.2f above EMA200 %.2f, no short alignment", t.EMA50, t.EMA200)
		}
	}

	if t.Volume <= t.AvgVolume {
		return fail(CheckTechnicals,
			"volume %.2f not above average %.2f", t.Volume, t.AvgVolume)
	}
	return pass(CheckTechnicals)
}

// checkTrend rejects choppy conditions and entries against the prevailing
// trend.
func checkTrend(f Facts, _ Limits) types.CheckResult {
	if !f.TrendKnown {
		return failedToVerify(CheckTrend)
	}
	if f.Trend == types.TrendChoppy {
		return fail(CheckTrend, "market is choppy")
	}
	if f.Signal.Direction == types.DirectionLong && f.Trend != types.TrendUp {
		return fail(CheckTrend, "long entry against %s trend", f.Trend)
	}
	if f.Signal.Direction == types.DirectionShort && f.Trend != types.TrendDown {
		return fail(CheckTrend, "short entry against %s trend", f.Trend)
	}
	return pass(CheckTrend)
}

type checkFunc func(Facts, Limits) types.CheckResult

// allChecks is the fixed evaluation order. Order only affects how failure
// lists read; every check always runs.
var allChecks = []checkFunc{
	checkDailyLoss,
	checkMarginRatio,
	checkRiskReward,
	checkPairExposure,
	checkCorrelatedExposure,
	checkVolatility,
	checkTechnicals,
	checkTrend,
}

// Evaluate runs every check against the facts and collects all failures.
// It never short-circuits: a rejected signal reports the complete list of
// reasons, not just the first.
func Evaluate(f Facts, limits Limits) types.RiskVerdict {
	verdict := types.RiskVerdict{Valid: true}
	for _, check := range allChecks {
		result := check(f, limits)
		if !result.Valid {
			verdict.Valid = false
			verdict.FailedChecks = append(verdict.FailedChecks, result)
		}
	}
	return verdict
}
