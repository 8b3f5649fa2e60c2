package sizing

import (
	"context"
	"math"
	"time"

	"github.com/ducminhle1904/leverage-trade-engine/internal/errors"
	"github.com/ducminhle1904/leverage-trade-engine/internal/logger"
	"github.com/ducminhle1904/leverage-trade-engine/internal/strategy"
	"github.com/ducminhle1904/leverage-trade-engine/pkg/types"
)

// OffSessionMaxLeverage caps leverage while no primary session is open.
// Thin books turn ordinary stops into slippage events.
const OffSessionMaxLeverage = 2

// Caps are the account-level sizing ceilings.
type Caps struct {
	MaxPairExposurePct float64 // symbol notional ceiling, % of balance
	MaxPositionPct     float64 // single-position notional ceiling, % of balance
	GlobalMaxLeverage  float64
}

// FeeSource estimates entry fees for a prospective order.
type FeeSource interface {
	CalculateFees(ctx context.Context, symbol string, quantity, price, leverage float64, taker bool) (float64, error)
}

// SessionInfo answers whether a primary market session is open.
type SessionInfo interface {
	InPrimarySession(now time.Time) bool
}

// PositionSource lists open positions for the exposure headroom math.
type PositionSource interface {
	OpenPositions() []types.Position
}

// Sizer turns an approved signal into a concrete order size. The result
// is final: nothing downstream renegotiates quantities.
type Sizer struct {
	caps      Caps
	fees      FeeSource
	sessions  SessionInfo
	positions PositionSource
	log       *logger.Logger
}

// NewSizer creates a position sizer.
func NewSizer(caps Caps, fees FeeSource, sessions SessionInfo, positions PositionSource, log *logger.Logger) *Sizer {
	return &Sizer{
		caps:      caps,
		fees:      fees,
		sessions:  sessions,
		positions: positions,
		log:       log,
	}
}

// Size computes the order sizing for a risk-approved signal at the given
// price and balance.
func (s *Sizer) Size(ctx context.Context, signal types.Signal, price, balance float64) (types.SizingResult, error) {
	settings := strategy.SettingsFor(signal.Strategy)

	stopDistance := stopDistanceFor(signal, price, settings)
	if stopDistance <= 0 {
		return types.SizingResult{}, errors.NewNoTradeableSize("sizer",
			"stop distance is zero, no basis for risk sizing")
	}

	leverage := s.resolveLeverage(signal, settings)

	var existingNotional float64
	for _, p := range s.positions.OpenPositions() {
		if p.Symbol == signal.Symbol {
			existingNotional += p.Notional()
		}
	}

	result := compute(computeInputs{
		Balance:          balance,
		Price:            price,
		StopDistance:     stopDistance,
		Leverage:         leverage,
		RiskPct:          settings.RiskPercentage,
		ATRPercent:       atrPercent(signal, price),
		VolThresholdPct:  settings.VolatilityThresholdPct,
		MaxPairPct:       s.caps.MaxPairExposurePct,
		MaxPositionPct:   s.caps.MaxPositionPct,
		ExistingNotional: existingNotional,
	})
	if !result.Tradeable() {
		return types.SizingResult{}, errors.NewNoTradeableSize("sizer",
			"no tradeable size after exposure and volatility limits")
	}

	// Entry is taker; fees come off the quantity so the risked amount
	// already pays for the trade.
	fees, err := s.fees.CalculateFees(ctx, signal.Symbol, result.Quantity, price, leverage, true)
	if err != nil {
		return types.SizingResult{}, errors.Wrap(err, errors.OutcomeNoTradeableSize, "sizer", "estimate_fees")
	}
	result.Quantity -= fees / price
	result.EstimatedFees = fees

	if !result.Tradeable() {
		return types.SizingResult{}, errors.NewNoTradeableSize("sizer",
			"fees consume the entire position")
	}

	result.StopLoss, result.TakeProfit = stopAndTarget(signal.Direction, price, stopDistance, settings.MinRiskRewardRatio)
	// Explicit signal levels survived the risk gate; honor them as given.
	if signal.StopLoss > 0 {
		result.StopLoss = signal.StopLoss
	}
	if signal.TakeProfit > 0 {
		result.TakeProfit = signal.TakeProfit
	}
	result.Leverage = leverage

	if s.log != nil {
		s.log.Trade("%s %s sized: qty=%.6f lev=%.0fx sl=%.2f tp=%.2f fees=%.4f",
			signal.Symbol, signal.Direction, result.Quantity, result.Leverage,
			result.StopLoss, result.TakeProfit, result.EstimatedFees)
	}
	return result, nil
}

// resolveLeverage clamps the requested leverage to strategy, account and
// session ceilings.
func (s *Sizer) resolveLeverage(signal types.Signal, settings strategy.Settings) float64 {
	leverage := signal.Leverage
	if leverage <= 0 {
		leverage = settings.DefaultLeverage
	}
	leverage = math.Min(leverage, settings.MaxLeverage)
	if s.caps.GlobalMaxLeverage > 0 {
		leverage = math.Min(leverage, s.caps.GlobalMaxLeverage)
	}
	if !s.sessions.InPrimarySession(time.Now()) {
		leverage = math.Min(leverage, OffSessionMaxLeverage)
	}
	if leverage < 1 {
		leverage = 1
	}
	return leverage
}

// stopDistanceFor derives the stop distance: an explicit signal stop wins,
// range strategies stop at the opposite box edge, everything else at 1.5 ATR.
func stopDistanceFor(signal types.Signal, price float64, settings strategy.Settings) float64 {
	if signal.StopLoss > 0 {
		return math.Abs(price - signal.StopLoss)
	}
	if settings.Name == strategy.StrategyBrinksBox && signal.HasBoxLevels() {
		if signal.Direction == types.DirectionLong {
			return math.Abs(price - signal.BoxLow)
		}
		return math.Abs(price - signal.BoxHigh)
	}
	return 1.5 * signal.Technicals.ATR
}

func atrPercent(signal types.Signal, price float64) float64 {
	if price <= 0 {
		return 0
	}
	return signal.Technicals.ATR / price * 100
}

type computeInputs struct {
	Balance          float64
	Price            float64
	StopDistance     float64
	Leverage         float64
	RiskPct          float64
	ATRPercent       float64
	VolThresholdPct  float64
	MaxPairPct       float64
	MaxPositionPct   float64
	ExistingNotional float64
}

// compute is the pure sizing core: risk-based quantity, volatility
// dampening, then the exposure cap.
func compute(in computeInputs) types.SizingResult {
	riskAmount := in.Balance * in.RiskPct / 100
	qty := riskAmount / in.StopDistance

	// Dampen toward the volatility ceiling instead of a hard cut: at
	// twice the threshold the position is half size.
	if in.ATRPercent > in.VolThresholdPct && in.ATRPercent > 0 {
		qty *= math.Min(1, in.VolThresholdPct/in.ATRPercent)
	}

	// Cap leveraged notional to the symbol's remaining exposure headroom.
	if in.MaxPairPct > 0 && in.Leverage > 0 {
		headroom := in.Balance*in.MaxPairPct/100 - in.ExistingNotional
		if headroom <= 0 {
			return types.SizingResult{}
		}
		maxQty := headroom / (in.Price * in.Leverage)
		qty = math.Min(qty, maxQty)
	}

	// Single-position notional ceiling, independent of what else is open.
	if in.MaxPositionPct > 0 && in.Leverage > 0 {
		maxQty := in.Balance * in.MaxPositionPct / 100 / (in.Price * in.Leverage)
		qty = math.Min(qty, maxQty)
	}

	return types.SizingResult{Quantity: qty}
}

// stopAndTarget places the stop at the risk distance and the target at the
// strategy's minimum reward multiple of it.
func stopAndTarget(direction types.Direction, price, stopDistance, minRR float64) (sl, tp float64) {
	if minRR <= 0 {
		minRR = 2
	}
	if direction == types.DirectionLong {
		return price - stopDistance, price + minRR*stopDistance
	}
	return price + stopDistance, price - minRR*stopDistance
}
