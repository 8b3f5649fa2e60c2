package risk

import (
	"context"
	"fmt"
	"time"

	"github.com/ducminhle1904/leverage-trade-engine/internal/indicators"
	"github.com/ducminhle1904/leverage-trade-engine/internal/logger"
	"github.com/ducminhle1904/leverage-trade-engine/internal/strategy"
	"github.com/ducminhle1904/leverage-trade-engine/pkg/types"
)

// AccountSource provides balance and venue position data.
type AccountSource interface {
	GetBalance(ctx context.Context, asset string) (*types.Balance, error)
	GetPositions(ctx context.Context, symbol string) ([]types.ExchangePosition, error)
}

// MarketSource provides candles for volatility measurement.
type MarketSource interface {
	GetKlines(ctx context.Context, symbol, interval string, limit int) ([]types.OHLCV, error)
}

// PnLSource reports the day's realized PnL from the trade journal.
type PnLSource interface {
	DailyRealizedPnL(day time.Time) (float64, error)
}

// PositionSource lists the engine's open positions for exposure math.
type PositionSource interface {
	OpenPositions() []types.Position
}

// Gate runs the full pre-trade risk evaluation. Any input it cannot
// gather fails the corresponding check closed; the gate never lets a
// trade through on missing data.
type Gate struct {
	limits     Limits
	quoteAsset string

	account   AccountSource
	market    MarketSource
	pnl       PnLSource
	positions PositionSource
	log       *logger.Logger
}

// NewGate creates a risk gate.
func NewGate(limits Limits, quoteAsset string, account AccountSource, market MarketSource, pnl PnLSource, positions PositionSource, log *logger.Logger) *Gate {
	return &Gate{
		limits:     limits,
		quoteAsset: quoteAsset,
		account:    account,
		market:     market,
		pnl:        pnl,
		positions:  positions,
		log:        log,
	}
}

// Check gathers the facts for a signal and evaluates every risk check,
// returning the complete list of failures.
func (g *Gate) Check(ctx context.Context, signal types.Signal) types.RiskVerdict {
	facts := g.gather(ctx, signal)
	verdict := Evaluate(facts, g.limits)

	if g.log != nil {
		if verdict.Valid {
			g.log.Risk("%s %s %s: all risk checks passed",
				signal.Symbol, signal.Direction, signal.Strategy)
		} else {
			for _, c := range verdict.FailedChecks {
				g.log.Risk("%s %s %s: check %s failed: %s",
					signal.Symbol, signal.Direction, signal.Strategy, c.Name, c.Message)
			}
		}
	}
	return verdict
}

// gather collects every fact the checks need, flagging what it could not
// obtain.
func (g *Gate) gather(ctx context.Context, signal types.Signal) Facts {
	facts := Facts{Signal: signal}

	if balance, err := g.account.GetBalance(ctx, g.quoteAsset); err == nil {
		facts.Balance = balance.Total
		facts.BalanceKnown = true
		facts.AvailableMargin = balance.Available
	} else if g.log != nil {
		g.log.Warning("risk gate: balance lookup failed: %v", err)
	}

	if venuePositions, err := g.account.GetPositions(ctx, ""); err == nil && facts.BalanceKnown {
		var used float64
		for _, p := range venuePositions {
			used += p.PositionMargin
		}
		facts.UsedMargin = used
		facts.MarginKnown = true
	} else if err != nil && g.log != nil {
		g.log.Warning("risk gate: position margin lookup failed: %v", err)
	}

	if pnl, err := g.pnl.DailyRealizedPnL(time.Now().UTC()); err == nil {
		facts.DailyRealizedPnL = pnl
		facts.DailyPnLKnown = true
	} else if g.log != nil {
		g.log.Warning("risk gate: daily PnL lookup failed: %v", err)
	}

	facts.ExposureBySymbol = make(map[string]float64)
	for _, p := range g.positions.OpenPositions() {
		facts.ExposureBySymbol[p.Symbol] += p.Notional()
	}
	facts.ExposureKnown = true

	settings := strategy.SettingsFor(signal.Strategy)
	if candles, err := g.market.GetKlines(ctx, signal.Symbol, settings.Timeframe, technicalsLookback); err == nil {
		if atrPct, price, verr := volatilitySnapshot(candles, signal.Symbol); verr == nil {
			facts.ATRPercent = atrPct
			facts.VolatilityKnown = true
			facts.Price = price
			facts.PriceKnown = true
		} else if g.log != nil {
			g.log.Warning("risk gate: volatility measurement failed: %v", verr)
		}
		fillTechnicals(&facts.Signal.Technicals, candles)
	} else if g.log != nil {
		g.log.Warning("risk gate: kline fetch failed for %s: %v", signal.Symbol, err)
	}

	if signal.Structure.Trend != "" {
		facts.Trend = signal.Structure.Trend
		facts.TrendKnown = true
	}

	return facts
}

const (
	// Candle lookback on the strategy timeframe, enough to seed the
	// slowest indicator (EMA200) with warm-up room.
	technicalsLookback = 210
	rsiPeriod          = 14
	volumeAvgPeriod    = 20
)

// volatilitySnapshot measures current ATR relative to price, returning
// both the percentage and the latest close.
func volatilitySnapshot(candles []types.OHLCV, symbol string) (float64, float64, error) {
	atr, err := indicators.NewATR(indicators.DefaultATRPeriod).Calculate(candles)
	if err != nil {
		return 0, 0, err
	}

	price := candles[len(candles)-1].Close
	if price <= 0 {
		return 0, 0, fmt.Errorf("no valid close price for %s", symbol)
	}
	return atr / price * 100, price, nil
}

// fillTechnicals computes the indicator values the signal did not carry,
// so a bare signal is risk-checked against live market data instead of
// failing outright. A value that cannot be computed stays zero and the
// technicals check fails closed.
func fillTechnicals(t *types.Technicals, candles []types.OHLCV) {
	if t.EMA50 <= 0 {
		if v, err := indicators.NewEMA(50).Calculate(candles); err == nil {
			t.EMA50 = v
		}
	}
	if t.EMA200 <= 0 {
		if v, err := indicators.NewEMA(200).Calculate(candles); err == nil {
			t.EMA200 = v
		}
	}
	if t.RSI <= 0 {
		closes := make([]float64, len(candles))
		for i, c := range candles {
			closes[i] = c.Close
		}
		if v, err := indicators.NewRSI(rsiPeriod).Calculate(closes); err == nil {
			t.RSI = v
		}
	}
	if t.Volume <= 0 && len(candles) > 0 {
		t.Volume = candles[len(candles)-1].Volume
	}
	if t.AvgVolume <= 0 {
		if v, err := indicators.AverageVolume(candles, volumeAvgPeriod); err == nil {
			t.AvgVolume = v
		}
	}
}
