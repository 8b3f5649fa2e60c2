package breaker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ducminhle1904/leverage-trade-engine/internal/errors"
	"github.com/ducminhle1904/leverage-trade-engine/internal/indicators"
	"github.com/ducminhle1904/leverage-trade-engine/internal/logger"
	"github.com/ducminhle1904/leverage-trade-engine/internal/monitoring"
	"github.com/ducminhle1904/leverage-trade-engine/internal/notifications"
	"github.com/ducminhle1904/leverage-trade-engine/internal/session"
	"github.com/ducminhle1904/leverage-trade-engine/pkg/types"
)

// Limits are the breaker's trip thresholds.
type Limits struct {
	MaxAccountDrawdown float64 // percent off the balance high-water mark
	MaxVolatilityPct   float64 // ATR/price ceiling per open symbol
	MaxAPILatency      time.Duration
	MaxRecentErrors    int
	MinFillSuccessRate float64
	Cooldown           time.Duration
}

// AccountSource provides the balance reading for drawdown measurement.
type AccountSource interface {
	GetBalance(ctx context.Context, asset string) (*types.Balance, error)
}

// MarketSource provides candles for the volatility measurement.
type MarketSource interface {
	GetKlines(ctx context.Context, symbol, interval string, limit int) ([]types.OHLCV, error)
}

// Flattener force-closes everything on one symbol.
type Flattener interface {
	EmergencyFlatten(ctx context.Context, symbol string, reason types.CloseReason) error
}

// PositionSource lists the symbols currently at risk.
type PositionSource interface {
	OpenPositions() []types.Position
}

// HealthSource reports runtime health for the stability checks.
type HealthSource interface {
	Snapshot() monitoring.Snapshot
}

// Breaker is the independent safety layer. Once per interval it measures
// account drawdown, per-symbol volatility and system health; any breach
// flattens the affected scope and raises a trading block for the cooldown.
// Measurements that cannot be taken count as breaches: the breaker never
// assumes health it could not verify.
type Breaker struct {
	limits     Limits
	quoteAsset string
	interval   time.Duration

	account   AccountSource
	market    MarketSource
	flattener Flattener
	positions PositionSource
	health    HealthSource
	blocks    *session.BlockRegistry
	notifier  notifications.Notifier
	log       *logger.Logger

	mu            sync.Mutex
	peakBalance   float64
	lastMeasureOK bool
}

// New creates a circuit breaker.
func New(limits Limits, quoteAsset string, interval time.Duration, account AccountSource, market MarketSource, flattener Flattener, positions PositionSource, health HealthSource, blocks *session.BlockRegistry, notifier notifications.Notifier, log *logger.Logger) *Breaker {
	return &Breaker{
		limits:     limits,
		quoteAsset: quoteAsset,
		interval:   interval,
		account:    account,
		market:     market,
		flattener:  flattener,
		positions:  positions,
		health:     health,
		blocks:     blocks,
		notifier:   notifier,
		log:        log,
	}
}

// Start runs the measurement loop until the context is cancelled.
func (b *Breaker) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(b.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				b.RunOnce(ctx)
			}
		}
	}()
}

// RunOnce takes one full measurement pass.
func (b *Breaker) RunOnce(ctx context.Context) {
	b.checkDrawdown(ctx)
	b.checkVolatility(ctx)
	b.checkSystemHealth()
}

// checkDrawdown trips globally when balance falls too far off its
// high-water mark. An unreadable balance blocks new entries but does not
// flatten: a transient API failure must not liquidate the account.
func (b *Breaker) checkDrawdown(ctx context.Context) {
	balance, err := b.account.GetBalance(ctx, b.quoteAsset)
	if err != nil {
		b.blockOnly("", "drawdown_unverifiable",
			fmt.Sprintf("Failed to verify account drawdown: %v", err))
		return
	}

	b.mu.Lock()
	if balance.Total > b.peakBalance {
		b.peakBalance = balance.Total
	}
	peak := b.peakBalance
	b.mu.Unlock()

	if peak <= 0 {
		return
	}
	drawdownPct := (peak - balance.Total) / peak * 100
	if drawdownPct >= b.limits.MaxAccountDrawdown {
		b.trip(ctx, "", "account_drawdown", fmt.Sprintf(
			"account drawdown %.2f%% breached limit %.2f%%",
			drawdownPct, b.limits.MaxAccountDrawdown))
	}
}

// checkVolatility trips per symbol when ATR relative to price runs past
// the ceiling on any symbol with an open position.
func (b *Breaker) checkVolatility(ctx context.Context) {
	seen := make(map[string]bool)
	for _, position := range b.positions.OpenPositions() {
		if seen[position.Symbol] {
			continue
		}
		seen[position.Symbol] = true

		atrPct, err := b.atrPercent(ctx, position.Symbol)
		if err != nil {
			b.blockOnly(position.Symbol, "volatility_unverifiable",
				fmt.Sprintf("Failed to verify volatility for %s: %v", position.Symbol, err))
			continue
		}
		if atrPct > b.limits.MaxVolatilityPct {
			b.trip(ctx, position.Symbol, "volatility", fmt.Sprintf(
				"%s volatility %.2f%% breached limit %.2f%%",
				position.Symbol, atrPct, b.limits.MaxVolatilityPct))
		}
	}
}

// checkSystemHealth blocks new entries when the engine itself misbehaves:
// slow venue answers, error bursts, or orders that stop filling.
func (b *Breaker) checkSystemHealth() {
	snap := b.health.Snapshot()

	var reasons []string
	if snap.APILatencyKnown && snap.APILatency > b.limits.MaxAPILatency {
		reasons = append(reasons, fmt.Sprintf("API latency %s over limit %s",
			snap.APILatency.Round(time.Millisecond), b.limits.MaxAPILatency))
	}
	if snap.RecentErrors > b.limits.MaxRecentErrors {
		reasons = append(reasons, fmt.Sprintf("%d recent errors over limit %d",
			snap.RecentErrors, b.limits.MaxRecentErrors))
	}
	if snap.FillAttempts > 0 && snap.FillSuccessRate < b.limits.MinFillSuccessRate {
		reasons = append(reasons, fmt.Sprintf("fill success %.0f%% under limit %.0f%%",
			snap.FillSuccessRate*100, b.limits.MinFillSuccessRate*100))
	}

	for _, reason := range reasons {
		b.blockOnly("", "system_health", reason)
	}
}

// atrPercent measures current ATR relative to price on the hourly frame.
func (b *Breaker) atrPercent(ctx context.Context, symbol string) (float64, error) {
	candles, err := b.market.GetKlines(ctx, symbol, "1h", indicators.DefaultATRPeriod*2)
	if err != nil {
		return 0, err
	}
	atr, err := indicators.NewATR(indicators.DefaultATRPeriod).Calculate(candles)
	if err != nil {
		return 0, err
	}
	price := candles[len(candles)-1].Close
	if price <= 0 {
		return 0, fmt.Errorf("no valid close price for %s", symbol)
	}
	return atr / price * 100, nil
}

// trip flattens the scope and raises a block. Empty symbol means global:
// every open symbol is flattened.
func (b *Breaker) trip(ctx context.Context, symbol, trigger, reason string) {
	// Re-entrancy guard: scope already blocked means this trigger
	// already fired inside the cooldown.
	if b.blocks.Blocked(symbolOrAny(symbol), time.Now()) {
		return
	}

	monitoring.BreakerTrips.WithLabelValues(trigger).Inc()
	if b.log != nil {
		b.log.Risk("circuit breaker tripped (%s): %s", trigger, reason)
	}

	symbols := []string{symbol}
	if symbol == "" {
		seen := make(map[string]bool)
		symbols = symbols[:0]
		for _, p := range b.positions.OpenPositions() {
			if !seen[p.Symbol] {
				seen[p.Symbol] = true
				symbols = append(symbols, p.Symbol)
			}
		}
	}
	for _, s := range symbols {
		if err := b.flattener.EmergencyFlatten(ctx, s, types.CloseCircuitBreaker); err != nil && b.log != nil {
			b.log.Error("circuit breaker: flatten failed for %s: %v", s, err)
		}
	}

	b.raiseBlock(symbol, reason)
	b.alert(trigger, reason)
}

// blockOnly raises a block without flattening. Used for unverifiable
// measurements and degrading health, where stopping new risk is enough.
// The condition surfaces as a SYSTEM_UNSTABLE error so logs and alerts
// classify it apart from real breaches.
func (b *Breaker) blockOnly(symbol, trigger, reason string) {
	if b.blocks.Blocked(symbolOrAny(symbol), time.Now()) {
		return
	}
	monitoring.BreakerTrips.WithLabelValues(trigger).Inc()
	unstable := errors.NewSystemUnstable("breaker", reason)
	if b.log != nil {
		b.log.Risk("circuit breaker blocking entries (%s): %v", trigger, unstable)
	}
	b.raiseBlock(symbol, reason)
	b.alert(trigger, unstable.Error())
}

func (b *Breaker) raiseBlock(symbol, reason string) {
	now := time.Now()
	b.blocks.Add(types.TradingBlock{
		Symbol:    symbol,
		Reason:    reason,
		StartTime: now,
		EndTime:   now.Add(b.limits.Cooldown),
	})
}

func (b *Breaker) alert(trigger, reason string) {
	if b.notifier == nil {
		return
	}
	if err := b.notifier.Notify(notifications.SeverityCritical,
		"Circuit breaker: "+trigger, reason); err != nil && b.log != nil {
		b.log.Warning("alert delivery failed: %v", err)
	}
}

// symbolOrAny maps the breaker's global scope to a concrete symbol for
// block lookups: a global block covers every symbol, so any name finds it.
func symbolOrAny(symbol string) string {
	if symbol == "" {
		return "*"
	}
	return symbol
}
