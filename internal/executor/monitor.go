package executor

import (
	"context"
	"time"

	"github.com/ducminhle1904/leverage-trade-engine/internal/logger"
	"github.com/ducminhle1904/leverage-trade-engine/pkg/types"
)

// Monitor watches open positions and resting orders between breaker
// sweeps: it exits positions whose stop or target has been crossed and
// cancels resting orders the market has run away from.
type Monitor struct {
	exec            *Executor
	interval        time.Duration
	adverseDriftPct float64
	log             *logger.Logger
}

// NewMonitor creates a position monitor.
func NewMonitor(exec *Executor, interval time.Duration, adverseDriftPct float64, log *logger.Logger) *Monitor {
	return &Monitor{
		exec:            exec,
		interval:        interval,
		adverseDriftPct: adverseDriftPct,
		log:             log,
	}
}

// Start runs the monitor loop until the context is cancelled.
func (m *Monitor) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.Sweep(ctx)
			}
		}
	}()
}

// Sweep runs one pass over positions and resting orders.
func (m *Monitor) Sweep(ctx context.Context) {
	m.sweepPositions(ctx)
	m.sweepRestingOrders(ctx)
}

// sweepPositions exits positions whose protective levels have been
// crossed. The venue normally triggers these itself; this is the engine's
// own backstop.
func (m *Monitor) sweepPositions(ctx context.Context) {
	for _, position := range m.exec.Book().OpenPositions() {
		price, err := m.exec.prices.LastPrice(ctx, position.Symbol)
		if err != nil {
			if m.log != nil {
				m.log.Warning("monitor: no price for %s: %v", position.Symbol, err)
			}
			continue
		}

		var reason types.CloseReason
		switch {
		case position.StopHit(price):
			reason = types.CloseStopLoss
		case position.TargetHit(price):
			reason = types.CloseTakeProfit
		default:
			continue
		}

		if err := m.exec.Close(ctx, position.ID, reason); err != nil && m.log != nil {
			m.log.Error("monitor: failed to close %s (%s): %v", position.Symbol, reason, err)
		}
	}
}

// sweepRestingOrders cancels resting entries the market has moved away
// from. A limit order left far behind price fills only when the move
// reverses through it, which is exactly when the entry thesis is dead.
func (m *Monitor) sweepRestingOrders(ctx context.Context) {
	orders, err := m.exec.exchange.GetOpenOrders(ctx, "")
	if err != nil {
		if m.log != nil {
			m.log.Warning("monitor: open order listing failed: %v", err)
		}
		return
	}

	for _, order := range orders {
		if order.Price <= 0 || order.Status.IsTerminal() {
			continue
		}
		price, err := m.exec.prices.LastPrice(ctx, order.Symbol)
		if err != nil {
			continue
		}

		driftPct := (price - order.Price) / order.Price * 100
		adverse := (order.Side == types.OrderSideBuy && driftPct > m.adverseDriftPct) ||
			(order.Side == types.OrderSideSell && driftPct < -m.adverseDriftPct)
		if !adverse {
			continue
		}

		if err := m.exec.CancelPending(ctx, order.Symbol, order.OrderID); err != nil {
			if m.log != nil {
				m.log.Warning("monitor: failed to cancel drifted order %s: %v", order.OrderID, err)
			}
			continue
		}
		if m.log != nil {
			m.log.Trade("cancelled %s order on %s: price drifted %.2f%% away",
				order.Side, order.Symbol, driftPct)
		}
	}
}
