package executor

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/ducminhle1904/leverage-trade-engine/internal/errors"
	"github.com/ducminhle1904/leverage-trade-engine/internal/exchange"
	"github.com/ducminhle1904/leverage-trade-engine/internal/logger"
	"github.com/ducminhle1904/leverage-trade-engine/internal/monitoring"
	"github.com/ducminhle1904/leverage-trade-engine/internal/notifications"
	"github.com/ducminhle1904/leverage-trade-engine/internal/safety"
	"github.com/ducminhle1904/leverage-trade-engine/internal/session"
	"github.com/ducminhle1904/leverage-trade-engine/internal/strategy"
	"github.com/ducminhle1904/leverage-trade-engine/pkg/types"
)

// RiskChecker runs the pre-trade risk evaluation.
type RiskChecker interface {
	Check(ctx context.Context, signal types.Signal) types.RiskVerdict
}

// OrderSizer turns an approved signal into a concrete order size.
type OrderSizer interface {
	Size(ctx context.Context, signal types.Signal, price, balance float64) (types.SizingResult, error)
}

// PriceSource serves the current price without blocking on the stream.
type PriceSource interface {
	LastPrice(ctx context.Context, symbol string) (float64, error)
}

// SessionChecker evaluates session timing for an entry.
type SessionChecker interface {
	CheckEntry(strategyName string, now time.Time) session.EntryDecision
}

// Journal is the persistence surface the executor writes through.
type Journal interface {
	AppendTrade(record types.TradeRecord) error
	HasRecentEntry(symbol, strategyName string, direction types.Direction, cutoff time.Time) bool
	SnapshotPosition(position types.Position) error
}

// CloseJournal records realized outcomes.
type CloseJournal interface {
	RecordClose(event CloseEvent) error
}

// CloseEvent mirrors the journal's close record.
type CloseEvent struct {
	PositionID string
	Symbol     string
	PnL        float64
	Reason     types.CloseReason
	ClosedAt   time.Time
}

// Settings tune the pipeline's own checks.
type Settings struct {
	DuplicateLookback    time.Duration
	OpposingFlowRatio    float64
	ModifyMinDistancePct float64
	QuoteAsset           string
}

// Executor runs the signal-to-position pipeline. One instance serves all
// symbols; per-symbol locks (shared with the circuit breaker) serialize
// mutations so concurrent signals for one symbol run one at a time.
type Executor struct {
	settings Settings

	exchange exchange.Exchange
	risk     RiskChecker
	sizer    OrderSizer
	prices   PriceSource
	sessions SessionChecker
	blocks   *session.BlockRegistry
	journal  Journal
	closes   CloseJournal
	book     *PositionBook
	locks    *safety.SymbolLocks
	health   *monitoring.HealthTracker
	notifier notifications.Notifier
	log      *logger.Logger
}

// New creates an executor.
func New(
	settings Settings,
	venue exchange.Exchange,
	risk RiskChecker,
	sizer OrderSizer,
	prices PriceSource,
	sessions SessionChecker,
	blocks *session.BlockRegistry,
	journal Journal,
	closes CloseJournal,
	book *PositionBook,
	locks *safety.SymbolLocks,
	health *monitoring.HealthTracker,
	notifier notifications.Notifier,
	log *logger.Logger,
) *Executor {
	return &Executor{
		settings: settings,
		exchange: venue,
		risk:     risk,
		sizer:    sizer,
		prices:   prices,
		sessions: sessions,
		blocks:   blocks,
		journal:  journal,
		closes:   closes,
		book:     book,
		locks:    locks,
		health:   health,
		notifier: notifier,
		log:      log,
	}
}

// Book exposes the open-position book.
func (e *Executor) Book() *PositionBook {
	return e.book
}

// Execute runs a signal through the full pipeline. A returned TradeError
// with an expected outcome is a normal rejection; only execution failures
// are alerted.
func (e *Executor) Execute(ctx context.Context, signal types.Signal) (*types.Position, error) {
	monitoring.SignalsReceived.WithLabelValues(signal.Symbol, signal.Strategy).Inc()

	position, err := e.execute(ctx, signal)
	if err != nil {
		outcome := errors.OutcomeOf(err)
		monitoring.SignalOutcomes.WithLabelValues(signal.Symbol, string(outcome)).Inc()
		if te, ok := errors.AsTradeError(err); ok && te.ShouldAlert() && e.notifier != nil {
			if nerr := e.notifier.Notify(notifications.SeverityCritical,
				"Trade execution failed", te.Error()); nerr != nil && e.log != nil {
				e.log.Warning("alert delivery failed: %v", nerr)
			}
		}
		return nil, err
	}

	monitoring.SignalOutcomes.WithLabelValues(signal.Symbol, "EXECUTED").Inc()
	return position, nil
}

func (e *Executor) execute(ctx context.Context, signal types.Signal) (*types.Position, error) {
	if err := e.validateStructure(signal); err != nil {
		return nil, err
	}

	e.locks.Lock(signal.Symbol)
	defer e.locks.Unlock(signal.Symbol)

	now := time.Now()

	// Duplicate suppression: an identical entry inside the lookback is
	// dropped, making signal redelivery idempotent.
	cutoff := now.Add(-e.settings.DuplicateLookback)
	if e.journal.HasRecentEntry(signal.Symbol, signal.Strategy, signal.Direction, cutoff) {
		return nil, errors.New(errors.OutcomeDuplicateSignal, "executor", "duplicate_check",
			fmt.Sprintf("%s %s %s already traded within %s",
				signal.Symbol, signal.Strategy, signal.Direction, e.settings.DuplicateLookback))
	}

	// An active trading block outranks every session rule.
	if block := e.blocks.ActiveBlock(signal.Symbol, now); block != nil {
		return nil, errors.NewSessionBlocked("executor",
			fmt.Sprintf("trading blocked until %s: %s",
				block.EndTime.Format(time.RFC3339), block.Reason))
	}
	if decision := e.sessions.CheckEntry(signal.Strategy, now); !decision.Allowed {
		return nil, errors.NewSessionBlocked("executor", decision.Reason)
	}

	if err := e.checkOrderFlow(ctx, signal); err != nil {
		return nil, err
	}

	verdict := e.risk.Check(ctx, signal)
	if !verdict.Valid {
		for _, c := range verdict.FailedChecks {
			monitoring.RiskCheckFailures.WithLabelValues(c.Name).Inc()
		}
		return nil, errors.NewRiskRejected("executor", verdict.Messages())
	}

	price, err := e.prices.LastPrice(ctx, signal.Symbol)
	if err != nil {
		return nil, errors.Wrap(err, errors.OutcomeExecutionFailed, "executor", "price_lookup")
	}

	balance, err := e.exchange.GetBalance(ctx, e.settings.QuoteAsset)
	if err != nil {
		return nil, errors.Wrap(err, errors.OutcomeExecutionFailed, "executor", "balance_lookup")
	}

	sized, err := e.sizer.Size(ctx, signal, price, balance.Total)
	if err != nil {
		return nil, err
	}

	// A stop on the wrong side of entry would fill instantly or never;
	// a target on the loss side would close the position at a loss the
	// moment the monitor looks at it.
	if err := validateStopSide(signal.Direction, price, sized.StopLoss); err != nil {
		return nil, err
	}
	if err := validateTargetSide(signal.Direction, price, sized.TakeProfit); err != nil {
		return nil, err
	}

	return e.submit(ctx, signal, price, sized)
}

// validateStructure rejects malformed signals before any collaborator is
// consulted.
func (e *Executor) validateStructure(signal types.Signal) error {
	if signal.Symbol == "" {
		return errors.NewInvalidSignal("executor", "signal has no symbol")
	}
	if !signal.Direction.IsValid() {
		return errors.NewInvalidSignal("executor",
			fmt.Sprintf("unknown direction %q", signal.Direction))
	}
	if signal.Leverage < 0 {
		return errors.NewInvalidSignal("executor", "negative leverage")
	}
	settings := strategy.SettingsFor(signal.Strategy)
	if settings.Name == strategy.StrategyBrinksBox && !signal.HasBoxLevels() {
		return errors.NewInvalidSignal("executor",
			"range strategy signal is missing box levels")
	}
	if signal.HasBoxLevels() && signal.BoxHigh <= signal.BoxLow {
		return errors.NewInvalidSignal("executor",
			fmt.Sprintf("box high %.2f not above box low %.2f", signal.BoxHigh, signal.BoxLow))
	}
	return nil
}

// checkOrderFlow rejects entries into a book stacked against them. The
// check fails closed: no book, no trade.
func (e *Executor) checkOrderFlow(ctx context.Context, signal types.Signal) error {
	book, err := e.exchange.GetOrderBook(ctx, signal.Symbol, 25)
	if err != nil {
		return errors.NewRiskRejected("executor",
			[]string{"Failed to verify order_flow"})
	}

	same, opposing := book.BidVolume(), book.AskVolume()
	sameShare := book.Imbalance()
	if signal.Direction == types.DirectionShort {
		same, opposing = opposing, same
		sameShare = 1 - sameShare
	}
	// Opposing volume above ratio x same-side means the same side holds
	// less than 1/(1+ratio) of the book. An empty book proves nothing.
	if same+opposing <= 0 || sameShare < 1/(1+e.settings.OpposingFlowRatio) {
		return errors.NewRiskRejected("executor", []string{fmt.Sprintf(
			"opposing book volume %.2f exceeds %.1fx same-side volume %.2f",
			opposing, e.settings.OpposingFlowRatio, same)})
	}
	return nil
}

// validateStopSide rejects a stop that is not on the loss side of entry.
func validateStopSide(direction types.Direction, price, stopLoss float64) error {
	if stopLoss <= 0 {
		return errors.NewInvalidSignal("executor", "stop loss is not set")
	}
	if direction == types.DirectionLong && stopLoss >= price {
		return errors.NewInvalidSignal("executor", fmt.Sprintf(
			"long stop %.2f at or above entry %.2f", stopLoss, price))
	}
	if direction == types.DirectionShort && stopLoss <= price {
		return errors.NewInvalidSignal("executor", fmt.Sprintf(
			"short stop %.2f at or below entry %.2f", stopLoss, price))
	}
	return nil
}

// validateTargetSide rejects a target that is not on the profit side of entry.
func validateTargetSide(direction types.Direction, price, takeProfit float64) error {
	if takeProfit <= 0 {
		return errors.NewInvalidSignal("executor", "take profit is not set")
	}
	if direction == types.DirectionLong && takeProfit <= price {
		return errors.NewInvalidSignal("executor", fmt.Sprintf(
			"long target %.2f at or below entry %.2f", takeProfit, price))
	}
	if direction == types.DirectionShort && takeProfit >= price {
		return errors.NewInvalidSignal("executor", fmt.Sprintf(
			"short target %.2f at or above entry %.2f", takeProfit, price))
	}
	return nil
}

// submit places the order and registers the resulting position. There is
// no auto-retry: a failed submission surfaces immediately.
func (e *Executor) submit(ctx context.Context, signal types.Signal, price float64, sized types.SizingResult) (*types.Position, error) {
	req := types.OrderRequest{
		Symbol:     signal.Symbol,
		Side:       types.SideForDirection(signal.Direction),
		Type:       types.OrderTypeMarket,
		Quantity:   sized.Quantity,
		Leverage:   sized.Leverage,
		StopLoss:   sized.StopLoss,
		TakeProfit: sized.TakeProfit,
		ClientID:   uuid.NewString(),
	}

	start := time.Now()
	order, err := e.exchange.PlaceOrder(ctx, req)
	monitoring.ObserveAPICall("place_order", start)
	if e.health != nil {
		e.health.RecordAPILatency(time.Since(start))
		e.health.RecordOrderResult(err == nil)
	}
	if err != nil {
		monitoring.OrdersSubmitted.WithLabelValues(signal.Symbol, "failed").Inc()
		if e.log != nil {
			e.log.Error("order submission failed for %s %s: %v", signal.Symbol, signal.Direction, err)
		}
		return nil, errors.NewExecutionFailed("executor", err)
	}
	monitoring.OrdersSubmitted.WithLabelValues(signal.Symbol, "accepted").Inc()

	entryPrice := order.AvgPrice
	if entryPrice <= 0 {
		entryPrice = price
	}

	position := types.Position{
		ID:         uuid.NewString(),
		Symbol:     signal.Symbol,
		Direction:  signal.Direction,
		Strategy:   signal.Strategy,
		EntryPrice: entryPrice,
		Size:       sized.Quantity,
		Leverage:   sized.Leverage,
		StopLoss:   sized.StopLoss,
		TakeProfit: sized.TakeProfit,
		OpenedAt:   time.Now().UTC(),
		Status:     types.PositionOpen,
	}
	e.book.Add(position)
	monitoring.OpenPositions.WithLabelValues(signal.Symbol).Inc()

	record := types.TradeRecord{
		ID:         uuid.NewString(),
		PositionID: position.ID,
		Symbol:     position.Symbol,
		Strategy:   position.Strategy,
		Direction:  position.Direction,
		EntryPrice: position.EntryPrice,
		Size:       position.Size,
		Leverage:   position.Leverage,
		StopLoss:   position.StopLoss,
		TakeProfit: position.TakeProfit,
		Fees:       sized.EstimatedFees,
		TradeTime:  position.OpenedAt,
	}
	if err := e.journal.AppendTrade(record); err != nil && e.log != nil {
		e.log.Error("failed to journal trade %s: %v", record.ID, err)
	}
	if err := e.journal.SnapshotPosition(position); err != nil && e.log != nil {
		e.log.Error("failed to snapshot position %s: %v", position.ID, err)
	}

	if e.log != nil {
		e.log.Trade("opened %s %s qty=%.6f entry=%.2f sl=%.2f tp=%.2f lev=%.0fx",
			position.Symbol, position.Direction, position.Size,
			position.EntryPrice, position.StopLoss, position.TakeProfit, position.Leverage)
	}
	return &position, nil
}

// Modify moves a position's stop or target. Both new levels must sit at
// least the configured distance from the current price and on the correct
// side; a rejected modification leaves the position untouched.
func (e *Executor) Modify(ctx context.Context, positionID string, newStopLoss, newTakeProfit float64) error {
	position, ok := e.book.Get(positionID)
	if !ok {
		return errors.NewModificationRejected("executor",
			fmt.Sprintf("position %s is not open", positionID))
	}

	e.locks.Lock(position.Symbol)
	defer e.locks.Unlock(position.Symbol)

	// Re-read under the lock; a close may have won the race.
	position, ok = e.book.Get(positionID)
	if !ok {
		return errors.NewModificationRejected("executor",
			fmt.Sprintf("position %s is not open", positionID))
	}

	price, err := e.prices.LastPrice(ctx, position.Symbol)
	if err != nil {
		return errors.NewModificationRejected("executor",
			fmt.Sprintf("cannot verify current price: %v", err))
	}

	minDistance := price * e.settings.ModifyMinDistancePct / 100
	for name, level := range map[string]float64{"stop loss": newStopLoss, "take profit": newTakeProfit} {
		if level <= 0 {
			continue
		}
		if math.Abs(price-level) < minDistance {
			return errors.NewModificationRejected("executor", fmt.Sprintf(
				"%s %.2f within %.2f%% of current price %.2f",
				name, level, e.settings.ModifyMinDistancePct, price))
		}
	}
	if newStopLoss > 0 {
		if err := validateStopSide(position.Direction, price, newStopLoss); err != nil {
			return errors.NewModificationRejected("executor",
				fmt.Sprintf("stop %.2f on wrong side of price %.2f", newStopLoss, price))
		}
	}
	if newTakeProfit > 0 {
		if err := validateTargetSide(position.Direction, price, newTakeProfit); err != nil {
			return errors.NewModificationRejected("executor",
				fmt.Sprintf("target %.2f on wrong side of price %.2f", newTakeProfit, price))
		}
	}

	sl, tp := position.StopLoss, position.TakeProfit
	if newStopLoss > 0 {
		sl = newStopLoss
	}
	if newTakeProfit > 0 {
		tp = newTakeProfit
	}
	if err := e.exchange.AmendPosition(ctx, position.Symbol, sl, tp); err != nil {
		return errors.Wrap(err, errors.OutcomeModificationRejected, "executor", "amend_position")
	}

	position.StopLoss = sl
	position.TakeProfit = tp
	position.Status = types.PositionModified
	e.book.Update(position)
	if err := e.journal.SnapshotPosition(position); err != nil && e.log != nil {
		e.log.Error("failed to snapshot position %s: %v", position.ID, err)
	}
	if e.log != nil {
		e.log.Trade("modified %s: sl=%.2f tp=%.2f", position.Symbol, sl, tp)
	}
	return nil
}

// Close exits a position at market and journals the realized outcome.
func (e *Executor) Close(ctx context.Context, positionID string, reason types.CloseReason) error {
	position, ok := e.book.Get(positionID)
	if !ok {
		return errors.New(errors.OutcomeExecutionFailed, "executor", "close_position",
			fmt.Sprintf("position %s is not open", positionID))
	}

	e.locks.Lock(position.Symbol)
	defer e.locks.Unlock(position.Symbol)

	position, ok = e.book.Get(positionID)
	if !ok {
		return nil // already closed
	}
	return e.closeLocked(ctx, position, reason)
}

// closeLocked performs the close. Caller holds the symbol lock.
func (e *Executor) closeLocked(ctx context.Context, position types.Position, reason types.CloseReason) error {
	order, err := e.exchange.ClosePosition(ctx, position.Symbol, position.Size)
	if err != nil {
		if e.health != nil {
			e.health.RecordError()
		}
		return errors.Wrap(err, errors.OutcomeExecutionFailed, "executor", "close_position")
	}

	closePrice := order.AvgPrice
	if closePrice <= 0 {
		if price, perr := e.prices.LastPrice(ctx, position.Symbol); perr == nil {
			closePrice = price
		}
	}
	e.finalizeClose(position, closePrice, reason)
	return nil
}

// finalizeClose updates the book, journal and metrics for a filled close.
func (e *Executor) finalizeClose(position types.Position, closePrice float64, reason types.CloseReason) {
	pnl := position.UnrealizedPnL(closePrice)

	position.Status = types.PositionClosed
	position.ClosedAt = time.Now().UTC()
	position.ClosePrice = closePrice
	position.CloseReason = reason
	position.PnL = &pnl

	if e.book.Remove(position.ID) {
		monitoring.OpenPositions.WithLabelValues(position.Symbol).Dec()
	}
	monitoring.RealizedPnL.Add(pnl)

	if err := e.journal.SnapshotPosition(position); err != nil && e.log != nil {
		e.log.Error("failed to snapshot position %s: %v", position.ID, err)
	}
	if err := e.closes.RecordClose(CloseEvent{
		PositionID: position.ID,
		Symbol:     position.Symbol,
		PnL:        pnl,
		Reason:     reason,
		ClosedAt:   position.ClosedAt,
	}); err != nil && e.log != nil {
		e.log.Error("failed to record close for %s: %v", position.ID, err)
	}

	if e.log != nil {
		e.log.Trade("closed %s %s at %.2f (%s): pnl=%.2f",
			position.Symbol, position.Direction, closePrice, reason, pnl)
	}
}

// EmergencyFlatten cancels every resting order on the symbol and force
// closes its open positions. Used by the circuit breaker; runs under the
// same symbol lock as entries, so no new position can slip in between the
// cancel and the close.
func (e *Executor) EmergencyFlatten(ctx context.Context, symbol string, reason types.CloseReason) error {
	e.locks.Lock(symbol)
	defer e.locks.Unlock(symbol)

	if cancelled, err := e.exchange.CancelAllOrders(ctx, symbol); err != nil {
		if e.log != nil {
			e.log.Error("emergency flatten: cancel sweep failed for %s: %v", symbol, err)
		}
	} else if cancelled > 0 && e.log != nil {
		e.log.Trade("emergency flatten: cancelled %d resting orders on %s", cancelled, symbol)
	}

	var lastErr error
	for _, position := range e.book.BySymbol(symbol) {
		order, err := e.exchange.EmergencyClosePosition(ctx, symbol, exchange.DefaultEmergencyClose)
		if err != nil {
			if e.health != nil {
				e.health.RecordError()
			}
			lastErr = errors.Wrap(err, errors.OutcomeExecutionFailed, "executor", "emergency_close")
			continue
		}

		closePrice := order.AvgPrice
		if closePrice <= 0 {
			if price, perr := e.prices.LastPrice(ctx, symbol); perr == nil {
				closePrice = price
			}
		}
		e.finalizeClose(position, closePrice, reason)
	}
	return lastErr
}

// CancelPending cancels a resting order that has not filled. Filled orders
// are positions and must be closed, not cancelled.
func (e *Executor) CancelPending(ctx context.Context, symbol, orderID string) error {
	e.locks.Lock(symbol)
	defer e.locks.Unlock(symbol)

	order, err := e.exchange.GetOrderStatus(ctx, symbol, orderID)
	if err != nil {
		return errors.Wrap(err, errors.OutcomeExecutionFailed, "executor", "cancel_pending")
	}
	if order.Status.IsTerminal() {
		return errors.New(errors.OutcomeExecutionFailed, "executor", "cancel_pending",
			fmt.Sprintf("order %s is %s and can no longer be cancelled", orderID, order.Status))
	}
	if err := e.exchange.CancelOrder(ctx, symbol, orderID); err != nil {
		return errors.Wrap(err, errors.OutcomeExecutionFailed, "executor", "cancel_pending")
	}
	if e.log != nil {
		e.log.Trade("cancelled resting order %s on %s", orderID, symbol)
	}
	return nil
}
