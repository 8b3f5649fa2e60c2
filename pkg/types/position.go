package types

import "time"

// PositionStatus is the lifecycle state of a position.
type PositionStatus string

const (
	PositionOpen     PositionStatus = "OPEN"
	PositionModified PositionStatus = "MODIFIED"
	PositionClosed   PositionStatus = "CLOSED"
)

// CloseReason records what ended a position.
type CloseReason string

const (
	CloseTakeProfit     CloseReason = "take_profit"
	CloseStopLoss       CloseReason = "stop_loss"
	CloseManual         CloseReason = "manual"
	CloseCircuitBreaker CloseReason = "circuit_breaker"
)

// Position is an open (or historical) leveraged position. It is created on
// order fill and mutated only through the executor's modify/close paths;
// status CLOSED is terminal and positions are retained for history.
type Position struct {
	ID         string         `json:"id"`
	Symbol     string         `json:"symbol"`
	Direction  Direction      `json:"direction"`
	Strategy   string         `json:"strategy"`
	EntryPrice float64        `json:"entry_price"`
	Size       float64        `json:"size"`
	Leverage   float64        `json:"leverage"`
	StopLoss   float64        `json:"stop_loss"`
	TakeProfit float64        `json:"take_profit"`
	OpenedAt   time.Time      `json:"opened_at"`
	Status     PositionStatus `json:"status"`

	ClosedAt    time.Time   `json:"closed_at,omitempty"`
	ClosePrice  float64     `json:"close_price,omitempty"`
	CloseReason CloseReason `json:"close_reason,omitempty"`
	PnL         *float64    `json:"pnl,omitempty"`
}

// Notional returns the leveraged notional value at entry.
func (p *Position) Notional() float64 {
	return p.Size * p.EntryPrice * p.Leverage
}

// UnrealizedPnL computes the mark-to-market PnL at the given price.
func (p *Position) UnrealizedPnL(price float64) float64 {
	diff := price - p.EntryPrice
	if p.Direction == DirectionShort {
		diff = -diff
	}
	return diff * p.Size * p.Leverage
}

// StopHit reports whether price has crossed the stop-loss level.
func (p *Position) StopHit(price float64) bool {
	if p.Direction == DirectionLong {
		return price <= p.StopLoss
	}
	return price >= p.StopLoss
}

// TargetHit reports whether price has crossed the take-profit level.
func (p *Position) TargetHit(price float64) bool {
	if p.Direction == DirectionLong {
		return price >= p.TakeProfit
	}
	return price <= p.TakeProfit
}

// TradeRecord is the append-only journal entry written for every accepted
// trade. The engine reads its own records back only for duplicate
// suppression and daily-loss aggregation.
type TradeRecord struct {
	ID         string    `json:"id"`
	PositionID string    `json:"position_id"`
	Symbol     string    `json:"symbol"`
	Strategy   string    `json:"strategy"`
	Direction  Direction `json:"direction"`
	EntryPrice float64   `json:"entry_price"`
	Size       float64   `json:"size"`
	Leverage   float64   `json:"leverage"`
	StopLoss   float64   `json:"stop_loss"`
	TakeProfit float64   `json:"take_profit"`
	Fees       float64   `json:"fees"`
	TradeTime  time.Time `json:"trade_time"`

	// Set when the position closes; nil while open.
	PnL     *float64 `json:"pnl,omitempty"`
	Outcome string   `json:"outcome,omitempty"`
}
