package types

import "time"

// Direction is the side of a candidate trade.
type Direction string

const (
	DirectionLong  Direction = "long"
	DirectionShort Direction = "short"
)

// IsValid reports whether the direction is one of the two known values.
func (d Direction) IsValid() bool {
	return d == DirectionLong || d == DirectionShort
}

// Technicals carries the pre-computed indicator context that arrives with a
// signal. Values are produced upstream (charting platform or feed job); the
// engine only reads them.
type Technicals struct {
	EMA50     float64 `json:"ema_50"`
	EMA200    float64 `json:"ema_200"`
	RSI       float64 `json:"rsi"`
	ATR       float64 `json:"atr"`
	Volume    float64 `json:"volume"`
	AvgVolume float64 `json:"avg_volume"`
}

// TrendState classifies market structure at signal time.
type TrendState string

const (
	TrendUp     TrendState = "uptrend"
	TrendDown   TrendState = "downtrend"
	TrendChoppy TrendState = "choppy"
)

// MarketStructure is the structural context delivered with a signal.
type MarketStructure struct {
	Trend     TrendState `json:"trend"`
	KeyLevels []float64  `json:"key_levels"`
}

// Signal is an externally generated candidate trade instruction. It is
// immutable once received and consumed exactly once by the executor.
type Signal struct {
	Symbol    string    `json:"symbol"`
	Direction Direction `json:"direction"`
	Strategy  string    `json:"strategy"`
	Leverage  float64   `json:"leverage"`

	// Strategy-specific range levels; required for range-breakout
	// strategies, zero otherwise.
	BoxHigh float64 `json:"box_high,omitempty"`
	BoxLow  float64 `json:"box_low,omitempty"`

	// Optional caller-proposed exit levels. The sizer derives both when
	// absent; when present they are risk-checked and used as-is.
	StopLoss   float64 `json:"stop_loss,omitempty"`
	TakeProfit float64 `json:"take_profit,omitempty"`

	Technicals Technicals      `json:"technicals"`
	Structure  MarketStructure `json:"structure"`

	ReceivedAt time.Time `json:"received_at"`
}

// HasBoxLevels reports whether both range levels are set.
func (s *Signal) HasBoxLevels() bool {
	return s.BoxHigh != 0 && s.BoxLow != 0
}
