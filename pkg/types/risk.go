package types

import "time"

// CheckResult is the outcome of a single independent risk check.
type CheckResult struct {
	Name    string `json:"name"`
	Valid   bool   `json:"valid"`
	Message string `json:"message"`
}

// RiskVerdict aggregates every risk check run for one signal. It is built
// fresh per evaluation and never cached; FailedChecks preserves check order
// so operators see the complete picture, not just the first failure.
type RiskVerdict struct {
	Valid        bool          `json:"valid"`
	FailedChecks []CheckResult `json:"failed_checks,omitempty"`
}

// Messages returns the human-readable reason for every failed check.
func (v *RiskVerdict) Messages() []string {
	msgs := make([]string, 0, len(v.FailedChecks))
	for _, c := range v.FailedChecks {
		msgs = append(msgs, c.Message)
	}
	return msgs
}

// SizingResult is the final order sizing decision. It is read-only once
// computed and passed to order submission unchanged. Quantity <= 0 means
// no tradeable size; the caller must not submit an order.
type SizingResult struct {
	Quantity      float64 `json:"quantity"`
	Leverage      float64 `json:"leverage"`
	StopLoss      float64 `json:"stop_loss"`
	TakeProfit    float64 `json:"take_profit"`
	EstimatedFees float64 `json:"estimated_fees"`
}

// Tradeable reports whether the result carries a submittable quantity.
func (r SizingResult) Tradeable() bool {
	return r.Quantity > 0
}

// TradingBlock is a time-bounded suppression of trading, either for one
// symbol or global (empty Symbol). Blocks expire on their own; Active
// must be re-evaluated against the clock on every read.
type TradingBlock struct {
	Symbol    string    `json:"symbol,omitempty"` // empty means global
	Reason    string    `json:"reason"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
}

// ActiveAt reports whether the block suppresses trading at the given time.
func (b TradingBlock) ActiveAt(now time.Time) bool {
	return !now.Before(b.StartTime) && now.Before(b.EndTime)
}

// Covers reports whether the block applies to the given symbol.
func (b TradingBlock) Covers(symbol string) bool {
	return b.Symbol == "" || b.Symbol == symbol
}
