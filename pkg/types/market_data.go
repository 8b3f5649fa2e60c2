package types

import "time"

type OHLCV struct {
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
	Timestamp time.Time
}

type Ticker struct {
	Symbol    string
	Price     float64
	Volume    float64
	Timestamp time.Time
}

type Balance struct {
	Asset     string
	Total     float64
	Available float64
	Locked    float64
}

// PriceTick is the latest trade price observed on the live feed.
// ArrivedAt carries Go's monotonic clock reading, so staleness checks
// are immune to wall-clock adjustments.
type PriceTick struct {
	Symbol    string
	Price     float64
	ArrivedAt time.Time
}

// IsStale reports whether the tick is older than maxAge.
func (t PriceTick) IsStale(maxAge time.Duration) bool {
	return time.Since(t.ArrivedAt) > maxAge
}

// BookLevel is a single price level in an order book.
type BookLevel struct {
	Price float64
	Size  float64
}

// OrderBook is a depth snapshot for one symbol.
type OrderBook struct {
	Symbol    string
	Bids      []BookLevel // sorted best (highest) first
	Asks      []BookLevel // sorted best (lowest) first
	Timestamp time.Time
}

// BidVolume returns the total size resting on the bid side.
func (b *OrderBook) BidVolume() float64 {
	var sum float64
	for _, lvl := range b.Bids {
		sum += lvl.Size
	}
	return sum
}

// AskVolume returns the total size resting on the ask side.
func (b *OrderBook) AskVolume() float64 {
	var sum float64
	for _, lvl := range b.Asks {
		sum += lvl.Size
	}
	return sum
}

// Imbalance returns the bid share of total book volume (0..1).
// 0.5 is a balanced book; values near 1 indicate buy pressure.
func (b *OrderBook) Imbalance() float64 {
	bid := b.BidVolume()
	total := bid + b.AskVolume()
	if total == 0 {
		return 0.5
	}
	return bid / total
}
