package bybit

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	bybit_api "github.com/bybit-exchange/bybit.go.api"
)

// Order is the venue's order representation with its string-typed numeric
// fields preserved. The adapter layer converts to engine types.
type Order struct {
	OrderID      string `json:"orderId"`
	OrderLinkID  string `json:"orderLinkId"`
	Symbol       string `json:"symbol"`
	Side         string `json:"side"`
	OrderType    string `json:"orderType"`
	Qty          string `json:"qty"`
	Price        string `json:"price"`
	OrderStatus  string `json:"orderStatus"`
	CumExecQty   string `json:"cumExecQty"`
	CumExecValue string `json:"cumExecValue"`
	AvgPrice     string `json:"avgPrice"`
	TakeProfit   string `json:"takeProfit"`
	StopLoss     string `json:"stopLoss"`
	CreatedTime  string `json:"createdTime"`
	UpdatedTime  string `json:"updatedTime"`
}

// PositionInfo is the venue's position snapshot.
type PositionInfo struct {
	Symbol        string `json:"symbol"`
	Side          string `json:"side"`
	Size          string `json:"size"`
	EntryPrice    string `json:"entryPrice"`
	MarkPrice     string `json:"markPrice"`
	LiqPrice      string `json:"liqPrice"`
	UnrealisedPnl string `json:"unrealisedPnl"`
	Leverage      string `json:"leverage"`
	PositionIM    string `json:"positionIM"`
	TakeProfit    string `json:"takeProfit"`
	StopLoss      string `json:"stopLoss"`
	CreatedTime   string `json:"createdTime"`
	UpdatedTime   string `json:"updatedTime"`
}

// Kline is one candle from the market kline endpoint.
type Kline struct {
	StartTime time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
	Turnover  float64
}

// TickerInfo is the venue's ticker snapshot.
type TickerInfo struct {
	Symbol    string
	LastPrice float64
	Bid1Price float64
	Ask1Price float64
	Volume24h float64
	Timestamp time.Time
}

// BookLevel is one price level of the order book.
type BookLevel struct {
	Price float64
	Size  float64
}

// OrderBookSnapshot is the venue's depth snapshot.
type OrderBookSnapshot struct {
	Symbol    string
	Bids      []BookLevel
	Asks      []BookLevel
	Timestamp time.Time
}

// FeeRates are the symbol's maker/taker fee fractions.
type FeeRates struct {
	Symbol    string
	MakerRate float64
	TakerRate float64
}

// decodeResult re-marshals the envelope's Result into the target shape.
func decodeResult(serverResp *bybit_api.ServerResponse, target interface{}) error {
	resultBytes, err := json.Marshal(serverResp.Result)
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}
	if err := json.Unmarshal(resultBytes, target); err != nil {
		return fmt.Errorf("failed to unmarshal result: %w", err)
	}
	return nil
}

// Helper functions for parsing string numbers
func parseFloat64(s string) float64 {
	if s == "" {
		return 0
	}
	f, _ := strconv.ParseFloat(s, 64)
	return f
}

// parseTimestamp converts milliseconds timestamp to time.Time
func parseTimestamp(ts string) time.Time {
	if ts == "" {
		return time.Time{}
	}
	msec, _ := strconv.ParseInt(ts, 10, 64)
	return time.UnixMilli(msec)
}

// formatFloat renders a float the way the venue expects quantities and
// prices: plain decimal, no exponent.
func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// ParseQty parses a string-typed numeric field from a venue payload.
func ParseQty(s string) float64 {
	return parseFloat64(s)
}

// FormatQty renders a quantity or price for a venue request.
func FormatQty(f float64) string {
	return formatFloat(f)
}

// ParseTime converts a millisecond timestamp string to time.Time.
func ParseTime(ts string) time.Time {
	return parseTimestamp(ts)
}

