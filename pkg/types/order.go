package types

import "time"

// OrderSide is the exchange-facing buy/sell side of an order.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "Buy"
	OrderSideSell OrderSide = "Sell"
)

// SideForDirection maps a position direction to the entry order side.
func SideForDirection(d Direction) OrderSide {
	if d == DirectionShort {
		return OrderSideSell
	}
	return OrderSideBuy
}

// OrderType is the execution type of an order.
type OrderType string

const (
	OrderTypeMarket OrderType = "Market"
	OrderTypeLimit  OrderType = "Limit"
)

// OrderStatus mirrors the venue's order lifecycle states the engine cares
// about.
type OrderStatus string

const (
	OrderStatusNew             OrderStatus = "New"
	OrderStatusPartiallyFilled OrderStatus = "PartiallyFilled"
	OrderStatusFilled          OrderStatus = "Filled"
	OrderStatusCancelled       OrderStatus = "Cancelled"
	OrderStatusRejected        OrderStatus = "Rejected"
)

// IsTerminal reports whether the order can no longer change state.
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusFilled || s == OrderStatusCancelled || s == OrderStatusRejected
}

// OrderRequest is a fully-specified order ready for submission. All risk
// and sizing decisions happen before one of these is built; nothing
// downstream changes its quantities.
type OrderRequest struct {
	Symbol     string    `json:"symbol"`
	Side       OrderSide `json:"side"`
	Type       OrderType `json:"type"`
	Quantity   float64   `json:"quantity"`
	Price      float64   `json:"price,omitempty"` // limit orders only
	Leverage   float64   `json:"leverage"`
	StopLoss   float64   `json:"stop_loss,omitempty"`
	TakeProfit float64   `json:"take_profit,omitempty"`
	ClientID   string    `json:"client_id,omitempty"`
}

// Order is the venue's view of a submitted order.
type Order struct {
	OrderID    string      `json:"order_id"`
	ClientID   string      `json:"client_id,omitempty"`
	Symbol     string      `json:"symbol"`
	Side       OrderSide   `json:"side"`
	Type       OrderType   `json:"type"`
	Quantity   float64     `json:"quantity"`
	Price      float64     `json:"price,omitempty"`
	FilledQty  float64     `json:"filled_qty"`
	AvgPrice   float64     `json:"avg_price"`
	Status     OrderStatus `json:"status"`
	CreatedAt  time.Time   `json:"created_at"`
	UpdatedAt  time.Time   `json:"updated_at"`
}

// ExchangePosition is the venue-side snapshot of an open position, as
// distinct from the engine's own Position records.
type ExchangePosition struct {
	Symbol           string    `json:"symbol"`
	Side             OrderSide `json:"side"`
	Size             float64   `json:"size"`
	EntryPrice       float64   `json:"entry_price"`
	Leverage         float64   `json:"leverage"`
	UnrealizedPnL    float64   `json:"unrealized_pnl"`
	LiquidationPrice float64   `json:"liquidation_price"`
	PositionMargin   float64   `json:"position_margin"`
}
