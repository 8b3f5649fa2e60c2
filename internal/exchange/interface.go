package exchange

import (
	"context"

	"github.com/ducminhle1904/leverage-trade-engine/pkg/types"
)

// Exchange is the venue boundary used by the executor, circuit breaker and
// price feed fallback. Every call is synchronous and rate limited by the
// implementation; errors come back as *ExchangeError where the venue
// answered with a rejection.
type Exchange interface {
	GetName() string

	// Account
	GetBalance(ctx context.Context, asset string) (*types.Balance, error)
	GetPositions(ctx context.Context, symbol string) ([]types.ExchangePosition, error)
	CalculateMargin(ctx context.Context, symbol string, quantity, price, leverage float64) (float64, error)
	CalculateFees(ctx context.Context, symbol string, quantity, price, leverage float64, taker bool) (float64, error)

	// Market data
	GetTicker(ctx context.Context, symbol string) (*types.Ticker, error)
	GetLatestPrice(ctx context.Context, symbol string) (float64, error)
	GetKlines(ctx context.Context, symbol, interval string, limit int) ([]types.OHLCV, error)
	GetOrderBook(ctx context.Context, symbol string, depth int) (*types.OrderBook, error)

	// Trading
	PlaceOrder(ctx context.Context, req types.OrderRequest) (*types.Order, error)
	CancelOrder(ctx context.Context, symbol, orderID string) error
	CancelAllOrders(ctx context.Context, symbol string) (int, error)
	GetOpenOrders(ctx context.Context, symbol string) ([]types.Order, error)
	GetOrderStatus(ctx context.Context, symbol, orderID string) (*types.Order, error)
	AmendPosition(ctx context.Context, symbol string, stopLoss, takeProfit float64) error
	ClosePosition(ctx context.Context, symbol string, qty float64) (*types.Order, error)
	EmergencyClosePosition(ctx context.Context, symbol string, opts EmergencyCloseOptions) (*types.Order, error)
}

// EmergencyCloseOptions tunes the breaker's forced exit. ForceMarket
// bypasses any passive-fill preference; Slippage is the tolerated fraction
// of price given up to guarantee the fill.
type EmergencyCloseOptions struct {
	Slippage    float64
	ForceMarket bool
}

// DefaultEmergencyClose is used by the circuit breaker when flattening.
var DefaultEmergencyClose = EmergencyCloseOptions{
	Slippage:    0.05,
	ForceMarket: true,
}
