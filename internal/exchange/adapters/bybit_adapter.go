package adapters

import (
	"context"
	"errors"

	"github.com/ducminhle1904/leverage-trade-engine/internal/exchange"
	"github.com/ducminhle1904/leverage-trade-engine/internal/exchange/bybit"
	"github.com/ducminhle1904/leverage-trade-engine/pkg/types"
)

// BybitAdapter implements the exchange boundary on top of the Bybit v5
// client, converting the venue's string-typed payloads into engine types.
type BybitAdapter struct {
	client *bybit.Client
}

// NewBybitAdapter creates an adapter around the given client.
func NewBybitAdapter(client *bybit.Client) *BybitAdapter {
	return &BybitAdapter{client: client}
}

func (a *BybitAdapter) GetName() string {
	return "bybit"
}

// wrapErr converts client failures into *exchange.ExchangeError, keeping
// the venue's retCode when the venue answered.
func wrapErr(operation string, err error) error {
	if err == nil {
		return nil
	}
	var apiErr *bybit.APIError
	if errors.As(err, &apiErr) {
		return exchange.NewExchangeError("bybit", operation, apiErr.Code, apiErr.Message)
	}
	return exchange.WrapTransportError("bybit", operation, err)
}

func (a *BybitAdapter) GetBalance(ctx context.Context, asset string) (*types.Balance, error) {
	wallet, err := a.client.GetWalletBalance(ctx, asset)
	if err != nil {
		return nil, wrapErr("get_balance", err)
	}
	return &types.Balance{
		Asset:     wallet.Coin,
		Total:     wallet.Total,
		Available: wallet.Available,
		Locked:    wallet.Locked,
	}, nil
}

func (a *BybitAdapter) GetPositions(ctx context.Context, symbol string) ([]types.ExchangePosition, error) {
	raw, err := a.client.GetPositions(ctx, symbol)
	if err != nil {
		return nil, wrapErr("get_positions", err)
	}

	positions := make([]types.ExchangePosition, 0, len(raw))
	for _, p := range raw {
		positions = append(positions, convertPosition(p))
	}
	return positions, nil
}

func (a *BybitAdapter) CalculateMargin(ctx context.Context, symbol string, quantity, price, leverage float64) (float64, error) {
	margin, err := a.client.CalculateMargin(quantity, price, leverage)
	if err != nil {
		return 0, wrapErr("calculate_margin", err)
	}
	return margin, nil
}

func (a *BybitAdapter) CalculateFees(ctx context.Context, symbol string, quantity, price, leverage float64, taker bool) (float64, error) {
	fees, err := a.client.CalculateFees(ctx, symbol, quantity, price, leverage, taker)
	if err != nil {
		return 0, wrapErr("calculate_fees", err)
	}
	return fees, nil
}

func (a *BybitAdapter) GetTicker(ctx context.Context, symbol string) (*types.Ticker, error) {
	t, err := a.client.GetTicker(ctx, symbol)
	if err != nil {
		return nil, wrapErr("get_ticker", err)
	}
	return &types.Ticker{
		Symbol: t.Symbol,
		Price:  t.LastPrice,
		Volume: t.Volume24h,
	}, nil
}

func (a *BybitAdapter) GetLatestPrice(ctx context.Context, symbol string) (float64, error) {
	price, err := a.client.GetLatestPrice(ctx, symbol)
	if err != nil {
		return 0, wrapErr("get_latest_price", err)
	}
	return price, nil
}

// klineIntervals maps engine timeframe notation to the venue's interval
// codes.
var klineIntervals = map[string]string{
	"1m": "1", "3m": "3", "5m": "5", "15m": "15", "30m": "30",
	"1h": "60", "2h": "120", "4h": "240", "6h": "360", "12h": "720",
	"1d": "D", "1w": "W",
}

func (a *BybitAdapter) GetKlines(ctx context.Context, symbol, interval string, limit int) ([]types.OHLCV, error) {
	if mapped, ok := klineIntervals[interval]; ok {
		interval = mapped
	}
	raw, err := a.client.GetKlines(ctx, symbol, interval, limit)
	if err != nil {
		return nil, wrapErr("get_klines", err)
	}

	candles := make([]types.OHLCV, 0, len(raw))
	for _, k := range raw {
		candles = append(candles, types.OHLCV{
			Open:      k.Open,
			High:      k.High,
			Low:       k.Low,
			Close:     k.Close,
			Volume:    k.Volume,
			Timestamp: k.StartTime,
		})
	}
	return candles, nil
}

func (a *BybitAdapter) GetOrderBook(ctx context.Context, symbol string, depth int) (*types.OrderBook, error) {
	raw, err := a.client.GetOrderBook(ctx, symbol, depth)
	if err != nil {
		return nil, wrapErr("get_order_book", err)
	}

	book := &types.OrderBook{
		Symbol:    raw.Symbol,
		Timestamp: raw.Timestamp,
	}
	for _, lvl := range raw.Bids {
		book.Bids = append(book.Bids, types.BookLevel{Price: lvl.Price, Size: lvl.Size})
	}
	for _, lvl := range raw.Asks {
		book.Asks = append(book.Asks, types.BookLevel{Price: lvl.Price, Size: lvl.Size})
	}
	return book, nil
}

func (a *BybitAdapter) PlaceOrder(ctx context.Context, req types.OrderRequest) (*types.Order, error) {
	if req.Leverage > 0 {
		if err := a.client.SetLeverage(ctx, req.Symbol, req.Leverage); err != nil {
			// Venue code 110043 means leverage is already set; anything
			// else is a real failure.
			var apiErr *bybit.APIError
			if !errors.As(err, &apiErr) || apiErr.Code != 110043 {
				return nil, wrapErr("set_leverage", err)
			}
		}
	}

	params := bybit.PlaceOrderParams{
		Symbol:      req.Symbol,
		Side:        string(req.Side),
		OrderType:   string(req.Type),
		Qty:         bybit.FormatQty(req.Quantity),
		OrderLinkID: req.ClientID,
	}
	if req.Type == types.OrderTypeLimit {
		params.Price = bybit.FormatQty(req.Price)
	}
	if req.StopLoss > 0 {
		params.StopLoss = bybit.FormatQty(req.StopLoss)
	}
	if req.TakeProfit > 0 {
		params.TakeProfit = bybit.FormatQty(req.TakeProfit)
	}

	order, err := a.client.PlaceOrder(ctx, params)
	if err != nil {
		return nil, wrapErr("place_order", err)
	}
	return convertOrder(order), nil
}

func (a *BybitAdapter) CancelOrder(ctx context.Context, symbol, orderID string) error {
	return wrapErr("cancel_order", a.client.CancelOrder(ctx, symbol, orderID))
}

func (a *BybitAdapter) CancelAllOrders(ctx context.Context, symbol string) (int, error) {
	n, err := a.client.CancelAllOrders(ctx, symbol)
	if err != nil {
		return 0, wrapErr("cancel_all_orders", err)
	}
	return n, nil
}

func (a *BybitAdapter) GetOpenOrders(ctx context.Context, symbol string) ([]types.Order, error) {
	raw, err := a.client.GetOpenOrders(ctx, symbol)
	if err != nil {
		return nil, wrapErr("get_open_orders", err)
	}

	orders := make([]types.Order, 0, len(raw))
	for i := range raw {
		orders = append(orders, *convertOrder(&raw[i]))
	}
	return orders, nil
}

func (a *BybitAdapter) GetOrderStatus(ctx context.Context, symbol, orderID string) (*types.Order, error) {
	order, err := a.client.GetOrderStatus(ctx, symbol, orderID)
	if err != nil {
		return nil, wrapErr("get_order_status", err)
	}
	return convertOrder(order), nil
}

func (a *BybitAdapter) AmendPosition(ctx context.Context, symbol string, stopLoss, takeProfit float64) error {
	return wrapErr("amend_position", a.client.SetTradingStop(ctx, symbol, takeProfit, stopLoss))
}

func (a *BybitAdapter) ClosePosition(ctx context.Context, symbol string, qty float64) (*types.Order, error) {
	order, err := a.client.ClosePosition(ctx, symbol, qty)
	if err != nil {
		return nil, wrapErr("close_position", err)
	}
	return convertOrder(order), nil
}

func (a *BybitAdapter) EmergencyClosePosition(ctx context.Context, symbol string, opts exchange.EmergencyCloseOptions) (*types.Order, error) {
	order, err := a.client.EmergencyClose(ctx, symbol, opts.Slippage, opts.ForceMarket)
	if err != nil {
		return nil, wrapErr("emergency_close", err)
	}
	return convertOrder(order), nil
}

func convertOrder(o *bybit.Order) *types.Order {
	return &types.Order{
		OrderID:   o.OrderID,
		ClientID:  o.OrderLinkID,
		Symbol:    o.Symbol,
		Side:      types.OrderSide(o.Side),
		Type:      types.OrderType(o.OrderType),
		Quantity:  bybit.ParseQty(o.Qty),
		Price:     bybit.ParseQty(o.Price),
		FilledQty: bybit.ParseQty(o.CumExecQty),
		AvgPrice:  bybit.ParseQty(o.AvgPrice),
		Status:    types.OrderStatus(o.OrderStatus),
		CreatedAt: bybit.ParseTime(o.CreatedTime),
		UpdatedAt: bybit.ParseTime(o.UpdatedTime),
	}
}

func convertPosition(p bybit.PositionInfo) types.ExchangePosition {
	return types.ExchangePosition{
		Symbol:           p.Symbol,
		Side:             types.OrderSide(p.Side),
		Size:             bybit.ParseQty(p.Size),
		EntryPrice:       bybit.ParseQty(p.EntryPrice),
		Leverage:         bybit.ParseQty(p.Leverage),
		UnrealizedPnL:    bybit.ParseQty(p.UnrealisedPnl),
		LiquidationPrice: bybit.ParseQty(p.LiqPrice),
		PositionMargin:   bybit.ParseQty(p.PositionIM),
	}
}
