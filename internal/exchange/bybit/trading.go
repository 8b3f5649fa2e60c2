package bybit

import (
	"context"
	"fmt"
)

// PlaceOrderParams holds parameters for placing an order. Numeric fields
// are strings because the venue rejects JSON numbers on these endpoints.
type PlaceOrderParams struct {
	Symbol      string
	Side        string // Buy or Sell
	OrderType   string // Market or Limit
	Qty         string
	Price       string // limit orders only
	TimeInForce string
	OrderLinkID string
	TakeProfit  string
	StopLoss    string
	ReduceOnly  bool
}

// PlaceOrder places a new order
func (c *Client) PlaceOrder(ctx context.Context, params PlaceOrderParams) (*Order, error) {
	if params.Symbol == "" {
		return nil, fmt.Errorf("symbol is required")
	}
	if params.Side == "" {
		return nil, fmt.Errorf("side is required")
	}
	if params.OrderType == "" {
		return nil, fmt.Errorf("orderType is required")
	}
	if params.Qty == "" {
		return nil, fmt.Errorf("qty is required")
	}
	if params.OrderType == "Limit" && params.Price == "" {
		return nil, fmt.Errorf("price is required for limit orders")
	}
	if params.OrderType == "Limit" && params.TimeInForce == "" {
		params.TimeInForce = "GTC"
	}

	apiParams := map[string]interface{}{
		"category":  c.category,
		"symbol":    params.Symbol,
		"side":      params.Side,
		"orderType": params.OrderType,
		"qty":       params.Qty,
	}
	if params.Price != "" {
		apiParams["price"] = params.Price
	}
	if params.TimeInForce != "" {
		apiParams["timeInForce"] = params.TimeInForce
	}
	if params.OrderLinkID != "" {
		apiParams["orderLinkId"] = params.OrderLinkID
	}
	if params.TakeProfit != "" {
		apiParams["takeProfit"] = params.TakeProfit
	}
	if params.StopLoss != "" {
		apiParams["stopLoss"] = params.StopLoss
	}
	if params.ReduceOnly {
		apiParams["reduceOnly"] = params.ReduceOnly
	}

	if err := c.throttle(ctx); err != nil {
		return nil, err
	}
	result, err := c.httpClient.NewUtaBybitServiceWithParams(apiParams).PlaceOrder(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to place order: %w", err)
	}

	serverResp, err := checkResponse(result)
	if err != nil {
		return nil, err
	}

	var order Order
	if err := decodeResult(serverResp, &order); err != nil {
		return nil, fmt.Errorf("failed to parse order response: %w", err)
	}
	return &order, nil
}

// CancelOrder cancels an existing order
func (c *Client) CancelOrder(ctx context.Context, symbol, orderID string) error {
	params := map[string]interface{}{
		"category": c.category,
		"symbol":   symbol,
		"orderId":  orderID,
	}

	if err := c.throttle(ctx); err != nil {
		return err
	}
	result, err := c.httpClient.NewUtaBybitServiceWithParams(params).CancelOrder(ctx)
	if err != nil {
		return fmt.Errorf("failed to cancel order: %w", err)
	}
	_, err = checkResponse(result)
	return err
}

// CancelAllOrders cancels all open orders for a symbol and returns how many
// were cancelled.
func (c *Client) CancelAllOrders(ctx context.Context, symbol string) (int, error) {
	params := map[string]interface{}{
		"category": c.category,
		"symbol":   symbol,
	}

	if err := c.throttle(ctx); err != nil {
		return 0, err
	}
	result, err := c.httpClient.NewUtaBybitServiceWithParams(params).CancelAllOrders(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to cancel all orders: %w", err)
	}

	serverResp, err := checkResponse(result)
	if err != nil {
		return 0, err
	}

	var cancelResult struct {
		List []struct {
			OrderID string `json:"orderId"`
		} `json:"list"`
	}
	if err := decodeResult(serverResp, &cancelResult); err != nil {
		return 0, fmt.Errorf("failed to parse cancel response: %w", err)
	}
	return len(cancelResult.List), nil
}

// GetOpenOrders retrieves open orders for a symbol.
func (c *Client) GetOpenOrders(ctx context.Context, symbol string) ([]Order, error) {
	params := map[string]interface{}{
		"category": c.category,
	}
	if symbol != "" {
		params["symbol"] = symbol
	}

	if err := c.throttle(ctx); err != nil {
		return nil, err
	}
	result, err := c.httpClient.NewUtaBybitServiceWithParams(params).GetOpenOrders(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get open orders: %w", err)
	}
	return c.parseOrderList(result)
}

// GetOrderHistory retrieves order history
func (c *Client) GetOrderHistory(ctx context.Context, symbol string, limit int) ([]Order, error) {
	params := map[string]interface{}{
		"category": c.category,
	}
	if symbol != "" {
		params["symbol"] = symbol
	}
	if limit > 0 {
		params["limit"] = limit
	}

	if err := c.throttle(ctx); err != nil {
		return nil, err
	}
	result, err := c.httpClient.NewUtaBybitServiceWithParams(params).GetOrderHistory(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get order history: %w", err)
	}
	return c.parseOrderList(result)
}

// GetOrderStatus retrieves the status of a specific order. Open orders are
// checked first, then recent history for orders that already filled.
func (c *Client) GetOrderStatus(ctx context.Context, symbol, orderID string) (*Order, error) {
	open, err := c.GetOpenOrders(ctx, symbol)
	if err != nil {
		return nil, err
	}
	for i := range open {
		if open[i].OrderID == orderID {
			return &open[i], nil
		}
	}

	history, err := c.GetOrderHistory(ctx, symbol, 50)
	if err != nil {
		return nil, err
	}
	for i := range history {
		if history[i].OrderID == orderID {
			return &history[i], nil
		}
	}

	return nil, fmt.Errorf("order with ID %s not found", orderID)
}

// GetPositions retrieves futures positions for a symbol.
func (c *Client) GetPositions(ctx context.Context, symbol string) ([]PositionInfo, error) {
	params := map[string]interface{}{
		"category": c.category,
	}
	if symbol != "" {
		params["symbol"] = symbol
	}

	if err := c.throttle(ctx); err != nil {
		return nil, err
	}
	result, err := c.httpClient.NewUtaBybitServiceWithParams(params).GetPositionList(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get positions: %w", err)
	}

	serverResp, err := checkResponse(result)
	if err != nil {
		return nil, err
	}

	var positionResult struct {
		List []PositionInfo `json:"list"`
	}
	if err := decodeResult(serverResp, &positionResult); err != nil {
		return nil, fmt.Errorf("failed to parse positions response: %w", err)
	}

	// Zero-size rows are returned for symbols with no open position.
	positions := positionResult.List[:0]
	for _, p := range positionResult.List {
		if parseFloat64(p.Size) > 0 {
			positions = append(positions, p)
		}
	}
	return positions, nil
}

// SetLeverage sets the leverage for a symbol
func (c *Client) SetLeverage(ctx context.Context, symbol string, leverage float64) error {
	lev := formatFloat(leverage)
	params := map[string]interface{}{
		"category":     c.category,
		"symbol":       symbol,
		"buyLeverage":  lev,
		"sellLeverage": lev,
	}

	if err := c.throttle(ctx); err != nil {
		return err
	}
	result, err := c.httpClient.NewUtaBybitServiceWithParams(params).SetPositionLeverage(ctx)
	if err != nil {
		return fmt.Errorf("failed to set leverage: %w", err)
	}
	_, err = checkResponse(result)
	return err
}

// SetTradingStop sets take profit and stop loss for a position
func (c *Client) SetTradingStop(ctx context.Context, symbol string, takeProfit, stopLoss float64) error {
	params := map[string]interface{}{
		"category":    c.category,
		"symbol":      symbol,
		"positionIdx": 0, // one-way mode
	}
	if takeProfit > 0 {
		params["takeProfit"] = formatFloat(takeProfit)
	}
	if stopLoss > 0 {
		params["stopLoss"] = formatFloat(stopLoss)
	}

	if err := c.throttle(ctx); err != nil {
		return err
	}
	result, err := c.httpClient.NewUtaBybitServiceWithParams(params).SetPositionTradingStop(ctx)
	if err != nil {
		return fmt.Errorf("failed to set trading stop: %w", err)
	}
	_, err = checkResponse(result)
	return err
}

// ClosePosition submits a reduce-only market order against the position's
// side. qty <= 0 closes the full size.
func (c *Client) ClosePosition(ctx context.Context, symbol string, qty float64) (*Order, error) {
	positions, err := c.GetPositions(ctx, symbol)
	if err != nil {
		return nil, err
	}
	if len(positions) == 0 {
		return nil, fmt.Errorf("no open position for %s", symbol)
	}

	pos := positions[0]
	closeQty := parseFloat64(pos.Size)
	if qty > 0 && qty < closeQty {
		closeQty = qty
	}

	side := "Sell"
	if pos.Side == "Sell" {
		side = "Buy"
	}

	return c.PlaceOrder(ctx, PlaceOrderParams{
		Symbol:     symbol,
		Side:       side,
		OrderType:  "Market",
		Qty:        formatFloat(closeQty),
		ReduceOnly: true,
	})
}

// EmergencyClose flattens the position immediately. With forceMarket the
// exit is a reduce-only IOC market order; otherwise a reduce-only IOC limit
// order priced slippage away from the mark, so the fill is bounded but not
// guaranteed.
func (c *Client) EmergencyClose(ctx context.Context, symbol string, slippage float64, forceMarket bool) (*Order, error) {
	positions, err := c.GetPositions(ctx, symbol)
	if err != nil {
		return nil, err
	}
	if len(positions) == 0 {
		return nil, fmt.Errorf("no open position for %s", symbol)
	}

	pos := positions[0]
	qty := pos.Size
	side := "Sell"
	if pos.Side == "Sell" {
		side = "Buy"
	}

	if forceMarket {
		return c.PlaceOrder(ctx, PlaceOrderParams{
			Symbol:      symbol,
			Side:        side,
			OrderType:   "Market",
			Qty:         qty,
			TimeInForce: "IOC",
			ReduceOnly:  true,
		})
	}

	mark := parseFloat64(pos.MarkPrice)
	limitPrice := mark * (1 - slippage)
	if side == "Buy" {
		limitPrice = mark * (1 + slippage)
	}

	return c.PlaceOrder(ctx, PlaceOrderParams{
		Symbol:      symbol,
		Side:        side,
		OrderType:   "Limit",
		Qty:         qty,
		Price:       formatFloat(limitPrice),
		TimeInForce: "IOC",
		ReduceOnly:  true,
	})
}

// parseOrderList decodes a list-of-orders envelope.
func (c *Client) parseOrderList(response interface{}) ([]Order, error) {
	serverResp, err := checkResponse(response)
	if err != nil {
		return nil, err
	}

	var orderListResult struct {
		List []Order `json:"list"`
	}
	if err := decodeResult(serverResp, &orderListResult); err != nil {
		return nil, fmt.Errorf("failed to parse orders response: %w", err)
	}
	return orderListResult.List, nil
}
