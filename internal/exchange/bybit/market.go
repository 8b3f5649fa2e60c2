package bybit

import (
	"context"
	"fmt"
	"time"
)

// GetKlines retrieves candles for a symbol, oldest first. The venue returns
// newest first; the order is reversed here so indicator code reads
// chronologically.
func (c *Client) GetKlines(ctx context.Context, symbol, interval string, limit int) ([]Kline, error) {
	params := map[string]interface{}{
		"category": c.category,
		"symbol":   symbol,
		"interval": interval,
	}
	if limit > 0 {
		params["limit"] = limit
	}

	if err := c.throttle(ctx); err != nil {
		return nil, err
	}
	result, err := c.httpClient.NewUtaBybitServiceWithParams(params).GetMarketKline(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get klines: %w", err)
	}

	serverResp, err := checkResponse(result)
	if err != nil {
		return nil, err
	}

	var klineResult struct {
		List [][]string `json:"list"`
	}
	if err := decodeResult(serverResp, &klineResult); err != nil {
		return nil, fmt.Errorf("failed to parse kline response: %w", err)
	}

	klines := make([]Kline, 0, len(klineResult.List))
	for i := len(klineResult.List) - 1; i >= 0; i-- {
		row := klineResult.List[i]
		if len(row) < 7 {
			continue
		}
		klines = append(klines, Kline{
			StartTime: parseTimestamp(row[0]),
			Open:      parseFloat64(row[1]),
			High:      parseFloat64(row[2]),
			Low:       parseFloat64(row[3]),
			Close:     parseFloat64(row[4]),
			Volume:    parseFloat64(row[5]),
			Turnover:  parseFloat64(row[6]),
		})
	}
	return klines, nil
}

// GetTicker retrieves the ticker snapshot for a symbol.
func (c *Client) GetTicker(ctx context.Context, symbol string) (*TickerInfo, error) {
	params := map[string]interface{}{
		"category": c.category,
		"symbol":   symbol,
	}

	if err := c.throttle(ctx); err != nil {
		return nil, err
	}
	result, err := c.httpClient.NewUtaBybitServiceWithParams(params).GetMarketTickers(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get ticker: %w", err)
	}

	serverResp, err := checkResponse(result)
	if err != nil {
		return nil, err
	}

	var tickerResult struct {
		List []struct {
			Symbol    string `json:"symbol"`
			LastPrice string `json:"lastPrice"`
			Bid1Price string `json:"bid1Price"`
			Ask1Price string `json:"ask1Price"`
			Volume24h string `json:"volume24h"`
		} `json:"list"`
	}
	if err := decodeResult(serverResp, &tickerResult); err != nil {
		return nil, fmt.Errorf("failed to parse ticker response: %w", err)
	}
	if len(tickerResult.List) == 0 {
		return nil, fmt.Errorf("no ticker data for %s", symbol)
	}

	t := tickerResult.List[0]
	return &TickerInfo{
		Symbol:    t.Symbol,
		LastPrice: parseFloat64(t.LastPrice),
		Bid1Price: parseFloat64(t.Bid1Price),
		Ask1Price: parseFloat64(t.Ask1Price),
		Volume24h: parseFloat64(t.Volume24h),
	}, nil
}

// GetLatestPrice retrieves the last traded price for a symbol.
func (c *Client) GetLatestPrice(ctx context.Context, symbol string) (float64, error) {
	ticker, err := c.GetTicker(ctx, symbol)
	if err != nil {
		return 0, err
	}
	if ticker.LastPrice <= 0 {
		return 0, fmt.Errorf("no valid price for %s", symbol)
	}
	return ticker.LastPrice, nil
}

// GetOrderBook retrieves the order book for a symbol to the given depth.
func (c *Client) GetOrderBook(ctx context.Context, symbol string, depth int) (*OrderBookSnapshot, error) {
	if depth <= 0 {
		depth = 25
	}
	params := map[string]interface{}{
		"category": c.category,
		"symbol":   symbol,
		"limit":    depth,
	}

	if err := c.throttle(ctx); err != nil {
		return nil, err
	}
	result, err := c.httpClient.NewUtaBybitServiceWithParams(params).GetOrderBookInfo(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get order book: %w", err)
	}

	serverResp, err := checkResponse(result)
	if err != nil {
		return nil, err
	}

	var bookResult struct {
		Symbol string     `json:"s"`
		Bids   [][]string `json:"b"`
		Asks   [][]string `json:"a"`
		Ts     int64      `json:"ts"`
	}
	if err := decodeResult(serverResp, &bookResult); err != nil {
		return nil, fmt.Errorf("failed to parse order book response: %w", err)
	}

	book := &OrderBookSnapshot{Symbol: bookResult.Symbol, Timestamp: time.UnixMilli(bookResult.Ts)}
	for _, level := range bookResult.Bids {
		if len(level) >= 2 {
			book.Bids = append(book.Bids, BookLevel{
				Price: parseFloat64(level[0]),
				Size:  parseFloat64(level[1]),
			})
		}
	}
	for _, level := range bookResult.Asks {
		if len(level) >= 2 {
			book.Asks = append(book.Asks, BookLevel{
				Price: parseFloat64(level[0]),
				Size:  parseFloat64(level[1]),
			})
		}
	}
	return book, nil
}
