package bybit

import (
	"context"
	"fmt"
	"time"
)

// WalletBalance is one coin's balance within the unified account.
type WalletBalance struct {
	Coin      string
	Total     float64
	Available float64
	Locked    float64
}

// GetWalletBalance retrieves the unified-account balance for one coin.
func (c *Client) GetWalletBalance(ctx context.Context, coin string) (*WalletBalance, error) {
	params := map[string]interface{}{
		"accountType": "UNIFIED",
	}
	if coin != "" {
		params["coin"] = coin
	}

	if err := c.throttle(ctx); err != nil {
		return nil, err
	}
	result, err := c.httpClient.NewUtaBybitServiceWithParams(params).GetAccountWallet(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get wallet balance: %w", err)
	}

	serverResp, err := checkResponse(result)
	if err != nil {
		return nil, err
	}

	var walletResult struct {
		List []struct {
			Coin []struct {
				Coin            string `json:"coin"`
				WalletBalance   string `json:"walletBalance"`
				AvailableToWithdraw string `json:"availableToWithdraw"`
				Equity          string `json:"equity"`
				Locked          string `json:"locked"`
			} `json:"coin"`
		} `json:"list"`
	}
	if err := decodeResult(serverResp, &walletResult); err != nil {
		return nil, fmt.Errorf("failed to parse wallet response: %w", err)
	}

	for _, account := range walletResult.List {
		for _, entry := range account.Coin {
			if entry.Coin != coin {
				continue
			}
			total := parseFloat64(entry.WalletBalance)
			locked := parseFloat64(entry.Locked)
			available := parseFloat64(entry.AvailableToWithdraw)
			if available == 0 && total > locked {
				available = total - locked
			}
			return &WalletBalance{
				Coin:      entry.Coin,
				Total:     total,
				Available: available,
				Locked:    locked,
			}, nil
		}
	}
	return nil, fmt.Errorf("no balance found for %s", coin)
}

// feeRateCacheTTL bounds how long cached fee rates are trusted. Fee tiers
// change rarely; an hour keeps the sizing path off the REST API.
const feeRateCacheTTL = time.Hour

type cachedFeeRates struct {
	rates     FeeRates
	fetchedAt time.Time
}

// GetFeeRates retrieves the maker/taker fee fractions for a symbol, cached
// for an hour per symbol.
func (c *Client) GetFeeRates(ctx context.Context, symbol string) (*FeeRates, error) {
	c.feeMu.Lock()
	if cached, ok := c.feeCache[symbol]; ok && time.Since(cached.fetchedAt) < feeRateCacheTTL {
		c.feeMu.Unlock()
		rates := cached.rates
		return &rates, nil
	}
	c.feeMu.Unlock()

	params := map[string]interface{}{
		"category": c.category,
		"symbol":   symbol,
	}

	if err := c.throttle(ctx); err != nil {
		return nil, err
	}
	result, err := c.httpClient.NewUtaBybitServiceWithParams(params).GetFeeRates(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get fee rates: %w", err)
	}

	serverResp, err := checkResponse(result)
	if err != nil {
		return nil, err
	}

	var feeResult struct {
		List []struct {
			Symbol       string `json:"symbol"`
			MakerFeeRate string `json:"makerFeeRate"`
			TakerFeeRate string `json:"takerFeeRate"`
		} `json:"list"`
	}
	if err := decodeResult(serverResp, &feeResult); err != nil {
		return nil, fmt.Errorf("failed to parse fee rate response: %w", err)
	}
	if len(feeResult.List) == 0 {
		return nil, fmt.Errorf("no fee rates for %s", symbol)
	}

	rates := FeeRates{
		Symbol:    feeResult.List[0].Symbol,
		MakerRate: parseFloat64(feeResult.List[0].MakerFeeRate),
		TakerRate: parseFloat64(feeResult.List[0].TakerFeeRate),
	}

	c.feeMu.Lock()
	c.feeCache[symbol] = cachedFeeRates{rates: rates, fetchedAt: time.Now()}
	c.feeMu.Unlock()

	return &rates, nil
}

// CalculateMargin returns the initial margin required for an order of the
// given quantity, price and leverage.
func (c *Client) CalculateMargin(quantity, price, leverage float64) (float64, error) {
	if leverage <= 0 {
		return 0, fmt.Errorf("leverage must be positive, got %v", leverage)
	}
	return quantity * price / leverage, nil
}

// CalculateFees estimates the round-trip entry fee on the leveraged
// notional value.
func (c *Client) CalculateFees(ctx context.Context, symbol string, quantity, price, leverage float64, taker bool) (float64, error) {
	rates, err := c.GetFeeRates(ctx, symbol)
	if err != nil {
		return 0, err
	}

	rate := rates.MakerRate
	if taker {
		rate = rates.TakerRate
	}
	leveragedValue := quantity * price * leverage
	return leveragedValue * rate, nil
}
