package bybit

import (
	"context"
	"fmt"
	"sync"

	bybit_api "github.com/bybit-exchange/bybit.go.api"

	"github.com/ducminhle1904/leverage-trade-engine/internal/safety"
)

// Client wraps the Bybit v5 API client for linear futures trading. All
// calls pass through a shared token bucket; the venue throttles keys that
// exceed 10 requests per second.
type Client struct {
	httpClient *bybit_api.Client
	limiter    *safety.RateLimiter
	category   string
	testnet    bool
	demo       bool

	feeMu    sync.Mutex
	feeCache map[string]cachedFeeRates
}

// Config holds the configuration for the Bybit client
type Config struct {
	APIKey    string
	APISecret string
	Testnet   bool
	Demo      bool // demo trading environment (paper trading)
	Category  string
}

// NewClient creates a new Bybit client
func NewClient(config Config) *Client {
	var baseURL string
	if config.Demo {
		baseURL = "https://api-demo.bybit.com"
	} else if config.Testnet {
		baseURL = bybit_api.TESTNET
	} else {
		baseURL = bybit_api.MAINNET
	}

	httpClient := bybit_api.NewBybitHttpClient(
		config.APIKey,
		config.APISecret,
		bybit_api.WithBaseURL(baseURL),
	)

	category := config.Category
	if category == "" {
		category = "linear"
	}

	return &Client{
		httpClient: httpClient,
		limiter:    safety.NewRateLimiter("bybit-rest", 10, 10),
		category:   category,
		testnet:    config.Testnet,
		demo:       config.Demo,
		feeCache:   make(map[string]cachedFeeRates),
	}
}

// GetEnvironment returns a string describing the current environment
func (c *Client) GetEnvironment() string {
	if c.demo {
		return "demo"
	} else if c.testnet {
		return "testnet"
	}
	return "mainnet"
}

// Category returns the product category the client trades.
func (c *Client) Category() string {
	return c.category
}

// throttle blocks until the rate limit admits one more request.
func (c *Client) throttle(ctx context.Context) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait aborted: %w", err)
	}
	return nil
}

// APIError is a non-zero retCode answer from the venue.
type APIError struct {
	Code    int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("bybit API error %d: %s", e.Code, e.Message)
}

// checkResponse asserts the SDK response envelope and rejects non-zero
// retCodes.
func checkResponse(response interface{}) (*bybit_api.ServerResponse, error) {
	serverResp, ok := response.(*bybit_api.ServerResponse)
	if !ok {
		return nil, fmt.Errorf("invalid response type")
	}
	if serverResp.RetCode != 0 {
		return nil, &APIError{Code: serverResp.RetCode, Message: serverResp.RetMsg}
	}
	return serverResp, nil
}
