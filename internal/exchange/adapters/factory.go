package adapters

import (
	"fmt"

	"github.com/ducminhle1904/leverage-trade-engine/internal/config"
	"github.com/ducminhle1904/leverage-trade-engine/internal/exchange"
	"github.com/ducminhle1904/leverage-trade-engine/internal/exchange/bybit"
)

// NewExchange builds the venue client named in the configuration.
func NewExchange(cfg *config.Config) (exchange.Exchange, error) {
	switch cfg.Exchange.Name {
	case "bybit":
		client := bybit.NewClient(bybit.Config{
			APIKey:    cfg.Exchange.APIKey,
			APISecret: cfg.Exchange.APISecret,
			Testnet:   cfg.Exchange.Testnet,
			Demo:      cfg.Exchange.Demo,
			Category:  cfg.Exchange.Category,
		})
		return NewBybitAdapter(client), nil
	default:
		return nil, fmt.Errorf("unsupported exchange: %s", cfg.Exchange.Name)
	}
}
