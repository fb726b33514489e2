package brokers

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	PaperBaseURL string `envconfig:"PAPER_BASE_URL"`

	// BinancePairs is the order-history watchlist, comma separated.
	BinancePairs []string `envconfig:"BINANCE_PAIRS" default:"BTC/USDT,ETH/USDT"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}

// DefaultRegistry wires the bundled activity sources from env config.
func DefaultRegistry() *Registry {
	config := GetConfig()

	registry := NewRegistry()
	registry.Register("paper", NewPaperClient(config.PaperBaseURL))
	registry.Register("binance", NewBinanceSource(config.BinancePairs))
	return registry
}
