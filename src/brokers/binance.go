package brokers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/nntaoli-project/goex"
	"github.com/nntaoli-project/goex/binance"
	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"
)

// BinanceSource adapts goex's binance client to the ActivitySource
// interface. goex exposes order history per currency pair, so the source is
// configured with a pair watchlist; finished orders become FILL activities.
type BinanceSource struct {
	pairs      []goex.CurrencyPair
	httpClient *http.Client

	// newAPI is swappable in tests.
	newAPI func(apiKey, apiSecret string) goex.API
}

// NewBinanceSource builds a source watching the given pairs, written as
// "BTC/USDT".
func NewBinanceSource(pairs []string) *BinanceSource {
	currencyPairs := make([]goex.CurrencyPair, 0, len(pairs))
	for _, p := range pairs {
		parts := strings.SplitN(p, "/", 2)
		if len(parts) != 2 {
			logger.WithField("pair", p).Warn("skipping malformed binance pair")
			continue
		}
		currencyPairs = append(currencyPairs, goex.NewCurrencyPair(
			goex.Currency{Symbol: strings.ToUpper(parts[0])},
			goex.Currency{Symbol: strings.ToUpper(parts[1])},
		))
	}

	source := &BinanceSource{
		pairs:      currencyPairs,
		httpClient: http.DefaultClient,
	}
	source.newAPI = func(apiKey, apiSecret string) goex.API {
		apiConfig := &goex.APIConfig{
			HttpClient:   source.httpClient,
			Endpoint:     binance.GLOBAL_API_BASE_URL,
			ApiKey:       apiKey,
			ApiSecretKey: apiSecret,
		}
		return binance.NewWithConfig(apiConfig)
	}
	return source
}

// FetchActivities lists finished orders for each watched pair and maps them
// to fill activities. A failure on one pair fails the whole call so the
// poller's watermark does not advance past unseen fills.
func (s *BinanceSource) FetchActivities(ctx context.Context, authHandle string, since *time.Time) ([]Activity, error) {
	apiKey, apiSecret, err := SplitAuthHandle(authHandle)
	if err != nil {
		return nil, err
	}

	api := s.newAPI(apiKey, apiSecret)

	var activities []Activity
	for _, pair := range s.pairs {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		orders, err := api.GetOrderHistorys(pair)
		if err != nil {
			return nil, err
		}

		for i := range orders {
			order := orders[i]
			if order.Status != goex.ORDER_FINISH {
				continue
			}

			filledAt := time.UnixMilli(int64(order.OrderTime)).UTC()
			if since != nil && !filledAt.After(*since) {
				continue
			}

			price := order.AvgPrice
			if price == 0 {
				price = order.Price
			}

			activities = append(activities, Activity{
				Type:      ActivityTypeFill,
				Timestamp: filledAt,
				Data: ActivityData{
					Symbol:   pair.ToSymbol("/"),
					Side:     sideFromGoex(order.Side),
					Quantity: decimal.NewFromFloat(order.DealAmount),
					Price:    decimal.NewFromFloat(price),
					FilledAt: filledAt,
				},
			})
		}
	}
	return activities, nil
}

func sideFromGoex(side goex.TradeSide) string {
	switch side {
	case goex.BUY, goex.BUY_MARKET:
		return "buy"
	case goex.SELL, goex.SELL_MARKET:
		return "sell"
	}
	return ""
}
