package clients

import (
	"github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/futures"
)

const binanceFuturesTestnetURL = "https://testnet.binancefuture.com"

// NewBinanceFuturesClient creates a USD-M futures client for the given credentials.
func NewBinanceFuturesClient(apiKey, apiSecret string, testnet bool) *futures.Client {
	client := futures.NewClient(apiKey, apiSecret)
	if testnet {
		client.BaseURL = binanceFuturesTestnetURL
	}

	return client
}

// NewPublicBinanceClient creates a keyless spot client for public market data.
func NewPublicBinanceClient() *binance.Client {
	return binance.NewClient("", "")
}
