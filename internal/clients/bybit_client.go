package clients

import (
	"github.com/hirokisan/bybit/v2"
)

func NewBybitClient(apiKey, apiSecret string, testnet bool) *bybit.Client {
	client := bybit.NewClient().WithAuth(apiKey, apiSecret)
	if testnet {
		client = client.WithBaseURL(bybit.TESTNET)
	}

	return client
}
