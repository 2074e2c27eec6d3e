package internal

import (
	"context"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/ordinex/signalrelay/internal/clients"
	"github.com/ordinex/signalrelay/internal/domain"
	"github.com/ordinex/signalrelay/internal/registry"
	"github.com/ordinex/signalrelay/internal/services/trader"
)

// NewTraderFactory returns the factory dispatching accounts to
// platform-specific trader implementations. This is the single point of
// truth for supported platforms.
func NewTraderFactory(logger *zap.Logger) registry.TraderFactory {
	return func(ctx context.Context, account domain.Account) (trader.Trader, error) {
		switch account.Platform {
		case domain.PlatformBinance:
			client := clients.NewBinanceFuturesClient(account.Credentials.Key, account.Credentials.Secret, account.Testnet())
			return trader.NewBinanceTrader(client), nil
		case domain.PlatformBybit:
			client := clients.NewBybitClient(account.Credentials.Key, account.Credentials.Secret, account.Testnet())
			return trader.NewBybitTrader(client), nil
		case domain.PlatformHyperliquid:
			client, err := clients.NewHyperliquidClient(ctx, account.Credentials.Secret, account.Testnet())
			if err != nil {
				return nil, errors.Wrapf(err, "failed to create hyperliquid client for account %s", account.ID)
			}
			return trader.NewHyperliquidTrader(client.Exchange(), client.AccountAddress())
		case domain.PlatformPaper:
			paperLogger := logger.Named("paper").With(zap.String("account", account.ID))
			return trader.NewPaperTrader("USDT", decimal.NewFromInt(10000), paperLogger), nil
		default:
			return nil, errors.Errorf("unsupported platform: %s", account.Platform)
		}
	}
}
