package trader

import (
	"context"

	"github.com/adshao/go-binance/v2/common"
	"github.com/adshao/go-binance/v2/futures"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/ordinex/signalrelay/internal/domain"
)

// BinanceTrader executes on binance USDT-margined futures.
type BinanceTrader struct {
	client *futures.Client
}

func NewBinanceTrader(client *futures.Client) *BinanceTrader {
	return &BinanceTrader{client: client}
}

func (t *BinanceTrader) Platform() domain.Platform {
	return domain.PlatformBinance
}

func (t *BinanceTrader) GetBalance(ctx context.Context, currency string) (decimal.Decimal, error) {
	balances, err := t.client.NewGetBalanceService().Do(ctx)
	if err != nil {
		return decimal.Zero, classifyBinanceErr(errors.Wrap(err, "failed to get binance futures balance"))
	}

	for _, balance := range balances {
		if balance.Asset == currency {
			free, err := decimal.NewFromString(balance.AvailableBalance)
			if err != nil {
				return decimal.Zero, errors.Wrap(err, "failed to parse balance")
			}
			return free, nil
		}
	}

	return decimal.Zero, nil
}

func (t *BinanceTrader) SetLeverage(ctx context.Context, pair domain.Pair, leverage int) error {
	_, err := t.client.NewChangeLeverageService().
		Symbol(pair.Symbol()).
		Leverage(leverage).
		Do(ctx)
	if err != nil {
		return classifyBinanceErr(errors.Wrapf(err, "failed to set leverage %d for %s", leverage, pair.Symbol()))
	}
	return nil
}

func (t *BinanceTrader) PlaceMarketOrder(ctx context.Context, pair domain.Pair, side domain.Side, quantity decimal.Decimal, clientOrderID string) (*OrderAck, error) {
	quantity = quantity.RoundFloor(4)

	resp, err := t.client.NewCreateOrderService().
		Symbol(pair.Symbol()).
		Side(binanceSide(side)).
		Type(futures.OrderTypeMarket).
		Quantity(quantity.String()).
		NewClientOrderID(clientOrderID).
		NewOrderResponseType(futures.NewOrderRespTypeRESULT).
		Do(ctx)
	if err != nil {
		return nil, classifyBinanceErr(errors.Wrapf(err, "failed to place binance market order for %s", pair.Symbol()))
	}

	ack := &OrderAck{OrderID: resp.ClientOrderID}
	if resp.AvgPrice != "" {
		if price, err := decimal.NewFromString(resp.AvgPrice); err == nil {
			ack.AvgPrice = price
		}
	}
	if resp.ExecutedQuantity != "" {
		if qty, err := decimal.NewFromString(resp.ExecutedQuantity); err == nil {
			ack.ExecutedQty = qty
		}
	}

	return ack, nil
}

func (t *BinanceTrader) PlaceStopLoss(ctx context.Context, pair domain.Pair, side domain.Side, quantity, stopPrice decimal.Decimal, clientOrderID string) (string, error) {
	return t.placeProtectiveOrder(ctx, pair, side, quantity, stopPrice, futures.OrderTypeStopMarket, clientOrderID)
}

func (t *BinanceTrader) PlaceTakeProfit(ctx context.Context, pair domain.Pair, side domain.Side, quantity, targetPrice decimal.Decimal, clientOrderID string) (string, error) {
	return t.placeProtectiveOrder(ctx, pair, side, quantity, targetPrice, futures.OrderTypeTakeProfitMarket, clientOrderID)
}

// placeProtectiveOrder submits a reduce-only trigger order that closes the
// position opened with side.
func (t *BinanceTrader) placeProtectiveOrder(
	ctx context.Context,
	pair domain.Pair,
	side domain.Side,
	quantity decimal.Decimal,
	triggerPrice decimal.Decimal,
	orderType futures.OrderType,
	clientOrderID string,
) (string, error) {
	quantity = quantity.RoundFloor(4)

	resp, err := t.client.NewCreateOrderService().
		Symbol(pair.Symbol()).
		Side(binanceSide(side.Opposite())).
		Type(orderType).
		Quantity(quantity.String()).
		StopPrice(triggerPrice.String()).
		ReduceOnly(true).
		NewClientOrderID(clientOrderID).
		Do(ctx)
	if err != nil {
		return "", classifyBinanceErr(errors.Wrapf(err, "failed to place binance %s order", orderType))
	}

	return resp.ClientOrderID, nil
}

func binanceSide(side domain.Side) futures.SideType {
	if side == domain.SideShort {
		return futures.SideTypeSell
	}
	return futures.SideTypeBuy
}

// classifyBinanceErr tags API errors with the shared sentinel taxonomy.
func classifyBinanceErr(err error) error {
	if err == nil {
		return nil
	}

	var apiErr *common.APIError
	if !errors.As(err, &apiErr) {
		return err
	}

	switch apiErr.Code {
	case -1022, -2014, -2015:
		// signature, key format, key/IP/permissions
		return errors.Wrap(ErrInvalidCredentials, apiErr.Message)
	case -2018, -2019, -4164:
		// balance insufficient, margin insufficient, notional too small
		return errors.Wrap(ErrInsufficientBalance, apiErr.Message)
	}

	return err
}
