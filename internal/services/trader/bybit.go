package trader

import (
	"context"
	"strconv"
	"strings"

	"github.com/hirokisan/bybit/v2"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/ordinex/signalrelay/internal/domain"
)

// BybitTrader executes on bybit v5 linear contracts.
type BybitTrader struct {
	client *bybit.Client
}

func NewBybitTrader(client *bybit.Client) *BybitTrader {
	return &BybitTrader{client: client}
}

func (t *BybitTrader) Platform() domain.Platform {
	return domain.PlatformBybit
}

func (t *BybitTrader) GetBalance(ctx context.Context, currency string) (decimal.Decimal, error) {
	resp, err := t.client.V5().Account().GetWalletBalance(bybit.AccountTypeV5UNIFIED, nil)
	if err != nil {
		return decimal.Zero, classifyBybitErr(errors.Wrap(err, "failed to get bybit wallet balance"))
	}

	for _, list := range resp.Result.List {
		for _, coin := range list.Coin {
			if strings.EqualFold(string(coin.Coin), currency) {
				free, err := decimal.NewFromString(coin.WalletBalance)
				if err != nil {
					return decimal.Zero, errors.Wrap(err, "failed to parse bybit balance")
				}
				return free, nil
			}
		}
	}

	return decimal.Zero, nil
}

func (t *BybitTrader) SetLeverage(ctx context.Context, pair domain.Pair, leverage int) error {
	lev := strconv.Itoa(leverage)
	_, err := t.client.V5().Position().SetLeverage(bybit.V5SetLeverageParam{
		Category:     bybit.CategoryV5Linear,
		Symbol:       bybit.SymbolV5(pair.Symbol()),
		BuyLeverage:  lev,
		SellLeverage: lev,
	})
	if err != nil {
		// 110043: leverage already at the requested value
		if strings.Contains(err.Error(), "110043") {
			return nil
		}
		return classifyBybitErr(errors.Wrapf(err, "failed to set leverage %d for %s", leverage, pair.Symbol()))
	}
	return nil
}

func (t *BybitTrader) PlaceMarketOrder(ctx context.Context, pair domain.Pair, side domain.Side, quantity decimal.Decimal, clientOrderID string) (*OrderAck, error) {
	quantity = quantity.RoundFloor(4)

	resp, err := t.client.V5().Order().CreateOrder(bybit.V5CreateOrderParam{
		Category:    bybit.CategoryV5Linear,
		Symbol:      bybit.SymbolV5(pair.Symbol()),
		Side:        bybitSide(side),
		OrderType:   bybit.OrderTypeMarket,
		Qty:         quantity.String(),
		OrderLinkID: &clientOrderID,
	})
	if err != nil {
		return nil, classifyBybitErr(errors.Wrapf(err, "failed to place bybit market order for %s", pair.Symbol()))
	}

	// v5 acks carry no fill data; the caller falls back to the signal entry.
	return &OrderAck{OrderID: resp.Result.OrderID, ExecutedQty: quantity}, nil
}

func (t *BybitTrader) PlaceStopLoss(ctx context.Context, pair domain.Pair, side domain.Side, quantity, stopPrice decimal.Decimal, clientOrderID string) (string, error) {
	// a stop for a long triggers on falling price, for a short on rising
	direction := bybit.TriggerDirectionFall
	if side == domain.SideShort {
		direction = bybit.TriggerDirectionRise
	}
	return t.placeTriggerOrder(ctx, pair, side, quantity, stopPrice, direction, clientOrderID)
}

func (t *BybitTrader) PlaceTakeProfit(ctx context.Context, pair domain.Pair, side domain.Side, quantity, targetPrice decimal.Decimal, clientOrderID string) (string, error) {
	direction := bybit.TriggerDirectionRise
	if side == domain.SideShort {
		direction = bybit.TriggerDirectionFall
	}
	return t.placeTriggerOrder(ctx, pair, side, quantity, targetPrice, direction, clientOrderID)
}

func (t *BybitTrader) placeTriggerOrder(
	ctx context.Context,
	pair domain.Pair,
	side domain.Side,
	quantity decimal.Decimal,
	triggerPrice decimal.Decimal,
	direction bybit.TriggerDirection,
	clientOrderID string,
) (string, error) {
	quantity = quantity.RoundFloor(4)
	price := triggerPrice.String()
	reduceOnly := true

	resp, err := t.client.V5().Order().CreateOrder(bybit.V5CreateOrderParam{
		Category:         bybit.CategoryV5Linear,
		Symbol:           bybit.SymbolV5(pair.Symbol()),
		Side:             bybitSide(side.Opposite()),
		OrderType:        bybit.OrderTypeMarket,
		Qty:              quantity.String(),
		TriggerPrice:     &price,
		TriggerDirection: &direction,
		ReduceOnly:       &reduceOnly,
		OrderLinkID:      &clientOrderID,
	})
	if err != nil {
		return "", classifyBybitErr(errors.Wrapf(err, "failed to place bybit trigger order for %s", pair.Symbol()))
	}

	return resp.Result.OrderID, nil
}

func bybitSide(side domain.Side) bybit.Side {
	if side == domain.SideShort {
		return bybit.SideSell
	}
	return bybit.SideBuy
}

// classifyBybitErr tags API errors with the shared sentinel taxonomy. The
// SDK surfaces venue failures as retCode strings, so matching is textual.
func classifyBybitErr(err error) error {
	if err == nil {
		return nil
	}

	msg := err.Error()
	switch {
	// 10003 invalid api key, 10004 sign error, 33004 key expired
	case strings.Contains(msg, "10003"), strings.Contains(msg, "10004"), strings.Contains(msg, "33004"):
		return errors.Wrap(ErrInvalidCredentials, msg)
	// 110007 insufficient available balance, 110012 insufficient margin
	case strings.Contains(msg, "110007"), strings.Contains(msg, "110012"):
		return errors.Wrap(ErrInsufficientBalance, msg)
	}

	return err
}
