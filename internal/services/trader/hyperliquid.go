package trader

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	hyperliquid "github.com/sonirico/go-hyperliquid"

	"github.com/ordinex/signalrelay/internal/domain"
)

// entrySlippage tolerated price drift when emulating a market entry with an
// IOC limit order.
const entrySlippage = 0.005

// HyperliquidTrader executes on hyperliquid perpetuals.
type HyperliquidTrader struct {
	ex          *hyperliquid.Exchange
	info        *hyperliquid.Info
	accountAddr string
}

func NewHyperliquidTrader(ex *hyperliquid.Exchange, accountAddr string) (*HyperliquidTrader, error) {
	if ex == nil {
		return nil, errors.New("hyperliquid exchange is nil")
	}
	return &HyperliquidTrader{
		ex:          ex,
		info:        ex.Info(),
		accountAddr: accountAddr,
	}, nil
}

func (t *HyperliquidTrader) Platform() domain.Platform {
	return domain.PlatformHyperliquid
}

func (t *HyperliquidTrader) GetBalance(ctx context.Context, currency string) (decimal.Decimal, error) {
	st, err := t.info.UserState(ctx, t.accountAddr)
	if err != nil {
		return decimal.Zero, classifyHyperliquidErr(errors.Wrap(err, "get user state"))
	}

	// perp collateral is USD denominated; withdrawable is the free part
	if st.Withdrawable != "" {
		if d, err := decimal.NewFromString(st.Withdrawable); err == nil {
			return d, nil
		}
	}
	if st.MarginSummary.TotalRawUsd != "" {
		if d, err := decimal.NewFromString(st.MarginSummary.TotalRawUsd); err == nil {
			return d, nil
		}
	}

	return decimal.Zero, nil
}

func (t *HyperliquidTrader) SetLeverage(ctx context.Context, pair domain.Pair, leverage int) error {
	if _, err := t.ex.UpdateLeverage(ctx, leverage, pair.From, true); err != nil {
		return classifyHyperliquidErr(errors.Wrapf(err, "failed to set leverage %d for %s", leverage, pair.From))
	}
	return nil
}

func (t *HyperliquidTrader) PlaceMarketOrder(ctx context.Context, pair domain.Pair, side domain.Side, quantity decimal.Decimal, clientOrderID string) (*OrderAck, error) {
	isBuy := side == domain.SideLong
	size, _ := quantity.Round(8).Float64()

	// limit at a slipped price with TIF IOC emulates a market order
	px, err := t.ex.SlippagePrice(ctx, pair.From, isBuy, entrySlippage, nil)
	if err != nil {
		return nil, classifyHyperliquidErr(errors.Wrap(err, "slippage price"))
	}

	cloid := cloidFromID(clientOrderID)
	req := hyperliquid.CreateOrderRequest{
		Coin:          pair.From,
		IsBuy:         isBuy,
		Price:         px,
		Size:          size,
		ClientOrderID: &cloid,
		OrderType: hyperliquid.OrderType{
			Limit: &hyperliquid.LimitOrderType{Tif: hyperliquid.TifIoc},
		},
	}

	if _, err := t.ex.Order(ctx, req, nil); err != nil {
		return nil, classifyHyperliquidErr(errors.Wrapf(err, "failed to place hyperliquid order for %s", pair.From))
	}

	return &OrderAck{OrderID: cloid, AvgPrice: decimal.NewFromFloat(px), ExecutedQty: quantity}, nil
}

func (t *HyperliquidTrader) PlaceStopLoss(ctx context.Context, pair domain.Pair, side domain.Side, quantity, stopPrice decimal.Decimal, clientOrderID string) (string, error) {
	return t.placeTrigger(ctx, pair, side, quantity, stopPrice, hyperliquid.StopLoss, clientOrderID)
}

func (t *HyperliquidTrader) PlaceTakeProfit(ctx context.Context, pair domain.Pair, side domain.Side, quantity, targetPrice decimal.Decimal, clientOrderID string) (string, error) {
	return t.placeTrigger(ctx, pair, side, quantity, targetPrice, hyperliquid.TakeProfit, clientOrderID)
}

func (t *HyperliquidTrader) placeTrigger(
	ctx context.Context,
	pair domain.Pair,
	side domain.Side,
	quantity decimal.Decimal,
	triggerPrice decimal.Decimal,
	tpsl hyperliquid.Tpsl,
	clientOrderID string,
) (string, error) {
	sizeF, _ := quantity.Round(8).Float64()
	priceF, _ := triggerPrice.Round(8).Float64()
	cloid := cloidFromID(clientOrderID)

	req := hyperliquid.CreateOrderRequest{
		Coin:       pair.From,
		IsBuy:      side == domain.SideShort, // closing direction
		Price:      priceF,
		Size:       sizeF,
		ReduceOnly: true,
		OrderType: hyperliquid.OrderType{
			Trigger: &hyperliquid.TriggerOrderType{
				TriggerPx: priceF,
				IsMarket:  true,
				Tpsl:      tpsl,
			},
		},
		ClientOrderID: &cloid,
	}

	if _, err := t.ex.Order(ctx, req, nil); err != nil {
		return "", classifyHyperliquidErr(errors.Wrapf(err, "failed to place hyperliquid %s trigger for %s", tpsl, pair.From))
	}

	return cloid, nil
}

// cloidFromID converts a free-form client ID into a valid hyperliquid cloid
// (0x plus 32 hex chars).
func cloidFromID(id string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(id)))
	return "0x" + hex.EncodeToString(sum[:16])
}

// classifyHyperliquidErr tags API errors with the shared sentinel taxonomy.
// The SDK reports venue rejections as message text.
func classifyHyperliquidErr(err error) error {
	if err == nil {
		return nil
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "margin"), strings.Contains(msg, "insufficient"):
		return errors.Wrap(ErrInsufficientBalance, err.Error())
	case strings.Contains(msg, "signature"), strings.Contains(msg, "unauthorized"):
		return errors.Wrap(ErrInvalidCredentials, err.Error())
	}

	return err
}
