// Package trader implements the exchange capability surface the execution
// coordinator runs against: balance lookup, leverage, market entries and
// protective exit orders.
package trader

import (
	"context"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/ordinex/signalrelay/internal/domain"
)

// Sentinel errors implementations wrap exchange failures into, so that
// callers can classify outcomes with errors.Is regardless of the venue.
var (
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrInvalidCredentials  = errors.New("invalid credentials")
)

// OrderAck acknowledgment of a placed order. AvgPrice and ExecutedQty stay
// zero when the venue omits fill data in the ack.
type OrderAck struct {
	OrderID     string
	AvgPrice    decimal.Decimal
	ExecutedQty decimal.Decimal
}

// Trader places orders for one account on one exchange backend. The side
// argument of the protective methods is the position side; implementations
// derive the closing direction from it.
type Trader interface {
	Platform() domain.Platform
	GetBalance(ctx context.Context, currency string) (decimal.Decimal, error)
	SetLeverage(ctx context.Context, pair domain.Pair, leverage int) error
	PlaceMarketOrder(ctx context.Context, pair domain.Pair, side domain.Side, quantity decimal.Decimal, clientOrderID string) (*OrderAck, error)
	PlaceStopLoss(ctx context.Context, pair domain.Pair, side domain.Side, quantity, stopPrice decimal.Decimal, clientOrderID string) (string, error)
	PlaceTakeProfit(ctx context.Context, pair domain.Pair, side domain.Side, quantity, targetPrice decimal.Decimal, clientOrderID string) (string, error)
}
