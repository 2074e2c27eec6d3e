package trader

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/ordinex/signalrelay/internal/domain"
)

// PaperTrader is an in-memory venue for dry runs. Every order is accepted
// and acknowledged instantly; the wallet stays static because no exits are
// simulated.
type PaperTrader struct {
	mu     sync.RWMutex
	logger *zap.Logger
	wallet map[string]decimal.Decimal
	orders []PaperOrder
}

// PaperOrder a recorded dry-run order.
type PaperOrder struct {
	Pair          domain.Pair
	Side          domain.Side
	Quantity      decimal.Decimal
	TriggerPrice  decimal.Decimal
	ClientOrderID string
	Protective    bool
}

// NewPaperTrader creates a paper venue holding quoteBalance in currency.
func NewPaperTrader(currency string, quoteBalance decimal.Decimal, logger *zap.Logger) *PaperTrader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PaperTrader{
		logger: logger,
		wallet: map[string]decimal.Decimal{currency: quoteBalance},
	}
}

func (t *PaperTrader) Platform() domain.Platform {
	return domain.PlatformPaper
}

func (t *PaperTrader) GetBalance(_ context.Context, currency string) (decimal.Decimal, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.wallet[currency], nil
}

func (t *PaperTrader) SetLeverage(_ context.Context, pair domain.Pair, leverage int) error {
	t.logger.Debug("paper leverage set",
		zap.String("pair", pair.String()),
		zap.Int("leverage", leverage))
	return nil
}

func (t *PaperTrader) PlaceMarketOrder(_ context.Context, pair domain.Pair, side domain.Side, quantity decimal.Decimal, clientOrderID string) (*OrderAck, error) {
	t.mu.Lock()
	t.orders = append(t.orders, PaperOrder{
		Pair:          pair,
		Side:          side,
		Quantity:      quantity,
		ClientOrderID: clientOrderID,
	})
	t.mu.Unlock()

	t.logger.Info("paper order filled",
		zap.String("pair", pair.String()),
		zap.String("side", side.String()),
		zap.String("quantity", quantity.String()))

	return &OrderAck{OrderID: clientOrderID, ExecutedQty: quantity}, nil
}

func (t *PaperTrader) PlaceStopLoss(_ context.Context, pair domain.Pair, side domain.Side, quantity, stopPrice decimal.Decimal, clientOrderID string) (string, error) {
	t.recordProtective(pair, side, quantity, stopPrice, clientOrderID)
	return clientOrderID, nil
}

func (t *PaperTrader) PlaceTakeProfit(_ context.Context, pair domain.Pair, side domain.Side, quantity, targetPrice decimal.Decimal, clientOrderID string) (string, error) {
	t.recordProtective(pair, side, quantity, targetPrice, clientOrderID)
	return clientOrderID, nil
}

func (t *PaperTrader) recordProtective(pair domain.Pair, side domain.Side, quantity, price decimal.Decimal, clientOrderID string) {
	t.mu.Lock()
	t.orders = append(t.orders, PaperOrder{
		Pair:          pair,
		Side:          side,
		Quantity:      quantity,
		TriggerPrice:  price,
		ClientOrderID: clientOrderID,
		Protective:    true,
	})
	t.mu.Unlock()
}

// Orders returns a copy of all recorded orders.
func (t *PaperTrader) Orders() []PaperOrder {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]PaperOrder, len(t.orders))
	copy(out, t.orders)
	return out
}
