package trader

import (
	"context"
	"testing"

	"github.com/adshao/go-binance/v2/common"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ordinex/signalrelay/internal/domain"
)

func TestClassifyBinanceErr(t *testing.T) {
	tests := []struct {
		name     string
		code     int64
		sentinel error
	}{
		{name: "invalid key permissions", code: -2015, sentinel: ErrInvalidCredentials},
		{name: "bad key format", code: -2014, sentinel: ErrInvalidCredentials},
		{name: "bad signature", code: -1022, sentinel: ErrInvalidCredentials},
		{name: "insufficient balance", code: -2018, sentinel: ErrInsufficientBalance},
		{name: "insufficient margin", code: -2019, sentinel: ErrInsufficientBalance},
		{name: "notional too small", code: -4164, sentinel: ErrInsufficientBalance},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			apiErr := &common.APIError{Code: tt.code, Message: "venue says no"}
			classified := classifyBinanceErr(errors.Wrap(apiErr, "request failed"))
			assert.ErrorIs(t, classified, tt.sentinel)
		})
	}

	t.Run("unrelated api code passes through", func(t *testing.T) {
		apiErr := &common.APIError{Code: -1001, Message: "internal error"}
		classified := classifyBinanceErr(errors.Wrap(apiErr, "request failed"))
		assert.NotErrorIs(t, classified, ErrInvalidCredentials)
		assert.NotErrorIs(t, classified, ErrInsufficientBalance)
	})

	t.Run("nil stays nil", func(t *testing.T) {
		assert.NoError(t, classifyBinanceErr(nil))
	})
}

func TestClassifyBybitErr(t *testing.T) {
	credentials := classifyBybitErr(errors.New("retCode: 10003, retMsg: API key is invalid"))
	assert.ErrorIs(t, credentials, ErrInvalidCredentials)

	balance := classifyBybitErr(errors.New("retCode: 110007, retMsg: insufficient available balance"))
	assert.ErrorIs(t, balance, ErrInsufficientBalance)

	other := classifyBybitErr(errors.New("retCode: 10006, retMsg: too many visits"))
	assert.NotErrorIs(t, other, ErrInvalidCredentials)
	assert.NotErrorIs(t, other, ErrInsufficientBalance)
}

func TestPaperTraderRecordsOrders(t *testing.T) {
	paper := NewPaperTrader("USDT", decimal.NewFromInt(10000), nil)
	pair := domain.Pair{From: "SOL", To: "USDT"}
	ctx := context.Background()

	balance, err := paper.GetBalance(ctx, "USDT")
	require.NoError(t, err)
	assert.Equal(t, "10000", balance.String())

	require.NoError(t, paper.SetLeverage(ctx, pair, 3))

	ack, err := paper.PlaceMarketOrder(ctx, pair, domain.SideLong, decimal.NewFromFloat(1.5), "order-1")
	require.NoError(t, err)
	assert.Equal(t, "order-1", ack.OrderID)
	assert.Equal(t, "1.5", ack.ExecutedQty.String())

	_, err = paper.PlaceStopLoss(ctx, pair, domain.SideLong, decimal.NewFromFloat(1.5), decimal.NewFromInt(140), "order-1-sl")
	require.NoError(t, err)
	_, err = paper.PlaceTakeProfit(ctx, pair, domain.SideLong, decimal.NewFromFloat(1.5), decimal.NewFromInt(190), "order-1-tp")
	require.NoError(t, err)

	orders := paper.Orders()
	require.Len(t, orders, 3)
	assert.False(t, orders[0].Protective)
	assert.True(t, orders[1].Protective)
	assert.Equal(t, "140", orders[1].TriggerPrice.String())
	assert.True(t, orders[2].Protective)
	assert.Equal(t, "190", orders[2].TriggerPrice.String())
}
