package coordinator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ordinex/signalrelay/internal/domain"
	"github.com/ordinex/signalrelay/internal/registry"
	"github.com/ordinex/signalrelay/internal/services/trader"
	"github.com/ordinex/signalrelay/pkg/ratelimit"
)

type placedOrder struct {
	pair     domain.Pair
	side     domain.Side
	quantity decimal.Decimal
}

type fakeTrader struct {
	mu sync.Mutex

	balance        decimal.Decimal
	balanceErr     error
	balanceDelay   time.Duration
	panicOnBalance bool
	leverageErr    error
	orderErr       error
	orderDelay     time.Duration
	stopErr        error
	takeErr        error

	balanceCalls  int
	leverageCalls []int
	orders        []placedOrder
	stops         []decimal.Decimal
	takes         []decimal.Decimal
}

func (f *fakeTrader) Platform() domain.Platform { return domain.PlatformPaper }

func (f *fakeTrader) GetBalance(ctx context.Context, _ string) (decimal.Decimal, error) {
	f.mu.Lock()
	f.balanceCalls++
	f.mu.Unlock()

	if f.panicOnBalance {
		panic("fake trader exploded")
	}
	if f.balanceDelay > 0 {
		select {
		case <-ctx.Done():
			return decimal.Zero, ctx.Err()
		case <-time.After(f.balanceDelay):
		}
	}
	if f.balanceErr != nil {
		return decimal.Zero, f.balanceErr
	}
	return f.balance, nil
}

func (f *fakeTrader) SetLeverage(_ context.Context, _ domain.Pair, leverage int) error {
	f.mu.Lock()
	f.leverageCalls = append(f.leverageCalls, leverage)
	f.mu.Unlock()
	return f.leverageErr
}

func (f *fakeTrader) PlaceMarketOrder(ctx context.Context, pair domain.Pair, side domain.Side, quantity decimal.Decimal, _ string) (*trader.OrderAck, error) {
	if f.orderDelay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(f.orderDelay):
		}
	}
	if f.orderErr != nil {
		return nil, f.orderErr
	}

	f.mu.Lock()
	f.orders = append(f.orders, placedOrder{pair: pair, side: side, quantity: quantity})
	f.mu.Unlock()

	return &trader.OrderAck{OrderID: "order-1"}, nil
}

func (f *fakeTrader) PlaceStopLoss(_ context.Context, _ domain.Pair, _ domain.Side, _, stopPrice decimal.Decimal, _ string) (string, error) {
	if f.stopErr != nil {
		return "", f.stopErr
	}
	f.mu.Lock()
	f.stops = append(f.stops, stopPrice)
	f.mu.Unlock()
	return "sl-1", nil
}

func (f *fakeTrader) PlaceTakeProfit(_ context.Context, _ domain.Pair, _ domain.Side, _, targetPrice decimal.Decimal, _ string) (string, error) {
	if f.takeErr != nil {
		return "", f.takeErr
	}
	f.mu.Lock()
	f.takes = append(f.takes, targetPrice)
	f.mu.Unlock()
	return "tp-1", nil
}

type fakeLister struct {
	accounts []registry.ManagedAccount
}

func (f *fakeLister) ListActive() []registry.ManagedAccount { return f.accounts }

func managed(id string, tr trader.Trader, mutate ...func(*domain.Account)) registry.ManagedAccount {
	acc := domain.Account{
		ID:               id,
		Platform:         domain.PlatformPaper,
		Environment:      domain.EnvironmentLive,
		IsActive:         true,
		AutoTrade:        true,
		RiskFraction:     0.02,
		PositionCapUSD:   decimal.NewFromInt(100),
		Leverage:         1,
		ProtectiveOrders: true,
	}
	for _, m := range mutate {
		m(&acc)
	}
	return registry.ManagedAccount{Account: acc, Trader: tr}
}

func signal() domain.QualifiedSignal {
	return domain.QualifiedSignal{
		Candidate: domain.Candidate{
			Pair:        domain.Pair{From: "SOL", To: "USDT"},
			Side:        domain.SideLong,
			Score:       0.95,
			Confluence:  3,
			Entry:       decimal.NewFromInt(100),
			Stop:        decimal.NewFromInt(95),
			Target:      decimal.NewFromInt(110),
			GeneratedAt: time.Now(),
		},
		GroupSize: 1,
	}
}

func newCoordinator(accounts ...registry.ManagedAccount) *Coordinator {
	return New(
		zap.NewNop(),
		&fakeLister{accounts: accounts},
		ratelimit.New(ratelimit.Rate{Capacity: 1000, PerSec: 1000}),
		time.Second,
		decimal.NewFromInt(10),
		true,
	)
}

func TestExecutePositionSizing(t *testing.T) {
	tests := []struct {
		name         string
		balance      int64
		wantQuantity string
	}{
		{name: "risk capped by ceiling", balance: 5000, wantQuantity: "1"},     // min(5000*0.02, 100) = 100 -> 100/100
		{name: "risk below ceiling", balance: 1000, wantQuantity: "0.2"},      // min(1000*0.02, 100) = 20 -> 20/100
		{name: "exactly at ceiling", balance: 10000, wantQuantity: "1"},       // 200 capped to 100
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := &fakeTrader{balance: decimal.NewFromInt(tt.balance)}
			results := newCoordinator(managed("a", tr)).Execute(context.Background(), signal())

			require.Len(t, results, 1)
			require.Equal(t, domain.StatusSuccess, results[0].Status)
			require.Len(t, tr.orders, 1)
			assert.True(t, tr.orders[0].quantity.Equal(decimal.RequireFromString(tt.wantQuantity)),
				"got quantity %s", tr.orders[0].quantity)
		})
	}
}

func TestExecuteFailureIsolation(t *testing.T) {
	trA := &fakeTrader{balance: decimal.NewFromInt(5000)}
	trB := &fakeTrader{balanceErr: errors.New("connection reset")}
	trC := &fakeTrader{balance: decimal.NewFromInt(5000)}

	results := newCoordinator(
		managed("a", trA),
		managed("b", trB),
		managed("c", trC),
	).Execute(context.Background(), signal())

	require.Len(t, results, 3)
	assert.Equal(t, domain.StatusSuccess, results[0].Status)
	assert.Equal(t, domain.StatusExchangeError, results[1].Status)
	assert.Equal(t, domain.StatusSuccess, results[2].Status)
	assert.Equal(t, "b", results[1].AccountID)
	assert.Contains(t, results[1].Error, "balance fetch")
}

func TestExecuteSkipsAutoTradeDisabled(t *testing.T) {
	tr := &fakeTrader{balance: decimal.NewFromInt(5000)}
	manual := managed("manual", tr, func(a *domain.Account) { a.AutoTrade = false })

	results := newCoordinator(manual).Execute(context.Background(), signal())

	require.Len(t, results, 1)
	assert.Equal(t, domain.StatusSkippedInactive, results[0].Status)
	// skipped accounts never touch the exchange
	assert.Zero(t, tr.balanceCalls)
	assert.Empty(t, tr.orders)
}

func TestExecutePerAccountTimeout(t *testing.T) {
	slow := &fakeTrader{balance: decimal.NewFromInt(5000), balanceDelay: 500 * time.Millisecond}
	fast := &fakeTrader{balance: decimal.NewFromInt(5000)}

	coord := New(
		zap.NewNop(),
		&fakeLister{accounts: []registry.ManagedAccount{managed("slow", slow), managed("fast", fast)}},
		ratelimit.New(ratelimit.Rate{Capacity: 1000, PerSec: 1000}),
		50*time.Millisecond,
		decimal.NewFromInt(10),
		true,
	)

	results := coord.Execute(context.Background(), signal())

	require.Len(t, results, 2)
	assert.Equal(t, domain.StatusTimeout, results[0].Status)
	assert.Equal(t, domain.StatusSuccess, results[1].Status)
}

func TestExecuteInsufficientNotional(t *testing.T) {
	tr := &fakeTrader{balance: decimal.NewFromInt(100)} // 100*0.02 = 2 < 10

	results := newCoordinator(managed("tiny", tr)).Execute(context.Background(), signal())

	require.Len(t, results, 1)
	assert.Equal(t, domain.StatusInsufficientBalance, results[0].Status)
	assert.Contains(t, results[0].Error, "minimum notional")
	assert.Empty(t, tr.orders)
}

func TestExecuteLeverage(t *testing.T) {
	t.Run("leverage above one is set before the order", func(t *testing.T) {
		tr := &fakeTrader{balance: decimal.NewFromInt(5000)}
		acc := managed("lev", tr, func(a *domain.Account) { a.Leverage = 3 })

		results := newCoordinator(acc).Execute(context.Background(), signal())

		require.Len(t, results, 1)
		require.Equal(t, domain.StatusSuccess, results[0].Status)
		require.Equal(t, []int{3}, tr.leverageCalls)
		// quantity = 100 * 3 / 100
		require.Len(t, tr.orders, 1)
		assert.True(t, tr.orders[0].quantity.Equal(decimal.NewFromInt(3)),
			"got quantity %s", tr.orders[0].quantity)
	})

	t.Run("leverage one skips the exchange call", func(t *testing.T) {
		tr := &fakeTrader{balance: decimal.NewFromInt(5000)}
		results := newCoordinator(managed("plain", tr)).Execute(context.Background(), signal())

		require.Equal(t, domain.StatusSuccess, results[0].Status)
		assert.Empty(t, tr.leverageCalls)
	})

	t.Run("leverage failure short-circuits the account", func(t *testing.T) {
		tr := &fakeTrader{balance: decimal.NewFromInt(5000), leverageErr: errors.New("leverage rejected")}
		acc := managed("lev", tr, func(a *domain.Account) { a.Leverage = 5 })

		results := newCoordinator(acc).Execute(context.Background(), signal())

		assert.Equal(t, domain.StatusExchangeError, results[0].Status)
		assert.Empty(t, tr.orders)
	})
}

func TestExecuteProtectiveOrders(t *testing.T) {
	t.Run("stop and target placed after entry", func(t *testing.T) {
		tr := &fakeTrader{balance: decimal.NewFromInt(5000)}
		results := newCoordinator(managed("a", tr)).Execute(context.Background(), signal())

		require.Equal(t, domain.StatusSuccess, results[0].Status)
		require.Len(t, tr.stops, 1)
		require.Len(t, tr.takes, 1)
		assert.True(t, tr.stops[0].Equal(decimal.NewFromInt(95)))
		assert.True(t, tr.takes[0].Equal(decimal.NewFromInt(110)))
	})

	t.Run("manual-management mode places no protective legs", func(t *testing.T) {
		tr := &fakeTrader{balance: decimal.NewFromInt(5000)}
		acc := managed("manual-exits", tr, func(a *domain.Account) { a.ProtectiveOrders = false })

		results := newCoordinator(acc).Execute(context.Background(), signal())

		require.Equal(t, domain.StatusSuccess, results[0].Status)
		assert.Empty(t, tr.stops)
		assert.Empty(t, tr.takes)
	})

	t.Run("protective failure keeps the entry fill details", func(t *testing.T) {
		tr := &fakeTrader{balance: decimal.NewFromInt(5000), stopErr: errors.New("stop rejected")}
		results := newCoordinator(managed("a", tr)).Execute(context.Background(), signal())

		res := results[0]
		assert.Equal(t, domain.StatusExchangeError, res.Status)
		assert.Contains(t, res.Error, "stop loss")
		assert.Equal(t, "order-1", res.OrderID)
		assert.False(t, res.FilledQuantity.IsZero())
	})
}

func TestExecuteSentinelMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want domain.ExecStatus
	}{
		{
			name: "wrapped insufficient balance",
			err:  errors.Wrap(trader.ErrInsufficientBalance, "binance code -2019"),
			want: domain.StatusInsufficientBalance,
		},
		{
			name: "wrapped invalid credentials",
			err:  errors.Wrap(trader.ErrInvalidCredentials, "binance code -2015"),
			want: domain.StatusInvalidCredentials,
		},
		{
			name: "plain exchange failure",
			err:  errors.New("http 502"),
			want: domain.StatusExchangeError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := &fakeTrader{balance: decimal.NewFromInt(5000), orderErr: tt.err}
			results := newCoordinator(managed("a", tr)).Execute(context.Background(), signal())

			require.Len(t, results, 1)
			assert.Equal(t, tt.want, results[0].Status)
		})
	}
}

func TestExecuteZeroAccounts(t *testing.T) {
	results := newCoordinator().Execute(context.Background(), signal())
	assert.Empty(t, results)
}

func TestExecutePanicIsolation(t *testing.T) {
	exploding := &fakeTrader{panicOnBalance: true}
	healthy := &fakeTrader{balance: decimal.NewFromInt(5000)}

	results := newCoordinator(
		managed("boom", exploding),
		managed("ok", healthy),
	).Execute(context.Background(), signal())

	require.Len(t, results, 2)
	assert.Equal(t, domain.StatusExchangeError, results[0].Status)
	assert.Contains(t, results[0].Error, "panic")
	assert.Equal(t, domain.StatusSuccess, results[1].Status)
}

func TestExecuteOrderDrainsThroughCancellation(t *testing.T) {
	tr := &fakeTrader{balance: decimal.NewFromInt(5000), orderDelay: 60 * time.Millisecond}

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(10*time.Millisecond, cancel)
	defer cancel()

	results := newCoordinator(managed("a", tr)).Execute(ctx, signal())

	// the entry order was already issued when shutdown hit, so it ran to
	// completion on the detached context
	require.Len(t, results, 1)
	assert.Equal(t, domain.StatusSuccess, results[0].Status)
	require.Len(t, tr.orders, 1)
}
