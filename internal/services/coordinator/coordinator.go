// Package coordinator fans one qualified signal out to every active account
// concurrently, with per-account sizing, timeouts and failure isolation.
package coordinator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/ordinex/signalrelay/internal/domain"
	"github.com/ordinex/signalrelay/internal/registry"
	"github.com/ordinex/signalrelay/internal/services/trader"
	"github.com/ordinex/signalrelay/pkg/ratelimit"
)

// AccountLister is the registry view the coordinator fans out over. The
// snapshot is captured once per Execute call.
type AccountLister interface {
	ListActive() []registry.ManagedAccount
}

// Coordinator executes qualified signals. All fields are read-only after
// construction; Execute is safe for sequential cycles.
type Coordinator struct {
	logger      *zap.Logger
	accounts    AccountLister
	limiter     *ratelimit.Limiter
	timeout     time.Duration
	minNotional decimal.Decimal
	autoSLTP    bool
}

func New(logger *zap.Logger, accounts AccountLister, limiter *ratelimit.Limiter, timeout time.Duration, minNotional decimal.Decimal, autoSLTP bool) *Coordinator {
	return &Coordinator{
		logger:      logger,
		accounts:    accounts,
		limiter:     limiter,
		timeout:     timeout,
		minNotional: minNotional,
		autoSLTP:    autoSLTP,
	}
}

// Execute runs the signal against every active account and returns one
// result per account. It blocks until all tasks reach a terminal state.
func (c *Coordinator) Execute(ctx context.Context, sig domain.QualifiedSignal) []domain.ExecutionResult {
	targets := c.accounts.ListActive()
	if len(targets) == 0 {
		c.logger.Warn("no active accounts at fan-out time, skipping execution",
			zap.String("pair", sig.Pair.String()))
		return nil
	}

	c.logger.Info("executing qualified signal",
		zap.String("pair", sig.Pair.String()),
		zap.String("side", sig.Side.String()),
		zap.Float64("score", sig.Score),
		zap.Int("accounts", len(targets)))

	results := make([]domain.ExecutionResult, len(targets))
	var wg sync.WaitGroup
	for i, target := range targets {
		wg.Add(1)
		go func(i int, target registry.ManagedAccount) {
			defer wg.Done()
			results[i] = c.runAccount(ctx, sig, target)
		}(i, target)
	}
	wg.Wait()

	return results
}

// runAccount executes the per-account step sequence. Failures terminate
// this task only; a panic is mapped to an exchange error.
func (c *Coordinator) runAccount(ctx context.Context, sig domain.QualifiedSignal, target registry.ManagedAccount) (res domain.ExecutionResult) {
	started := time.Now()
	res = domain.ExecutionResult{
		AccountID: target.ID,
		Platform:  target.Platform,
	}
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("execution task panicked",
				zap.String("account", target.ID),
				zap.Any("panic", r))
			res.Status = domain.StatusExchangeError
			res.Error = fmt.Sprintf("panic: %v", r)
		}
		res.Elapsed = time.Since(started)
	}()

	if !target.AutoTrade {
		res.Status = domain.StatusSkippedInactive
		return res
	}

	taskCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	platform := target.Platform.String()

	// step 1: free balance in the quote currency
	if err := c.limiter.Wait(taskCtx, platform); err != nil {
		return c.fail(res, target, "rate limit", err)
	}
	balance, err := target.Trader.GetBalance(taskCtx, sig.Pair.To)
	if err != nil {
		return c.fail(res, target, "balance fetch", err)
	}

	// step 2: position size capped by the absolute ceiling
	sizeUSD := decimal.Min(balance.Mul(decimal.NewFromFloat(target.RiskFraction)), target.PositionCapUSD)
	if sizeUSD.LessThan(c.minNotional) {
		res.Status = domain.StatusInsufficientBalance
		res.Error = fmt.Sprintf("position size %s below minimum notional %s",
			sizeUSD.StringFixed(2), c.minNotional.StringFixed(2))
		c.logger.Warn("position size below minimum notional",
			zap.String("account", target.ID),
			zap.String("size_usd", sizeUSD.StringFixed(2)))
		return res
	}

	// step 3: leverage is set on the exchange before quantity is derived
	leverage := decimal.NewFromInt(1)
	if target.Leverage > 1 {
		if err := c.limiter.Wait(taskCtx, platform); err != nil {
			return c.fail(res, target, "rate limit", err)
		}
		if err := target.Trader.SetLeverage(taskCtx, sig.Pair, target.Leverage); err != nil {
			return c.fail(res, target, "set leverage", err)
		}
		leverage = decimal.NewFromInt(int64(target.Leverage))
	}
	quantity := sizeUSD.Mul(leverage).Div(sig.Entry)

	// step 4: market entry. The order context is detached from parent
	// cancellation: once issued, shutdown lets the call drain.
	if err := c.limiter.Wait(taskCtx, platform); err != nil {
		return c.fail(res, target, "rate limit", err)
	}
	orderCtx, orderCancel := context.WithTimeout(context.WithoutCancel(taskCtx), c.timeout)
	defer orderCancel()

	ack, err := target.Trader.PlaceMarketOrder(orderCtx, sig.Pair, sig.Side, quantity, uuid.NewString())
	if err != nil {
		return c.fail(res, target, "market order", err)
	}

	res.OrderID = ack.OrderID
	res.FilledPrice = sig.Entry
	if !ack.AvgPrice.IsZero() {
		res.FilledPrice = ack.AvgPrice
	}
	res.FilledQuantity = quantity
	if !ack.ExecutedQty.IsZero() {
		res.FilledQuantity = ack.ExecutedQty
	}

	// step 5: protective exits, skipped entirely in manual-management mode
	if c.autoSLTP && target.ProtectiveOrders {
		if err := c.placeProtective(orderCtx, sig, target, res.FilledQuantity); err != nil {
			// keep the entry fill details on the failed result
			return c.fail(res, target, "protective orders", err)
		}
	}

	res.Status = domain.StatusSuccess
	c.logger.Info("account execution succeeded",
		zap.String("account", target.ID),
		zap.String("platform", platform),
		zap.String("order_id", res.OrderID),
		zap.String("quantity", res.FilledQuantity.String()),
		zap.Duration("elapsed", time.Since(started)))

	return res
}

// placeProtective attaches the stop-loss and take-profit closers.
func (c *Coordinator) placeProtective(ctx context.Context, sig domain.QualifiedSignal, target registry.ManagedAccount, quantity decimal.Decimal) error {
	platform := target.Platform.String()

	if sig.Stop.IsPositive() {
		if err := c.limiter.Wait(ctx, platform); err != nil {
			return errors.Wrap(err, "rate limit")
		}
		slID := fmt.Sprintf("sl-%d", time.Now().UnixNano())
		if _, err := target.Trader.PlaceStopLoss(ctx, sig.Pair, sig.Side, quantity, sig.Stop, slID); err != nil {
			return errors.Wrap(err, "stop loss")
		}
	}

	if sig.Target.IsPositive() {
		if err := c.limiter.Wait(ctx, platform); err != nil {
			return errors.Wrap(err, "rate limit")
		}
		tpID := fmt.Sprintf("tp-%d", time.Now().UnixNano())
		if _, err := target.Trader.PlaceTakeProfit(ctx, sig.Pair, sig.Side, quantity, sig.Target, tpID); err != nil {
			return errors.Wrap(err, "take profit")
		}
	}

	return nil
}

// fail classifies the error into the result taxonomy and logs it.
func (c *Coordinator) fail(res domain.ExecutionResult, target registry.ManagedAccount, step string, err error) domain.ExecutionResult {
	res.Status = classify(err)
	res.Error = fmt.Sprintf("%s: %v", step, err)

	c.logger.Error("account execution failed",
		zap.String("account", target.ID),
		zap.String("platform", target.Platform.String()),
		zap.String("step", step),
		zap.String("status", res.Status.String()),
		zap.Error(err))

	return res
}

// classify maps an execution error onto the result taxonomy.
func classify(err error) domain.ExecStatus {
	switch {
	case errors.Is(err, trader.ErrInsufficientBalance):
		return domain.StatusInsufficientBalance
	case errors.Is(err, trader.ErrInvalidCredentials):
		return domain.StatusInvalidCredentials
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return domain.StatusTimeout
	default:
		return domain.StatusExchangeError
	}
}
