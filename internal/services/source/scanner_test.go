package source

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ordinex/signalrelay/internal/domain"
	"github.com/ordinex/signalrelay/pkg/indicators"
)

type stubFetcher struct {
	candles []domain.MarketCandle
	err     error
}

func (s *stubFetcher) Fetch(context.Context, domain.Pair, int) ([]domain.MarketCandle, error) {
	return s.candles, s.err
}

func trendingCandles(n int, step float64) []domain.MarketCandle {
	candles := make([]domain.MarketCandle, n)
	value := 100.0
	for i := range candles {
		if i%2 == 0 {
			value += 2 * step
		} else {
			value -= 0.5 * step
		}
		candles[i] = domain.MarketCandle{
			OpenTime:  time.Now().Add(time.Duration(i-n) * time.Hour),
			Open:      decimal.NewFromFloat(value - step/2),
			High:      decimal.NewFromFloat(value + 1),
			Low:       decimal.NewFromFloat(value - 1),
			Close:     decimal.NewFromFloat(value),
			Volume:    decimal.NewFromInt(1000),
			CloseTime: time.Now().Add(time.Duration(i-n+1) * time.Hour),
		}
	}
	return candles
}

func flatCandles(n int) []domain.MarketCandle {
	candles := make([]domain.MarketCandle, n)
	for i := range candles {
		candles[i] = domain.MarketCandle{
			Open:   decimal.NewFromInt(42),
			High:   decimal.NewFromInt(42),
			Low:    decimal.NewFromInt(42),
			Close:  decimal.NewFromInt(42),
			Volume: decimal.NewFromInt(1000),
		}
	}
	return candles
}

func row(ema20, ema50, macd, rsi14, atr14 float64) indicators.TechnicalIndicators {
	return indicators.TechnicalIndicators{
		EMA20: decimal.NewFromFloat(ema20),
		EMA50: decimal.NewFromFloat(ema50),
		MACD:  decimal.NewFromFloat(macd),
		RSI7:  decimal.NewFromFloat(rsi14),
		RSI14: decimal.NewFromFloat(rsi14),
		ATR3:  decimal.NewFromFloat(atr14),
		ATR14: decimal.NewFromFloat(atr14),
	}
}

func TestScoreRowFullLongAgreement(t *testing.T) {
	cand := scoreRow(domain.Pair{From: "SOL", To: "USDT"}, row(105, 100, 0.5, 62, 2), decimal.NewFromInt(100), time.Now())

	require.NotNil(t, cand)
	assert.Equal(t, domain.SideLong, cand.Side)
	assert.Equal(t, 3, cand.Confluence)
	assert.InDelta(t, 0.9, cand.Score, 1e-9) // (3 votes + 0.6 strength) / 4
	assert.True(t, cand.Stop.Equal(decimal.NewFromInt(96)), "stop two ATRs below entry, got %s", cand.Stop)
	assert.True(t, cand.Target.Equal(decimal.NewFromInt(106)), "target three ATRs above entry, got %s", cand.Target)
}

func TestScoreRowFullShortAgreement(t *testing.T) {
	cand := scoreRow(domain.Pair{From: "SOL", To: "USDT"}, row(95, 100, -0.5, 40, 2), decimal.NewFromInt(100), time.Now())

	require.NotNil(t, cand)
	assert.Equal(t, domain.SideShort, cand.Side)
	assert.Equal(t, 3, cand.Confluence)
	assert.InDelta(t, 0.875, cand.Score, 1e-9) // (3 votes + 0.5 strength) / 4
	assert.True(t, cand.Stop.Equal(decimal.NewFromInt(104)))
	assert.True(t, cand.Target.Equal(decimal.NewFromInt(94)))
}

func TestScoreRowOverboughtLosesTheMomentumVote(t *testing.T) {
	cand := scoreRow(domain.Pair{From: "SOL", To: "USDT"}, row(105, 100, 0.5, 82, 2), decimal.NewFromInt(100), time.Now())

	require.NotNil(t, cand)
	assert.Equal(t, 2, cand.Confluence)
	assert.InDelta(t, 0.75, cand.Score, 1e-9) // strength clamps at 1
}

func TestScoreRowNeutralMarket(t *testing.T) {
	assert.Nil(t, scoreRow(domain.Pair{From: "SOL", To: "USDT"}, row(100, 100, 0, 50, 2), decimal.NewFromInt(100), time.Now()))
}

func TestScoreRowSingleVoteIsNotEnough(t *testing.T) {
	assert.Nil(t, scoreRow(domain.Pair{From: "SOL", To: "USDT"}, row(105, 100, 0, 50, 2), decimal.NewFromInt(100), time.Now()))
}

func TestScoreRowClampsNegativeStop(t *testing.T) {
	cand := scoreRow(domain.Pair{From: "PEPE", To: "USDT"}, row(105, 100, 0.5, 62, 10), decimal.NewFromInt(1), time.Now())

	require.NotNil(t, cand)
	assert.True(t, cand.Stop.IsZero(), "stop below zero collapses to none, got %s", cand.Stop)
	assert.True(t, cand.Target.Equal(decimal.NewFromInt(31)))
}

func TestEvaluateUptrend(t *testing.T) {
	scanner := NewScanner(&stubFetcher{candles: trendingCandles(80, 1)}, nil, "@every 1h", 0, zap.NewNop())
	pair := domain.Pair{From: "SOL", To: "USDT"}

	cand, err := scanner.evaluate(context.Background(), pair)

	require.NoError(t, err)
	require.NotNil(t, cand)
	assert.Equal(t, domain.SideLong, cand.Side)
	assert.GreaterOrEqual(t, cand.Confluence, 2)
	assert.Greater(t, cand.Score, 0.5)
	assert.LessOrEqual(t, cand.Score, 1.0)
	assert.True(t, cand.Entry.Equal(trendingCandles(80, 1)[79].Close))
	assert.True(t, cand.Stop.LessThan(cand.Entry))
	assert.True(t, cand.Target.GreaterThan(cand.Entry))
}

func TestEvaluateFlatMarketYieldsNothing(t *testing.T) {
	scanner := NewScanner(&stubFetcher{candles: flatCandles(80)}, nil, "@every 1h", 0, zap.NewNop())

	cand, err := scanner.evaluate(context.Background(), domain.Pair{From: "SOL", To: "USDT"})

	require.NoError(t, err)
	assert.Nil(t, cand)
}

func TestEvaluateFetchError(t *testing.T) {
	scanner := NewScanner(&stubFetcher{err: errors.New("rate limited")}, nil, "@every 1h", 0, zap.NewNop())

	_, err := scanner.evaluate(context.Background(), domain.Pair{From: "SOL", To: "USDT"})

	assert.Error(t, err)
}

func TestScanSkipsFailingPairs(t *testing.T) {
	scanner := NewScanner(&stubFetcher{err: errors.New("rate limited")},
		[]domain.Pair{{From: "SOL", To: "USDT"}}, "@every 1h", 0, zap.NewNop())

	scanner.scan(context.Background())

	select {
	case batch := <-scanner.batches:
		t.Fatalf("unexpected batch %v", batch)
	default:
	}
}
