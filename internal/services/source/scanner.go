package source

import (
	"context"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/ordinex/signalrelay/internal/domain"
	"github.com/ordinex/signalrelay/pkg/indicators"
	"github.com/ordinex/signalrelay/pkg/retrier"
)

const defaultKlineLimit = 120

// KlineFetcher loads recent market candles for one pair.
type KlineFetcher interface {
	Fetch(ctx context.Context, pair domain.Pair, limit int) ([]domain.MarketCandle, error)
}

// BinanceKlines fetches public spot klines with bounded retries.
type BinanceKlines struct {
	client   *binance.Client
	interval string
	retrier  *retrier.Retrier
}

func NewBinanceKlines(client *binance.Client, interval string) *BinanceKlines {
	return &BinanceKlines{
		client:   client,
		interval: interval,
		retrier:  retrier.New(retrier.WithAttempts(3)),
	}
}

func (b *BinanceKlines) Fetch(ctx context.Context, pair domain.Pair, limit int) ([]domain.MarketCandle, error) {
	klines, err := retrier.DoWithData(b.retrier, ctx, func(ctx context.Context) ([]*binance.Kline, error) {
		return b.client.NewKlinesService().
			Symbol(pair.Symbol()).
			Interval(b.interval).
			Limit(limit).
			Do(ctx)
	})
	if err != nil {
		return nil, errors.Wrapf(err, "fetch klines for %s", pair.Symbol())
	}

	return convertKlines(klines)
}

func convertKlines(klines []*binance.Kline) ([]domain.MarketCandle, error) {
	candles := make([]domain.MarketCandle, 0, len(klines))
	for i, k := range klines {
		open, err := decimal.NewFromString(k.Open)
		if err != nil {
			return nil, errors.Wrapf(err, "kline %d open", i)
		}
		high, err := decimal.NewFromString(k.High)
		if err != nil {
			return nil, errors.Wrapf(err, "kline %d high", i)
		}
		low, err := decimal.NewFromString(k.Low)
		if err != nil {
			return nil, errors.Wrapf(err, "kline %d low", i)
		}
		closePrice, err := decimal.NewFromString(k.Close)
		if err != nil {
			return nil, errors.Wrapf(err, "kline %d close", i)
		}
		volume, err := decimal.NewFromString(k.Volume)
		if err != nil {
			return nil, errors.Wrapf(err, "kline %d volume", i)
		}

		candles = append(candles, domain.MarketCandle{
			OpenTime:  time.UnixMilli(k.OpenTime),
			Open:      open,
			High:      high,
			Low:       low,
			Close:     closePrice,
			Volume:    volume,
			CloseTime: time.UnixMilli(k.CloseTime),
		})
	}

	return candles, nil
}

// Scanner periodically scores watched pairs from public market data. It
// is a self-contained producer for dry runs; live deployments feed the
// engine over the websocket source instead.
type Scanner struct {
	fetcher  KlineFetcher
	pairs    []domain.Pair
	schedule string
	limit    int
	logger   *zap.Logger
	batches  chan []domain.Candidate
	now      func() time.Time
}

func NewScanner(fetcher KlineFetcher, pairs []domain.Pair, schedule string, limit int, logger *zap.Logger) *Scanner {
	if limit <= 0 {
		limit = defaultKlineLimit
	}
	return &Scanner{
		fetcher:  fetcher,
		pairs:    pairs,
		schedule: schedule,
		limit:    limit,
		logger:   logger,
		batches:  make(chan []domain.Candidate, batchBuffer),
		now:      time.Now,
	}
}

func (s *Scanner) Batches() <-chan []domain.Candidate { return s.batches }

// Run scans once immediately, then on the cron schedule, until ctx is
// done. In-flight scans drain before Run returns.
func (s *Scanner) Run(ctx context.Context) error {
	defer close(s.batches)

	c := cron.New(cron.WithSeconds())
	if _, err := c.AddFunc(s.schedule, func() { s.scan(ctx) }); err != nil {
		return errors.Wrapf(err, "register scan schedule %q", s.schedule)
	}

	s.scan(ctx)
	c.Start()

	<-ctx.Done()
	<-c.Stop().Done()

	return ctx.Err()
}

func (s *Scanner) scan(ctx context.Context) {
	batch := make([]domain.Candidate, 0, len(s.pairs))
	for _, pair := range s.pairs {
		cand, err := s.evaluate(ctx, pair)
		if err != nil {
			s.logger.Warn("pair scan failed",
				zap.String("pair", pair.String()),
				zap.Error(err))
			continue
		}
		if cand != nil {
			batch = append(batch, *cand)
		}
	}

	if len(batch) == 0 {
		return
	}

	s.logger.Info("scan produced candidates", zap.Int("count", len(batch)))

	select {
	case s.batches <- batch:
	case <-ctx.Done():
	}
}

func (s *Scanner) evaluate(ctx context.Context, pair domain.Pair) (*domain.Candidate, error) {
	candles, err := s.fetcher.Fetch(ctx, pair, s.limit)
	if err != nil {
		return nil, err
	}

	data := make([]indicators.PriceData, len(candles))
	for i, c := range candles {
		data[i] = indicators.PriceData{Open: c.Open, High: c.High, Low: c.Low, Close: c.Close}
	}

	rows, err := indicators.CalculateAllIndicators(data)
	if err != nil {
		return nil, errors.Wrap(err, "compute indicators")
	}

	entry := candles[len(candles)-1].Close
	return scoreRow(pair, rows[len(rows)-1], entry, s.now()), nil
}

// scoreRow votes three factors on direction and derives protective
// levels from volatility. Fewer than two agreeing factors yields no
// candidate.
func scoreRow(pair domain.Pair, row indicators.TechnicalIndicators, entry decimal.Decimal, at time.Time) *domain.Candidate {
	rsi := row.RSI14.InexactFloat64()

	longVotes := 0
	if row.EMA20.GreaterThan(row.EMA50) {
		longVotes++
	}
	if row.MACD.IsPositive() {
		longVotes++
	}
	if rsi > 50 && rsi < 70 {
		longVotes++
	}

	shortVotes := 0
	if row.EMA20.LessThan(row.EMA50) {
		shortVotes++
	}
	if row.MACD.IsNegative() {
		shortVotes++
	}
	if rsi < 50 && rsi > 30 {
		shortVotes++
	}

	side := domain.SideLong
	votes := longVotes
	strength := (rsi - 50) / 20
	if shortVotes > longVotes {
		side = domain.SideShort
		votes = shortVotes
		strength = (50 - rsi) / 20
	}
	if votes < 2 {
		return nil
	}

	if strength < 0 {
		strength = 0
	} else if strength > 1 {
		strength = 1
	}
	score := (float64(votes) + strength) / 4

	stopDistance := row.ATR14.Mul(decimal.NewFromInt(2))
	targetDistance := row.ATR14.Mul(decimal.NewFromInt(3))

	cand := &domain.Candidate{
		Pair:        pair,
		Side:        side,
		Score:       score,
		Confluence:  votes,
		Entry:       entry,
		GeneratedAt: at,
	}
	if side == domain.SideLong {
		cand.Stop = entry.Sub(stopDistance)
		cand.Target = entry.Add(targetDistance)
	} else {
		cand.Stop = entry.Add(stopDistance)
		cand.Target = entry.Sub(targetDistance)
	}
	if !cand.Stop.IsPositive() {
		cand.Stop = decimal.Zero
	}
	if !cand.Target.IsPositive() {
		cand.Target = decimal.Zero
	}

	return cand
}
