// Command relay qualifies inbound trading signals and fans qualified
// entries out across every configured exchange account.
//
// Usage:
//
//	relay --config config.yaml
//	relay --setup (interactive wizard, writes config.gen.yaml)
//
// Accounts are discovered from numbered environment variables
// (RELAY_ACCOUNT_API_KEY_1, RELAY_ACCOUNT_API_SECRET_1, ...), from the
// optional accounts file, or from the credentials in the config itself.
package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ordinex/signalrelay/config"
	"github.com/ordinex/signalrelay/internal"
	"github.com/ordinex/signalrelay/internal/clients"
	"github.com/ordinex/signalrelay/internal/domain"
	"github.com/ordinex/signalrelay/internal/engine"
	"github.com/ordinex/signalrelay/internal/metrics"
	"github.com/ordinex/signalrelay/internal/recorder"
	"github.com/ordinex/signalrelay/internal/registry"
	"github.com/ordinex/signalrelay/internal/services/aggregator"
	"github.com/ordinex/signalrelay/internal/services/coordinator"
	"github.com/ordinex/signalrelay/internal/services/notifier"
	"github.com/ordinex/signalrelay/internal/services/qualifier"
	"github.com/ordinex/signalrelay/internal/services/source"
	"github.com/ordinex/signalrelay/internal/services/throttle"
	"github.com/ordinex/signalrelay/internal/setup"
	"github.com/ordinex/signalrelay/internal/storage/positions"
	"github.com/ordinex/signalrelay/internal/storage/summaries"
	"github.com/ordinex/signalrelay/internal/web"
	"github.com/ordinex/signalrelay/pkg/ratelimit"
)

func main() {
	_ = godotenv.Load()

	configPath := flag.String("config", "", "path to yaml config")
	runSetup := flag.Bool("setup", false, "run the interactive configuration wizard first")
	flag.Parse()

	if *runSetup {
		if err := setup.RunTUI(); err != nil {
			log.Fatal(err)
		}
		if *configPath == "" {
			*configPath = "config.gen.yaml"
		}
	}

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	if err := run(logger, cfg); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal("relay exited", zap.Error(err))
	}
	logger.Info("relay stopped")
}

func run(logger *zap.Logger, cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := newPositionStore(cfg)
	if err != nil {
		return errors.Wrap(err, "open position store")
	}
	defer store.Close()

	journal, err := summaries.NewJournal(filepath.Join(cfg.Storage.Dir, "summaries"))
	if err != nil {
		return errors.Wrap(err, "open summary journal")
	}
	defer journal.Close()

	defaults := registry.Defaults{
		Platform:         domain.Platform(cfg.Accounts.Platform),
		Environment:      domain.Environment(cfg.Accounts.Environment),
		RiskFraction:     cfg.Execution.RiskFraction,
		PositionCapUSD:   cfg.Execution.PositionCap,
		Leverage:         cfg.Execution.DefaultLeverage,
		ProtectiveOrders: cfg.Execution.ProtectiveOrdersDefault(),
	}
	accounts := registry.New(
		[]registry.Source{
			registry.NewEnvSource(cfg.Accounts.EnvPrefix, nil, defaults),
			registry.NewFileSource(cfg.Accounts.File, defaults),
			registry.NewFallbackSource(cfg.Accounts.APIKey, cfg.Accounts.APISecret, defaults),
		},
		internal.NewTraderFactory(logger),
		store,
		logger,
	)
	if err := accounts.Reload(ctx); err != nil {
		return errors.Wrap(err, "discover accounts")
	}
	logger.Info("accounts discovered",
		zap.Int("total", len(accounts.All())),
		zap.Int("active", len(accounts.ListActive())))

	meter := metrics.New(prometheus.DefaultRegisterer)
	meter.SetActiveAccounts(len(accounts.ListActive()))

	limiter := ratelimit.New(ratelimit.Rate{Capacity: 5, PerSec: 8})
	for platform, rl := range cfg.RateLimits {
		limiter.SetRate(platform, ratelimit.Rate{Capacity: rl.Burst, PerSec: rl.PerSec})
	}

	notify, err := newNotifier(logger, cfg.Notify)
	if err != nil {
		return errors.Wrap(err, "build notifier")
	}
	defer notify.Close()

	rec, err := newRecorder(logger, cfg.Recorder)
	if err != nil {
		return errors.Wrap(err, "open execution recorder")
	}
	defer rec.Close()

	src, err := newSource(logger, cfg.Source)
	if err != nil {
		return errors.Wrap(err, "build signal source")
	}

	eng := engine.New(engine.Deps{
		Logger: logger,
		Source: src,
		Qualifier: qualifier.New(logger, accounts,
			cfg.Qualifier.MinExecutionScore, cfg.Qualifier.MinAlertScore, cfg.Qualifier.MinConfluence),
		Throttle: throttle.New(cfg.Alerts.Cooldown()),
		Executor: coordinator.New(logger, accounts, limiter,
			cfg.Execution.PerAccountTimeout(), cfg.Execution.MinNotional, cfg.Execution.AutoSLTPEnabled()),
		Aggregator: aggregator.New(logger),
		Positions:  store,
		Journal:    journal,
		Recorder:   rec,
		Notifier:   notify,
		Metrics:    meter,
	})

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return src.Run(ctx) })
	g.Go(func() error { return eng.Run(ctx) })

	if cfg.Web.Enabled {
		srv := web.NewServer(cfg.Web.Addr, logger, journal, accounts, eng, store, promhttp.Handler())
		if len(cfg.Web.Domains) > 0 {
			g.Go(func() error { return srv.StartWithAutoTLS(ctx, cfg.Web.Domains, cfg.Web.CertDir) })
		} else {
			g.Go(func() error { return srv.Start(ctx) })
		}
	}

	logger.Info("relay started",
		zap.String("source", cfg.Source.Kind),
		zap.Float64("min_execution_score", cfg.Qualifier.MinExecutionScore),
		zap.Float64("min_alert_score", cfg.Qualifier.MinAlertScore),
		zap.Int("min_confluence", cfg.Qualifier.MinConfluence),
		zap.String("position_cap_usd", cfg.Execution.PositionCap.String()),
		zap.Duration("alert_cooldown", cfg.Alerts.Cooldown()))

	return g.Wait()
}

func newPositionStore(cfg *config.Config) (positions.Store, error) {
	switch cfg.Storage.Positions {
	case "redis":
		return positions.NewRedisStore(cfg.Storage.Redis.Addr, cfg.Storage.Redis.Password, cfg.Storage.Redis.DB)
	case "memory":
		return positions.NewMemoryStore(), nil
	default:
		return positions.NewWALStore(filepath.Join(cfg.Storage.Dir, "positions"))
	}
}

func newNotifier(logger *zap.Logger, cfg config.NotifyConfig) (notifier.Notifier, error) {
	sinks := []notifier.Notifier{notifier.NewLogSink(logger)}
	if cfg.Telegram.Enabled {
		sinks = append(sinks, notifier.NewTelegramSink(cfg.Telegram.Token, cfg.Telegram.ChatID, logger))
	}
	if cfg.Kafka.Enabled {
		kafka, err := notifier.NewKafkaSink(cfg.Kafka.Brokers, cfg.Kafka.SignalsTopic, cfg.Kafka.SummariesTopic, logger)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, kafka)
	}
	return notifier.NewMulti(logger, sinks...), nil
}

func newRecorder(logger *zap.Logger, cfg config.RecorderConfig) (recorder.Recorder, error) {
	if !cfg.Enabled {
		return recorder.Noop{}, nil
	}
	return recorder.NewSQLiteRecorder(cfg.Path, logger)
}

func newSource(logger *zap.Logger, cfg config.SourceConfig) (source.Source, error) {
	if cfg.Kind == "websocket" {
		if cfg.WebsocketURL == "" {
			return nil, errors.New("source kind is websocket but websocket_url is empty")
		}
		return source.NewWebsocketSource(cfg.WebsocketURL, logger), nil
	}

	pairs := make([]domain.Pair, 0, len(cfg.Pairs))
	for _, raw := range cfg.Pairs {
		pair, err := domain.ParsePair(raw)
		if err != nil {
			return nil, errors.Wrapf(err, "scanner pair %q", raw)
		}
		pairs = append(pairs, pair)
	}

	fetcher := source.NewBinanceKlines(clients.NewPublicBinanceClient(), cfg.Interval)
	return source.NewScanner(fetcher, pairs, cfg.Schedule, cfg.KlineLimit, logger), nil
}
