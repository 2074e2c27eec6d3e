// Package config loads the relay configuration from YAML with environment
// overrides for the operational knobs.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Config is the full relay configuration tree.
type Config struct {
	Qualifier  QualifierConfig            `yaml:"qualifier"`
	Alerts     AlertsConfig               `yaml:"alerts"`
	Execution  ExecutionConfig            `yaml:"execution"`
	Accounts   AccountsConfig             `yaml:"accounts"`
	Source     SourceConfig               `yaml:"source"`
	Notify     NotifyConfig               `yaml:"notify"`
	Storage    StorageConfig              `yaml:"storage"`
	Recorder   RecorderConfig             `yaml:"recorder"`
	Web        WebConfig                  `yaml:"web"`
	RateLimits map[string]RateLimitConfig `yaml:"rate_limits"`
}

// QualifierConfig score and confluence gates.
type QualifierConfig struct {
	MinExecutionScore float64 `yaml:"min_execution_score" default:"0.8" validate:"gte=0,lte=1"`
	// MinAlertScore lower bound for alert-only signals, independent of the
	// execution gate.
	MinAlertScore float64 `yaml:"min_alert_score" default:"0.6" validate:"gte=0,lte=1"`
	MinConfluence int     `yaml:"min_confluence" default:"2" validate:"gte=0"`
}

// AlertsConfig notification throttling.
type AlertsConfig struct {
	CooldownSeconds int `yaml:"cooldown_seconds" default:"3600" validate:"gt=0"`
}

// Cooldown returns the per-symbol alert cooldown window.
func (a AlertsConfig) Cooldown() time.Duration {
	return time.Duration(a.CooldownSeconds) * time.Second
}

// ExecutionConfig sizing and order placement defaults applied to accounts
// that do not override them.
type ExecutionConfig struct {
	AutoSLTP     *bool   `yaml:"auto_sltp" default:"true"`
	RiskFraction float64 `yaml:"risk_fraction" default:"0.02" validate:"gt=0,lte=1"`
	// PositionCapUSD decimal string, absolute size ceiling before leverage.
	PositionCapUSD string `yaml:"position_cap_usd" default:"100"`
	// MinNotionalUSD exchange-imposed minimum order size.
	MinNotionalUSD      string `yaml:"min_notional_usd" default:"10"`
	PerAccountTimeoutMS int    `yaml:"per_account_timeout_ms" default:"10000" validate:"gt=0"`
	DefaultLeverage     int    `yaml:"default_leverage" default:"1" validate:"gte=1"`
	ProtectiveOrders    *bool  `yaml:"protective_orders" default:"true"`

	// parsed by Load
	PositionCap decimal.Decimal `yaml:"-"`
	MinNotional decimal.Decimal `yaml:"-"`
}

// AutoSLTPEnabled reports whether protective orders are placed globally.
func (e ExecutionConfig) AutoSLTPEnabled() bool {
	return e.AutoSLTP == nil || *e.AutoSLTP
}

// ProtectiveOrdersDefault per-account default for exchange-side exits.
func (e ExecutionConfig) ProtectiveOrdersDefault() bool {
	return e.ProtectiveOrders == nil || *e.ProtectiveOrders
}

// PerAccountTimeout returns the per-account execution deadline.
func (e ExecutionConfig) PerAccountTimeout() time.Duration {
	return time.Duration(e.PerAccountTimeoutMS) * time.Millisecond
}

// AccountsConfig account discovery settings plus the implicit fallback
// account used when no other source yields.
type AccountsConfig struct {
	// EnvPrefix name prefix for numbered environment discovery.
	EnvPrefix string `yaml:"env_prefix" default:"RELAY_ACCOUNT"`
	// File optional path to a YAML list of administrative accounts.
	File string `yaml:"file"`

	Platform    string `yaml:"platform" default:"binance"`
	Environment string `yaml:"environment" default:"live"`
	APIKey      string `yaml:"api_key"`
	APISecret   string `yaml:"api_secret"`
}

// SourceConfig signal candidate source.
type SourceConfig struct {
	Kind string `yaml:"kind" default:"scanner" validate:"oneof=scanner websocket"`
	// WebsocketURL upstream analysis pipeline endpoint for kind=websocket.
	WebsocketURL string   `yaml:"websocket_url"`
	Pairs        []string `yaml:"pairs"`
	// Interval kline interval for the scanner, e.g. 1h.
	Interval string `yaml:"interval" default:"1h"`
	// Schedule cron spec for scanner runs.
	Schedule   string `yaml:"schedule" default:"@every 1m"`
	KlineLimit int    `yaml:"kline_limit" default:"120" validate:"gte=60"`
}

// NotifyConfig notification sinks. Any combination may be enabled.
type NotifyConfig struct {
	Telegram TelegramConfig `yaml:"telegram"`
	Kafka    KafkaConfig    `yaml:"kafka"`
}

// TelegramConfig bot API sink.
type TelegramConfig struct {
	Enabled bool   `yaml:"enabled"`
	Token   string `yaml:"token"`
	ChatID  string `yaml:"chat_id"`
}

// KafkaConfig event stream sink.
type KafkaConfig struct {
	Enabled        bool     `yaml:"enabled"`
	Brokers        []string `yaml:"brokers"`
	SignalsTopic   string   `yaml:"signals_topic" default:"relay.signals"`
	SummariesTopic string   `yaml:"summaries_topic" default:"relay.executions"`
}

// StorageConfig persistence backends.
type StorageConfig struct {
	// Dir root for WAL segments.
	Dir string `yaml:"dir" default:"./data"`
	// Positions backend for the open-position store.
	Positions string      `yaml:"positions" default:"wal" validate:"oneof=wal redis memory"`
	Redis     RedisConfig `yaml:"redis"`
}

// RedisConfig connection settings for the redis position store.
type RedisConfig struct {
	Addr     string `yaml:"addr" default:"localhost:6379"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// RecorderConfig execution history database.
type RecorderConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path" default:"./data/executions.db"`
}

// WebConfig operational status server.
type WebConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr" default:":8085"`
	// Domains non-empty enables ACME autocert TLS for the listed hosts.
	Domains []string `yaml:"domains"`
	CertDir string   `yaml:"cert_dir" default:"./certs"`
}

// RateLimitConfig token bucket settings for one platform.
type RateLimitConfig struct {
	Burst  float64 `yaml:"burst" default:"5" validate:"gte=1"`
	PerSec float64 `yaml:"per_sec" default:"8" validate:"gt=0"`
}

// Load reads the YAML file at path (optional), applies defaults, overlays
// the environment and validates the result.
func Load(path string) (*Config, error) {
	var cfg Config

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrap(err, "read config")
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return nil, errors.Wrap(err, "parse config")
		}
	}

	if err := defaults.Set(&cfg); err != nil {
		return nil, errors.Wrap(err, "apply defaults")
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if len(cfg.Source.Pairs) == 0 {
		cfg.Source.Pairs = []string{"BTC/USDT", "ETH/USDT", "SOL/USDT"}
	}

	var err error
	cfg.Execution.PositionCap, err = decimal.NewFromString(cfg.Execution.PositionCapUSD)
	if err != nil {
		return nil, errors.Wrapf(err, "incorrect 'position_cap_usd' param: %s", cfg.Execution.PositionCapUSD)
	}
	cfg.Execution.MinNotional, err = decimal.NewFromString(cfg.Execution.MinNotionalUSD)
	if err != nil {
		return nil, errors.Wrapf(err, "incorrect 'min_notional_usd' param: %s", cfg.Execution.MinNotionalUSD)
	}
	if cfg.Execution.PositionCap.LessThanOrEqual(decimal.Zero) {
		return nil, errors.New("'position_cap_usd' must be positive")
	}

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, errors.Wrap(err, "validate config")
	}

	return &cfg, nil
}

// applyEnv overlays the operational environment variables onto the config.
func (c *Config) applyEnv() error {
	if v, ok := os.LookupEnv("MIN_EXECUTION_SCORE"); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return errors.Wrap(err, "MIN_EXECUTION_SCORE")
		}
		c.Qualifier.MinExecutionScore = f
	}
	if v, ok := os.LookupEnv("MIN_ALERT_SCORE"); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return errors.Wrap(err, "MIN_ALERT_SCORE")
		}
		c.Qualifier.MinAlertScore = f
	}
	if v, ok := os.LookupEnv("MIN_CONFLUENCE"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return errors.Wrap(err, "MIN_CONFLUENCE")
		}
		c.Qualifier.MinConfluence = n
	}
	if v, ok := os.LookupEnv("ALERT_COOLDOWN_SECONDS"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return errors.Wrap(err, "ALERT_COOLDOWN_SECONDS")
		}
		c.Alerts.CooldownSeconds = n
	}
	if v, ok := os.LookupEnv("AUTO_SLTP_ENABLED"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return errors.Wrap(err, "AUTO_SLTP_ENABLED")
		}
		c.Execution.AutoSLTP = &b
	}
	if v, ok := os.LookupEnv("POSITION_RISK_FRACTION"); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return errors.Wrap(err, "POSITION_RISK_FRACTION")
		}
		c.Execution.RiskFraction = f
	}
	if v, ok := os.LookupEnv("POSITION_CAP_USD"); ok {
		c.Execution.PositionCapUSD = strings.TrimSpace(v)
	}
	if v, ok := os.LookupEnv("ACCOUNT_KEY_PREFIX_PATTERN"); ok {
		c.Accounts.EnvPrefix = strings.TrimSpace(v)
	}
	if v, ok := os.LookupEnv("PER_ACCOUNT_TIMEOUT_MS"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return errors.Wrap(err, "PER_ACCOUNT_TIMEOUT_MS")
		}
		c.Execution.PerAccountTimeoutMS = n
	}
	return nil
}
