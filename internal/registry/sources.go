package registry

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/ordinex/signalrelay/internal/domain"
)

// Source yields account records from one configuration origin. Sources are
// consulted in priority order; the first one returning at least one account
// is authoritative and the rest are ignored entirely.
type Source interface {
	Name() string
	Load(ctx context.Context) ([]domain.Account, error)
}

// Defaults fills account fields a source does not carry itself.
type Defaults struct {
	Platform         domain.Platform
	Environment      domain.Environment
	RiskFraction     float64
	PositionCapUSD   decimal.Decimal
	Leverage         int
	ProtectiveOrders bool
}

// LookupFunc is the key-value view an EnvSource scans. os.LookupEnv in
// production, a map closure in tests.
type LookupFunc func(key string) (string, bool)

// EnvSource discovers accounts from numbered environment variables:
// <PREFIX>_API_KEY and <PREFIX>_API_SECRET for the primary account, then
// <PREFIX>_API_KEY_2, <PREFIX>_API_KEY_3 and so on. Scanning stops at the
// first missing index, gaps are not skipped. Optional per-index overrides:
// _PLATFORM, _TESTNET, _LEVERAGE, _RISK_FRACTION.
type EnvSource struct {
	prefix   string
	lookup   LookupFunc
	defaults Defaults
}

func NewEnvSource(prefix string, lookup LookupFunc, defaults Defaults) *EnvSource {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	return &EnvSource{prefix: prefix, lookup: lookup, defaults: defaults}
}

func (s *EnvSource) Name() string { return "env" }

func (s *EnvSource) Load(_ context.Context) ([]domain.Account, error) {
	var accounts []domain.Account

	for idx := 1; ; idx++ {
		key, ok := s.lookup(s.envName("API_KEY", idx))
		if !ok || key == "" {
			break
		}
		secret, _ := s.lookup(s.envName("API_SECRET", idx))

		acc := domain.Account{
			ID:               fmt.Sprintf("env-%d", idx),
			Platform:         s.defaults.Platform,
			Environment:      s.defaults.Environment,
			Credentials:      domain.Credentials{Key: key, Secret: secret},
			IsActive:         true,
			AutoTrade:        true,
			RiskFraction:     s.defaults.RiskFraction,
			PositionCapUSD:   s.defaults.PositionCapUSD,
			Leverage:         s.defaults.Leverage,
			ProtectiveOrders: s.defaults.ProtectiveOrders,
		}

		if v, ok := s.lookup(s.envName("PLATFORM", idx)); ok && v != "" {
			acc.Platform = domain.Platform(strings.ToLower(strings.TrimSpace(v)))
		}
		if v, ok := s.lookup(s.envName("TESTNET", idx)); ok && v != "" {
			testnet, err := strconv.ParseBool(v)
			if err != nil {
				return nil, errors.Wrap(err, s.envName("TESTNET", idx))
			}
			acc.Environment = domain.EnvironmentLive
			if testnet {
				acc.Environment = domain.EnvironmentTestnet
			}
		}
		if v, ok := s.lookup(s.envName("LEVERAGE", idx)); ok && v != "" {
			lev, err := strconv.Atoi(v)
			if err != nil {
				return nil, errors.Wrap(err, s.envName("LEVERAGE", idx))
			}
			acc.Leverage = lev
		}
		if v, ok := s.lookup(s.envName("RISK_FRACTION", idx)); ok && v != "" {
			rf, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return nil, errors.Wrap(err, s.envName("RISK_FRACTION", idx))
			}
			acc.RiskFraction = rf
		}

		accounts = append(accounts, acc)
	}

	return accounts, nil
}

// envName builds the variable name for one account field. The primary
// account is unsuffixed, account N carries the _N suffix.
func (s *EnvSource) envName(field string, idx int) string {
	name := s.prefix + "_" + field
	if idx > 1 {
		name = fmt.Sprintf("%s_%d", name, idx)
	}
	return name
}

// FileSource loads administrative accounts from a YAML document. A missing
// file yields no accounts, a malformed one is an error.
type FileSource struct {
	path     string
	defaults Defaults
}

func NewFileSource(path string, defaults Defaults) *FileSource {
	return &FileSource{path: path, defaults: defaults}
}

func (s *FileSource) Name() string { return "file" }

type fileAccount struct {
	ID               string  `yaml:"id"`
	Platform         string  `yaml:"platform"`
	Environment      string  `yaml:"environment"`
	APIKey           string  `yaml:"api_key"`
	APISecret        string  `yaml:"api_secret"`
	IsActive         *bool   `yaml:"is_active"`
	AutoTrade        *bool   `yaml:"auto_trade"`
	RiskFraction     float64 `yaml:"risk_fraction"`
	PositionCapUSD   string  `yaml:"position_cap_usd"`
	Leverage         int     `yaml:"leverage"`
	ProtectiveOrders *bool   `yaml:"protective_orders"`
}

func (s *FileSource) Load(_ context.Context) ([]domain.Account, error) {
	if s.path == "" {
		return nil, nil
	}

	raw, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "read accounts file")
	}

	var doc struct {
		Accounts []fileAccount `yaml:"accounts"`
	}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, errors.Wrap(err, "parse accounts file")
	}

	accounts := make([]domain.Account, 0, len(doc.Accounts))
	for i, fa := range doc.Accounts {
		acc, err := s.toAccount(i, fa)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, acc)
	}

	return accounts, nil
}

func (s *FileSource) toAccount(idx int, fa fileAccount) (domain.Account, error) {
	acc := domain.Account{
		ID:               fa.ID,
		Platform:         s.defaults.Platform,
		Environment:      s.defaults.Environment,
		Credentials:      domain.Credentials{Key: fa.APIKey, Secret: fa.APISecret},
		IsActive:         fa.IsActive == nil || *fa.IsActive,
		AutoTrade:        fa.AutoTrade == nil || *fa.AutoTrade,
		RiskFraction:     s.defaults.RiskFraction,
		PositionCapUSD:   s.defaults.PositionCapUSD,
		Leverage:         s.defaults.Leverage,
		ProtectiveOrders: s.defaults.ProtectiveOrders,
	}
	if acc.ID == "" {
		acc.ID = fmt.Sprintf("file-%d", idx+1)
	}
	if fa.Platform != "" {
		acc.Platform = domain.Platform(strings.ToLower(strings.TrimSpace(fa.Platform)))
	}
	if fa.Environment != "" {
		acc.Environment = domain.Environment(strings.ToLower(strings.TrimSpace(fa.Environment)))
	}
	if fa.RiskFraction != 0 {
		acc.RiskFraction = fa.RiskFraction
	}
	if fa.PositionCapUSD != "" {
		capUSD, err := decimal.NewFromString(fa.PositionCapUSD)
		if err != nil {
			return domain.Account{}, errors.Wrapf(err, "account %s: position_cap_usd", acc.ID)
		}
		acc.PositionCapUSD = capUSD
	}
	if fa.Leverage != 0 {
		acc.Leverage = fa.Leverage
	}
	if fa.ProtectiveOrders != nil {
		acc.ProtectiveOrders = *fa.ProtectiveOrders
	}
	return acc, nil
}

// FallbackSource yields the single implicit account from the top-level
// config credentials. It is meant to sit last in the source chain. Paper
// accounts need no credentials, so a paper platform always yields.
type FallbackSource struct {
	key      string
	secret   string
	defaults Defaults
}

func NewFallbackSource(key, secret string, defaults Defaults) *FallbackSource {
	return &FallbackSource{key: key, secret: secret, defaults: defaults}
}

func (s *FallbackSource) Name() string { return "fallback" }

func (s *FallbackSource) Load(_ context.Context) ([]domain.Account, error) {
	if s.key == "" && s.defaults.Platform != domain.PlatformPaper {
		return nil, nil
	}

	return []domain.Account{{
		ID:               "primary",
		Platform:         s.defaults.Platform,
		Environment:      s.defaults.Environment,
		Credentials:      domain.Credentials{Key: s.key, Secret: s.secret},
		IsActive:         true,
		AutoTrade:        true,
		RiskFraction:     s.defaults.RiskFraction,
		PositionCapUSD:   s.defaults.PositionCapUSD,
		Leverage:         s.defaults.Leverage,
		ProtectiveOrders: s.defaults.ProtectiveOrders,
	}}, nil
}
