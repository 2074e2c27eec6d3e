package domain

import (
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// Platform exchange backend identifier.
type Platform string

const (
	// PlatformBinance binance USDT-margined futures.
	PlatformBinance Platform = "binance"
	// PlatformBybit bybit v5 linear contracts.
	PlatformBybit Platform = "bybit"
	// PlatformHyperliquid hyperliquid perpetuals.
	PlatformHyperliquid Platform = "hyperliquid"
	// PlatformPaper in-memory simulated exchange for dry runs.
	PlatformPaper Platform = "paper"
)

// String returns the string representation.
func (p Platform) String() string {
	return string(p)
}

// IsValid checks if the Platform value is valid.
func (p Platform) IsValid() bool {
	switch p {
	case PlatformBinance, PlatformBybit, PlatformHyperliquid, PlatformPaper:
		return true
	}
	return false
}

// Environment selects live or sandbox exchange endpoints.
type Environment string

const (
	EnvironmentLive    Environment = "live"
	EnvironmentTestnet Environment = "testnet"
)

// Credentials exchange API access pair. Never serialized to JSON.
type Credentials struct {
	Key    string `json:"-" yaml:"api_key"`
	Secret string `json:"-" yaml:"api_secret"`
}

// Account one independently configured execution target.
type Account struct {
	// ID stable identifier used in results and logs.
	ID          string      `json:"id" yaml:"id"`
	Platform    Platform    `json:"platform" yaml:"platform"`
	Environment Environment `json:"environment" yaml:"environment"`
	Credentials Credentials `json:"-" yaml:"credentials"`
	// IsActive false excludes the account from fan-out entirely.
	IsActive bool `json:"is_active" yaml:"is_active"`
	// AutoTrade false yields SKIPPED_INACTIVE instead of an order.
	AutoTrade bool `json:"auto_trade" yaml:"auto_trade"`
	// RiskFraction share of free quote balance committed per signal, (0;1].
	RiskFraction float64 `json:"risk_fraction" yaml:"risk_fraction"`
	// PositionCapUSD ceiling for the position size before leverage.
	PositionCapUSD decimal.Decimal `json:"position_cap_usd" yaml:"position_cap_usd"`
	Leverage       int             `json:"leverage" yaml:"leverage"`
	// ProtectiveOrders place exchange-side SL/TP after entry; false means
	// the operator manages exits manually.
	ProtectiveOrders bool `json:"protective_orders" yaml:"protective_orders"`
}

// Validate checks invariants shared by every account source.
func (a *Account) Validate() error {
	if a.ID == "" {
		return errors.New("account id is empty")
	}
	if !a.Platform.IsValid() {
		return errors.Errorf("account %s: unknown platform %q", a.ID, a.Platform)
	}
	if a.RiskFraction <= 0 || a.RiskFraction > 1 {
		return errors.Errorf("account %s: risk fraction %v out of (0;1]", a.ID, a.RiskFraction)
	}
	if a.PositionCapUSD.LessThanOrEqual(decimal.Zero) {
		return errors.Errorf("account %s: position cap must be positive", a.ID)
	}
	if a.Leverage < 1 {
		return errors.Errorf("account %s: leverage %d below 1", a.ID, a.Leverage)
	}
	return nil
}

// Testnet reports whether the account targets sandbox endpoints.
func (a *Account) Testnet() bool {
	return a.Environment == EnvironmentTestnet
}
