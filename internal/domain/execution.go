package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ExecStatus terminal status of one per-account execution task.
type ExecStatus string

const (
	// StatusSuccess order placed, protective legs (if enabled) accepted.
	StatusSuccess ExecStatus = "SUCCESS"
	// StatusInsufficientBalance free balance below the exchange minimum.
	StatusInsufficientBalance ExecStatus = "INSUFFICIENT_BALANCE"
	// StatusExchangeError rejection or transport failure from the exchange.
	StatusExchangeError ExecStatus = "EXCHANGE_ERROR"
	// StatusInvalidCredentials authentication or permission failure.
	StatusInvalidCredentials ExecStatus = "INVALID_CREDENTIALS"
	// StatusTimeout the per-account deadline elapsed before completion.
	StatusTimeout ExecStatus = "TIMEOUT"
	// StatusSkippedInactive account listed but auto-trading disabled.
	StatusSkippedInactive ExecStatus = "SKIPPED_INACTIVE"
)

// String returns the string representation.
func (s ExecStatus) String() string {
	return string(s)
}

// IsFailure reports whether the status counts toward the failure tally.
// Skips are neither successes nor failures.
func (s ExecStatus) IsFailure() bool {
	return s != StatusSuccess && s != StatusSkippedInactive
}

// ExecutionResult outcome of a qualified signal on a single account.
type ExecutionResult struct {
	AccountID string     `json:"account_id"`
	Platform  Platform   `json:"platform"`
	Status    ExecStatus `json:"status"`
	OrderID   string     `json:"order_id,omitempty"`
	// FilledPrice average fill price reported by the exchange, or the
	// signal entry price when the venue omits fills in the ack.
	FilledPrice    decimal.Decimal `json:"filled_price"`
	FilledQuantity decimal.Decimal `json:"filled_quantity"`
	// Error human-readable detail for failed statuses.
	Error   string        `json:"error,omitempty"`
	Elapsed time.Duration `json:"elapsed"`
}

// ExecutionSummary full fan-out outcome for one qualified signal.
// Every account considered at fan-out time appears in Results exactly once.
type ExecutionSummary struct {
	ID           string            `json:"id"`
	Pair         Pair              `json:"pair"`
	Side         Side              `json:"side"`
	Score        float64           `json:"score"`
	SuccessCount int               `json:"success_count"`
	FailureCount int               `json:"failure_count"`
	SkippedCount int               `json:"skipped_count"`
	Results      []ExecutionResult `json:"results"`
	CreatedAt    time.Time         `json:"created_at"`
}
