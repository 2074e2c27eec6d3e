// Package recorder persists execution history for offline analysis.
package recorder

import (
	"context"

	"github.com/ordinex/signalrelay/internal/domain"
)

// Recorder stores finished execution summaries.
type Recorder interface {
	RecordSummary(ctx context.Context, summary domain.ExecutionSummary) error
	Close() error
}

// Noop discards everything. Used when no history path is configured.
type Noop struct{}

func (Noop) RecordSummary(context.Context, domain.ExecutionSummary) error { return nil }

func (Noop) Close() error { return nil }
