// Package aggregator assembles the fan-out outcome of one qualified
// signal into a single summary for journaling and notification.
package aggregator

import (
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ordinex/signalrelay/internal/domain"
)

// Aggregator tallies per-account execution results into summaries.
type Aggregator struct {
	logger *zap.Logger
}

func New(logger *zap.Logger) *Aggregator {
	return &Aggregator{logger: logger}
}

// Build assembles the summary for one executed signal. Results are
// preserved verbatim and in fan-out order; the tallies bucket every
// status into success, failure or skipped.
func (a *Aggregator) Build(sig domain.QualifiedSignal, results []domain.ExecutionResult) domain.ExecutionSummary {
	summary := domain.ExecutionSummary{
		ID:        uuid.NewString(),
		Pair:      sig.Pair,
		Side:      sig.Side,
		Score:     sig.Score,
		Results:   results,
		CreatedAt: time.Now().UTC(),
	}

	for _, res := range results {
		switch res.Status {
		case domain.StatusSuccess:
			summary.SuccessCount++
		case domain.StatusSkippedInactive:
			summary.SkippedCount++
		default:
			summary.FailureCount++
		}
	}

	a.logger.Info("execution summary assembled",
		zap.String("summary", summary.ID),
		zap.String("pair", sig.Pair.String()),
		zap.Int("success", summary.SuccessCount),
		zap.Int("failed", summary.FailureCount),
		zap.Int("skipped", summary.SkippedCount))

	return summary
}
