// Package notifier publishes qualified signals and execution summaries
// to the configured delivery channels. Every publish is a single
// attempt per channel; delivery failures are reported to the caller and
// never replayed.
package notifier

import (
	"context"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/ordinex/signalrelay/internal/domain"
)

// Notifier delivers signal alerts and execution summaries.
type Notifier interface {
	// PublishSignal announces a qualified signal. alertOnly marks
	// signals that passed the alert band but not the execution gate.
	PublishSignal(ctx context.Context, sig domain.QualifiedSignal, alertOnly bool) error
	// PublishSummary announces the full fan-out outcome of one signal.
	PublishSummary(ctx context.Context, summary domain.ExecutionSummary) error
	Close() error
}

// LogSink writes notifications to the structured log. It is the
// fallback channel when no external sink is configured.
type LogSink struct {
	logger *zap.Logger
}

func NewLogSink(logger *zap.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) PublishSignal(_ context.Context, sig domain.QualifiedSignal, alertOnly bool) error {
	s.logger.Info("signal notification",
		zap.String("pair", sig.Pair.String()),
		zap.String("side", sig.Side.String()),
		zap.Float64("score", sig.Score),
		zap.Bool("alert_only", alertOnly))
	return nil
}

func (s *LogSink) PublishSummary(_ context.Context, summary domain.ExecutionSummary) error {
	s.logger.Info("execution summary notification",
		zap.String("summary", summary.ID),
		zap.String("pair", summary.Pair.String()),
		zap.Int("success", summary.SuccessCount),
		zap.Int("failed", summary.FailureCount),
		zap.Int("skipped", summary.SkippedCount))
	return nil
}

func (s *LogSink) Close() error { return nil }

// Multi fans every publish out to all sinks. A failing sink never
// blocks the others; the first failure is returned after all sinks
// were attempted.
type Multi struct {
	sinks  []Notifier
	logger *zap.Logger
}

func NewMulti(logger *zap.Logger, sinks ...Notifier) *Multi {
	return &Multi{sinks: sinks, logger: logger}
}

func (m *Multi) PublishSignal(ctx context.Context, sig domain.QualifiedSignal, alertOnly bool) error {
	var firstErr error
	for _, sink := range m.sinks {
		if err := sink.PublishSignal(ctx, sig, alertOnly); err != nil {
			m.logger.Warn("signal publish failed", zap.Error(err))
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func (m *Multi) PublishSummary(ctx context.Context, summary domain.ExecutionSummary) error {
	var firstErr error
	for _, sink := range m.sinks {
		if err := sink.PublishSummary(ctx, summary); err != nil {
			m.logger.Warn("summary publish failed", zap.Error(err))
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func (m *Multi) Close() error {
	var firstErr error
	for _, sink := range m.sinks {
		if err := sink.Close(); err != nil && firstErr == nil {
			firstErr = errors.Wrap(err, "close notification sink")
		}
	}
	return firstErr
}
