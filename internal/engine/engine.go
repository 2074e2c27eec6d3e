// Package engine runs the relay cycle: consume candidate batches, qualify,
// throttle alerts, fan out execution and publish the outcome.
package engine

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/ordinex/signalrelay/internal/domain"
	"github.com/ordinex/signalrelay/internal/metrics"
	"github.com/ordinex/signalrelay/internal/recorder"
	"github.com/ordinex/signalrelay/internal/services/aggregator"
	"github.com/ordinex/signalrelay/internal/services/notifier"
	"github.com/ordinex/signalrelay/internal/services/qualifier"
	"github.com/ordinex/signalrelay/internal/services/throttle"
	"github.com/ordinex/signalrelay/internal/storage/positions"
)

// Source delivers scored candidate batches. The channel closes when the
// producer stops.
type Source interface {
	Batches() <-chan []domain.Candidate
}

// Qualifier reduces one batch to qualified and alert-only signals.
type Qualifier interface {
	Qualify(ctx context.Context, batch []domain.Candidate) qualifier.Result
}

// AlertGate applies the per-symbol notification cooldown.
type AlertGate interface {
	Decide(pair domain.Pair, score float64) throttle.Decision
}

// Executor fans a qualified signal out to the active accounts.
type Executor interface {
	Execute(ctx context.Context, sig domain.QualifiedSignal) []domain.ExecutionResult
}

// Journal persists summaries for the status stream.
type Journal interface {
	Append(sum domain.ExecutionSummary) error
}

// Stats is the running tally served by the status endpoint.
type Stats struct {
	Cycles           int       `json:"cycles"`
	Candidates       int       `json:"candidates"`
	Qualified        int       `json:"qualified"`
	AlertsDispatched int       `json:"alerts_dispatched"`
	AlertsSuppressed int       `json:"alerts_suppressed"`
	Summaries        int       `json:"summaries"`
	LastCycleAt      time.Time `json:"last_cycle_at"`
}

// Deps wires the engine's collaborators. All fields are required.
type Deps struct {
	Logger     *zap.Logger
	Source     Source
	Qualifier  Qualifier
	Throttle   AlertGate
	Executor   Executor
	Aggregator *aggregator.Aggregator
	Positions  positions.Store
	Journal    Journal
	Recorder   recorder.Recorder
	Notifier   notifier.Notifier
	Metrics    *metrics.Recorder
}

// Engine consumes batches one at a time; cycles never interleave. Signal
// notifications run on their own goroutines so a slow sink cannot delay
// order placement.
type Engine struct {
	logger     *zap.Logger
	source     Source
	qualifier  Qualifier
	throttle   AlertGate
	executor   Executor
	aggregator *aggregator.Aggregator
	positions  positions.Store
	journal    Journal
	recorder   recorder.Recorder
	notifier   notifier.Notifier
	metrics    *metrics.Recorder

	inflight sync.WaitGroup

	mu    sync.RWMutex
	stats Stats
}

func New(deps Deps) *Engine {
	return &Engine{
		logger:     deps.Logger,
		source:     deps.Source,
		qualifier:  deps.Qualifier,
		throttle:   deps.Throttle,
		executor:   deps.Executor,
		aggregator: deps.Aggregator,
		positions:  deps.Positions,
		journal:    deps.Journal,
		recorder:   deps.Recorder,
		notifier:   deps.Notifier,
		metrics:    deps.Metrics,
	}
}

// Run consumes candidate batches until ctx is done or the source closes.
// In-flight notifications are waited for before Run returns.
func (e *Engine) Run(ctx context.Context) error {
	e.logger.Info("engine started")
	defer e.inflight.Wait()

	for {
		select {
		case <-ctx.Done():
			e.logger.Info("engine stopped")
			return ctx.Err()
		case batch, ok := <-e.source.Batches():
			if !ok {
				if err := ctx.Err(); err != nil {
					return err
				}
				return errors.New("candidate source closed")
			}
			e.cycle(ctx, batch)
		}
	}
}

// Stats returns a copy of the current tallies.
func (e *Engine) Stats() Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return e.stats
}

// cycle runs one qualification pass and executes the qualified signals
// sequentially.
func (e *Engine) cycle(ctx context.Context, batch []domain.Candidate) {
	if len(batch) == 0 {
		return
	}

	e.metrics.RecordCandidates(len(batch))

	res := e.qualifier.Qualify(ctx, batch)
	for _, rej := range res.Rejections {
		e.metrics.RecordRejection(rej.Reason)
	}
	for _, sig := range res.AlertOnly {
		e.metrics.RecordQualified("alert")
		e.notifySignal(ctx, sig, true)
	}
	for _, sig := range res.Qualified {
		e.metrics.RecordQualified("execution")
		e.notifySignal(ctx, sig, false)
		e.execute(ctx, sig)
	}

	e.mu.Lock()
	e.stats.Cycles++
	e.stats.Candidates += len(batch)
	e.stats.Qualified += len(res.Qualified)
	e.stats.LastCycleAt = time.Now().UTC()
	e.mu.Unlock()
}

// notifySignal pushes one signal through the alert throttle and publishes it
// asynchronously.
func (e *Engine) notifySignal(ctx context.Context, sig domain.QualifiedSignal, alertOnly bool) {
	decision := e.throttle.Decide(sig.Pair, sig.Score)
	e.metrics.RecordAlertDecision(string(decision))

	if decision == throttle.Suppressed {
		e.logger.Debug("notification suppressed by cooldown",
			zap.String("pair", sig.Pair.String()),
			zap.Float64("score", sig.Score))
		e.mu.Lock()
		e.stats.AlertsSuppressed++
		e.mu.Unlock()
		return
	}

	e.mu.Lock()
	e.stats.AlertsDispatched++
	e.mu.Unlock()

	e.inflight.Add(1)
	go func() {
		defer e.inflight.Done()
		if err := e.notifier.PublishSignal(ctx, sig, alertOnly); err != nil {
			e.logger.Warn("signal publish failed",
				zap.String("pair", sig.Pair.String()),
				zap.Error(err))
		}
	}()
}

// execute fans the signal out and publishes the summary. An empty result set
// means no active accounts; nothing is published.
func (e *Engine) execute(ctx context.Context, sig domain.QualifiedSignal) {
	started := time.Now()
	results := e.executor.Execute(ctx, sig)
	e.metrics.ObserveFanout(time.Since(started))

	if len(results) == 0 {
		return
	}

	for _, res := range results {
		e.metrics.RecordExecution(res.Platform, res.Status)
	}

	e.markPositionOpen(ctx, sig, results)

	summary := e.aggregator.Build(sig, results)
	if err := e.journal.Append(summary); err != nil {
		e.logger.Error("summary journal append failed",
			zap.String("summary", summary.ID),
			zap.Error(err))
	}
	if err := e.recorder.RecordSummary(ctx, summary); err != nil {
		e.logger.Warn("execution recording failed",
			zap.String("summary", summary.ID),
			zap.Error(err))
	}
	if err := e.notifier.PublishSummary(ctx, summary); err != nil {
		e.logger.Warn("summary publish failed",
			zap.String("summary", summary.ID),
			zap.Error(err))
	}

	e.mu.Lock()
	e.stats.Summaries++
	e.mu.Unlock()
}

// markPositionOpen records the symbol in the open-position store once at
// least one account filled. A store failure is logged only; the symbol may
// re-qualify next cycle.
func (e *Engine) markPositionOpen(ctx context.Context, sig domain.QualifiedSignal, results []domain.ExecutionResult) {
	var filled []string
	for _, res := range results {
		if res.Status == domain.StatusSuccess {
			filled = append(filled, res.AccountID)
		}
	}
	if len(filled) == 0 {
		return
	}

	rec := domain.PositionRecord{
		Pair:     sig.Pair,
		Side:     sig.Side,
		OpenedAt: time.Now().UTC(),
		Accounts: filled,
	}
	if err := e.positions.Set(ctx, rec); err != nil {
		e.logger.Error("failed to record open position",
			zap.String("pair", sig.Pair.String()),
			zap.Error(err))
	}
}
