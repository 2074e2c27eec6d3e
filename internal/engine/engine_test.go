package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ordinex/signalrelay/internal/domain"
	"github.com/ordinex/signalrelay/internal/metrics"
	"github.com/ordinex/signalrelay/internal/recorder"
	"github.com/ordinex/signalrelay/internal/services/aggregator"
	"github.com/ordinex/signalrelay/internal/services/qualifier"
	"github.com/ordinex/signalrelay/internal/services/throttle"
	"github.com/ordinex/signalrelay/internal/storage/positions"
)

type fakeSource struct{ ch chan []domain.Candidate }

func (s *fakeSource) Batches() <-chan []domain.Candidate { return s.ch }

type storeChecker struct{ store positions.Store }

func (c storeChecker) HasOpenPosition(ctx context.Context, pair domain.Pair) (bool, error) {
	rec, err := c.store.Get(ctx, pair)
	if err != nil {
		return false, err
	}
	return rec != nil, nil
}

type fakeExecutor struct {
	mu      sync.Mutex
	results []domain.ExecutionResult
	signals []domain.QualifiedSignal
}

func (f *fakeExecutor) Execute(_ context.Context, sig domain.QualifiedSignal) []domain.ExecutionResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.signals = append(f.signals, sig)
	out := make([]domain.ExecutionResult, len(f.results))
	copy(out, f.results)
	return out
}

func (f *fakeExecutor) executed() []domain.QualifiedSignal {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.QualifiedSignal, len(f.signals))
	copy(out, f.signals)
	return out
}

type publishedSignal struct {
	sig       domain.QualifiedSignal
	alertOnly bool
}

type fakeNotifier struct {
	mu        sync.Mutex
	signals   []publishedSignal
	summaries []domain.ExecutionSummary
}

func (f *fakeNotifier) PublishSignal(_ context.Context, sig domain.QualifiedSignal, alertOnly bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.signals = append(f.signals, publishedSignal{sig: sig, alertOnly: alertOnly})
	return nil
}

func (f *fakeNotifier) PublishSummary(_ context.Context, sum domain.ExecutionSummary) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.summaries = append(f.summaries, sum)
	return nil
}

func (f *fakeNotifier) Close() error { return nil }

func (f *fakeNotifier) published() ([]publishedSignal, []domain.ExecutionSummary) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sigs := make([]publishedSignal, len(f.signals))
	copy(sigs, f.signals)
	sums := make([]domain.ExecutionSummary, len(f.summaries))
	copy(sums, f.summaries)
	return sigs, sums
}

type fakeJournal struct {
	mu        sync.Mutex
	summaries []domain.ExecutionSummary
}

func (f *fakeJournal) Append(sum domain.ExecutionSummary) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.summaries = append(f.summaries, sum)
	return nil
}

func (f *fakeJournal) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.summaries)
}

type harness struct {
	t        *testing.T
	engine   *Engine
	source   *fakeSource
	executor *fakeExecutor
	notifier *fakeNotifier
	journal  *fakeJournal
	store    *positions.MemoryStore

	cancel context.CancelFunc
	done   chan struct{}
	runErr error
}

func newHarness(t *testing.T, results []domain.ExecutionResult) *harness {
	t.Helper()

	store := positions.NewMemoryStore()
	h := &harness{
		t:        t,
		source:   &fakeSource{ch: make(chan []domain.Candidate, 4)},
		executor: &fakeExecutor{results: results},
		notifier: &fakeNotifier{},
		journal:  &fakeJournal{},
		store:    store,
		done:     make(chan struct{}),
	}

	h.engine = New(Deps{
		Logger:     zap.NewNop(),
		Source:     h.source,
		Qualifier:  qualifier.New(zap.NewNop(), storeChecker{store}, 0.8, 0.6, 2),
		Throttle:   throttle.New(time.Hour),
		Executor:   h.executor,
		Aggregator: aggregator.New(zap.NewNop()),
		Positions:  store,
		Journal:    h.journal,
		Recorder:   recorder.Noop{},
		Notifier:   h.notifier,
		Metrics:    metrics.New(prometheus.NewRegistry()),
	})

	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	go func() {
		h.runErr = h.engine.Run(ctx)
		close(h.done)
	}()

	t.Cleanup(func() {
		cancel()
		select {
		case <-h.done:
		case <-time.After(5 * time.Second):
			t.Error("engine did not stop")
		}
	})

	return h
}

// stop cancels the run context and waits for Run to return, flushing any
// in-flight notifications.
func (h *harness) stop() error {
	h.t.Helper()
	h.cancel()
	select {
	case <-h.done:
		return h.runErr
	case <-time.After(5 * time.Second):
		h.t.Fatal("engine did not stop")
		return nil
	}
}

func (h *harness) waitCycles(n int) {
	h.t.Helper()
	require.Eventually(h.t, func() bool { return h.engine.Stats().Cycles >= n },
		2*time.Second, 5*time.Millisecond)
}

func cand(t *testing.T, pair string, score float64, confluence int) domain.Candidate {
	t.Helper()
	p, err := domain.ParsePair(pair)
	require.NoError(t, err)
	return domain.Candidate{
		Pair:        p,
		Side:        domain.SideLong,
		Score:       score,
		Confluence:  confluence,
		Entry:       decimal.NewFromInt(100),
		Stop:        decimal.NewFromInt(95),
		Target:      decimal.NewFromInt(110),
		GeneratedAt: time.Now().UTC(),
	}
}

func success(id string) domain.ExecutionResult {
	return domain.ExecutionResult{
		AccountID:      id,
		Platform:       domain.PlatformPaper,
		Status:         domain.StatusSuccess,
		FilledPrice:    decimal.NewFromInt(100),
		FilledQuantity: decimal.NewFromInt(1),
	}
}

func failure(id string) domain.ExecutionResult {
	return domain.ExecutionResult{
		AccountID: id,
		Platform:  domain.PlatformPaper,
		Status:    domain.StatusExchangeError,
		Error:     "rejected",
	}
}

func TestEngineSelectsBestAndExecutes(t *testing.T) {
	h := newHarness(t, []domain.ExecutionResult{success("env-1")})

	h.source.ch <- []domain.Candidate{
		cand(t, "SOL/USDT", 0.95, 3),
		cand(t, "SOL/USDT", 0.70, 2),
		cand(t, "ADA/USDT", 0.75, 2),
	}
	h.waitCycles(1)

	err := h.stop()
	assert.ErrorIs(t, err, context.Canceled)

	executed := h.executor.executed()
	require.Len(t, executed, 1, "one symbol qualifies, duplicates collapse")
	assert.Equal(t, "SOL_USDT", executed[0].Pair.String())
	assert.InDelta(t, 0.95, executed[0].Score, 1e-9)
	assert.Equal(t, 2, executed[0].GroupSize)

	sigs, sums := h.notifier.published()
	require.Len(t, sigs, 2)
	alertOnlyByPair := make(map[string]bool, len(sigs))
	for _, ps := range sigs {
		alertOnlyByPair[ps.sig.Pair.String()] = ps.alertOnly
	}
	assert.False(t, alertOnlyByPair["SOL_USDT"])
	assert.True(t, alertOnlyByPair["ADA_USDT"], "low score signal goes out as alert only")

	require.Len(t, sums, 1)
	assert.Equal(t, 1, sums[0].SuccessCount)
	assert.Equal(t, 1, h.journal.count())

	rec, err := h.store.Get(context.Background(), executed[0].Pair)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, []string{"env-1"}, rec.Accounts)
}

func TestEngineBlocksDuplicatePosition(t *testing.T) {
	h := newHarness(t, []domain.ExecutionResult{success("env-1")})

	h.source.ch <- []domain.Candidate{cand(t, "SOL/USDT", 0.95, 3)}
	h.waitCycles(1)

	h.source.ch <- []domain.Candidate{cand(t, "SOL/USDT", 0.9, 3)}
	h.waitCycles(2)
	h.stop()

	assert.Len(t, h.executor.executed(), 1, "open position blocks requalification")
	assert.Equal(t, 1, h.journal.count())
}

func TestEngineCooldownSuppressesRepeatAlerts(t *testing.T) {
	h := newHarness(t, nil)

	h.source.ch <- []domain.Candidate{cand(t, "ADA/USDT", 0.7, 2)}
	h.waitCycles(1)
	h.source.ch <- []domain.Candidate{cand(t, "ADA/USDT", 0.72, 2)}
	h.waitCycles(2)
	h.stop()

	sigs, _ := h.notifier.published()
	assert.Len(t, sigs, 1, "higher score inside the window does not resend")

	stats := h.engine.Stats()
	assert.Equal(t, 1, stats.AlertsDispatched)
	assert.Equal(t, 1, stats.AlertsSuppressed)
	assert.Empty(t, h.executor.executed())
}

func TestEngineSkipsPublicationWithoutAccounts(t *testing.T) {
	h := newHarness(t, nil)

	h.source.ch <- []domain.Candidate{cand(t, "SOL/USDT", 0.95, 3)}
	h.waitCycles(1)
	h.stop()

	assert.Len(t, h.executor.executed(), 1)
	assert.Equal(t, 0, h.journal.count())

	_, sums := h.notifier.published()
	assert.Empty(t, sums)

	rec, err := h.store.Get(context.Background(), domain.Pair{From: "SOL", To: "USDT"})
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestEngineRetriesSymbolAfterFullFailure(t *testing.T) {
	h := newHarness(t, []domain.ExecutionResult{failure("env-1"), failure("env-2")})

	h.source.ch <- []domain.Candidate{cand(t, "SOL/USDT", 0.95, 3)}
	h.waitCycles(1)
	h.source.ch <- []domain.Candidate{cand(t, "SOL/USDT", 0.95, 3)}
	h.waitCycles(2)
	h.stop()

	assert.Len(t, h.executor.executed(), 2, "failed entries never mark the position open")
	assert.Equal(t, 2, h.journal.count())

	_, sums := h.notifier.published()
	require.Len(t, sums, 2)
	assert.Equal(t, 0, sums[0].SuccessCount)
	assert.Equal(t, 2, sums[0].FailureCount)

	// the cooldown suppressed the second notification but not the execution
	assert.Equal(t, 1, h.engine.Stats().AlertsSuppressed)
}

func TestEngineStopsWhenSourceCloses(t *testing.T) {
	h := newHarness(t, nil)

	close(h.source.ch)
	select {
	case <-h.done:
		assert.Error(t, h.runErr)
		assert.NotErrorIs(t, h.runErr, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("engine kept running after source closed")
	}
}

func TestEngineStopsOnCancel(t *testing.T) {
	h := newHarness(t, nil)

	err := h.stop()
	assert.ErrorIs(t, err, context.Canceled)
}
