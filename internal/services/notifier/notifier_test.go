package notifier

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ordinex/signalrelay/internal/domain"
)

func sampleSummary() domain.ExecutionSummary {
	return domain.ExecutionSummary{
		ID:    "sum-1",
		Pair:  domain.Pair{From: "SOL", To: "USDT"},
		Side:  domain.SideLong,
		Score: 0.95,
		Results: []domain.ExecutionResult{
			{
				AccountID:      "env-1",
				Platform:       domain.PlatformPaper,
				Status:         domain.StatusSuccess,
				FilledPrice:    decimal.NewFromInt(100),
				FilledQuantity: decimal.NewFromInt(1),
			},
		},
		SuccessCount: 1,
		CreatedAt:    time.Now().UTC(),
	}
}

type recordingSink struct {
	signals   int
	summaries int
	closed    bool
	err       error
}

func (r *recordingSink) PublishSignal(context.Context, domain.QualifiedSignal, bool) error {
	r.signals++
	return r.err
}

func (r *recordingSink) PublishSummary(context.Context, domain.ExecutionSummary) error {
	r.summaries++
	return r.err
}

func (r *recordingSink) Close() error {
	r.closed = true
	return r.err
}

func TestMultiAttemptsEverySink(t *testing.T) {
	failing := &recordingSink{err: errors.New("channel down")}
	healthy := &recordingSink{}
	multi := NewMulti(zap.NewNop(), failing, healthy)

	err := multi.PublishSignal(context.Background(), formatterSignal(), false)

	require.Error(t, err)
	assert.Equal(t, 1, failing.signals)
	assert.Equal(t, 1, healthy.signals)
}

func TestMultiPublishSummary(t *testing.T) {
	a := &recordingSink{}
	b := &recordingSink{}
	multi := NewMulti(zap.NewNop(), a, b)

	require.NoError(t, multi.PublishSummary(context.Background(), sampleSummary()))
	assert.Equal(t, 1, a.summaries)
	assert.Equal(t, 1, b.summaries)
}

func TestMultiClosesEverySink(t *testing.T) {
	a := &recordingSink{}
	b := &recordingSink{}
	multi := NewMulti(zap.NewNop(), a, b)

	require.NoError(t, multi.Close())
	assert.True(t, a.closed)
	assert.True(t, b.closed)
}

func TestLogSinkNeverFails(t *testing.T) {
	sink := NewLogSink(zap.NewNop())

	assert.NoError(t, sink.PublishSignal(context.Background(), formatterSignal(), true))
	assert.NoError(t, sink.PublishSummary(context.Background(), sampleSummary()))
	assert.NoError(t, sink.Close())
}
