package recorder

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ordinex/signalrelay/internal/domain"
)

func sqliteSummary() domain.ExecutionSummary {
	return domain.ExecutionSummary{
		ID:    "sum-1",
		Pair:  domain.Pair{From: "SOL", To: "USDT"},
		Side:  domain.SideLong,
		Score: 0.95,
		Results: []domain.ExecutionResult{
			{
				AccountID:      "env-1",
				Platform:       domain.PlatformBinance,
				Status:         domain.StatusSuccess,
				OrderID:        "order-1",
				FilledPrice:    decimal.NewFromInt(100),
				FilledQuantity: decimal.RequireFromString("0.2"),
				Elapsed:        150 * time.Millisecond,
			},
			{
				AccountID: "env-2",
				Platform:  domain.PlatformBybit,
				Status:    domain.StatusExchangeError,
				Error:     "market order: http 502",
				Elapsed:   90 * time.Millisecond,
			},
		},
		SuccessCount: 1,
		FailureCount: 1,
		CreatedAt:    time.Now().UTC(),
	}
}

func TestSQLiteRecorderFlattensResults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	rec, err := NewSQLiteRecorder(path, zap.NewNop())
	require.NoError(t, err)
	defer rec.Close()

	require.NoError(t, rec.RecordSummary(context.Background(), sqliteSummary()))

	var rows int
	require.NoError(t, rec.db.QueryRow(`SELECT COUNT(*) FROM executions WHERE summary_id = ?`, "sum-1").Scan(&rows))
	assert.Equal(t, 2, rows)

	var status, price, qty string
	require.NoError(t, rec.db.QueryRow(
		`SELECT status, filled_price, filled_qty FROM executions WHERE account_id = ?`, "env-1",
	).Scan(&status, &price, &qty))
	assert.Equal(t, "SUCCESS", status)
	assert.Equal(t, "100", price)
	assert.Equal(t, "0.2", qty)
}

func TestSQLiteRecorderSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")

	rec, err := NewSQLiteRecorder(path, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, rec.RecordSummary(context.Background(), sqliteSummary()))
	require.NoError(t, rec.Close())

	reopened, err := NewSQLiteRecorder(path, zap.NewNop())
	require.NoError(t, err)
	defer reopened.Close()

	var rows int
	require.NoError(t, reopened.db.QueryRow(`SELECT COUNT(*) FROM executions`).Scan(&rows))
	assert.Equal(t, 2, rows)
}

func TestNoopRecorder(t *testing.T) {
	var rec Recorder = Noop{}
	assert.NoError(t, rec.RecordSummary(context.Background(), sqliteSummary()))
	assert.NoError(t, rec.Close())
}
