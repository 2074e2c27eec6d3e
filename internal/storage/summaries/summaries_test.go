package summaries

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ordinex/signalrelay/internal/domain"
)

func summary(from string, success, failed int) domain.ExecutionSummary {
	return domain.ExecutionSummary{
		ID:           uuid.NewString(),
		Pair:         domain.Pair{From: from, To: "USDT"},
		Side:         domain.SideLong,
		Score:        0.9,
		SuccessCount: success,
		FailureCount: failed,
		CreatedAt:    time.Now().UTC().Truncate(time.Second),
	}
}

func TestJournalAppendAndReplay(t *testing.T) {
	journal, err := NewJournal(t.TempDir())
	require.NoError(t, err)
	defer journal.Close()

	require.NoError(t, journal.Append(summary("BTC", 2, 0)))
	require.NoError(t, journal.Append(summary("ETH", 1, 1)))
	require.NoError(t, journal.Append(summary("SOL", 0, 3)))

	all, err := journal.SummariesAfter(0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "BTC", all[0].Summary.Pair.From)
	assert.Equal(t, uint64(1), all[0].Index)

	tail, err := journal.SummariesAfter(2)
	require.NoError(t, err)
	require.Len(t, tail, 1)
	assert.Equal(t, "SOL", tail[0].Summary.Pair.From)

	none, err := journal.SummariesAfter(journal.CurrentIndex())
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestJournalSurvivesReopen(t *testing.T) {
	dir := t.TempDir()

	journal, err := NewJournal(dir)
	require.NoError(t, err)
	require.NoError(t, journal.Append(summary("BTC", 1, 0)))
	require.NoError(t, journal.Close())

	reopened, err := NewJournal(dir)
	require.NoError(t, err)
	defer reopened.Close()

	assert.Equal(t, uint64(1), reopened.CurrentIndex())
	records, err := reopened.SummariesAfter(0)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, 1, records[0].Summary.SuccessCount)
}
