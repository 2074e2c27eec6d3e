// Package summaries journals execution summaries so the status server can
// replay recent history to late subscribers.
package summaries

import (
	"encoding/json"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/vadiminshakov/gowal"

	"github.com/ordinex/signalrelay/internal/domain"
)

const (
	segmentLimit = 200
	maxSegments  = 10

	summaryKeyPrefix = "summary_"
)

// Record is one journal entry with its log index, used as an SSE cursor.
type Record struct {
	Index   uint64                  `json:"index"`
	Summary domain.ExecutionSummary `json:"summary"`
}

// Journal is a WAL-backed append-only log of execution summaries.
type Journal struct {
	mu  sync.RWMutex
	wal *gowal.Wal
}

func NewJournal(dir string) (*Journal, error) {
	cfg := gowal.Config{
		Dir:              dir,
		Prefix:           "summary_",
		SegmentThreshold: segmentLimit,
		MaxSegments:      maxSegments,
		IsInSyncDiskMode: true,
	}

	wal, err := gowal.NewWAL(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "init summary journal")
	}

	return &Journal{wal: wal}, nil
}

// Append writes one summary to the journal.
func (j *Journal) Append(sum domain.ExecutionSummary) error {
	if j == nil || j.wal == nil {
		return errors.New("summary journal is not initialized")
	}

	payload, err := json.Marshal(sum)
	if err != nil {
		return errors.Wrap(err, "marshal execution summary")
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	nextIndex := j.wal.CurrentIndex() + 1
	return j.wal.Write(nextIndex, summaryKeyPrefix+sum.Pair.String(), payload)
}

// SummariesAfter returns all summaries written after the given index.
func (j *Journal) SummariesAfter(index uint64) ([]Record, error) {
	if j == nil || j.wal == nil {
		return nil, errors.New("summary journal is not initialized")
	}

	j.mu.RLock()
	defer j.mu.RUnlock()

	current := j.wal.CurrentIndex()
	if current <= index {
		return nil, nil
	}

	records := make([]Record, 0, current-index)
	for idx := index + 1; idx <= current; idx++ {
		key, payload, err := j.wal.Get(idx)
		if err != nil {
			continue
		}
		if !strings.HasPrefix(key, summaryKeyPrefix) {
			continue
		}

		var sum domain.ExecutionSummary
		if err := json.Unmarshal(payload, &sum); err != nil {
			return nil, errors.Wrap(err, "decode execution summary")
		}
		records = append(records, Record{Index: idx, Summary: sum})
	}

	return records, nil
}

// CurrentIndex returns the latest journal index.
func (j *Journal) CurrentIndex() uint64 {
	if j == nil || j.wal == nil {
		return 0
	}

	j.mu.RLock()
	defer j.mu.RUnlock()

	return j.wal.CurrentIndex()
}

func (j *Journal) Close() error {
	if j == nil || j.wal == nil {
		return errors.New("summary journal is not initialized")
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	return j.wal.Close()
}
