package positions

import (
	"context"
	"encoding/json"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/vadiminshakov/gowal"

	"github.com/ordinex/signalrelay/internal/domain"
)

const (
	segmentLimit = 1000
	maxSegments  = 100

	openKeyPrefix  = "open_"
	closeKeyPrefix = "close_"
)

// WALStore persists position records in an append-only log. The current set
// is rebuilt on startup by replaying the log, last record per pair wins.
type WALStore struct {
	mu      sync.RWMutex
	wal     *gowal.Wal
	records map[string]domain.PositionRecord
}

// NewWALStore opens the log under dir and replays it into memory.
func NewWALStore(dir string) (*WALStore, error) {
	cfg := gowal.Config{
		Dir:              dir,
		Prefix:           "position_",
		SegmentThreshold: segmentLimit,
		MaxSegments:      maxSegments,
		IsInSyncDiskMode: true,
	}

	wal, err := gowal.NewWAL(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "init position WAL")
	}

	s := &WALStore{wal: wal, records: make(map[string]domain.PositionRecord)}
	if err := s.replay(); err != nil {
		_ = wal.Close()
		return nil, err
	}

	return s, nil
}

func (s *WALStore) replay() error {
	current := s.wal.CurrentIndex()
	for idx := uint64(1); idx <= current; idx++ {
		key, payload, err := s.wal.Get(idx)
		if err != nil {
			// rotated-out segment
			continue
		}

		switch {
		case strings.HasPrefix(key, openKeyPrefix):
			var rec domain.PositionRecord
			if err := json.Unmarshal(payload, &rec); err != nil {
				return errors.Wrapf(err, "decode position record at index %d", idx)
			}
			s.records[rec.Pair.String()] = rec
		case strings.HasPrefix(key, closeKeyPrefix):
			delete(s.records, strings.TrimPrefix(key, closeKeyPrefix))
		}
	}
	return nil
}

func (s *WALStore) Get(_ context.Context, pair domain.Pair) (*domain.PositionRecord, error) {
	if s == nil || s.wal == nil {
		return nil, errors.New("position store is not initialized")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[pair.String()]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (s *WALStore) Set(_ context.Context, rec domain.PositionRecord) error {
	if s == nil || s.wal == nil {
		return errors.New("position store is not initialized")
	}

	payload, err := json.Marshal(rec)
	if err != nil {
		return errors.Wrap(err, "marshal position record")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	nextIndex := s.wal.CurrentIndex() + 1
	if err := s.wal.Write(nextIndex, openKeyPrefix+rec.Pair.String(), payload); err != nil {
		return errors.Wrap(err, "write position record")
	}
	s.records[rec.Pair.String()] = rec

	return nil
}

func (s *WALStore) Delete(_ context.Context, pair domain.Pair) error {
	if s == nil || s.wal == nil {
		return errors.New("position store is not initialized")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	nextIndex := s.wal.CurrentIndex() + 1
	if err := s.wal.Write(nextIndex, closeKeyPrefix+pair.String(), []byte("{}")); err != nil {
		return errors.Wrap(err, "write position tombstone")
	}
	delete(s.records, pair.String())

	return nil
}

func (s *WALStore) List(_ context.Context) ([]domain.PositionRecord, error) {
	if s == nil || s.wal == nil {
		return nil, errors.New("position store is not initialized")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.PositionRecord, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, rec)
	}
	return out, nil
}

func (s *WALStore) Close() error {
	if s == nil || s.wal == nil {
		return errors.New("position store is not initialized")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.wal.Close()
}
