// Package source delivers scored trade candidates to the engine.
package source

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/ordinex/signalrelay/internal/domain"
)

// Source is an upstream producer of candidate batches.
type Source interface {
	// Run blocks feeding Batches until ctx is done.
	Run(ctx context.Context) error
	// Batches emits candidate batches in arrival order. The channel is
	// closed when Run returns.
	Batches() <-chan []domain.Candidate
}

// batchMessage is the wire form of one pushed candidate batch.
type batchMessage struct {
	Signals []candidateMessage `json:"signals"`
}

type candidateMessage struct {
	Pair        string    `json:"pair"`
	Side        string    `json:"side"`
	Score       float64   `json:"score"`
	Confluence  int       `json:"confluence"`
	Entry       string    `json:"entry"`
	Stop        string    `json:"stop,omitempty"`
	Target      string    `json:"target,omitempty"`
	GeneratedAt time.Time `json:"generated_at"`
}

// ParseBatch decodes one wire message. Entries that fail validation are
// dropped and counted; the rest of the batch survives.
func ParseBatch(data []byte) ([]domain.Candidate, int, error) {
	var msg batchMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, 0, errors.Wrap(err, "decode candidate batch")
	}

	candidates := make([]domain.Candidate, 0, len(msg.Signals))
	dropped := 0
	for _, raw := range msg.Signals {
		cand, err := raw.toCandidate()
		if err != nil {
			dropped++
			continue
		}
		candidates = append(candidates, cand)
	}

	return candidates, dropped, nil
}

func (m candidateMessage) toCandidate() (domain.Candidate, error) {
	pair, err := domain.ParsePair(m.Pair)
	if err != nil {
		return domain.Candidate{}, err
	}

	side, err := domain.ParseSide(m.Side)
	if err != nil {
		return domain.Candidate{}, err
	}

	if m.Score < 0 || m.Score > 1 {
		return domain.Candidate{}, errors.Errorf("score %v outside [0,1]", m.Score)
	}

	entry, err := decimal.NewFromString(m.Entry)
	if err != nil {
		return domain.Candidate{}, errors.Wrap(err, "parse entry")
	}
	if !entry.IsPositive() {
		return domain.Candidate{}, errors.Errorf("entry %s is not positive", entry)
	}

	cand := domain.Candidate{
		Pair:        pair,
		Side:        side,
		Score:       m.Score,
		Confluence:  m.Confluence,
		Entry:       entry,
		GeneratedAt: m.GeneratedAt,
	}

	if m.Stop != "" {
		if cand.Stop, err = decimal.NewFromString(m.Stop); err != nil {
			return domain.Candidate{}, errors.Wrap(err, "parse stop")
		}
	}
	if m.Target != "" {
		if cand.Target, err = decimal.NewFromString(m.Target); err != nil {
			return domain.Candidate{}, errors.Wrap(err, "parse target")
		}
	}
	if cand.GeneratedAt.IsZero() {
		cand.GeneratedAt = time.Now().UTC()
	}

	return cand, nil
}
