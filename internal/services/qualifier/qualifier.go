// Package qualifier reduces a batch of raw signal candidates to at most one
// executable signal per symbol, applying the score, confluence and
// duplicate-position gates.
package qualifier

import (
	"context"

	"go.uber.org/zap"

	"github.com/ordinex/signalrelay/internal/domain"
)

// PositionChecker is the registry view used for the duplicate-position gate.
type PositionChecker interface {
	HasOpenPosition(ctx context.Context, pair domain.Pair) (bool, error)
}

// Result of one qualification pass. Qualified signals go to execution,
// AlertOnly signals are notified but never executed, Rejections carry one
// entry per rejected symbol.
type Result struct {
	Qualified  []domain.QualifiedSignal
	AlertOnly  []domain.QualifiedSignal
	Rejections []domain.Rejection
}

// Qualifier applies the gates. Safe for use from a single cycle at a time;
// the engine never interleaves two passes.
type Qualifier struct {
	logger            *zap.Logger
	positions         PositionChecker
	minExecutionScore float64
	minAlertScore     float64
	minConfluence     int
}

func New(logger *zap.Logger, positions PositionChecker, minExecutionScore, minAlertScore float64, minConfluence int) *Qualifier {
	return &Qualifier{
		logger:            logger,
		positions:         positions,
		minExecutionScore: minExecutionScore,
		minAlertScore:     minAlertScore,
		minConfluence:     minConfluence,
	}
}

// Qualify processes one scan cycle's candidate batch. Candidates are grouped
// by pair, the best candidate per group is selected (maximum score, ties
// broken by earliest generation time) and pushed through the gates in order:
// execution score, confluence, open position.
func (q *Qualifier) Qualify(ctx context.Context, batch []domain.Candidate) Result {
	var res Result
	if len(batch) == 0 {
		return res
	}

	groups := make(map[string][]domain.Candidate, len(batch))
	order := make([]string, 0, len(batch))
	for _, c := range batch {
		key := c.Pair.String()
		if _, ok := groups[key]; !ok {
			order = append(order, key)
		}
		groups[key] = append(groups[key], c)
	}

	for _, key := range order {
		group := groups[key]
		best := selectBest(group)

		fields := []zap.Field{
			zap.String("pair", best.Pair.String()),
			zap.String("side", best.Side.String()),
			zap.Float64("score", best.Score),
			zap.Int("confluence", best.Confluence),
			zap.Int("group_size", len(group)),
		}

		if best.Score < q.minExecutionScore {
			res.Rejections = append(res.Rejections, rejection(best, domain.RejectLowScore))
			q.logger.Info("signal candidate rejected",
				append(fields, zap.String("reason", string(domain.RejectLowScore)))...)

			if q.alertEligible(ctx, best) {
				res.AlertOnly = append(res.AlertOnly, domain.QualifiedSignal{
					Candidate: best,
					GroupSize: len(group),
					Note:      "score below execution threshold",
				})
				q.logger.Info("signal candidate eligible for alert only", fields...)
			}
			continue
		}

		if best.Confluence < q.minConfluence {
			res.Rejections = append(res.Rejections, rejection(best, domain.RejectInsufficientConfluence))
			q.logger.Info("signal candidate rejected",
				append(fields, zap.String("reason", string(domain.RejectInsufficientConfluence)))...)
			continue
		}

		open, failed := q.positionGate(ctx, best.Pair)
		if failed {
			// store error: fail closed without inventing a rejection reason
			continue
		}
		if open {
			res.Rejections = append(res.Rejections, rejection(best, domain.RejectDuplicatePosition))
			q.logger.Info("signal candidate rejected",
				append(fields, zap.String("reason", string(domain.RejectDuplicatePosition)))...)
			continue
		}

		res.Qualified = append(res.Qualified, domain.QualifiedSignal{Candidate: best, GroupSize: len(group)})
		q.logger.Info("signal qualified for execution", fields...)
	}

	return res
}

// selectBest picks the maximum-score candidate, ties broken by earliest
// generation time. Deterministic for any input order.
func selectBest(group []domain.Candidate) domain.Candidate {
	best := group[0]
	for _, c := range group[1:] {
		if c.Score > best.Score {
			best = c
			continue
		}
		if c.Score == best.Score && c.GeneratedAt.Before(best.GeneratedAt) {
			best = c
		}
	}
	return best
}

// alertEligible checks the notification-only band: above the alert score
// and clean on the non-score gates.
func (q *Qualifier) alertEligible(ctx context.Context, c domain.Candidate) bool {
	if c.Score < q.minAlertScore || c.Confluence < q.minConfluence {
		return false
	}
	open, failed := q.positionGate(ctx, c.Pair)
	return !open && !failed
}

// positionGate reports the open-position state. A store failure fails
// closed: the symbol is skipped for this cycle.
func (q *Qualifier) positionGate(ctx context.Context, pair domain.Pair) (open, failed bool) {
	open, err := q.positions.HasOpenPosition(ctx, pair)
	if err != nil {
		q.logger.Error("position lookup failed, skipping symbol for this cycle",
			zap.String("pair", pair.String()), zap.Error(err))
		return false, true
	}
	return open, false
}

func rejection(c domain.Candidate, reason domain.RejectReason) domain.Rejection {
	return domain.Rejection{
		Pair:       c.Pair,
		Side:       c.Side,
		Reason:     reason,
		Score:      c.Score,
		Confluence: c.Confluence,
	}
}
