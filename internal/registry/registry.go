// Package registry resolves the set of tradeable accounts from prioritized
// configuration sources and owns the in-memory snapshot used during fan-out.
package registry

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/ordinex/signalrelay/internal/domain"
	"github.com/ordinex/signalrelay/internal/services/trader"
)

// TraderFactory materializes the exchange adapter for one account record.
type TraderFactory func(ctx context.Context, account domain.Account) (trader.Trader, error)

// PositionStore is the slice of the persistence layer the registry needs
// for the duplicate-position gate.
type PositionStore interface {
	Get(ctx context.Context, pair domain.Pair) (*domain.PositionRecord, error)
}

// ManagedAccount pairs an account record with its materialized exchange
// adapter. Trader is nil when the account is inactive.
type ManagedAccount struct {
	domain.Account
	Trader trader.Trader
}

// Registry holds the account snapshot. Reload replaces it atomically, reads
// see either the old or the new set, never a partial one.
type Registry struct {
	sources   []Source
	factory   TraderFactory
	positions PositionStore
	logger    *zap.Logger

	mu       sync.RWMutex
	accounts []ManagedAccount
}

func New(sources []Source, factory TraderFactory, positions PositionStore, logger *zap.Logger) *Registry {
	return &Registry{
		sources:   sources,
		factory:   factory,
		positions: positions,
		logger:    logger,
	}
}

// Reload rebuilds the account set from the source chain and swaps the
// snapshot. A materialization failure disables that account only; a source
// error aborts the reload and keeps the previous snapshot.
func (r *Registry) Reload(ctx context.Context) error {
	accounts, sourceName, err := r.discover(ctx)
	if err != nil {
		return err
	}

	managed := make([]ManagedAccount, 0, len(accounts))
	seen := make(map[string]struct{}, len(accounts))
	for _, acc := range accounts {
		if _, dup := seen[acc.ID]; dup {
			r.logger.Warn("dropping duplicate account id",
				zap.String("source", sourceName),
				zap.String("account", acc.ID))
			continue
		}
		seen[acc.ID] = struct{}{}
		managed = append(managed, r.materialize(ctx, acc))
	}

	r.mu.Lock()
	r.accounts = managed
	r.mu.Unlock()

	active := 0
	for i := range managed {
		if managed[i].IsActive {
			active++
		}
	}
	if len(managed) == 0 {
		r.logger.Warn("no accounts discovered from any source")
	} else {
		r.logger.Info("account registry reloaded",
			zap.String("source", sourceName),
			zap.Int("total", len(managed)),
			zap.Int("active", active))
	}

	return nil
}

// discover walks the source chain and returns the first non-empty result.
func (r *Registry) discover(ctx context.Context) ([]domain.Account, string, error) {
	for _, src := range r.sources {
		accounts, err := src.Load(ctx)
		if err != nil {
			return nil, "", errors.Wrapf(err, "account source %s", src.Name())
		}
		if len(accounts) > 0 {
			return accounts, src.Name(), nil
		}
	}
	return nil, "none", nil
}

// materialize validates the record and builds its trader. Any failure
// disables the account instead of aborting the reload, so one bad
// credential never takes down its siblings.
func (r *Registry) materialize(ctx context.Context, acc domain.Account) ManagedAccount {
	ma := ManagedAccount{Account: acc}

	if err := acc.Validate(); err != nil {
		r.logger.Error("disabling invalid account",
			zap.String("account", acc.ID),
			zap.String("platform", acc.Platform.String()),
			zap.Error(err))
		ma.IsActive = false
		return ma
	}
	if !acc.IsActive {
		return ma
	}

	t, err := r.factory(ctx, acc)
	if err != nil {
		r.logger.Error("failed to materialize account credentials",
			zap.String("account", acc.ID),
			zap.String("platform", acc.Platform.String()),
			zap.Error(err))
		ma.IsActive = false
		return ma
	}
	ma.Trader = t

	return ma
}

// ListActive returns a copy of the active accounts in discovery order.
func (r *Registry) ListActive() []ManagedAccount {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]ManagedAccount, 0, len(r.accounts))
	for _, ma := range r.accounts {
		if ma.IsActive {
			out = append(out, ma)
		}
	}
	return out
}

// All returns a copy of the full snapshot, disabled accounts included.
func (r *Registry) All() []ManagedAccount {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]ManagedAccount, len(r.accounts))
	copy(out, r.accounts)
	return out
}

// HasOpenPosition reports whether any account already holds a position for
// the pair. The check is symbol-scoped and account-independent.
func (r *Registry) HasOpenPosition(ctx context.Context, pair domain.Pair) (bool, error) {
	rec, err := r.positions.Get(ctx, pair)
	if err != nil {
		return false, errors.Wrapf(err, "position lookup for %s", pair.String())
	}
	return rec != nil, nil
}
