package recorder

import (
	"context"
	"database/sql"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/ordinex/signalrelay/internal/domain"
)

// SQLiteRecorder flattens execution summaries into one row per account
// result. Prices and quantities are stored as text to keep them exact.
type SQLiteRecorder struct {
	mu     sync.Mutex
	db     *sql.DB
	logger *zap.Logger
}

// NewSQLiteRecorder opens (or creates) the database and runs migrations.
func NewSQLiteRecorder(path string, logger *zap.Logger) (*SQLiteRecorder, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(err, "open sqlite")
	}

	// WAL mode keeps readers unblocked while the pipeline writes
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "set WAL mode")
	}

	r := &SQLiteRecorder{db: db, logger: logger}
	if err := r.migrate(); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "migrate")
	}

	logger.Info("sqlite recorder opened", zap.String("path", path))
	return r, nil
}

func (r *SQLiteRecorder) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS executions (
			id           INTEGER PRIMARY KEY AUTOINCREMENT,
			summary_id   TEXT NOT NULL,
			pair         TEXT NOT NULL,
			side         TEXT NOT NULL,
			score        REAL NOT NULL,
			account_id   TEXT NOT NULL,
			platform     TEXT NOT NULL,
			status       TEXT NOT NULL,
			order_id     TEXT,
			filled_price TEXT,
			filled_qty   TEXT,
			error        TEXT,
			elapsed_ms   INTEGER,
			created_at   INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_executions_pair ON executions(pair, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_executions_summary ON executions(summary_id)`,
	}

	for _, s := range stmts {
		if _, err := r.db.Exec(s); err != nil {
			return errors.Wrap(err, "exec migration")
		}
	}
	return nil
}

// RecordSummary inserts every per-account result of the summary in one
// transaction.
func (r *SQLiteRecorder) RecordSummary(ctx context.Context, summary domain.ExecutionSummary) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin tx")
	}
	defer tx.Rollback()

	createdAt := summary.CreatedAt.Unix()
	for _, res := range summary.Results {
		_, err := tx.ExecContext(ctx, `INSERT INTO executions
			(summary_id, pair, side, score, account_id, platform, status,
			 order_id, filled_price, filled_qty, error, elapsed_ms, created_at)
			VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)`,
			summary.ID, summary.Pair.String(), summary.Side.String(), summary.Score,
			res.AccountID, res.Platform.String(), res.Status.String(),
			res.OrderID, res.FilledPrice.String(), res.FilledQuantity.String(),
			res.Error, res.Elapsed.Milliseconds(), createdAt,
		)
		if err != nil {
			return errors.Wrapf(err, "insert result for account %s", res.AccountID)
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "commit tx")
	}

	r.logger.Debug("execution summary recorded",
		zap.String("summary", summary.ID),
		zap.Int("results", len(summary.Results)))

	return nil
}

func (r *SQLiteRecorder) Close() error {
	return r.db.Close()
}
