package tx

import (
	"context"
	"database/sql"
)

type ctxKey struct{}

var txKey = ctxKey{}

// WithTx stores a SQL transaction in context so stores participating in the
// same unit of work share it.
func WithTx(ctx context.Context, tx *sql.Tx) context.Context {
	if tx == nil {
		return ctx
	}
	return context.WithValue(ctx, txKey, tx)
}

// From extracts a SQL transaction from context if present.
func From(ctx context.Context) (*sql.Tx, bool) {
	tx, ok := ctx.Value(txKey).(*sql.Tx)
	return tx, ok
}

// Runner runs a function inside a database transaction. The transaction is
// injected into the callback's context via WithTx; postgres stores pick it up,
// memory stores ignore it.
type Runner struct {
	db *sql.DB
}

// NewRunner creates a transaction runner over db. A nil db yields a runner
// that invokes callbacks without transactional guarantees (memory stores).
func NewRunner(db *sql.DB) *Runner {
	return &Runner{db: db}
}

// RunInTx executes fn within a transaction, committing on nil error and
// rolling back otherwise. With no database configured it simply calls fn.
func (r *Runner) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if r == nil || r.db == nil {
		return fn(ctx)
	}
	sqlTx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(WithTx(ctx, sqlTx)); err != nil {
		_ = sqlTx.Rollback()
		return err
	}
	return sqlTx.Commit()
}
