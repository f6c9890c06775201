package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type contextKey string

const DBTxKey contextKey = "db_tx"

const (
	ReadCommitted = pgx.ReadCommitted
	Serializable  = pgx.Serializable
)

// TxOptions describes the unit of work requested by a caller.
type TxOptions struct {
	Isolation pgx.TxIsoLevel
	ReadOnly  bool
	// Independent starts a fresh transaction on its own pool connection even
	// when ctx already carries one. The ambient transaction is left untouched
	// and resumes once the independent one has committed or rolled back.
	Independent bool
}

// TxFromContext returns the transaction bound to ctx, or nil.
func TxFromContext(ctx context.Context) pgx.Tx {
	tx, _ := ctx.Value(DBTxKey).(pgx.Tx)
	return tx
}

// ContextWithTx binds tx to ctx so repositories pick it up.
func ContextWithTx(ctx context.Context, tx pgx.Tx) context.Context {
	return context.WithValue(ctx, DBTxKey, tx)
}

// Transactor runs callbacks inside pgx transactions.
type Transactor struct {
	pool *pgxpool.Pool
}

func NewTransactor(pool *pgxpool.Pool) *Transactor {
	return &Transactor{pool: pool}
}

// InTx runs fn inside a transaction. A non-independent request made while
// ctx already carries a transaction joins it; its isolation level is then
// whatever the ambient transaction was opened with.
func (t *Transactor) InTx(ctx context.Context, opts TxOptions, fn func(ctx context.Context) error) error {
	if !opts.Independent && TxFromContext(ctx) != nil {
		return fn(ctx)
	}

	txOpts := pgx.TxOptions{IsoLevel: opts.Isolation}
	if opts.ReadOnly {
		txOpts.AccessMode = pgx.ReadOnly
	}

	tx, err := t.pool.BeginTx(ctx, txOpts)
	if err != nil {
		return fmt.Errorf("begin transaction (%s): %w", opts.Isolation, err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	if err := fn(ContextWithTx(ctx, tx)); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction (%s): %w", opts.Isolation, err)
	}
	return nil
}
