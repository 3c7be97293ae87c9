package main

import (
	"context"
	"database/sql"
	"time"

	"kycnet/internal/registry"
	registrypostgres "kycnet/internal/registry/store/postgres"
	derrors "kycnet/pkg/domain-errors"
	txcontext "kycnet/pkg/platform/tx"
)

const defaultRegistryTxTimeout = 5 * time.Second

// registryPostgresTx runs registry operations inside a serializable database
// transaction. The transaction is placed in context so the registry store and
// the audit outbox store commit together.
type registryPostgresTx struct {
	db      *sql.DB
	store   *registrypostgres.Store
	timeout time.Duration
}

func newRegistryPostgresTx(db *sql.DB, store *registrypostgres.Store) *registryPostgresTx {
	return &registryPostgresTx{db: db, store: store}
}

func (t *registryPostgresTx) RunInTx(ctx context.Context, fn func(ctx context.Context, store registry.Store) error) error {
	return t.run(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable}, fn)
}

func (t *registryPostgresTx) RunInReadTx(ctx context.Context, fn func(ctx context.Context, store registry.Store) error) error {
	return t.run(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable, ReadOnly: true}, fn)
}

func (t *registryPostgresTx) run(ctx context.Context, opts *sql.TxOptions, fn func(ctx context.Context, store registry.Store) error) error {
	if err := ctx.Err(); err != nil {
		return derrors.Wrap(err, derrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	timeout := t.timeout
	if timeout == 0 {
		timeout = defaultRegistryTxTimeout
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	tx, err := t.db.BeginTx(ctx, opts)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if err := fn(txcontext.WithTx(ctx, tx), t.store); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	return nil
}
