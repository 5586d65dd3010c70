package db

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
)

type fakeTx struct {
	pgx.Tx
	committed  bool
	rolledBack bool
}

func (t *fakeTx) Commit(context.Context) error {
	t.committed = true
	return nil
}

func (t *fakeTx) Rollback(context.Context) error {
	t.rolledBack = true
	return nil
}

type fakePool struct {
	opts []pgx.TxOptions
	txs  []*fakeTx
}

func (p *fakePool) BeginTx(_ context.Context, opts pgx.TxOptions) (pgx.Tx, error) {
	p.opts = append(p.opts, opts)
	tx := &fakeTx{}
	p.txs = append(p.txs, tx)
	return tx, nil
}

func TestWithTxCommits(t *testing.T) {
	pool := &fakePool{}
	require.NoError(t, WithTx(context.Background(), pool, func(pgx.Tx) error { return nil }))
	require.Len(t, pool.txs, 1)
	require.True(t, pool.txs[0].committed)
	require.Equal(t, pgx.RepeatableRead, pool.opts[0].IsoLevel)
}

func TestWithTxRetriesSerializationFailures(t *testing.T) {
	pool := &fakePool{}
	calls := 0
	err := WithTx(context.Background(), pool, func(pgx.Tx) error {
		calls++
		if calls < 3 {
			return &pgconn.PgError{Code: CodeSerializationFailure}
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 3, calls)
	require.True(t, pool.txs[0].rolledBack)
	require.True(t, pool.txs[2].committed)
}

func TestWithTxGivesUp(t *testing.T) {
	pool := &fakePool{}
	err := WithTx(context.Background(), pool, func(pgx.Tx) error {
		return &pgconn.PgError{Code: CodeDeadlockDetected}
	})
	require.Error(t, err)
	require.True(t, IsRetryable(err))
	require.Len(t, pool.txs, MaxTxAttempts)
}

func TestWithTxDoesNotRetryOtherErrors(t *testing.T) {
	pool := &fakePool{}
	boom := errors.New("boom")
	require.ErrorIs(t, WithTx(context.Background(), pool, func(pgx.Tx) error { return boom }), boom)
	require.Len(t, pool.txs, 1)
	require.False(t, pool.txs[0].committed)
}

func TestHasCode(t *testing.T) {
	err := errors.Join(errors.New("ctx"), &pgconn.PgError{Code: CodeForeignKeyViolation})
	require.True(t, HasCode(err, CodeForeignKeyViolation))
	require.False(t, HasCode(err, CodeUniqueViolation))
	require.False(t, HasCode(nil, CodeUniqueViolation))
}
