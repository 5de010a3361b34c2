package txn

import (
	"context"
	"errors"
	"testing"

	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/require"
)

func TestMemoryTransactor_RollbackReplaysUndo(t *testing.T) {
	tr := NewMemoryTransactor()
	ctx := context.Background()

	value := 1
	boom := errors.New("boom")
	err := tr.WithinTx(ctx, func(ctx context.Context) error {
		require.True(t, InTx(ctx))
		prev := value
		value = 2
		OnRollback(ctx, func() { value = prev })
		return boom
	})
	require.ErrorIs(t, err, boom)
	require.Equal(t, 1, value)
}

func TestMemoryTransactor_NestedCallsJoin(t *testing.T) {
	tr := NewMemoryTransactor()
	ctx := context.Background()

	var order []string
	err := tr.WithinTx(ctx, func(ctx context.Context) error {
		OnRollback(ctx, func() { order = append(order, "outer") })
		return tr.WithinTx(ctx, func(ctx context.Context) error {
			OnRollback(ctx, func() { order = append(order, "inner") })
			return errors.New("fail")
		})
	})
	require.Error(t, err)
	require.Equal(t, []string{"inner", "outer"}, order)
}

func TestInTxOutsideTransaction(t *testing.T) {
	require.False(t, InTx(context.Background()))
	OnRollback(context.Background(), func() { t.Fatal("undo must not run outside a transaction") })
}

func TestPgxTransactor_CommitsOnSuccess(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectCommit()

	tr := NewPgxTransactor(mock)
	err = tr.WithinTx(context.Background(), func(ctx context.Context) error {
		require.True(t, InTx(ctx))
		return nil
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPgxTransactor_RollsBackOnError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectRollback()

	tr := NewPgxTransactor(mock)
	boom := errors.New("boom")
	err = tr.WithinTx(context.Background(), func(ctx context.Context) error {
		return boom
	})
	require.ErrorIs(t, err, boom)
	require.NoError(t, mock.ExpectationsWereMet())
}
