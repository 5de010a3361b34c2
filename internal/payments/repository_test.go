package payments

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tbc-meetup/walletd/internal/txn"
)

var recordCols = []string{"id", "order_id", "user_id", "amount", "refunded_amount", "state", "payment_key",
	"failure_code", "failure_msg", "created_at", "updated_at"}

func TestPostgresRepository_CreateReturnsExistingOnConflict(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	now := time.Now().UTC()
	existingID := uuid.New()
	mock.ExpectExec("INSERT INTO payments").
		WillReturnResult(pgxmock.NewResult("INSERT", 0))
	mock.ExpectQuery("SELECT id, order_id").
		WithArgs("order-1").
		WillReturnRows(pgxmock.NewRows(recordCols).
			AddRow(existingID, "order-1", int64(7), int64(10_000), int64(0), "INIT", "", "", "", now, now))

	rec, created, err := NewPostgresRepository(mock).Create(context.Background(), Record{
		ID: uuid.New(), OrderID: "order-1", UserID: 7, Amount: 20_000, State: StateInit, CreatedAt: now, UpdatedAt: now,
	})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, existingID, rec.ID)
	assert.Equal(t, int64(10_000), rec.Amount)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepository_FindByOrderIDNotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("FROM payments WHERE order_id").
		WithArgs("missing").
		WillReturnRows(pgxmock.NewRows(recordCols))

	_, err = NewPostgresRepository(mock).FindByOrderID(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrOrderNotFound)
}

func TestPostgresRepository_FindForUpdateRequiresTransaction(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	_, err = NewPostgresRepository(mock).FindForUpdate(context.Background(), "order-1")
	assert.ErrorIs(t, err, txn.ErrNoTransaction)
}

func TestPostgresRepository_SaveInsideTransaction(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	now := time.Now().UTC()
	mock.ExpectBegin()
	mock.ExpectQuery("FOR UPDATE").
		WithArgs("order-1").
		WillReturnRows(pgxmock.NewRows(recordCols).
			AddRow(uuid.New(), "order-1", int64(7), int64(10_000), int64(0), "INIT", "", "", "", now, now))
	mock.ExpectExec("UPDATE payments").
		WithArgs("order-1", "PAID", int64(0), "pk-1", "", "", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	repo := NewPostgresRepository(mock)
	err = txn.NewPgxTransactor(mock).WithinTx(context.Background(), func(ctx context.Context) error {
		rec, err := repo.FindForUpdate(ctx, "order-1")
		if err != nil {
			return err
		}
		if err := rec.TransitTo(StatePaid); err != nil {
			return err
		}
		rec.PaymentKey = "pk-1"
		return repo.Save(ctx, rec)
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
