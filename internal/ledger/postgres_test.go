package ledger

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/require"
)

func TestPostgresStore_AppendDuplicateIsDetected(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewPostgresStore(mock)
	entry := Entry{WalletID: uuid.New(), Type: Credit, Amount: 5_000, Reason: ReasonTopUp, RefType: RefTypePayment, RefID: "order-1", IdempotencyKey: TopUpKey("order-1")}

	mock.ExpectExec("INSERT INTO wallet_ledger").
		WithArgs(pgxmock.AnyArg(), entry.WalletID, "CREDIT", int64(5_000), ReasonTopUp, RefTypePayment, "order-1", "TOPUP:order-1", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO wallet_ledger").
		WillReturnResult(pgxmock.NewResult("INSERT", 0))

	saved, err := store.Append(context.Background(), entry)
	require.NoError(t, err)
	require.NotEqual(t, uuid.Nil, saved.ID)

	_, err = store.Append(context.Background(), entry)
	require.True(t, errors.Is(err, ErrDuplicateIdempotencyKey))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SumSigned(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	walletID := uuid.New()
	mock.ExpectQuery("SELECT COALESCE\\(SUM").
		WithArgs(walletID).
		WillReturnRows(pgxmock.NewRows([]string{"sum"}).AddRow(int64(4_200)))

	sum, err := NewPostgresStore(mock).SumSigned(context.Background(), walletID)
	require.NoError(t, err)
	require.Equal(t, int64(4_200), sum)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_FindByIdempotencyKeyMissing(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("SELECT id, wallet_id").
		WithArgs("TOPUP:none").
		WillReturnRows(pgxmock.NewRows([]string{"id", "wallet_id", "type", "amount", "reason", "ref_type", "ref_id", "idempotency_key", "created_at"}))

	_, found, err := NewPostgresStore(mock).FindByIdempotencyKey(context.Background(), "TOPUP:none")
	require.NoError(t, err)
	require.False(t, found)
}
