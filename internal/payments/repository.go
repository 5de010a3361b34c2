package payments

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/tbc-meetup/walletd/internal/txn"
)

// Store persists payment records. Records are never deleted.
type Store interface {
	// Create inserts rec unless its order id exists; it returns the stored
	// record and whether this call created it.
	Create(ctx context.Context, rec Record) (Record, bool, error)
	FindByOrderID(ctx context.Context, orderID string) (Record, error)
	// FindForUpdate locks the record until the enclosing transaction ends.
	FindForUpdate(ctx context.Context, orderID string) (Record, error)
	Save(ctx context.Context, rec Record) error
}

const recordColumns = `id, order_id, user_id, amount, refunded_amount, state, payment_key, failure_code, failure_msg, created_at, updated_at`

// PostgresRepository stores payment records in PostgreSQL.
type PostgresRepository struct {
	db txn.DB
}

// NewPostgresRepository builds a repository backed by PostgreSQL.
func NewPostgresRepository(db txn.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, rec Record) (Record, bool, error) {
	tag, err := txn.Conn(ctx, r.db).Exec(ctx, `INSERT INTO payments (`+recordColumns+`)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
        ON CONFLICT (order_id) DO NOTHING`,
		rec.ID, rec.OrderID, rec.UserID, rec.Amount, rec.RefundedAmount, string(rec.State),
		rec.PaymentKey, rec.FailureCode, rec.FailureMsg, rec.CreatedAt, rec.UpdatedAt)
	if err != nil {
		return Record{}, false, fmt.Errorf("insert payment %s: %w", rec.OrderID, err)
	}
	if tag.RowsAffected() == 0 {
		existing, err := r.FindByOrderID(ctx, rec.OrderID)
		return existing, false, err
	}
	return rec, true, nil
}

func (r *PostgresRepository) FindByOrderID(ctx context.Context, orderID string) (Record, error) {
	row := txn.Conn(ctx, r.db).QueryRow(ctx, `SELECT `+recordColumns+` FROM payments WHERE order_id = $1`, orderID)
	return scanRecord(row)
}

func (r *PostgresRepository) FindForUpdate(ctx context.Context, orderID string) (Record, error) {
	if !txn.InTx(ctx) {
		return Record{}, txn.ErrNoTransaction
	}
	row := txn.Conn(ctx, r.db).QueryRow(ctx, `SELECT `+recordColumns+` FROM payments WHERE order_id = $1 FOR UPDATE`, orderID)
	return scanRecord(row)
}

func (r *PostgresRepository) Save(ctx context.Context, rec Record) error {
	tag, err := txn.Conn(ctx, r.db).Exec(ctx, `UPDATE payments
        SET state = $2, refunded_amount = $3, payment_key = $4, failure_code = $5, failure_msg = $6, updated_at = $7
        WHERE order_id = $1`,
		rec.OrderID, string(rec.State), rec.RefundedAmount, rec.PaymentKey, rec.FailureCode, rec.FailureMsg, rec.UpdatedAt)
	if err != nil {
		return fmt.Errorf("save payment %s: %w", rec.OrderID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrOrderNotFound
	}
	return nil
}

func scanRecord(row pgx.Row) (Record, error) {
	var (
		rec   Record
		state string
	)
	err := row.Scan(&rec.ID, &rec.OrderID, &rec.UserID, &rec.Amount, &rec.RefundedAmount, &state,
		&rec.PaymentKey, &rec.FailureCode, &rec.FailureMsg, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, ErrOrderNotFound
		}
		return Record{}, err
	}
	rec.State = State(state)
	rec.CreatedAt = rec.CreatedAt.UTC()
	rec.UpdatedAt = rec.UpdatedAt.UTC()
	return rec, nil
}
