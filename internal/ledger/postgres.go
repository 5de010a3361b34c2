package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/tbc-meetup/walletd/internal/txn"
)

const entryColumns = `id, wallet_id, type, amount, reason, ref_type, ref_id, idempotency_key, created_at`

// PostgresStore persists ledger entries in the wallet_ledger table. The
// unique index on idempotency_key is what makes appends at-most-once.
type PostgresStore struct {
	db txn.DB
}

// NewPostgresStore constructs a Postgres-backed ledger store.
func NewPostgresStore(db txn.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Append inserts the entry. ON CONFLICT keeps the surrounding transaction
// usable when the key already exists.
func (s *PostgresStore) Append(ctx context.Context, entry Entry) (Entry, error) {
	entry, err := prepare(entry)
	if err != nil {
		return Entry{}, err
	}

	const query = `INSERT INTO wallet_ledger (` + entryColumns + `)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
        ON CONFLICT (idempotency_key) DO NOTHING`
	tag, err := txn.Conn(ctx, s.db).Exec(ctx, query,
		entry.ID, entry.WalletID, string(entry.Type), entry.Amount, entry.Reason,
		entry.RefType, entry.RefID, entry.IdempotencyKey, entry.CreatedAt)
	if err != nil {
		return Entry{}, fmt.Errorf("insert ledger entry: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return Entry{}, ErrDuplicateIdempotencyKey
	}
	return entry, nil
}

// FindByIdempotencyKey looks up the entry written for key.
func (s *PostgresStore) FindByIdempotencyKey(ctx context.Context, key string) (Entry, bool, error) {
	const query = `SELECT ` + entryColumns + ` FROM wallet_ledger WHERE idempotency_key = $1`
	entry, err := scanEntry(txn.Conn(ctx, s.db).QueryRow(ctx, query, key))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Entry{}, false, nil
		}
		return Entry{}, false, err
	}
	return entry, true, nil
}

// SumSigned returns the ledger-derived balance of the wallet.
func (s *PostgresStore) SumSigned(ctx context.Context, walletID uuid.UUID) (int64, error) {
	const query = `
        SELECT COALESCE(SUM(CASE WHEN type = 'CREDIT' THEN amount ELSE -amount END), 0)
        FROM wallet_ledger
        WHERE wallet_id = $1`
	var sum int64
	if err := txn.Conn(ctx, s.db).QueryRow(ctx, query, walletID).Scan(&sum); err != nil {
		return 0, fmt.Errorf("sum ledger for wallet %s: %w", walletID, err)
	}
	return sum, nil
}

// ListByWallet returns the newest entries first.
func (s *PostgresStore) ListByWallet(ctx context.Context, walletID uuid.UUID, limit, offset int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	const query = `SELECT ` + entryColumns + ` FROM wallet_ledger
        WHERE wallet_id = $1
        ORDER BY created_at DESC
        LIMIT $2 OFFSET $3`
	rows, err := txn.Conn(ctx, s.db).Query(ctx, query, walletID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func scanEntry(row pgx.Row) (Entry, error) {
	var (
		e       Entry
		entType string
	)
	if err := row.Scan(&e.ID, &e.WalletID, &entType, &e.Amount, &e.Reason, &e.RefType, &e.RefID, &e.IdempotencyKey, &e.CreatedAt); err != nil {
		return Entry{}, err
	}
	e.Type = EntryType(entType)
	e.CreatedAt = e.CreatedAt.UTC()
	return e, nil
}
