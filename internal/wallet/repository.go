package wallet

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/tbc-meetup/walletd/internal/txn"
)

// Store persists wallets.
type Store interface {
	// GetOrCreate returns the user's wallet, creating it with a zero balance.
	// Concurrent first calls for the same user observe the same wallet.
	GetOrCreate(ctx context.Context, userID int64) (Wallet, error)
	FindByUserID(ctx context.Context, userID int64) (Wallet, error)
	// FindForUpdate locks the wallet row until the enclosing transaction ends.
	FindForUpdate(ctx context.Context, userID int64) (Wallet, error)
	Save(ctx context.Context, wallet Wallet) error
	// List returns up to limit wallets with user id above afterUserID, ordered by user id.
	List(ctx context.Context, afterUserID int64, limit int) ([]Wallet, error)
}

const walletColumns = `id, user_id, balance, created_at, updated_at`

// PostgresRepository stores wallets in PostgreSQL.
type PostgresRepository struct {
	db txn.DB
}

// NewPostgresRepository builds a repository backed by PostgreSQL.
func NewPostgresRepository(db txn.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// GetOrCreate inserts the wallet if missing and reads back whichever row won.
func (r *PostgresRepository) GetOrCreate(ctx context.Context, userID int64) (Wallet, error) {
	now := time.Now().UTC()
	_, err := txn.Conn(ctx, r.db).Exec(ctx, `INSERT INTO wallets (id, user_id, balance, created_at, updated_at)
        VALUES ($1, $2, 0, $3, $3)
        ON CONFLICT (user_id) DO NOTHING`, uuid.New(), userID, now)
	if err != nil {
		return Wallet{}, fmt.Errorf("upsert wallet for user %d: %w", userID, err)
	}
	return r.FindByUserID(ctx, userID)
}

// FindByUserID fetches the wallet without locking it.
func (r *PostgresRepository) FindByUserID(ctx context.Context, userID int64) (Wallet, error) {
	row := txn.Conn(ctx, r.db).QueryRow(ctx, `SELECT `+walletColumns+` FROM wallets WHERE user_id = $1`, userID)
	return scanWallet(row)
}

// FindForUpdate takes the row lock on the wallet.
func (r *PostgresRepository) FindForUpdate(ctx context.Context, userID int64) (Wallet, error) {
	if !txn.InTx(ctx) {
		return Wallet{}, txn.ErrNoTransaction
	}
	row := txn.Conn(ctx, r.db).QueryRow(ctx, `SELECT `+walletColumns+` FROM wallets WHERE user_id = $1 FOR UPDATE`, userID)
	return scanWallet(row)
}

// Save persists the balance.
func (r *PostgresRepository) Save(ctx context.Context, wallet Wallet) error {
	tag, err := txn.Conn(ctx, r.db).Exec(ctx, `UPDATE wallets SET balance = $2, updated_at = $3 WHERE id = $1`,
		wallet.ID, wallet.Balance, wallet.UpdatedAt.UTC())
	if err != nil {
		return fmt.Errorf("save wallet %s: %w", wallet.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrWalletNotFound
	}
	return nil
}

// List pages through wallets by user id key.
func (r *PostgresRepository) List(ctx context.Context, afterUserID int64, limit int) ([]Wallet, error) {
	rows, err := txn.Conn(ctx, r.db).Query(ctx, `SELECT `+walletColumns+` FROM wallets
        WHERE user_id > $1
        ORDER BY user_id
        LIMIT $2`, afterUserID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	wallets := []Wallet{}
	for rows.Next() {
		w, err := scanWallet(rows)
		if err != nil {
			return nil, err
		}
		wallets = append(wallets, w)
	}
	return wallets, rows.Err()
}

func scanWallet(row pgx.Row) (Wallet, error) {
	var w Wallet
	if err := row.Scan(&w.ID, &w.UserID, &w.Balance, &w.CreatedAt, &w.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Wallet{}, ErrWalletNotFound
		}
		return Wallet{}, err
	}
	w.CreatedAt = w.CreatedAt.UTC()
	w.UpdatedAt = w.UpdatedAt.UTC()
	return w, nil
}
