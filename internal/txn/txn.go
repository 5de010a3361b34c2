package txn

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// ErrNoTransaction is returned when a row lock is requested outside WithinTx.
var ErrNoTransaction = errors.New("no active transaction")

// Transactor runs fn inside a single transaction. Calls nested inside an
// active transaction join it instead of opening a new one.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Querier is the statement surface shared by pgx pools and transactions.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// DB is satisfied by *pgxpool.Pool.
type DB interface {
	Querier
	Begin(ctx context.Context) (pgx.Tx, error)
}

type pgTxKey struct{}

type memTxKey struct{}

// InTx reports whether ctx carries an active transaction of either kind.
func InTx(ctx context.Context) bool {
	if _, ok := ctx.Value(pgTxKey{}).(pgx.Tx); ok {
		return true
	}
	_, ok := ctx.Value(memTxKey{}).(*journal)
	return ok
}

// PgxTransactor binds a pgx transaction to the context handed to fn.
type PgxTransactor struct {
	db DB
}

// NewPgxTransactor builds a transactor over a pgx pool.
func NewPgxTransactor(db DB) *PgxTransactor {
	return &PgxTransactor{db: db}
}

// WithinTx commits when fn returns nil and rolls back otherwise.
func (t *PgxTransactor) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(pgTxKey{}).(pgx.Tx); ok {
		return fn(ctx)
	}

	tx, err := t.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	if err := fn(context.WithValue(ctx, pgTxKey{}, tx)); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// Conn returns the transaction bound to ctx, falling back to db.
func Conn(ctx context.Context, db DB) Querier {
	if tx, ok := ctx.Value(pgTxKey{}).(pgx.Tx); ok {
		return tx
	}
	return db
}

type journal struct {
	undo []func()
}

// MemoryTransactor serializes transactions over the in-memory stores and
// replays registered undo steps when fn fails.
type MemoryTransactor struct {
	mu sync.Mutex
}

// NewMemoryTransactor builds a transactor for the in-memory stores.
func NewMemoryTransactor() *MemoryTransactor {
	return &MemoryTransactor{}
}

func (t *MemoryTransactor) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(memTxKey{}).(*journal); ok {
		return fn(ctx)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	j := &journal{}
	if err := fn(context.WithValue(ctx, memTxKey{}, j)); err != nil {
		for i := len(j.undo) - 1; i >= 0; i-- {
			j.undo[i]()
		}
		return err
	}
	return nil
}

// OnRollback registers an undo step for the memory transaction bound to ctx.
// Outside a memory transaction it does nothing.
func OnRollback(ctx context.Context, undo func()) {
	if j, ok := ctx.Value(memTxKey{}).(*journal); ok {
		j.undo = append(j.undo, undo)
	}
}
