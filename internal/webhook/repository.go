package webhook

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/tbc-meetup/walletd/internal/txn"
)

// Store persists received webhook events.
type Store interface {
	// Insert stores ev unless its event id exists; inserted reports which.
	Insert(ctx context.Context, ev Event) (inserted bool, err error)
	FindByEventID(ctx context.Context, eventID string) (Event, error)
	// ListRetryable returns PENDING and FAILED events below maxAttempts, oldest first.
	ListRetryable(ctx context.Context, maxAttempts, limit int) ([]Event, error)
	Save(ctx context.Context, ev Event) error
}

const eventColumns = `id, event_id, event_type, status, payload, received_at, processed_at, attempt_count, last_error, created_at, updated_at`

// PostgresRepository stores events in the webhook_events table.
type PostgresRepository struct {
	db txn.DB
}

// NewPostgresRepository builds a repository backed by PostgreSQL.
func NewPostgresRepository(db txn.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Insert(ctx context.Context, ev Event) (bool, error) {
	tag, err := txn.Conn(ctx, r.db).Exec(ctx, `INSERT INTO webhook_events (`+eventColumns+`)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
        ON CONFLICT (event_id) DO NOTHING`,
		ev.ID, ev.EventID, ev.EventType, string(ev.Status), ev.Payload, ev.ReceivedAt, ev.ProcessedAt,
		ev.AttemptCount, ev.LastError, ev.CreatedAt, ev.UpdatedAt)
	if err != nil {
		return false, fmt.Errorf("insert webhook event %s: %w", ev.EventID, err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *PostgresRepository) FindByEventID(ctx context.Context, eventID string) (Event, error) {
	row := txn.Conn(ctx, r.db).QueryRow(ctx, `SELECT `+eventColumns+` FROM webhook_events WHERE event_id = $1`, eventID)
	return scanEvent(row)
}

func (r *PostgresRepository) ListRetryable(ctx context.Context, maxAttempts, limit int) ([]Event, error) {
	rows, err := txn.Conn(ctx, r.db).Query(ctx, `SELECT `+eventColumns+` FROM webhook_events
        WHERE status IN ('PENDING', 'FAILED') AND attempt_count < $1
        ORDER BY received_at ASC
        LIMIT $2`, maxAttempts, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events := []Event{}
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

func (r *PostgresRepository) Save(ctx context.Context, ev Event) error {
	_, err := txn.Conn(ctx, r.db).Exec(ctx, `UPDATE webhook_events
        SET status = $2, processed_at = $3, attempt_count = $4, last_error = $5, updated_at = $6
        WHERE event_id = $1`,
		ev.EventID, string(ev.Status), ev.ProcessedAt, ev.AttemptCount, ev.LastError, ev.UpdatedAt)
	return err
}

func scanEvent(row pgx.Row) (Event, error) {
	var (
		ev     Event
		status string
	)
	err := row.Scan(&ev.ID, &ev.EventID, &ev.EventType, &status, &ev.Payload, &ev.ReceivedAt, &ev.ProcessedAt,
		&ev.AttemptCount, &ev.LastError, &ev.CreatedAt, &ev.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Event{}, ErrEventNotFound
		}
		return Event{}, err
	}
	ev.Status = Status(status)
	return ev, nil
}
